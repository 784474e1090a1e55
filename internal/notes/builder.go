package notes

import (
	"fmt"
	"strings"

	"github.com/umangiveystaff/iveymeetingnotetaker/internal/session"
)

// elisionMarker replaces the oldest transcript lines when the prompt
// budget is exceeded.
const elisionMarker = "[earlier transcript omitted]"

// instructionTemplate is the fixed prompt schema. The transcript is
// substituted for %s.
const instructionTemplate = `You are a meeting assistant. Below is the transcript of a meeting, one line per utterance in the form [time] speaker: text.

Produce meeting notes in markdown with exactly these sections:

## Summary
A short paragraph summarizing what the meeting covered.

## Decisions
Bullet list of decisions that were made. Write "None" if there were none.

## Action Items
Bullet list of action items, each with its owner. Write "None" if there were none.

## Blockers
Bullet list of blockers or risks raised. Write "None" if there were none.

## Next Steps
Bullet list of agreed next steps. Write "None" if there were none.

Base every statement strictly on the transcript below. Do not invent names, dates, decisions, or action items that are not present in the transcript.

Transcript:
%s`

// BuildPrompt serializes the transcript into the instruction template,
// one line per entry in sequence order. When the serialized transcript
// exceeds maxChars, the oldest lines are elided with a marker so the
// prompt stays bounded.
func BuildPrompt(entries []session.Entry, maxChars int) string {
	lines := make([]string, 0, len(entries))
	total := 0
	for _, e := range entries {
		line := fmt.Sprintf("[%s] %s: %s", e.Timestamp.Format("15:04:05"), e.Speaker, e.Text)
		lines = append(lines, line)
		total += len(line) + 1
	}

	if maxChars > 0 && total > maxChars {
		// Drop oldest lines until the transcript fits the budget.
		budget := total
		drop := 0
		for drop < len(lines)-1 && budget > maxChars {
			budget -= len(lines[drop]) + 1
			drop++
		}
		lines = append([]string{elisionMarker}, lines[drop:]...)
	}

	return fmt.Sprintf(instructionTemplate, strings.Join(lines, "\n"))
}
