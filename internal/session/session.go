package session

import (
	"time"

	"github.com/google/uuid"
)

// State represents the lifecycle state of a capture session.
type State string

const (
	StateIdle       State = "idle"
	StateRecording  State = "recording"
	StateStopping   State = "stopping"
	StateDone       State = "done"
	StateGenerating State = "generating"
	StateNotesReady State = "notes_ready"
	StateError      State = "error"
)

// Valid reports whether s is one of the defined session states.
func (s State) Valid() bool {
	switch s {
	case StateIdle, StateRecording, StateStopping, StateDone,
		StateGenerating, StateNotesReady, StateError:
		return true
	}
	return false
}

// Entry is a single speaker-attributed transcript fragment. Entries are
// immutable once appended; Sequence reflects the completion order of
// transcription work, which may differ from capture order when inference
// latency varies between chunks.
type Entry struct {
	Sequence  uint64    `json:"sequence"`
	Speaker   string    `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Notes holds the generated meeting notes. Each successful generation
// overwrites the previous value.
type Notes struct {
	Text        string    `json:"text"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Session is the full record of one record-to-notes cycle. At most one
// session is live at a time; a new start supersedes the previous record.
type Session struct {
	ID        string    `json:"id"`
	State     State     `json:"state"`
	StartTime time.Time `json:"start_time"`
	Entries   []Entry   `json:"entries"`
	Notes     *Notes    `json:"notes,omitempty"`
}

// New creates a fresh recording session starting at startTime.
func New(startTime time.Time) *Session {
	return &Session{
		ID:        uuid.NewString(),
		State:     StateRecording,
		StartTime: startTime,
	}
}

// Append assigns the next sequence number and appends an attributed
// fragment. Sequence numbers are contiguous starting at 1.
func (s *Session) Append(speaker, text string, ts time.Time) Entry {
	e := Entry{
		Sequence:  uint64(len(s.Entries)) + 1,
		Speaker:   speaker,
		Text:      text,
		Timestamp: ts,
	}
	s.Entries = append(s.Entries, e)
	return e
}

// Snapshot returns a deep copy safe to hand to readers while the
// coordinator keeps mutating the live session.
func (s *Session) Snapshot() Session {
	snap := Session{
		ID:        s.ID,
		State:     s.State,
		StartTime: s.StartTime,
	}
	if len(s.Entries) > 0 {
		snap.Entries = make([]Entry, len(s.Entries))
		copy(snap.Entries, s.Entries)
	}
	if s.Notes != nil {
		n := *s.Notes
		snap.Notes = &n
	}
	return snap
}
