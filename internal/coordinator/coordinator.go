package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/umangiveystaff/iveymeetingnotetaker/internal/audio"
	"github.com/umangiveystaff/iveymeetingnotetaker/internal/bus"
	"github.com/umangiveystaff/iveymeetingnotetaker/internal/capture"
	"github.com/umangiveystaff/iveymeetingnotetaker/internal/metrics"
	"github.com/umangiveystaff/iveymeetingnotetaker/internal/notes"
	"github.com/umangiveystaff/iveymeetingnotetaker/internal/session"
	"github.com/umangiveystaff/iveymeetingnotetaker/internal/speaker"
	"github.com/umangiveystaff/iveymeetingnotetaker/internal/speech"
)

var (
	// ErrEmptySession indicates notes were requested for a session with
	// no transcript.
	ErrEmptySession = errors.New("session has no transcript to summarize")

	// ErrStopped indicates the coordinator has been shut down.
	ErrStopped = errors.New("coordinator stopped")
)

// Summarizer is the summarization boundary; *notes.Client implements it.
type Summarizer interface {
	Summarize(ctx context.Context, prompt string) (session.Notes, error)
}

// Config contains coordinator configuration.
type Config struct {
	Segmenter           audio.SegmenterConfig
	SpeakerPollInterval time.Duration
	DefaultSpeakerLabel string
	NotesMaxPromptChars int
}

// Coordinator owns the session lifecycle. All state lives in the run
// loop goroutine; commands and producer events arrive as messages.
type Coordinator struct {
	config     Config
	logger     *slog.Logger
	store      *session.Store
	source     capture.Source
	engine     speech.Engine
	observer   speaker.Observer
	summarizer Summarizer
	events     *bus.Bus
	metrics    *metrics.Metrics

	commands chan any
	loopDone chan struct{}

	// Everything below is owned exclusively by the run loop.
	sess                *session.Session
	speakerLabel        string
	fragments           <-chan audio.Fragment
	speakerEvents       <-chan speaker.Event
	segmenter           *audio.Segmenter
	handle              capture.Handle
	attributorCancel    context.CancelFunc
	notesResults        chan notesOutcome
	stateBeforeGenerate session.State
}

type startCmd struct {
	ctx   context.Context
	reply chan error
}

type stopCmd struct {
	reply chan error
}

type generateCmd struct {
	ctx   context.Context
	reply chan notesReply
}

type notesReply struct {
	notes session.Notes
	err   error
}

type stateCmd struct {
	reply chan session.Session
}

type shutdownCmd struct {
	ctx   context.Context
	reply chan error
}

type notesOutcome struct {
	notes session.Notes
	err   error
	cmd   generateCmd
}

// New hydrates the coordinator from the persisted session record and
// starts its run loop. A record found mid-flight (Recording, Stopping,
// Generating) is normalized to Done: the capture handle is not
// resumable after a restart, so pretending capture continues would be a
// lie to the UI.
func New(config Config, logger *slog.Logger, store *session.Store, source capture.Source,
	engine speech.Engine, observer speaker.Observer, summarizer Summarizer,
	events *bus.Bus, m *metrics.Metrics) (*Coordinator, error) {

	if config.DefaultSpeakerLabel == "" {
		config.DefaultSpeakerLabel = "Unknown"
	}

	sess, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("hydrate session: %w", err)
	}
	if sess != nil {
		switch sess.State {
		case session.StateRecording, session.StateStopping, session.StateGenerating:
			logger.Info("normalizing interrupted session to done",
				slog.String("session_id", sess.ID),
				slog.String("persisted_state", string(sess.State)),
				slog.Int("entries", len(sess.Entries)),
			)
			sess.State = session.StateDone
			if err := store.SetState(sess.ID, session.StateDone); err != nil {
				return nil, fmt.Errorf("normalize session state: %w", err)
			}
		}
	}

	c := &Coordinator{
		config:       config,
		logger:       logger,
		store:        store,
		source:       source,
		engine:       engine,
		observer:     observer,
		summarizer:   summarizer,
		events:       events,
		metrics:      m,
		commands:     make(chan any),
		loopDone:     make(chan struct{}),
		notesResults: make(chan notesOutcome, 1),
		sess:         sess,
		speakerLabel: config.DefaultSpeakerLabel,
	}

	go c.run()
	return c, nil
}

// Start begins a new capture session, superseding any previous session
// record. Idempotent no-op if already recording.
func (c *Coordinator) Start(ctx context.Context) error {
	cmd := startCmd{ctx: ctx, reply: make(chan error, 1)}
	if err := c.send(cmd); err != nil {
		return err
	}
	return <-cmd.reply
}

// Stop halts new chunk admission and releases the capture handle.
// In-flight inference is allowed to complete and still append.
// Idempotent; safe if not recording.
func (c *Coordinator) Stop(ctx context.Context) error {
	cmd := stopCmd{reply: make(chan error, 1)}
	if err := c.send(cmd); err != nil {
		return err
	}
	return <-cmd.reply
}

// GenerateNotes builds the summarization prompt from the full
// transcript and calls the local endpoint. On failure the transcript is
// left untouched so the user can retry.
func (c *Coordinator) GenerateNotes(ctx context.Context) (session.Notes, error) {
	cmd := generateCmd{ctx: ctx, reply: make(chan notesReply, 1)}
	if err := c.send(cmd); err != nil {
		return session.Notes{}, err
	}
	r := <-cmd.reply
	return r.notes, r.err
}

// State returns a read-only snapshot of the current session.
func (c *Coordinator) State() session.Session {
	cmd := stateCmd{reply: make(chan session.Session, 1)}
	if err := c.send(cmd); err != nil {
		return session.Session{State: session.StateIdle}
	}
	return <-cmd.reply
}

// Shutdown stops any active recording, drains best-effort within ctx,
// and exits the run loop.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	cmd := shutdownCmd{ctx: ctx, reply: make(chan error, 1)}
	if err := c.send(cmd); err != nil {
		return nil // already stopped
	}
	return <-cmd.reply
}

func (c *Coordinator) send(cmd any) error {
	select {
	case c.commands <- cmd:
		return nil
	case <-c.loopDone:
		return ErrStopped
	}
}

// run is the single serializer of all state transitions.
func (c *Coordinator) run() {
	defer close(c.loopDone)

	for {
		select {
		case cmd := <-c.commands:
			switch cmd := cmd.(type) {
			case startCmd:
				c.handleStart(cmd)
			case stopCmd:
				c.handleStop(cmd)
			case generateCmd:
				c.handleGenerate(cmd)
			case stateCmd:
				cmd.reply <- c.snapshot()
			case shutdownCmd:
				c.handleShutdown(cmd)
				return
			}
		case frag, ok := <-c.fragments:
			c.handleFragment(frag, ok)
		case evt, ok := <-c.speakerEvents:
			if !ok {
				c.speakerEvents = nil
				continue
			}
			c.handleSpeakerEvent(evt)
		case out := <-c.notesResults:
			c.handleNotesResult(out)
		}
	}
}

func (c *Coordinator) state() session.State {
	if c.sess == nil {
		return session.StateIdle
	}
	return c.sess.State
}

func (c *Coordinator) snapshot() session.Session {
	if c.sess == nil {
		return session.Session{State: session.StateIdle}
	}
	return c.sess.Snapshot()
}

func (c *Coordinator) handleStart(cmd startCmd) {
	switch c.state() {
	case session.StateRecording, session.StateStopping:
		cmd.reply <- nil // idempotent
		return
	case session.StateGenerating:
		cmd.reply <- fmt.Errorf("cannot start while notes generation is in progress")
		return
	}

	handle, err := c.source.Acquire(cmd.ctx)
	if err != nil {
		// The previous session record, if any, stays readable.
		c.logger.Error("capture handle acquisition failed",
			slog.String("error", err.Error()),
		)
		c.events.Publish(bus.Event{Type: bus.EventError, Message: err.Error()})
		cmd.reply <- fmt.Errorf("start capture: %w", err)
		return
	}

	sess := session.New(time.Now())
	if err := c.store.Replace(sess); err != nil {
		handle.Close()
		cmd.reply <- fmt.Errorf("persist session: %w", err)
		return
	}

	c.sess = sess
	c.handle = handle
	c.speakerLabel = c.config.DefaultSpeakerLabel

	seg := audio.NewSegmenter(c.config.Segmenter, c.logger, c.engine, handle, c.events, c.metrics)
	c.segmenter = seg
	c.fragments = seg.Fragments()
	seg.Start()

	attrCtx, cancel := context.WithCancel(context.Background())
	c.attributorCancel = cancel
	attributor := speaker.NewAttributor(c.observer, c.config.SpeakerPollInterval, c.logger)
	c.speakerEvents = attributor.Events()
	go attributor.Run(attrCtx)

	c.metrics.RecordSessionStarted()
	c.publishState()
	c.logger.Info("capture session started",
		slog.String("session_id", sess.ID),
	)
	cmd.reply <- nil
}

func (c *Coordinator) handleStop(cmd stopCmd) {
	if c.state() != session.StateRecording {
		cmd.reply <- nil // idempotent
		return
	}

	c.setState(session.StateStopping)
	c.segmenter.Stop()
	c.handle.Close()
	c.attributorCancel()

	c.logger.Info("capture session stopping, draining in-flight work",
		slog.String("session_id", c.sess.ID),
		slog.Int("entries", len(c.sess.Entries)),
	)
	cmd.reply <- nil
}

// handleFragment appends an attributed fragment, or finishes the drain
// when the fragment channel closes. The fragment is labeled with the
// speaker value current at arrival, not at the moment the audio was
// spoken; this bounded attribution skew is a documented property.
func (c *Coordinator) handleFragment(frag audio.Fragment, ok bool) {
	if !ok {
		c.fragments = nil
		c.segmenter = nil
		if c.state() == session.StateStopping {
			c.setState(session.StateDone)
			c.metrics.RecordSessionStopped()
			c.logger.Info("capture session drained",
				slog.String("session_id", c.sess.ID),
				slog.Int("entries", len(c.sess.Entries)),
			)
		}
		return
	}

	switch c.state() {
	case session.StateRecording, session.StateStopping:
	default:
		c.logger.Warn("dropping fragment outside active session",
			slog.String("state", string(c.state())),
		)
		return
	}

	entry := c.sess.Append(c.speakerLabel, frag.Text, frag.Timestamp)
	if err := c.store.AppendEntry(c.sess.ID, entry); err != nil {
		// The in-memory transcript stays authoritative for this process;
		// the entry is lost only if we also crash before the next write.
		c.logger.Error("failed to persist transcript entry",
			slog.Uint64("sequence", entry.Sequence),
			slog.String("error", err.Error()),
		)
	}

	c.metrics.RecordFragmentAppended()
	c.events.Publish(bus.Event{
		Type:    bus.EventFragmentAppended,
		Message: fmt.Sprintf("%s: %s", entry.Speaker, entry.Text),
	})
}

func (c *Coordinator) handleSpeakerEvent(evt speaker.Event) {
	c.speakerLabel = evt.Label
	c.metrics.RecordSpeakerChange()
	c.events.Publish(bus.Event{Type: bus.EventSpeakerChanged, Message: evt.Label})
	c.logger.Debug("speaker changed",
		slog.String("label", evt.Label),
	)
}

func (c *Coordinator) handleGenerate(cmd generateCmd) {
	if c.sess == nil || len(c.sess.Entries) == 0 {
		cmd.reply <- notesReply{err: ErrEmptySession}
		return
	}

	switch c.state() {
	case session.StateDone, session.StateNotesReady:
	default:
		cmd.reply <- notesReply{err: fmt.Errorf("cannot generate notes in state %q", c.state())}
		return
	}

	c.stateBeforeGenerate = c.state()
	c.setState(session.StateGenerating)

	prompt := notes.BuildPrompt(c.sess.Snapshot().Entries, c.config.NotesMaxPromptChars)

	go func() {
		startTime := time.Now()
		n, err := c.summarizer.Summarize(cmd.ctx, prompt)
		c.metrics.RecordNotesRequest(time.Since(startTime).Seconds(), err != nil)
		c.notesResults <- notesOutcome{notes: n, err: err, cmd: cmd}
	}()
}

func (c *Coordinator) handleNotesResult(out notesOutcome) {
	if out.err != nil {
		// Transcript untouched; user can retry.
		c.setState(c.stateBeforeGenerate)
		c.logger.Error("notes generation failed",
			slog.String("error", out.err.Error()),
		)
		c.events.Publish(bus.Event{Type: bus.EventError, Message: out.err.Error()})
		out.cmd.reply <- notesReply{err: out.err}
		return
	}

	n := out.notes
	c.sess.Notes = &n
	if err := c.store.SaveNotes(c.sess.ID, n); err != nil {
		c.logger.Error("failed to persist notes",
			slog.String("error", err.Error()),
		)
	}
	c.setState(session.StateNotesReady)
	c.events.Publish(bus.Event{Type: bus.EventNotesReady, Message: "meeting notes generated"})
	c.logger.Info("notes generated",
		slog.String("session_id", c.sess.ID),
		slog.Int("notes_chars", len(n.Text)),
	)
	out.cmd.reply <- notesReply{notes: n}
}

func (c *Coordinator) handleShutdown(cmd shutdownCmd) {
	if c.state() == session.StateRecording {
		c.setState(session.StateStopping)
		c.segmenter.Stop()
		c.handle.Close()
		c.attributorCancel()
	}

	// Best-effort drain bounded by the shutdown context. If the drain
	// is cut short the record persists as stopping and is normalized to
	// done on the next start.
	for c.fragments != nil {
		select {
		case frag, ok := <-c.fragments:
			c.handleFragment(frag, ok)
		case <-cmd.ctx.Done():
			c.fragments = nil
		}
	}

	// An in-flight notes generation still holds a caller waiting on its
	// reply; settle it before the loop exits.
	if c.state() == session.StateGenerating {
		select {
		case out := <-c.notesResults:
			c.handleNotesResult(out)
		case <-cmd.ctx.Done():
			c.setState(c.stateBeforeGenerate)
			// The worker will still deliver its outcome; fail the waiting
			// caller without blocking shutdown on the endpoint.
			go func() {
				out := <-c.notesResults
				out.cmd.reply <- notesReply{err: ErrStopped}
			}()
		}
	}

	if c.attributorCancel != nil {
		c.attributorCancel()
	}

	c.logger.Info("coordinator stopped")
	cmd.reply <- nil
}

// setState transitions the session state and persists it write-through.
func (c *Coordinator) setState(state session.State) {
	c.sess.State = state
	if err := c.store.SetState(c.sess.ID, state); err != nil {
		c.logger.Error("failed to persist session state",
			slog.String("state", string(state)),
			slog.String("error", err.Error()),
		)
	}
	c.publishState()
}

func (c *Coordinator) publishState() {
	c.events.Publish(bus.Event{Type: bus.EventStateChanged, Message: string(c.state())})
}
