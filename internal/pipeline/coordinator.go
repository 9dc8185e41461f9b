package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/dgnsrekt/caption-voice/internal/audio"
	"github.com/dgnsrekt/caption-voice/internal/filter"
	"github.com/dgnsrekt/caption-voice/internal/tts"
	"github.com/dgnsrekt/caption-voice/internal/ttypes"
)

const (
	// DefaultMaxTextRunes mirrors the synthesis service's input limit.
	DefaultMaxTextRunes = 1000

	defaultInboxSize = 64
)

// ErrUnknownAction is returned by Post for messages the dispatcher does not accept.
var ErrUnknownAction = errors.New("unknown action")

// ReasonBusy marks a snapshot ignored because a request is in flight. The
// filter does not see it, so the caption is still new once the slot frees.
const ReasonBusy = "busy"

// PeerID identifies an attached observer context.
type PeerID uint64

// NoPeer is used by callers that do not want replies delivered anywhere.
const NoPeer PeerID = 0

// Config holds coordinator configuration.
type Config struct {
	// Backend is fixed for the session.
	Backend tts.Backend

	// Filter defaults to filter.New().
	Filter *filter.Filter

	// Settings are the initial settings (normalized on use).
	Settings ttypes.Settings

	// Clock stamps snapshots that carry no observation time.
	Clock ttypes.Clock

	// MaxTextRunes truncates longer texts before dispatch (default 1000).
	MaxTextRunes int
}

// Coordinator is the dispatch context. It owns the pipeline state, applies
// the caption filter and lets at most one backend request run at a time.
type Coordinator struct {
	backend  tts.Backend
	filter   *filter.Filter
	clock    ttypes.Clock
	maxRunes int
	logger   *log.Logger

	inbox   chan envelope
	slot    chan struct{}
	refresh chan struct{}
	events  chan Event
	stopped chan struct{}

	mu       sync.Mutex
	state    ttypes.PipelineState
	settings ttypes.Settings
	flight   *flight
	peers    map[PeerID]Peer
	nextPeer PeerID
}

type flight struct {
	req   ttypes.DispatchRequest
	owner PeerID

	// playing is set once audio was handed to the owner.
	playing bool
}

type envelope struct {
	msg    *Message
	snap   *ttypes.CaptionSnapshot
	result *dispatchResult
	detach bool
	from   PeerID
	reply  chan reply
}

type reply struct {
	decision ttypes.FilterDecision
	err      error
}

type dispatchResult struct {
	req     ttypes.DispatchRequest
	owner   PeerID
	outcome tts.Outcome
	err     error
}

// NewCoordinator creates a coordinator. Call Run to start its loop.
func NewCoordinator(cfg Config) (*Coordinator, error) {
	if cfg.Backend == nil {
		return nil, errors.New("backend cannot be nil")
	}
	if cfg.Filter == nil {
		cfg.Filter = filter.New()
	}
	if cfg.Clock == nil {
		cfg.Clock = ttypes.SystemClock{}
	}
	if cfg.MaxTextRunes <= 0 {
		cfg.MaxTextRunes = DefaultMaxTextRunes
	}

	settings := tts.NormalizeSettings(cfg.Settings)
	return &Coordinator{
		backend:  cfg.Backend,
		filter:   cfg.Filter,
		clock:    cfg.Clock,
		maxRunes: cfg.MaxTextRunes,
		logger:   log.WithPrefix("dispatch"),
		inbox:    make(chan envelope, defaultInboxSize),
		slot:     make(chan struct{}, 1),
		refresh:  make(chan struct{}, 1),
		stopped:  make(chan struct{}),
		events:   make(chan Event, 32),
		state:    ttypes.PipelineState{Slot: ttypes.SlotIdle, Enabled: settings.Enabled},
		settings: settings,
		peers:    make(map[PeerID]Peer),
	}, nil
}

// Run processes messages until ctx is done.
func (c *Coordinator) Run(ctx context.Context) error {
	c.logger.Debug("Dispatcher started", "backend", c.backend.Kind())
	defer close(c.stopped)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env := <-c.inbox:
			r := c.handle(ctx, env)
			if env.reply != nil {
				env.reply <- r
			}
		}
	}
}

// Attach registers an observer context and returns its id.
func (c *Coordinator) Attach(p Peer) PeerID {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextPeer++
	c.peers[c.nextPeer] = p
	return c.nextPeer
}

// Detach forgets a peer. Audio it was playing no longer holds the slot; a
// request still at the backend is released when its result arrives.
func (c *Coordinator) Detach(id PeerID) {
	c.mu.Lock()
	delete(c.peers, id)
	c.mu.Unlock()

	env := envelope{detach: true, from: id, reply: make(chan reply, 1)}
	select {
	case c.inbox <- env:
	case <-c.stopped:
		return
	}
	select {
	case <-env.reply:
	case <-c.stopped:
	}
}

// Observe runs a snapshot through the filter and dispatches it when the
// filter says so. It returns ErrBusy when a request is already in flight.
func (c *Coordinator) Observe(ctx context.Context, snap ttypes.CaptionSnapshot, from PeerID) (ttypes.FilterDecision, error) {
	r, err := c.send(ctx, envelope{snap: &snap, from: from})
	if err != nil {
		return ttypes.FilterDecision{}, err
	}
	return r.decision, r.err
}

// Speak dispatches text directly, bypassing the filter.
func (c *Coordinator) Speak(ctx context.Context, text string, from PeerID) error {
	return c.Post(ctx, Message{Action: ActionSpeak, Text: text}, from)
}

// Post hands a protocol message to the dispatcher and waits until it has
// been handled.
func (c *Coordinator) Post(ctx context.Context, msg Message, from PeerID) error {
	r, err := c.send(ctx, envelope{msg: &msg, from: from})
	if err != nil {
		return err
	}
	return r.err
}

// ApplySettings is shorthand for posting settingsUpdated.
func (c *Coordinator) ApplySettings(ctx context.Context, s ttypes.Settings) error {
	return c.Post(ctx, Message{Action: ActionSettingsUpdated, Settings: &s}, NoPeer)
}

// State returns a copy of the pipeline state.
func (c *Coordinator) State() ttypes.PipelineState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Settings returns the current settings.
func (c *Coordinator) Settings() ttypes.Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

// Backend returns the kind of backend fixed for the session.
func (c *Coordinator) Backend() ttypes.BackendKind {
	return c.backend.Kind()
}

// RefreshRequests signals when the status monitor should probe again,
// after a backend failure or a settings change.
func (c *Coordinator) RefreshRequests() <-chan struct{} {
	return c.refresh
}

// Events streams activity for display. Events are dropped when nobody reads.
func (c *Coordinator) Events() <-chan Event {
	return c.events
}

func (c *Coordinator) send(ctx context.Context, env envelope) (reply, error) {
	env.reply = make(chan reply, 1)
	select {
	case c.inbox <- env:
	case <-ctx.Done():
		return reply{}, ctx.Err()
	}
	select {
	case r := <-env.reply:
		return r, nil
	case <-ctx.Done():
		return reply{}, ctx.Err()
	}
}

func (c *Coordinator) handle(ctx context.Context, env envelope) reply {
	switch {
	case env.snap != nil:
		return c.handleSnapshot(ctx, *env.snap, env.from)
	case env.result != nil:
		c.complete(*env.result)
		return reply{}
	case env.msg != nil:
		return reply{err: c.handleMessage(ctx, *env.msg, env.from)}
	case env.detach:
		c.detached(env.from)
		return reply{}
	default:
		return reply{}
	}
}

func (c *Coordinator) handleSnapshot(ctx context.Context, snap ttypes.CaptionSnapshot, from PeerID) reply {
	now := snap.ObservedAt
	if now.IsZero() {
		now = c.clock.Now()
	}

	c.mu.Lock()
	if c.flight != nil {
		c.mu.Unlock()
		decision := ttypes.FilterDecision{Action: ttypes.ActionIgnore, Reason: ReasonBusy}
		c.emit(Event{Kind: EventDropped, Text: snap.Text, Decision: decision, Err: tts.ErrBusy})
		return reply{decision: decision, err: tts.ErrBusy}
	}
	decision := c.filter.Decide(snap, &c.state, now)
	c.mu.Unlock()

	c.emit(Event{Kind: EventDecision, Text: snap.Text, Decision: decision})
	if decision.Action != ttypes.ActionDispatch {
		c.logger.Debug("Caption skipped", "action", decision.Action, "reason", decision.Reason)
		return reply{decision: decision}
	}
	return reply{decision: decision, err: c.dispatch(ctx, snap.Text, from)}
}

func (c *Coordinator) handleMessage(ctx context.Context, msg Message, from PeerID) error {
	switch msg.Action {
	case ActionSpeak:
		c.mu.Lock()
		enabled := c.state.Enabled
		c.mu.Unlock()
		if !enabled {
			c.deliver(from, DisabledAck())
			return tts.ErrDisabled
		}
		return c.dispatch(ctx, msg.Text, from)

	case ActionPlaybackEnded:
		c.mu.Lock()
		owned := c.flight != nil && (c.flight.owner == from || from == NoPeer)
		c.mu.Unlock()
		if !owned {
			c.logger.Debug("Ignoring playback end from non-owner", "peer", from)
			return nil
		}
		if msg.Error != "" {
			c.logger.Warn("Playback failed", "err", msg.Error)
			c.emit(Event{Kind: EventFailed, Err: fmt.Errorf("%w: %s", tts.ErrPlayback, msg.Error)})
		} else {
			c.emit(Event{Kind: EventCompleted})
		}
		c.release()
		return nil

	case ActionSettingsUpdated:
		if msg.Settings == nil {
			return errors.New("settingsUpdated without settings")
		}
		c.applySettings(*msg.Settings)
		return nil

	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, msg.Action)
	}
}

// applySettings is idempotent: the same settings twice change nothing the
// second time.
func (c *Coordinator) applySettings(s ttypes.Settings) {
	s = tts.NormalizeSettings(s)

	c.mu.Lock()
	if s == c.settings {
		c.mu.Unlock()
		return
	}
	c.settings = s
	c.state.Enabled = s.Enabled
	peers := c.peerList()
	c.mu.Unlock()

	c.logger.Info("Settings updated", "enabled", s.Enabled, "voice", s.VoiceID, "speed", s.SpeedPercent)
	c.emit(Event{Kind: EventSettings, Settings: s})

	msg := Message{Action: ActionSettingsUpdated, Settings: &s}
	for _, p := range peers {
		p.Deliver(msg)
	}
	c.requestRefresh()
}

func (c *Coordinator) dispatch(ctx context.Context, text string, from PeerID) error {
	if text == "" {
		return tts.ErrEmptyText
	}
	if utf8.RuneCountInString(text) > c.maxRunes {
		c.logger.Debug("Truncating caption", "runes", utf8.RuneCountInString(text), "limit", c.maxRunes)
		text = truncateRunes(text, c.maxRunes)
	}

	select {
	case c.slot <- struct{}{}:
	default:
		c.logger.Debug("Request dropped, slot busy", "text", text)
		c.emit(Event{Kind: EventDropped, Text: text, Err: tts.ErrBusy})
		return tts.ErrBusy
	}

	c.mu.Lock()
	req := ttypes.DispatchRequest{
		ID:          uuid.NewString(),
		Text:        text,
		VoiceID:     c.settings.VoiceID,
		RatePercent: c.settings.SpeedPercent,
	}
	c.flight = &flight{req: req, owner: from}
	c.state.Slot = ttypes.SlotInFlight
	c.mu.Unlock()

	c.logger.Debug("Dispatching", "id", req.ID, "voice", req.VoiceID, "rate", req.RatePercent)
	c.emit(Event{Kind: EventDispatched, RequestID: req.ID, Text: text, Slot: ttypes.SlotInFlight})

	go func() {
		outcome, err := c.backend.Speak(ctx, req)
		env := envelope{result: &dispatchResult{req: req, owner: from, outcome: outcome, err: err}}
		select {
		case c.inbox <- env:
		case <-ctx.Done():
		}
	}()
	return nil
}

func (c *Coordinator) complete(res dispatchResult) {
	c.mu.Lock()
	current := c.flight != nil && c.flight.req.ID == res.req.ID
	c.mu.Unlock()
	if !current {
		c.logger.Debug("Stale result ignored", "id", res.req.ID)
		return
	}

	switch {
	case res.err != nil:
		c.logger.Warn("Synthesis failed", "id", res.req.ID, "code", tts.CodeOf(res.err), "err", res.err)
		c.emit(Event{Kind: EventFailed, RequestID: res.req.ID, Text: res.req.Text, Err: res.err})
		c.deliver(res.owner, Message{Action: ActionTTSError, Error: res.err.Error()})
		c.release()
		c.requestRefresh()

	case res.outcome.Played:
		c.emit(Event{Kind: EventCompleted, RequestID: res.req.ID, Text: res.req.Text})
		c.release()

	default:
		mime := res.outcome.MIMEType
		if mime == "" {
			mime = audio.MIMEMPEG
		}
		c.logger.Debug("Audio ready", "id", res.req.ID, "mime", mime, "bytes", len(res.outcome.Audio))
		c.mu.Lock()
		c.flight.playing = true
		c.mu.Unlock()
		if !c.deliver(res.owner, Message{Action: ActionPlayAudio, AudioData: audio.EncodeDataURL(mime, res.outcome.Audio)}) {
			c.logger.Debug("No peer to play audio, releasing slot", "id", res.req.ID)
			c.release()
		}
	}
}

func (c *Coordinator) detached(id PeerID) {
	c.mu.Lock()
	playing := c.flight != nil && c.flight.owner == id && c.flight.playing
	c.mu.Unlock()

	if playing {
		c.logger.Debug("Owner detached, releasing slot", "peer", id)
		c.release()
	}
}

func (c *Coordinator) release() {
	c.mu.Lock()
	c.flight = nil
	c.state.Slot = ttypes.SlotIdle
	c.mu.Unlock()

	select {
	case <-c.slot:
	default:
	}
}

// deliver reports whether a peer was there to receive msg.
func (c *Coordinator) deliver(id PeerID, msg Message) bool {
	c.mu.Lock()
	p, ok := c.peers[id]
	c.mu.Unlock()
	if ok {
		p.Deliver(msg)
	}
	return ok
}

// peerList must be called with c.mu held.
func (c *Coordinator) peerList() []Peer {
	out := make([]Peer, 0, len(c.peers))
	for _, p := range c.peers {
		out = append(out, p)
	}
	return out
}

func (c *Coordinator) requestRefresh() {
	select {
	case c.refresh <- struct{}{}:
	default:
	}
}

func (c *Coordinator) emit(e Event) {
	if e.At.IsZero() {
		e.At = c.clock.Now()
	}
	select {
	case c.events <- e:
	default:
	}
}

func truncateRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
