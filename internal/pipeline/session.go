package pipeline

import (
	"context"
	"errors"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/caption-voice/internal/audio"
	"github.com/dgnsrekt/caption-voice/internal/tts"
	"github.com/dgnsrekt/caption-voice/internal/ttypes"
)

const defaultSessionInbox = 32

// Player plays one clip at a time; *audio.Manager satisfies it.
type Player interface {
	Play(ctx context.Context, clip audio.Clip) <-chan error
}

// Session is the observer context: it feeds snapshots to the dispatcher and
// plays the audio the dispatcher sends back.
type Session struct {
	coord  *Coordinator
	player Player
	id     PeerID
	logger *log.Logger

	inbox    chan Message
	playDone chan error

	settings ttypes.Settings
}

// NewSession attaches a new observer context to coord.
func NewSession(coord *Coordinator, player Player) *Session {
	s := &Session{
		coord:    coord,
		player:   player,
		logger:   log.WithPrefix("session"),
		inbox:    make(chan Message, defaultSessionInbox),
		playDone: make(chan error, 1),
		settings: coord.Settings(),
	}
	s.id = coord.Attach(s)
	return s
}

// ID returns the peer id assigned by the dispatcher.
func (s *Session) ID() PeerID { return s.id }

// Deliver implements Peer. It never blocks; messages beyond the inbox
// capacity are dropped.
func (s *Session) Deliver(msg Message) {
	select {
	case s.inbox <- msg:
	default:
		s.logger.Warn("Session inbox full, dropping message", "action", msg.Action)
	}
}

// Run consumes snapshots until ctx is done or snapshots is closed, then
// detaches from the dispatcher.
func (s *Session) Run(ctx context.Context, snapshots <-chan ttypes.CaptionSnapshot) error {
	defer s.coord.Detach(s.id)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case snap, ok := <-snapshots:
			if !ok {
				return nil
			}
			s.observe(ctx, snap)

		case msg := <-s.inbox:
			s.handle(ctx, msg)

		case err := <-s.playDone:
			s.playbackEnded(ctx, err)
		}
	}
}

func (s *Session) observe(ctx context.Context, snap ttypes.CaptionSnapshot) {
	decision, err := s.coord.Observe(ctx, snap, s.id)
	switch {
	case errors.Is(err, tts.ErrBusy):
		s.logger.Debug("Caption dropped while speaking", "text", snap.Text)
	case err != nil && ctx.Err() == nil:
		s.logger.Warn("Dispatch failed", "err", err)
	case decision.Action == ttypes.ActionDispatch:
		s.logger.Info("Speaking caption", "text", snap.Text)
	}
}

func (s *Session) handle(ctx context.Context, msg Message) {
	if msg.IsAck() {
		s.logger.Debug("Acknowledged", "success", *msg.Success, "reason", msg.Reason)
		return
	}

	switch msg.Action {
	case ActionPlayAudio:
		clip, err := audio.ClipFromDataURL(msg.AudioData)
		if err != nil {
			s.logger.Warn("Bad audio payload", "err", err)
			s.playbackEnded(ctx, err)
			return
		}
		done := s.player.Play(ctx, clip)
		go func() {
			err := <-done
			select {
			case s.playDone <- err:
			case <-ctx.Done():
			}
		}()

	case ActionTTSError:
		s.logger.Error("Speech synthesis failed", "err", msg.Error)

	case ActionSettingsUpdated:
		if msg.Settings != nil {
			s.settings = *msg.Settings
			s.logger.Debug("Settings received", "enabled", s.settings.Enabled)
		}

	default:
		s.logger.Debug("Unhandled message", "action", msg.Action)
	}
}

func (s *Session) playbackEnded(ctx context.Context, err error) {
	msg := Message{Action: ActionPlaybackEnded}
	if err != nil && !errors.Is(err, audio.ErrSuperseded) {
		msg.Error = err.Error()
	}
	if perr := s.coord.Post(ctx, msg, s.id); perr != nil && ctx.Err() == nil {
		s.logger.Warn("Could not report playback end", "err", perr)
	}
}
