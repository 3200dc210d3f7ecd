package session

import (
	"context"
	"time"

	"corpflow-chat/backend/conversation/models"

	"github.com/cenkalti/backoff/v4"
)

// runner owns the push channel of one active conversation
type runner struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (r *runner) stop() {
	r.cancel()
	<-r.done
}

func (r *runner) exited() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// startChannelLocked replaces the runner with one for conversationID. The
// previous runner is cancelled here and the new one waits for it to exit
// before dialing, so at most one channel is ever open.
func (s *Session) startChannelLocked(conversationID string) {
	prev := s.runner
	s.runner = nil
	if prev != nil {
		prev.cancel()
	}
	if s.dialer == nil {
		s.channel = ChannelDisconnected
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &runner{cancel: cancel, done: make(chan struct{})}
	s.runner = r
	s.channel = ChannelConnecting
	go s.runChannel(ctx, r, prev, conversationID)
}

// channelIdleLocked reports whether the active conversation has no live runner
func (s *Session) channelIdleLocked() bool {
	return s.dialer != nil && (s.runner == nil || s.runner.exited())
}

func (s *Session) runChannel(ctx context.Context, r *runner, prev *runner, conversationID string) {
	defer close(r.done)
	if prev != nil {
		<-prev.done
	}

	log := s.log.WithConversationID(conversationID)
	policy := s.backoff.NewBackOff()

	for {
		s.setChannel(r, ChannelConnecting)
		ch, err := s.dialer.Dial(ctx, s.userID, conversationID)
		if err == nil {
			s.setChannel(r, ChannelConnected)
			policy.Reset()
			log.Debug("push channel connected")
			err = s.pump(ctx, r, ch)
			_ = ch.Close()
		}
		if ctx.Err() != nil {
			return
		}

		s.setChannel(r, ChannelDisconnected)
		wait := policy.NextBackOff()
		if wait == backoff.Stop {
			log.LogError(err, "push channel gave up reconnecting")
			return
		}
		log.Warn("push channel error, reconnecting", "error", err, "retry_in", wait)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (s *Session) pump(ctx context.Context, r *runner, ch Channel) error {
	for {
		msg, err := ch.Next(ctx)
		if err != nil {
			return err
		}
		s.deliver(r, msg)
	}
}

// deliver merges a frame unless r has been replaced
func (s *Session) deliver(r *runner, msg models.Message) {
	s.mu.Lock()
	if s.runner != r || !s.receiveLocked(msg) {
		s.mu.Unlock()
		return
	}
	snap := s.commitLocked()
	s.mu.Unlock()
	s.emit(snap, "")
}

func (s *Session) setChannel(r *runner, state ChannelState) {
	s.mu.Lock()
	if s.closed || s.runner != r || s.channel == state {
		s.mu.Unlock()
		return
	}
	s.channel = state
	snap := s.commitLocked()
	s.mu.Unlock()
	s.emit(snap, "")
}
