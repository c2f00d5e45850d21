package phoenix

import (
	"context"

	"github.com/google/uuid"
)

// Subscription is the caller-facing handle for one joined topic: a receiver
// over the channel's delivery queue plus the close operation that issues the
// leave handshake.
//
// Dropping a Subscription without calling Close does NOT leave the topic;
// frames keep being delivered (and eventually dropped) until Close is called
// or the socket shuts down.
//
// Multiple subscriptions for the same topic share one delivery queue, so
// each frame goes to whichever receiver is ready first.
type Subscription struct {
	id      string
	socket  *Socket
	channel *Channel
}

func newSubscription(s *Socket, ch *Channel) *Subscription {
	return &Subscription{
		id:      uuid.New().String(),
		socket:  s,
		channel: ch,
	}
}

// ID returns the unique identifier of this handle.
func (s *Subscription) ID() string { return s.id }

// Topic returns the topic this subscription is joined to.
func (s *Subscription) Topic() string { return s.channel.topic }

// State returns the current lifecycle state of the underlying channel.
func (s *Subscription) State() ChannelState { return s.channel.State() }

// Receive blocks until a frame is available, the context is done, or the
// channel terminates. A cleanly closed channel yields ErrChannelClosed; a
// failed one yields its terminal error (e.g. a *RejoinError).
func (s *Subscription) Receive(ctx context.Context) (*Message, error) {
	select {
	case msg, ok := <-s.channel.queue:
		if !ok {
			if err := s.channel.Err(); err != nil {
				return nil, err
			}
			return nil, ErrChannelClosed
		}
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close leaves the topic. The channel closes locally even when the leave
// acknowledgement never arrives; the returned error reports handshake
// problems but the subscription is dead either way.
func (s *Subscription) Close(ctx context.Context) error {
	return s.socket.leave(ctx, s.channel.topic)
}
