package phoenix

import (
	"sync/atomic"

	"github.com/DeBrosOfficial/seastream/pkg/logging"
	"go.uber.org/zap"
)

// ChannelState is the lifecycle state of a channel.
type ChannelState int32

const (
	// StateJoining means the join handshake is in flight (initial join or
	// rejoin after reconnect).
	StateJoining ChannelState = iota
	// StateJoined means the subscription is live and frames are delivered.
	StateJoined
	// StateLeaving means a leave handshake is in flight.
	StateLeaving
	// StateClosed is terminal: the channel was closed cleanly.
	StateClosed
	// StateErrored is terminal: the channel failed and will not recover.
	StateErrored
)

func (s ChannelState) String() string {
	switch s {
	case StateJoining:
		return "joining"
	case StateJoined:
		return "joined"
	case StateLeaving:
		return "leaving"
	case StateClosed:
		return "closed"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are possible.
func (s ChannelState) Terminal() bool {
	return s == StateClosed || s == StateErrored
}

// validTransitions encodes the channel state machine. Errored is reachable
// from every non-terminal state; Joining is re-entered from Joined or
// Leaving only through a rejoin after reconnect.
var validTransitions = map[ChannelState][]ChannelState{
	StateJoining: {StateJoined, StateErrored, StateClosed},
	StateJoined:  {StateLeaving, StateJoining, StateErrored, StateClosed},
	StateLeaving: {StateClosed, StateJoining, StateErrored},
}

// Channel is one logical subscription to one topic. All mutation happens on
// the socket's coordinator goroutine; receivers only consume the queue and
// read the terminal error after the queue is closed.
type Channel struct {
	topic   string
	state   atomic.Int32
	joinRef string // ref of the most recent join frame, for reply correlation
	queue   chan *Message
	err     error // terminal error; written before queue close
	dropped atomic.Uint64
	logger  *logging.ColoredLogger
}

func newChannel(topic string, queueSize int, logger *logging.ColoredLogger) *Channel {
	c := &Channel{
		topic:  topic,
		queue:  make(chan *Message, queueSize),
		logger: logger,
	}
	c.state.Store(int32(StateJoining))
	return c
}

// Topic returns the topic identifier this channel is subscribed to.
func (c *Channel) Topic() string { return c.topic }

// State returns the current lifecycle state.
func (c *Channel) State() ChannelState { return ChannelState(c.state.Load()) }

// Dropped returns how many frames were discarded because the delivery queue
// was full.
func (c *Channel) Dropped() uint64 { return c.dropped.Load() }

// Err returns the terminal error, if any. Only meaningful after the delivery
// queue has been closed.
func (c *Channel) Err() error { return c.err }

// transition moves the channel to a new state, logging if the transition is
// not part of the state machine. Coordinator-only.
func (c *Channel) transition(to ChannelState) {
	from := c.State()
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			c.state.Store(int32(to))
			c.logger.ComponentDebug(logging.ComponentChannel, "state transition",
				zap.String("topic", c.topic),
				zap.Stringer("from", from),
				zap.Stringer("to", to))
			return
		}
	}
	c.logger.ComponentWarn(logging.ComponentChannel, "ignoring invalid state transition",
		zap.String("topic", c.topic),
		zap.Stringer("from", from),
		zap.Stringer("to", to))
}

// deliver enqueues one frame without blocking. A full queue drops the frame:
// a slow consumer must never stall dispatch for other channels.
// Coordinator-only.
func (c *Channel) deliver(msg *Message) bool {
	select {
	case c.queue <- msg:
		return true
	default:
		c.dropped.Add(1)
		c.logger.ComponentWarn(logging.ComponentChannel, "delivery queue full, dropping frame",
			zap.String("topic", c.topic),
			zap.Uint64("dropped_total", c.dropped.Load()))
		return false
	}
}

// closeClean terminates the channel without error. Receivers draining the
// queue observe ErrChannelClosed afterwards. Coordinator-only.
func (c *Channel) closeClean() {
	if c.State().Terminal() {
		return
	}
	c.transition(StateClosed)
	close(c.queue)
}

// fail terminates the channel with an error that receivers observe once the
// queue drains. Coordinator-only.
func (c *Channel) fail(err error) {
	if c.State().Terminal() {
		return
	}
	c.err = err
	c.transition(StateErrored)
	close(c.queue)
}
