package phoenix

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeSession is an in-memory Session: frames written by the socket are
// exposed on sent, frames pushed by the test appear on the inbound stream.
type fakeSession struct {
	mu      sync.Mutex
	sendErr error
	sent    []*Message
	sentCh  chan *Message

	inbound   chan *Message
	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		sentCh:  make(chan *Message, 64),
		inbound: make(chan *Message, 64),
		closed:  make(chan struct{}),
	}
}

func (f *fakeSession) Send(msg *Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, msg)
	select {
	case f.sentCh <- msg:
	default:
	}
	return nil
}

func (f *fakeSession) Inbound() <-chan *Message { return f.inbound }

func (f *fakeSession) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
		close(f.inbound)
	})
	return nil
}

func (f *fakeSession) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

// push delivers a frame to the socket as if it arrived from the server.
func (f *fakeSession) push(msg *Message) {
	f.inbound <- msg
}

func (f *fakeSession) pushReply(topic, ref, status string) {
	payload, _ := json.Marshal(Reply{Status: status, Response: json.RawMessage(`{}`)})
	f.push(&Message{Topic: topic, Event: EventReply, Payload: payload, Ref: ref})
}

func (f *fakeSession) pushBroadcast(topic, event string, payload string) {
	f.push(&Message{Topic: topic, Event: event, Payload: json.RawMessage(payload)})
}

// nextSent waits for the socket to write a frame.
func (f *fakeSession) nextSent(t *testing.T) *Message {
	t.Helper()
	select {
	case msg := <-f.sentCh:
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a sent frame")
		return nil
	}
}

// nextSentEvent waits for the next frame with the given event, skipping
// heartbeats and other noise.
func (f *fakeSession) nextSentEvent(t *testing.T, event string) *Message {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case msg := <-f.sentCh:
			if msg.Event == event {
				return msg
			}
		case <-deadline:
			t.Fatalf("timed out waiting for a %s frame", event)
			return nil
		}
	}
}

func (f *fakeSession) sentCount(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, msg := range f.sent {
		if msg.Event == event {
			n++
		}
	}
	return n
}

// fakeDialer hands out prepared sessions in order; once exhausted, every
// dial fails.
type fakeDialer struct {
	mu       sync.Mutex
	sessions []*fakeSession
	dials    int
}

func newFakeDialer(sessions ...*fakeSession) *fakeDialer {
	return &fakeDialer{sessions: sessions}
}

func (d *fakeDialer) Dial(ctx context.Context) (Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if len(d.sessions) == 0 {
		return nil, &ConnectionError{Endpoint: "fake", Err: errors.New("no sessions left")}
	}
	s := d.sessions[0]
	d.sessions = d.sessions[1:]
	return s, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// testConfig returns a socket config with short timeouts and a heartbeat
// interval long enough to never interfere unless a test drives the clock.
func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.HeartbeatInterval = time.Hour
	cfg.JoinTimeout = 2 * time.Second
	cfg.LeaveTimeout = 2 * time.Second
	cfg.QueueSize = 16
	cfg.Backoff = BackoffConfig{
		InitialDelay: time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     10 * time.Millisecond,
		MaxAttempts:  0,
	}
	return cfg
}

// joinOK performs a successful join handshake against the fake session.
func joinOK(t *testing.T, s *Socket, sess *fakeSession, topic string) *Subscription {
	t.Helper()

	type res struct {
		sub *Subscription
		err error
	}
	done := make(chan res, 1)
	go func() {
		sub, err := s.Join(context.Background(), topic)
		done <- res{sub, err}
	}()

	join := sess.nextSentEvent(t, EventJoin)
	if join.Topic != topic {
		t.Fatalf("expected join for %q, got %q", topic, join.Topic)
	}
	sess.pushReply(topic, join.Ref, StatusOK)

	select {
	case r := <-done:
		if r.err != nil {
			t.Fatalf("join failed: %v", r.err)
		}
		return r.sub
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for join to resolve")
		return nil
	}
}

// eventPayload builds a trivially distinguishable broadcast payload.
func eventPayload(i int) string {
	return fmt.Sprintf(`{"seq":%d}`, i)
}
