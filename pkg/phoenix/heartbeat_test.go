package phoenix

import (
	"strconv"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/DeBrosOfficial/seastream/pkg/logging"
)

func newTestDriver(sess *fakeSession, mock *clock.Mock, interval time.Duration, factor int) *heartbeatDriver {
	ref := 0
	nextRef := func() string {
		ref++
		return strconv.Itoa(ref)
	}
	return newHeartbeatDriver(sess, mock, interval, factor, nextRef, logging.NewNopLogger())
}

func TestHeartbeat_SendsOnInterval(t *testing.T) {
	mock := clock.NewMock()
	sess := newFakeSession()
	h := newTestDriver(sess, mock, time.Second, 3)
	go h.run()
	defer h.Stop()

	for i := 0; i < 3; i++ {
		// Let the driver's ticker arm before advancing the clock, otherwise
		// the tick is lost.
		time.Sleep(5 * time.Millisecond)
		mock.Add(time.Second)
		h.touch(mock.Now()) // keep the connection alive
	}

	require.Eventually(t, func() bool {
		return sess.sentCount(EventHeartbeat) == 3
	}, 5*time.Second, 10*time.Millisecond)
	require.False(t, sess.isClosed())
}

func TestHeartbeat_ClosesSilentSession(t *testing.T) {
	mock := clock.NewMock()
	sess := newFakeSession()
	h := newTestDriver(sess, mock, time.Second, 3)
	go h.run()

	// No touch: silence accumulates past 3x the interval.
	for i := 0; i < 10 && !sess.isClosed(); i++ {
		mock.Add(time.Second)
		time.Sleep(5 * time.Millisecond)
	}
	require.True(t, sess.isClosed())
	h.Stop()

	// Heartbeats went out until the timeout fired, and the timeout fired no
	// later than one tick past 3x the interval of silence.
	sent := sess.sentCount(EventHeartbeat)
	require.GreaterOrEqual(t, sent, 1)
	require.LessOrEqual(t, sent, 3)
}

func TestHeartbeat_AnyTrafficCounts(t *testing.T) {
	mock := clock.NewMock()
	sess := newFakeSession()
	h := newTestDriver(sess, mock, time.Second, 3)
	go h.run()
	defer h.Stop()

	// Touch every other tick; silence never exceeds the timeout.
	for i := 0; i < 8; i++ {
		mock.Add(time.Second)
		if i%2 == 0 {
			h.touch(mock.Now())
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.False(t, sess.isClosed())
}

func TestHeartbeat_SendFailureClosesSession(t *testing.T) {
	mock := clock.NewMock()
	sess := newFakeSession()
	sess.sendErr = &TransportError{Op: "send", Err: ErrSocketClosed}
	h := newTestDriver(sess, mock, time.Second, 3)
	go h.run()

	for i := 0; i < 5 && !sess.isClosed(); i++ {
		mock.Add(time.Second)
		time.Sleep(5 * time.Millisecond)
	}
	require.True(t, sess.isClosed())
	h.Stop()
}
