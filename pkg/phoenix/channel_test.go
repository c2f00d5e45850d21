package phoenix

import (
	"errors"
	"testing"

	"github.com/DeBrosOfficial/seastream/pkg/logging"
	"github.com/stretchr/testify/require"
)

func newTestChannel(t *testing.T, size int) *Channel {
	t.Helper()
	return newChannel("collection:test", size, logging.NewNopLogger())
}

func TestChannel_Lifecycle(t *testing.T) {
	ch := newTestChannel(t, 4)
	require.Equal(t, StateJoining, ch.State())

	ch.transition(StateJoined)
	require.Equal(t, StateJoined, ch.State())

	ch.transition(StateLeaving)
	require.Equal(t, StateLeaving, ch.State())

	ch.closeClean()
	require.Equal(t, StateClosed, ch.State())
	require.True(t, ch.State().Terminal())
	require.NoError(t, ch.Err())
}

func TestChannel_InvalidTransitionIgnored(t *testing.T) {
	ch := newTestChannel(t, 4)

	// Joining cannot go straight to Leaving.
	ch.transition(StateLeaving)
	require.Equal(t, StateJoining, ch.State())

	ch.closeClean()
	// Terminal states are final.
	ch.transition(StateJoining)
	require.Equal(t, StateClosed, ch.State())
}

func TestChannel_RejoinReentersJoining(t *testing.T) {
	ch := newTestChannel(t, 4)
	ch.transition(StateJoined)
	ch.transition(StateJoining)
	require.Equal(t, StateJoining, ch.State())
}

func TestChannel_FailRecordsTerminalError(t *testing.T) {
	ch := newTestChannel(t, 4)
	cause := errors.New("boom")
	ch.fail(cause)

	require.Equal(t, StateErrored, ch.State())
	require.ErrorIs(t, ch.Err(), cause)

	// Idempotent: a later clean close must not clobber the error.
	ch.closeClean()
	require.Equal(t, StateErrored, ch.State())
}

func TestChannel_DeliverDropsWhenFull(t *testing.T) {
	ch := newTestChannel(t, 2)

	require.True(t, ch.deliver(&Message{Topic: ch.Topic()}))
	require.True(t, ch.deliver(&Message{Topic: ch.Topic()}))
	require.False(t, ch.deliver(&Message{Topic: ch.Topic()}))
	require.Equal(t, uint64(1), ch.Dropped())
}

func TestChannelState_String(t *testing.T) {
	require.Equal(t, "joining", StateJoining.String())
	require.Equal(t, "joined", StateJoined.String())
	require.Equal(t, "leaving", StateLeaving.String())
	require.Equal(t, "closed", StateClosed.String())
	require.Equal(t, "errored", StateErrored.String())
}
