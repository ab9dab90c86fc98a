package client

import (
	"testing"
	"time"

	"github.com/aeolun/chatsync/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

type typingFixture struct {
	clock     *ManualClock
	tc        *TypingCoordinator
	sent      []time.Time
	indicator []string
	sendErr   error
}

func newTypingFixture() *typingFixture {
	f := &typingFixture{clock: NewManualClock(testEpoch)}
	send := func(frame protocol.OutboundFrame) error {
		if f.sendErr != nil {
			return f.sendErr
		}
		if _, ok := frame.(protocol.TypingPing); ok {
			f.sent = append(f.sent, f.clock.Now())
		}
		return nil
	}
	f.tc = NewTypingCoordinator(f.clock, send, func(text string) {
		f.indicator = append(f.indicator, text)
	})
	return f
}

func TestKeystrokeSendsOnePing(t *testing.T) {
	f := newTypingFixture()

	f.tc.OnLocalKeystroke(General)
	assert.Len(t, f.sent, 1)
	assert.True(t, f.tc.OutgoingPending())

	f.clock.Advance(500 * time.Millisecond)
	f.tc.OnLocalKeystroke(General)
	assert.Len(t, f.sent, 1, "second keystroke within the idle window must not ping")
}

func TestPingAgainAfterIdleWindow(t *testing.T) {
	f := newTypingFixture()

	f.tc.OnLocalKeystroke(General)
	f.clock.Advance(DefaultTypingIdle)
	assert.False(t, f.tc.OutgoingPending())

	f.tc.OnLocalKeystroke(General)
	require.Len(t, f.sent, 2)
	assert.Equal(t, DefaultTypingIdle, f.sent[1].Sub(f.sent[0]))
}

func TestPingThrottledWithinInterval(t *testing.T) {
	f := newTypingFixture()

	f.tc.OnLocalKeystroke(General)
	f.tc.OnInputCleared()

	f.clock.Advance(600 * time.Millisecond)
	f.tc.OnLocalKeystroke(General)
	assert.Len(t, f.sent, 1, "ping within 1000ms of the last one")

	f.tc.OnInputCleared()
	f.clock.Advance(400 * time.Millisecond)
	f.tc.OnLocalKeystroke(General)
	assert.Len(t, f.sent, 2, "ping once 1000ms have passed")
}

func TestNoPingOutsideGeneral(t *testing.T) {
	f := newTypingFixture()

	f.tc.OnLocalKeystroke(Private("bob"))
	assert.Empty(t, f.sent)
	assert.False(t, f.tc.OutgoingPending())
}

func TestChatSwitchCancelsWithoutFrame(t *testing.T) {
	f := newTypingFixture()

	f.tc.OnLocalKeystroke(General)
	require.True(t, f.tc.OutgoingPending())

	f.tc.OnChatSwitch()
	assert.False(t, f.tc.OutgoingPending())
	assert.Len(t, f.sent, 1)
	assert.Equal(t, 0, f.clock.Pending())
}

func TestSendCancelsOutgoingWindow(t *testing.T) {
	f := newTypingFixture()

	f.tc.OnLocalKeystroke(General)
	f.tc.OnSend()
	assert.False(t, f.tc.OutgoingPending())

	f.clock.Advance(DefaultTypingPingInterval)
	f.tc.OnLocalKeystroke(General)
	assert.Len(t, f.sent, 2)
}

func TestFailedPingIsRetried(t *testing.T) {
	f := newTypingFixture()
	f.sendErr = ErrNotConnected

	f.tc.OnLocalKeystroke(General)
	f.tc.OnInputCleared()
	f.sendErr = nil

	f.tc.OnLocalKeystroke(General)
	assert.Len(t, f.sent, 1, "a dropped ping does not start the throttle interval")
}

func TestInboundIndicatorExpires(t *testing.T) {
	f := newTypingFixture()

	f.tc.OnInboundTypingAggregate("alice está digitando...", false)
	assert.Equal(t, "alice está digitando...", f.tc.IndicatorText())

	f.clock.Advance(DefaultTypingExpiry - time.Millisecond)
	assert.Equal(t, "alice está digitando...", f.tc.IndicatorText())

	f.clock.Advance(time.Millisecond)
	assert.Empty(t, f.tc.IndicatorText())
	assert.Equal(t, []string{"alice está digitando...", ""}, f.indicator)
}

func TestInboundIndicatorRestartsExpiry(t *testing.T) {
	f := newTypingFixture()

	f.tc.OnInboundTypingAggregate("alice está digitando...", false)
	f.clock.Advance(2 * time.Second)
	f.tc.OnInboundTypingAggregate("alice e bob estão digitando...", false)
	f.clock.Advance(2 * time.Second)

	assert.Equal(t, "alice e bob estão digitando...", f.tc.IndicatorText())
	assert.Equal(t, 1, f.clock.Pending())

	f.clock.Advance(time.Second)
	assert.Empty(t, f.tc.IndicatorText())
}

func TestInboundStopClearsImmediately(t *testing.T) {
	f := newTypingFixture()

	f.tc.OnInboundTypingAggregate("alice está digitando...", false)
	f.tc.OnInboundTypingAggregate("Ninguém está digitando.", true)

	assert.Empty(t, f.tc.IndicatorText())
	assert.Equal(t, 0, f.clock.Pending())
}

func TestInboundPrivateTyping(t *testing.T) {
	f := newTypingFixture()

	f.tc.OnInboundTypingPrivate("bob", true)
	assert.Equal(t, "bob está digitando...", f.tc.IndicatorText())

	f.tc.OnInboundTypingPrivate("bob", false)
	assert.Empty(t, f.tc.IndicatorText())
}

func TestClearAggregateOnlyClearsAggregateText(t *testing.T) {
	f := newTypingFixture()

	f.tc.OnInboundTypingAggregate("alice está digitando...", false)
	f.tc.ClearAggregate()
	assert.Empty(t, f.tc.IndicatorText())
	assert.Equal(t, 0, f.clock.Pending())

	f.tc.OnInboundTypingPrivate("bob", true)
	f.tc.ClearAggregate()
	assert.Equal(t, "bob está digitando...", f.tc.IndicatorText())

	// a private indicator replacing an aggregate is no longer aggregate text
	f.tc.OnInboundTypingAggregate("carol está digitando...", false)
	f.tc.OnInboundTypingPrivate("bob", true)
	f.tc.ClearAggregate()
	assert.Equal(t, "bob está digitando...", f.tc.IndicatorText())
}

func TestResetCancelsEverything(t *testing.T) {
	f := newTypingFixture()

	f.tc.OnLocalKeystroke(General)
	f.tc.OnInboundTypingPrivate("bob", true)
	f.tc.Reset()

	assert.Equal(t, 0, f.clock.Pending())
	assert.Empty(t, f.tc.IndicatorText())
}

// TestPingSpacingProperty drives random keystroke/clear/advance sequences and
// checks that consecutive pings are never closer than the ping interval.
func TestPingSpacingProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		f := newTypingFixture()

		steps := rapid.IntRange(1, 60).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			switch rapid.IntRange(0, 3).Draw(t, "action") {
			case 0, 1:
				f.tc.OnLocalKeystroke(General)
			case 2:
				f.tc.OnInputCleared()
			case 3:
				ms := rapid.IntRange(0, 2500).Draw(t, "advance_ms")
				f.clock.Advance(time.Duration(ms) * time.Millisecond)
			}
		}

		for i := 1; i < len(f.sent); i++ {
			if gap := f.sent[i].Sub(f.sent[i-1]); gap < DefaultTypingPingInterval {
				t.Fatalf("pings %d and %d only %v apart", i-1, i, gap)
			}
		}
	})
}
