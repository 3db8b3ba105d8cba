package realtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTypingFixture() (*ConnectionRegistry, *TypingCoordinator, *time.Time) {
	reg := NewConnectionRegistry()
	fan := NewFanout(reg, nil)
	tc := NewTypingCoordinator(fan)

	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tc.now = func() time.Time { return clock }
	return reg, tc, &clock
}

func TestTypingStartIsCoalesced(t *testing.T) {
	reg, tc, _ := newTypingFixture()

	bob := NewConnection(nil, 2, 8)
	reg.Register(bob)

	tc.StartTyping(10, 1, []uint64{2})
	env := drainEnvelope(t, bob)
	assert.Equal(t, EventStartTyping, env.Event)

	// TTL 内的重复击键只续期，不重复扇出
	tc.StartTyping(10, 1, []uint64{2})
	select {
	case <-bob.Outbox():
		t.Fatal("重复 START_TYPING 不应再次扇出")
	default:
	}
}

func TestTypingExpiresAfterTTL(t *testing.T) {
	_, tc, clock := newTypingFixture()

	tc.StartTyping(10, 1, nil)
	require.Equal(t, []uint64{1}, tc.Typists(10))

	// 刚好到期还未过期
	*clock = clock.Add(TypingTTL)
	assert.Equal(t, []uint64{1}, tc.Typists(10))

	*clock = clock.Add(time.Millisecond)
	assert.Empty(t, tc.Typists(10))
}

func TestTypingStartAfterExpiryFansOutAgain(t *testing.T) {
	reg, tc, clock := newTypingFixture()

	bob := NewConnection(nil, 2, 8)
	reg.Register(bob)

	tc.StartTyping(10, 1, []uint64{2})
	drainAll(bob)

	*clock = clock.Add(TypingTTL + time.Millisecond)

	// 过期后的下一次击键视为新的输入轮次
	tc.StartTyping(10, 1, []uint64{2})
	env := drainEnvelope(t, bob)
	assert.Equal(t, EventStartTyping, env.Event)
}

func TestTypingStopWithoutEntryIsSilent(t *testing.T) {
	reg, tc, _ := newTypingFixture()

	bob := NewConnection(nil, 2, 8)
	reg.Register(bob)

	tc.StopTyping(10, 1, []uint64{2})
	select {
	case <-bob.Outbox():
		t.Fatal("没有输入条目时 STOP_TYPING 不应扇出")
	default:
	}

	tc.StartTyping(10, 1, []uint64{2})
	drainAll(bob)
	tc.StopTyping(10, 1, []uint64{2})
	env := drainEnvelope(t, bob)
	assert.Equal(t, EventStopTyping, env.Event)
}

func TestTypingSweepRemovesOnlyExpired(t *testing.T) {
	_, tc, clock := newTypingFixture()

	tc.StartTyping(10, 1, nil)
	*clock = clock.Add(2 * time.Second)
	tc.StartTyping(10, 2, nil)

	// 用户 1 的条目已过期，用户 2 的还在
	*clock = clock.Add(TypingTTL - time.Second)
	assert.Equal(t, 1, tc.Sweep())
	assert.Equal(t, []uint64{2}, tc.Typists(10))
}
