package realtime

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func onlineSetFrom(t *testing.T, c *Connection) []uint64 {
	t.Helper()
	env := drainEnvelope(t, c)
	require.Equal(t, EventOnlineUsers, env.Event)
	var set []uint64
	require.NoError(t, json.Unmarshal(env.Payload, &set))
	return set
}

func newPresenceFixture() (*ConnectionRegistry, *PresenceTracker) {
	reg := NewConnectionRegistry()
	fan := NewFanout(reg, nil)
	return reg, NewPresenceTracker(reg, fan)
}

func TestPresenceJoinBroadcastsFullSet(t *testing.T) {
	reg, pres := newPresenceFixture()

	alice := NewConnection(nil, 1, 8)
	bob := NewConnection(nil, 2, 8)
	reg.Register(alice)
	reg.Register(bob)

	members := []uint64{1, 2}
	pres.Join(1, 10, members)
	assert.Equal(t, []uint64{1}, onlineSetFrom(t, alice))
	assert.Equal(t, []uint64{1}, onlineSetFrom(t, bob))

	pres.Join(2, 10, members)
	assert.Equal(t, []uint64{1, 2}, onlineSetFrom(t, alice))
	assert.Equal(t, []uint64{1, 2}, onlineSetFrom(t, bob))

	assert.True(t, pres.IsOnline(1))
	assert.True(t, pres.IsOnline(2))
}

func TestPresenceJoinWithoutConnectionStaysOffline(t *testing.T) {
	_, pres := newPresenceFixture()

	// 没有任何活跃连接的宣告不产生在线态
	pres.Join(5, 10, []uint64{5})
	assert.False(t, pres.IsOnline(5))
}

func TestPresenceLeaveLastRoomGoesOffline(t *testing.T) {
	reg, pres := newPresenceFixture()

	alice := NewConnection(nil, 1, 8)
	reg.Register(alice)

	pres.Join(1, 10, []uint64{1, 2})
	pres.Join(1, 20, []uint64{1, 3})
	drainAll(alice)

	pres.Leave(1, 10, []uint64{1, 2})
	assert.True(t, pres.IsOnline(1))

	pres.Leave(1, 20, []uint64{1, 3})
	assert.False(t, pres.IsOnline(1))
}

func TestPresenceDisconnectNotifiesEveryJoinedConversation(t *testing.T) {
	reg, pres := newPresenceFixture()

	alice := NewConnection(nil, 1, 8)
	bob := NewConnection(nil, 2, 8)
	carol := NewConnection(nil, 3, 8)
	reg.Register(alice)
	reg.Register(bob)
	reg.Register(carol)

	pres.Join(2, 10, []uint64{1, 2})
	pres.Join(3, 20, []uint64{1, 3})
	pres.Join(1, 10, []uint64{1, 2})
	pres.Join(1, 20, []uint64{1, 3})
	drainAll(alice)
	drainAll(bob)
	drainAll(carol)

	// 最后一条连接断开：两个会话的成员都要收到刷新后的名单
	reg.Unregister(alice)
	pres.OnDisconnect(1)

	assert.NotContains(t, onlineSetFrom(t, bob), uint64(1))
	assert.NotContains(t, onlineSetFrom(t, carol), uint64(1))
	assert.False(t, pres.IsOnline(1))
}

func TestPresenceUpdateMembersEvictsRemoved(t *testing.T) {
	reg, pres := newPresenceFixture()

	alice := NewConnection(nil, 1, 8)
	reg.Register(alice)

	pres.Join(1, 10, []uint64{1, 2, 3})
	drainAll(alice)

	// 用户 1 被移出会话 10，且没有其它会话上下文
	pres.UpdateMembers(10, []uint64{2, 3})
	assert.False(t, pres.IsOnline(1))
}

func drainAll(c *Connection) {
	for {
		select {
		case <-c.Outbox():
		default:
			return
		}
	}
}
