package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryMultiDevice(t *testing.T) {
	reg := NewConnectionRegistry()

	var offline []uint64
	reg.SetOfflineHook(func(uid uint64) { offline = append(offline, uid) })

	c1 := NewConnection(nil, 1, 4)
	c2 := NewConnection(nil, 1, 4)
	reg.Register(c1)
	reg.Register(c2)
	require.Equal(t, 2, reg.ConnectionCount(1))

	// 还有一条活跃连接，不触发下线
	reg.Unregister(c1)
	assert.Equal(t, 1, reg.ConnectionCount(1))
	assert.Empty(t, offline)

	reg.Unregister(c2)
	assert.Equal(t, 0, reg.ConnectionCount(1))
	assert.Equal(t, []uint64{1}, offline)
}

func TestRegistryDuplicateEventsAreIdempotent(t *testing.T) {
	reg := NewConnectionRegistry()

	fired := 0
	reg.SetOfflineHook(func(uint64) { fired++ })

	c := NewConnection(nil, 7, 4)
	reg.Register(c)
	reg.Register(c)
	require.Equal(t, 1, reg.ConnectionCount(7))

	reg.Unregister(c)
	reg.Unregister(c)
	assert.Equal(t, 1, fired)
}

func TestRegistryResolveSkipsOffline(t *testing.T) {
	reg := NewConnectionRegistry()

	c1 := NewConnection(nil, 1, 4)
	c2 := NewConnection(nil, 2, 4)
	reg.Register(c1)
	reg.Register(c2)

	conns := reg.Resolve([]uint64{1, 2, 99})
	assert.Len(t, conns, 2)
}

func TestConnectionPushNonBlocking(t *testing.T) {
	c := NewConnection(nil, 1, 1)

	require.True(t, c.Push([]byte("a")))
	// 缓冲已满，直接丢弃
	assert.False(t, c.Push([]byte("b")))

	c.Close()
	c.Close() // 幂等
	assert.False(t, c.Push([]byte("c")))
}
