package remote

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metrosim/substrate/internal/compact"
	"github.com/metrosim/substrate/internal/kay"
)

type report struct {
	Value int64
}

var reportTag = kay.TagOf("report")

type collector struct {
	mutex  sync.Mutex
	values []int64
}

func (c *collector) HandleReport(m *report) error {
	c.mutex.Lock()
	c.values = append(c.values, m.Value)
	c.mutex.Unlock()
	return nil
}

func (c *collector) snapshot() []int64 {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return append([]int64(nil), c.values...)
}

func newCollectorSystem(t *testing.T) (*kay.System, *collector, kay.ActorID) {
	t.Helper()

	table := kay.NewDispatchTable()
	typeID, err := table.RegisterActorType("collector")
	require.NoError(t, err)
	require.NoError(t, table.Register(typeID, reportTag, func(r interface{}, msg kay.Message) error {
		m, err := compact.FromImageOf[report](msg.Image)
		if err != nil {
			return err
		}
		return r.(*collector).HandleReport(&m)
	}))

	cfg := kay.DefaultConfig()
	cfg.LogLevel = "error"
	sys := kay.NewSystem(cfg, table)
	sys.Start()
	t.Cleanup(sys.Stop)

	c := &collector{}
	id, err := sys.Spawn(typeID, c)
	require.NoError(t, err)
	return sys, c, id
}

func TestNode_InMemoryDelivery(t *testing.T) {
	sysA, _, _ := newCollectorSystem(t)
	sysB, collB, idB := newCollectorSystem(t)

	nodeA := NewNode("a", sysA, &InMemoryTransport{})
	require.NoError(t, nodeA.Start("mem://a"))
	defer nodeA.Stop()

	nodeB := NewNode("b", sysB, &InMemoryTransport{})
	require.NoError(t, nodeB.Start("mem://b"))
	defer nodeB.Stop()

	for _, v := range []int64{10, 20, 30} {
		m := report{Value: v}
		require.NoError(t, nodeA.Send("mem://b", idB, reportTag, compact.ImageOf(&m)))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, sysB.Drain(ctx))

	assert.Equal(t, []int64{10, 20, 30}, collB.snapshot())
}

func TestNode_InMemoryUnknownRecipient(t *testing.T) {
	sysA, _, _ := newCollectorSystem(t)
	sysB, _, _ := newCollectorSystem(t)

	nodeA := NewNode("a", sysA, &InMemoryTransport{})
	require.NoError(t, nodeA.Start("mem://a2"))
	defer nodeA.Stop()

	nodeB := NewNode("b", sysB, &InMemoryTransport{})
	require.NoError(t, nodeB.Start("mem://b2"))
	defer nodeB.Stop()

	m := report{Value: 1}
	err := nodeA.Send("mem://b2", kay.ActorID(99999), reportTag, compact.ImageOf(&m))
	require.Error(t, err)
}

func TestQUICTransport_RoundTrip(t *testing.T) {
	var (
		mutex    sync.Mutex
		received []Envelope
	)

	server := &QUICTransport{}
	require.NoError(t, server.Start("127.0.0.1:0", func(env Envelope) error {
		mutex.Lock()
		received = append(received, env)
		mutex.Unlock()
		return nil
	}))
	defer server.Stop()

	client := &QUICTransport{}
	require.NoError(t, client.Start("127.0.0.1:0", func(Envelope) error { return nil }))
	defer client.Stop()

	env := Envelope{
		SenderNode:    "client",
		Recipient:     7,
		Tag:           uint32(reportTag),
		Image:         []byte{1, 2, 3, 4},
		TimestampUnix: NowUnix(),
	}
	require.NoError(t, client.Send(server.Address(), env))

	require.Eventually(t, func() bool {
		mutex.Lock()
		defer mutex.Unlock()
		return len(received) == 1
	}, 5*time.Second, 10*time.Millisecond)

	mutex.Lock()
	got := received[0]
	mutex.Unlock()
	assert.Equal(t, uint64(7), got.Recipient)
	assert.Equal(t, []byte{1, 2, 3, 4}, got.Image)
}

func TestNode_QUICDelivery(t *testing.T) {
	sysA, _, _ := newCollectorSystem(t)
	sysB, collB, idB := newCollectorSystem(t)

	nodeA := NewNode("a", sysA, &QUICTransport{})
	require.NoError(t, nodeA.Start("127.0.0.1:0"))
	defer nodeA.Stop()

	nodeB := NewNode("b", sysB, &QUICTransport{})
	require.NoError(t, nodeB.Start("127.0.0.1:0"))
	defer nodeB.Stop()

	m := report{Value: 42}
	require.NoError(t, nodeA.Send(nodeB.Address(), idB, reportTag, compact.ImageOf(&m)))

	require.Eventually(t, func() bool {
		vals := collB.snapshot()
		return len(vals) == 1 && vals[0] == 42
	}, 5*time.Second, 10*time.Millisecond)
}
