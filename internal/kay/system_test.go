package kay

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metrosim/substrate/internal/compact"
	serr "github.com/metrosim/substrate/internal/errors"
)

type increment struct {
	Amount int64
	Seq    int64
}

var incrementTag = TagOf("increment")

type counter struct {
	mutex    sync.Mutex
	total    int64
	seqs     []int64
	active   atomic.Int32
	overlaps atomic.Int32
}

func (c *counter) HandleIncrement(m *increment) error {
	if c.active.Add(1) > 1 {
		c.overlaps.Add(1)
	}
	defer c.active.Add(-1)

	c.mutex.Lock()
	c.total += m.Amount
	c.seqs = append(c.seqs, m.Seq)
	c.mutex.Unlock()
	return nil
}

func newCounterSystem(t *testing.T) (*System, ActorTypeID) {
	t.Helper()

	table := NewDispatchTable()
	typeID, err := table.RegisterActorType("counter")
	require.NoError(t, err)
	require.NoError(t, table.Register(typeID, incrementTag, func(recipient interface{}, msg Message) error {
		m, err := compact.FromImageOf[increment](msg.Image)
		if err != nil {
			return err
		}
		return recipient.(*counter).HandleIncrement(&m)
	}))

	cfg := DefaultConfig()
	cfg.LogLevel = "error"
	return NewSystem(cfg, table), typeID
}

func sendIncrement(t *testing.T, sys *System, to ActorID, amount, seq int64) {
	t.Helper()
	m := increment{Amount: amount, Seq: seq}
	require.NoError(t, sys.Send(to, incrementTag, compact.ImageOf(&m)))
}

func TestSystem_DeliversAndDrains(t *testing.T) {
	sys, typeID := newCounterSystem(t)
	sys.Start()
	defer sys.Stop()

	c := &counter{}
	id, err := sys.Spawn(typeID, c)
	require.NoError(t, err)

	for i := int64(1); i <= 3; i++ {
		sendIncrement(t, sys, id, i, i)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, sys.Drain(ctx))

	assert.Equal(t, int64(6), c.total)
}

func TestSystem_PerSenderFIFO(t *testing.T) {
	sys, typeID := newCounterSystem(t)
	sys.Start()
	defer sys.Stop()

	c := &counter{}
	id, err := sys.Spawn(typeID, c)
	require.NoError(t, err)

	const n = 500
	for i := int64(0); i < n; i++ {
		sendIncrement(t, sys, id, 1, i)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, sys.Drain(ctx))

	require.Len(t, c.seqs, n)
	for i := int64(0); i < n; i++ {
		assert.Equal(t, i, c.seqs[i])
	}
}

func TestSystem_ExactlyOnceInFlight(t *testing.T) {
	sys, typeID := newCounterSystem(t)
	sys.Start()
	defer sys.Stop()

	c := &counter{}
	id, err := sys.Spawn(typeID, c)
	require.NoError(t, err)

	// Hammer one actor from many senders; its handler must never observe
	// itself running twice at once.
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				m := increment{Amount: 1}
				_ = sys.Send(id, incrementTag, compact.ImageOf(&m))
			}
		}()
	}
	wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, sys.Drain(ctx))

	assert.Equal(t, int64(1600), c.total)
	assert.Equal(t, int32(0), c.overlaps.Load())
}

func TestSystem_UnknownRecipient(t *testing.T) {
	sys, _ := newCounterSystem(t)
	sys.Start()
	defer sys.Stop()

	m := increment{Amount: 1}
	err := sys.Send(ActorID(12345), incrementTag, compact.ImageOf(&m))
	assert.True(t, stderrors.Is(err, serr.ErrUnknownRecipient))
}

func TestSystem_RetireSealsAcceptanceThenRetires(t *testing.T) {
	sys, typeID := newCounterSystem(t)
	sys.Start()
	defer sys.Stop()

	c := &counter{}
	id, err := sys.Spawn(typeID, c)
	require.NoError(t, err)

	sendIncrement(t, sys, id, 5, 0)
	require.NoError(t, sys.Retire(id))

	// Sealed: new sends fail while queued work still drains.
	m := increment{Amount: 100}
	err = sys.Send(id, incrementTag, compact.ImageOf(&m))
	assert.True(t, stderrors.Is(err, serr.ErrUnknownRecipient))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, sys.Drain(ctx))

	assert.Equal(t, int64(5), c.total)

	require.Eventually(t, func() bool {
		state, err := sys.State(id)
		return err == nil && state == ActorRetired
	}, 2*time.Second, 5*time.Millisecond)

	// The identifier is never reassigned.
	c2 := &counter{}
	id2, err := sys.Spawn(typeID, c2)
	require.NoError(t, err)
	assert.NotEqual(t, id, id2)
}

func TestSystem_SpawnBeforeStartQueues(t *testing.T) {
	sys, typeID := newCounterSystem(t)

	c := &counter{}
	id, err := sys.Spawn(typeID, c)
	require.NoError(t, err)

	state, err := sys.State(id)
	require.NoError(t, err)
	assert.Equal(t, ActorRegistered, state)

	sendIncrement(t, sys, id, 7, 0)
	assert.Equal(t, int64(0), c.total)

	sys.Start()
	defer sys.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, sys.Drain(ctx))
	assert.Equal(t, int64(7), c.total)
}

func TestDispatchTable_DuplicateAndMissing(t *testing.T) {
	table := NewDispatchTable()
	typeID, err := table.RegisterActorType("counter")
	require.NoError(t, err)

	noop := func(interface{}, Message) error { return nil }
	require.NoError(t, table.Register(typeID, incrementTag, noop))

	err = table.Register(typeID, incrementTag, noop)
	assert.True(t, stderrors.Is(err, serr.ErrDuplicateDispatchEntry))

	_, err = table.Resolve(typeID, TagOf("unregistered"))
	assert.True(t, stderrors.Is(err, serr.ErrMissingHandler))

	table.Freeze()
	err = table.Register(typeID, TagOf("late"), noop)
	assert.True(t, stderrors.Is(err, serr.ErrDuplicateDispatchEntry))
}

type pingMsg struct {
	Value int64
	From  ActorID
}

type pongMsg struct {
	Value int64
}

var (
	pingTag = TagOf("ping")
	pongTag = TagOf("pong")
)

type ponger struct {
	sys  *System
	self ActorID
}

func (p *ponger) Setup(sys *System, self ActorID) error {
	p.sys = sys
	p.self = self
	return nil
}

func (p *ponger) HandlePing(m *pingMsg) error {
	reply := pongMsg{Value: m.Value}
	return p.sys.SendFrom(p.self, m.From, pongTag, compact.ImageOf(&reply))
}

type pinger struct {
	mutex    sync.Mutex
	received []int64
}

func (p *pinger) HandlePong(m *pongMsg) error {
	p.mutex.Lock()
	p.received = append(p.received, m.Value)
	p.mutex.Unlock()
	return nil
}

func TestSystem_PingPongRoundTrip(t *testing.T) {
	table := NewDispatchTable()

	pongerType, err := table.RegisterActorType("ponger")
	require.NoError(t, err)
	require.NoError(t, table.Register(pongerType, pingTag, func(r interface{}, msg Message) error {
		m, err := compact.FromImageOf[pingMsg](msg.Image)
		if err != nil {
			return err
		}
		return r.(*ponger).HandlePing(&m)
	}))

	pingerType, err := table.RegisterActorType("pinger")
	require.NoError(t, err)
	require.NoError(t, table.Register(pingerType, pongTag, func(r interface{}, msg Message) error {
		m, err := compact.FromImageOf[pongMsg](msg.Image)
		if err != nil {
			return err
		}
		return r.(*pinger).HandlePong(&m)
	}))

	cfg := DefaultConfig()
	cfg.LogLevel = "error"
	sys := NewSystem(cfg, table)
	sys.Start()
	defer sys.Stop()

	pong := &ponger{}
	pongID, err := sys.Spawn(pongerType, pong)
	require.NoError(t, err)

	ping := &pinger{}
	pingID, err := sys.Spawn(pingerType, ping)
	require.NoError(t, err)

	for _, v := range []int64{1, 2, 3} {
		m := pingMsg{Value: v, From: pingID}
		require.NoError(t, sys.Send(pongID, pingTag, compact.ImageOf(&m)))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, sys.Drain(ctx))

	assert.Equal(t, []int64{1, 2, 3}, ping.received)
}
