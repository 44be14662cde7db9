// Package pingpong is a small two-actor exchange used by the demo binary
// and as the reference input for dispatch generation. Its registration file
// is generated by substrate-gen and checked in.
package pingpong

import (
	"sync"

	"github.com/metrosim/substrate/internal/compact"
	"github.com/metrosim/substrate/internal/kay"
)

// Ping asks a Ponger to echo a value back to the sender.
//
//substrate:message
type Ping struct {
	Value int64
	From  kay.ActorID
}

// Pong is the echo reply.
//
//substrate:message
type Pong struct {
	Value int64
}

// Ponger replies to every Ping with a Pong carrying the same value.
type Ponger struct {
	sys  *kay.System
	self kay.ActorID
}

func (p *Ponger) Setup(sys *kay.System, self kay.ActorID) error {
	p.sys = sys
	p.self = self
	return nil
}

func (p *Ponger) HandlePing(m *Ping) error {
	reply := Pong{Value: m.Value}
	return p.sys.SendFrom(p.self, m.From, TagPong, compact.ImageOf(&reply))
}

// Pinger records the Pong values it receives, in arrival order.
type Pinger struct {
	mutex    sync.Mutex
	received []int64
}

func (p *Pinger) HandlePong(m *Pong) error {
	p.mutex.Lock()
	p.received = append(p.received, m.Value)
	p.mutex.Unlock()
	return nil
}

// Received returns a copy of the recorded values.
func (p *Pinger) Received() []int64 {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return append([]int64(nil), p.received...)
}
