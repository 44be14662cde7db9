package remote

import (
	"fmt"
	"sync"

	"github.com/metrosim/substrate/internal/kay"
)

// Node binds a local actor system to a Transport so actors on other nodes
// can be addressed. Incoming envelopes become ordinary local sends; their
// byte-image payloads are enqueued untouched.
type Node struct {
	name    string
	system  *kay.System
	trans   Transport
	address string

	mutex   sync.RWMutex
	started bool
}

// NewNode wires a system to a transport under a node name.
func NewNode(name string, system *kay.System, trans Transport) *Node {
	return &Node{name: name, system: system, trans: trans}
}

// Start begins listening on addr and delivering inbound messages locally.
func (n *Node) Start(addr string) error {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	if n.started {
		return fmt.Errorf("node already started")
	}
	if err := n.trans.Start(addr, n.receive); err != nil {
		return err
	}
	n.address = n.trans.Address()
	n.started = true
	return nil
}

// Stop shuts down the transport.
func (n *Node) Stop() error {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	if !n.started {
		return nil
	}
	n.started = false
	return n.trans.Stop()
}

// Address returns the transport's bound address.
func (n *Node) Address() string {
	n.mutex.RLock()
	defer n.mutex.RUnlock()
	return n.address
}

// Send ships a message image to an actor living on another node.
func (n *Node) Send(remoteAddr string, recipient kay.ActorID, tag kay.MessageTag, image []byte) error {
	n.mutex.RLock()
	name := n.name
	n.mutex.RUnlock()

	env := Envelope{
		SenderNode:    name,
		ReceiverNode:  remoteAddr,
		Recipient:     uint64(recipient),
		Tag:           uint32(tag),
		Image:         image,
		TimestampUnix: NowUnix(),
	}
	return n.trans.Send(remoteAddr, env)
}

func (n *Node) receive(env Envelope) error {
	return n.system.Send(kay.ActorID(env.Recipient), kay.MessageTag(env.Tag), env.Image)
}
