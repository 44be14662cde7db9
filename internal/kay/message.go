// Package kay implements the actor runtime: identity-addressed actors with
// unbounded mailboxes, a worker-pool scheduler and table-driven message
// dispatch. Message payloads travel as relocatable byte images, so the same
// dispatch path serves local and remote delivery.
package kay

import "hash/fnv"

// Type definitions for the actor runtime.
type (
	ActorID     uint64 // Actor identifier, never reused within a system
	ActorTypeID uint32 // Actor type identifier assigned at registration
	MessageTag  uint32 // Message type tag, FNV-32a of the type name
)

// NilActor is the zero sender used for messages originating outside any actor.
const NilActor ActorID = 0

// Message is a tagged byte-image payload addressed to one actor. The image
// is a self-contained compact encoding of the message struct; the tag picks
// the handler out of the dispatch table.
type Message struct {
	Sender    ActorID
	Recipient ActorID
	Tag       MessageTag
	Image     []byte
}

// TagOf derives the dispatch tag for a message type name. Generated dispatch
// code and hand-written registrations must agree on this hash.
func TagOf(name string) MessageTag {
	h := fnv.New32a()
	h.Write([]byte(name))
	return MessageTag(h.Sum32())
}
