package kay

import (
	"sync"

	serr "github.com/metrosim/substrate/internal/errors"
)

// Handler processes one message for one recipient instance. The recipient is
// the actor's state value as registered at spawn; implementations decode the
// message image and invoke the typed handler method. Handlers for the same
// actor are never invoked concurrently.
type Handler func(recipient interface{}, msg Message) error

type dispatchKey struct {
	actorType ActorTypeID
	tag       MessageTag
}

// DispatchTable maps (actor type, message tag) pairs to handlers. It is
// populated once during startup, typically by generated registration code,
// then frozen; resolution after Freeze is lock-free reads under RWMutex.
type DispatchTable struct {
	mutex    sync.RWMutex
	frozen   bool
	nextType ActorTypeID
	types    map[string]ActorTypeID
	names    map[ActorTypeID]string
	handlers map[dispatchKey]Handler
}

// NewDispatchTable returns an empty table.
func NewDispatchTable() *DispatchTable {
	return &DispatchTable{
		nextType: 1,
		types:    make(map[string]ActorTypeID),
		names:    make(map[ActorTypeID]string),
		handlers: make(map[dispatchKey]Handler),
	}
}

// RegisterActorType assigns an identifier to an actor type name. Registering
// the same name twice returns the existing identifier.
func (t *DispatchTable) RegisterActorType(name string) (ActorTypeID, error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.frozen {
		return 0, serr.DuplicateDispatchEntry(name, 0)
	}
	if id, ok := t.types[name]; ok {
		return id, nil
	}
	id := t.nextType
	t.nextType++
	t.types[name] = id
	t.names[id] = name
	return id, nil
}

// Register binds a handler for one (actor type, tag) pair. A second binding
// for the same pair is a build-or-startup defect and is rejected.
func (t *DispatchTable) Register(actorType ActorTypeID, tag MessageTag, h Handler) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	name := t.names[actorType]
	if t.frozen {
		return serr.DuplicateDispatchEntry(name, uint32(tag))
	}
	key := dispatchKey{actorType: actorType, tag: tag}
	if _, ok := t.handlers[key]; ok {
		return serr.DuplicateDispatchEntry(name, uint32(tag))
	}
	t.handlers[key] = h
	return nil
}

// Freeze seals the table against further registration.
func (t *DispatchTable) Freeze() {
	t.mutex.Lock()
	t.frozen = true
	t.mutex.Unlock()
}

// Resolve looks up the handler for a (actor type, tag) pair.
func (t *DispatchTable) Resolve(actorType ActorTypeID, tag MessageTag) (Handler, error) {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	h, ok := t.handlers[dispatchKey{actorType: actorType, tag: tag}]
	if !ok {
		return nil, serr.MissingHandler(t.names[actorType], uint32(tag))
	}
	return h, nil
}

// TypeName returns the registered name for an actor type identifier.
func (t *DispatchTable) TypeName(actorType ActorTypeID) string {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return t.names[actorType]
}
