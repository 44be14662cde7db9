package kay

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	serr "github.com/metrosim/substrate/internal/errors"
)

// ActorState is an actor's lifecycle phase. Transitions only move forward:
// Registered to Active to Retiring to Retired.
type ActorState int32

const (
	ActorRegistered ActorState = iota
	ActorActive
	ActorRetiring
	ActorRetired
)

func (s ActorState) String() string {
	switch s {
	case ActorRegistered:
		return "registered"
	case ActorActive:
		return "active"
	case ActorRetiring:
		return "retiring"
	case ActorRetired:
		return "retired"
	default:
		return "unknown"
	}
}

// Setup is implemented by actor state values that need their own identity or
// a system handle once spawned.
type Setup interface {
	Setup(sys *System, self ActorID) error
}

type actorEntry struct {
	id       ActorID
	typeID   ActorTypeID
	instance interface{}
	mailbox  *Mailbox
	state    atomic.Int32
	// inFlight guards scheduling: an actor identifier sits in at most one
	// run queue and runs on at most one worker at a time.
	inFlight atomic.Bool
}

// System owns the actors, their mailboxes and the scheduler. Identifiers are
// assigned from a monotonic counter and never reused, so a stale ActorID can
// only ever miss, never alias a different actor.
type System struct {
	config    Config
	table     *DispatchTable
	scheduler *Scheduler
	log       *logrus.Entry

	mutex   sync.RWMutex
	actors  map[ActorID]*actorEntry
	running bool

	nextID  atomic.Uint64
	pending atomic.Int64
}

// NewSystem builds a runtime over a dispatch table. The table is frozen when
// the system starts.
func NewSystem(config Config, table *DispatchTable) *System {
	config = config.normalized()
	s := &System{
		config: config,
		table:  table,
		log:    newLogger(config.LogLevel),
		actors: make(map[ActorID]*actorEntry),
	}
	s.scheduler = NewScheduler(config.Workers, config.QueueDepth, s.processActor, s.log)
	return s
}

// Start freezes the dispatch table, launches the scheduler and activates any
// actors spawned before startup.
func (s *System) Start() {
	s.mutex.Lock()
	if s.running {
		s.mutex.Unlock()
		return
	}
	s.running = true
	var wake []*actorEntry
	for _, e := range s.actors {
		if ActorState(e.state.Load()) == ActorRegistered {
			e.state.Store(int32(ActorActive))
			if e.mailbox.Len() > 0 {
				wake = append(wake, e)
			}
		}
	}
	s.mutex.Unlock()

	s.table.Freeze()
	s.scheduler.Start()
	for _, e := range wake {
		s.schedule(e)
	}
	s.log.WithField("workers", s.config.Workers).Info("actor system started")
}

// Stop halts the scheduler. Queued messages stay in their mailboxes.
func (s *System) Stop() {
	s.mutex.Lock()
	if !s.running {
		s.mutex.Unlock()
		return
	}
	s.running = false
	s.mutex.Unlock()

	s.scheduler.Stop()
	s.log.Info("actor system stopped")
}

// Spawn registers an actor instance of a registered type and returns its
// fresh identifier. Instances implementing Setup get the hook invoked before
// any message can reach them.
func (s *System) Spawn(typeID ActorTypeID, instance interface{}) (ActorID, error) {
	id := ActorID(s.nextID.Add(1))
	e := &actorEntry{
		id:       id,
		typeID:   typeID,
		instance: instance,
		mailbox:  NewMailbox(),
	}

	if hook, ok := instance.(Setup); ok {
		if err := hook.Setup(s, id); err != nil {
			return 0, err
		}
	}

	s.mutex.Lock()
	if s.running {
		e.state.Store(int32(ActorActive))
	}
	s.actors[id] = e
	s.mutex.Unlock()

	s.log.WithFields(logrus.Fields{
		"actor": id,
		"type":  s.table.TypeName(typeID),
	}).Debug("actor spawned")
	return id, nil
}

// Send delivers a message from outside any actor.
func (s *System) Send(to ActorID, tag MessageTag, image []byte) error {
	return s.SendFrom(NilActor, to, tag, image)
}

// SendFrom queues a message for an actor. The call never blocks; mailboxes
// are unbounded. Sending to an unknown, retiring or retired actor fails with
// UnknownRecipient.
func (s *System) SendFrom(from, to ActorID, tag MessageTag, image []byte) error {
	s.mutex.RLock()
	e := s.actors[to]
	s.mutex.RUnlock()

	if e == nil || ActorState(e.state.Load()) >= ActorRetiring {
		return serr.UnknownRecipient(uint64(to))
	}

	e.mailbox.Enqueue(Message{Sender: from, Recipient: to, Tag: tag, Image: image})
	s.pending.Add(1)
	if ActorState(e.state.Load()) == ActorActive {
		s.schedule(e)
	}
	return nil
}

// Retire seals an actor against new messages. Already queued messages are
// still processed; once the mailbox drains the actor becomes Retired. The
// identifier is never reassigned.
func (s *System) Retire(id ActorID) error {
	s.mutex.RLock()
	e := s.actors[id]
	s.mutex.RUnlock()

	if e == nil {
		return serr.UnknownRecipient(uint64(id))
	}
	if !e.state.CompareAndSwap(int32(ActorActive), int32(ActorRetiring)) {
		return nil
	}
	s.log.WithField("actor", id).Debug("actor retiring")
	s.schedule(e)
	return nil
}

// State reports an actor's lifecycle phase.
func (s *System) State(id ActorID) (ActorState, error) {
	s.mutex.RLock()
	e := s.actors[id]
	s.mutex.RUnlock()

	if e == nil {
		return 0, serr.UnknownRecipient(uint64(id))
	}
	return ActorState(e.state.Load()), nil
}

// Drain blocks until every queued message has been processed or the context
// expires.
func (s *System) Drain(ctx context.Context) error {
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()

	for {
		if s.pending.Load() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Table exposes the dispatch table, mainly for registration during startup.
func (s *System) Table() *DispatchTable { return s.table }

func (s *System) schedule(e *actorEntry) {
	if e.inFlight.CompareAndSwap(false, true) {
		s.scheduler.Enqueue(e.id)
	}
}

// processActor is the scheduler callback. It runs with the actor's in-flight
// guard held, so no other worker touches this actor concurrently.
func (s *System) processActor(id ActorID) {
	s.mutex.RLock()
	e := s.actors[id]
	s.mutex.RUnlock()
	if e == nil {
		return
	}

	for i := 0; i < s.config.BatchSize; i++ {
		if ActorState(e.state.Load()) == ActorRegistered {
			break
		}
		msg, ok := e.mailbox.Dequeue()
		if !ok {
			break
		}
		s.deliver(e, msg)
		s.pending.Add(-1)
	}

	if ActorState(e.state.Load()) == ActorRetiring && e.mailbox.Len() == 0 {
		e.state.Store(int32(ActorRetired))
		s.log.WithField("actor", e.id).Debug("actor retired")
	}

	e.inFlight.Store(false)
	// Re-check after releasing the guard: a sender may have enqueued between
	// the last dequeue and the store above.
	if e.mailbox.Len() > 0 && ActorState(e.state.Load()) != ActorRegistered {
		s.schedule(e)
	}
}

func (s *System) deliver(e *actorEntry, msg Message) {
	handler, err := s.table.Resolve(e.typeID, msg.Tag)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"actor": e.id,
			"type":  s.table.TypeName(e.typeID),
			"tag":   msg.Tag,
		}).WithError(err).Error("message dropped")
		return
	}
	if err := handler(e.instance, msg); err != nil {
		s.log.WithFields(logrus.Fields{
			"actor": e.id,
			"tag":   msg.Tag,
		}).WithError(err).Error("handler failed")
	}
}
