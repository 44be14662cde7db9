// Package unhandled is a generation-failure fixture: Orphan is marked as a
// message but nothing handles it.
package unhandled

type Tick struct {
	Step int64
}

//substrate:message
type Orphan struct {
	Value int64
}

type Clock struct{}

func (c *Clock) HandleTick(m *Tick) error { return nil }
