package slick

import "time"

// StaticDiscovery is a stub for a full-mesh, statically-configured
// membership variant. It was left incomplete upstream and its intended
// semantics were never pinned down; per the design notes this module
// does not infer them. Every method except ID and Node returns
// ErrNotImplemented.
type StaticDiscovery struct {
	self NodeId
	node NodeLocation
}

// NewStaticDiscovery returns a StaticDiscovery that reports the given
// identity but implements none of the Discovery behavior.
func NewStaticDiscovery(self NodeId, node NodeLocation) *StaticDiscovery {
	return &StaticDiscovery{self: self, node: node}
}

var _ Discovery = (*StaticDiscovery)(nil)

func (s *StaticDiscovery) Publish(string, []byte) error                 { return ErrNotImplemented }
func (s *StaticDiscovery) Retract(string) error                         { return ErrNotImplemented }
func (s *StaticDiscovery) Discover(string, WatchFunc) (WatchHandle, error) {
	return 0, ErrNotImplemented
}
func (s *StaticDiscovery) Forget(string, WatchHandle) error { return ErrNotImplemented }
func (s *StaticDiscovery) Lost(string, KeyId) error         { return ErrNotImplemented }
func (s *StaticDiscovery) Poll(time.Duration) error         { return ErrNotImplemented }
func (s *StaticDiscovery) Shutdown() error                  { return ErrNotImplemented }
func (s *StaticDiscovery) ID() NodeId                       { return s.self }
func (s *StaticDiscovery) Node() NodeLocation                { return s.node }
