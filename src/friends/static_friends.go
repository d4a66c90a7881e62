package friends

import (
	"context"
	"sync"
)

// StaticFriends is used to provide a static list of friends.
type StaticFriends struct {
	StaticFriends []*Friend
	l             sync.Mutex
}

// Friends implements the Directory interface.
func (s *StaticFriends) Friends() ([]*Friend, error) {
	s.l.Lock()
	friends := s.StaticFriends
	s.l.Unlock()
	return friends, nil
}

// SetFriends ...
func (s *StaticFriends) SetFriends(f []*Friend) error {
	s.l.Lock()
	s.StaticFriends = f
	s.l.Unlock()
	return nil
}

// Resolve implements the Directory interface.
func (s *StaticFriends) Resolve(ctx context.Context, permalink string) (*Friend, error) {
	friends, _ := s.Friends()
	return resolve(friends, permalink)
}
