// Package location streams position fixes for users into the SOS engine.
package location

import (
	"sync"

	"github.com/wolfeidau/beacon/internal/models"
)

// Source delivers location samples for a user until the returned cancel
// function is called. Samples may arrive out of order; the consumer decides
// which to keep.
type Source interface {
	OnSample(userID string, cb func(models.LocationSample)) (cancel func(), err error)
}

// MemorySource is an in-process Source fed by Publish.
type MemorySource struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]func(models.LocationSample) // user ID -> subscriber ID -> callback
}

// NewMemorySource creates a source with no subscribers.
func NewMemorySource() *MemorySource {
	return &MemorySource{
		subs: make(map[string]map[int]func(models.LocationSample)),
	}
}

// OnSample registers cb for the user's samples.
func (s *MemorySource) OnSample(userID string, cb func(models.LocationSample)) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++

	if s.subs[userID] == nil {
		s.subs[userID] = make(map[int]func(models.LocationSample))
	}
	s.subs[userID][id] = cb

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()

			delete(s.subs[userID], id)
			if len(s.subs[userID]) == 0 {
				delete(s.subs, userID)
			}
		})
	}, nil
}

// Publish hands the sample to every subscriber of the user and reports how
// many received it. Callbacks run on the caller's goroutine.
func (s *MemorySource) Publish(userID string, sample models.LocationSample) int {
	s.mu.RLock()
	cbs := make([]func(models.LocationSample), 0, len(s.subs[userID]))
	for _, cb := range s.subs[userID] {
		cbs = append(cbs, cb)
	}
	s.mu.RUnlock()

	for _, cb := range cbs {
		cb(sample)
	}
	return len(cbs)
}

// Subscribers returns the number of active subscriptions for the user.
func (s *MemorySource) Subscribers(userID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.subs[userID])
}
