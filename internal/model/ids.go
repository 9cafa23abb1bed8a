package model

import (
	"sync"
	"time"
)

// IDSource hands out time-based message ids. Ids are strictly increasing, so
// messages created within the same millisecond keep their creation order.
type IDSource struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

func NewIDSource(now func() time.Time) *IDSource {
	if now == nil {
		now = time.Now
	}
	return &IDSource{now: now}
}

func (s *IDSource) Next() (int64, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	createdAt := s.now()
	id := createdAt.UnixMilli()
	if id <= s.last {
		id = s.last + 1
	}
	s.last = id
	return id, createdAt
}
