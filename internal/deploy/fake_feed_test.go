package deploy

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/specialistvlad/stepship/internal/deploy/status"
)

// fakeFeed is an in-memory Feed. Pushed snapshots are delivered after
// Subscribe; polled snapshots are handed out by Fetch in order, the last one
// repeating.
type fakeFeed struct {
	pushed []status.DeployData
	polled []status.DeployData
	err    error

	mu   sync.Mutex
	subs []*fakeSubscription
}

func (f *fakeFeed) Subscribe(_ context.Context, entityType, id, field string) (Subscription, error) {
	if f.err != nil {
		return nil, f.err
	}
	s := &fakeSubscription{
		ref:     itemRef{EntityType: entityType, ID: id, Field: field},
		updates: make(chan status.DeployData, len(f.pushed)),
		polled:  f.polled,
	}
	for _, d := range f.pushed {
		s.updates <- d
	}

	f.mu.Lock()
	f.subs = append(f.subs, s)
	f.mu.Unlock()
	return s, nil
}

func (f *fakeFeed) last() *fakeSubscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.subs) == 0 {
		return nil
	}
	return f.subs[len(f.subs)-1]
}

type fakeSubscription struct {
	ref     itemRef
	updates chan status.DeployData

	mu      sync.Mutex
	polled  []status.DeployData
	fetches int

	closed atomic.Int32
}

func (s *fakeSubscription) Updates() <-chan status.DeployData { return s.updates }

func (s *fakeSubscription) Fetch(context.Context) (status.DeployData, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches++
	if len(s.polled) == 0 {
		return status.DeployData{}, false, nil
	}
	d := s.polled[0]
	if len(s.polled) > 1 {
		s.polled = s.polled[1:]
	}
	return d, true, nil
}

func (s *fakeSubscription) Close() error {
	s.closed.Add(1)
	return nil
}
