package orchestrator

import (
	"context"
	"sync"
	"time"

	"crosspost/internal/domain"
)

// fakeStore is an in-memory store.Store for orchestrator tests.
type fakeStore struct {
	mu       sync.Mutex
	posts    map[string]domain.Post
	targets  map[string]*domain.PlatformTarget
	order    []string // target ids in insertion order
	metrics  map[string]int
	attempts map[string][]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		posts:    make(map[string]domain.Post),
		targets:  make(map[string]*domain.PlatformTarget),
		metrics:  make(map[string]int),
		attempts: make(map[string][]bool),
	}
}

func (f *fakeStore) addPost(p domain.Post, targets ...domain.PlatformTarget) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts[p.ID] = p
	for i := range targets {
		t := targets[i]
		f.targets[t.ID] = &t
		f.order = append(f.order, t.ID)
	}
}

func (f *fakeStore) target(id string) domain.PlatformTarget {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.targets[id]
}

func (f *fakeStore) post(id string) domain.Post {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.posts[id]
}

func (f *fakeStore) CreatePost(ctx context.Context, p domain.Post, platforms []domain.Platform) (string, error) {
	f.addPost(p)
	return p.ID, nil
}

func (f *fakeStore) GetPost(ctx context.Context, id string) (domain.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.posts[id]
	if !ok {
		return domain.Post{}, domain.ErrNotFound
	}
	return p, nil
}

func (f *fakeStore) GetTargets(ctx context.Context, postID string) ([]domain.PlatformTarget, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.PlatformTarget
	for _, id := range f.order {
		if f.targets[id].PostID == postID {
			out = append(out, *f.targets[id])
		}
	}
	return out, nil
}

func (f *fakeStore) DeletePost(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.posts, id)
	return nil
}

func (f *fakeStore) UpdateScheduledTime(ctx context.Context, id string, at time.Time) error {
	return nil
}

func (f *fakeStore) ListScheduled(ctx context.Context) ([]domain.Post, error) { return nil, nil }

func (f *fakeStore) ListDue(ctx context.Context, now time.Time) ([]domain.Post, error) {
	return nil, nil
}

func (f *fakeStore) ClaimForPublishing(ctx context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.posts[id]
	if !ok {
		return false, nil
	}
	switch p.Status {
	case domain.PostScheduled, domain.PostPartial, domain.PostFailed:
		p.Status = domain.PostPublishing
		f.posts[id] = p
		return true, nil
	}
	return false, nil
}

func (f *fakeStore) RecoverStale(ctx context.Context, olderThan time.Duration) (int, error) {
	return 0, nil
}

func (f *fakeStore) SetPostStatus(ctx context.Context, id string, status domain.PostStatus, errMsg *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.posts[id]
	p.Status = status
	p.Error = errMsg
	f.posts[id] = p
	return nil
}

func (f *fakeStore) MarkTargetPublishing(ctx context.Context, targetID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.targets[targetID].Status = domain.TargetPublishing
	return nil
}

func (f *fakeStore) MarkTargetPublished(ctx context.Context, targetID, externalID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.targets[targetID]
	t.Status = domain.TargetPublished
	t.ExternalID = &externalID
	t.PublishedAt = &at
	t.Error = nil
	return nil
}

func (f *fakeStore) MarkTargetFailed(ctx context.Context, targetID, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.targets[targetID]
	t.Status = domain.TargetFailed
	t.Error = &errMsg
	return nil
}

func (f *fakeStore) RecordAttempt(ctx context.Context, targetID string, success bool, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts[targetID] = append(f.attempts[targetID], success)
	return nil
}

func (f *fakeStore) DeleteTargetMetrics(ctx context.Context, targetID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metrics[targetID] = 0
	return nil
}

func (f *fakeStore) CreateAccount(ctx context.Context, a domain.Account) (string, error) {
	return a.ID, nil
}

func (f *fakeStore) DeleteAccount(ctx context.Context, id string) error { return nil }

func (f *fakeStore) FindAccount(ctx context.Context, userID string, platform domain.Platform) (domain.Account, error) {
	return domain.Account{}, domain.ErrAccountNotConnected
}

// fakeDirectory serves accounts from a map keyed by user/platform.
type fakeDirectory struct {
	accounts map[string]domain.Account
}

func (d *fakeDirectory) FindAccount(ctx context.Context, userID string, platform domain.Platform) (domain.Account, error) {
	a, ok := d.accounts[userID+"/"+string(platform)]
	if !ok {
		return domain.Account{}, domain.ErrAccountNotConnected
	}
	return a, nil
}

// fakePublisher returns a fixed external id or error, counting calls.
type fakePublisher struct {
	mu       sync.Mutex
	platform domain.Platform
	id       string
	err      error
	calls    int
}

func (p *fakePublisher) Platform() domain.Platform { return p.platform }

func (p *fakePublisher) Publish(ctx context.Context, account domain.Account, content domain.Content) (string, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	return p.id, nil
}

func (p *fakePublisher) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}
