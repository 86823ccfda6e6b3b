// Package scheduler owns the mapping from post id to its pending fire.
// The registry keeps at most one armed timer per post; the sweeper picks
// up posts whose fire was missed (e.g. across a restart).
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"crosspost/internal/domain"
	"crosspost/internal/store"
)

// FireFunc runs one publishing pass for a post. The registry hands it the
// id only; the orchestrator re-reads fresh records.
type FireFunc func(postID string)

// Registry maps post id to an armed one-shot timer. All operations are
// synchronous, in-memory bookkeeping; it never mutates post records.
type Registry struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
	fire   FireFunc
}

func NewRegistry(fire FireFunc) *Registry {
	return &Registry{timers: make(map[string]*time.Timer), fire: fire}
}

// Schedule arms a timer for the post's scheduled time. An existing timer
// for the same post is cancelled first, so calling it again is a
// reschedule, never a second fire. A time at or before now fires
// immediately ("publish now").
func (r *Registry) Schedule(post domain.Post) error {
	if post.ID == "" {
		return &domain.PreconditionError{Reason: "post id is required"}
	}
	if post.ScheduledTime.IsZero() {
		return &domain.PreconditionError{Reason: "scheduled time is required"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.timers[post.ID]; ok {
		t.Stop()
		delete(r.timers, post.ID)
	}

	delay := time.Until(post.ScheduledTime)
	id := post.ID
	if delay <= 0 {
		go r.fireAndForget(id)
		log.Info().Str("post_id", id).Msg("post due now, firing immediately")
		return nil
	}
	r.timers[id] = time.AfterFunc(delay, func() { r.fireAndForget(id) })
	log.Info().Str("post_id", id).Time("at", post.ScheduledTime).Msg("post scheduled")
	return nil
}

func (r *Registry) fireAndForget(postID string) {
	r.mu.Lock()
	delete(r.timers, postID)
	r.mu.Unlock()
	r.fire(postID)
}

// Cancel disarms the pending timer if one exists. Safe to call twice or
// on a post that never had (or no longer has) a timer; once a fire has
// begun it does not abort the in-flight pass.
func (r *Registry) Cancel(postID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.timers[postID]
	if !ok {
		return false
	}
	t.Stop()
	delete(r.timers, postID)
	log.Info().Str("post_id", postID).Msg("schedule cancelled")
	return true
}

// Pending reports how many timers are armed.
func (r *Registry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.timers)
}

// Rehydrate re-arms timers for every post still in scheduled state.
// Pending timers are process-local, so this runs once at startup to
// recover them from the durable rows.
func (r *Registry) Rehydrate(ctx context.Context, st store.Store) error {
	posts, err := st.ListScheduled(ctx)
	if err != nil {
		return err
	}
	for _, p := range posts {
		if err := r.Schedule(p); err != nil {
			log.Error().Err(err).Str("post_id", p.ID).Msg("rehydrate schedule")
		}
	}
	log.Info().Int("posts", len(posts)).Msg("registry rehydrated")
	return nil
}

// Stop disarms everything. Posts stay in scheduled state and are
// re-armed by the next Rehydrate.
func (r *Registry) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, t := range r.timers {
		t.Stop()
		delete(r.timers, id)
	}
}
