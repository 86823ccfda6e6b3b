// Package orchestrator drives publishing passes over a post's platform
// targets. One routine serves both the scheduled-fire path and the retry
// path; they differ only in which target statuses are eligible.
package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"crosspost/internal/accounts"
	"crosspost/internal/domain"
	"crosspost/internal/publisher"
	"crosspost/internal/store"
)

type Service struct {
	store      store.Store
	directory  accounts.Directory
	publishers publisher.Registry
}

func New(st store.Store, dir accounts.Directory, pubs publisher.Registry) *Service {
	return &Service{store: st, directory: dir, publishers: pubs}
}

// Publish runs a first orchestration pass: every target still in
// scheduled state is attempted once. Invoked by the job registry at fire
// time and by the sweeper for posts that came due while the process was
// down.
func (s *Service) Publish(ctx context.Context, postID string) error {
	return s.run(ctx, postID, domain.TargetScheduled)
}

// Retry re-attempts only the currently failed targets of a post that has
// already been through a pass. Targets already published are never
// touched. Calling it on a post with nothing failed is a no-op success.
func (s *Service) Retry(ctx context.Context, postID string) error {
	targets, err := s.store.GetTargets(ctx, postID)
	if err != nil {
		return err
	}
	failed := 0
	for _, t := range targets {
		if t.Status == domain.TargetFailed {
			failed++
		}
	}
	if failed == 0 {
		log.Debug().Str("post_id", postID).Msg("retry requested with no failed targets")
		return nil
	}
	return s.run(ctx, postID, domain.TargetFailed)
}

func (s *Service) run(ctx context.Context, postID string, eligible domain.TargetStatus) error {
	post, err := s.store.GetPost(ctx, postID)
	if err != nil {
		return err
	}

	// At most one pass in flight per post: the claim loser backs off.
	claimed, err := s.store.ClaimForPublishing(ctx, postID)
	if err != nil {
		return err
	}
	if !claimed {
		log.Warn().Str("post_id", postID).Msg("publish pass skipped, post not claimable")
		return nil
	}

	// Fresh read, not the snapshot captured at schedule time, so edits
	// made between scheduling and firing are respected.
	targets, err := s.store.GetTargets(ctx, postID)
	if err != nil {
		return err
	}

	// Retry pass: drop the failed attempts' stale analytics rows; they
	// would double-count once the target publishes. Runs under the
	// claim, so a losing retry deletes nothing.
	if eligible == domain.TargetFailed {
		for _, t := range targets {
			if t.Status != domain.TargetFailed {
				continue
			}
			if err := s.store.DeleteTargetMetrics(ctx, t.ID); err != nil {
				log.Error().Err(err).Str("target_id", t.ID).Msg("delete delivery metrics")
			}
		}
	}

	var wg sync.WaitGroup
	for _, t := range targets {
		if t.Status != eligible {
			continue
		}
		wg.Add(1)
		go func(t domain.PlatformTarget) {
			defer wg.Done()
			s.processTarget(ctx, post, t)
		}(t)
	}
	wg.Wait()

	return s.writeAggregate(ctx, postID)
}

// processTarget attempts delivery for one target. Every failure is
// recorded on the target and contained here; one platform's outage must
// not keep siblings from being attempted.
func (s *Service) processTarget(ctx context.Context, post domain.Post, t domain.PlatformTarget) {
	account, err := s.directory.FindAccount(ctx, post.UserID, t.Platform)
	if err != nil {
		msg := err.Error()
		if errors.Is(err, domain.ErrAccountNotConnected) {
			msg = "No connected " + string(t.Platform) + " account found"
		}
		s.failTarget(ctx, t, msg)
		return
	}

	if err := s.store.MarkTargetPublishing(ctx, t.ID); err != nil {
		log.Error().Err(err).Str("target_id", t.ID).Msg("mark target publishing")
	}

	pub, ok := s.publishers.For(t.Platform)
	if !ok {
		s.failTarget(ctx, t, "no publisher configured for "+string(t.Platform))
		return
	}

	externalID, err := pub.Publish(ctx, account, post.Content())
	if err != nil {
		s.failTarget(ctx, t, err.Error())
		return
	}

	now := time.Now().UTC()
	if err := s.store.MarkTargetPublished(ctx, t.ID, externalID, now); err != nil {
		log.Error().Err(err).Str("target_id", t.ID).Msg("mark target published")
		return
	}
	if err := s.store.RecordAttempt(ctx, t.ID, true, ""); err != nil {
		log.Error().Err(err).Str("target_id", t.ID).Msg("record attempt")
	}
	log.Info().
		Str("post_id", post.ID).
		Str("platform", string(t.Platform)).
		Str("external_id", externalID).
		Msg("target published")
}

func (s *Service) failTarget(ctx context.Context, t domain.PlatformTarget, msg string) {
	if err := s.store.MarkTargetFailed(ctx, t.ID, msg); err != nil {
		log.Error().Err(err).Str("target_id", t.ID).Msg("mark target failed")
	}
	if err := s.store.RecordAttempt(ctx, t.ID, false, msg); err != nil {
		log.Error().Err(err).Str("target_id", t.ID).Msg("record attempt")
	}
	log.Warn().
		Str("post_id", t.PostID).
		Str("platform", string(t.Platform)).
		Str("error", msg).
		Msg("target failed")
}

// writeAggregate recomputes the overall status from the full target set
// of the post, not just the targets touched in this pass.
func (s *Service) writeAggregate(ctx context.Context, postID string) error {
	targets, err := s.store.GetTargets(ctx, postID)
	if err != nil {
		return err
	}
	status, err := domain.AggregateStatus(targets)
	if err != nil {
		return err
	}
	var postErr *string
	if status == domain.PostFailed {
		msg := domain.AllFailedMessage
		postErr = &msg
	}
	if err := s.store.SetPostStatus(ctx, postID, status, postErr); err != nil {
		return err
	}
	log.Info().Str("post_id", postID).Str("status", string(status)).Msg("pass complete")
	return nil
}
