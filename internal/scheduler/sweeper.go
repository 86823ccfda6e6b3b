package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"crosspost/internal/store"
)

// Sweeper periodically scans for posts that are due but still in
// scheduled state: fires missed while the process was down, or timers
// lost for any other reason. The store-level claim makes firing a post
// twice harmless, so the sweeper and the registry never need to
// coordinate.
type Sweeper struct {
	c     *cron.Cron
	store store.Store
	fire  FireFunc
}

func NewSweeper(st store.Store, interval time.Duration, fire FireFunc) *Sweeper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	s := &Sweeper{c: cron.New(), store: st, fire: fire}
	s.c.Schedule(cron.Every(interval), cron.FuncJob(s.sweep))
	return s
}

func (s *Sweeper) Start() { s.c.Start() }

func (s *Sweeper) Stop() { s.c.Stop() }

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	posts, err := s.store.ListDue(ctx, time.Now())
	if err != nil {
		log.Error().Err(err).Msg("sweep: list due posts")
		return
	}
	for _, p := range posts {
		log.Info().Str("post_id", p.ID).Time("scheduled", p.ScheduledTime).Msg("sweep: firing overdue post")
		s.fire(p.ID)
	}
}
