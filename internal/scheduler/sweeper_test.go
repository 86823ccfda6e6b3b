package scheduler

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"crosspost/internal/domain"
	"crosspost/internal/store"
)

func testStore(t *testing.T) store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sweeper.db")
	db, err := sql.Open("sqlite", "file:"+path+"?cache=shared&mode=rwc&_pragma=journal_mode(WAL)")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	db.SetMaxOpenConns(1)
	if err := store.EnsureSchema(db); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	return store.New(db)
}

func TestSweepFiresOnlyDuePosts(t *testing.T) {
	t.Parallel()
	st := testStore(t)
	ctx := context.Background()

	overdue, err := st.CreatePost(ctx, domain.Post{UserID: "u1", ScheduledTime: time.Now().Add(-time.Minute)}, []domain.Platform{domain.PlatformTwitter})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := st.CreatePost(ctx, domain.Post{UserID: "u1", ScheduledTime: time.Now().Add(time.Hour)}, []domain.Platform{domain.PlatformTwitter}); err != nil {
		t.Fatalf("create: %v", err)
	}

	rec := newFireRecorder()
	s := NewSweeper(st, time.Minute, rec.fire)
	s.sweep()

	if n := rec.count(overdue); n != 1 {
		t.Fatalf("overdue post fired %d times, want 1", n)
	}
	rec.mu.Lock()
	total := len(rec.fires)
	rec.mu.Unlock()
	if total != 1 {
		t.Fatalf("fired %d distinct posts, want only the overdue one", total)
	}
}

func TestRehydrateArmsScheduledPosts(t *testing.T) {
	t.Parallel()
	st := testStore(t)
	ctx := context.Background()

	if _, err := st.CreatePost(ctx, domain.Post{UserID: "u1", ScheduledTime: time.Now().Add(time.Hour)}, []domain.Platform{domain.PlatformTwitter}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := st.CreatePost(ctx, domain.Post{UserID: "u1", ScheduledTime: time.Now().Add(2 * time.Hour)}, []domain.Platform{domain.PlatformFacebook}); err != nil {
		t.Fatalf("create: %v", err)
	}

	rec := newFireRecorder()
	r := NewRegistry(rec.fire)
	defer r.Stop()
	if err := r.Rehydrate(ctx, st); err != nil {
		t.Fatalf("rehydrate: %v", err)
	}
	if r.Pending() != 2 {
		t.Fatalf("Pending = %d after rehydrate, want 2", r.Pending())
	}
}
