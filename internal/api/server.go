package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"crosspost/internal/accounts"
	"crosspost/internal/domain"
	"crosspost/internal/scheduler"
	"crosspost/internal/store"
)

// Retrier re-runs publishing for a post's failed targets.
type Retrier interface {
	Retry(ctx context.Context, postID string) error
}

type Server struct {
	r         *chi.Mux
	store     store.Store
	registry  *scheduler.Registry
	directory *accounts.StoreDirectory
	retrier   Retrier
}

func NewServer(st store.Store, reg *scheduler.Registry, dir *accounts.StoreDirectory, retrier Retrier) http.Handler {
	return NewServerWithDebug(st, reg, dir, retrier, false)
}

func NewServerWithDebug(st store.Store, reg *scheduler.Registry, dir *accounts.StoreDirectory, retrier Retrier, enableDebug bool) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)

	s := &Server{r: r, store: st, registry: reg, directory: dir, retrier: retrier}

	r.Get("/health", s.health)
	r.Get("/metrics", s.metrics)
	r.Post("/api/posts", s.createPost)
	r.Get("/api/posts/{id}", s.getPost)
	r.Delete("/api/posts/{id}", s.deletePost)
	r.Post("/api/posts/{id}/reschedule", s.reschedulePost)
	r.Post("/api/posts/{id}/retry", s.retryPost)
	r.Post("/api/accounts", s.connectAccount)
	r.Delete("/api/accounts/{id}", s.disconnectAccount)

	if enableDebug {
		r.HandleFunc("/debug/pprof/", pprof.Index)
		r.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		r.HandleFunc("/debug/pprof/profile", pprof.Profile)
		r.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		r.HandleFunc("/debug/pprof/trace", pprof.Trace)
		r.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
		r.Handle("/debug/pprof/heap", pprof.Handler("heap"))
	}

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) metrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("content-type", "text/plain; version=0.0.4")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "crosspost_up 1\ncrosspost_pending_timers %d\n", s.registry.Pending())
}

type createPostReq struct {
	UserID        string   `json:"user_id"`
	Caption       string   `json:"caption"`
	Hashtags      string   `json:"hashtags"`
	Visibility    string   `json:"visibility"`
	ScheduledTime string   `json:"scheduled_time"` // RFC3339; empty means now
	Platforms     []string `json:"platforms"`
}

type createPostResp struct {
	ID string `json:"id"`
}

func (s *Server) createPost(w http.ResponseWriter, r *http.Request) {
	var req createPostReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	if req.UserID == "" {
		http.Error(w, "user_id is required", 400)
		return
	}
	if len(req.Platforms) == 0 {
		http.Error(w, "at least one platform is required", 400)
		return
	}
	platforms := make([]domain.Platform, 0, len(req.Platforms))
	for _, p := range req.Platforms {
		pl := domain.Platform(p)
		if !pl.Valid() {
			http.Error(w, "unknown platform: "+p, 400)
			return
		}
		platforms = append(platforms, pl)
	}

	at := time.Now()
	if req.ScheduledTime != "" {
		parsed, err := time.Parse(time.RFC3339, req.ScheduledTime)
		if err != nil {
			http.Error(w, "invalid scheduled_time: "+err.Error(), 400)
			return
		}
		at = parsed
	}

	post := domain.Post{
		UserID:        req.UserID,
		Caption:       req.Caption,
		Hashtags:      req.Hashtags,
		Visibility:    req.Visibility,
		ScheduledTime: at,
	}
	id, err := s.store.CreatePost(r.Context(), post, platforms)
	if err != nil {
		writeErr(w, err)
		return
	}
	post.ID = id
	if err := s.registry.Schedule(post); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, createPostResp{ID: id})
}

type targetView struct {
	ID          string  `json:"id"`
	Platform    string  `json:"platform"`
	Status      string  `json:"status"`
	ExternalID  *string `json:"external_id,omitempty"`
	Error       *string `json:"error,omitempty"`
	PublishedAt *string `json:"published_at,omitempty"`
}

func (s *Server) getPost(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, err := s.store.GetPost(r.Context(), id)
	if err != nil {
		writeErr(w, err)
		return
	}
	targets, err := s.store.GetTargets(r.Context(), id)
	if err != nil {
		writeErr(w, err)
		return
	}
	views := make([]targetView, 0, len(targets))
	for _, t := range targets {
		v := targetView{
			ID:         t.ID,
			Platform:   string(t.Platform),
			Status:     string(t.Status),
			ExternalID: t.ExternalID,
			Error:      t.Error,
		}
		if t.PublishedAt != nil {
			ts := t.PublishedAt.Format(time.RFC3339)
			v.PublishedAt = &ts
		}
		views = append(views, v)
	}
	writeJSON(w, 200, map[string]any{
		"id":             p.ID,
		"user_id":        p.UserID,
		"caption":        p.Caption,
		"hashtags":       p.Hashtags,
		"visibility":     p.Visibility,
		"scheduled_time": p.ScheduledTime.Format(time.RFC3339),
		"status":         string(p.Status),
		"error":          p.Error,
		"targets":        views,
	})
}

func (s *Server) deletePost(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.registry.Cancel(id)
	if err := s.store.DeletePost(r.Context(), id); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type rescheduleReq struct {
	ScheduledTime string `json:"scheduled_time"`
}

func (s *Server) reschedulePost(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req rescheduleReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	at, err := time.Parse(time.RFC3339, req.ScheduledTime)
	if err != nil {
		http.Error(w, "invalid scheduled_time: "+err.Error(), 400)
		return
	}
	if err := s.store.UpdateScheduledTime(r.Context(), id, at); err != nil {
		writeErr(w, err)
		return
	}
	post, err := s.store.GetPost(r.Context(), id)
	if err != nil {
		writeErr(w, err)
		return
	}
	// Schedule cancels any armed timer first, so this is exactly one fire
	// at the new time.
	if err := s.registry.Schedule(post); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, 200, map[string]string{"id": id, "scheduled_time": at.Format(time.RFC3339)})
}

func (s *Server) retryPost(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.store.GetPost(r.Context(), id); err != nil {
		writeErr(w, err)
		return
	}
	if err := s.retrier.Retry(r.Context(), id); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": id})
}

type connectAccountReq struct {
	UserID         string `json:"user_id"`
	Platform       string `json:"platform"`
	Username       string `json:"username"`
	AccessToken    string `json:"access_token"`
	RefreshToken   string `json:"refresh_token"`
	TokenExpiresAt string `json:"token_expires_at"`
}

func (s *Server) connectAccount(w http.ResponseWriter, r *http.Request) {
	var req connectAccountReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	if req.UserID == "" || req.AccessToken == "" {
		http.Error(w, "user_id and access_token are required", 400)
		return
	}
	platform := domain.Platform(req.Platform)
	if !platform.Valid() {
		http.Error(w, "unknown platform: "+req.Platform, 400)
		return
	}
	a := domain.Account{
		UserID:       req.UserID,
		Platform:     platform,
		Username:     req.Username,
		AccessToken:  req.AccessToken,
		RefreshToken: req.RefreshToken,
	}
	if req.TokenExpiresAt != "" {
		t, err := time.Parse(time.RFC3339, req.TokenExpiresAt)
		if err != nil {
			http.Error(w, "invalid token_expires_at: "+err.Error(), 400)
			return
		}
		a.TokenExpiresAt = t
	}
	id, err := s.directory.Connect(r.Context(), a)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) disconnectAccount(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.directory.Disconnect(r.Context(), id); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeErr(w http.ResponseWriter, err error) {
	var pre *domain.PreconditionError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, "not found", 404)
	case errors.As(err, &pre):
		http.Error(w, pre.Reason, 400)
	default:
		http.Error(w, err.Error(), 500)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
