package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"crosspost/internal/domain"
)

func testClient(t *testing.T, platform domain.Platform, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(platform, srv.URL, 100, 10, 0)
}

func TestDeliverSuccess(t *testing.T) {
	t.Parallel()
	var gotAuth string
	var gotBody map[string]string
	c := testClient(t, domain.PlatformTwitter, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "ext-1"})
	})

	id, err := c.Deliver(context.Background(), "tok", map[string]string{"text": "hi"})
	if err != nil {
		t.Fatalf("Deliver error: %v", err)
	}
	if id != "ext-1" {
		t.Fatalf("external id = %q, want ext-1", id)
	}
	if gotAuth != "Bearer tok" {
		t.Fatalf("auth header = %q", gotAuth)
	}
	if gotBody["text"] != "hi" {
		t.Fatalf("body = %v", gotBody)
	}
}

func TestDeliverUpstreamError(t *testing.T) {
	t.Parallel()
	c := testClient(t, domain.PlatformFacebook, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
	})

	_, err := c.Deliver(context.Background(), "tok", map[string]string{})
	var apiErr *domain.PlatformAPIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected PlatformAPIError, got %v", err)
	}
	if apiErr.Platform != domain.PlatformFacebook {
		t.Fatalf("error platform = %s", apiErr.Platform)
	}
	if !strings.Contains(apiErr.Message, "429") || !strings.Contains(apiErr.Message, "rate limit") {
		t.Fatalf("error message should carry upstream detail: %q", apiErr.Message)
	}
}

func TestDeliverMissingID(t *testing.T) {
	t.Parallel()
	c := testClient(t, domain.PlatformLinkedIn, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{})
	})
	_, err := c.Deliver(context.Background(), "tok", map[string]string{})
	var apiErr *domain.PlatformAPIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected PlatformAPIError, got %v", err)
	}
}

func TestTwitterTruncation(t *testing.T) {
	t.Parallel()
	var gotText string
	c := testClient(t, domain.PlatformTwitter, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotText = body["text"]
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "x"})
	})
	p := NewTwitter(c)

	long := strings.Repeat("a", 400)
	_, err := p.Publish(context.Background(), domain.Account{AccessToken: "tok"}, domain.Content{Caption: long, Hashtags: "#go"})
	if err != nil {
		t.Fatalf("Publish error: %v", err)
	}
	if got := len([]rune(gotText)); got > twitterMaxRunes {
		t.Fatalf("tweet length = %d runes, cap is %d", got, twitterMaxRunes)
	}
	if !strings.HasSuffix(gotText, "…") {
		t.Fatalf("truncated tweet should end with ellipsis: %q", gotText[len(gotText)-8:])
	}
}

func TestLinkedInVisibilityMapping(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		visibility string
		want       string
	}{
		{name: "public", visibility: "public", want: "PUBLIC"},
		{name: "private", visibility: "private", want: "CONNECTIONS"},
		{name: "default", visibility: "", want: "PUBLIC"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var got string
			c := testClient(t, domain.PlatformLinkedIn, func(w http.ResponseWriter, r *http.Request) {
				var body map[string]string
				_ = json.NewDecoder(r.Body).Decode(&body)
				got = body["visibility"]
				_ = json.NewEncoder(w).Encode(map[string]string{"id": "x"})
			})
			p := NewLinkedIn(c)
			if _, err := p.Publish(context.Background(), domain.Account{AccessToken: "tok"}, domain.Content{Caption: "c", Visibility: tt.visibility}); err != nil {
				t.Fatalf("Publish error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("visibility = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRegistryLookup(t *testing.T) {
	t.Parallel()
	tw := NewTwitter(NewClient(domain.PlatformTwitter, "http://example.invalid", 1, 1, 0))
	r := NewRegistry(tw)
	if p, ok := r.For(domain.PlatformTwitter); !ok || p.Platform() != domain.PlatformTwitter {
		t.Fatal("registry should resolve twitter")
	}
	if _, ok := r.For(domain.PlatformInstagram); ok {
		t.Fatal("registry should miss on unregistered platform")
	}
}
