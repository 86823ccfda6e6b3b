package publisher

import (
	"context"

	"crosspost/internal/domain"
)

// Publisher delivers content to one platform. Platform-specific concerns
// (length limits, visibility mapping, hashtag placement) are resolved in
// the variant before delivery; the wire call itself is uniform.
type Publisher interface {
	Platform() domain.Platform
	Publish(ctx context.Context, account domain.Account, content domain.Content) (externalID string, err error)
}

// Registry selects the publisher for a platform. Built once at wiring
// time; an unknown platform is a lookup miss, not a switch fallthrough.
type Registry map[domain.Platform]Publisher

func NewRegistry(pubs ...Publisher) Registry {
	r := make(Registry, len(pubs))
	for _, p := range pubs {
		r[p.Platform()] = p
	}
	return r
}

func (r Registry) For(platform domain.Platform) (Publisher, bool) {
	p, ok := r[platform]
	return p, ok
}
