package publisher

import (
	"context"
	"strings"

	"crosspost/internal/domain"
)

// twitterMaxRunes is the post length cap; the caption is truncated to
// leave room for hashtags rather than rejected.
const twitterMaxRunes = 280

type Twitter struct{ c *Client }

func NewTwitter(c *Client) *Twitter { return &Twitter{c: c} }

func (p *Twitter) Platform() domain.Platform { return domain.PlatformTwitter }

func (p *Twitter) Publish(ctx context.Context, account domain.Account, content domain.Content) (string, error) {
	text := content.Caption
	if content.Hashtags != "" {
		text = text + "\n" + content.Hashtags
	}
	if r := []rune(text); len(r) > twitterMaxRunes {
		text = string(r[:twitterMaxRunes-1]) + "…"
	}
	return p.c.Deliver(ctx, account.AccessToken, map[string]string{"text": text})
}

type Facebook struct{ c *Client }

func NewFacebook(c *Client) *Facebook { return &Facebook{c: c} }

func (p *Facebook) Platform() domain.Platform { return domain.PlatformFacebook }

func (p *Facebook) Publish(ctx context.Context, account domain.Account, content domain.Content) (string, error) {
	return p.c.Deliver(ctx, account.AccessToken, map[string]string{
		"message": content.Caption,
		"tags":    content.Hashtags,
		"privacy": content.Visibility,
	})
}

type Instagram struct{ c *Client }

func NewInstagram(c *Client) *Instagram { return &Instagram{c: c} }

func (p *Instagram) Platform() domain.Platform { return domain.PlatformInstagram }

func (p *Instagram) Publish(ctx context.Context, account domain.Account, content domain.Content) (string, error) {
	// Instagram convention puts hashtags in a trailing block.
	caption := content.Caption
	if content.Hashtags != "" {
		caption = caption + "\n.\n.\n" + content.Hashtags
	}
	return p.c.Deliver(ctx, account.AccessToken, map[string]string{"caption": caption})
}

type LinkedIn struct{ c *Client }

func NewLinkedIn(c *Client) *LinkedIn { return &LinkedIn{c: c} }

func (p *LinkedIn) Platform() domain.Platform { return domain.PlatformLinkedIn }

func (p *LinkedIn) Publish(ctx context.Context, account domain.Account, content domain.Content) (string, error) {
	visibility := "PUBLIC"
	if strings.EqualFold(content.Visibility, "private") {
		visibility = "CONNECTIONS"
	}
	text := content.Caption
	if content.Hashtags != "" {
		text = text + "\n" + content.Hashtags
	}
	return p.c.Deliver(ctx, account.AccessToken, map[string]string{
		"commentary": text,
		"visibility": visibility,
	})
}
