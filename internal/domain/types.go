package domain

import "time"

// Platform identifies one social network a post can be delivered to.
type Platform string

const (
	PlatformTwitter   Platform = "twitter"
	PlatformFacebook  Platform = "facebook"
	PlatformInstagram Platform = "instagram"
	PlatformLinkedIn  Platform = "linkedin"
)

// KnownPlatforms lists every platform the service can target.
var KnownPlatforms = []Platform{PlatformTwitter, PlatformFacebook, PlatformInstagram, PlatformLinkedIn}

func (p Platform) Valid() bool {
	for _, k := range KnownPlatforms {
		if p == k {
			return true
		}
	}
	return false
}

// PostStatus is the aggregate status of a post across all of its targets.
type PostStatus string

const (
	PostScheduled  PostStatus = "scheduled"
	PostPublishing PostStatus = "publishing"
	PostPublished  PostStatus = "published"
	PostFailed     PostStatus = "failed"
	PostPartial    PostStatus = "partial"
)

// TargetStatus is the delivery status of a single platform target.
type TargetStatus string

const (
	TargetScheduled  TargetStatus = "scheduled"
	TargetPublishing TargetStatus = "publishing"
	TargetPublished  TargetStatus = "published"
	TargetFailed     TargetStatus = "failed"
)

type Post struct {
	ID            string
	UserID        string
	Caption       string
	Hashtags      string
	Visibility    string
	ScheduledTime time.Time
	Status        PostStatus
	Error         *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type PlatformTarget struct {
	ID          string
	PostID      string
	Platform    Platform
	Status      TargetStatus
	ExternalID  *string
	Error       *string
	PublishedAt *time.Time
}

// Account holds the stored credentials for one connected platform account.
// Token acquisition and refresh happen in the OAuth linking flow; the core
// only reads what that flow stored.
type Account struct {
	ID             string
	UserID         string
	Platform       Platform
	Username       string
	AccessToken    string
	RefreshToken   string
	TokenExpiresAt time.Time
	CreatedAt      time.Time
}

// Content is what a publisher delivers: the post fields the platforms care
// about, opaque to the core.
type Content struct {
	Caption    string
	Hashtags   string
	Visibility string
}

func (p Post) Content() Content {
	return Content{Caption: p.Caption, Hashtags: p.Hashtags, Visibility: p.Visibility}
}
