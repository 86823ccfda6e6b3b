package domain

// AllFailedMessage is the generic post-level error set when every target
// failed. Individual targets keep their own specific messages.
const AllFailedMessage = "Failed to publish to all platforms"

// AggregateStatus maps the statuses of a post's targets to one overall
// post status. A post's overall status is always derived this way, never
// set independently.
//
// published requires every target published; failed requires every target
// failed; anything mixed (including targets still publishing or scheduled)
// is partial. A post must have at least one target, so the empty slice is
// a precondition violation.
func AggregateStatus(targets []PlatformTarget) (PostStatus, error) {
	if len(targets) == 0 {
		return "", &PreconditionError{Reason: "post has no platform targets"}
	}
	published, failed := 0, 0
	for _, t := range targets {
		switch t.Status {
		case TargetPublished:
			published++
		case TargetFailed:
			failed++
		}
	}
	switch {
	case published == len(targets):
		return PostPublished, nil
	case failed == len(targets):
		return PostFailed, nil
	default:
		return PostPartial, nil
	}
}
