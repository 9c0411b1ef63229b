package utils

import "time"

func NowUnixSeconds() int64 { return time.Now().Unix() }

// FollowUpDate is the collections follow-up date used by failure and cancellation logs.
func FollowUpDate(from time.Time) time.Time {
	return from.Add(24 * time.Hour)
}

// FromUnixSeconds converts an epoch value in seconds to UTC.
// Returns zero time if t<=0 to let callers decide how to render.
func FromUnixSeconds(t int64) time.Time {
	if t <= 0 {
		return time.Time{}
	}
	return time.Unix(t, 0).UTC()
}

func FormatRFC3339(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
