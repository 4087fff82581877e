// Package calendar implements the recording scheduler: it periodically
// fetches an iCalendar feed, filters events by location, deduplicates
// against a persisted set of already-scheduled UIDs, and arms a
// single-shot notification timer for each newly-accepted event. Feed
// parsing lives behind the Feed interface; this package consumes an
// already-parsed []Event.
package calendar

import (
	"context"
	"time"
)

// Event mirrors one VEVENT the iCalendar parser has already decoded.
type Event struct {
	UID       string
	Summary   string
	Location  string
	StartDate time.Time
	EndDate   time.Time
}

// Feed fetches the current set of calendar events. Implementations
// perform the HTTP GET and iCalendar parsing; this package only
// consumes the result.
type Feed interface {
	Fetch(ctx context.Context) ([]Event, error)
}
