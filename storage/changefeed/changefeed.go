// Package changefeed tells live subscribers that the attendance records changed.
// Feeds only carry "something changed" signals: subscribers re-read the full result set.
package changefeed

import "context"

// Feed is a change notification channel shared by every app instance.
type Feed interface {
	// Publish announces a change. Feeds fed by the database itself may no-op.
	Publish(ctx context.Context) error
	// Listen blocks, calling onChange once when listening starts and after every change,
	// until ctx is done (nil error) or the feed breaks (non-nil error). It does not reconnect.
	Listen(ctx context.Context, onChange func()) error
}

// signal calls onChange, if any.
func signal(onChange func()) {
	if onChange != nil {
		onChange()
	}
}
