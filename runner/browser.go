package runner

import "context"

// Browser opens sessions on browser profiles.
type Browser interface {
	Open(ctx context.Context, profile Profile) (Session, error)
}

// Session is one open browser window bound to a profile. A Session is used
// by a single worker goroutine.
type Session interface {
	// Search submits query and waits for the results page.
	Search(ctx context.Context, query string) error
	// ReadPoints returns the raw points text shown on the page, if any.
	ReadPoints(ctx context.Context) (string, bool)
	Close() error
}
