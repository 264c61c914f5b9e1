package collector

import "errors"

// Construction errors.
var (
	// ErrNoSink indicates the collector was built without a point sink.
	ErrNoSink = errors.New("collector: no sink configured")

	// ErrNoAccounts indicates the collector was built without any accounts.
	ErrNoAccounts = errors.New("collector: no accounts configured")
)
