package progress

import "net/url"

/*
Observer is a narrow, read-only capability: the engine reports what it is
doing, the engine never reads anything back from an Observer. Every method
must be safe to call from multiple worker goroutines concurrently, and an
Observer must never influence scheduling, retries, or crawl termination —
the same observational-only contract internal/metadata already holds for
telemetry, just for CLI-visible progress instead.
*/

// Status is a page record's terminal (or in-flight) crawl state.
type Status string

const (
	StatusPending  Status = "pending"
	StatusCrawling Status = "crawling"
	StatusSuccess  Status = "success"
	StatusFailed   Status = "failed"
	StatusSkipped  Status = "skipped"
)

type Observer interface {
	// OnRunStart fires once before the worker pool starts.
	OnRunStart()

	// OnDiscovered fires when a URL is admitted to the frontier, exactly
	// once per canonical URL. parent is nil for the seed.
	OnDiscovered(discoveredURL url.URL, depth int, parent *url.URL)

	// OnStatus fires on every status transition for a URL. title and
	// errMsg are only meaningful for terminal statuses.
	OnStatus(pageURL url.URL, status Status, title string, linksFound int, errMsg string)

	// OnRunEnd fires once after the worker pool has exited, before merge.
	OnRunEnd()
}

// NoopObserver discards every call. Used for --no-progress and in tests
// that don't care about observer side effects.
type NoopObserver struct{}

func (NoopObserver) OnRunStart()                                                    {}
func (NoopObserver) OnDiscovered(discoveredURL url.URL, depth int, parent *url.URL)  {}
func (NoopObserver) OnStatus(url.URL, Status, string, int, string)                   {}
func (NoopObserver) OnRunEnd()                                                       {}
