package fetcher

import (
	"context"
	"net/http"

	"github.com/rohmanhakim/docs-crawler/pkg/failure"
	"github.com/rohmanhakim/docs-crawler/pkg/retry"
)

// Fetcher is satisfied by both HtmlFetcher (plain HTTP GET) and
// HeadlessFetcher (headless Chrome via go-rod); the scheduler picks one at
// Run time based on cfg.Headless() and treats them interchangeably from
// then on.
type Fetcher interface {
	Init(httpClient *http.Client)
	Fetch(
		ctx context.Context,
		crawlDepth int,
		fetchParam FetchParam,
		retryParam retry.RetryParam,
	) (FetchResult, failure.ClassifiedError)
}
