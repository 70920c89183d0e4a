package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/stealth"

	"github.com/rohmanhakim/docs-crawler/internal/metadata"
	"github.com/rohmanhakim/docs-crawler/pkg/failure"
	"github.com/rohmanhakim/docs-crawler/pkg/retry"
)

/*
HeadlessFetcher renders pages with a headless Chrome instance instead of
issuing a plain HTTP GET, for sites whose content only exists after
JavaScript runs. It satisfies the same Fetcher interface as HtmlFetcher so
the scheduler can swap between the two based on configuration without any
other pipeline stage noticing which one ran.

Every page opened through the browser goes through go-rod/stealth first,
which patches the usual automation tells (navigator.webdriver, a headless
plugin list, etc.) before anything loads.
*/
type HeadlessFetcher struct {
	metadataSink metadata.MetadataSink
	browser      *rod.Browser
	navTimeout   time.Duration
}

func NewHeadlessFetcher(metadataSink metadata.MetadataSink) HeadlessFetcher {
	return HeadlessFetcher{
		metadataSink: metadataSink,
		navTimeout:   30 * time.Second,
	}
}

// Init launches a headless Chrome instance. httpClient is accepted only to
// satisfy Fetcher; the browser path never uses Go's http.Client.
func (h *HeadlessFetcher) Init(_ *http.Client) {
	l := launcher.New().
		Headless(true).
		Set("disable-blink-features", "AutomationControlled")

	controlURL, err := l.Launch()
	if err != nil {
		// Leave h.browser nil; Fetch reports ErrCauseBrowserUnavailable
		// per call rather than panicking the whole crawl over a launch
		// failure that might be transient (browser binary still installing).
		return
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return
	}

	h.browser = browser
}

// Close releases the underlying Chrome process. Safe to call even if Init
// never managed to launch a browser.
func (h *HeadlessFetcher) Close() error {
	if h.browser == nil {
		return nil
	}
	browser := h.browser
	h.browser = nil
	return browser.Close()
}

func (h *HeadlessFetcher) Fetch(
	ctx context.Context,
	crawlDepth int,
	fetchParam FetchParam,
	retryParam retry.RetryParam,
) (FetchResult, failure.ClassifiedError) {
	callerMethod := "HeadlessFetcher.Fetch"
	startTime := time.Now()

	fetchTask := func() (FetchResult, failure.ClassifiedError) {
		return h.performFetch(ctx, fetchParam.fetchUrl)
	}

	outcome := retry.Retry(retryParam, fetchTask)
	result, retryErr := outcome.Value(), outcome.Err()
	duration := time.Since(startTime)

	var statusCode int
	var contentType string
	var retryCount int

	if retryErr != nil {
		var retryError *retry.RetryError
		if errors.As(retryErr, &retryError) {
			retryCount = retryParam.MaxAttempts
		}
	} else {
		statusCode = result.Code()
		contentType = result.ContentType()
	}

	h.metadataSink.RecordFetch(
		fetchParam.fetchUrl.String(),
		statusCode,
		duration,
		contentType,
		retryCount,
		crawlDepth,
	)

	if retryErr != nil {
		var fetchErr *FetchError
		if errors.As(retryErr, &fetchErr) {
			h.metadataSink.RecordError(
				time.Now(),
				"fetcher",
				callerMethod,
				mapFetchErrorToMetadataCause(fetchErr),
				retryErr.Error(),
				[]metadata.Attribute{
					metadata.NewAttr(metadata.AttrURL, fetchParam.fetchUrl.String()),
				},
			)
			return FetchResult{}, fetchErr
		}

		h.metadataSink.RecordError(
			time.Now(),
			"fetcher",
			callerMethod,
			metadata.CauseRetryFailure,
			retryErr.Error(),
			[]metadata.Attribute{
				metadata.NewAttr(metadata.AttrMessage, retryErr.Error()),
				metadata.NewAttr(metadata.AttrURL, fetchParam.fetchUrl.String()),
			},
		)
		return FetchResult{}, retryErr
	}

	return result, nil
}

func (h *HeadlessFetcher) performFetch(ctx context.Context, fetchUrl url.URL) (FetchResult, failure.ClassifiedError) {
	if h.browser == nil {
		return FetchResult{}, &FetchError{
			Message:   "headless browser not started",
			Retryable: true,
			Cause:     ErrCauseBrowserUnavailable,
		}
	}

	page, err := stealth.Page(h.browser)
	if err != nil {
		return FetchResult{}, &FetchError{
			Message:   fmt.Sprintf("failed to open stealth page: %v", err),
			Retryable: true,
			Cause:     ErrCauseBrowserUnavailable,
		}
	}
	defer page.Close()

	page = page.Context(ctx).Timeout(h.navTimeout)

	if err := page.Navigate(fetchUrl.String()); err != nil {
		return FetchResult{}, &FetchError{
			Message:   fmt.Sprintf("navigation failed: %v", err),
			Retryable: true,
			Cause:     ErrCauseNetworkFailure,
		}
	}

	if err := page.WaitLoad(); err != nil {
		return FetchResult{}, &FetchError{
			Message:   fmt.Sprintf("page load failed: %v", err),
			Retryable: true,
			Cause:     ErrCauseNetworkFailure,
		}
	}

	// Timeout waiting for the DOM to settle is not fatal: some docs sites
	// poll forever (analytics beacons, websockets) and never go fully idle.
	_ = page.Timeout(5 * time.Second).WaitStable(500 * time.Millisecond)

	html, err := page.HTML()
	if err != nil {
		return FetchResult{}, &FetchError{
			Message:   fmt.Sprintf("failed to read rendered HTML: %v", err),
			Retryable: true,
			Cause:     ErrCauseReadResponseBodyError,
		}
	}

	body := []byte(html)

	return FetchResult{
		url:       fetchUrl,
		body:      body,
		fetchedAt: time.Now(),
		meta: ResponseMeta{
			statusCode:          http.StatusOK,
			contentType:         "text/html",
			transferredSizeByte: uint64(len(body)),
			responseHeaders:     map[string]string{},
		},
	}, nil
}
