package scheduler_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/rohmanhakim/docs-crawler/internal/fetcher"
	"github.com/rohmanhakim/docs-crawler/internal/metadata"
	"github.com/rohmanhakim/docs-crawler/pkg/failure"
	"github.com/rohmanhakim/docs-crawler/pkg/retry"
	"github.com/stretchr/testify/mock"
)

// mockFinalizer is a testify mock for metadata.CrawlFinalizer.
type mockFinalizer struct {
	mock.Mock
}

type capturedStats struct {
	totalPages  int
	totalErrors int
	totalAssets int
	duration    time.Duration
}

func (m *mockFinalizer) RecordFinalCrawlStats(totalPages int, totalErrors int, totalAssets int, duration time.Duration) {
	m.Called(totalPages, totalErrors, totalAssets, duration)
}

func newMockFinalizer(t *testing.T) *mockFinalizer {
	t.Helper()
	m := new(mockFinalizer)
	m.On("RecordFinalCrawlStats", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return()
	return m
}

// recordingSink is a testify mock for metadata.MetadataSink that also
// satisfies metadata.CrawlFinalizer, so a single double can stand in for
// both scheduler dependencies when a test only cares that calls landed.
type recordingSink struct {
	mock.Mock
}

func (r *recordingSink) RecordFetch(fetchURL string, httpStatus int, duration time.Duration, contentType string, retryCount int, crawlDepth int) {
	r.Called(fetchURL, httpStatus, duration, contentType, retryCount, crawlDepth)
}

func (r *recordingSink) RecordAssetFetch(fetchURL string, httpStatus int, duration time.Duration, retryCount int) {
	r.Called(fetchURL, httpStatus, duration, retryCount)
}

func (r *recordingSink) RecordError(observedAt time.Time, packageName string, action string, cause metadata.ErrorCause, errorString string, attrs []metadata.Attribute) {
	r.Called(observedAt, packageName, action, cause, errorString, attrs)
}

func (r *recordingSink) RecordArtifact(kind metadata.ArtifactKind, path string, attrs []metadata.Attribute) {
	r.Called(kind, path, attrs)
}

func (r *recordingSink) RecordFinalCrawlStats(totalPages int, totalErrors int, totalAssets int, duration time.Duration) {
	r.Called(totalPages, totalErrors, totalAssets, duration)
}

func newRecordingSink(t *testing.T) *recordingSink {
	t.Helper()
	m := new(recordingSink)
	m.On("RecordFetch", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return().Maybe()
	m.On("RecordAssetFetch", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return().Maybe()
	m.On("RecordError", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return().Maybe()
	m.On("RecordArtifact", mock.Anything, mock.Anything, mock.Anything).Return().Maybe()
	m.On("RecordFinalCrawlStats", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return().Maybe()
	return m
}

// rateLimiterMock is a testify mock for limiter.RateLimiter.
type rateLimiterMock struct {
	mock.Mock
}

func (r *rateLimiterMock) SetBaseDelay(baseDelay time.Duration)   { r.Called(baseDelay) }
func (r *rateLimiterMock) SetJitter(jitter time.Duration)         { r.Called(jitter) }
func (r *rateLimiterMock) SetRandomSeed(randomSeed int64)         { r.Called(randomSeed) }
func (r *rateLimiterMock) SetCrawlDelay(host string, delay time.Duration) {
	r.Called(host, delay)
}
func (r *rateLimiterMock) Backoff(host string)      { r.Called(host) }
func (r *rateLimiterMock) ResetBackoff(host string) { r.Called(host) }
func (r *rateLimiterMock) MarkLastFetchAsNow(host string) {
	r.Called(host)
}
func (r *rateLimiterMock) SetRNG(rng interface{}) { r.Called(rng) }

func (r *rateLimiterMock) ResolveDelay(host string) time.Duration {
	args := r.Called(host)
	d, ok := args.Get(0).(time.Duration)
	if !ok {
		return 0
	}
	return d
}

func newRateLimiterMock(t *testing.T) *rateLimiterMock {
	t.Helper()
	m := new(rateLimiterMock)
	m.On("SetBaseDelay", mock.Anything).Return().Maybe()
	m.On("SetJitter", mock.Anything).Return().Maybe()
	m.On("SetRandomSeed", mock.Anything).Return().Maybe()
	m.On("SetCrawlDelay", mock.Anything, mock.Anything).Return().Maybe()
	m.On("Backoff", mock.Anything).Return().Maybe()
	m.On("ResetBackoff", mock.Anything).Return().Maybe()
	m.On("MarkLastFetchAsNow", mock.Anything).Return().Maybe()
	m.On("SetRNG", mock.Anything).Return().Maybe()
	m.On("ResolveDelay", mock.Anything).Return(time.Duration(0)).Maybe()
	return m
}

// sleeperMock is a testify mock for timeutil.Sleeper that never actually
// blocks, so tests exercising the worker loop's idle-poll path run instantly.
type sleeperMock struct {
	mock.Mock
}

func (s *sleeperMock) Sleep(d time.Duration) {
	s.Called(d)
}

func newSleeperMock(t *testing.T) *sleeperMock {
	t.Helper()
	m := new(sleeperMock)
	m.On("Sleep", mock.Anything).Return().Maybe()
	return m
}

// fetcherMock is a testify mock for fetcher.Fetcher.
type fetcherMock struct {
	mock.Mock
}

func (f *fetcherMock) Init(httpClient *http.Client) {
	f.Called(httpClient)
}

func (f *fetcherMock) Fetch(ctx context.Context, crawlDepth int, fetchParam fetcher.FetchParam, retryParam retry.RetryParam) (fetcher.FetchResult, failure.ClassifiedError) {
	args := f.Called(ctx, crawlDepth, fetchParam, retryParam)
	result, _ := args.Get(0).(fetcher.FetchResult)
	var err failure.ClassifiedError
	if args.Get(1) != nil {
		err = args.Get(1).(failure.ClassifiedError)
	}
	return result, err
}

func newFetcherMockForTest(t *testing.T) *fetcherMock {
	t.Helper()
	m := new(fetcherMock)
	return m
}

const defaultValidHTML = `<html><body><main><h1>Title</h1><p>Some real documentation content that is long enough to pass the meaningful-content heuristics used by the extractor.</p></main></body></html>`

func setupFetcherMockWithSuccess(m *fetcherMock, fetchResult fetcher.FetchResult) {
	m.On("Fetch", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(fetchResult, nil)
}

func setupFetcherMockWithError(m *fetcherMock, err failure.ClassifiedError) {
	m.On("Fetch", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(fetcher.FetchResult{}, err)
}
