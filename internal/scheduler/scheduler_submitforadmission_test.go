package scheduler_test

import (
	"context"
	"net/url"
	"testing"

	"github.com/rohmanhakim/docs-crawler/internal/config"
	"github.com/rohmanhakim/docs-crawler/internal/frontier"
	"github.com/rohmanhakim/docs-crawler/internal/progress"
	"github.com/rohmanhakim/docs-crawler/internal/robots"
	"github.com/rohmanhakim/docs-crawler/internal/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSchedulerForAdmissionTest(t *testing.T, robotMock *robotsMock) scheduler.Scheduler {
	t.Helper()
	s := scheduler.NewSchedulerWithDeps(
		context.Background(),
		newMockFinalizer(t),
		newRecordingSink(t),
		newRateLimiterMock(t),
		newFetcherMockForTest(t),
		robotMock,
		newExtractorMockForTest(t),
		newSanitizerMockForTest(t),
		newConvertMockForTest(t),
		newResolverMockForTest(t),
		newNormalizeMockForTest(t),
		newStorageMockForTest(t),
		newSleeperMock(t),
		progress.NoopObserver{},
	)

	cfg, err := config.WithDefault([]url.URL{{Scheme: "https", Host: "example.com", Path: "/"}}).Build()
	require.NoError(t, err)
	s.InitFrontier(cfg)
	return s
}

func TestSubmitUrlForAdmission_AllowedEnqueuesToken(t *testing.T) {
	target := url.URL{Scheme: "https", Host: "example.com", Path: "/docs"}

	robotMock := NewRobotsMockForTest(t)
	robotMock.OnDecide(target, robots.Decision{
		Url:     target,
		Allowed: true,
		Reason:  robots.AllowedByRobots,
	}, nil)

	s := newSchedulerForAdmissionTest(t, robotMock)

	err := s.SubmitUrlForAdmission(target, frontier.SourceCrawl, 1)
	require.Nil(t, err)

	assert.Equal(t, 1, s.FrontierVisitedCount())
	token, ok := s.DequeueFromFrontier()
	require.True(t, ok)
	assert.Equal(t, target.Path, token.URL().Path)
	assert.Equal(t, 1, token.Depth())
}

func TestSubmitUrlForAdmission_DisallowedSkipsFrontier(t *testing.T) {
	target := url.URL{Scheme: "https", Host: "example.com", Path: "/private"}

	robotMock := NewRobotsMockForTest(t)
	robotMock.OnDecide(target, robots.Decision{
		Url:     target,
		Allowed: false,
		Reason:  robots.DisallowedByRobots,
	}, nil)

	s := newSchedulerForAdmissionTest(t, robotMock)

	err := s.SubmitUrlForAdmission(target, frontier.SourceCrawl, 1)
	require.Nil(t, err)

	assert.Equal(t, 0, s.FrontierVisitedCount())
	_, ok := s.DequeueFromFrontier()
	assert.False(t, ok)
}

func TestSubmitUrlForAdmission_RobotsInfrastructureErrorPropagates(t *testing.T) {
	target := url.URL{Scheme: "https", Host: "example.com", Path: "/docs"}

	robotsErr := &robots.RobotsError{
		Message: "robots.txt fetch timed out",
		Cause:   robots.ErrCauseHttpFetchFailure,
	}

	robotMock := NewRobotsMockForTest(t)
	robotMock.OnDecide(target, robots.Decision{}, robotsErr)

	s := newSchedulerForAdmissionTest(t, robotMock)

	err := s.SubmitUrlForAdmission(target, frontier.SourceCrawl, 1)
	require.NotNil(t, err)
	assert.Equal(t, 0, s.FrontierVisitedCount())
}

func TestSubmitUrlForAdmission_DuplicateIsIgnoredByFrontier(t *testing.T) {
	target := url.URL{Scheme: "https", Host: "example.com", Path: "/docs"}

	robotMock := NewRobotsMockForTest(t)
	robotMock.OnDecide(target, robots.Decision{
		Url:     target,
		Allowed: true,
		Reason:  robots.AllowedByRobots,
	}, nil)

	s := newSchedulerForAdmissionTest(t, robotMock)

	require.Nil(t, s.SubmitUrlForAdmission(target, frontier.SourceCrawl, 1))
	require.Nil(t, s.SubmitUrlForAdmission(target, frontier.SourceCrawl, 1))

	assert.Equal(t, 1, s.FrontierVisitedCount())
}
