package scheduler

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/rohmanhakim/docs-crawler/internal/assets"
	"github.com/rohmanhakim/docs-crawler/internal/build"
	"github.com/rohmanhakim/docs-crawler/internal/config"
	"github.com/rohmanhakim/docs-crawler/internal/extractor"
	"github.com/rohmanhakim/docs-crawler/internal/fetcher"
	"github.com/rohmanhakim/docs-crawler/internal/frontier"
	"github.com/rohmanhakim/docs-crawler/internal/mdconvert"
	"github.com/rohmanhakim/docs-crawler/internal/metadata"
	"github.com/rohmanhakim/docs-crawler/internal/normalize"
	"github.com/rohmanhakim/docs-crawler/internal/progress"
	"github.com/rohmanhakim/docs-crawler/internal/robots"
	"github.com/rohmanhakim/docs-crawler/internal/sanitizer"
	"github.com/rohmanhakim/docs-crawler/internal/storage"
	"github.com/rohmanhakim/docs-crawler/pkg/failure"
	"github.com/rohmanhakim/docs-crawler/pkg/hashutil"
	"github.com/rohmanhakim/docs-crawler/pkg/limiter"
	"github.com/rohmanhakim/docs-crawler/pkg/retry"
	"github.com/rohmanhakim/docs-crawler/pkg/timeutil"
	"github.com/rohmanhakim/docs-crawler/pkg/urlutil"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

/*
 Scheduler is the sole control-plane authority of the crawl.

 Determinism and admission guarantees:
 - Scheduler is the ONLY component allowed to decide whether a URL
   may enter the crawl frontier.
 - All semantic admission checks (robots.txt, scope, depth, limits)
   MUST be completed before submitting a URL to the frontier.
 - No other component may enqueue, reject, or reorder URLs.
 - The frontier should only accept already-admitted URLs.

 Per-page pipeline failures (fetch, parse, sanitize, convert, normalize,
 write) never abort the crawl: they are counted, reported through the
 Observer as a terminal status, and the worker moves to the next token.
 Only a failure to admit the seed, or context cancellation (timeout or
 external interrupt), stops the whole run.

 Metadata emission is observational only and MUST NOT influence
 scheduling, retries, or crawl termination. The Observer holds to the
 same rule for CLI-visible progress reporting.

 Concurrency model:
 - cfg.Concurrency() worker goroutines share one frontier.
 - A worker that finds the frontier empty does not exit immediately: a
   sibling worker may currently be processing a page that will submit
   new URLs. Workers park on a short poll until either new work appears
   or every worker is parked with nothing in flight, at which point the
   crawl is genuinely done.
*/

type Scheduler struct {
	ctx                    context.Context
	metadataSink           metadata.MetadataSink
	crawlFinalizer         metadata.CrawlFinalizer
	observer               progress.Observer
	robot                  robots.Robot
	frontier               frontier.Frontier
	htmlFetcher            fetcher.Fetcher
	domExtractor           extractor.Extractor
	htmlSanitizer          sanitizer.Sanitizer
	markdownConversionRule mdconvert.ConvertRule
	assetResolver          assets.Resolver
	markdownConstraint     normalize.Constraint
	storageSink            storage.Sink
	rateLimiter            limiter.RateLimiter
	sleeper                timeutil.Sleeper

	mu           sync.Mutex
	currentHost  string
	writeResults []storage.WriteResult
}

// maxAssetSizeBytes bounds how large a single linked asset (image, etc.) may
// be before the resolver skips downloading it. Config has no override for
// this today; pages that link larger assets keep their remote URL untouched.
const maxAssetSizeBytes int64 = 10 * 1024 * 1024

// NewScheduler builds a Scheduler wired to real infrastructure. ctx bounds
// the whole run (cancel it, e.g. via signal.NotifyContext, to interrupt a
// crawl in progress) and observer receives CLI-visible progress; pass
// progress.NoopObserver{} to run silently.
func NewScheduler(ctx context.Context, observer progress.Observer) Scheduler {
	log := zerolog.New(os.Stdout).With().Timestamp().Str("component", "scheduler").Logger()
	recorder := metadata.NewRecorder(log)
	cachedRobot := robots.NewCachedRobot(&recorder)
	crawlFrontier := frontier.NewCrawlFrontier()
	htmlFetcher := fetcher.NewHtmlFetcher(&recorder)
	ext := extractor.NewDomExtractor(&recorder, extractor.ExtractParam{})
	htmlSanitizer := sanitizer.NewHTMLSanitizer(&recorder)
	conversionRule := mdconvert.NewRule(&recorder)
	resolver := assets.NewLocalResolver(&recorder, &http.Client{}, "docs-crawler/1.0")
	markdownConstraint := normalize.NewMarkdownConstraint(&recorder)
	storageSink := storage.NewLocalSink(&recorder)
	rateLimiter := limiter.NewConcurrentRateLimiter()
	sleeper := timeutil.NewRealSleeper()
	if observer == nil {
		observer = progress.NoopObserver{}
	}
	return Scheduler{
		ctx:                    ctx,
		metadataSink:           &recorder,
		crawlFinalizer:         &recorder,
		observer:               observer,
		robot:                  &cachedRobot,
		frontier:               crawlFrontier,
		htmlFetcher:            &htmlFetcher,
		domExtractor:           &ext,
		htmlSanitizer:          &htmlSanitizer,
		markdownConversionRule: conversionRule,
		assetResolver:          &resolver,
		markdownConstraint:     &markdownConstraint,
		storageSink:            &storageSink,
		rateLimiter:            rateLimiter,
		sleeper:                sleeper,
	}
}

// NewSchedulerWithDeps creates a Scheduler with injected dependencies for testing.
// This constructor allows tests to provide mock implementations of metadata interfaces
// to verify behavior without relying on real infrastructure.
func NewSchedulerWithDeps(
	ctx context.Context,
	crawlFinalizer metadata.CrawlFinalizer,
	metadataSink metadata.MetadataSink,
	rateLimiter limiter.RateLimiter,
	fetcher fetcher.Fetcher,
	robot robots.Robot,
	domExtractor extractor.Extractor,
	sanitizer sanitizer.Sanitizer,
	rule mdconvert.ConvertRule,
	resolver assets.Resolver,
	markdownConstraint normalize.Constraint,
	storageSink storage.Sink,
	sleeper timeutil.Sleeper,
	observer progress.Observer,
) Scheduler {
	crawlFrontier := frontier.NewCrawlFrontier()
	if observer == nil {
		observer = progress.NoopObserver{}
	}
	return Scheduler{
		ctx:                    ctx,
		metadataSink:           metadataSink,
		crawlFinalizer:         crawlFinalizer,
		observer:               observer,
		robot:                  robot,
		frontier:               crawlFrontier,
		htmlFetcher:            fetcher,
		domExtractor:           domExtractor,
		htmlSanitizer:          sanitizer,
		markdownConversionRule: rule,
		assetResolver:          resolver,
		markdownConstraint:     markdownConstraint,
		storageSink:            storageSink,
		rateLimiter:            rateLimiter,
		sleeper:                sleeper,
	}
}

// SubmitUrlForAdmission performs all semantic checks required for a URL
// to enter the crawl frontier.
//
// This function is the single admission choke point for the system.
// A nil return means no robots infrastructure failure occurred: an allowed
// URL has been submitted to the frontier, and a disallowed one has been
// recorded and dropped.
//
// No other code path may call Frontier.Submit.
// - Only the scheduler imports frontier
// - Only the scheduler constructs CrawlAdmissionCandidate
// - Pipeline stages never see frontier types
func (s *Scheduler) SubmitUrlForAdmission(
	url url.URL,
	sourceContext frontier.SourceContext,
	depth int,
) failure.ClassifiedError {
	// Fetch robots.txt
	robotsDecision, robotsError := s.robot.Decide(url)
	// Robots infrastructure failure → scheduler-level error
	if robotsError != nil {
		return robotsError
	}

	host := s.hostFor(url)

	// Reset backoff after successful robots request
	if s.rateLimiter != nil {
		s.rateLimiter.ResetBackoff(host)
	}

	if robotsDecision.CrawlDelay > 0 && s.rateLimiter != nil {
		s.rateLimiter.SetCrawlDelay(host, robotsDecision.CrawlDelay)
	}

	// Robots explicitly disallowed → normal, terminal outcome
	if !robotsDecision.Allowed {
		// Important:
		// - metadata recorded here (robots records only fetch failures)
		// - NO retry
		// - NO abort
		// - NO frontier submission
		s.metadataSink.RecordError(
			time.Now(),
			"scheduler",
			"SubmitUrlForAdmission",
			metadata.CausePolicyDisallow,
			fmt.Sprintf("robots disallowed: %s", robotsDecision.Reason),
			[]metadata.Attribute{
				metadata.NewAttr(metadata.AttrURL, url.String()),
			},
		)
		return nil
	}

	// Only submit to frontier if robots allowed
	candidate := frontier.NewCrawlAdmissionCandidate(
		robotsDecision.Url,
		sourceContext,
		frontier.NewDiscoveryMetadata(depth, nil),
	)

	// Submit Allowed URL for Admission by Frontier
	s.frontier.Submit(candidate)
	return nil
}

// hostFor returns the host used for per-host rate limiting decisions. The
// crawl is single-host scoped, so this collapses to the seed's host once
// Run has set it.
func (s *Scheduler) hostFor(u url.URL) string {
	if host := u.Host; host != "" {
		return host
	}
	return s.currentHost
}

// ExecuteCrawling loads cfg from configPath, then delegates to Run.
func (s *Scheduler) ExecuteCrawling(configPath string) (CrawlingExecution, error) {
	cfg, err := config.WithConfigFile(configPath)
	if err != nil {
		s.metadataSink.RecordError(
			time.Now(),
			"config",
			"config.WithConfigFile",
			metadata.CauseContentInvalid,
			err.Error(),
			[]metadata.Attribute{},
		)
		return CrawlingExecution{}, err
	}
	return s.Run(cfg)
}

// Run drives cfg's crawl to completion using a bounded pool of concurrent
// workers, then merges every saved page into one document (unless
// cfg.NoMerge()). Statistics are recorded exactly once, at the end,
// regardless of how the crawl terminates. A non-nil returned error wrapping
// context.Canceled or context.DeadlineExceeded means the run was cut short
// and no merge was attempted.
func (s *Scheduler) Run(cfg config.Config) (CrawlingExecution, error) {
	crawlStartTime := time.Now()

	if s.observer == nil {
		s.observer = progress.NoopObserver{}
	}

	var totalErrors int
	var totalAssets int

	defer func() {
		crawlDuration := time.Since(crawlStartTime)
		totalPages := s.frontier.VisitedCount()
		s.crawlFinalizer.RecordFinalCrawlStats(
			totalPages,
			totalErrors,
			totalAssets,
			crawlDuration,
		)
	}()

	// Validate that at least one seed URL exists
	if len(cfg.SeedURLs()) == 0 {
		err := fmt.Errorf("no seed URLs configured")
		s.metadataSink.RecordError(
			time.Now(),
			"config",
			"config validation",
			metadata.CauseContentInvalid,
			err.Error(),
			[]metadata.Attribute{},
		)
		return CrawlingExecution{}, err
	}

	baseCtx := context.Background()
	if s.ctx != nil {
		baseCtx = s.ctx
	}
	ctx, cancel := context.WithTimeout(baseCtx, cfg.Timeout())
	defer cancel()

	// 1. Prepare the output directory before any page is processed.
	if err := s.storageSink.Begin(cfg.OutputDir()); err != nil {
		return CrawlingExecution{}, err
	}

	// 1.1 Initialize rate limiter
	s.rateLimiter.SetBaseDelay(cfg.BaseDelay())
	s.rateLimiter.SetJitter(cfg.Jitter())
	s.rateLimiter.SetRandomSeed(cfg.RandomSeed())

	// 1.2 Initialize Robots and Frontier
	s.robot.Init(cfg.UserAgent())
	s.frontier.Init(cfg)
	if cfg.Headless() {
		if _, alreadyHeadless := s.htmlFetcher.(*fetcher.HeadlessFetcher); !alreadyHeadless {
			headlessFetcher := fetcher.NewHeadlessFetcher(s.metadataSink)
			s.htmlFetcher = &headlessFetcher
		}
	}
	s.htmlFetcher.Init(&http.Client{})

	// 1.3 Configure DOM Extractor with extraction parameters from config
	s.domExtractor.SetExtractParam(extractor.ExtractParam{
		BodySpecificityBias:  cfg.BodySpecificityBias(),
		LinkDensityThreshold: cfg.LinkDensityThreshold(),
		ScoreMultiplier: extractor.ContentScoreMultiplier{
			NonWhitespaceDivisor: cfg.ScoreMultiplierNonWhitespaceDivisor(),
			Paragraphs:           cfg.ScoreMultiplierParagraphs(),
			Headings:             cfg.ScoreMultiplierHeadings(),
			CodeBlocks:           cfg.ScoreMultiplierCodeBlocks(),
			ListItems:            cfg.ScoreMultiplierListItems(),
		},
		Threshold: extractor.MeaningfulThreshold{
			MinNonWhitespace:    cfg.ThresholdMinNonWhitespace(),
			MinHeadings:         cfg.ThresholdMinHeadings(),
			MinParagraphsOrCode: cfg.ThresholdMinParagraphsOrCode(),
			MaxLinkDensity:      cfg.ThresholdMaxLinkDensity(),
		},
	})

	seedURL := cfg.SeedURLs()[0]
	s.currentHost = seedURL.Host

	s.observer.OnRunStart()

	// 2. Admit the seed URL through robots checking
	if err := s.SubmitUrlForAdmission(seedURL, frontier.SourceSeed, 0); err != nil {
		if robotsErr, ok := err.(*robots.RobotsError); ok {
			s.recordRobotsErrorAndBackoff(robotsErr, seedURL)
		}
		s.observer.OnRunEnd()
		return CrawlingExecution{}, err
	}
	s.observer.OnDiscovered(seedURL, 0, nil)

	concurrency := cfg.Concurrency()
	if concurrency < 1 {
		concurrency = 1
	}

	var active int
	var activeMu sync.Mutex

	group, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < concurrency; i++ {
		group.Go(func() error {
			for {
				select {
				case <-groupCtx.Done():
					return nil
				default:
				}

				token, ok := s.frontier.Dequeue()
				if !ok {
					activeMu.Lock()
					idle := active == 0
					activeMu.Unlock()
					if idle {
						return nil
					}
					s.sleeper.Sleep(10 * time.Millisecond)
					continue
				}

				activeMu.Lock()
				active++
				activeMu.Unlock()

				s.processToken(groupCtx, cfg, seedURL, token, &totalErrors, &totalAssets)

				activeMu.Lock()
				active--
				activeMu.Unlock()
			}
		})
	}

	_ = group.Wait()
	s.observer.OnRunEnd()

	execution := CrawlingExecution{
		WriteResults: s.writeResults,
		TotalErrors:  totalErrors,
	}

	if ctx.Err() != nil {
		// Interrupted or timed out: never merge a crawl that didn't finish.
		return execution, ctx.Err()
	}

	if cfg.NoMerge() {
		return execution, nil
	}

	mergedPath, mergeErr := s.storageSink.Merge(cfg.OutputDir(), cfg.MergedFilename())
	if mergeErr != nil {
		return execution, mergeErr
	}
	execution.MergedPath = mergedPath

	return execution, nil
}

// processToken runs a single crawl token through the fetch → extract →
// sanitize → discover → convert → resolve-assets → normalize → save
// pipeline. Every stage failure is counted and reported through the
// Observer as a terminal status; it never aborts the crawl, so the worker
// is always free to pick up the next token.
func (s *Scheduler) processToken(
	ctx context.Context,
	cfg config.Config,
	seedURL url.URL,
	token frontier.CrawlToken,
	totalErrors *int,
	totalAssets *int,
) {
	host := s.hostFor(token.URL())
	delay := s.rateLimiter.ResolveDelay(host)
	s.sleeper.Sleep(delay)

	s.observer.OnStatus(token.URL(), progress.StatusCrawling, "", 0, "")

	// 3. Fetch Page URL
	fetchParam := fetcher.NewFetchParam(token.URL(), cfg.UserAgent())
	fetchResult, err := s.htmlFetcher.Fetch(ctx, token.Depth(), fetchParam, RetryParam(cfg))
	if err != nil {
		s.incrementErrors(totalErrors)
		s.observer.OnStatus(token.URL(), progress.StatusSkipped, "", 0, err.Error())
		return
	}

	// 4. Extract HTML DOM
	extractionResult, err := s.domExtractor.Extract(fetchResult.URL(), fetchResult.Body())
	if err != nil {
		s.incrementErrors(totalErrors)
		s.observer.OnStatus(token.URL(), progress.StatusFailed, "", 0, err.Error())
		return
	}

	// 5. Sanitize extracted HTML
	sanitizedHtml, err := s.htmlSanitizer.Sanitize(extractionResult.ContentNode)
	if err != nil {
		s.incrementErrors(totalErrors)
		s.observer.OnStatus(token.URL(), progress.StatusFailed, "", 0, err.Error())
		return
	}

	// 5.1 Resolve discovered links against this page and admit same-site ones
	linksFound := 0
	parent := token.URL()
	for _, discovered := range sanitizedHtml.GetDiscoveredURLs() {
		resolved, resolveErr := urlutil.Resolve(fetchResult.URL(), discovered.String())
		if resolveErr != nil {
			s.incrementErrors(totalErrors)
			continue
		}
		if !urlutil.Admit(resolved, seedURL, cfg.StayOnSubdomain(), cfg.ExcludePatterns()) {
			continue
		}
		submissionErr := s.SubmitUrlForAdmission(resolved, frontier.SourceCrawl, token.Depth()+1)
		if submissionErr != nil {
			if robotsErr, ok := submissionErr.(*robots.RobotsError); ok {
				s.recordRobotsErrorAndBackoff(robotsErr, resolved)
			}
			s.incrementErrors(totalErrors)
			continue
		}
		linksFound++
		s.observer.OnDiscovered(resolved, token.Depth()+1, &parent)
	}

	// 6. HTML → Markdown Conversion
	conversionResult, err := s.markdownConversionRule.Convert(sanitizedHtml)
	if err != nil {
		s.incrementErrors(totalErrors)
		s.observer.OnStatus(token.URL(), progress.StatusFailed, "", linksFound, err.Error())
		return
	}

	// 7. Assets Resolution
	resolveParam := assets.NewResolveParam(cfg.OutputDir(), maxAssetSizeBytes)
	assetfulMarkdown, err := s.assetResolver.Resolve(
		ctx,
		fetchResult.URL(),
		conversionResult,
		resolveParam,
		RetryParam(cfg),
	)
	if err != nil {
		// Asset failures don't invalidate the page itself; keep going with
		// whatever resolved so the page is still saved.
		s.incrementErrors(totalErrors)
	}
	s.incrementAssets(totalAssets, len(assetfulMarkdown.LocalAssets()))

	// 8. Markdown Normalization
	normalizeParam := normalize.NewNormalizeParam(
		build.Version,
		fetchResult.FetchedAt(),
		hashutil.HashAlgoBLAKE3,
		token.Depth(),
		cfg.AllowedPathPrefix(),
	)
	normalizedMarkdown, err := s.markdownConstraint.Normalize(fetchResult.URL(), assetfulMarkdown, normalizeParam)
	if err != nil {
		s.incrementErrors(totalErrors)
		s.observer.OnStatus(token.URL(), progress.StatusFailed, "", linksFound, err.Error())
		return
	}

	// 9. Save Artifact
	writeResult, err := s.storageSink.Save(fetchResult.URL(), normalizedMarkdown)
	if err != nil {
		s.incrementErrors(totalErrors)
		s.observer.OnStatus(token.URL(), progress.StatusFailed, "", linksFound, err.Error())
		return
	}
	s.appendWriteResult(writeResult)
	s.observer.OnStatus(token.URL(), progress.StatusSuccess, normalizedMarkdown.Frontmatter().Title(), linksFound, "")
}

func (s *Scheduler) incrementErrors(totalErrors *int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	*totalErrors++
}

func (s *Scheduler) incrementAssets(totalAssets *int, by int) {
	if by == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	*totalAssets += by
}

func (s *Scheduler) appendWriteResult(result storage.WriteResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeResults = append(s.writeResults, result)
}

// recordRobotsErrorAndBackoff records a robots error using metadataSink and
// triggers exponential backoff on the rate limiter if the error cause warrants it.
// This method handles ErrCauseHttpTooManyRequests (429) and ErrCauseHttpServerError (5xx)
// by recording the error and applying backoff to the current host.
func (s *Scheduler) recordRobotsErrorAndBackoff(robotsErr *robots.RobotsError, targetURL url.URL) {
	// Only record and backoff for specific HTTP error causes
	if robotsErr.Cause == robots.ErrCauseHttpTooManyRequests ||
		robotsErr.Cause == robots.ErrCauseHttpServerError {
		s.metadataSink.RecordError(
			time.Now(),
			"scheduler",
			"SubmitUrlForAdmission",
			metadata.CauseNetworkFailure,
			robotsErr.Error(),
			[]metadata.Attribute{
				metadata.NewAttr(metadata.AttrURL, targetURL.String()),
				metadata.NewAttr(metadata.AttrHost, targetURL.Host),
				metadata.NewAttr(metadata.AttrPath, targetURL.Path),
			},
		)
		if s.rateLimiter != nil {
			s.rateLimiter.Backoff(targetURL.Host)
		}
	}
}

func RetryParam(cfg config.Config) retry.RetryParam {
	return retry.NewRetryParam(
		cfg.BaseDelay(),
		cfg.Jitter(),
		cfg.RandomSeed(),
		cfg.MaxAttempt(),
		timeutil.NewBackoffParam(
			cfg.BackoffInitialDuration(),
			cfg.BackoffMultiplier(),
			cfg.BackoffMaxDuration(),
		),
	)
}

// ---------------------------------------------------------------------------
// Test Helper Methods
// These methods are exported to enable testing of SubmitUrlForAdmission()
// and other scheduler internals. They are not part of the public API.
// ---------------------------------------------------------------------------

// InitWith initializes the dependencies with the given data.
// This is a test helper method.
func (s *Scheduler) InitWith(userAgent string, baseDelay time.Duration, jitter time.Duration, randomSeed int64) {
	s.robot.Init(userAgent)
	s.rateLimiter.SetBaseDelay(baseDelay)
	s.rateLimiter.SetJitter(jitter)
	s.rateLimiter.SetRandomSeed(randomSeed)
}

// InitFrontier binds the frontier to cfg so SubmitUrlForAdmission can be
// exercised without going through ExecuteCrawling's config-file loading.
// This is a test helper method.
func (s *Scheduler) InitFrontier(cfg config.Config) {
	s.frontier.Init(cfg)
}

// SetCurrentHost sets the current host.
// This is a test helper method to simulate the host context.
func (s *Scheduler) SetCurrentHost(host string) {
	s.currentHost = host
}

// FrontierVisitedCount returns the number of URLs in the frontier's visited set.
// This is a test helper method to verify frontier state.
func (s *Scheduler) FrontierVisitedCount() int {
	if s.frontier == nil {
		return 0
	}
	return s.frontier.VisitedCount()
}

// DequeueFromFrontier dequeues a token from the frontier.
// This is a test helper method to verify frontier contents.
func (s *Scheduler) DequeueFromFrontier() (frontier.CrawlToken, bool) {
	if s.frontier == nil {
		return frontier.CrawlToken{}, false
	}
	return s.frontier.Dequeue()
}

// SetConvertRule sets the markdown conversion rule for testing.
// This is a test helper method to inject mock conversion rules.
func (s *Scheduler) SetConvertRule(rule mdconvert.ConvertRule) {
	s.markdownConversionRule = rule
}
