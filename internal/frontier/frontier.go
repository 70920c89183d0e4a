package frontier

import (
	"sync"

	"github.com/rohmanhakim/docs-crawler/internal/config"
	"github.com/rohmanhakim/docs-crawler/pkg/urlutil"
)

/*
Frontier Responsibilities
- Maintain BFS ordering
- Deduplicate URLs
- Track crawl depth
- Prevent infinite traversal
- Knows nothing about:
	- fetching
	- extraction
	- markdown
	- storage

It is a data structure + policy module, not a pipeline executor.
*/

// Frontier is the scheduler-facing contract a crawl frontier must satisfy.
// CrawlFrontier is the only production implementation; the interface exists
// so the scheduler can be tested against a recording double.
type Frontier interface {
	Init(cfg config.Config)
	Submit(candidate CrawlAdmissionCandidate)
	Enqueue(token CrawlToken)
	Dequeue() (CrawlToken, bool)
	IsDepthExhausted(depth int) bool
	CurrentMinDepth() int
	VisitedCount() int
}

// CrawlFrontier is a depth-bucketed, strictly breadth-first URL queue.
//
// Dequeue always drains the lowest depth that still has pending tokens,
// regardless of submission order, so a URL discovered at depth N+1 can
// never be returned while any depth-N URL is still pending. Depth buckets
// are created lazily and removed once drained, so depths that were never
// submitted (or are skipped entirely) never cause a nil dereference.
type CrawlFrontier struct {
	mu            sync.Mutex
	cfg           config.Config
	queuesByDepth map[int]*FIFOQueue[CrawlToken]
	visited       Set[string]
}

// NewCrawlFrontier constructs an empty frontier. Init must be called
// before Submit/Dequeue are used.
func NewCrawlFrontier() *CrawlFrontier {
	return &CrawlFrontier{
		queuesByDepth: make(map[int]*FIFOQueue[CrawlToken]),
		visited:       NewSet[string](),
	}
}

// Init resets the frontier's state and binds it to cfg for depth/page
// limit enforcement.
func (f *CrawlFrontier) Init(cfg config.Config) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cfg = cfg
	f.queuesByDepth = make(map[int]*FIFOQueue[CrawlToken])
	f.visited = NewSet[string]()
}

// Submit admits a candidate into the frontier, unless it is a duplicate
// of an already-visited URL, exceeds the configured max depth, or the
// configured max page budget has already been exhausted. Admission is
// silent: rejected candidates simply never appear in VisitedCount or
// any depth bucket.
func (f *CrawlFrontier) Submit(candidate CrawlAdmissionCandidate) {
	f.mu.Lock()
	defer f.mu.Unlock()

	target := candidate.TargetURL()
	depth := candidate.DiscoveryMetadata().Depth()
	key := urlutil.CanonicalString(target)

	if f.visited.Contains(key) {
		return
	}
	if maxDepth := f.cfg.MaxDepth(); maxDepth > 0 && depth > maxDepth {
		return
	}
	if maxPages := f.cfg.MaxPages(); maxPages > 0 && f.visited.Size() >= maxPages {
		return
	}

	f.visited.Add(key)

	q, ok := f.queuesByDepth[depth]
	if !ok {
		q = NewFIFOQueue[CrawlToken]()
		f.queuesByDepth[depth] = q
	}
	q.Enqueue(NewCrawlToken(target, depth))
}

// Enqueue re-admits a token directly into its depth bucket, bypassing
// dedup/limit checks. Used by the scheduler to requeue a token whose
// pipeline processing failed with a recoverable error, without consuming
// another slot against the visited/page budget.
func (f *CrawlFrontier) Enqueue(token CrawlToken) {
	f.mu.Lock()
	defer f.mu.Unlock()

	depth := token.Depth()
	q, ok := f.queuesByDepth[depth]
	if !ok {
		q = NewFIFOQueue[CrawlToken]()
		f.queuesByDepth[depth] = q
	}
	q.Enqueue(token)
}

// Dequeue pops the next token from the lowest non-empty depth bucket.
// It returns false once every bucket is drained.
func (f *CrawlFrontier) Dequeue() (CrawlToken, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	depth := f.currentMinDepthLocked()
	if depth == -1 {
		return CrawlToken{}, false
	}

	q := f.queuesByDepth[depth]
	token, ok := q.Dequeue()
	if q.Size() == 0 {
		delete(f.queuesByDepth, depth)
	}
	return token, ok
}

// IsDepthExhausted reports whether depth has no pending tokens. A depth
// that was never submitted, or whose bucket has fully drained, counts
// as exhausted. Negative depths are always exhausted.
func (f *CrawlFrontier) IsDepthExhausted(depth int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if depth < 0 {
		return true
	}
	q, ok := f.queuesByDepth[depth]
	if !ok || q == nil {
		return true
	}
	return q.Size() == 0
}

// CurrentMinDepth returns the lowest depth with pending tokens, or -1 if
// the frontier is empty.
func (f *CrawlFrontier) CurrentMinDepth() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.currentMinDepthLocked()
}

func (f *CrawlFrontier) currentMinDepthLocked() int {
	min := -1
	for depth, q := range f.queuesByDepth {
		if q == nil || q.Size() == 0 {
			continue
		}
		if min == -1 || depth < min {
			min = depth
		}
	}
	return min
}

// VisitedCount returns the number of unique, admitted URLs the frontier
// has ever seen. It is append-only: it never decreases as tokens are
// dequeued.
func (f *CrawlFrontier) VisitedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.visited.Size()
}
