package progress

import (
	"fmt"
	"net/url"
	"sync"

	"github.com/schollz/progressbar/v3"
)

// BarObserver renders crawl progress to the terminal with an
// indeterminate-then-determinate progressbar.v3 bar: it starts as a
// spinner (total pages isn't known until the frontier stops discovering
// new URLs) and grows its max every time a new URL is discovered.
type BarObserver struct {
	mu         sync.Mutex
	bar        *progressbar.ProgressBar
	discovered int
	finished   int
}

func NewBarObserver() *BarObserver {
	return &BarObserver{}
}

func (b *BarObserver) OnRunStart() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bar = progressbar.NewOptions(-1,
		progressbar.OptionSetDescription("crawling"),
		progressbar.OptionShowCount(),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func (b *BarObserver) OnDiscovered(discoveredURL url.URL, depth int, parent *url.URL) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.discovered++
	if b.bar != nil {
		b.bar.ChangeMax(b.discovered)
	}
}

func (b *BarObserver) OnStatus(pageURL url.URL, status Status, title string, linksFound int, errMsg string) {
	if status == StatusPending || status == StatusCrawling {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.finished++
	if b.bar == nil {
		return
	}
	b.bar.Describe(fmt.Sprintf("%s %s", status, pageURL.String()))
	_ = b.bar.Set(b.finished)
}

func (b *BarObserver) OnRunEnd() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.bar != nil {
		_ = b.bar.Finish()
	}
}
