// Package viewport tracks which mushaf page is current while pages scroll
// past. Visibility reports only move the current page when a page dominates
// the viewport; explicit jumps set it directly.
package viewport

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/escalopa/mushaf-overlay/internal/pageindex"
	"github.com/escalopa/mushaf-overlay/internal/telemetry"
)

const (
	DefaultThreshold  = 0.5
	DefaultGrace      = 100 * time.Millisecond
	DefaultJumpSettle = 2 * time.Second
)

// Visibility is the fraction of a page region inside the viewport
type Visibility struct {
	Page  int
	Ratio float64
}

// ChangeFunc is called with the new current page
type ChangeFunc func(page int)

// ScrollFunc asks the surface to bring a page into view
type ScrollFunc func(page int)

type region struct {
	mountedAt time.Time
	// ratio is the last reported visibility; regions keep it until reported again
	ratio float64
}

// Tracker holds the current page of one viewing session
type Tracker struct {
	threshold float64
	grace     time.Duration
	settle    time.Duration
	now       func() time.Time
	log       *zap.Logger
	onChange  ChangeFunc
	scroll    ScrollFunc

	mu      sync.Mutex
	current int
	regions map[int]region
	// jump is the page of the last explicit jump until it is confirmed
	jump      int
	jumpUntil time.Time
}

type Option func(*Tracker)

func WithLogger(l *zap.Logger) Option {
	return func(t *Tracker) { t.log = telemetry.OrNop(l) }
}

// WithThreshold sets the visible ratio a page needs before it can become current
func WithThreshold(ratio float64) Option {
	return func(t *Tracker) {
		if ratio > 0 && ratio <= 1 {
			t.threshold = ratio
		}
	}
}

// WithGrace delays observation of freshly mounted pages
func WithGrace(d time.Duration) Option {
	return func(t *Tracker) { t.grace = d }
}

// WithJumpSettle bounds how long a jump target ignores other visibility reports
func WithJumpSettle(d time.Duration) Option {
	return func(t *Tracker) { t.settle = d }
}

func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

func OnChange(fn ChangeFunc) Option {
	return func(t *Tracker) { t.onChange = fn }
}

func OnScroll(fn ScrollFunc) Option {
	return func(t *Tracker) { t.scroll = fn }
}

func New(initial int, opts ...Option) *Tracker {
	t := &Tracker{
		threshold: DefaultThreshold,
		grace:     DefaultGrace,
		settle:    DefaultJumpSettle,
		now:       time.Now,
		log:       zap.NewNop(),
		current:   clampPage(initial),
		regions:   make(map[int]region),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func clampPage(p int) int {
	switch {
	case p < 1:
		return 1
	case p > pageindex.PageCount:
		return pageindex.PageCount
	}
	return p
}

// Current returns the current page
func (t *Tracker) Current() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// Mount registers a page region. Its visibility is ignored until the grace delay passed.
func (t *Tracker) Mount(page int) {
	if page < 1 || page > pageindex.PageCount {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.regions[page]; !ok {
		t.regions[page] = region{mountedAt: t.now()}
	}
}

func (t *Tracker) Unmount(page int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.regions, page)
}

// Mounted returns the mounted pages in no particular order
func (t *Tracker) Mounted() []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]int, 0, len(t.regions))
	for p := range t.regions {
		out = append(out, p)
	}
	return out
}

// Observe feeds a batch of visibility reports. Reports only need to cover
// regions whose visibility changed; the others keep their last ratio. The
// most visible mounted page at or above the threshold becomes current.
// While a jump is settling nothing changes until the jump target is visible.
func (t *Tracker) Observe(entries []Visibility) {
	t.mu.Lock()
	now := t.now()

	for _, e := range entries {
		if r, ok := t.regions[e.Page]; ok {
			r.ratio = e.Ratio
			t.regions[e.Page] = r
		}
	}

	if t.jump != 0 {
		r, ok := t.regions[t.jump]
		switch {
		case ok && t.visible(r, now):
			t.jump = 0
		case now.Before(t.jumpUntil):
			t.mu.Unlock()
			return
		default:
			t.log.Debug("jump not confirmed before settle timeout", zap.Int("page", t.jump))
			t.jump = 0
		}
	}

	best := t.dominant(now)
	if best == 0 || best == t.current {
		t.mu.Unlock()
		return
	}
	t.current = best
	fn := t.onChange
	t.mu.Unlock()

	if fn != nil {
		fn(best)
	}
}

func (t *Tracker) visible(r region, now time.Time) bool {
	return now.Sub(r.mountedAt) >= t.grace && r.ratio >= t.threshold
}

// dominant returns the most visible eligible page, 0 when none is. Ties keep
// the current page, then favour the lower page number.
func (t *Tracker) dominant(now time.Time) int {
	best, bestRatio := 0, 0.0
	for page, r := range t.regions {
		if !t.visible(r, now) {
			continue
		}
		switch {
		case r.ratio > bestRatio,
			r.ratio == bestRatio && page == t.current,
			r.ratio == bestRatio && best != t.current && page < best:
			best, bestRatio = page, r.ratio
		}
	}
	return best
}

// JumpTo makes page current and asks the surface to scroll to it
func (t *Tracker) JumpTo(page int) int {
	page = clampPage(page)

	t.mu.Lock()
	changed := t.current != page
	t.current = page
	// the viewport moves, earlier reports no longer describe it
	for p, r := range t.regions {
		r.ratio = 0
		t.regions[p] = r
	}
	t.jump = page
	t.jumpUntil = t.now().Add(t.settle)
	change, scroll := t.onChange, t.scroll
	t.mu.Unlock()

	if scroll != nil {
		scroll(page)
	}
	if changed && change != nil {
		change(page)
	}
	return page
}
