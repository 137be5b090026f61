// Package textcache loads surah text on demand and keeps it for the session.
package textcache

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/escalopa/mushaf-overlay/internal/domain"
	"github.com/escalopa/mushaf-overlay/internal/telemetry"
)

const defaultLoadTimeout = 30 * time.Second

// Listener is called after a surah has been stored in the cache
type Listener func(script domain.ScriptID, surah int)

// Cache maps (script, surah) to its ayahs. Entries are never evicted.
type Cache struct {
	source  domain.TextSourcePort
	log     *zap.Logger
	timeout time.Duration

	mu        sync.RWMutex
	entries   map[string]*domain.SurahText
	listeners []Listener

	group singleflight.Group
}

type Option func(*Cache)

func WithLogger(l *zap.Logger) Option {
	return func(c *Cache) { c.log = telemetry.OrNop(l) }
}

// WithLoadTimeout bounds a single fetch from the text source
func WithLoadTimeout(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func New(source domain.TextSourcePort, opts ...Option) *Cache {
	c := &Cache{
		source:  source,
		log:     zap.NewNop(),
		timeout: defaultLoadTimeout,
		entries: make(map[string]*domain.SurahText),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key returns the cache key of (script, surah)
func Key(script domain.ScriptID, surah int) string {
	return fmt.Sprintf("%s-%d", script, surah)
}

// OnStore registers a listener for newly stored surahs.
// Listeners run on the loading goroutine and must not block on Load.
func (c *Cache) OnStore(l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

// Get reads the cache without fetching
func (c *Cache) Get(script domain.ScriptID, surah int) (*domain.SurahText, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[Key(script, surah)]
	return e, ok
}

// Len returns the number of cached surahs across scripts
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Load returns the cached surah or fetches it. Concurrent loads of the same
// key share one fetch. The fetch is detached from ctx cancellation so that a
// caller giving up does not fail the others waiting on it.
func (c *Cache) Load(ctx context.Context, script domain.ScriptID, surah int) (*domain.SurahText, error) {
	if _, ok := domain.SurahByNumber(surah); !ok {
		return nil, fmt.Errorf("%w: surah %d", domain.ErrInvalidRef, surah)
	}
	if e, ok := c.Get(script, surah); ok {
		return e, nil
	}

	k := Key(script, surah)
	fresh := false
	v, err, _ := c.group.Do(k, func() (any, error) {
		if e, ok := c.Get(script, surah); ok {
			return e, nil
		}

		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()

		raw, err := c.source.FetchSurah(fetchCtx, script, surah)
		if err != nil {
			return nil, fmt.Errorf("%w: fetch surah %s: %w", domain.ErrDataUnavailable, k, err)
		}
		entry, err := Transform(script, surah, raw)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.entries[k] = entry
		c.mu.Unlock()
		fresh = true

		c.log.Debug("surah cached",
			zap.String("script", string(script)),
			zap.Int("surah", surah),
			zap.Int("ayahs", len(entry.Ayahs)))
		return entry, nil
	})
	if err != nil {
		return nil, err
	}

	if fresh {
		c.notify(script, surah)
	}
	return v.(*domain.SurahText), nil
}

func (c *Cache) notify(script domain.ScriptID, surah int) {
	c.mu.RLock()
	listeners := make([]Listener, len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.RUnlock()

	for _, l := range listeners {
		l(script, surah)
	}
}

// Request starts a load in the background. The returned channel yields the
// load error (nil on success) and may be ignored.
func (c *Cache) Request(script domain.ScriptID, surah int) <-chan error {
	done := make(chan error, 1)
	go func() {
		_, err := c.Load(context.Background(), script, surah)
		if err != nil {
			c.log.Warn("background surah load failed",
				zap.String("script", string(script)),
				zap.Int("surah", surah),
				zap.Error(err))
		}
		done <- err
	}()
	return done
}

// PrefetchResult is the outcome of prefetching one surah
type PrefetchResult struct {
	Surah int
	Err   error
}

// Prefetch tracks neighbour loads started by PrefetchNeighbors
type Prefetch struct {
	done    chan struct{}
	results []PrefetchResult
}

// Wait blocks until every neighbour load has finished
func (p *Prefetch) Wait() []PrefetchResult {
	<-p.done
	return p.results
}

// PrefetchNeighbors loads surah-1 and surah+1 in the background.
// Failures are logged and reported through the returned handle only.
func (c *Cache) PrefetchNeighbors(ctx context.Context, script domain.ScriptID, surah int) *Prefetch {
	var neighbors []int
	for _, n := range []int{surah - 1, surah + 1} {
		if n >= 1 && n <= domain.SurahCount {
			neighbors = append(neighbors, n)
		}
	}

	pf := &Prefetch{done: make(chan struct{})}
	p := pool.NewWithResults[PrefetchResult]()
	for _, n := range neighbors {
		n := n
		p.Go(func() PrefetchResult {
			_, err := c.Load(ctx, script, n)
			if err != nil {
				c.log.Warn("prefetch failed",
					zap.String("script", string(script)),
					zap.Int("surah", n),
					zap.Error(err))
			}
			return PrefetchResult{Surah: n, Err: err}
		})
	}
	go func() {
		results := p.Wait()
		sort.Slice(results, func(i, j int) bool { return results[i].Surah < results[j].Surah })
		pf.results = results
		close(pf.done)
	}()
	return pf
}

// Transform validates a fetched surah and splits each ayah into words
func Transform(script domain.ScriptID, surah int, raw *domain.RawSurah) (*domain.SurahText, error) {
	if raw == nil {
		return nil, fmt.Errorf("%w: surah %d: empty payload", domain.ErrDataUnavailable, surah)
	}
	if raw.Number != 0 && raw.Number != surah {
		return nil, fmt.Errorf("%w: asked for surah %d, got %d", domain.ErrDataUnavailable, surah, raw.Number)
	}
	if meta, ok := domain.SurahByNumber(surah); ok && len(raw.Ayahs) != meta.Ayahs {
		return nil, fmt.Errorf("%w: surah %d: expected %d ayahs, got %d", domain.ErrDataUnavailable, surah, meta.Ayahs, len(raw.Ayahs))
	}

	entry := &domain.SurahText{
		Script: script,
		Surah:  surah,
		Name:   raw.Name,
		Ayahs:  make([]domain.Ayah, 0, len(raw.Ayahs)),
	}
	for i, a := range raw.Ayahs {
		if a.NumberInSurah != i+1 {
			return nil, fmt.Errorf("%w: surah %d: ayah %d out of order at position %d", domain.ErrDataUnavailable, surah, a.NumberInSurah, i+1)
		}
		words := strings.Fields(a.Text)
		if len(words) == 0 {
			return nil, fmt.Errorf("%w: surah %d: ayah %d has no text", domain.ErrDataUnavailable, surah, a.NumberInSurah)
		}
		entry.Ayahs = append(entry.Ayahs, domain.Ayah{
			Surah:  surah,
			Number: a.NumberInSurah,
			Text:   a.Text,
			Words:  words,
		})
	}
	return entry, nil
}
