// Package resolver assembles the ayahs that belong on a mushaf page from
// the page index and the surah text cache.
package resolver

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/escalopa/mushaf-overlay/internal/domain"
	"github.com/escalopa/mushaf-overlay/internal/pageindex"
	"github.com/escalopa/mushaf-overlay/internal/telemetry"
	"github.com/escalopa/mushaf-overlay/internal/textcache"
)

// Result is the content of a page. When Pending is non-empty the page is not
// ready, Ayahs is empty and loads for the pending surahs have been started.
type Result struct {
	Page    int
	Script  domain.ScriptID
	Ayahs   []domain.Ayah
	Pending []int
}

// Ready reports whether every surah of the page was available
func (r Result) Ready() bool {
	return len(r.Pending) == 0 && len(r.Ayahs) > 0
}

// Resolver reads page content from the cache without blocking
type Resolver struct {
	index    *pageindex.Index
	cache    *textcache.Cache
	log      *zap.Logger
	prefetch bool

	mu         sync.Mutex
	prefetched map[string]bool
}

type Option func(*Resolver)

func WithLogger(l *zap.Logger) Option {
	return func(r *Resolver) { r.log = telemetry.OrNop(l) }
}

// WithPrefetch toggles neighbour prefetch after single-surah pages resolve
func WithPrefetch(enabled bool) Option {
	return func(r *Resolver) { r.prefetch = enabled }
}

func New(index *pageindex.Index, cache *textcache.Cache, opts ...Option) *Resolver {
	r := &Resolver{
		index:      index,
		cache:      cache,
		log:        zap.NewNop(),
		prefetch:   true,
		prefetched: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the ayahs of a page under a script. Missing surahs are
// requested in the background and reported as pending.
func (r *Resolver) Resolve(page int, script domain.ScriptID) Result {
	res := Result{Page: page, Script: script}
	desc, ok := r.index.Descriptor(page)
	if !ok {
		return res
	}

	ayahs, missing := Assemble(desc, func(surah int) (*domain.SurahText, bool) {
		return r.cache.Get(script, surah)
	})
	if len(missing) > 0 {
		for _, surah := range missing {
			r.cache.Request(script, surah)
		}
		r.log.Debug("page pending",
			zap.Int("page", page),
			zap.String("script", string(script)),
			zap.Ints("surahs", missing))
		res.Pending = missing
		return res
	}

	if !desc.MultiSurah() {
		r.prefetchOnce(script, desc.SurahStart)
	}
	res.Ayahs = ayahs
	return res
}

func (r *Resolver) prefetchOnce(script domain.ScriptID, surah int) {
	if !r.prefetch {
		return
	}
	k := textcache.Key(script, surah)
	r.mu.Lock()
	if r.prefetched[k] {
		r.mu.Unlock()
		return
	}
	r.prefetched[k] = true
	r.mu.Unlock()

	r.cache.PrefetchNeighbors(context.Background(), script, surah)
}

// Assemble cuts the page's ayahs out of the surahs returned by lookup. It
// returns the surahs lookup could not provide instead of a partial page.
func Assemble(desc domain.PageDescriptor, lookup func(surah int) (*domain.SurahText, bool)) ([]domain.Ayah, []int) {
	texts := make([]*domain.SurahText, len(desc.Surahs))
	var missing []int
	for i, surah := range desc.Surahs {
		text, ok := lookup(surah)
		if !ok {
			missing = append(missing, surah)
			continue
		}
		texts[i] = text
	}
	if len(missing) > 0 {
		return nil, missing
	}

	if !desc.MultiSurah() {
		return slice(texts[0].Ayahs, desc.AyahStart, desc.AyahEnd), nil
	}

	var out []domain.Ayah
	last := len(texts) - 1
	for i, text := range texts {
		switch i {
		case 0:
			out = append(out, slice(text.Ayahs, desc.AyahStart, len(text.Ayahs))...)
		case last:
			out = append(out, slice(text.Ayahs, 1, desc.AyahEnd)...)
		default:
			out = append(out, text.Ayahs...)
		}
	}
	return out, nil
}

// slice returns ayahs at 1-based positions from..to inclusive, clamped to the list
func slice(ayahs []domain.Ayah, from, to int) []domain.Ayah {
	if from < 1 {
		from = 1
	}
	if to > len(ayahs) {
		to = len(ayahs)
	}
	if from > to {
		return nil
	}
	out := make([]domain.Ayah, to-from+1)
	copy(out, ayahs[from-1:to])
	return out
}
