package resolver

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/escalopa/mushaf-overlay/internal/domain"
	"github.com/escalopa/mushaf-overlay/internal/mushaftest"
	"github.com/escalopa/mushaf-overlay/internal/pageindex"
	"github.com/escalopa/mushaf-overlay/internal/textcache"
)

const script = domain.ScriptUthmani

func newResolver(t *testing.T, opts ...Option) (*Resolver, *textcache.Cache, *mushaftest.TextSource) {
	t.Helper()
	ix, err := pageindex.Default()
	if err != nil {
		t.Fatalf("page index: %v", err)
	}
	src := mushaftest.NewTextSource()
	cache := textcache.New(src)
	return New(ix, cache, opts...), cache, src
}

func warm(t *testing.T, cache *textcache.Cache, surahs ...int) {
	t.Helper()
	for _, s := range surahs {
		if _, err := cache.Load(context.Background(), script, s); err != nil {
			t.Fatalf("load surah %d: %v", s, err)
		}
	}
}

func TestResolveLastPageConcatenatesWholeSurahs(t *testing.T) {
	r, cache, _ := newResolver(t, WithPrefetch(false))
	warm(t, cache, 112, 113, 114)

	res := r.Resolve(604, script)
	if !res.Ready() {
		t.Fatalf("expected page 604 to be ready, pending %v", res.Pending)
	}
	if len(res.Ayahs) != 15 {
		t.Fatalf("expected 15 ayahs, got %d", len(res.Ayahs))
	}

	want := []struct{ surah, count int }{{112, 4}, {113, 5}, {114, 6}}
	i := 0
	for _, w := range want {
		for n := 1; n <= w.count; n++ {
			a := res.Ayahs[i]
			if a.Surah != w.surah || a.Number != n {
				t.Fatalf("position %d: got %d:%d, want %d:%d", i, a.Surah, a.Number, w.surah, n)
			}
			i++
		}
	}
}

func TestResolveFirstPage(t *testing.T) {
	r, cache, _ := newResolver(t, WithPrefetch(false))
	warm(t, cache, 1)

	res := r.Resolve(1, script)
	if len(res.Ayahs) != 7 {
		t.Fatalf("expected 7 ayahs, got %d", len(res.Ayahs))
	}
	for i, a := range res.Ayahs {
		if a.Surah != 1 || a.Number != i+1 {
			t.Fatalf("position %d: got %d:%d", i, a.Surah, a.Number)
		}
	}
}

func TestResolveSingleSurahPageFiltersRange(t *testing.T) {
	r, cache, _ := newResolver(t, WithPrefetch(false))
	warm(t, cache, 2)

	// page 42 holds 2:253..2:256
	res := r.Resolve(42, script)
	if len(res.Ayahs) != 4 {
		t.Fatalf("expected 4 ayahs, got %d", len(res.Ayahs))
	}
	if res.Ayahs[0].Number != 253 || res.Ayahs[3].Number != 256 {
		t.Fatalf("unexpected range %d..%d", res.Ayahs[0].Number, res.Ayahs[3].Number)
	}
}

func TestResolveMultiSurahPageWithPartialEnds(t *testing.T) {
	r, cache, _ := newResolver(t, WithPrefetch(false))
	warm(t, cache, 98, 99, 100)

	// page 599 holds 98:8, all of 99 and 100:1..9
	res := r.Resolve(599, script)
	if !res.Ready() {
		t.Fatalf("page 599 pending %v", res.Pending)
	}
	if got, want := len(res.Ayahs), 1+8+9; got != want {
		t.Fatalf("expected %d ayahs, got %d", want, got)
	}
	first, last := res.Ayahs[0], res.Ayahs[len(res.Ayahs)-1]
	if first.Surah != 98 || first.Number != 8 {
		t.Fatalf("first ayah %d:%d", first.Surah, first.Number)
	}
	if last.Surah != 100 || last.Number != 9 {
		t.Fatalf("last ayah %d:%d", last.Surah, last.Number)
	}
}

func TestResolveMultiSurahIsAllOrNothing(t *testing.T) {
	r, cache, src := newResolver(t, WithPrefetch(false))
	warm(t, cache, 112)
	src.Hold()
	defer src.Release()

	res := r.Resolve(604, script)
	if len(res.Ayahs) != 0 {
		t.Fatalf("expected no ayahs while surahs are missing, got %d", len(res.Ayahs))
	}
	pending := append([]int(nil), res.Pending...)
	sort.Ints(pending)
	if len(pending) != 2 || pending[0] != 113 || pending[1] != 114 {
		t.Fatalf("expected pending [113 114], got %v", res.Pending)
	}

	waitFor(t, func() bool { return src.Calls(script, 113) == 1 && src.Calls(script, 114) == 1 })
	if src.Calls(script, 112) != 1 {
		t.Fatalf("surah 112 should not be fetched again")
	}
}

func TestResolveMissingSingleSurahTriggersLoad(t *testing.T) {
	r, cache, _ := newResolver(t, WithPrefetch(false))
	res := r.Resolve(3, script)
	if res.Ready() || len(res.Pending) != 1 || res.Pending[0] != 2 {
		t.Fatalf("expected surah 2 pending, got %+v", res)
	}
	waitFor(t, func() bool {
		_, ok := cache.Get(script, 2)
		return ok
	})
	if res := r.Resolve(3, script); !res.Ready() {
		t.Fatalf("page 3 should resolve after the load")
	}
}

func TestResolveUnknownPage(t *testing.T) {
	r, _, src := newResolver(t)
	res := r.Resolve(605, script)
	if res.Ready() || len(res.Pending) != 0 || len(res.Ayahs) != 0 {
		t.Fatalf("unexpected result for unknown page: %+v", res)
	}
	if src.TotalCalls() != 0 {
		t.Fatalf("unknown page must not trigger loads")
	}
}

func TestResolveSingleSurahPrefetchesNeighbours(t *testing.T) {
	r, cache, src := newResolver(t)
	warm(t, cache, 18)

	// page 300 lies inside surah 18
	if res := r.Resolve(300, script); !res.Ready() {
		t.Fatalf("page 300 should be ready")
	}
	waitFor(t, func() bool {
		_, prev := cache.Get(script, 17)
		_, next := cache.Get(script, 19)
		return prev && next
	})

	r.Resolve(301, script)
	if n := src.Calls(script, 17); n != 1 {
		t.Fatalf("neighbour prefetch should run once per surah, got %d fetches", n)
	}
}

func TestLayoutMarksBismillah(t *testing.T) {
	ayahs := []domain.Ayah{
		{Surah: 8, Number: 75},
		{Surah: 9, Number: 1},
		{Surah: 9, Number: 2},
	}
	lines := Layout(ayahs)
	if lines[0].SurahHeader || lines[0].Bismillah {
		t.Fatalf("mid-surah ayah must not open a surah")
	}
	if !lines[1].SurahHeader {
		t.Fatalf("9:1 should open a surah")
	}
	if lines[1].Bismillah {
		t.Fatalf("At-Tawbah must not get a Bismillah")
	}

	r, cache, _ := newResolver(t, WithPrefetch(false))
	warm(t, cache, 112, 113, 114)
	lines = Layout(r.Resolve(604, script).Ayahs)
	var marked []int
	for _, l := range lines {
		if l.Bismillah {
			marked = append(marked, l.Index)
		}
	}
	if len(marked) != 3 || marked[0] != 0 || marked[1] != 4 || marked[2] != 9 {
		t.Fatalf("expected Bismillah at 0, 4, 9; got %v", marked)
	}
}

func TestLayoutSkipsFatihah(t *testing.T) {
	lines := Layout([]domain.Ayah{{Surah: 1, Number: 1}, {Surah: 1, Number: 2}})
	if !lines[0].SurahHeader || lines[0].Bismillah {
		t.Fatalf("Al-Fatihah opens with a header but no separate Bismillah: %+v", lines[0])
	}
}

func TestAssembleReportsEveryMissingSurah(t *testing.T) {
	ix, _ := pageindex.Default()
	desc, _ := ix.Descriptor(603)
	ayahs, missing := Assemble(desc, func(int) (*domain.SurahText, bool) { return nil, false })
	if ayahs != nil || len(missing) != 3 {
		t.Fatalf("expected three missing surahs, got %v", missing)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
