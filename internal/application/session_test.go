package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/escalopa/mushaf-overlay/internal/compositor"
	"github.com/escalopa/mushaf-overlay/internal/domain"
	"github.com/escalopa/mushaf-overlay/internal/highlight"
	"github.com/escalopa/mushaf-overlay/internal/mushaftest"
	"github.com/escalopa/mushaf-overlay/internal/pageindex"
	"github.com/escalopa/mushaf-overlay/internal/viewport"
)

type fixture struct {
	deps   Deps
	source *mushaftest.TextSource
	store  *mushaftest.HighlightStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ix, err := pageindex.Default()
	if err != nil {
		t.Fatalf("page index: %v", err)
	}
	f := &fixture{
		source: mushaftest.NewTextSource(),
		store:  mushaftest.NewHighlightStore(),
	}
	f.deps = Deps{
		Index:       ix,
		Source:      f.source,
		Store:       f.store,
		Palette:     compositor.DefaultPalette(),
		LoadTimeout: time.Second,
	}
	return f
}

func (f *fixture) session(t *testing.T, opts ...SessionOption) *Session {
	t.Helper()
	opts = append([]SessionOption{WithPrefetch(false)}, opts...)
	s := NewSession("student-1", domain.ScriptUthmani, f.deps, opts...)
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}
	return s
}

type views struct {
	mu   sync.Mutex
	list []PageView
}

func (v *views) add(pv PageView) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.list = append(v.list, pv)
}

func (v *views) forPage(page int) []PageView {
	v.mu.Lock()
	defer v.mu.Unlock()
	var out []PageView
	for _, pv := range v.list {
		if pv.Page == page {
			out = append(out, pv)
		}
	}
	return out
}

func TestLoadPageAssemblesLastPage(t *testing.T) {
	s := newFixture(t).session(t)
	v, err := s.LoadPage(context.Background(), 604)
	if err != nil {
		t.Fatalf("load page: %v", err)
	}
	if !v.Ready() || len(v.Ayahs) != 15 || len(v.Lines) != 15 {
		t.Fatalf("unexpected view: %d ayahs, %d lines", len(v.Ayahs), len(v.Lines))
	}
	if len(v.Styles) != 15 || len(v.Styles[0]) != 4 {
		t.Fatalf("styles must follow the page shape")
	}
	if v.Descriptor.Juz != 30 {
		t.Fatalf("descriptor not attached: %+v", v.Descriptor)
	}
}

func TestLoadPageReportsUnavailableText(t *testing.T) {
	f := newFixture(t)
	f.source.Fail(113, mushaftest.ErrInjected)
	s := f.session(t)

	_, err := s.LoadPage(context.Background(), 604)
	if !errors.Is(err, domain.ErrDataUnavailable) {
		t.Fatalf("expected ErrDataUnavailable, got %v", err)
	}
	if v := s.View(context.Background(), 604); v.Ready() || len(v.Ayahs) != 0 {
		t.Fatalf("page must stay a placeholder while a surah is missing")
	}

	f.source.Fail(113, nil)
	if _, err := s.LoadPage(context.Background(), 604); err != nil {
		t.Fatalf("retry should succeed: %v", err)
	}
	if _, err := s.LoadPage(context.Background(), 605); !errors.Is(err, domain.ErrInvalidRef) {
		t.Fatalf("expected ErrInvalidRef for page 605, got %v", err)
	}
}

func TestToggleWordScenario(t *testing.T) {
	f := newFixture(t)
	s := f.session(t)
	ctx := context.Background()
	if _, err := s.LoadPage(ctx, 1); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := s.SetCategory(domain.CategoryTajweed); err != nil {
		t.Fatalf("category: %v", err)
	}

	out, err := s.ToggleWord(ctx, 1, 2, 2, "")
	if err != nil || out != highlight.Created {
		t.Fatalf("toggle: %v %v", out, err)
	}
	all, _ := f.store.ListHighlights(ctx, "student-1")
	if len(all) != 1 {
		t.Fatalf("expected one stored highlight, got %d", len(all))
	}
	h := all[0]
	if h.Surah != 1 || h.AyahStart != 3 || h.AyahEnd != 3 || *h.WordStart != 2 || *h.WordEnd != 2 ||
		h.Category != domain.CategoryTajweed || h.CompletedAt != nil {
		t.Fatalf("unexpected highlight %+v", h)
	}

	v := s.View(ctx, 1)
	if v.Projection.Len() != 1 {
		t.Fatalf("expected exactly one tagged word, got %d", v.Projection.Len())
	}
	if st := v.Styles[2][2]; st.Background != compositor.BackgroundSolid {
		t.Fatalf("tagged word should be painted, got %+v", st)
	}
	if st := v.Styles[0][0]; st.Background != compositor.BackgroundHover {
		t.Fatalf("untagged words show the hover affordance in highlight mode, got %v", st.Background)
	}

	if out, err := s.ToggleWord(ctx, 1, 2, 2, ""); err != nil || out != highlight.Deleted {
		t.Fatalf("second toggle: %v %v", out, err)
	}
	if s.View(ctx, 1).Projection.Len() != 0 {
		t.Fatalf("projection should be empty")
	}
}

func TestToggleValidatesPagePositions(t *testing.T) {
	s := newFixture(t).session(t)
	ctx := context.Background()

	if _, err := s.ToggleWord(ctx, 1, 0, 0, domain.CategoryRecap); !errors.Is(err, domain.ErrDataUnavailable) {
		t.Fatalf("page not loaded yet: got %v", err)
	}
	if _, err := s.LoadPage(ctx, 1); err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := s.ToggleWord(ctx, 1, 7, 0, domain.CategoryRecap); !errors.Is(err, domain.ErrInvalidRef) {
		t.Fatalf("ayah index past the page: got %v", err)
	}
	if _, err := s.ToggleWord(ctx, 1, 0, 4, domain.CategoryRecap); !errors.Is(err, domain.ErrInvalidRef) {
		t.Fatalf("word index past the ayah: got %v", err)
	}
	if _, err := s.ToggleWholeAyah(ctx, 1, 0, domain.CategoryLetter); !errors.Is(err, domain.ErrWholeAyahUnsupported) {
		t.Fatalf("letter on whole ayah: got %v", err)
	}
	if err := s.SetCategory("gold"); !errors.Is(err, domain.ErrInvalidCategory) {
		t.Fatalf("expected ErrInvalidCategory, got %v", err)
	}
}

func TestPersistenceFailureSurfacesAndKeepsView(t *testing.T) {
	f := newFixture(t)
	s := f.session(t)
	ctx := context.Background()
	if _, err := s.LoadPage(ctx, 1); err != nil {
		t.Fatalf("load: %v", err)
	}

	f.store.FailCreate = mushaftest.ErrInjected
	if _, err := s.ToggleWholeAyah(ctx, 1, 4, domain.CategoryRecap); !errors.Is(err, domain.ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	if s.View(ctx, 1).Projection.Len() != 0 {
		t.Fatalf("failed create must not show up")
	}

	f.store.FailCreate = nil
	if _, err := s.ToggleWholeAyah(ctx, 1, 4, domain.CategoryRecap); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if n := s.View(ctx, 1).Projection.Len(); n != 4 {
		t.Fatalf("whole ayah of 4 words should project 4 entries, got %d", n)
	}
}

func TestCacheWriteRefreshesEveryDependentMountedPage(t *testing.T) {
	f := newFixture(t)
	got := &views{}
	s := f.session(t, WithTracker(viewport.WithGrace(0)))
	ctx := context.Background()
	if _, err := s.LoadPage(ctx, 1); err != nil {
		t.Fatalf("load: %v", err)
	}
	s.SetListener(got.add)

	f.source.Hold()
	s.Mount(ctx, 1)
	if v := s.Mount(ctx, 2); v.Ready() {
		t.Fatalf("page 2 should be pending")
	}
	s.Mount(ctx, 3)
	f.source.Release()

	waitFor(t, func() bool {
		return len(got.forPage(2)) > 0 && len(got.forPage(3)) > 0
	})
	for _, page := range []int{2, 3} {
		vs := got.forPage(page)
		if len(vs) != 1 || !vs[0].Ready() {
			t.Fatalf("page %d: expected one ready refresh, got %d", page, len(vs))
		}
	}
	if len(got.forPage(1)) != 0 {
		t.Fatalf("page 1 does not depend on surah 2")
	}
	if f.source.Calls(domain.ScriptUthmani, 2) != 1 {
		t.Fatalf("surah 2 should be fetched once")
	}
}

func TestJumpTo(t *testing.T) {
	s := newFixture(t).session(t)

	page, err := s.JumpTo(18, 0)
	if err != nil || page != 293 {
		t.Fatalf("expected page 293, got %d %v", page, err)
	}
	if s.CurrentPage() != 293 {
		t.Fatalf("jump should set the current page, got %d", s.CurrentPage())
	}
	if page, _ := s.JumpTo(2, 255); page != 42 {
		t.Fatalf("expected page 42, got %d", page)
	}
	if _, err := s.JumpTo(115, 1); !errors.Is(err, domain.ErrInvalidRef) {
		t.Fatalf("expected ErrInvalidRef, got %v", err)
	}
	if _, err := s.JumpTo(1, 8); !errors.Is(err, domain.ErrInvalidRef) {
		t.Fatalf("expected ErrInvalidRef, got %v", err)
	}
	if s.CurrentPage() != 42 {
		t.Fatalf("invalid jumps must not move the page")
	}
}

func TestCompleteCategoryRendersCompleted(t *testing.T) {
	f := newFixture(t)
	s := f.session(t)
	ctx := context.Background()
	if _, err := s.LoadPage(ctx, 1); err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := s.ToggleWord(ctx, 1, 0, 1, domain.CategoryTajweed); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if _, err := s.ToggleWord(ctx, 1, 0, 1, domain.CategoryHaraka); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if st := s.View(ctx, 1).Styles[0][1]; st.Background != compositor.BackgroundSegmented {
		t.Fatalf("two categories should segment, got %v", st.Background)
	}

	n, err := s.CompleteCategory(ctx, domain.CategoryTajweed, 1)
	if err != nil || n != 1 {
		t.Fatalf("complete: %d %v", n, err)
	}
	if st := s.View(ctx, 1).Styles[0][1]; st.Background != compositor.BackgroundCompleted {
		t.Fatalf("completed wins, got %v", st.Background)
	}

	var tajweed highlight.CategoryCount
	for _, c := range s.Summary(1) {
		if c.Category == domain.CategoryTajweed {
			tajweed = c
		}
	}
	if tajweed.Total() != 1 || tajweed.Completed != 1 {
		t.Fatalf("completed highlight still counts as tajweed: %+v", tajweed)
	}
}

func TestSelectionPreviewAndCommit(t *testing.T) {
	s := newFixture(t).session(t)
	ctx := context.Background()
	if _, err := s.LoadPage(ctx, 1); err != nil {
		t.Fatalf("load: %v", err)
	}

	s.Select(1, 6, 0, 2)
	v := s.View(ctx, 1)
	for w := 0; w <= 2; w++ {
		if v.Styles[6][w].Background != compositor.BackgroundSelection {
			t.Fatalf("word %d should show the selection tint", w)
		}
	}
	if v.Projection.Len() != 0 {
		t.Fatalf("selection must not create highlights")
	}

	out, err := s.CommitSelection(ctx, 1, domain.CategoryHomework)
	if err != nil || out != highlight.Created {
		t.Fatalf("commit: %v %v", out, err)
	}
	v = s.View(ctx, 1)
	if v.Projection.Len() != 3 || v.Styles[6][0].Background != compositor.BackgroundSolid {
		t.Fatalf("committed range should render with its category")
	}
	if _, err := s.CommitSelection(ctx, 1, domain.CategoryHomework); !errors.Is(err, domain.ErrInvalidRef) {
		t.Fatalf("nothing selected: got %v", err)
	}
}

func TestAnnotationFailureDoesNotBreakView(t *testing.T) {
	f := newFixture(t)
	f.deps.Annotations = &mushaftest.Annotations{Err: mushaftest.ErrInjected}
	s := f.session(t)
	v, err := s.LoadPage(context.Background(), 1)
	if err != nil || !v.Ready() {
		t.Fatalf("load: %v", err)
	}

	f.deps.Annotations = &mushaftest.Annotations{
		Ink: map[domain.WordRef]bool{{Ref: domain.AyahRef{Surah: 1, Ayah: 1}, Word: 0}: true},
	}
	s = f.session(t)
	v, _ = s.LoadPage(context.Background(), 1)
	if v.Styles[0][0].Border != compositor.BorderInk {
		t.Fatalf("ink mark should reach the compositor")
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
