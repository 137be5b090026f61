package highlight

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/escalopa/mushaf-overlay/internal/domain"
	"github.com/escalopa/mushaf-overlay/internal/mushaftest"
)

const student = "student-1"

// fatihah returns page 1 content with the given word counts per ayah
func fatihah(words ...int) []domain.Ayah {
	ayahs := make([]domain.Ayah, len(words))
	for i, n := range words {
		a := domain.Ayah{Surah: 1, Number: i + 1}
		for w := 0; w < n; w++ {
			a.Words = append(a.Words, "w")
		}
		ayahs[i] = a
	}
	return ayahs
}

func newModel(t *testing.T) (*Model, *mushaftest.HighlightStore) {
	t.Helper()
	store := mushaftest.NewHighlightStore()
	m := NewModel(store, student,
		WithColors(func(c domain.Category) string { return "#" + string(c) }),
		WithClock(func() time.Time { return time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC) }))
	if err := m.Sync(context.Background()); err != nil {
		t.Fatalf("sync: %v", err)
	}
	return m, store
}

func TestToggleWordCreatesSingleWordHighlight(t *testing.T) {
	m, store := newModel(t)
	ctx := context.Background()
	page := fatihah(4, 4, 4, 4, 4, 4, 4)

	out, err := m.ToggleWord(ctx, 1, domain.AyahRef{Surah: 1, Ayah: 3}, 2, domain.CategoryTajweed)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if out != Created {
		t.Fatalf("expected Created, got %v", out)
	}

	all := m.All()
	if len(all) != 1 || store.Len() != 1 {
		t.Fatalf("expected one highlight, model %d store %d", len(all), store.Len())
	}
	h := all[0]
	if h.Surah != 1 || h.AyahStart != 3 || h.AyahEnd != 3 {
		t.Fatalf("unexpected ayah range %d:%d-%d", h.Surah, h.AyahStart, h.AyahEnd)
	}
	if h.WordStart == nil || h.WordEnd == nil || *h.WordStart != 2 || *h.WordEnd != 2 {
		t.Fatalf("expected word bounds 2..2, got %v..%v", h.WordStart, h.WordEnd)
	}
	if h.Category != domain.CategoryTajweed || h.CompletedAt != nil || h.PageNumber != 1 {
		t.Fatalf("unexpected highlight %+v", h)
	}
	if h.Color != "#tajweed" {
		t.Fatalf("expected palette colour to be recorded, got %q", h.Color)
	}

	proj := m.ProjectForPage(1, page)
	if proj.Len() != 1 {
		t.Fatalf("expected one projected word, got %d", proj.Len())
	}
	e := proj.Entries[0]
	if e.AyahIndex != 2 || e.WordIndex != 2 || e.Category != domain.CategoryTajweed {
		t.Fatalf("unexpected entry %+v", e)
	}

	out, err = m.ToggleWord(ctx, 1, domain.AyahRef{Surah: 1, Ayah: 3}, 2, domain.CategoryTajweed)
	if err != nil {
		t.Fatalf("second toggle: %v", err)
	}
	if out != Deleted {
		t.Fatalf("expected Deleted, got %v", out)
	}
	if m.ProjectForPage(1, page).Len() != 0 || store.Len() != 0 {
		t.Fatalf("expected highlight to be gone")
	}
}

func TestToggleWordTwiceRestoresProjection(t *testing.T) {
	m, _ := newModel(t)
	ctx := context.Background()
	page := fatihah(4, 4, 4, 4, 4, 4, 4)
	ref := domain.AyahRef{Surah: 1, Ayah: 6}

	if _, err := m.ToggleWord(ctx, 1, domain.AyahRef{Surah: 1, Ayah: 1}, 0, domain.CategoryHaraka); err != nil {
		t.Fatalf("seed: %v", err)
	}
	before := m.ProjectForPage(1, page)

	for i := 0; i < 2; i++ {
		if _, err := m.ToggleWord(ctx, 1, ref, 1, domain.CategoryLetter); err != nil {
			t.Fatalf("toggle %d: %v", i, err)
		}
	}
	after := m.ProjectForPage(1, page)
	if !reflect.DeepEqual(entryKeys(before), entryKeys(after)) {
		t.Fatalf("projection changed: before %+v after %+v", before.Entries, after.Entries)
	}
}

func entryKeys(p Projection) []Entry {
	out := make([]Entry, len(p.Entries))
	for i, e := range p.Entries {
		e.HighlightIDs = nil
		out[i] = e
	}
	return out
}

func TestToggleWholeAyahExpandsToEveryWord(t *testing.T) {
	m, _ := newModel(t)
	page := fatihah(4, 2, 2, 4, 4, 6, 9)

	out, err := m.ToggleWholeAyah(context.Background(), 1, domain.AyahRef{Surah: 1, Ayah: 5}, domain.CategoryRecap)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if out != Created {
		t.Fatalf("expected Created, got %v", out)
	}
	h := m.All()[0]
	if h.WordStart != nil || h.WordEnd != nil || h.Kind() != domain.KindWholeAyah {
		t.Fatalf("expected whole-ayah highlight, got %+v", h)
	}

	proj := m.ProjectForPage(1, page)
	if proj.Len() != 4 {
		t.Fatalf("expected 4 entries, got %d", proj.Len())
	}
	for i, e := range proj.Entries {
		if e.AyahIndex != 4 || e.WordIndex != i || e.Category != domain.CategoryRecap {
			t.Fatalf("entry %d: %+v", i, e)
		}
	}

	out, err = m.ToggleWholeAyah(context.Background(), 1, domain.AyahRef{Surah: 1, Ayah: 5}, domain.CategoryRecap)
	if err != nil || out != Deleted {
		t.Fatalf("expected Deleted, got %v (%v)", out, err)
	}
}

func TestWholeAyahAndWordHighlightsCoexist(t *testing.T) {
	m, _ := newModel(t)
	ctx := context.Background()
	ref := domain.AyahRef{Surah: 1, Ayah: 2}
	page := fatihah(4, 4, 4, 4, 4, 4, 4)

	if _, err := m.ToggleWholeAyah(ctx, 1, ref, domain.CategoryTajweed); err != nil {
		t.Fatalf("whole ayah: %v", err)
	}
	out, err := m.ToggleWord(ctx, 1, ref, 1, domain.CategoryTajweed)
	if err != nil {
		t.Fatalf("word: %v", err)
	}
	if out != Created {
		t.Fatalf("word toggle must not delete the whole-ayah highlight")
	}
	if len(m.All()) != 2 {
		t.Fatalf("expected both highlights, got %d", len(m.All()))
	}

	proj := m.ProjectForPage(1, page)
	if proj.Len() != 4 {
		t.Fatalf("expected the union to project 4 entries, got %d", proj.Len())
	}
	if ids := proj.At(1, 1)[0].HighlightIDs; len(ids) != 2 {
		t.Fatalf("word 1 should be backed by both highlights, got %v", ids)
	}

	if _, err := m.ToggleWholeAyah(ctx, 1, ref, domain.CategoryTajweed); err != nil {
		t.Fatalf("remove whole ayah: %v", err)
	}
	proj = m.ProjectForPage(1, page)
	if proj.Len() != 1 || proj.Entries[0].WordIndex != 1 {
		t.Fatalf("only the word highlight should remain, got %+v", proj.Entries)
	}
}

func TestMultipleCategoriesOnOneWord(t *testing.T) {
	m, _ := newModel(t)
	ctx := context.Background()
	ref := domain.AyahRef{Surah: 1, Ayah: 4}
	for _, c := range []domain.Category{domain.CategoryHaraka, domain.CategoryTajweed} {
		if _, err := m.ToggleWord(ctx, 1, ref, 0, c); err != nil {
			t.Fatalf("toggle %s: %v", c, err)
		}
	}
	cats, completed := m.ProjectForPage(1, fatihah(4, 4, 4, 4)).Categories(3, 0)
	if completed {
		t.Fatalf("nothing is completed yet")
	}
	if len(cats) != 2 || cats[0] != domain.CategoryTajweed || cats[1] != domain.CategoryHaraka {
		t.Fatalf("expected [tajweed haraka], got %v", cats)
	}
}

func TestWholeAyahRejectsWordOnlyCategories(t *testing.T) {
	m, store := newModel(t)
	for _, c := range []domain.Category{domain.CategoryHaraka, domain.CategoryLetter} {
		_, err := m.ToggleWholeAyah(context.Background(), 1, domain.AyahRef{Surah: 1, Ayah: 1}, c)
		if !errors.Is(err, domain.ErrWholeAyahUnsupported) {
			t.Fatalf("%s: expected ErrWholeAyahUnsupported, got %v", c, err)
		}
	}
	if store.Len() != 0 {
		t.Fatalf("nothing should be persisted")
	}
}

func TestToggleValidatesInput(t *testing.T) {
	m, _ := newModel(t)
	ctx := context.Background()
	if _, err := m.ToggleWord(ctx, 1, domain.AyahRef{Surah: 1, Ayah: 8}, 0, domain.CategoryTajweed); !errors.Is(err, domain.ErrInvalidRef) {
		t.Fatalf("expected ErrInvalidRef, got %v", err)
	}
	if _, err := m.ToggleWord(ctx, 1, domain.AyahRef{Surah: 1, Ayah: 1}, -1, domain.CategoryTajweed); !errors.Is(err, domain.ErrInvalidRef) {
		t.Fatalf("expected ErrInvalidRef, got %v", err)
	}
	if _, err := m.ToggleWord(ctx, 1, domain.AyahRef{Surah: 1, Ayah: 1}, 0, "ink"); !errors.Is(err, domain.ErrInvalidCategory) {
		t.Fatalf("expected ErrInvalidCategory, got %v", err)
	}
}

func TestFailedCreateLeavesStateUntouched(t *testing.T) {
	m, store := newModel(t)
	store.FailCreate = mushaftest.ErrInjected
	before := m.Version()

	_, err := m.ToggleWord(context.Background(), 1, domain.AyahRef{Surah: 1, Ayah: 1}, 0, domain.CategoryTajweed)
	if !errors.Is(err, domain.ErrPersistence) || !errors.Is(err, mushaftest.ErrInjected) {
		t.Fatalf("expected wrapped persistence error, got %v", err)
	}
	if len(m.All()) != 0 || m.Version() != before {
		t.Fatalf("model changed after failed create")
	}
}

func TestFailedDeleteKeepsHighlight(t *testing.T) {
	m, store := newModel(t)
	ctx := context.Background()
	ref := domain.AyahRef{Surah: 1, Ayah: 1}
	if _, err := m.ToggleWord(ctx, 1, ref, 0, domain.CategoryTajweed); err != nil {
		t.Fatalf("create: %v", err)
	}
	store.FailDelete = mushaftest.ErrInjected

	if _, err := m.ToggleWord(ctx, 1, ref, 0, domain.CategoryTajweed); !errors.Is(err, domain.ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	if m.ProjectForPage(1, fatihah(4)).Len() != 1 {
		t.Fatalf("highlight must survive a failed delete")
	}

	store.FailDelete = nil
	if out, err := m.ToggleWord(ctx, 1, ref, 0, domain.CategoryTajweed); err != nil || out != Deleted {
		t.Fatalf("retry: %v %v", out, err)
	}
}

func TestDeleteOfHighlightGoneFromStore(t *testing.T) {
	m, store := newModel(t)
	ctx := context.Background()
	ref := domain.AyahRef{Surah: 1, Ayah: 2}
	if _, err := m.ToggleWord(ctx, 1, ref, 1, domain.CategoryHaraka); err != nil {
		t.Fatalf("create: %v", err)
	}
	store.Remove(m.All()[0].ID)

	out, err := m.ToggleWord(ctx, 1, ref, 1, domain.CategoryHaraka)
	if err != nil || out != Deleted {
		t.Fatalf("toggle of a vanished highlight: %v %v", out, err)
	}
	if m.ProjectForPage(1, fatihah(4, 4)).Len() != 0 || len(m.All()) != 0 {
		t.Fatalf("vanished highlight must be dropped locally")
	}

	if out, err := m.ToggleWord(ctx, 1, ref, 1, domain.CategoryHaraka); err != nil || out != Created || store.Len() != 1 {
		t.Fatalf("next toggle should create again: %v %v store=%d", out, err, store.Len())
	}
}

func TestCompleteCategoryKeepsCategoryForCounting(t *testing.T) {
	m, store := newModel(t)
	ctx := context.Background()
	if _, err := m.ToggleWord(ctx, 1, domain.AyahRef{Surah: 1, Ayah: 1}, 0, domain.CategoryTajweed); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := m.ToggleWord(ctx, 2, domain.AyahRef{Surah: 2, Ayah: 1}, 0, domain.CategoryTajweed); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := m.ToggleWord(ctx, 1, domain.AyahRef{Surah: 1, Ayah: 2}, 0, domain.CategoryHaraka); err != nil {
		t.Fatalf("create: %v", err)
	}

	n, err := m.CompleteCategory(ctx, domain.CategoryTajweed, 1)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected one highlight completed on page 1, got %d", n)
	}

	for _, h := range m.All() {
		switch {
		case h.PageNumber == 1 && h.Category == domain.CategoryTajweed:
			if h.CompletedAt == nil {
				t.Fatalf("page 1 tajweed should be completed")
			}
		default:
			if h.CompletedAt != nil {
				t.Fatalf("highlight %s should stay open", h.ID)
			}
		}
	}

	if got := m.Count(domain.CategoryTajweed, 1); got != 1 {
		t.Fatalf("completed highlight must still count as tajweed, got %d", got)
	}
	summary := m.Summary(AllPages)
	if len(summary) != 2 || summary[0].Category != domain.CategoryTajweed || summary[0].Completed != 1 || summary[0].Open != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}

	entries := m.ProjectForPage(1, fatihah(4, 4)).At(0, 0)
	if len(entries) != 1 || !entries[0].Completed || entries[0].Category != domain.CategoryTajweed {
		t.Fatalf("unexpected projection %+v", entries)
	}

	store.FailComplete = mushaftest.ErrInjected
	if _, err := m.CompleteCategory(ctx, domain.CategoryTajweed, AllPages); !errors.Is(err, domain.ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	if m.Count(domain.CategoryTajweed, 2) != 1 || m.Summary(2)[0].Completed != 0 {
		t.Fatalf("failed completion must not change local state")
	}
}

func TestSyncLoadsExistingHighlights(t *testing.T) {
	store := mushaftest.NewHighlightStore()
	start, end := 1, 1
	store.Put(domain.Highlight{ID: "x1", StudentID: student, Surah: 1, AyahStart: 1, AyahEnd: 1, WordStart: &start, WordEnd: &end, Category: domain.CategoryLetter, PageNumber: 1})
	store.Put(domain.Highlight{ID: "x2", StudentID: "someone-else", Surah: 1, AyahStart: 1, AyahEnd: 1, Category: domain.CategoryRecap, PageNumber: 1})

	m := NewModel(store, student)
	if err := m.Sync(context.Background()); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if len(m.All()) != 1 {
		t.Fatalf("expected only the student's highlight, got %d", len(m.All()))
	}
	out, err := m.ToggleWord(context.Background(), 1, domain.AyahRef{Surah: 1, Ayah: 1}, 1, domain.CategoryLetter)
	if err != nil || out != Deleted {
		t.Fatalf("toggling a synced highlight should delete it: %v %v", out, err)
	}

	store.FailList = mushaftest.ErrInjected
	if err := m.Sync(context.Background()); !errors.Is(err, domain.ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
}

func TestToggleRange(t *testing.T) {
	m, _ := newModel(t)
	ctx := context.Background()
	ref := domain.AyahRef{Surah: 1, Ayah: 7}

	out, err := m.ToggleRange(ctx, 1, ref, 3, 1, domain.CategoryHomework)
	if err != nil || out != Created {
		t.Fatalf("create range: %v %v", out, err)
	}
	h := m.All()[0]
	if h.Kind() != domain.KindWordRange || *h.WordStart != 1 || *h.WordEnd != 3 {
		t.Fatalf("unexpected range %+v", h)
	}
	if n := m.ProjectForPage(1, fatihah(4, 4, 4, 4, 4, 4, 9)).Len(); n != 3 {
		t.Fatalf("expected 3 projected words, got %d", n)
	}

	out, err = m.ToggleRange(ctx, 1, ref, 1, 3, domain.CategoryHomework)
	if err != nil || out != Deleted {
		t.Fatalf("second toggle should delete: %v %v", out, err)
	}

	if _, err := m.ToggleRange(ctx, 1, ref, 2, 2, domain.CategoryHomework); err != nil {
		t.Fatalf("single word range: %v", err)
	}
	if m.All()[0].Kind() != domain.KindSingleWord {
		t.Fatalf("a one-word range is a single-word highlight")
	}
}
