// Package highlight keeps a student's persisted highlights and toggles them
// against a highlight store. Local state only changes after the store confirms.
package highlight

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/escalopa/mushaf-overlay/internal/domain"
	"github.com/escalopa/mushaf-overlay/internal/telemetry"
)

// AllPages scopes CompleteCategory to every page
const AllPages = 0

// Outcome is what a toggle did
type Outcome int

const (
	Created Outcome = iota + 1
	Deleted
)

func (o Outcome) String() string {
	switch o {
	case Created:
		return "created"
	case Deleted:
		return "deleted"
	}
	return "unknown"
}

// Model is the in-memory view of one student's highlights
type Model struct {
	store     domain.HighlightStorePort
	studentID string
	palette   func(domain.Category) string
	now       func() time.Time
	log       *zap.Logger

	// op serialises mutations so a toggle sees the result of the previous one
	op sync.Mutex

	mu         sync.RWMutex
	highlights []domain.Highlight
	version    uint64
}

type Option func(*Model)

func WithLogger(l *zap.Logger) Option {
	return func(m *Model) { m.log = telemetry.OrNop(l) }
}

// WithColors sets the colour recorded on created highlights
func WithColors(colorOf func(domain.Category) string) Option {
	return func(m *Model) { m.palette = colorOf }
}

func WithClock(now func() time.Time) Option {
	return func(m *Model) { m.now = now }
}

func NewModel(store domain.HighlightStorePort, studentID string, opts ...Option) *Model {
	m := &Model{
		store:     store,
		studentID: studentID,
		palette:   func(domain.Category) string { return "" },
		now:       time.Now,
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// StudentID returns the student whose highlights the model holds
func (m *Model) StudentID() string {
	return m.studentID
}

// Sync replaces local state with the store's full list for the student
func (m *Model) Sync(ctx context.Context) error {
	m.op.Lock()
	defer m.op.Unlock()

	list, err := m.store.ListHighlights(ctx, m.studentID)
	if err != nil {
		return fmt.Errorf("%w: list highlights: %w", domain.ErrPersistence, err)
	}

	m.mu.Lock()
	m.highlights = append([]domain.Highlight(nil), list...)
	m.version++
	m.mu.Unlock()
	return nil
}

// Version increases every time the persisted set changes
func (m *Model) Version() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.version
}

// ToggleWord deletes the single-word highlight for (ref, word, category) if
// it exists and creates it otherwise.
func (m *Model) ToggleWord(ctx context.Context, page int, ref domain.AyahRef, word int, category domain.Category) (Outcome, error) {
	if !category.Valid() {
		return 0, fmt.Errorf("%w: %q", domain.ErrInvalidCategory, category)
	}
	if !ref.Valid() || word < 0 {
		return 0, fmt.Errorf("%w: %s word %d", domain.ErrInvalidRef, ref.ID(), word)
	}

	m.op.Lock()
	defer m.op.Unlock()

	if existing, ok := m.find(func(h domain.Highlight) bool { return h.IsWord(ref, word, category) }); ok {
		return Deleted, m.delete(ctx, existing)
	}
	return Created, m.create(ctx, domain.WordHighlight(m.studentID, page, ref, word, category, m.palette(category)))
}

// ToggleWholeAyah deletes the whole-ayah highlight for (ref, category) if it
// exists and creates it otherwise. Single-word highlights on the same ayah
// are left alone.
func (m *Model) ToggleWholeAyah(ctx context.Context, page int, ref domain.AyahRef, category domain.Category) (Outcome, error) {
	if !category.Valid() {
		return 0, fmt.Errorf("%w: %q", domain.ErrInvalidCategory, category)
	}
	if !category.WholeAyah() {
		return 0, fmt.Errorf("%w: %s", domain.ErrWholeAyahUnsupported, category)
	}
	if !ref.Valid() {
		return 0, fmt.Errorf("%w: %s", domain.ErrInvalidRef, ref.ID())
	}

	m.op.Lock()
	defer m.op.Unlock()

	if existing, ok := m.find(func(h domain.Highlight) bool { return h.IsWholeAyah(ref, category) }); ok {
		return Deleted, m.delete(ctx, existing)
	}
	return Created, m.create(ctx, domain.WholeAyahHighlight(m.studentID, page, ref, category, m.palette(category)))
}

// ToggleRange toggles a highlight over words from..to of one ayah. A
// one-word range is the same as ToggleWord.
func (m *Model) ToggleRange(ctx context.Context, page int, ref domain.AyahRef, from, to int, category domain.Category) (Outcome, error) {
	if from > to {
		from, to = to, from
	}
	if from == to {
		return m.ToggleWord(ctx, page, ref, from, category)
	}
	if !category.Valid() {
		return 0, fmt.Errorf("%w: %q", domain.ErrInvalidCategory, category)
	}
	if !ref.Valid() || from < 0 {
		return 0, fmt.Errorf("%w: %s words %d-%d", domain.ErrInvalidRef, ref.ID(), from, to)
	}

	m.op.Lock()
	defer m.op.Unlock()

	if existing, ok := m.find(func(h domain.Highlight) bool { return h.IsRange(ref, from, to, category) }); ok {
		return Deleted, m.delete(ctx, existing)
	}
	return Created, m.create(ctx, domain.RangeHighlight(m.studentID, page, ref, from, to, category, m.palette(category)))
}

// CompleteCategory marks every open highlight of the category as completed.
// page limits the change to one page; AllPages covers the whole student.
// It returns the number of highlights completed.
func (m *Model) CompleteCategory(ctx context.Context, category domain.Category, page int) (int, error) {
	if !category.Valid() {
		return 0, fmt.Errorf("%w: %q", domain.ErrInvalidCategory, category)
	}

	m.op.Lock()
	defer m.op.Unlock()

	m.mu.RLock()
	var ids []string
	for _, h := range m.highlights {
		if h.Category == category && !h.Completed() && (page == AllPages || h.PageNumber == page) {
			ids = append(ids, h.ID)
		}
	}
	m.mu.RUnlock()

	if len(ids) == 0 {
		return 0, nil
	}

	at := m.now().UTC()
	if err := m.store.CompleteHighlights(ctx, ids, at); err != nil {
		m.log.Error("complete highlights failed",
			zap.String("student", m.studentID),
			zap.String("category", string(category)),
			zap.Error(err))
		return 0, fmt.Errorf("%w: complete %s: %w", domain.ErrPersistence, category, err)
	}

	done := make(map[string]bool, len(ids))
	for _, id := range ids {
		done[id] = true
	}
	m.mu.Lock()
	for i := range m.highlights {
		if done[m.highlights[i].ID] {
			completedAt := at
			m.highlights[i].CompletedAt = &completedAt
		}
	}
	m.version++
	m.mu.Unlock()
	return len(ids), nil
}

func (m *Model) find(match func(domain.Highlight) bool) (domain.Highlight, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, h := range m.highlights {
		if match(h) {
			return h, true
		}
	}
	return domain.Highlight{}, false
}

func (m *Model) create(ctx context.Context, req domain.NewHighlight) error {
	id, err := m.store.CreateHighlight(ctx, req)
	if err != nil {
		m.log.Error("create highlight failed",
			zap.String("student", m.studentID),
			zap.String("ayah", domain.FormatAyahID(req.Surah, req.AyahStart)),
			zap.String("category", string(req.Category)),
			zap.Error(err))
		return fmt.Errorf("%w: create highlight: %w", domain.ErrPersistence, err)
	}

	m.mu.Lock()
	m.highlights = append(m.highlights, req.Materialize(id, m.now().UTC()))
	m.version++
	m.mu.Unlock()
	return nil
}

// delete removes h from the store and then locally. A highlight the store
// no longer has is only dropped locally.
func (m *Model) delete(ctx context.Context, h domain.Highlight) error {
	err := m.store.DeleteHighlight(ctx, h.ID)
	if errors.Is(err, domain.ErrNotFound) {
		m.log.Warn("highlight already gone from store",
			zap.String("student", m.studentID),
			zap.String("id", h.ID))
		err = nil
	}
	if err != nil {
		m.log.Error("delete highlight failed",
			zap.String("student", m.studentID),
			zap.String("id", h.ID),
			zap.Error(err))
		return fmt.Errorf("%w: delete highlight %s: %w", domain.ErrPersistence, h.ID, err)
	}

	m.mu.Lock()
	kept := m.highlights[:0]
	for _, existing := range m.highlights {
		if existing.ID != h.ID {
			kept = append(kept, existing)
		}
	}
	m.highlights = kept
	m.version++
	m.mu.Unlock()
	return nil
}

// ForPage returns the highlights created on a page
func (m *Model) ForPage(page int) []domain.Highlight {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Highlight
	for _, h := range m.highlights {
		if h.PageNumber == page {
			out = append(out, h)
		}
	}
	return out
}

// All returns every highlight of the student
func (m *Model) All() []domain.Highlight {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.Highlight(nil), m.highlights...)
}

// CategoryCount is the number of highlights of one category
type CategoryCount struct {
	Category  domain.Category
	Open      int
	Completed int
}

// Total counts completed highlights under their original category
func (c CategoryCount) Total() int {
	return c.Open + c.Completed
}

// Summary counts highlights per category on a page (AllPages for everything)
func (m *Model) Summary(page int) []CategoryCount {
	counts := make(map[domain.Category]*CategoryCount)
	m.mu.RLock()
	for _, h := range m.highlights {
		if page != AllPages && h.PageNumber != page {
			continue
		}
		c, ok := counts[h.Category]
		if !ok {
			c = &CategoryCount{Category: h.Category}
			counts[h.Category] = c
		}
		if h.Completed() {
			c.Completed++
		} else {
			c.Open++
		}
	}
	m.mu.RUnlock()

	out := make([]CategoryCount, 0, len(counts))
	for _, c := range counts {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category.Order() < out[j].Category.Order() })
	return out
}

// Count returns how many highlights of a category exist on a page, completed included
func (m *Model) Count(category domain.Category, page int) int {
	for _, c := range m.Summary(page) {
		if c.Category == category {
			return c.Total()
		}
	}
	return 0
}

// ProjectForPage expands the page's highlights over the resolved ayahs
func (m *Model) ProjectForPage(page int, ayahs []domain.Ayah) Projection {
	return Project(page, m.ForPage(page), ayahs, m.log)
}
