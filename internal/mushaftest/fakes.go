// Package mushaftest provides in-memory collaborators for tests.
package mushaftest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/escalopa/mushaf-overlay/internal/domain"
)

// ErrInjected is returned by fakes configured to fail
var ErrInjected = errors.New("injected failure")

// TextSource serves synthetic surah text. Every ayah has WordsPerAyah words
// named "s{surah}a{ayah}w{i}" unless Words overrides it.
type TextSource struct {
	mu    sync.Mutex
	calls map[string]int
	fail  map[int]error
	gate  chan struct{}

	// Words returns the word count of an ayah; nil means 4 words per ayah
	Words func(surah, ayah int) int
}

func NewTextSource() *TextSource {
	return &TextSource{
		calls: make(map[string]int),
		fail:  make(map[int]error),
	}
}

// Fail makes fetches of surah return err; a nil err clears the failure
func (s *TextSource) Fail(surah int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.fail, surah)
		return
	}
	s.fail[surah] = err
}

// Hold blocks every fetch until Release is called
func (s *TextSource) Hold() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gate = make(chan struct{})
}

// Release unblocks fetches held by Hold
func (s *TextSource) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gate != nil {
		close(s.gate)
		s.gate = nil
	}
}

// Calls returns how many times (script, surah) was fetched
func (s *TextSource) Calls(script domain.ScriptID, surah int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[key(script, surah)]
}

// TotalCalls returns the number of fetches across all keys
func (s *TextSource) TotalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.calls {
		total += n
	}
	return total
}

func (s *TextSource) FetchSurah(ctx context.Context, script domain.ScriptID, surah int) (*domain.RawSurah, error) {
	s.mu.Lock()
	s.calls[key(script, surah)]++
	gate := s.gate
	failErr := s.fail[surah]
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if failErr != nil {
		return nil, failErr
	}

	meta, ok := domain.SurahByNumber(surah)
	if !ok {
		return nil, fmt.Errorf("no surah %d", surah)
	}
	raw := &domain.RawSurah{Number: surah, Name: meta.Name}
	for a := 1; a <= meta.Ayahs; a++ {
		raw.Ayahs = append(raw.Ayahs, domain.RawAyah{
			NumberInSurah: a,
			Text:          AyahText(surah, a, s.wordCount(surah, a)),
		})
	}
	return raw, nil
}

func (s *TextSource) wordCount(surah, ayah int) int {
	if s.Words == nil {
		return 4
	}
	return s.Words(surah, ayah)
}

// AyahText builds the synthetic text of an ayah
func AyahText(surah, ayah, words int) string {
	parts := make([]string, words)
	for i := range parts {
		parts[i] = fmt.Sprintf("s%da%dw%d", surah, ayah, i)
	}
	return strings.Join(parts, " ")
}

func key(script domain.ScriptID, surah int) string {
	return fmt.Sprintf("%s-%d", script, surah)
}

// HighlightStore keeps highlights in memory
type HighlightStore struct {
	mu         sync.Mutex
	seq        int
	highlights map[string]domain.Highlight

	FailCreate   error
	FailDelete   error
	FailList     error
	FailComplete error

	Now func() time.Time
}

func NewHighlightStore() *HighlightStore {
	return &HighlightStore{
		highlights: make(map[string]domain.Highlight),
		Now:        func() time.Time { return time.Date(2026, time.January, 1, 12, 0, 0, 0, time.UTC) },
	}
}

func (s *HighlightStore) CreateHighlight(_ context.Context, h domain.NewHighlight) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailCreate != nil {
		return "", s.FailCreate
	}
	s.seq++
	id := fmt.Sprintf("h%d", s.seq)
	s.highlights[id] = h.Materialize(id, s.Now())
	return id, nil
}

func (s *HighlightStore) DeleteHighlight(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailDelete != nil {
		return s.FailDelete
	}
	if _, ok := s.highlights[id]; !ok {
		return fmt.Errorf("highlight %s: %w", id, domain.ErrNotFound)
	}
	delete(s.highlights, id)
	return nil
}

func (s *HighlightStore) ListHighlights(_ context.Context, studentID string) ([]domain.Highlight, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailList != nil {
		return nil, s.FailList
	}
	var out []domain.Highlight
	for _, h := range s.highlights {
		if h.StudentID == studentID {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *HighlightStore) CompleteHighlights(_ context.Context, ids []string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailComplete != nil {
		return s.FailComplete
	}
	for _, id := range ids {
		h, ok := s.highlights[id]
		if !ok {
			return fmt.Errorf("highlight %s: %w", id, domain.ErrNotFound)
		}
		done := at
		h.CompletedAt = &done
		s.highlights[id] = h
	}
	return nil
}

// Put stores a highlight directly, bypassing failure injection
func (s *HighlightStore) Put(h domain.Highlight) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.highlights[h.ID] = h
}

// Remove deletes a highlight directly, as another client of the store would
func (s *HighlightStore) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.highlights, id)
}

// Len returns the number of stored highlights
func (s *HighlightStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.highlights)
}

// Annotations serves fixed ink and note markers
type Annotations struct {
	Ink   map[domain.WordRef]bool
	Notes map[string]bool
	Err   error
}

func (a *Annotations) Marks(context.Context, string, int, domain.ScriptID) (domain.AnnotationMarks, error) {
	if a.Err != nil {
		return domain.AnnotationMarks{}, a.Err
	}
	return domain.AnnotationMarks{Ink: a.Ink, Notes: a.Notes}, nil
}

// Prefs is an in-memory FSMPort
type Prefs struct {
	mu     sync.Mutex
	states map[string]domain.State
	data   map[string]string
}

func NewPrefs() *Prefs {
	return &Prefs{states: make(map[string]domain.State), data: make(map[string]string)}
}

func (p *Prefs) SetState(_ context.Context, userID string, state domain.State) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.states[userID] = state
	return nil
}

func (p *Prefs) GetState(_ context.Context, userID string) (domain.State, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.states[userID]; ok {
		return s, nil
	}
	return domain.StateStart, nil
}

func (p *Prefs) DeleteState(_ context.Context, userID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.states, userID)
	return nil
}

func (p *Prefs) SetData(_ context.Context, userID, key, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data[userID+":"+key] = value
	return nil
}

func (p *Prefs) GetData(_ context.Context, userID, key string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.data[userID+":"+key]
	if !ok {
		return "", fmt.Errorf("%s %s: %w", userID, key, domain.ErrNotFound)
	}
	return v, nil
}

func (p *Prefs) DeleteData(_ context.Context, userID, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.data, userID+":"+key)
	return nil
}
