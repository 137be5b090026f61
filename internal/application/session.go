package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/escalopa/mushaf-overlay/internal/compositor"
	"github.com/escalopa/mushaf-overlay/internal/domain"
	"github.com/escalopa/mushaf-overlay/internal/highlight"
	"github.com/escalopa/mushaf-overlay/internal/pageindex"
	"github.com/escalopa/mushaf-overlay/internal/resolver"
	"github.com/escalopa/mushaf-overlay/internal/telemetry"
	"github.com/escalopa/mushaf-overlay/internal/textcache"
	"github.com/escalopa/mushaf-overlay/internal/viewport"
)

// Deps are the collaborators shared by every session
type Deps struct {
	Index  *pageindex.Index
	Source domain.TextSourcePort
	Store  domain.HighlightStorePort
	// Annotations is optional
	Annotations domain.AnnotationPort
	Palette     compositor.Palette
	LoadTimeout time.Duration
}

// PageView is everything a surface needs to draw one page
type PageView struct {
	Page       int
	Script     domain.ScriptID
	Descriptor domain.PageDescriptor
	Ayahs      []domain.Ayah
	Lines      []resolver.Line
	// Pending lists surahs still loading; the page is a placeholder until it is empty
	Pending    []int
	Projection highlight.Projection
	Styles     [][]compositor.Style
	Marks      domain.AnnotationMarks
}

// Ready reports whether the page content is available
func (v PageView) Ready() bool {
	return len(v.Pending) == 0 && len(v.Ayahs) > 0
}

// PageListener receives a fresh view whenever a mounted page changes
type PageListener func(PageView)

// Session is one student's viewing session under one script. It owns the
// text cache and the viewport tracker; the highlight model may be shared
// with the student's sessions under other scripts.
type Session struct {
	studentID   string
	index       *pageindex.Index
	cache       *textcache.Cache
	resolver    *resolver.Resolver
	model       *highlight.Model
	tracker     *viewport.Tracker
	palette     compositor.Palette
	annotations domain.AnnotationPort
	log         *zap.Logger

	prefetch       bool
	trackerOptions []viewport.Option
	initialPage    int

	mu        sync.Mutex
	script    domain.ScriptID
	category  domain.Category
	selection compositor.Selection
	listener  PageListener
}

type SessionOption func(*Session)

func WithLogger(l *zap.Logger) SessionOption {
	return func(s *Session) { s.log = telemetry.OrNop(l) }
}

// WithPrefetch toggles neighbour surah prefetch
func WithPrefetch(enabled bool) SessionOption {
	return func(s *Session) { s.prefetch = enabled }
}

// WithTracker passes options to the session's viewport tracker
func WithTracker(opts ...viewport.Option) SessionOption {
	return func(s *Session) { s.trackerOptions = append(s.trackerOptions, opts...) }
}

// WithListener registers the callback for page updates
func WithListener(l PageListener) SessionOption {
	return func(s *Session) { s.listener = l }
}

// WithModel makes the session use a highlight model shared with other
// sessions of the same student
func WithModel(m *highlight.Model) SessionOption {
	return func(s *Session) { s.model = m }
}

// WithInitialPage sets the page the session starts on
func WithInitialPage(page int) SessionOption {
	return func(s *Session) { s.initialPage = page }
}

func NewSession(studentID string, script domain.ScriptID, deps Deps, opts ...SessionOption) *Session {
	s := &Session{
		studentID:   studentID,
		index:       deps.Index,
		palette:     deps.Palette,
		annotations: deps.Annotations,
		log:         zap.NewNop(),
		prefetch:    true,
		initialPage: 1,
		script:      script,
	}
	for _, opt := range opts {
		opt(s)
	}

	log := s.log.With(zap.String("student", studentID))
	s.cache = textcache.New(deps.Source, textcache.WithLogger(log), textcache.WithLoadTimeout(deps.LoadTimeout))
	s.resolver = resolver.New(deps.Index, s.cache, resolver.WithLogger(log), resolver.WithPrefetch(s.prefetch))
	if s.model == nil {
		s.model = highlight.NewModel(deps.Store, studentID, highlight.WithLogger(log), highlight.WithColors(deps.Palette.Hex))
	}
	s.tracker = viewport.New(s.initialPage, append([]viewport.Option{viewport.WithLogger(log)}, s.trackerOptions...)...)
	s.cache.OnStore(s.surahStored)
	return s
}

// Open loads the student's highlights
func (s *Session) Open(ctx context.Context) error {
	if err := s.model.Sync(ctx); err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	s.log.Info("session opened",
		zap.String("student", s.studentID),
		zap.String("script", string(s.Script())),
		zap.Int("highlights", len(s.model.All())))
	return nil
}

func (s *Session) StudentID() string { return s.studentID }

func (s *Session) Script() domain.ScriptID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.script
}

// Model exposes the highlight model for read-only queries
func (s *Session) Model() *highlight.Model { return s.model }

// Tracker exposes the viewport tracker
func (s *Session) Tracker() *viewport.Tracker { return s.tracker }

func (s *Session) SetListener(l PageListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listener = l
}

// SetCategory arms a category for clicking; an empty category leaves highlight mode
func (s *Session) SetCategory(c domain.Category) error {
	if c != "" && !c.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidCategory, c)
	}
	s.mu.Lock()
	s.category = c
	s.mu.Unlock()
	return nil
}

func (s *Session) Category() domain.Category {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.category
}

// Mount starts tracking a page region and returns its current view
func (s *Session) Mount(ctx context.Context, page int) PageView {
	s.tracker.Mount(page)
	return s.View(ctx, page)
}

func (s *Session) Unmount(page int) {
	s.tracker.Unmount(page)
}

// Observe forwards visibility reports to the tracker
func (s *Session) Observe(entries []viewport.Visibility) {
	s.tracker.Observe(entries)
}

// CurrentPage returns the page the tracker considers current
func (s *Session) CurrentPage() int {
	return s.tracker.Current()
}

// JumpTo resolves (surah, ayah) to a page and makes it current. ayah 0 means
// the first ayah. A broken page table yields the fallback page together with
// ErrPageNotFound.
func (s *Session) JumpTo(surah, ayah int) (int, error) {
	if ayah == 0 {
		ayah = 1
	}
	ref := domain.AyahRef{Surah: surah, Ayah: ayah}
	if !ref.Valid() {
		return 0, fmt.Errorf("%w: %d:%d", domain.ErrInvalidRef, surah, ayah)
	}
	page, err := s.index.PageForSurahAyah(surah, ayah)
	s.tracker.JumpTo(page)
	return page, err
}

// GoToPage makes a page current without going through the page index
func (s *Session) GoToPage(page int) (int, error) {
	if _, ok := s.index.Descriptor(page); !ok {
		return 0, fmt.Errorf("%w: page %d", domain.ErrInvalidRef, page)
	}
	return s.tracker.JumpTo(page), nil
}

// View returns the current state of a page without waiting for text loads.
// Missing surahs are requested and the view reports them as pending.
func (s *Session) View(ctx context.Context, page int) PageView {
	script := s.Script()
	res := s.resolver.Resolve(page, script)
	desc, _ := s.index.Descriptor(page)
	v := PageView{
		Page:       page,
		Script:     script,
		Descriptor: desc,
		Ayahs:      res.Ayahs,
		Pending:    res.Pending,
	}
	if !res.Ready() {
		return v
	}

	v.Lines = resolver.Layout(res.Ayahs)
	v.Projection = s.model.ProjectForPage(page, res.Ayahs)
	v.Marks = s.marks(ctx, page, script)

	s.mu.Lock()
	sel, mode := s.selection, s.category != ""
	s.mu.Unlock()

	v.Styles = s.palette.ComposePage(compositor.PageInput{
		Ayahs:         res.Ayahs,
		Projection:    v.Projection,
		Marks:         v.Marks,
		Selection:     sel,
		HighlightMode: mode,
	})
	return v
}

func (s *Session) marks(ctx context.Context, page int, script domain.ScriptID) domain.AnnotationMarks {
	if s.annotations == nil {
		return domain.AnnotationMarks{}
	}
	m, err := s.annotations.Marks(ctx, s.studentID, page, script)
	if err != nil {
		s.log.Warn("annotation marks unavailable", zap.Int("page", page), zap.Error(err))
		return domain.AnnotationMarks{}
	}
	return m
}

// LoadPage waits until every surah of the page is cached and returns its view
func (s *Session) LoadPage(ctx context.Context, page int) (PageView, error) {
	desc, ok := s.index.Descriptor(page)
	if !ok {
		return PageView{}, fmt.Errorf("%w: page %d", domain.ErrInvalidRef, page)
	}

	script := s.Script()
	p := pool.New().WithErrors().WithContext(ctx)
	for _, surah := range desc.Surahs {
		surah := surah
		p.Go(func(ctx context.Context) error {
			_, err := s.cache.Load(ctx, script, surah)
			return err
		})
	}
	if err := p.Wait(); err != nil {
		return PageView{}, fmt.Errorf("load page %d: %w", page, err)
	}

	v := s.View(ctx, page)
	if !v.Ready() {
		return v, fmt.Errorf("%w: page %d pending %v", domain.ErrDataUnavailable, page, v.Pending)
	}
	return v, nil
}

// ToggleWord toggles the armed-or-given category on one word of a page.
// ayahIndex and wordIndex are positions on the resolved page.
func (s *Session) ToggleWord(ctx context.Context, page, ayahIndex, wordIndex int, category domain.Category) (highlight.Outcome, error) {
	ayah, err := s.ayahAt(page, ayahIndex)
	if err != nil {
		return 0, err
	}
	if wordIndex < 0 || wordIndex >= len(ayah.Words) {
		return 0, fmt.Errorf("%w: %s has %d words, got index %d", domain.ErrInvalidRef, ayah.Ref().ID(), len(ayah.Words), wordIndex)
	}
	out, err := s.model.ToggleWord(ctx, page, ayah.Ref(), wordIndex, s.pick(category))
	if err != nil {
		return 0, err
	}
	s.refresh(func(p int) bool { return p == page })
	return out, nil
}

// ToggleWholeAyah toggles a whole-ayah highlight on one ayah of a page
func (s *Session) ToggleWholeAyah(ctx context.Context, page, ayahIndex int, category domain.Category) (highlight.Outcome, error) {
	ayah, err := s.ayahAt(page, ayahIndex)
	if err != nil {
		return 0, err
	}
	out, err := s.model.ToggleWholeAyah(ctx, page, ayah.Ref(), s.pick(category))
	if err != nil {
		return 0, err
	}
	s.refresh(func(p int) bool { return p == page })
	return out, nil
}

// Select previews an in-progress selection over words of one ayah
func (s *Session) Select(page, ayahIndex, from, to int) {
	s.mu.Lock()
	s.selection = compositor.Selection{Active: true, AyahIndex: ayahIndex, From: from, To: to}
	s.mu.Unlock()
	s.refresh(func(p int) bool { return p == page })
}

// CancelSelection drops the selection preview
func (s *Session) CancelSelection(page int) {
	s.mu.Lock()
	s.selection = compositor.Selection{}
	s.mu.Unlock()
	s.refresh(func(p int) bool { return p == page })
}

// CommitSelection turns the selection into a highlight. The preview is
// cleared whether or not the store accepts it.
func (s *Session) CommitSelection(ctx context.Context, page int, category domain.Category) (highlight.Outcome, error) {
	s.mu.Lock()
	sel := s.selection
	s.selection = compositor.Selection{}
	s.mu.Unlock()

	defer s.refresh(func(p int) bool { return p == page })

	if !sel.Active {
		return 0, fmt.Errorf("%w: no selection", domain.ErrInvalidRef)
	}
	ayah, err := s.ayahAt(page, sel.AyahIndex)
	if err != nil {
		return 0, err
	}
	from, to := sel.From, sel.To
	if from > to {
		from, to = to, from
	}
	if from < 0 || to >= len(ayah.Words) {
		return 0, fmt.Errorf("%w: %s words %d-%d", domain.ErrInvalidRef, ayah.Ref().ID(), from, to)
	}
	return s.model.ToggleRange(ctx, page, ayah.Ref(), from, to, s.pick(category))
}

// CompleteCategory completes a category on one page, or on every page with highlight.AllPages
func (s *Session) CompleteCategory(ctx context.Context, category domain.Category, page int) (int, error) {
	n, err := s.model.CompleteCategory(ctx, s.pick(category), page)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.refresh(func(p int) bool { return page == highlight.AllPages || p == page })
	}
	return n, nil
}

// Summary counts highlights per category on a page or everywhere
func (s *Session) Summary(page int) []highlight.CategoryCount {
	return s.model.Summary(page)
}

func (s *Session) pick(category domain.Category) domain.Category {
	if category != "" {
		return category
	}
	return s.Category()
}

func (s *Session) ayahAt(page, ayahIndex int) (domain.Ayah, error) {
	res := s.resolver.Resolve(page, s.Script())
	if !res.Ready() {
		return domain.Ayah{}, fmt.Errorf("%w: page %d not loaded", domain.ErrDataUnavailable, page)
	}
	if ayahIndex < 0 || ayahIndex >= len(res.Ayahs) {
		return domain.Ayah{}, fmt.Errorf("%w: page %d has %d ayahs, got index %d", domain.ErrInvalidRef, page, len(res.Ayahs), ayahIndex)
	}
	return res.Ayahs[ayahIndex], nil
}

// surahStored redraws every mounted page fed by the surah that was just cached
func (s *Session) surahStored(script domain.ScriptID, surah int) {
	if script != s.Script() {
		return
	}
	s.refresh(func(page int) bool {
		desc, ok := s.index.Descriptor(page)
		return ok && desc.Contains(surah)
	})
}

func (s *Session) refresh(match func(page int) bool) {
	s.mu.Lock()
	l := s.listener
	s.mu.Unlock()
	if l == nil {
		return
	}
	for _, page := range s.tracker.Mounted() {
		if match(page) {
			l(s.View(context.Background(), page))
		}
	}
}
