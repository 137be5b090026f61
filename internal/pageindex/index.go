// Package pageindex holds the static 604-page Madani mushaf layout and
// answers page <-> (surah, ayah) queries against it.
package pageindex

import (
	_ "embed"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/escalopa/mushaf-overlay/internal/domain"
	"github.com/escalopa/mushaf-overlay/internal/telemetry"
)

const (
	// PageCount is the number of pages in the Madani layout
	PageCount = 604

	// FallbackPage is returned by PageForSurahAyah when nothing matches
	FallbackPage = 1
)

//go:embed pages.yaml
var embeddedPages []byte

type pageFile struct {
	Pages []pageEntry `yaml:"pages"`
}

type pageEntry struct {
	Page       int   `yaml:"page"`
	SurahStart int   `yaml:"surah_start"`
	AyahStart  int   `yaml:"ayah_start"`
	SurahEnd   int   `yaml:"surah_end"`
	AyahEnd    int   `yaml:"ayah_end"`
	Surahs     []int `yaml:"surahs"`
	Juz        int   `yaml:"juz"`
	Hizb       int   `yaml:"hizb"`
}

// Index is an immutable page table
type Index struct {
	pages []domain.PageDescriptor
	log   *zap.Logger
}

var (
	defaultOnce  sync.Once
	defaultIndex *Index
	defaultErr   error
)

// Default returns the index built from the embedded Madani table
func Default() (*Index, error) {
	defaultOnce.Do(func() {
		defaultIndex, defaultErr = Parse(embeddedPages)
	})
	return defaultIndex, defaultErr
}

// Parse builds an index from YAML and checks its invariants
func Parse(data []byte) (*Index, error) {
	var pf pageFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("unmarshal pages: %w", err)
	}

	pages := make([]domain.PageDescriptor, 0, len(pf.Pages))
	for i, e := range pf.Pages {
		if e.Page != i+1 {
			return nil, fmt.Errorf("page %d: expected page number %d", e.Page, i+1)
		}
		d := domain.PageDescriptor{
			Number:     e.Page,
			SurahStart: e.SurahStart,
			AyahStart:  e.AyahStart,
			SurahEnd:   e.SurahEnd,
			AyahEnd:    e.AyahEnd,
			Surahs:     e.Surahs,
			Juz:        e.Juz,
			Hizb:       e.Hizb,
		}
		if err := validate(d); err != nil {
			return nil, err
		}
		pages = append(pages, d)
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("page table is empty")
	}

	return &Index{pages: pages, log: zap.NewNop()}, nil
}

func validate(d domain.PageDescriptor) error {
	if len(d.Surahs) == 0 {
		return fmt.Errorf("page %d: no surahs", d.Number)
	}
	if d.Surahs[0] != d.SurahStart || d.Surahs[len(d.Surahs)-1] != d.SurahEnd {
		return fmt.Errorf("page %d: surah list %v does not span %d..%d", d.Number, d.Surahs, d.SurahStart, d.SurahEnd)
	}
	for i := 1; i < len(d.Surahs); i++ {
		if d.Surahs[i] <= d.Surahs[i-1] {
			return fmt.Errorf("page %d: surah list %v not strictly increasing", d.Number, d.Surahs)
		}
	}
	if d.MultiSurah() == (len(d.Surahs) == 1) {
		return fmt.Errorf("page %d: multi-surah flag disagrees with surah list", d.Number)
	}
	if !(domain.AyahRef{Surah: d.SurahStart, Ayah: d.AyahStart}).Valid() {
		return fmt.Errorf("page %d: invalid start %d:%d", d.Number, d.SurahStart, d.AyahStart)
	}
	if !(domain.AyahRef{Surah: d.SurahEnd, Ayah: d.AyahEnd}).Valid() {
		return fmt.Errorf("page %d: invalid end %d:%d", d.Number, d.SurahEnd, d.AyahEnd)
	}
	if !d.MultiSurah() && d.AyahStart > d.AyahEnd {
		return fmt.Errorf("page %d: ayah range %d..%d reversed", d.Number, d.AyahStart, d.AyahEnd)
	}
	return nil
}

// WithLogger returns a copy of the index that logs lookup misses to l
func (ix *Index) WithLogger(l *zap.Logger) *Index {
	cp := *ix
	cp.log = telemetry.OrNop(l)
	return &cp
}

// Len returns the number of pages
func (ix *Index) Len() int {
	return len(ix.pages)
}

// Descriptor returns the descriptor of a page
func (ix *Index) Descriptor(page int) (domain.PageDescriptor, bool) {
	if page < 1 || page > len(ix.pages) {
		return domain.PageDescriptor{}, false
	}
	return ix.pages[page-1], true
}

// PageForSurahAyah returns the page containing (surah, ayah).
// When nothing matches it returns FallbackPage together with ErrPageNotFound;
// a miss indicates a broken page table, not a user error.
func (ix *Index) PageForSurahAyah(surah, ayah int) (int, error) {
	// single-surah page whose range contains the ayah
	for _, p := range ix.pages {
		if !p.MultiSurah() && p.SurahStart == surah && ayah >= p.AyahStart && ayah <= p.AyahEnd {
			return p.Number, nil
		}
	}
	// multi-surah page where the ayah sits in the tail of the first surah or the head of the last
	for _, p := range ix.pages {
		if !p.MultiSurah() {
			continue
		}
		if p.SurahStart == surah && ayah >= p.AyahStart {
			return p.Number, nil
		}
		if p.SurahEnd == surah && ayah <= p.AyahEnd {
			return p.Number, nil
		}
	}
	// any page the surah appears on, for surahs fully contained in a page
	for _, p := range ix.pages {
		if p.Contains(surah) {
			return p.Number, nil
		}
	}

	ix.log.Warn("no page for ayah, falling back",
		zap.Int("surah", surah),
		zap.Int("ayah", ayah),
		zap.Int("fallback_page", FallbackPage))
	return FallbackPage, fmt.Errorf("%w: %d:%d", domain.ErrPageNotFound, surah, ayah)
}

// PagesForSurah returns every page the surah appears on, in order
func (ix *Index) PagesForSurah(surah int) []int {
	var out []int
	for _, p := range ix.pages {
		if p.Contains(surah) {
			out = append(out, p.Number)
		}
	}
	return out
}

// FirstPageOfJuz returns the first page belonging to a juz
func (ix *Index) FirstPageOfJuz(juz int) (int, bool) {
	for _, p := range ix.pages {
		if p.Juz == juz {
			return p.Number, true
		}
	}
	return 0, false
}
