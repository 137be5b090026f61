package highlight

import (
	"sort"

	"go.uber.org/zap"

	"github.com/escalopa/mushaf-overlay/internal/domain"
	"github.com/escalopa/mushaf-overlay/internal/telemetry"
)

// Entry tags one word of a page with one category
type Entry struct {
	AyahIndex int
	WordIndex int
	Category  domain.Category
	Completed bool
	// HighlightIDs lists every highlight contributing to this entry
	HighlightIDs []string
}

// Projection is the word-level expansion of a page's highlights.
// It is rebuilt from scratch whenever highlights or page content change.
type Projection struct {
	Page    int
	Entries []Entry
	byWord  map[domain.WordKey][]int
}

// Len returns the number of (ayah, word, category) entries
func (p Projection) Len() int {
	return len(p.Entries)
}

// At returns the entries tagged on one word
func (p Projection) At(ayahIndex, wordIndex int) []Entry {
	idx := p.byWord[domain.WordKey{AyahIndex: ayahIndex, WordIndex: wordIndex}]
	out := make([]Entry, len(idx))
	for i, j := range idx {
		out[i] = p.Entries[j]
	}
	return out
}

// Categories returns the categories on one word and whether any of them is completed
func (p Projection) Categories(ayahIndex, wordIndex int) ([]domain.Category, bool) {
	var cats []domain.Category
	completed := false
	for _, e := range p.At(ayahIndex, wordIndex) {
		cats = append(cats, e.Category)
		completed = completed || e.Completed
	}
	return cats, completed
}

// Project expands highlights over the ayahs resolved for a page. Whole-ayah
// highlights produce one entry per word. Entries pointing past an ayah's
// words are dropped and logged.
func Project(page int, highlights []domain.Highlight, ayahs []domain.Ayah, log *zap.Logger) Projection {
	log = telemetry.OrNop(log)
	proj := Projection{Page: page, byWord: make(map[domain.WordKey][]int)}
	if len(ayahs) == 0 {
		return proj
	}

	type tripleKey struct {
		word     domain.WordKey
		category domain.Category
	}
	index := make(map[tripleKey]int)

	add := func(key domain.WordKey, h domain.Highlight) {
		tk := tripleKey{word: key, category: h.Category}
		if i, ok := index[tk]; ok {
			e := &proj.Entries[i]
			e.Completed = e.Completed || h.Completed()
			e.HighlightIDs = append(e.HighlightIDs, h.ID)
			return
		}
		index[tk] = len(proj.Entries)
		proj.Entries = append(proj.Entries, Entry{
			AyahIndex:    key.AyahIndex,
			WordIndex:    key.WordIndex,
			Category:     h.Category,
			Completed:    h.Completed(),
			HighlightIDs: []string{h.ID},
		})
	}

	for _, h := range highlights {
		covered := false
		for ai, a := range ayahs {
			if !h.Covers(a.Ref()) {
				continue
			}
			covered = true

			from, to := 0, len(a.Words)-1
			if h.Kind() != domain.KindWholeAyah {
				if h.WordStart == nil || h.WordEnd == nil {
					log.Warn("highlight with half-open word range dropped", zap.String("id", h.ID))
					continue
				}
				from, to = *h.WordStart, *h.WordEnd
			}
			if from < 0 || to >= len(a.Words) || from > to {
				log.Warn("highlight word index outside ayah, dropped",
					zap.Error(domain.ErrIndexMismatch),
					zap.String("id", h.ID),
					zap.String("ayah", a.Ref().ID()),
					zap.Int("word_start", from),
					zap.Int("word_end", to),
					zap.Int("words", len(a.Words)))
				continue
			}
			for w := from; w <= to; w++ {
				add(domain.WordKey{AyahIndex: ai, WordIndex: w}, h)
			}
		}
		if !covered {
			log.Debug("highlight not on resolved page content",
				zap.String("id", h.ID),
				zap.Int("page", page),
				zap.String("ayah", domain.FormatAyahID(h.Surah, h.AyahStart)))
		}
	}

	sort.SliceStable(proj.Entries, func(i, j int) bool {
		a, b := proj.Entries[i], proj.Entries[j]
		if a.AyahIndex != b.AyahIndex {
			return a.AyahIndex < b.AyahIndex
		}
		if a.WordIndex != b.WordIndex {
			return a.WordIndex < b.WordIndex
		}
		return a.Category.Order() < b.Category.Order()
	})
	for i, e := range proj.Entries {
		k := domain.WordKey{AyahIndex: e.AyahIndex, WordIndex: e.WordIndex}
		proj.byWord[k] = append(proj.byWord[k], i)
	}
	return proj
}
