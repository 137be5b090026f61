package compositor

import (
	"github.com/lucasb-eyer/go-colorful"

	"github.com/escalopa/mushaf-overlay/internal/domain"
	"github.com/escalopa/mushaf-overlay/internal/highlight"
)

// Background is how the area behind a word is painted
type Background int

const (
	BackgroundNone Background = iota
	BackgroundHover
	BackgroundSolid
	BackgroundSegmented
	BackgroundSelection
	BackgroundCompleted
)

func (b Background) String() string {
	switch b {
	case BackgroundHover:
		return "hover"
	case BackgroundSolid:
		return "solid"
	case BackgroundSegmented:
		return "segmented"
	case BackgroundSelection:
		return "selection"
	case BackgroundCompleted:
		return "completed"
	}
	return "none"
}

// Border marks words that carry an ink stroke
type Border int

const (
	BorderNone Border = iota
	BorderInk
)

const (
	IndicatorNote = "✎"
	IndicatorInk  = "〰"
)

// Segment is one category's share of a segmented background
type Segment struct {
	Category domain.Category
	Color    string
	// Start and End are fractions of the word width
	Start float64
	End   float64
}

// Style is everything a renderer needs to paint one word
type Style struct {
	Background Background
	// Color is the fill for solid, hover, selection and completed
	// backgrounds, and an even blend of the segments for segmented ones
	Color       string
	Segments    []Segment
	TextColor   string
	Border      Border
	BorderColor string
	Indicator   string
}

// WordState is what is known about one word when it is painted
type WordState struct {
	Categories []domain.Category
	Completed  bool
	HasInk     bool
	HasNote    bool
	// Selecting is true while the word is inside an unfinished selection gesture
	Selecting bool
	// HighlightMode is true while a category is armed for clicking
	HighlightMode bool
}

// Compose picks the style of a single word
func (p Palette) Compose(w WordState) Style {
	s := Style{TextColor: p.text.Hex()}

	if w.HasInk {
		s.Border = BorderInk
		s.BorderColor = p.ink.Hex()
	}
	switch {
	case w.HasNote && w.HasInk:
		s.Indicator = IndicatorNote + IndicatorInk
	case w.HasNote:
		s.Indicator = IndicatorNote
	case w.HasInk:
		s.Indicator = IndicatorInk
	}

	switch {
	case w.Selecting:
		s.Background = BackgroundSelection
		s.Color = p.selection.Hex()
	case w.Completed:
		s.Background = BackgroundCompleted
		s.Color = p.completed.Hex()
	case len(w.Categories) == 0:
		if w.HighlightMode {
			s.Background = BackgroundHover
			s.Color = p.hover.Hex()
		}
	case len(w.Categories) == 1:
		s.Background = BackgroundSolid
		s.Color = p.Hex(w.Categories[0])
	default:
		s.Background = BackgroundSegmented
		s.Segments, s.Color = p.segments(w.Categories)
	}
	return s
}

func (p Palette) segments(cats []domain.Category) ([]Segment, string) {
	share := 1 / float64(len(cats))
	out := make([]Segment, len(cats))
	cols := make([]colorful.Color, len(cats))
	for i, c := range cats {
		cols[i] = p.categories[c]
		out[i] = Segment{
			Category: c,
			Color:    cols[i].Hex(),
			Start:    float64(i) * share,
			End:      float64(i+1) * share,
		}
	}
	out[len(out)-1].End = 1
	return out, blend(cols).Hex()
}

// Selection is an in-progress multi-word gesture within one ayah
type Selection struct {
	Active    bool
	AyahIndex int
	From      int
	To        int
}

// Contains reports whether a word lies inside the selection
func (s Selection) Contains(ayahIndex, wordIndex int) bool {
	if !s.Active || ayahIndex != s.AyahIndex {
		return false
	}
	from, to := s.From, s.To
	if from > to {
		from, to = to, from
	}
	return wordIndex >= from && wordIndex <= to
}

// PageInput bundles what ComposePage paints
type PageInput struct {
	Ayahs         []domain.Ayah
	Projection    highlight.Projection
	Marks         domain.AnnotationMarks
	Selection     Selection
	HighlightMode bool
}

// ComposePage styles every word of a resolved page. The result is indexed
// by ayah index then word index.
func (p Palette) ComposePage(in PageInput) [][]Style {
	out := make([][]Style, len(in.Ayahs))
	for ai, a := range in.Ayahs {
		row := make([]Style, len(a.Words))
		for wi := range a.Words {
			row[wi] = p.Compose(wordState(in, ai, wi, a.Ref()))
		}
		out[ai] = row
	}
	return out
}

func wordState(in PageInput, ai, wi int, ref domain.AyahRef) WordState {
	w := WordState{
		HasInk:        in.Marks.Ink[domain.WordRef{Ref: ref, Word: wi}],
		Selecting:     in.Selection.Contains(ai, wi),
		HighlightMode: in.HighlightMode,
	}
	for _, e := range in.Projection.At(ai, wi) {
		w.Categories = append(w.Categories, e.Category)
		w.Completed = w.Completed || e.Completed
		for _, id := range e.HighlightIDs {
			if in.Marks.Notes[id] {
				w.HasNote = true
			}
		}
	}
	return w
}
