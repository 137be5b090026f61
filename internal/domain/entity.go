package domain

import (
	"fmt"
	"time"
)

// Surah represents a chapter in the Quran
type Surah struct {
	Number int
	Name   string
	Ayahs  int
}

// AyahRef addresses a single ayah by surah and 1-based ayah number
type AyahRef struct {
	Surah int
	Ayah  int
}

// ID returns the formatted ayah ID (XXXYYY format)
func (r AyahRef) ID() string {
	return FormatAyahID(r.Surah, r.Ayah)
}

// Valid reports whether the reference points at an existing ayah
func (r AyahRef) Valid() bool {
	s, ok := SurahByNumber(r.Surah)
	return ok && r.Ayah >= 1 && r.Ayah <= s.Ayahs
}

// FormatAyahID formats a surah/ayah pair as a six digit identifier
func FormatAyahID(surah, ayah int) string {
	return fmt.Sprintf("%03d%03d", surah, ayah)
}

// ScriptID identifies a typographic edition of the text, e.g. "quran-uthmani"
type ScriptID string

const (
	ScriptUthmani ScriptID = "quran-uthmani"
	ScriptSimple  ScriptID = "quran-simple"
)

// Ayah is a verse with its text split into words
type Ayah struct {
	Surah  int
	Number int
	Text   string
	Words  []string
}

// Ref returns the coordinates of the ayah
func (a Ayah) Ref() AyahRef {
	return AyahRef{Surah: a.Surah, Ayah: a.Number}
}

// SurahText is the cached text of one surah under one script
type SurahText struct {
	Script ScriptID
	Surah  int
	Name   string
	Ayahs  []Ayah
}

// RawSurah is the payload returned by a text source before word splitting
type RawSurah struct {
	Number int       `json:"number"`
	Name   string    `json:"name"`
	Ayahs  []RawAyah `json:"ayahs"`
}

// RawAyah is a single verse as returned by a text source
type RawAyah struct {
	NumberInSurah int    `json:"numberInSurah"`
	Text          string `json:"text"`
}

// PageDescriptor describes what appears on one mushaf page
type PageDescriptor struct {
	Number     int
	SurahStart int
	AyahStart  int
	SurahEnd   int
	AyahEnd    int
	Surahs     []int
	Juz        int
	Hizb       int
}

// MultiSurah reports whether more than one surah appears on the page
func (p PageDescriptor) MultiSurah() bool {
	return p.SurahStart != p.SurahEnd
}

// Contains reports whether the surah appears on the page at all
func (p PageDescriptor) Contains(surah int) bool {
	for _, s := range p.Surahs {
		if s == surah {
			return true
		}
	}
	return false
}

// Category is the purpose or mistake type a highlight is tagged with
type Category string

const (
	CategoryRecap    Category = "recap"
	CategoryHomework Category = "homework"
	CategoryTajweed  Category = "tajweed"
	CategoryHaraka   Category = "haraka"
	CategoryLetter   Category = "letter"
)

// Categories lists every category in display order
var Categories = []Category{
	CategoryRecap,
	CategoryHomework,
	CategoryTajweed,
	CategoryHaraka,
	CategoryLetter,
}

// Valid reports whether c is a known category
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// WholeAyah reports whether the category may be applied to an entire ayah
func (c Category) WholeAyah() bool {
	switch c {
	case CategoryRecap, CategoryHomework, CategoryTajweed:
		return true
	}
	return false
}

// Order returns the display position of the category, or len(Categories) if unknown
func (c Category) Order() int {
	for i, known := range Categories {
		if c == known {
			return i
		}
	}
	return len(Categories)
}

// ParseCategory converts user input into a category
func ParseCategory(s string) (Category, error) {
	c := Category(s)
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidCategory, s)
	}
	return c, nil
}

// HighlightKind distinguishes the two scopes a highlight can cover
type HighlightKind int

const (
	KindWholeAyah HighlightKind = iota
	KindSingleWord
	KindWordRange
)

// Highlight is a persisted, categorized annotation on a word or a whole ayah.
// WordStart and WordEnd are both nil for a whole-ayah highlight.
type Highlight struct {
	ID          string
	StudentID   string
	Surah       int
	AyahStart   int
	AyahEnd     int
	WordStart   *int
	WordEnd     *int
	Category    Category
	Color       string
	PageNumber  int
	CompletedAt *time.Time
	CreatedAt   time.Time
}

// Kind classifies the highlight by its word bounds
func (h Highlight) Kind() HighlightKind {
	switch {
	case h.WordStart == nil && h.WordEnd == nil:
		return KindWholeAyah
	case h.WordStart != nil && h.WordEnd != nil && *h.WordStart == *h.WordEnd:
		return KindSingleWord
	default:
		return KindWordRange
	}
}

// Completed reports whether the highlight has been marked done
func (h Highlight) Completed() bool {
	return h.CompletedAt != nil
}

// Covers reports whether the highlight spans the given ayah
func (h Highlight) Covers(ref AyahRef) bool {
	return h.Surah == ref.Surah && ref.Ayah >= h.AyahStart && ref.Ayah <= h.AyahEnd
}

// IsWord reports whether h is the single-word highlight for (ref, word, category)
func (h Highlight) IsWord(ref AyahRef, word int, category Category) bool {
	return h.Kind() == KindSingleWord &&
		h.Category == category &&
		h.Surah == ref.Surah && h.AyahStart == ref.Ayah && h.AyahEnd == ref.Ayah &&
		*h.WordStart == word
}

// IsWholeAyah reports whether h is the whole-ayah highlight for (ref, category)
func (h Highlight) IsWholeAyah(ref AyahRef, category Category) bool {
	return h.Kind() == KindWholeAyah &&
		h.Category == category &&
		h.Surah == ref.Surah && h.AyahStart == ref.Ayah && h.AyahEnd == ref.Ayah
}

// IsRange reports whether h is the word-range highlight for (ref, from..to, category)
func (h Highlight) IsRange(ref AyahRef, from, to int, category Category) bool {
	return h.Kind() == KindWordRange &&
		h.Category == category &&
		h.Surah == ref.Surah && h.AyahStart == ref.Ayah && h.AyahEnd == ref.Ayah &&
		*h.WordStart == from && *h.WordEnd == to
}

// NewHighlight is the creation request sent to a highlight store.
// Nil word bounds mean the whole ayah.
type NewHighlight struct {
	StudentID  string
	Surah      int
	AyahStart  int
	AyahEnd    int
	WordStart  *int
	WordEnd    *int
	Color      string
	Category   Category
	PageNumber int
}

// WordHighlight builds a single-word creation request
func WordHighlight(studentID string, page int, ref AyahRef, word int, category Category, color string) NewHighlight {
	start, end := word, word
	return NewHighlight{
		StudentID:  studentID,
		Surah:      ref.Surah,
		AyahStart:  ref.Ayah,
		AyahEnd:    ref.Ayah,
		WordStart:  &start,
		WordEnd:    &end,
		Color:      color,
		Category:   category,
		PageNumber: page,
	}
}

// RangeHighlight builds a creation request spanning words from..to of one ayah
func RangeHighlight(studentID string, page int, ref AyahRef, from, to int, category Category, color string) NewHighlight {
	h := WordHighlight(studentID, page, ref, from, category, color)
	end := to
	h.WordEnd = &end
	return h
}

// WholeAyahHighlight builds a whole-ayah creation request
func WholeAyahHighlight(studentID string, page int, ref AyahRef, category Category, color string) NewHighlight {
	return NewHighlight{
		StudentID:  studentID,
		Surah:      ref.Surah,
		AyahStart:  ref.Ayah,
		AyahEnd:    ref.Ayah,
		Color:      color,
		Category:   category,
		PageNumber: page,
	}
}

// Materialize turns a confirmed creation request into a highlight
func (n NewHighlight) Materialize(id string, createdAt time.Time) Highlight {
	return Highlight{
		ID:         id,
		StudentID:  n.StudentID,
		Surah:      n.Surah,
		AyahStart:  n.AyahStart,
		AyahEnd:    n.AyahEnd,
		WordStart:  n.WordStart,
		WordEnd:    n.WordEnd,
		Category:   n.Category,
		Color:      n.Color,
		PageNumber: n.PageNumber,
		CreatedAt:  createdAt,
	}
}

// WordKey addresses one word on a resolved page
type WordKey struct {
	AyahIndex int
	WordIndex int
}

// WordRef addresses one word in the text independent of page layout
type WordRef struct {
	Ref  AyahRef
	Word int
}

// AnnotationMarks tells the compositor which words carry ink strokes and which highlights have notes
type AnnotationMarks struct {
	Ink   map[WordRef]bool
	Notes map[string]bool
}

// Language represents supported languages
type Language string

const (
	LangEnglish Language = "en"
	LangArabic  Language = "ar"
	LangRussian Language = "ru"
)
