// Package terminal draws composed pages for a terminal with lipgloss.
package terminal

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/escalopa/mushaf-overlay/internal/application"
	"github.com/escalopa/mushaf-overlay/internal/compositor"
	"github.com/escalopa/mushaf-overlay/internal/domain"
	"github.com/escalopa/mushaf-overlay/internal/highlight"
	"github.com/escalopa/mushaf-overlay/internal/resolver"
)

const DefaultWidth = 80

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#37474F"))
	surahStyle   = lipgloss.NewStyle().Bold(true).Align(lipgloss.Center)
	numberStyle  = lipgloss.NewStyle().Faint(true)
	pendingStyle = lipgloss.NewStyle().Italic(true).Faint(true)
)

type Renderer struct {
	width int
}

type Option func(*Renderer)

func WithWidth(w int) Option {
	return func(r *Renderer) {
		if w > 0 {
			r.width = w
		}
	}
}

func NewRenderer(opts ...Option) *Renderer {
	r := &Renderer{width: DefaultWidth}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Page renders a page view. Ayahs are prefixed with their position on the page.
func (r *Renderer) Page(v application.PageView) string {
	header := headerStyle.Render(wordwrap.String(fmt.Sprintf("Page %d · Juz %d · Hizb %d · %s", v.Page, v.Descriptor.Juz, v.Descriptor.Hizb, v.Script), r.width))
	if !v.Ready() {
		return header + "\n\n" + pendingStyle.Render(fmt.Sprintf("loading surahs %v", v.Pending))
	}

	blocks := []string{header}
	for _, line := range v.Lines {
		if line.SurahHeader {
			name := fmt.Sprintf("Surah %d", line.Ayah.Surah)
			if s, ok := domain.SurahByNumber(line.Ayah.Surah); ok {
				name = s.Name
			}
			blocks = append(blocks, surahStyle.Width(r.width).Render("❁ "+name+" ❁"))
		}
		if line.Bismillah {
			blocks = append(blocks, surahStyle.Width(r.width).Render(resolver.Bismillah))
		}
		blocks = append(blocks, wordwrap.String(r.ayah(v, line), r.width))
	}
	return strings.Join(blocks, "\n")
}

func (r *Renderer) ayah(v application.PageView, line resolver.Line) string {
	parts := []string{numberStyle.Render(strconv.Itoa(line.Index+1) + ".")}
	for wi, word := range line.Ayah.Words {
		var st compositor.Style
		if line.Index < len(v.Styles) && wi < len(v.Styles[line.Index]) {
			st = v.Styles[line.Index][wi]
		}
		parts = append(parts, Word(word, st))
	}
	parts = append(parts, "﴿"+strconv.Itoa(line.Ayah.Number)+"﴾")
	return strings.Join(parts, " ")
}

// Word paints one word with its composed style. Segmented backgrounds split the
// word's letters between the segments.
func Word(word string, st compositor.Style) string {
	if st.Background == compositor.BackgroundSegmented && len(st.Segments) > 1 {
		return segmented(word, st) + st.Indicator
	}
	return WordStyle(st).Render(word) + st.Indicator
}

// WordStyle maps a composed style onto a lipgloss style
func WordStyle(st compositor.Style) lipgloss.Style {
	s := lipgloss.NewStyle()
	if st.Background != compositor.BackgroundNone && st.Color != "" {
		s = s.Background(lipgloss.Color(st.Color))
	}
	if st.TextColor != "" {
		s = s.Foreground(lipgloss.Color(st.TextColor))
	}
	if st.Border == compositor.BorderInk {
		s = s.Underline(true)
	}
	if st.Background == compositor.BackgroundCompleted {
		s = s.Bold(true)
	}
	return s
}

func segmented(word string, st compositor.Style) string {
	clusters := letters(word)
	var b strings.Builder
	for _, seg := range st.Segments {
		from := int(seg.Start*float64(len(clusters)) + 0.5)
		to := int(seg.End*float64(len(clusters)) + 0.5)
		if to <= from {
			continue
		}
		s := lipgloss.NewStyle().Background(lipgloss.Color(seg.Color))
		if st.TextColor != "" {
			s = s.Foreground(lipgloss.Color(st.TextColor))
		}
		if st.Border == compositor.BorderInk {
			s = s.Underline(true)
		}
		b.WriteString(s.Render(strings.Join(clusters[from:to], "")))
	}
	return b.String()
}

// letters splits a word into base letters with their combining marks attached
func letters(word string) []string {
	var out []string
	for _, r := range word {
		if len(out) > 0 && (unicode.Is(unicode.Mn, r) || unicode.Is(unicode.Cf, r)) {
			out[len(out)-1] += string(r)
			continue
		}
		out = append(out, string(r))
	}
	return out
}

// Summary renders per-category counts as a small table
func Summary(counts []highlight.CategoryCount, p compositor.Palette) string {
	if len(counts) == 0 {
		return "no highlights"
	}
	rows := make([]string, 0, len(counts))
	for _, c := range counts {
		swatch := lipgloss.NewStyle().Background(lipgloss.Color(p.Hex(c.Category))).Render("  ")
		rows = append(rows, fmt.Sprintf("%s %-9s open %3d  completed %3d  total %3d", swatch, c.Category, c.Open, c.Completed, c.Total()))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}
