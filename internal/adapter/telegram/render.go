package telegram

import (
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/escalopa/mushaf-overlay/internal/application"
	"github.com/escalopa/mushaf-overlay/internal/compositor"
	"github.com/escalopa/mushaf-overlay/internal/domain"
	"github.com/escalopa/mushaf-overlay/internal/highlight"
	"github.com/escalopa/mushaf-overlay/internal/resolver"
)

// maxMessageRunes keeps rendered chunks under Telegram's 4096 character limit
const maxMessageRunes = 3800

var categoryMarkers = map[domain.Category]string{
	domain.CategoryRecap:    "🟦",
	domain.CategoryHomework: "🟩",
	domain.CategoryTajweed:  "🟥",
	domain.CategoryHaraka:   "🟪",
	domain.CategoryLetter:   "🟧",
}

const completedMarker = "⭐"

// Marker returns the emoji drawn in front of words of a category
func Marker(c domain.Category) string {
	if m, ok := categoryMarkers[c]; ok {
		return m
	}
	return "▫️"
}

// RenderPage draws a resolved page as HTML message chunks. Ayahs are numbered
// by their position on the page, which is what "A W" toggles refer to.
func RenderPage(v application.PageView, tr domain.I18nPort, lang domain.Language) []string {
	header := "<b>" + html.EscapeString(tr.Get(lang, "page.header", v.Page, v.Descriptor.Juz, v.Descriptor.Hizb)) + "</b>"
	if !v.Ready() {
		return []string{header + "\n\n" + html.EscapeString(tr.Get(lang, "page.pending", v.Page))}
	}

	blocks := []string{header}
	for _, line := range v.Lines {
		var b strings.Builder
		if line.SurahHeader {
			b.WriteString("<b>❁ " + html.EscapeString(tr.GetSurahName(lang, line.Ayah.Surah)) + " ❁</b>\n")
		}
		if line.Bismillah {
			b.WriteString(resolver.Bismillah + "\n")
		}
		b.WriteString(renderAyah(v, line))
		blocks = append(blocks, b.String())
	}
	return chunk(blocks, maxMessageRunes)
}

func renderAyah(v application.PageView, line resolver.Line) string {
	var b strings.Builder
	b.WriteString("<b>" + strconv.Itoa(line.Index+1) + ".</b> ")
	for wi, word := range line.Ayah.Words {
		if wi > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(wordMarkers(v, line.Index, wi))
		b.WriteString(html.EscapeString(word))
	}
	b.WriteString(" ﴿" + strconv.Itoa(line.Ayah.Number) + "﴾")
	return b.String()
}

func wordMarkers(v application.PageView, ai, wi int) string {
	var style compositor.Style
	if ai < len(v.Styles) && wi < len(v.Styles[ai]) {
		style = v.Styles[ai][wi]
	}

	var b strings.Builder
	switch style.Background {
	case compositor.BackgroundCompleted:
		b.WriteString(completedMarker)
	case compositor.BackgroundSolid, compositor.BackgroundSegmented:
		cats, _ := v.Projection.Categories(ai, wi)
		for _, c := range cats {
			b.WriteString(Marker(c))
		}
	}
	if style.Indicator != "" {
		b.WriteString(style.Indicator)
	}
	return b.String()
}

// chunk joins blocks with blank lines, starting a new chunk before one would overflow
func chunk(blocks []string, limit int) []string {
	var (
		out []string
		cur strings.Builder
	)
	for _, block := range blocks {
		if cur.Len() > 0 && utf8.RuneCountInString(cur.String())+utf8.RuneCountInString(block)+2 > limit {
			out = append(out, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(block)
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}

// RenderSummary lists open and completed counts per category
func RenderSummary(counts []highlight.CategoryCount, tr domain.I18nPort, lang domain.Language, title string) string {
	if len(counts) == 0 {
		return title + "\n" + tr.Get(lang, "summary.empty")
	}
	var b strings.Builder
	b.WriteString(title)
	for _, c := range counts {
		b.WriteString("\n" + Marker(c.Category) + " ")
		b.WriteString(tr.Get(lang, "summary.line", tr.Get(lang, "category."+string(c.Category)), c.Open, c.Completed))
	}
	return b.String()
}

// Toggle is a parsed "A W" or "A" message
type Toggle struct {
	AyahIndex int
	WordIndex int
	WholeAyah bool
}

// ParseToggle reads 1-based positions on the page and returns 0-based indexes
func ParseToggle(text string) (Toggle, bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 || len(fields) > 2 {
		return Toggle{}, false
	}
	ayah, err := strconv.Atoi(fields[0])
	if err != nil || ayah < 1 {
		return Toggle{}, false
	}
	if len(fields) == 1 {
		return Toggle{AyahIndex: ayah - 1, WholeAyah: true}, true
	}
	word, err := strconv.Atoi(fields[1])
	if err != nil || word < 1 {
		return Toggle{}, false
	}
	return Toggle{AyahIndex: ayah - 1, WordIndex: word - 1}, true
}

// parseIntArgs splits command arguments into integers
func parseIntArgs(args string) ([]int, error) {
	fields := strings.Fields(args)
	out := make([]int, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a number", domain.ErrInvalidRef, f)
		}
		out = append(out, n)
	}
	return out, nil
}

// errorKey maps a failure to the message shown to the user
func errorKey(err error) string {
	switch {
	case errors.Is(err, domain.ErrWholeAyahUnsupported):
		return "error.whole_ayah"
	case errors.Is(err, domain.ErrPersistence):
		return "error.persistence"
	case errors.Is(err, domain.ErrDataUnavailable):
		return "error.data_unavailable"
	case errors.Is(err, domain.ErrInvalidRef),
		errors.Is(err, domain.ErrInvalidCategory),
		errors.Is(err, domain.ErrPageNotFound):
		return "error.invalid_input"
	default:
		return "error.generic"
	}
}
