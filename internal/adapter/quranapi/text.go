package quranapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/escalopa/mushaf-overlay/internal/domain"
)

const basmalaWords = 4

// TextClient fetches surah text from an alquran.cloud compatible API
type TextClient struct {
	client *Client
}

func NewTextClient(baseURL string, opts ...Option) *TextClient {
	return &TextClient{client: NewClient(baseURL, "", opts...)}
}

type surahResponse struct {
	Code   int    `json:"code"`
	Status string `json:"status"`
	Data   struct {
		Number      int    `json:"number"`
		Name        string `json:"name"`
		EnglishName string `json:"englishName"`
		Ayahs       []struct {
			NumberInSurah int    `json:"numberInSurah"`
			Text          string `json:"text"`
		} `json:"ayahs"`
	} `json:"data"`
}

// FetchSurah returns the ayahs of a surah in the given script. A basmala
// prefixed to the first ayah is removed, except in Al-Fatihah where it is
// the first ayah itself.
func (c *TextClient) FetchSurah(ctx context.Context, script domain.ScriptID, surah int) (*domain.RawSurah, error) {
	var result surahResponse
	path := fmt.Sprintf("/surah/%d/%s", surah, script)
	if err := c.client.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, fmt.Errorf("%w: fetch surah %d: %w", domain.ErrDataUnavailable, surah, err)
	}
	if result.Code != 0 && result.Code != http.StatusOK {
		return nil, fmt.Errorf("%w: fetch surah %d: status %d %s", domain.ErrDataUnavailable, surah, result.Code, result.Status)
	}

	raw := &domain.RawSurah{
		Number: result.Data.Number,
		Name:   result.Data.EnglishName,
		Ayahs:  make([]domain.RawAyah, len(result.Data.Ayahs)),
	}
	if raw.Name == "" {
		raw.Name = result.Data.Name
	}
	for i, a := range result.Data.Ayahs {
		if a.NumberInSurah != i+1 {
			return nil, fmt.Errorf("%w: surah %d: ayah %d at position %d", domain.ErrDataUnavailable, surah, a.NumberInSurah, i+1)
		}
		raw.Ayahs[i] = domain.RawAyah{NumberInSurah: a.NumberInSurah, Text: strings.TrimPrefix(a.Text, "\ufeff")}
	}

	if surah != 1 && surah != 9 && len(raw.Ayahs) > 0 {
		raw.Ayahs[0].Text = StripBasmala(raw.Ayahs[0].Text)
	}
	return raw, nil
}

var basmalaSkeleton = strings.Fields(skeleton("بسم الله الرحمن الرحيم"))

// StripBasmala removes a leading basmala from an ayah, whatever diacritics
// the script puts on it. Text that is only the basmala is kept.
func StripBasmala(text string) string {
	words := strings.Fields(text)
	if len(words) <= basmalaWords {
		return text
	}
	for i, w := range basmalaSkeleton {
		if skeleton(words[i]) != w {
			return text
		}
	}
	return strings.Join(words[basmalaWords:], " ")
}

// skeleton reduces Arabic text to its bare letters
func skeleton(s string) string {
	t := transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		runes.Remove(runes.In(unicode.Cf)),
		runes.Remove(runes.Predicate(func(r rune) bool { return r == 'ـ' })),
		runes.Map(func(r rune) rune {
			if r == 'ٱ' {
				return 'ا'
			}
			return r
		}),
		norm.NFC,
	)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
