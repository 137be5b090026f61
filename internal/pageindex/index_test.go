package pageindex

import (
	"errors"
	"testing"

	"github.com/escalopa/mushaf-overlay/internal/domain"
)

func mustDefault(t *testing.T) *Index {
	t.Helper()
	ix, err := Default()
	if err != nil {
		t.Fatalf("load default index: %v", err)
	}
	return ix
}

func TestEveryPageHasDescriptor(t *testing.T) {
	ix := mustDefault(t)
	if ix.Len() != PageCount {
		t.Fatalf("expected %d pages, got %d", PageCount, ix.Len())
	}
	for page := 1; page <= PageCount; page++ {
		d, ok := ix.Descriptor(page)
		if !ok {
			t.Fatalf("page %d: no descriptor", page)
		}
		if len(d.Surahs) == 0 {
			t.Fatalf("page %d: empty surah list", page)
		}
		if d.Surahs[0] != d.SurahStart || d.Surahs[len(d.Surahs)-1] != d.SurahEnd {
			t.Fatalf("page %d: surahs %v do not match %d..%d", page, d.Surahs, d.SurahStart, d.SurahEnd)
		}
		for i := 1; i < len(d.Surahs); i++ {
			if d.Surahs[i] <= d.Surahs[i-1] {
				t.Fatalf("page %d: surahs %v not strictly increasing", page, d.Surahs)
			}
		}
		if (d.SurahStart == d.SurahEnd) != (len(d.Surahs) == 1) {
			t.Fatalf("page %d: single-surah flag mismatch", page)
		}
	}
	if _, ok := ix.Descriptor(0); ok {
		t.Fatalf("page 0 should be absent")
	}
	if _, ok := ix.Descriptor(PageCount + 1); ok {
		t.Fatalf("page %d should be absent", PageCount+1)
	}
}

func TestPagesCoverTextContiguously(t *testing.T) {
	ix := mustDefault(t)
	prev, _ := ix.Descriptor(1)
	if prev.SurahStart != 1 || prev.AyahStart != 1 {
		t.Fatalf("page 1 should start at 1:1, got %d:%d", prev.SurahStart, prev.AyahStart)
	}
	for page := 2; page <= PageCount; page++ {
		d, _ := ix.Descriptor(page)
		end, _ := domain.SurahByNumber(prev.SurahEnd)
		var wantSurah, wantAyah int
		if prev.AyahEnd == end.Ayahs {
			wantSurah, wantAyah = prev.SurahEnd+1, 1
		} else {
			wantSurah, wantAyah = prev.SurahEnd, prev.AyahEnd+1
		}
		if d.SurahStart != wantSurah || d.AyahStart != wantAyah {
			t.Fatalf("page %d starts at %d:%d, want %d:%d", page, d.SurahStart, d.AyahStart, wantSurah, wantAyah)
		}
		prev = d
	}
	if prev.SurahEnd != 114 || prev.AyahEnd != 6 {
		t.Fatalf("last page should end at 114:6, got %d:%d", prev.SurahEnd, prev.AyahEnd)
	}
}

func TestPageForFirstAyahOfEveryPage(t *testing.T) {
	ix := mustDefault(t)
	for page := 1; page <= PageCount; page++ {
		d, _ := ix.Descriptor(page)
		got, err := ix.PageForSurahAyah(d.SurahStart, d.AyahStart)
		if err != nil {
			t.Fatalf("page %d: lookup %d:%d: %v", page, d.SurahStart, d.AyahStart, err)
		}
		if got != page {
			t.Fatalf("lookup %d:%d returned page %d, want %d", d.SurahStart, d.AyahStart, got, page)
		}
	}
}

func TestPageForEveryAyah(t *testing.T) {
	ix := mustDefault(t)
	for _, s := range domain.GetAllSurahs() {
		for a := 1; a <= s.Ayahs; a++ {
			page, err := ix.PageForSurahAyah(s.Number, a)
			if err != nil {
				t.Fatalf("%d:%d: %v", s.Number, a, err)
			}
			d, _ := ix.Descriptor(page)
			if !onPage(d, s.Number, a) {
				t.Fatalf("%d:%d resolved to page %d (%d:%d-%d:%d)", s.Number, a, page, d.SurahStart, d.AyahStart, d.SurahEnd, d.AyahEnd)
			}
		}
	}
}

func onPage(d domain.PageDescriptor, surah, ayah int) bool {
	switch {
	case surah < d.SurahStart || surah > d.SurahEnd:
		return false
	case surah == d.SurahStart && ayah < d.AyahStart:
		return false
	case surah == d.SurahEnd && ayah > d.AyahEnd:
		return false
	}
	return true
}

func TestKnownPages(t *testing.T) {
	ix := mustDefault(t)
	cases := []struct {
		surah, ayah, page int
	}{
		{1, 1, 1},
		{1, 7, 1},
		{2, 1, 2},
		{2, 255, 42},
		{18, 1, 293},
		{36, 1, 440},
		{67, 1, 562},
		{112, 1, 604},
		{113, 3, 604},
		{114, 6, 604},
	}
	for _, tc := range cases {
		got, err := ix.PageForSurahAyah(tc.surah, tc.ayah)
		if err != nil {
			t.Fatalf("%d:%d: %v", tc.surah, tc.ayah, err)
		}
		if got != tc.page {
			t.Fatalf("%d:%d: got page %d, want %d", tc.surah, tc.ayah, got, tc.page)
		}
	}
}

func TestPageForUnknownSurahFallsBack(t *testing.T) {
	ix := mustDefault(t)
	page, err := ix.PageForSurahAyah(200, 1)
	if !errors.Is(err, domain.ErrPageNotFound) {
		t.Fatalf("expected ErrPageNotFound, got %v", err)
	}
	if page != FallbackPage {
		t.Fatalf("expected fallback page %d, got %d", FallbackPage, page)
	}
}

func TestPage604HoldsLastThreeSurahs(t *testing.T) {
	ix := mustDefault(t)
	d, _ := ix.Descriptor(604)
	want := []int{112, 113, 114}
	if len(d.Surahs) != len(want) {
		t.Fatalf("page 604 surahs %v, want %v", d.Surahs, want)
	}
	for i := range want {
		if d.Surahs[i] != want[i] {
			t.Fatalf("page 604 surahs %v, want %v", d.Surahs, want)
		}
	}
	if d.Juz != 30 {
		t.Fatalf("page 604 juz %d, want 30", d.Juz)
	}
}

func TestPagesForSurah(t *testing.T) {
	ix := mustDefault(t)
	pages := ix.PagesForSurah(1)
	if len(pages) != 1 || pages[0] != 1 {
		t.Fatalf("surah 1 pages %v, want [1]", pages)
	}
	pages = ix.PagesForSurah(2)
	if len(pages) != 48 || pages[0] != 2 || pages[len(pages)-1] != 49 {
		t.Fatalf("surah 2 pages %v", pages)
	}
	if p, ok := ix.FirstPageOfJuz(30); !ok || p != 582 {
		t.Fatalf("juz 30 starts at %d (%v), want 582", p, ok)
	}
}

func TestParseRejectsBrokenTables(t *testing.T) {
	cases := map[string]string{
		"gap":        "pages:\n  - {page: 2, surah_start: 1, ayah_start: 1, surah_end: 1, ayah_end: 7, surahs: [1]}\n",
		"unordered":  "pages:\n  - {page: 1, surah_start: 2, ayah_start: 1, surah_end: 3, ayah_end: 1, surahs: [3, 2]}\n",
		"empty list": "pages:\n  - {page: 1, surah_start: 1, ayah_start: 1, surah_end: 1, ayah_end: 7, surahs: []}\n",
		"bad ayah":   "pages:\n  - {page: 1, surah_start: 1, ayah_start: 1, surah_end: 1, ayah_end: 9, surahs: [1]}\n",
		"no pages":   "pages: []\n",
	}
	for name, data := range cases {
		if _, err := Parse([]byte(data)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}
