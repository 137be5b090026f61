package resolver

import "github.com/escalopa/mushaf-overlay/internal/domain"

// Bismillah is the opening formula shown above the first ayah of a surah
const Bismillah = "بِسْمِ ٱللَّهِ ٱلرَّحْمَٰنِ ٱلرَّحِيمِ"

// Line is one ayah of a page plus what has to be drawn above it
type Line struct {
	Index       int
	Ayah        domain.Ayah
	SurahHeader bool
	Bismillah   bool
}

// Layout marks where surah headers and the Bismillah go on a resolved page.
// A surah starts on the page when its ayah 1 follows an ayah of another surah
// (or opens the page). Al-Fatihah carries the basmala as its first ayah and
// At-Tawbah has none, so neither gets a separate Bismillah line.
func Layout(ayahs []domain.Ayah) []Line {
	lines := make([]Line, len(ayahs))
	prevSurah := 0
	for i, a := range ayahs {
		starts := a.Number == 1 && a.Surah != prevSurah
		lines[i] = Line{
			Index:       i,
			Ayah:        a,
			SurahHeader: starts,
			Bismillah:   starts && needsBismillah(a.Surah),
		}
		prevSurah = a.Surah
	}
	return lines
}

func needsBismillah(surah int) bool {
	return surah != 1 && surah != 9
}
