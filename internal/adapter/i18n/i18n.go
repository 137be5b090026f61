package i18n

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/escalopa/mushaf-overlay/internal/domain"
)

type I18n struct {
	translations map[domain.Language]map[string]string
	surahs       map[domain.Language][]string
}

type translationFile struct {
	Messages map[string]string `yaml:"messages"`
	Surahs   []string          `yaml:"surahs"`
}

// Languages lists the supported languages in menu order
var Languages = []domain.Language{domain.LangEnglish, domain.LangArabic, domain.LangRussian}

func NewI18n(localesDir string) (*I18n, error) {
	i18n := &I18n{
		translations: make(map[domain.Language]map[string]string),
		surahs:       make(map[domain.Language][]string),
	}

	for _, lang := range Languages {
		filename := filepath.Join(localesDir, string(lang)+".yaml")
		if err := i18n.loadTranslations(lang, filename); err != nil {
			return nil, fmt.Errorf("load %s translations: %w", lang, err)
		}
	}

	return i18n, nil
}

func (i *I18n) loadTranslations(lang domain.Language, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	var tf translationFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return fmt.Errorf("unmarshal yaml: %w", err)
	}
	if len(tf.Surahs) != 0 && len(tf.Surahs) != domain.SurahCount {
		return fmt.Errorf("expected %d surah names, got %d", domain.SurahCount, len(tf.Surahs))
	}

	i.translations[lang] = tf.Messages
	i.surahs[lang] = tf.Surahs

	return nil
}

// Get retrieves a translated message, falling back to English and then to the key
func (i *I18n) Get(lang domain.Language, key string, args ...interface{}) string {
	msg, ok := i.translations[lang][key]
	if !ok {
		msg, ok = i.translations[domain.LangEnglish][key]
	}
	if !ok {
		return key
	}

	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	return msg
}

// GetSurahName retrieves the localized name of a surah. Locales without a
// surah list use the transliterated names of the catalogue.
func (i *I18n) GetSurahName(lang domain.Language, surahNumber int) string {
	if names := i.surahs[lang]; surahNumber >= 1 && surahNumber <= len(names) {
		return names[surahNumber-1]
	}
	if s, ok := domain.SurahByNumber(surahNumber); ok {
		return s.Name
	}
	return fmt.Sprintf("Surah %d", surahNumber)
}

// CategoryName returns the localized label of a highlight category
func (i *I18n) CategoryName(lang domain.Language, c domain.Category) string {
	return i.Get(lang, "category."+string(c))
}

// FormatSurahButton formats a surah button text with number and name
func FormatSurahButton(lang domain.Language, i18n *I18n, surahNumber int) string {
	name := i18n.GetSurahName(lang, surahNumber)
	return fmt.Sprintf("%d. %s", surahNumber, strings.TrimSpace(name))
}
