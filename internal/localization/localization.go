// Package localization provides the translation tables used for presence and
// date labels. Tables are JSON files named after the language code
// (e.g. "en.json"); the defaults are embedded in the binary.
package localization

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"
)

//go:embed locales/*.json
var embedded embed.FS

// DefaultLang is used when a key is missing in the requested language.
const DefaultLang = "en"

// Localizer manages the translations for one selected language.
type Localizer struct {
	translations map[string]map[string]string
	lang         string
	mu           sync.RWMutex
}

// Default returns a Localizer over the embedded tables.
func Default(lang string) *Localizer {
	l, err := NewLocalizer(embedded, "locales")
	if err != nil {
		// embedded tables are part of the build; failing here is a programming error
		panic(fmt.Sprintf("localization: embedded tables: %v", err))
	}
	l.SetLang(lang)
	return l
}

// NewLocalizer loads every *.json file from dir inside fsys.
func NewLocalizer(fsys fs.FS, dir string) (*Localizer, error) {
	l := &Localizer{
		translations: make(map[string]map[string]string),
		lang:         DefaultLang,
	}

	files, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read localization directory: %w", err)
	}

	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".json") {
			continue
		}

		lang := strings.TrimSuffix(file.Name(), ".json")
		data, err := fs.ReadFile(fsys, path.Join(dir, file.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read localization file %s: %w", file.Name(), err)
		}

		var translations map[string]string
		if err := json.Unmarshal(data, &translations); err != nil {
			return nil, fmt.Errorf("failed to parse localization file %s: %w", file.Name(), err)
		}

		l.translations[lang] = translations
	}

	return l, nil
}

// SetLang selects the active language. Unknown languages fall back per key.
func (l *Localizer) SetLang(lang string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if lang == "" {
		lang = DefaultLang
	}
	l.lang = lang
}

// Lang returns the active language.
func (l *Localizer) Lang() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lang
}

// GetString returns the string for key in lang, falling back to English and
// finally to the key itself.
func (l *Localizer) GetString(lang, key string) string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if langTranslations, ok := l.translations[lang]; ok {
		if value, ok := langTranslations[key]; ok {
			return value
		}
	}

	if lang != DefaultLang {
		if enTranslations, ok := l.translations[DefaultLang]; ok {
			if value, ok := enTranslations[key]; ok {
				return value
			}
		}
	}

	return key
}

// T looks key up in the active language and applies fmt-style args.
func (l *Localizer) T(key string, args ...any) string {
	s := l.GetString(l.Lang(), key)
	if len(args) == 0 {
		return s
	}
	return fmt.Sprintf(s, args...)
}

// LongDate renders t as a full weekday/month/day/year string.
func (l *Localizer) LongDate(t time.Time) string {
	weekday := l.T("weekday." + strconv.Itoa(int(t.Weekday())))
	month := l.T("month." + strconv.Itoa(int(t.Month())))
	return l.T("date.long", weekday, month, t.Day(), t.Year())
}
