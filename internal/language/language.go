package language

import (
	"errors"
	"fmt"
	"strings"
)

type entry struct {
	code2   string
	code3   string
	display string
	native  string
}

var languages = []entry{
	{"ja", "jpn", "Japanese", "日本語"},
	{"en", "eng", "English", "English"},
	{"zh", "zho", "Chinese", "中文"},
	{"ko", "kor", "Korean", "한국어"},
	{"es", "spa", "Spanish", "Español"},
	{"fr", "fra", "French", "Français"},
	{"de", "deu", "German", "Deutsch"},
	{"it", "ita", "Italian", "Italiano"},
	{"pt", "por", "Portuguese", "Português"},
	{"ru", "rus", "Russian", "Русский"},
	{"nl", "nld", "Dutch", "Nederlands"},
	{"vi", "vie", "Vietnamese", "Tiếng Việt"},
	{"th", "tha", "Thai", "ไทย"},
	{"id", "ind", "Indonesian", "Bahasa Indonesia"},
}

// Legacy ISO 639-2/B codes still found in container tags.
var aliases = map[string]string{
	"chi": "zh",
	"fre": "fr",
	"ger": "de",
	"dut": "nl",
}

var index map[string]*entry

func init() {
	index = make(map[string]*entry, len(languages)*4+len(aliases))
	for i := range languages {
		e := &languages[i]
		index[e.code2] = e
		index[e.code3] = e
		index[strings.ToLower(e.display)] = e
		index[strings.ToLower(e.native)] = e
	}
	for alias, code2 := range aliases {
		index[alias] = index[code2]
	}
}

func lookup(value string) *entry {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return nil
	}
	return index[value]
}

// Normalize maps a language code or name ("ja", "jpn", "Japanese", "日本語")
// to the ISO 639-1 code passed to the speech recognition backends.
func Normalize(value string) (string, error) {
	if strings.TrimSpace(value) == "" {
		return "", errors.New("language is empty")
	}
	if e := lookup(value); e != nil {
		return e.code2, nil
	}
	return "", fmt.Errorf("unsupported language %q", strings.TrimSpace(value))
}

// DisplayName renders a code as "Japanese (ja)". Unknown codes are returned
// upper-cased.
func DisplayName(code string) string {
	if strings.TrimSpace(code) == "" {
		return "Unknown"
	}
	if e := lookup(code); e != nil {
		return fmt.Sprintf("%s (%s)", e.display, e.code2)
	}
	return strings.ToUpper(strings.TrimSpace(code))
}

// Matches reports whether a stream language tag names the same language as
// code. Empty and "und" tags match anything.
func Matches(tag, code string) bool {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if tag == "" || tag == "und" {
		return true
	}
	a, b := lookup(tag), lookup(code)
	if a == nil || b == nil {
		return true
	}
	return a == b
}
