// Package translate decides when source material needs translating and
// cleans translation artifacts out of model output.
package translate

import (
	"regexp"
	"strings"

	"github.com/abadojack/whatlanggo"
)

// Unknown is returned when the language cannot be detected.
const Unknown = "unknown"

// Detect returns the ISO 639-1 code of the text's language, or Unknown.
func Detect(text string) string {
	if strings.TrimSpace(text) == "" {
		return Unknown
	}
	info := whatlanggo.Detect(text)
	code := info.Lang.Iso6391()
	if code == "" {
		return Unknown
	}
	return code
}

// Needed reports whether text should be translated to target before rewriting.
// Undetectable text is translated too, matching a plain "lang != target" check.
func Needed(text, target string, enabled bool) bool {
	if !enabled {
		return false
	}
	return Detect(text) != strings.ToLower(target)
}

var languageNames = map[string]string{
	"es": "español neutro",
	"en": "English",
	"fr": "français",
	"it": "italiano",
	"pt": "português",
	"de": "Deutsch",
}

// LanguageName returns the display name for an ISO 639-1 code, or the code
// itself when it is not known.
func LanguageName(code string) string {
	code = strings.ToLower(code)
	if name, ok := languageNames[code]; ok {
		return name
	}
	return code
}

// Instruction is the prompt fragment asking the model to translate first.
func Instruction(target string) string {
	target = strings.ToLower(target)
	if target == "es" {
		return "Traduce toda la información al español neutro antes de escribir el artículo. "
	}
	return "Translate all information into " + LanguageName(target) + " before writing the article. "
}

var (
	bracketedNote = regexp.MustCompile(`(?i)[\(\[]\s*(note|nota|translator'?s? note|nota del traductor)\s*:[^\)\]]*[\)\]]`)
	noteLine      = regexp.MustCompile(`(?im)^\s*(note|nota|disclaimer|aviso)\s*:.*$`)
	machineLine   = regexp.MustCompile(`(?im)^.*\b(machine translation|traducción automática)\b.*$`)
	multiSpace    = regexp.MustCompile(`[ \t]{2,}`)
	multiNewline  = regexp.MustCompile(`\n{3,}`)
)

// SanitizeAIText strips "Note: this is a machine translation" style
// disclaimers that models add around translated text.
func SanitizeAIText(s string) string {
	s = bracketedNote.ReplaceAllString(s, "")
	s = noteLine.ReplaceAllString(s, "")
	s = machineLine.ReplaceAllString(s, "")

	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(multiSpace.ReplaceAllString(l, " "))
	}
	s = strings.Join(lines, "\n")
	s = multiNewline.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
