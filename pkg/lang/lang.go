// Package lang holds the fixed set of languages the service can translate
// into and explain in.
package lang

import (
	"strings"

	"golang.org/x/text/language"
)

// Default is the language used when a code is missing or unknown.
const Default = "en"

// Language is a supported code and its display name.
type Language struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

var supported = []Language{
	{Code: "en", Name: "English"},
	{Code: "hi", Name: "Hindi"},
	{Code: "ta", Name: "Tamil"},
	{Code: "te", Name: "Telugu"},
	{Code: "bn", Name: "Bengali"},
	{Code: "mr", Name: "Marathi"},
	{Code: "gu", Name: "Gujarati"},
	{Code: "kn", Name: "Kannada"},
	{Code: "ml", Name: "Malayalam"},
	{Code: "pa", Name: "Punjabi"},
	{Code: "ur", Name: "Urdu"},
	{Code: "or", Name: "Odia"},
	{Code: "as", Name: "Assamese"},
	{Code: "es", Name: "Spanish"},
	{Code: "fr", Name: "French"},
	{Code: "de", Name: "German"},
	{Code: "it", Name: "Italian"},
	{Code: "pt", Name: "Portuguese"},
	{Code: "ru", Name: "Russian"},
	{Code: "ja", Name: "Japanese"},
	{Code: "ko", Name: "Korean"},
	{Code: "zh", Name: "Chinese"},
	{Code: "ar", Name: "Arabic"},
}

var byCode = func() map[string]Language {
	m := make(map[string]Language, len(supported))
	for _, l := range supported {
		m[l.Code] = l
	}
	return m
}()

// All returns the supported languages in display order.
func All() []Language {
	out := make([]Language, len(supported))
	copy(out, supported)
	return out
}

// Canonical reduces a user supplied tag such as "EN", "pt-BR" or "zh_Hans"
// to its base language code. It returns "" for empty or malformed input.
func Canonical(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return ""
	}
	tag, err := language.Parse(strings.ReplaceAll(code, "_", "-"))
	if err != nil {
		return ""
	}
	base, _ := tag.Base()
	return base.String()
}

// IsSupported reports whether code maps onto one of the supported languages.
func IsSupported(code string) bool {
	_, ok := byCode[Canonical(code)]
	return ok
}

// Normalize returns the canonical supported code, or Default when code is
// empty or unsupported.
func Normalize(code string) string {
	c := Canonical(code)
	if _, ok := byCode[c]; ok {
		return c
	}
	return Default
}

// Name returns the display name for code. Unknown codes resolve to English.
func Name(code string) string {
	if l, ok := byCode[Canonical(code)]; ok {
		return l.Name
	}
	return byCode[Default].Name
}
