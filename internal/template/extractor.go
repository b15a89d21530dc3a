package template

import (
	"regexp"
	"strings"
)

// predefinedClasses mirrors original_source/core/template/variable_extractor.py's
// predefined_patterns table: the fixed set of classes spec §4.8's variable
// extraction helper suggests to a template author.
var predefinedClasses = map[string]*regexp.Regexp{
	"hashtag": regexp.MustCompile(`#(\w+)`),
	"mention": regexp.MustCompile(`@(\w+)`),
	"url":     regexp.MustCompile(`https?://\S+`),
	"email":   regexp.MustCompile(`(?i)\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
	"phone":   regexp.MustCompile(`\b\d{3}-\d{3}-\d{4}\b`),
	"number":  regexp.MustCompile(`\b\d+\b`),
	"price":   regexp.MustCompile(`\$\d+(?:\.\d{2})?`),
}

// Suggestion is one extractable class found in a sample text, offered to
// a template author before they wire an extractor_pattern variable.
type Suggestion struct {
	Class   string
	Pattern string
	Matches []string
}

// Suggest scans text for every predefined class with at least one match,
// per spec §4.8: "used only to suggest variables to an author". It never
// participates in Render directly.
func Suggest(text string) []Suggestion {
	var out []Suggestion
	for class, re := range predefinedClasses {
		matches := re.FindAllString(text, -1)
		if len(matches) == 0 {
			continue
		}
		out = append(out, Suggestion{Class: class, Pattern: re.String(), Matches: matches})
	}
	return out
}

// ExtractWithPattern runs a caller-supplied extractor_pattern against
// text. Render does not call it, and Config has no field that attaches a
// pattern to a template variable.
func ExtractWithPattern(text, pattern string) ([]string, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	matches := re.FindAllStringSubmatch(text, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if len(m) > 1 {
			out = append(out, m[1])
		} else {
			out = append(out, m[0])
		}
	}
	return out, nil
}

// sourceText joins the fields the extractor scans, mirroring the
// original's _get_text_content.
func sourceText(ctx Context) string {
	var parts []string
	if ctx.OriginalText != "" {
		parts = append(parts, ctx.OriginalText)
	}
	if ctx.OriginalCaption != "" {
		parts = append(parts, ctx.OriginalCaption)
	}
	return strings.Join(parts, "\n")
}

// SuggestFromContext is a convenience wrapper over Suggest for the item's
// own text/caption fields.
func SuggestFromContext(ctx Context) []Suggestion {
	return Suggest(sourceText(ctx))
}
