// Package template implements the deterministic caption/text rewrite from
// spec §4.8. Grounded on original_source/core/template/template_engine.py:
// the same two-mode split (original vs custom), the same escape-sequence
// table, and the same variable resolution order, reworked into a pure
// function over an explicit Context rather than a stateful engine object.
package template

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Mode selects how Render produces its output, per spec §4.8.
type Mode int

const (
	ModeOriginal Mode = iota
	ModeCustom
)

// Config is one author-defined template.
type Config struct {
	Mode   Mode
	Body   string            // opaque body with {name} placeholders, custom mode only
	Static map[string]string // template-author static values, resolution tier 3
}

// Context carries the per-item values available to a render, tier 1 of
// spec §4.8's resolution order.
type Context struct {
	OriginalText    string
	OriginalCaption string
	FileName        string
	FileSize        int64
	MessageID       int
	ClientName      string
}

var variablePattern = regexp.MustCompile(`\{([^}]+)\}`)

var escapeSequences = []struct {
	seq string
	ch  string
}{
	{`\n`, "\n"},
	{`\t`, "\t"},
	{`\r`, "\r"},
	{`\\`, `\`},
}

// Render produces cfg's output for ctx, folding in extras as tier-4
// caller-supplied overrides. now is passed in rather than read from the
// clock so rendering stays deterministic for a given call.
func Render(cfg Config, ctx Context, extras map[string]string, now time.Time) string {
	switch cfg.Mode {
	case ModeOriginal:
		return renderOriginal(ctx)
	case ModeCustom:
		return renderCustom(cfg, ctx, extras, now)
	default:
		return renderOriginal(ctx)
	}
}

// renderOriginal concatenates text and caption separated by a newline,
// per spec §4.8's `original` mode.
func renderOriginal(ctx Context) string {
	var parts []string
	if ctx.OriginalText != "" {
		parts = append(parts, ctx.OriginalText)
	}
	if ctx.OriginalCaption != "" {
		parts = append(parts, ctx.OriginalCaption)
	}
	return strings.Join(parts, "\n")
}

func renderCustom(cfg Config, ctx Context, extras map[string]string, now time.Time) string {
	vars := buildVariables(cfg, ctx, extras, now)

	body := expandEscapes(cfg.Body)

	return variablePattern.ReplaceAllStringFunc(body, func(m string) string {
		name := strings.TrimSpace(m[1 : len(m)-1])
		if v, ok := vars[name]; ok {
			return v
		}
		return m // unknown names pass through literally, per spec §4.8
	})
}

// buildVariables applies spec §4.8's four-tier resolution order, later
// tiers overriding earlier ones.
func buildVariables(cfg Config, ctx Context, extras map[string]string, now time.Time) map[string]string {
	vars := map[string]string{
		"original_text":       ctx.OriginalText,
		"original_caption":    ctx.OriginalCaption,
		"file_name":           ctx.FileName,
		"file_size":           strconv.FormatInt(ctx.FileSize, 10),
		"file_size_formatted": formatSize(ctx.FileSize),
		"message_id":          strconv.Itoa(ctx.MessageID),
		"client_name":         ctx.ClientName,
	}

	vars["timestamp"] = strconv.FormatInt(now.Unix(), 10)
	vars["date"] = now.Format("2006-01-02")
	vars["time"] = now.Format("15:04:05")
	vars["datetime"] = now.Format("2006-01-02 15:04:05")

	for k, v := range cfg.Static {
		vars[k] = v
	}
	for k, v := range extras {
		vars[k] = v
	}
	return vars
}

func expandEscapes(body string) string {
	for _, e := range escapeSequences {
		body = strings.ReplaceAll(body, e.seq, e.ch)
	}
	return body
}

// formatSize renders a byte count the way a human reads it, e.g. "1.0 MB".
func formatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	units := []string{"KB", "MB", "GB", "TB"}
	return fmt.Sprintf("%.1f %s", float64(n)/float64(div), units[exp])
}

// Validate checks cfg fails fast at startup rather than silently rendering
// empty output, per spec §7's validate-at-startup requirement and §8's
// boundary case: an empty body in custom mode has no content to render.
func Validate(cfg Config) error {
	if cfg.Mode == ModeCustom && cfg.Body == "" {
		return fmt.Errorf("template: content required")
	}
	return nil
}

// ExtractVariableNames returns every placeholder name referenced in body.
// Validate does not call it.
func ExtractVariableNames(body string) map[string]struct{} {
	names := map[string]struct{}{}
	for _, m := range variablePattern.FindAllStringSubmatch(body, -1) {
		names[strings.TrimSpace(m[1])] = struct{}{}
	}
	return names
}
