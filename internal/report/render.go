package report

import (
	"embed"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

// DefaultLanguage mirrors the teacher's internal/locales default, reused
// here as the bundle's base language.
const DefaultLanguage = "en"

//go:embed locales/*.json
var localeFS embed.FS

var bundle *i18n.Bundle

func initBundle() {
	if bundle != nil {
		return
	}
	bundle = i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	entries, err := localeFS.ReadDir("locales")
	if err != nil {
		log.Fatalf("report: read embedded locales directory: %v", err)
	}
	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		if _, err := bundle.LoadMessageFileFS(localeFS, "locales/"+entry.Name()); err != nil {
			log.Printf("WARN: report: failed to load message file %q: %v", entry.Name(), err)
			continue
		}
		loaded++
	}
	if loaded == 0 {
		log.Fatalf("report: no message files loaded from locales/")
	}
}

// Render produces spec §4.10's localized final-report string for lang
// ("en" or "ru"), falling back to English on any missing message.
func Render(s *Summary, lang string, now time.Time) string {
	initBundle()
	loc := i18n.NewLocalizer(bundle, lang, DefaultLanguage)

	data := map[string]interface{}{
		"RunID":      s.RunID,
		"Elapsed":    s.Elapsed(now).Round(time.Second).String(),
		"Throughput": fmt.Sprintf("%.2f", s.ThroughputMbps(now)),
		"Succeeded":  s.Succeeded,
		"Failed":     s.Failed,
		"Targeted":   s.TargetedTotal,
	}

	var b strings.Builder
	b.WriteString(localize(loc, "ReportTitle", data))
	b.WriteString("\n")
	b.WriteString(localize(loc, "ReportTotals", data))
	b.WriteString("\n")
	b.WriteString(localize(loc, "ReportElapsed", data))
	b.WriteString("\n")
	b.WriteString(localize(loc, "ReportThroughput", data))
	b.WriteString("\n")

	names := make([]string, 0, len(s.Sessions))
	for name := range s.Sessions {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		sess := s.Sessions[name]
		b.WriteString(localize(loc, "ReportSessionLine", map[string]interface{}{
			"Name":          sess.Name,
			"MessagesSeen":  sess.MessagesSeen,
			"BytesConsumed": sess.BytesConsumed,
		}))
		b.WriteString("\n")
	}
	return b.String()
}

// RenderProgressTick renders spec §4.10's periodic 10s progress line.
func RenderProgressTick(s *Summary, lang string) string {
	initBundle()
	loc := i18n.NewLocalizer(bundle, lang, DefaultLanguage)
	return localize(loc, "ReportProgressTick", map[string]interface{}{
		"Succeeded": s.Succeeded,
		"Failed":    s.Failed,
		"Targeted":  s.TargetedTotal,
	})
}

func localize(loc *i18n.Localizer, id string, data map[string]interface{}) string {
	msg, err := loc.Localize(&i18n.LocalizeConfig{MessageID: id, TemplateData: data})
	if err != nil {
		log.Printf("ERROR: report: failed to localize %q: %v", id, err)
		return id
	}
	return msg
}
