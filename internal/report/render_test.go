package report

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRender_EnglishContainsTotalsAndSessions(t *testing.T) {
	start := time.Unix(0, 0)
	s := NewSummary("run-42", 10, start)
	s.Record("s1", "photo", true, 1024)
	out := Render(s, "en", start.Add(10*time.Second))
	assert.Contains(t, out, "run-42")
	assert.Contains(t, out, "session s1")
}

func TestRender_RussianFallsBackGracefullyWhenMissingNothing(t *testing.T) {
	start := time.Unix(0, 0)
	s := NewSummary("run-42", 10, start)
	s.Record("s1", "photo", true, 1024)
	out := Render(s, "ru", start.Add(10*time.Second))
	assert.Contains(t, out, "run-42")
	assert.True(t, strings.Contains(out, "сессия") || strings.Contains(out, "session"))
}

func TestRenderProgressTick(t *testing.T) {
	s := NewSummary("run1", 10, time.Unix(0, 0))
	s.Record("s1", "photo", true, 1)
	out := RenderProgressTick(s, "en")
	assert.Contains(t, out, "1/10")
}

func TestNoopReporter_ReportIsNoop(t *testing.T) {
	r := NoopReporter{}
	err := r.Report(nil, NewSummary("run1", 1, time.Unix(0, 0)))
	assert.NoError(t, err)
}
