package report

import (
	"context"
	"log"
	"time"
)

const progressInterval = 10 * time.Second

// RunProgressTicker logs a localized progress line every 10s, per spec
// §4.10; the batch-complete line is emitted separately by
// LogBatchComplete. It blocks until ctx is cancelled; callers run it in
// its own goroutine.
func RunProgressTicker(ctx context.Context, s *Summary, lang string) {
	t := time.NewTicker(progressInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			log.Println(RenderProgressTick(s, lang))
		}
	}
}

// LogBatchComplete emits the unconditional batch-boundary progress line.
func LogBatchComplete(s *Summary, lang string) {
	log.Println(RenderProgressTick(s, lang))
}
