// Package orchestrator wires the Session Pool, Fetcher, Grouper,
// Partitioner, Downloader, Upload Coordinator, and Staged Publisher into
// one end-to-end run, and derives spec §6.4's exit-code ladder from the
// resulting report.Summary. Grounded on the teacher's main.go: construct
// dependencies, run to completion or signal, shut down cleanly.
package orchestrator

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"tgharvester/internal/config"
	"tgharvester/internal/grouper"
	"tgharvester/internal/message"
	"tgharvester/internal/partition"
	"tgharvester/internal/report"
	"tgharvester/internal/retry"
	"tgharvester/internal/session"
	"tgharvester/internal/template"
	"tgharvester/internal/wire"
)

// Exit codes from spec.md §6.4.
const (
	ExitSuccess     = 0
	ExitPartial     = 1
	ExitDegraded    = 2
	ExitInterrupted = 130
)

const (
	successRatioFloor = 0.95
	partialRatioFloor = 0.80
)

// Run drives one complete harvest. It always returns a non-nil Summary,
// even on early failure, so callers can log/report partial progress; the
// returned exit code follows spec §6.4 regardless of whether err is set.
func Run(ctx context.Context, cfg *config.Config, reporter report.StatsReporter, sink retry.Sink, lang string) (*report.Summary, int, error) {
	wl := cfg.Workload()
	started := time.Now()
	runID := uuid.NewString()

	if reporter == nil {
		reporter = report.NoopReporter{}
	}
	if sink == nil {
		sink = retry.NopSink{}
	}

	if err := template.Validate(template.Config{Mode: templateMode(wl.TemplateMode), Body: wl.TemplateBody}); err != nil {
		return report.NewSummary(runID, 0, started), ExitPartial, err
	}

	factory := buildFactory(cfg)
	sessions, err := session.Initialize(cfg.SessionNames, func(name string) (session.Credentials, bool) {
		return toSessionCredentials(cfg.Credentials(name)), true
	}, factory)
	if err != nil {
		return report.NewSummary(runID, 0, started), ExitPartial, err
	}

	pool := session.NewPool()
	if err := pool.StartAll(ctx, sessions); err != nil {
		return report.NewSummary(runID, 0, started), ExitPartial, err
	}
	defer pool.StopAll(context.Background())

	live := pool.Sessions()
	clients := make([]wire.SessionClient, len(live))
	sessionNames := make([]string, len(live))
	byName := make(map[string]*session.Session, len(live))
	for i, s := range live {
		clients[i] = s.AsWireClient()
		sessionNames[i] = s.Name
		byName[s.Name] = s
	}

	fetcher := message.NewFetcher(wl.FetchBatchSize)
	msgs, err := fetcher.Fetch(ctx, wl.SourceChannel, wl.IDRangeStart, wl.IDRangeEnd, clients)
	if err != nil {
		return report.NewSummary(runID, 0, started), ExitPartial, err
	}

	col := grouper.Group(msgs)
	summary := report.NewSummary(runID, countMediaMembers(col), started)

	partResult, err := partition.Partition(col, sessionNames, partition.DefaultOptions())
	if err != nil {
		return summary, ExitPartial, err
	}
	if partResult.ImbalanceRatio < wl.ImbalanceRatioCap {
		log.Printf("[Orchestrator] imbalance ratio %.2f below advisory cap %.2f", partResult.ImbalanceRatio, wl.ImbalanceRatioCap)
	}

	tickCtx, stopTick := context.WithCancel(ctx)
	go report.RunProgressTicker(tickCtx, summary, lang)

	runPartitionAssignments(ctx, cfg, wl, partResult, byName, summary, sink)
	stopTick()

	report.LogBatchComplete(summary, lang)
	summary.Finished = time.Now()

	if repErr := reporter.Report(ctx, summary); repErr != nil {
		log.Printf("[Orchestrator] stats reporter failed: %v", repErr)
	}
	log.Println(report.Render(summary, lang, summary.Finished))

	if ctx.Err() != nil {
		return summary, ExitInterrupted, ctx.Err()
	}
	return summary, exitCodeFor(summary), nil
}

func exitCodeFor(s *report.Summary) int {
	ratio := s.SuccessRatio()
	switch {
	case ratio >= successRatioFloor:
		return ExitSuccess
	case ratio >= partialRatioFloor:
		return ExitPartial
	default:
		return ExitDegraded
	}
}

func countMediaMembers(col grouper.Collection) int {
	n := 0
	for _, g := range col.Groups {
		for _, m := range g.Members {
			if m.HasMedia() {
				n++
			}
		}
	}
	return n
}
