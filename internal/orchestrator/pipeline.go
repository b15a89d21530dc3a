package orchestrator

import (
	"context"
	"log"
	"sync"
	"time"

	"tgharvester/internal/config"
	"tgharvester/internal/download"
	"tgharvester/internal/grouper"
	"tgharvester/internal/message"
	"tgharvester/internal/partition"
	"tgharvester/internal/platform"
	"tgharvester/internal/publish"
	"tgharvester/internal/report"
	"tgharvester/internal/retry"
	"tgharvester/internal/session"
	"tgharvester/internal/template"
	"tgharvester/internal/upload"
)

// runPartitionAssignments runs every session's assignment concurrently,
// each session driving its own Downloader + Upload Coordinator + Staged
// Publisher chain. The only mutable state shared across sessions is the
// report.Summary, which does not lock itself; every write to it goes
// through recordOutcome below, which takes the package-level summaryMu.
func runPartitionAssignments(ctx context.Context, cfg *config.Config, wl config.Workload, result partition.Result, byName map[string]*session.Session, summary *report.Summary, sink retry.Sink) {
	var wg sync.WaitGroup
	for _, a := range result.Assignments {
		if len(a.Groups) == 0 {
			continue
		}
		s, ok := byName[a.SessionName]
		if !ok {
			continue
		}
		wg.Add(1)
		go func(a partition.Assignment, s *session.Session) {
			defer wg.Done()
			runSessionAssignment(ctx, cfg, wl, a, s, summary, sink)
		}(a, s)
	}
	wg.Wait()
}

var summaryMu sync.Mutex

func recordOutcome(summary *report.Summary, sessionName, kind string, succeeded bool, bytes int64) {
	summaryMu.Lock()
	defer summaryMu.Unlock()
	summary.Record(sessionName, kind, succeeded, bytes)
}

func groupMediaTotals(groups []grouper.MediaGroup) map[string]int {
	totals := make(map[string]int, len(groups))
	for _, g := range groups {
		n := 0
		for _, m := range g.Members {
			if m.HasMedia() {
				n++
			}
		}
		totals[g.ID] = n
	}
	return totals
}

func templateMode(name string) template.Mode {
	if name == "custom" {
		return template.ModeCustom
	}
	return template.ModeOriginal
}

func renderCaption(wl config.Workload, msg message.Message, item download.Item, sessionName string, now time.Time) string {
	cfg := template.Config{Mode: templateMode(wl.TemplateMode), Body: wl.TemplateBody}
	ctx := template.Context{
		OriginalText:    msg.Text,
		OriginalCaption: msg.Caption,
		FileName:        item.Path,
		FileSize:        item.VerifiedSize,
		MessageID:       msg.ID,
		ClientName:      sessionName,
	}
	return template.Render(cfg, ctx, nil, now)
}

// sessionState bundles the per-session pipeline stages and the shared
// bookkeeping the async publishFn closure needs, so runSessionAssignment
// itself stays a plain top-to-bottom read.
type sessionState struct {
	mu       sync.Mutex
	tracker  *publish.GroupTracker
	assembler *publish.Assembler
	publisher *publish.Publisher
	sizes    map[int]int64

	sessionName string
	summary     *report.Summary
}

func (st *sessionState) publishReady(ctx context.Context, groupID string, staged publish.StagedItem) {
	st.mu.Lock()
	items, ready := st.tracker.Add(groupID, staged)
	var batches []publish.Batch
	if ready {
		batches = st.assembler.AddGroup(groupID, items)
	}
	st.mu.Unlock()

	if ready && st.assembler.PreserveStructure && len(batches) == 0 {
		// structure-preserving abort: at least one member of the group
		// failed, so the whole group is dropped rather than published
		// truncated, per spec §4.7 Stage 1.
		for _, it := range items {
			st.recordItem(it, false)
		}
		return
	}
	for _, b := range batches {
		err := st.publisher.PublishBatch(ctx, b)
		for _, it := range b.Items {
			st.recordItem(it, err == nil)
		}
		if err != nil {
			log.Printf("[Orchestrator %s] publish batch %s failed: %v", st.sessionName, b.GroupID, err)
		}
	}
}

func (st *sessionState) recordItem(it publish.StagedItem, succeeded bool) {
	st.mu.Lock()
	bytes := st.sizes[it.OriginalMessageID]
	delete(st.sizes, it.OriginalMessageID)
	st.mu.Unlock()

	kind := it.Kind
	if kind == "" {
		kind = "unknown"
	}
	recordOutcome(st.summary, st.sessionName, kind, succeeded, bytes)
}

func (st *sessionState) rememberSize(messageID int, bytes int64) {
	st.mu.Lock()
	st.sizes[messageID] = bytes
	st.mu.Unlock()
}

func accountPremium(ctx context.Context, client platform.Client) bool {
	info, err := platform.NewAccountInfoCache(client).Get(ctx)
	if err != nil {
		return false
	}
	return info.Premium
}

// runSessionAssignment drives one session's share of the partition: every
// assigned group is downloaded member-by-member and handed to the Upload
// Coordinator, which (via publishFn) stages, tracks, assembles, and
// fans out through the Staged Publisher -- spec §4.5 through §4.7 chained
// end to end for this session alone.
func runSessionAssignment(ctx context.Context, cfg *config.Config, wl config.Workload, a partition.Assignment, s *session.Session, summary *report.Summary, sink retry.Sink) {
	premium := accountPremium(ctx, s.Client)
	creds := cfg.Credentials(s.Name)

	publisher := publish.NewPublisher(s.Client, creds.ScratchChat, wl.TargetChannels, premium)
	publisher.Options.CleanupOnSuccess = wl.CleanupOnSuccess
	publisher.Options.CleanupOnFailure = wl.CleanupOnFailure

	st := &sessionState{
		tracker:     publish.NewGroupTracker(groupMediaTotals(a.Groups)),
		assembler:   publish.NewAssembler(wl.PreserveStructure),
		publisher:   publisher,
		sizes:       map[int]int64{},
		sessionName: s.Name,
		summary:     summary,
	}

	coord := upload.NewCoordinator(upload.DefaultOptions(), func(ctx context.Context, job upload.Job) error {
		staged := publisher.StageUpload(ctx, job.Item)
		st.publishReady(ctx, job.Message.GroupID, staged)
		return nil
	})
	coord.Start(ctx)

	downloader := download.NewDownloader(s.Client, "")
	downloader.SessionDCID = s.Client.DatacenterID()
	if wl.DownloadThresholdMB > 0 {
		downloader.Threshold = int64(wl.DownloadThresholdMB * float64(1<<20))
	}

	backoffCfg := retry.BackoffConfig{MaxRetries: wl.RetryMaxAttempts, Base: wl.RetryBase, Factor: wl.RetryFactor, MaxDelay: wl.RetryMaxDelay}

	for _, g := range a.Groups {
		for _, m := range g.Members {
			if !m.HasMedia() {
				continue
			}
			job := m
			job.GroupID = g.ID // normalize the synthetic-singleton id onto this job's copy

			var item download.Item
			downloadErr := retry.Do(ctx, backoffCfg, sink, func(ctx context.Context, attempt int) error {
				var derr error
				item, derr = downloader.Download(ctx, s.Name, job)
				return derr
			})
			if downloadErr != nil {
				log.Printf("[Orchestrator %s] download failed for message %d: %v", s.Name, job.ID, downloadErr)
				st.publishReady(ctx, g.ID, publish.StagedItem{OriginalMessageID: job.ID, GroupID: g.ID, Failed: true})
				continue
			}

			item.Caption = renderCaption(wl, job, item, s.Name, time.Now())
			st.rememberSize(job.ID, item.VerifiedSize)
			coord.Enqueue(upload.Job{Message: job, Item: item, SessionName: s.Name})
		}
	}

	coord.Shutdown(ctx)

	// end of run: judge staleness against a clock far ahead so every
	// pending legacy batch is flushed instead of left unpublished.
	for _, b := range st.assembler.Flush(time.Now().Add(24 * time.Hour)) {
		err := publisher.PublishBatch(ctx, b)
		for _, it := range b.Items {
			st.recordItem(it, err == nil)
		}
		if err != nil {
			log.Printf("[Orchestrator %s] stale-flush publish batch %s failed: %v", s.Name, b.GroupID, err)
		}
	}
}
