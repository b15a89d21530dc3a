package publish

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"tgharvester/internal/download"
	"tgharvester/internal/message"
	"tgharvester/internal/platform"
	"tgharvester/internal/wire"
)

// FanoutOptions configures Stage 3 per spec §4.7: concurrency ceiling
// (default 3), per-target retry attempts R (default 3) spaced W seconds
// apart (default 5s).
type FanoutOptions struct {
	Concurrency int
	Retries     int
	RetryWait   time.Duration

	CleanupOnSuccess bool
	CleanupOnFailure bool
}

func DefaultFanoutOptions() FanoutOptions {
	return FanoutOptions{Concurrency: 3, Retries: 3, RetryWait: 5 * time.Second, CleanupOnSuccess: true, CleanupOnFailure: false}
}

// Publisher drives all four stages of spec §4.7 for one session's
// downloaded items against a scratch chat and a set of target channels.
type Publisher struct {
	Client      platform.Client
	ScratchChat string
	Targets     []string
	Premium     bool
	Options     FanoutOptions
}

func NewPublisher(client platform.Client, scratchChat string, targets []string, premium bool) *Publisher {
	return &Publisher{Client: client, ScratchChat: scratchChat, Targets: targets, Premium: premium, Options: DefaultFanoutOptions()}
}

// StageUpload implements Stage 1: scratch-upload one DownloadedItem,
// dispatching by kind and capturing the returned file-handle.
func (p *Publisher) StageUpload(ctx context.Context, item download.Item) StagedItem {
	sender, ok := scratchSenders[item.Kind]
	if !ok {
		return StagedItem{OriginalMessageID: item.MessageID, GroupID: item.GroupID, Failed: true}
	}

	data, err := dataOf(item)
	if err != nil {
		log.Printf("[Publisher] read item %d for scratch upload: %v", item.MessageID, err)
		return StagedItem{OriginalMessageID: item.MessageID, GroupID: item.GroupID, Failed: true}
	}

	caption := ApplyCaptionPolicy(item.Caption, item.Kind, p.Premium)
	meta := wire.SendMeta{Caption: caption, Width: item.Width, Height: item.Height, Duration: item.Duration}

	sent, err := sender(ctx, p.Client, p.ScratchChat, data, meta)
	if err != nil {
		log.Printf("[Publisher] scratch upload failed for %d: %v", item.MessageID, err)
		return StagedItem{OriginalMessageID: item.MessageID, GroupID: item.GroupID, Failed: true}
	}

	return StagedItem{
		OriginalMessageID: item.MessageID,
		GroupID:           item.GroupID,
		ScratchMessageID:  sent.MessageID,
		FileHandle:        sent.FileHandle.Raw,
		Kind:              item.Kind.String(),
		Caption:           caption,
		Width:             item.Width,
		Height:            item.Height,
		Duration:          item.Duration,
	}
}

// PublishBatch runs Stages 3 and 4 for one assembled batch: fanout to
// every target with bounded concurrency and per-target retry, then
// cleanup based on the aggregate outcome.
func (p *Publisher) PublishBatch(ctx context.Context, batch Batch) error {
	items := make([]wire.InputMedia, 0, len(batch.Items))
	for _, it := range batch.Items {
		items = append(items, wire.InputMedia{
			Kind:     mediaGroupKind(message.ParseKind(it.Kind)),
			Handle:   wire.FileHandle{Raw: it.FileHandle},
			Caption:  it.Caption,
			Width:    it.Width,
			Height:   it.Height,
			Duration: it.Duration,
		})
	}

	results := p.fanout(ctx, items)

	allOK := true
	for _, err := range results {
		if err != nil {
			allOK = false
		}
	}

	if allOK && p.Options.CleanupOnSuccess {
		p.cleanup(ctx, batch)
	} else if !allOK && p.Options.CleanupOnFailure {
		p.cleanup(ctx, batch)
	}

	if !allOK {
		return fmt.Errorf("publish: batch %s failed on at least one target", batch.GroupID)
	}
	return nil
}

// fanout sends items to every target concurrently, bounded by
// Options.Concurrency, retrying each target up to Options.Retries times.
func (p *Publisher) fanout(ctx context.Context, items []wire.InputMedia) map[string]error {
	sem := semaphore.NewWeighted(int64(p.Options.Concurrency))
	results := make(map[string]error, len(p.Targets))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, target := range p.Targets {
		if err := sem.Acquire(ctx, 1); err != nil {
			mu.Lock()
			results[target] = err
			mu.Unlock()
			continue
		}
		wg.Add(1)
		go func(target string) {
			defer wg.Done()
			defer sem.Release(1)
			err := p.sendWithRetry(ctx, target, items)
			mu.Lock()
			results[target] = err
			mu.Unlock()
		}(target)
	}
	wg.Wait()
	return results
}

func (p *Publisher) sendWithRetry(ctx context.Context, target string, items []wire.InputMedia) error {
	var lastErr error
	for attempt := 0; attempt < p.Options.Retries; attempt++ {
		_, err := p.Client.SendMediaGroup(ctx, target, items)
		if err == nil {
			return nil
		}
		lastErr = err

		if fw, ok := wire.AsFloodWait(err); ok {
			if !sleepCtx(ctx, fw.Wait) {
				return ctx.Err()
			}
			attempt-- // rate-limit waits never consume a retry attempt, per spec §4.7/§4.9
			continue
		}

		if attempt < p.Options.Retries-1 {
			if !sleepCtx(ctx, p.Options.RetryWait) {
				return ctx.Err()
			}
		}
	}
	return fmt.Errorf("publish: target %s: max retries (%d) exceeded: %w", target, p.Options.Retries, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// cleanup batch-deletes the scratch messages, falling back to per-item
// delete on batch-delete error, per spec §4.7 Stage 4.
func (p *Publisher) cleanup(ctx context.Context, batch Batch) {
	ids := make([]int, 0, len(batch.Items))
	for _, it := range batch.Items {
		ids = append(ids, it.ScratchMessageID)
	}
	if err := p.Client.DeleteMessages(ctx, p.ScratchChat, ids); err != nil {
		log.Printf("[Publisher] batch-delete failed, falling back to per-item: %v", err)
		for _, id := range ids {
			if err := p.Client.DeleteMessages(ctx, p.ScratchChat, []int{id}); err != nil {
				log.Printf("[Publisher] per-item delete failed for scratch message %d: %v", id, err)
			}
		}
	}
}
