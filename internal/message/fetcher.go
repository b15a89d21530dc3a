package message

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"tgharvester/internal/wire"
)

const (
	maxBatchSize       = 200
	interBatchSleep    = 100 * time.Millisecond
	workerStartStagger = 200 * time.Millisecond
)

// Fetcher retrieves a contiguous message-id window as a sequence of
// Message snapshots using up to K sessions in parallel, per spec §4.2.
type Fetcher struct {
	BatchSize int // per-call batch size, 1..200, defaults to 200
}

// NewFetcher returns a Fetcher using the given per-batch fetch size,
// clamped to the platform's 200-id cap per spec §4.2.
func NewFetcher(batchSize int) *Fetcher {
	if batchSize <= 0 || batchSize > maxBatchSize {
		batchSize = maxBatchSize
	}
	return &Fetcher{BatchSize: batchSize}
}

// workerInput describes one worker's slice of the overall id range.
type workerInput struct {
	session wire.SessionClient
	start   int
	end     int
	index   int
}

// Fetch splits [start, end] across the given session clients and returns
// the merged, id-ascending, duplicate-free result. Clients earlier in the
// slice absorb the remainder of the integer division, per spec §4.2.
func (f *Fetcher) Fetch(ctx context.Context, channel string, start, end int, clients []wire.SessionClient) ([]Message, error) {
	if len(clients) == 0 {
		return nil, errNoClients
	}
	if end < start {
		return nil, nil
	}

	inputs := splitRange(start, end, clients)

	var (
		mu      sync.Mutex
		results []Message
		wg      sync.WaitGroup
	)

	for i, in := range inputs {
		if in.start > in.end {
			continue
		}
		wg.Add(1)
		go func(idx int, wi workerInput) {
			defer wg.Done()
			select {
			case <-time.After(time.Duration(idx) * workerStartStagger):
			case <-ctx.Done():
				return
			}
			got := f.runWorker(ctx, channel, wi)
			mu.Lock()
			results = append(results, got...)
			mu.Unlock()
		}(i, in)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })
	return results, nil
}

// runWorker drives one session's batched reads across its sub-range.
func (f *Fetcher) runWorker(ctx context.Context, channel string, wi workerInput) []Message {
	var out []Message
	invalidCount := 0

	ids := make([]int, 0, f.BatchSize)
	flush := func() {
		if len(ids) == 0 {
			return
		}
		raws, ok := f.fetchBatchWithRetry(ctx, channel, wi, ids)
		if ok {
			for _, raw := range raws {
				m := FromRaw(channel, raw)
				if m.Valid() {
					out = append(out, m)
				} else {
					invalidCount++
				}
			}
		}
		ids = ids[:0]
	}

	for id := wi.start; id <= wi.end; id++ {
		select {
		case <-ctx.Done():
			flush()
			return out
		default:
		}
		ids = append(ids, id)
		if len(ids) == f.BatchSize {
			flush()
			select {
			case <-time.After(interBatchSleep):
			case <-ctx.Done():
				return out
			}
		}
	}
	flush()

	if invalidCount > 0 {
		log.Printf("[Fetcher worker:%d] %d empty message(s) skipped in range [%d,%d]", wi.index, invalidCount, wi.start, wi.end)
	}
	return out
}

// fetchBatchWithRetry issues one batch call, retrying exactly once on a
// rate-limit signal per spec §4.2, and skipping the batch on any other
// error or on a second rate-limit hit.
func (f *Fetcher) fetchBatchWithRetry(ctx context.Context, channel string, wi workerInput, ids []int) ([]wire.RawMessage, bool) {
	msgs, err := wi.session.GetMessages(ctx, channel, ids)
	if err == nil {
		return msgs, true
	}

	if fw, ok := wire.AsFloodWait(err); ok {
		select {
		case <-time.After(fw.Wait):
		case <-ctx.Done():
			return nil, false
		}
		msgs, err = wi.session.GetMessages(ctx, channel, ids)
		if err == nil {
			return msgs, true
		}
		log.Printf("[Fetcher worker:%d] batch %v failed again after flood-wait retry: %v", wi.index, batchRangeLabel(ids), err)
		return nil, false
	}

	log.Printf("[Fetcher worker:%d] batch %v error, skipping: %v", wi.index, batchRangeLabel(ids), err)
	return nil, false
}

func batchRangeLabel(ids []int) [2]int {
	if len(ids) == 0 {
		return [2]int{0, 0}
	}
	return [2]int{ids[0], ids[len(ids)-1]}
}

// splitRange divides [start, end] into len(clients) near-equal sub-ranges,
// with earlier ranges absorbing the remainder of the integer division.
func splitRange(start, end int, clients []wire.SessionClient) []workerInput {
	total := end - start + 1
	k := len(clients)
	base := total / k
	rem := total % k

	out := make([]workerInput, k)
	cur := start
	for i := 0; i < k; i++ {
		size := base
		if i < rem {
			size++
		}
		wStart := cur
		wEnd := cur + size - 1
		if size == 0 {
			wEnd = wStart - 1 // empty range, skipped by caller
		}
		out[i] = workerInput{session: clients[i], start: wStart, end: wEnd, index: i}
		cur = wEnd + 1
	}
	return out
}

var errNoClients = fetchError("fetcher: no session clients provided")

type fetchError string

func (e fetchError) Error() string { return string(e) }
