package publish

import (
	"time"

	"tgharvester/internal/message"
)

const (
	legacyBatchCap   = 10
	staleFlushTimeout = 300 * time.Second
)

// Batch is spec §3's PublishBatch: a set of StagedItems sharing a
// compatible media-kind family, up to the platform's per-group cap.
type Batch struct {
	GroupID string // original media-group id in structure-preserving mode; synthetic in legacy mode
	Items   []StagedItem
	created time.Time
}

// Assembler implements spec §4.7 Stage 2. In structure-preserving mode
// one batch is exactly one original media group, never split or merged.
// In legacy mode items pack into family-based batches of at most
// legacyBatchCap, flushed when full or stale.
type Assembler struct {
	PreserveStructure bool

	legacyPending map[string]*Batch // keyed by kind family
}

func NewAssembler(preserveStructure bool) *Assembler {
	return &Assembler{PreserveStructure: preserveStructure, legacyPending: map[string]*Batch{}}
}

// AddGroup assembles one full media group's staged items into batches.
// In structure-preserving mode it returns exactly one ready batch, or none
// if any item in the group failed Stage 1 — spec §4.7 Stage 1 aborts a
// group rather than publish a truncated one. In legacy mode it
// returns zero or more ready batches as family buckets fill or go stale.
func (a *Assembler) AddGroup(groupID string, items []StagedItem) []Batch {
	var ok []StagedItem
	anyFailed := false
	for _, it := range items {
		if it.Failed {
			anyFailed = true
			continue
		}
		ok = append(ok, it)
	}

	if a.PreserveStructure {
		if anyFailed || len(ok) == 0 {
			return nil
		}
		return []Batch{{GroupID: groupID, Items: ok}}
	}

	var ready []Batch
	for _, it := range ok {
		family := kindFamily(message.ParseKind(it.Kind))
		b, exists := a.legacyPending[family]
		if !exists {
			b = &Batch{GroupID: family, created: time.Now()}
			a.legacyPending[family] = b
		}
		b.Items = append(b.Items, it)
		if len(b.Items) >= legacyBatchCap {
			ready = append(ready, *b)
			delete(a.legacyPending, family)
		}
	}
	return ready
}

// Flush returns any legacy batches that have exceeded the stale-flush
// timeout, per spec §4.7 Stage 2 ("ready when full or after 300 s since
// creation").
func (a *Assembler) Flush(now time.Time) []Batch {
	var ready []Batch
	for family, b := range a.legacyPending {
		if now.Sub(b.created) >= staleFlushTimeout {
			ready = append(ready, *b)
			delete(a.legacyPending, family)
		}
	}
	return ready
}
