// Package partition implements the media-group-aware greedy assignment
// algorithm from spec §4.4: groups are taken largest first and each goes
// to the session with the smallest running total. The per-key
// accumulation follows the shape the teacher uses for its sync.Map-keyed per-group state
// in internal/mediagroups.Manager, generalized here to a deterministic
// bin-packing pass across sessions instead of a live timer-driven map.
package partition

import (
	"fmt"
	"sort"

	"tgharvester/internal/grouper"
)

// Assignment is one session's work parcel: an ordered list of MediaGroups
// plus running totals, per spec §3.
type Assignment struct {
	SessionName   string
	Groups        []grouper.MediaGroup
	MessageCount  int
	EstimatedSize int64
}

// Result is the full partitioning output plus the advisory imbalance
// ratio from spec §4.4.
type Result struct {
	Assignments    []Assignment
	ImbalanceRatio float64 // min/max running total; 1.0 if only one non-empty session
}

// Options configures the partitioner; SortDescending defaults to true per
// spec §4.4 step 1.
type Options struct {
	SortDescending bool
}

func DefaultOptions() Options { return Options{SortDescending: true} }

// Partition assigns every group in col to exactly one of sessionNames,
// balancing estimated byte load while preserving media-group atomicity.
func Partition(col grouper.Collection, sessionNames []string, opts Options) (Result, error) {
	if len(sessionNames) == 0 {
		return Result{}, fmt.Errorf("partition: no sessions available")
	}

	groups := make([]grouper.MediaGroup, len(col.Groups))
	copy(groups, col.Groups)
	if opts.SortDescending {
		sort.SliceStable(groups, func(i, j int) bool {
			return groups[i].EstimatedSize > groups[j].EstimatedSize
		})
	}

	assignments := make([]Assignment, len(sessionNames))
	for i, name := range sessionNames {
		assignments[i] = Assignment{SessionName: name}
	}

	for _, g := range groups {
		idx := smallestRunningTotal(assignments)
		assignments[idx].Groups = append(assignments[idx].Groups, g)
		assignments[idx].MessageCount += len(g.Members)
		assignments[idx].EstimatedSize += g.EstimatedSize
	}

	if err := validate(col, assignments); err != nil {
		return Result{}, err
	}

	return Result{
		Assignments:    assignments,
		ImbalanceRatio: imbalanceRatio(assignments),
	}, nil
}

// smallestRunningTotal returns the index of the assignment with the
// currently smallest running total, tie-broken by session index.
func smallestRunningTotal(assignments []Assignment) int {
	best := 0
	for i := 1; i < len(assignments); i++ {
		if assignments[i].EstimatedSize < assignments[best].EstimatedSize {
			best = i
		}
	}
	return best
}

func imbalanceRatio(assignments []Assignment) float64 {
	var nonEmpty []int64
	for _, a := range assignments {
		if a.MessageCount > 0 {
			nonEmpty = append(nonEmpty, a.EstimatedSize)
		}
	}
	if len(nonEmpty) == 0 {
		return 1.0
	}
	min, max := nonEmpty[0], nonEmpty[0]
	for _, v := range nonEmpty {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	if max == 0 {
		return 1.0
	}
	return float64(min) / float64(max)
}

// validate enforces spec §4.4 step 3's fatal invariants: a failure here is
// a bug, not a user condition.
func validate(col grouper.Collection, assignments []Assignment) error {
	totalMsgs := 0
	seenGroups := make(map[string]int)
	for ai, a := range assignments {
		totalMsgs += a.MessageCount
		for _, g := range a.Groups {
			seenGroups[g.ID]++
			if seenGroups[g.ID] > 1 {
				return fmt.Errorf("partition: group %q assigned to more than one session (session %d)", g.ID, ai)
			}
		}
	}

	wantMsgs := 0
	for _, g := range col.Groups {
		wantMsgs += len(g.Members)
	}
	if totalMsgs != wantMsgs {
		return fmt.Errorf("partition: assigned message count %d != input total %d", totalMsgs, wantMsgs)
	}

	for _, g := range col.Groups {
		if seenGroups[g.ID] != 1 {
			return fmt.Errorf("partition: group %q appears in %d assignments, want exactly 1", g.ID, seenGroups[g.ID])
		}
	}

	return nil
}
