package message

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tgharvester/internal/wire"
)

// fakeSession is an in-memory wire.SessionClient over a fixed message table,
// used to test Fetcher without a real platform connection.
type fakeSession struct {
	name    string
	dc      int
	table   map[int]wire.RawMessage
	mu      sync.Mutex
	calls   int
	failIDs map[int]int // id -> remaining failures before success
}

func (f *fakeSession) Name() string      { return f.name }
func (f *fakeSession) DatacenterID() int { return f.dc }

func (f *fakeSession) GetMessages(ctx context.Context, channel string, ids []int) ([]wire.RawMessage, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	out := make([]wire.RawMessage, 0, len(ids))
	for _, id := range ids {
		if n, ok := f.failIDs[id]; ok && n > 0 {
			f.failIDs[id] = n - 1
			return nil, wire.FloodWait{Wait: 0}
		}
		if raw, ok := f.table[id]; ok {
			out = append(out, raw)
		} else {
			out = append(out, wire.RawMessage{ID: id, Empty: true})
		}
	}
	return out, nil
}

func buildTable(ids ...int) map[int]wire.RawMessage {
	t := make(map[int]wire.RawMessage, len(ids))
	for _, id := range ids {
		t[id] = wire.RawMessage{ID: id, Text: "hello"}
	}
	return t
}

func TestFetcher_SingleIDSingleSession(t *testing.T) {
	sess := &fakeSession{name: "s1", table: buildTable(42)}
	f := NewFetcher(200)

	msgs, err := f.Fetch(context.Background(), "chan", 42, 42, []wire.SessionClient{sess})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, 42, msgs[0].ID)
}

func TestFetcher_AllEmptyReturnsNoEntries(t *testing.T) {
	sess := &fakeSession{name: "s1", table: map[int]wire.RawMessage{}}
	f := NewFetcher(200)

	msgs, err := f.Fetch(context.Background(), "chan", 1, 5, []wire.SessionClient{sess})
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestFetcher_SortedNoDuplicatesNoOutOfRange(t *testing.T) {
	s1 := &fakeSession{name: "s1", table: buildTable(1, 2, 3, 4, 5)}
	s2 := &fakeSession{name: "s2", table: buildTable(6, 7, 8, 9, 10)}

	f := NewFetcher(200)
	msgs, err := f.Fetch(context.Background(), "chan", 1, 10, []wire.SessionClient{s1, s2})
	require.NoError(t, err)
	require.Len(t, msgs, 10)

	seen := map[int]bool{}
	for i, m := range msgs {
		assert.GreaterOrEqual(t, m.ID, 1)
		assert.LessOrEqual(t, m.ID, 10)
		assert.False(t, seen[m.ID], "duplicate id %d", m.ID)
		seen[m.ID] = true
		if i > 0 {
			assert.Less(t, msgs[i-1].ID, m.ID)
		}
	}
}

func TestFetcher_RemainderAbsorbedByEarlierWorkers(t *testing.T) {
	// 10 ids across 3 sessions -> sizes 4,3,3
	in := splitRange(1, 10, []wire.SessionClient{
		&fakeSession{name: "a"}, &fakeSession{name: "b"}, &fakeSession{name: "c"},
	})
	require.Len(t, in, 3)
	assert.Equal(t, 4, in[0].end-in[0].start+1)
	assert.Equal(t, 3, in[1].end-in[1].start+1)
	assert.Equal(t, 3, in[2].end-in[2].start+1)
}

func TestFetcher_RateLimitRetriedOnceThenSkipped(t *testing.T) {
	sess := &fakeSession{
		name:    "s1",
		table:   buildTable(1),
		failIDs: map[int]int{1: 1}, // fails once, then succeeds
	}
	f := NewFetcher(200)
	msgs, err := f.Fetch(context.Background(), "chan", 1, 1, []wire.SessionClient{sess})
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	sess2 := &fakeSession{
		name:    "s2",
		table:   buildTable(1),
		failIDs: map[int]int{1: 2}, // fails twice: initial + one retry
	}
	msgs2, err := f.Fetch(context.Background(), "chan", 1, 1, []wire.SessionClient{sess2})
	require.NoError(t, err)
	assert.Empty(t, msgs2)
}
