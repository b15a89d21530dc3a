package grouper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tgharvester/internal/message"
)

func msg(id int, groupID string, kind message.Kind) message.Message {
	var media *message.Media
	if kind != message.KindNone {
		media = &message.Media{Kind: kind}
	}
	return message.Message{ID: id, GroupID: groupID, Media: media}
}

func TestGroup_EveryMemberMatchesGroupID(t *testing.T) {
	msgs := []message.Message{
		msg(1, "g1", message.KindPhoto),
		msg(2, "g1", message.KindPhoto),
		msg(3, "", message.KindNone),
	}
	col := Group(msgs)
	require.Len(t, col.Groups, 2)

	for _, g := range col.Groups {
		for _, m := range g.Members {
			if g.Synthetic() {
				assert.Equal(t, "", m.GroupID)
			} else {
				assert.Equal(t, g.ID, m.GroupID)
			}
		}
	}
}

func TestGroup_SingletonsAndRealGroupsCounted(t *testing.T) {
	msgs := []message.Message{
		msg(1, "g1", message.KindPhoto),
		msg(2, "g1", message.KindPhoto),
		msg(3, "", message.KindPhoto),
		msg(4, "", message.KindVideo),
	}
	col := Group(msgs)
	assert.Equal(t, 1, col.RealGroupCount)
	assert.Equal(t, 2, col.SingletonCount)
}

func TestGroup_SizeEstimationFallsBackToKindDefault(t *testing.T) {
	msgs := []message.Message{msg(1, "", message.KindVideo)}
	col := Group(msgs)
	require.Len(t, col.Groups, 1)
	assert.Equal(t, int64(37*1024*1024), col.Groups[0].EstimatedSize)
}

func TestGroup_MembersSortedByID(t *testing.T) {
	msgs := []message.Message{
		msg(3, "g1", message.KindPhoto),
		msg(1, "g1", message.KindPhoto),
		msg(2, "g1", message.KindPhoto),
	}
	col := Group(msgs)
	require.Len(t, col.Groups, 1)
	ids := []int{col.Groups[0].Members[0].ID, col.Groups[0].Members[1].ID, col.Groups[0].Members[2].ID}
	assert.Equal(t, []int{1, 2, 3}, ids)
}

func TestGroup_Empty(t *testing.T) {
	col := Group(nil)
	assert.Empty(t, col.Groups)
	assert.Equal(t, 0, col.RealGroupCount)
	assert.Equal(t, 0, col.SingletonCount)
}
