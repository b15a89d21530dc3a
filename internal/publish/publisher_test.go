package publish

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tgharvester/internal/download"
	"tgharvester/internal/message"
	"tgharvester/internal/wire"
)

type fakeClient struct {
	sendErr        map[string]error // keyed by target, consumed in order via sendCalls
	sendCalls      map[string]int
	deleteErr      error
	deletedIDs     []int
	scratchFileID  string
}

func (f *fakeClient) Start(ctx context.Context) error { return nil }
func (f *fakeClient) Stop(ctx context.Context) error  { return nil }
func (f *fakeClient) GetMessages(ctx context.Context, channel string, ids []int) ([]wire.RawMessage, error) {
	return nil, nil
}
func (f *fakeClient) GetChat(ctx context.Context, channel string) (wire.ChatInfo, error) {
	return wire.ChatInfo{}, nil
}
func (f *fakeClient) GetMe(ctx context.Context) (wire.AccountInfo, error) { return wire.AccountInfo{}, nil }
func (f *fakeClient) StreamMedia(ctx context.Context, msg wire.RawMessage) (wire.ChunkIterator, error) {
	return nil, nil
}
func (f *fakeClient) GetFile(ctx context.Context, loc wire.FileHandle, offset, limit int64) ([]byte, error) {
	return nil, nil
}

func (f *fakeClient) SendPhoto(ctx context.Context, chat string, data []byte, meta wire.SendMeta) (wire.SentMessage, error) {
	return wire.SentMessage{MessageID: 100, FileHandle: wire.FileHandle{Raw: f.scratchFileID}}, nil
}
func (f *fakeClient) SendVideo(ctx context.Context, chat string, data []byte, meta wire.SendMeta) (wire.SentMessage, error) {
	return wire.SentMessage{MessageID: 101, FileHandle: wire.FileHandle{Raw: f.scratchFileID}}, nil
}
func (f *fakeClient) SendAudio(ctx context.Context, chat string, data []byte, meta wire.SendMeta) (wire.SentMessage, error) {
	return wire.SentMessage{}, nil
}
func (f *fakeClient) SendVoice(ctx context.Context, chat string, data []byte, meta wire.SendMeta) (wire.SentMessage, error) {
	return wire.SentMessage{}, nil
}
func (f *fakeClient) SendVideoNote(ctx context.Context, chat string, data []byte, meta wire.SendMeta) (wire.SentMessage, error) {
	return wire.SentMessage{}, nil
}
func (f *fakeClient) SendAnimation(ctx context.Context, chat string, data []byte, meta wire.SendMeta) (wire.SentMessage, error) {
	return wire.SentMessage{}, nil
}
func (f *fakeClient) SendDocument(ctx context.Context, chat string, data []byte, meta wire.SendMeta) (wire.SentMessage, error) {
	return wire.SentMessage{}, nil
}
func (f *fakeClient) SendSticker(ctx context.Context, chat string, data []byte, meta wire.SendMeta) (wire.SentMessage, error) {
	return wire.SentMessage{}, nil
}
func (f *fakeClient) SendMediaGroup(ctx context.Context, chat string, items []wire.InputMedia) ([]wire.SentMessage, error) {
	if f.sendCalls == nil {
		f.sendCalls = map[string]int{}
	}
	f.sendCalls[chat]++
	if err, ok := f.sendErr[chat]; ok {
		return nil, err
	}
	return make([]wire.SentMessage, len(items)), nil
}
func (f *fakeClient) DeleteMessages(ctx context.Context, chat string, ids []int) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deletedIDs = append(f.deletedIDs, ids...)
	return nil
}
func (f *fakeClient) CopyMessage(ctx context.Context, toChat, fromChat string, id int) (wire.SentMessage, error) {
	return wire.SentMessage{}, nil
}
func (f *fakeClient) DatacenterID() int { return 1 }
func (f *fakeClient) Name() string      { return "fake" }

func TestStageUpload_SuccessCapturesFileHandle(t *testing.T) {
	f := &fakeClient{scratchFileID: "scratch-id-1"}
	p := NewPublisher(f, "scratch", []string{"target"}, false)
	item := download.Item{MessageID: 1, GroupID: "g1", Kind: message.KindPhoto, Caption: "hello"}
	staged := p.StageUpload(context.Background(), item)
	assert.False(t, staged.Failed)
	assert.Equal(t, "scratch-id-1", staged.FileHandle)
	assert.Equal(t, 100, staged.ScratchMessageID)
}

func TestStageUpload_UnknownKindFails(t *testing.T) {
	f := &fakeClient{}
	p := NewPublisher(f, "scratch", []string{"target"}, false)
	item := download.Item{MessageID: 2, Kind: message.KindNone}
	staged := p.StageUpload(context.Background(), item)
	assert.True(t, staged.Failed)
}

func TestCaptionPolicy_TruncatesOverLength(t *testing.T) {
	long := make([]byte, 2000)
	for i := range long {
		long[i] = 'a'
	}
	got := ApplyCaptionPolicy(string(long), message.KindPhoto, false)
	assert.Len(t, []rune(got), standardCaptionCap)
	assert.True(t, len(got) >= 3 && got[len(got)-3:] == "...")
}

func TestCaptionPolicy_PremiumGetsLargerCap(t *testing.T) {
	long := make([]byte, 2000)
	for i := range long {
		long[i] = 'a'
	}
	got := ApplyCaptionPolicy(string(long), message.KindPhoto, true)
	assert.Equal(t, string(long), got)
}

func TestCaptionPolicy_DropsForVoiceVideoNoteSticker(t *testing.T) {
	assert.Equal(t, "", ApplyCaptionPolicy("caption", message.KindVoice, true))
	assert.Equal(t, "", ApplyCaptionPolicy("caption", message.KindVideoNote, true))
	assert.Equal(t, "", ApplyCaptionPolicy("caption", message.KindSticker, true))
}

func TestAssembler_StructurePreservingNeverSplitsOrMerges(t *testing.T) {
	a := NewAssembler(true)
	items := []StagedItem{{OriginalMessageID: 1, Kind: "photo"}, {OriginalMessageID: 2, Kind: "photo"}}
	batches := a.AddGroup("g1", items)
	require.Len(t, batches, 1)
	assert.Len(t, batches[0].Items, 2)
}

func TestAssembler_StructurePreservingAbortsOnAnyFailure(t *testing.T) {
	a := NewAssembler(true)
	items := []StagedItem{{OriginalMessageID: 1, Kind: "photo"}, {OriginalMessageID: 2, Kind: "photo", Failed: true}}
	batches := a.AddGroup("g1", items)
	assert.Empty(t, batches)
}

func TestAssembler_LegacyFlushesAtCap(t *testing.T) {
	a := NewAssembler(false)
	var items []StagedItem
	for i := 0; i < legacyBatchCap; i++ {
		items = append(items, StagedItem{OriginalMessageID: i, Kind: "photo"})
	}
	batches := a.AddGroup("", items)
	require.Len(t, batches, 1)
	assert.Len(t, batches[0].Items, legacyBatchCap)
}

func TestAssembler_LegacyStaleFlush(t *testing.T) {
	a := NewAssembler(false)
	a.AddGroup("", []StagedItem{{OriginalMessageID: 1, Kind: "document"}})
	assert.Empty(t, a.Flush(time.Now()))
	assert.Len(t, a.Flush(time.Now().Add(staleFlushTimeout+time.Second)), 1)
}

func TestPublishBatch_AllTargetsSucceedTriggersCleanup(t *testing.T) {
	f := &fakeClient{}
	p := NewPublisher(f, "scratch", []string{"t1", "t2"}, false)
	p.Options.RetryWait = time.Millisecond
	batch := Batch{GroupID: "g1", Items: []StagedItem{{ScratchMessageID: 5, Kind: "photo", FileHandle: "h1"}}}
	err := p.PublishBatch(context.Background(), batch)
	require.NoError(t, err)
	assert.Contains(t, f.deletedIDs, 5)
}

func TestPublishBatch_OneTargetFailsAllRetriesReturnsError(t *testing.T) {
	f := &fakeClient{sendErr: map[string]error{"t2": errors.New("boom")}}
	p := NewPublisher(f, "scratch", []string{"t1", "t2"}, false)
	p.Options.RetryWait = time.Millisecond
	p.Options.Retries = 2
	batch := Batch{GroupID: "g1", Items: []StagedItem{{ScratchMessageID: 5, Kind: "photo", FileHandle: "h1"}}}
	err := p.PublishBatch(context.Background(), batch)
	assert.Error(t, err)
	assert.Equal(t, 2, f.sendCalls["t2"])
	assert.Empty(t, f.deletedIDs) // cleanup-on-failure defaults to off
}

func TestPublishBatch_RateLimitDoesNotConsumeRetryBudget(t *testing.T) {
	f := &fakeClientWithFloodWait{calls: 0}
	p := NewPublisher(f, "scratch", []string{"t1"}, false)
	p.Options.Retries = 1
	batch := Batch{GroupID: "g1", Items: []StagedItem{{ScratchMessageID: 5, Kind: "photo"}}}
	err := p.PublishBatch(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, 3, f.calls) // two flood waits honored, then success, all within Retries=1
}

type fakeClientWithFloodWait struct {
	fakeClient
	calls int
}

func (f *fakeClientWithFloodWait) SendMediaGroup(ctx context.Context, chat string, items []wire.InputMedia) ([]wire.SentMessage, error) {
	f.calls++
	if f.calls < 3 {
		return nil, wire.FloodWait{Wait: time.Millisecond}
	}
	return make([]wire.SentMessage, len(items)), nil
}
