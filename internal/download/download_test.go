package download

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tgharvester/internal/message"
	"tgharvester/internal/wire"
)

// makeFileID builds a decodable fake file_id matching platform.DecodeFileHandle's
// layout: fileType(4) dcID(4) mediaID(8) accessHash(8) + 2 trailing version bytes.
func makeFileID(dcID int32, mediaID, accessHash int64) string {
	body := make([]byte, 24)
	binary.LittleEndian.PutUint32(body[0:4], 0)
	binary.LittleEndian.PutUint32(body[4:8], uint32(dcID))
	binary.LittleEndian.PutUint64(body[8:16], uint64(mediaID))
	binary.LittleEndian.PutUint64(body[16:24], uint64(accessHash))
	raw := append(body, 0x02, 0x00)
	return base64.RawURLEncoding.EncodeToString(raw)
}

type fakeChunkIterator struct {
	chunks [][]byte
	i      int
}

func (f *fakeChunkIterator) Next(ctx context.Context) ([]byte, bool, error) {
	if f.i >= len(f.chunks) {
		return nil, true, nil
	}
	c := f.chunks[f.i]
	f.i++
	return c, f.i >= len(f.chunks), nil
}

type fakePlatform struct {
	fileBytes map[string][]byte
	streamErr error
}

func (f *fakePlatform) Start(ctx context.Context) error { return nil }
func (f *fakePlatform) Stop(ctx context.Context) error  { return nil }
func (f *fakePlatform) GetMessages(ctx context.Context, channel string, ids []int) ([]wire.RawMessage, error) {
	return nil, nil
}
func (f *fakePlatform) GetChat(ctx context.Context, channel string) (wire.ChatInfo, error) {
	return wire.ChatInfo{}, nil
}
func (f *fakePlatform) GetMe(ctx context.Context) (wire.AccountInfo, error) {
	return wire.AccountInfo{}, nil
}
func (f *fakePlatform) StreamMedia(ctx context.Context, msg wire.RawMessage) (wire.ChunkIterator, error) {
	if f.streamErr != nil {
		return nil, f.streamErr
	}
	data := f.fileBytes[msg.Media.FileID]
	return &fakeChunkIterator{chunks: [][]byte{data}}, nil
}
func (f *fakePlatform) GetFile(ctx context.Context, loc wire.FileHandle, offset, limit int64) ([]byte, error) {
	data := f.fileBytes[loc.Raw]
	if offset >= int64(len(data)) {
		return nil, nil
	}
	end := offset + limit
	if end > int64(len(data)) {
		end = int64(len(data))
	}
	return data[offset:end], nil
}
func (f *fakePlatform) SendPhoto(ctx context.Context, chat string, data []byte, meta wire.SendMeta) (wire.SentMessage, error) {
	return wire.SentMessage{}, nil
}
func (f *fakePlatform) SendVideo(ctx context.Context, chat string, data []byte, meta wire.SendMeta) (wire.SentMessage, error) {
	return wire.SentMessage{}, nil
}
func (f *fakePlatform) SendAudio(ctx context.Context, chat string, data []byte, meta wire.SendMeta) (wire.SentMessage, error) {
	return wire.SentMessage{}, nil
}
func (f *fakePlatform) SendVoice(ctx context.Context, chat string, data []byte, meta wire.SendMeta) (wire.SentMessage, error) {
	return wire.SentMessage{}, nil
}
func (f *fakePlatform) SendVideoNote(ctx context.Context, chat string, data []byte, meta wire.SendMeta) (wire.SentMessage, error) {
	return wire.SentMessage{}, nil
}
func (f *fakePlatform) SendAnimation(ctx context.Context, chat string, data []byte, meta wire.SendMeta) (wire.SentMessage, error) {
	return wire.SentMessage{}, nil
}
func (f *fakePlatform) SendDocument(ctx context.Context, chat string, data []byte, meta wire.SendMeta) (wire.SentMessage, error) {
	return wire.SentMessage{}, nil
}
func (f *fakePlatform) SendSticker(ctx context.Context, chat string, data []byte, meta wire.SendMeta) (wire.SentMessage, error) {
	return wire.SentMessage{}, nil
}
func (f *fakePlatform) SendMediaGroup(ctx context.Context, chat string, items []wire.InputMedia) ([]wire.SentMessage, error) {
	return nil, nil
}
func (f *fakePlatform) DeleteMessages(ctx context.Context, chat string, ids []int) error { return nil }
func (f *fakePlatform) CopyMessage(ctx context.Context, toChat, fromChat string, id int) (wire.SentMessage, error) {
	return wire.SentMessage{}, nil
}
func (f *fakePlatform) DatacenterID() int { return 1 }
func (f *fakePlatform) Name() string      { return "fake" }

func photoMessage(id int, fileID string, size int64) message.Message {
	return message.Message{ID: id, Media: &message.Media{Kind: message.KindPhoto, FileID: fileID, DeclaredSize: size}}
}

func videoMessage(id int, fileID string, size int64) message.Message {
	return message.Message{ID: id, Media: &message.Media{Kind: message.KindVideo, FileID: fileID, DeclaredSize: size}}
}

func TestDownload_SmallPhotoUsesChunkedRawInMemory(t *testing.T) {
	fileID := makeFileID(0, 1, 2)
	data := bytes.Repeat([]byte{'x'}, 100)
	fp := &fakePlatform{fileBytes: map[string][]byte{fileID: data}, streamErr: errors.New("streaming must not be used for this path")}
	d := NewDownloader(fp, "")
	item, err := d.Download(context.Background(), "s1", photoMessage(1, fileID, int64(len(data))))
	require.NoError(t, err)
	assert.False(t, item.OnDisk)
	assert.Equal(t, data, item.Buffer)
}

func TestDownload_VideoAlwaysStreams(t *testing.T) {
	data := bytes.Repeat([]byte{'y'}, 50)
	fp := &fakePlatform{fileBytes: map[string][]byte{"f2": data}}
	d := NewDownloader(fp, "")
	item, err := d.Download(context.Background(), "s1", videoMessage(2, "f2", int64(len(data))))
	require.NoError(t, err)
	assert.Equal(t, data, item.Buffer)
}

func TestDownload_OnDiskWritesFile(t *testing.T) {
	dir := t.TempDir()
	data := bytes.Repeat([]byte{'z'}, 200)
	fp := &fakePlatform{fileBytes: map[string][]byte{"f3": data}}
	d := NewDownloader(fp, dir)
	item, err := d.Download(context.Background(), "s1", photoMessage(3, "f3", int64(len(data))))
	require.NoError(t, err)
	require.True(t, item.OnDisk)
	got, err := os.ReadFile(item.Path)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestDownload_SkipsExistingFile(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "4.bin")
	require.NoError(t, os.WriteFile(existing, []byte("already here"), 0o644))

	fp := &fakePlatform{}
	d := NewDownloader(fp, dir)
	d.Existing = ExistingFileChecker{Dir: dir}
	item, err := d.Download(context.Background(), "s1", photoMessage(4, "nonexistent", 999))
	require.NoError(t, err)
	assert.True(t, item.OnDisk)
	assert.Equal(t, existing, item.Path)
}

func TestDownload_CrossDCMemoryModeFailsRatherThanFallBack(t *testing.T) {
	fileID := makeFileID(1, 5, 6) // handle reports dc=1
	data := bytes.Repeat([]byte{'w'}, 30)
	fp := &fakePlatform{fileBytes: map[string][]byte{fileID: data}}
	d := NewDownloader(fp, "") // memory mode: outputDir == ""
	d.SessionDCID = 999       // session is on a different dc, forcing the guard
	_, err := d.Download(context.Background(), "s1", photoMessage(5, fileID, int64(len(data))))
	require.Error(t, err)
}

func TestDownload_CrossDCOnDiskFallsBackToStreaming(t *testing.T) {
	dir := t.TempDir()
	fileID := makeFileID(1, 5, 6) // handle reports dc=1
	data := bytes.Repeat([]byte{'w'}, 30)
	fp := &fakePlatform{fileBytes: map[string][]byte{fileID: data}}
	d := NewDownloader(fp, dir) // on-disk mode: streaming fallback applies
	d.SessionDCID = 999         // session is on a different dc, forcing the guard
	item, err := d.Download(context.Background(), "s1", photoMessage(5, fileID, int64(len(data))))
	require.NoError(t, err)
	require.True(t, item.OnDisk)
	got, err := os.ReadFile(item.Path)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestExistingFileChecker_NoDirNeverMatches(t *testing.T) {
	c := ExistingFileChecker{}
	_, ok := c.Exists(1)
	assert.False(t, ok)
}
