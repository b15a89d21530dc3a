// Package platform abstracts the chat-protocol operations named in spec
// §6.3, grounded on the teacher's pkg/telegoapi.BotAPI interface-for-mocking
// pattern and backed by github.com/mymmrac/telego.
package platform

import (
	"context"

	"tgharvester/internal/wire"
)

// Client is the full platform contract from spec §6.3. One Client is bound
// to one authenticated session; the Session Pool owns the handles and
// Fetcher/Downloader/Publisher borrow them.
type Client interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error

	GetMessages(ctx context.Context, channel string, ids []int) ([]wire.RawMessage, error)
	GetChat(ctx context.Context, channel string) (wire.ChatInfo, error)
	GetMe(ctx context.Context) (wire.AccountInfo, error)

	StreamMedia(ctx context.Context, msg wire.RawMessage) (wire.ChunkIterator, error)
	GetFile(ctx context.Context, loc wire.FileHandle, offset, limit int64) ([]byte, error)

	SendPhoto(ctx context.Context, chat string, data []byte, meta wire.SendMeta) (wire.SentMessage, error)
	SendVideo(ctx context.Context, chat string, data []byte, meta wire.SendMeta) (wire.SentMessage, error)
	SendAudio(ctx context.Context, chat string, data []byte, meta wire.SendMeta) (wire.SentMessage, error)
	SendVoice(ctx context.Context, chat string, data []byte, meta wire.SendMeta) (wire.SentMessage, error)
	SendVideoNote(ctx context.Context, chat string, data []byte, meta wire.SendMeta) (wire.SentMessage, error)
	SendAnimation(ctx context.Context, chat string, data []byte, meta wire.SendMeta) (wire.SentMessage, error)
	SendDocument(ctx context.Context, chat string, data []byte, meta wire.SendMeta) (wire.SentMessage, error)
	SendSticker(ctx context.Context, chat string, data []byte, meta wire.SendMeta) (wire.SentMessage, error)

	SendMediaGroup(ctx context.Context, chat string, items []wire.InputMedia) ([]wire.SentMessage, error)
	DeleteMessages(ctx context.Context, chat string, ids []int) error
	CopyMessage(ctx context.Context, toChat, fromChat string, id int) (wire.SentMessage, error)

	DatacenterID() int
	Name() string
}
