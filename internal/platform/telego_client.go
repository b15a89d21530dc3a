package platform

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"go.uber.org/ratelimit"

	"tgharvester/internal/wire"
)

// defaultRPS mirrors the teacher's bot.ratelimiter (bot/bot.go:
// ratelimit.New(20)): one token bucket per session, gating every
// outgoing Bot API call so a fast downloader can't trip the platform's
// own flood control.
const defaultRPS = 20

// TelegoClient backs the Client contract with github.com/mymmrac/telego,
// the teacher's bot framework. Bot API has no "get arbitrary historical
// message by id" call, so GetMessages fills that gap the way a bot
// legitimately can: forwarding the target message into a scratch chat the
// account administers, reading the forwarded copy's fields, then deleting
// the forwarded copy immediately. ScratchChat doubles as the staging room
// the Staged Publisher uses for its own scratch-upload stage.
type TelegoClient struct {
	bot         *telego.Bot
	name        string
	dcID        int
	scratchChat string
	http        *http.Client
	limiter     ratelimit.Limiter
}

// NewTelegoClient wires a *telego.Bot (already constructed with whatever
// telego.BotOption proxy/transport options the caller needs, mirroring
// main.go's telego.NewBot(cfg.BotToken, botOpts...) call) into a Client.
// dcID is a nominal datacenter id supplied by the caller (Bot API does not
// expose a real one); the Downloader's cross-DC guard compares it with the
// datacenter id decoded from each file_id (spec §4.5).
func NewTelegoClient(bot *telego.Bot, name string, dcID int, scratchChat string) *TelegoClient {
	return &TelegoClient{
		bot: bot, name: name, dcID: dcID, scratchChat: scratchChat,
		http:    &http.Client{Timeout: 2 * time.Minute},
		limiter: ratelimit.New(defaultRPS),
	}
}

func (c *TelegoClient) Name() string      { return c.name }
func (c *TelegoClient) DatacenterID() int { return c.dcID }

func (c *TelegoClient) Start(ctx context.Context) error {
	c.limiter.Take()
	_, err := c.bot.GetMe(ctx)
	return err
}

func (c *TelegoClient) Stop(ctx context.Context) error {
	return nil
}

func (c *TelegoClient) GetMe(ctx context.Context) (wire.AccountInfo, error) {
	c.limiter.Take()
	me, err := c.bot.GetMe(ctx)
	if err != nil {
		return wire.AccountInfo{}, err
	}
	return wire.AccountInfo{ID: me.ID, Premium: false}, nil
}

func (c *TelegoClient) GetChat(ctx context.Context, channel string) (wire.ChatInfo, error) {
	c.limiter.Take()
	chat, err := c.bot.GetChat(ctx, &telego.GetChatParams{ChatID: tu.Username(channel)})
	if err != nil {
		return wire.ChatInfo{}, err
	}
	return wire.ChatInfo{Handle: channel, Title: chat.Title}, nil
}

// GetMessages forwards each id into the scratch chat, inspects the
// forwarded copy, then deletes it. A "message to forward not found" style
// error is treated as an empty/deleted source message rather than a
// hard failure, matching spec §4.1's "skip missing IDs silently" edge case.
func (c *TelegoClient) GetMessages(ctx context.Context, channel string, ids []int) ([]wire.RawMessage, error) {
	out := make([]wire.RawMessage, 0, len(ids))
	for _, id := range ids {
		raw, err := c.fetchOne(ctx, channel, id)
		if err != nil {
			if isNotFound(err) {
				out = append(out, wire.RawMessage{ID: id, Empty: true})
				continue
			}
			if fw, ok := parseFloodWait(err); ok {
				return out, fw
			}
			return out, fmt.Errorf("platform: forward probe message %d: %w", id, err)
		}
		out = append(out, raw)
	}
	return out, nil
}

func (c *TelegoClient) fetchOne(ctx context.Context, channel string, id int) (wire.RawMessage, error) {
	c.limiter.Take()
	fwd, err := c.bot.ForwardMessage(ctx, &telego.ForwardMessageParams{
		ChatID:     tu.Username(c.scratchChat),
		FromChatID: tu.Username(channel),
		MessageID:  id,
	})
	if err != nil {
		return wire.RawMessage{}, err
	}
	defer func() {
		c.limiter.Take()
		_ = c.bot.DeleteMessage(ctx, &telego.DeleteMessageParams{ChatID: tu.Username(c.scratchChat), MessageID: fwd.MessageID})
	}()

	return rawFromTelego(id, fwd), nil
}

func rawFromTelego(id int, m *telego.Message) wire.RawMessage {
	raw := wire.RawMessage{ID: id, GroupID: m.MediaGroupID, Text: m.Text, Caption: m.Caption}
	switch {
	case len(m.Photo) > 0:
		best := m.Photo[0]
		for _, p := range m.Photo {
			if p.FileSize > best.FileSize {
				best = p
			}
		}
		raw.Media = &wire.MediaDescriptor{Kind: "photo", FileID: best.FileID, DeclaredSize: int64(best.FileSize), Width: best.Width, Height: best.Height}
	case m.Video != nil:
		raw.Media = &wire.MediaDescriptor{Kind: "video", FileID: m.Video.FileID, DeclaredSize: int64(m.Video.FileSize), MimeType: m.Video.MimeType, Width: m.Video.Width, Height: m.Video.Height, Duration: m.Video.Duration}
	case m.Document != nil:
		raw.Media = &wire.MediaDescriptor{Kind: "document", FileID: m.Document.FileID, DeclaredSize: int64(m.Document.FileSize), MimeType: m.Document.MimeType}
	case m.Audio != nil:
		raw.Media = &wire.MediaDescriptor{Kind: "audio", FileID: m.Audio.FileID, DeclaredSize: int64(m.Audio.FileSize), MimeType: m.Audio.MimeType, Duration: m.Audio.Duration}
	case m.Voice != nil:
		raw.Media = &wire.MediaDescriptor{Kind: "voice", FileID: m.Voice.FileID, DeclaredSize: int64(m.Voice.FileSize), MimeType: m.Voice.MimeType, Duration: m.Voice.Duration}
	case m.VideoNote != nil:
		raw.Media = &wire.MediaDescriptor{Kind: "video_note", FileID: m.VideoNote.FileID, DeclaredSize: int64(m.VideoNote.FileSize), Duration: m.VideoNote.Duration}
	case m.Animation != nil:
		raw.Media = &wire.MediaDescriptor{Kind: "animation", FileID: m.Animation.FileID, DeclaredSize: int64(m.Animation.FileSize), MimeType: m.Animation.MimeType, Width: m.Animation.Width, Height: m.Animation.Height, Duration: m.Animation.Duration}
	case m.Sticker != nil:
		raw.Media = &wire.MediaDescriptor{Kind: "sticker", FileID: m.Sticker.FileID, DeclaredSize: int64(m.Sticker.FileSize), Width: m.Sticker.Width, Height: m.Sticker.Height}
	default:
		raw.Empty = raw.Text == "" && raw.Caption == ""
	}
	return raw
}

func isNotFound(err error) bool {
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "message to forward not found") || strings.Contains(s, "message_id_invalid") || strings.Contains(s, "message to copy not found")
}

// parseFloodWait mirrors the teacher's parseRetryAfter string-scan (there is
// no typed *telego.Error accessor exposed through the BotAPI interface the
// teacher builds against, so it greps the API error text the same way).
func parseFloodWait(err error) (wire.FloodWait, bool) {
	s := err.Error()
	if !strings.Contains(s, "Too Many Requests") && !strings.Contains(s, "429") {
		return wire.FloodWait{}, false
	}
	fields := strings.Fields(s)
	var seconds int
	if len(fields) >= 2 && fields[len(fields)-2] == "after" {
		if _, err := fmt.Sscan(fields[len(fields)-1], &seconds); err == nil && seconds > 0 {
			return wire.FloodWait{Wait: time.Duration(seconds) * time.Second}, true
		}
	}
	return wire.FloodWait{Wait: 2 * time.Second}, true
}

// namedBytes satisfies telego's NamedReader requirement for multipart
// uploads built from in-memory downloaded bytes rather than an *os.File.
type namedBytes struct {
	*bytes.Reader
	name string
}

func (n namedBytes) Name() string { return n.name }

func inputFromBytes(data []byte, fileName string) telego.InputFile {
	return telego.InputFile{File: namedBytes{Reader: bytes.NewReader(data), name: fileName}}
}

func sendParamsFileName(meta wire.SendMeta, fallback string) string {
	if meta.FileName != "" {
		return meta.FileName
	}
	return fallback
}

func (c *TelegoClient) send(ctx context.Context, method string, do func() (*telego.Message, error)) (wire.SentMessage, error) {
	c.limiter.Take()
	msg, err := do()
	if err != nil {
		if fw, ok := parseFloodWait(err); ok {
			return wire.SentMessage{}, fw
		}
		return wire.SentMessage{}, fmt.Errorf("platform: %s: %w", method, err)
	}
	return wire.SentMessage{MessageID: msg.MessageID, FileHandle: extractFileHandle(msg)}, nil
}

// extractFileHandle recovers the file_id Telegram assigned to whichever
// media field got populated on the scratch send's response message, so
// Stage 2 batch assembly can reference it instead of re-uploading bytes.
func extractFileHandle(m *telego.Message) wire.FileHandle {
	var fileID string
	switch {
	case len(m.Photo) > 0:
		fileID = m.Photo[len(m.Photo)-1].FileID
	case m.Video != nil:
		fileID = m.Video.FileID
	case m.Document != nil:
		fileID = m.Document.FileID
	case m.Audio != nil:
		fileID = m.Audio.FileID
	case m.Voice != nil:
		fileID = m.Voice.FileID
	case m.VideoNote != nil:
		fileID = m.VideoNote.FileID
	case m.Animation != nil:
		fileID = m.Animation.FileID
	case m.Sticker != nil:
		fileID = m.Sticker.FileID
	}
	if fileID == "" {
		return wire.FileHandle{}
	}
	handle, err := DecodeFileHandle(fileID)
	if err != nil {
		return wire.FileHandle{Raw: fileID}
	}
	return handle
}

func (c *TelegoClient) SendPhoto(ctx context.Context, chat string, data []byte, meta wire.SendMeta) (wire.SentMessage, error) {
	return c.send(ctx, "sendPhoto", func() (*telego.Message, error) {
		return c.bot.SendPhoto(ctx, &telego.SendPhotoParams{
			ChatID:  tu.Username(chat),
			Photo:   inputFromBytes(data, sendParamsFileName(meta, "photo.jpg")),
			Caption: meta.Caption,
		})
	})
}

func (c *TelegoClient) SendVideo(ctx context.Context, chat string, data []byte, meta wire.SendMeta) (wire.SentMessage, error) {
	return c.send(ctx, "sendVideo", func() (*telego.Message, error) {
		return c.bot.SendVideo(ctx, &telego.SendVideoParams{
			ChatID:   tu.Username(chat),
			Video:    inputFromBytes(data, sendParamsFileName(meta, "video.mp4")),
			Caption:  meta.Caption,
			Width:    meta.Width,
			Height:   meta.Height,
			Duration: meta.Duration,
		})
	})
}

func (c *TelegoClient) SendAudio(ctx context.Context, chat string, data []byte, meta wire.SendMeta) (wire.SentMessage, error) {
	return c.send(ctx, "sendAudio", func() (*telego.Message, error) {
		return c.bot.SendAudio(ctx, &telego.SendAudioParams{
			ChatID:  tu.Username(chat),
			Audio:   inputFromBytes(data, sendParamsFileName(meta, "audio.mp3")),
			Caption: meta.Caption,
		})
	})
}

func (c *TelegoClient) SendVoice(ctx context.Context, chat string, data []byte, meta wire.SendMeta) (wire.SentMessage, error) {
	return c.send(ctx, "sendVoice", func() (*telego.Message, error) {
		return c.bot.SendVoice(ctx, &telego.SendVoiceParams{
			ChatID: tu.Username(chat),
			Voice:  inputFromBytes(data, sendParamsFileName(meta, "voice.ogg")),
		})
	})
}

func (c *TelegoClient) SendVideoNote(ctx context.Context, chat string, data []byte, meta wire.SendMeta) (wire.SentMessage, error) {
	return c.send(ctx, "sendVideoNote", func() (*telego.Message, error) {
		return c.bot.SendVideoNote(ctx, &telego.SendVideoNoteParams{
			ChatID:    tu.Username(chat),
			VideoNote: inputFromBytes(data, sendParamsFileName(meta, "note.mp4")),
			Duration:  meta.Duration,
		})
	})
}

func (c *TelegoClient) SendAnimation(ctx context.Context, chat string, data []byte, meta wire.SendMeta) (wire.SentMessage, error) {
	return c.send(ctx, "sendAnimation", func() (*telego.Message, error) {
		return c.bot.SendAnimation(ctx, &telego.SendAnimationParams{
			ChatID:    tu.Username(chat),
			Animation: inputFromBytes(data, sendParamsFileName(meta, "anim.gif")),
			Caption:   meta.Caption,
			Width:     meta.Width,
			Height:    meta.Height,
			Duration:  meta.Duration,
		})
	})
}

func (c *TelegoClient) SendDocument(ctx context.Context, chat string, data []byte, meta wire.SendMeta) (wire.SentMessage, error) {
	return c.send(ctx, "sendDocument", func() (*telego.Message, error) {
		return c.bot.SendDocument(ctx, &telego.SendDocumentParams{
			ChatID:   tu.Username(chat),
			Document: inputFromBytes(data, sendParamsFileName(meta, "file.bin")),
			Caption:  meta.Caption,
		})
	})
}

func (c *TelegoClient) SendSticker(ctx context.Context, chat string, data []byte, meta wire.SendMeta) (wire.SentMessage, error) {
	return c.send(ctx, "sendSticker", func() (*telego.Message, error) {
		return c.bot.SendSticker(ctx, &telego.SendStickerParams{
			ChatID:  tu.Username(chat),
			Sticker: inputFromBytes(data, sendParamsFileName(meta, "sticker.webp")),
		})
	})
}

// SendMediaGroup mirrors the teacher's createInputMedia + SendMediaGroup
// pairing, generalized to all kinds inputMedia.Kind can carry instead of
// just photo/video.
func (c *TelegoClient) SendMediaGroup(ctx context.Context, chat string, items []wire.InputMedia) ([]wire.SentMessage, error) {
	media := make([]telego.InputMedia, 0, len(items))
	c.limiter.Take()
	for _, item := range items {
		file := telego.InputFile{FileID: item.Handle.Raw}
		switch item.Kind {
		case "photo":
			media = append(media, &telego.InputMediaPhoto{Type: telego.MediaTypePhoto, Media: file, Caption: item.Caption})
		case "video":
			media = append(media, &telego.InputMediaVideo{Type: telego.MediaTypeVideo, Media: file, Caption: item.Caption, Width: item.Width, Height: item.Height, Duration: item.Duration})
		case "document":
			media = append(media, &telego.InputMediaDocument{Type: telego.MediaTypeDocument, Media: file, Caption: item.Caption})
		case "audio":
			media = append(media, &telego.InputMediaAudio{Type: telego.MediaTypeAudio, Media: file, Caption: item.Caption, Duration: item.Duration})
		default:
			return nil, fmt.Errorf("platform: media group does not support kind %q", item.Kind)
		}
	}

	msgs, err := c.bot.SendMediaGroup(ctx, &telego.SendMediaGroupParams{ChatID: tu.Username(chat), Media: media})
	if err != nil {
		if fw, ok := parseFloodWait(err); ok {
			return nil, fw
		}
		return nil, fmt.Errorf("platform: sendMediaGroup: %w", err)
	}
	out := make([]wire.SentMessage, len(msgs))
	for i, m := range msgs {
		out[i] = wire.SentMessage{MessageID: m.MessageID}
	}
	return out, nil
}

func (c *TelegoClient) DeleteMessages(ctx context.Context, chat string, ids []int) error {
	c.limiter.Take()
	err := c.bot.DeleteMessages(ctx, &telego.DeleteMessagesParams{ChatID: tu.Username(chat), MessageIDs: ids})
	if err != nil {
		if fw, ok := parseFloodWait(err); ok {
			return fw
		}
		return fmt.Errorf("platform: deleteMessages: %w", err)
	}
	return nil
}

func (c *TelegoClient) CopyMessage(ctx context.Context, toChat, fromChat string, id int) (wire.SentMessage, error) {
	c.limiter.Take()
	res, err := c.bot.CopyMessage(ctx, &telego.CopyMessageParams{ChatID: tu.Username(toChat), FromChatID: tu.Username(fromChat), MessageID: id})
	if err != nil {
		if fw, ok := parseFloodWait(err); ok {
			return wire.SentMessage{}, fw
		}
		return wire.SentMessage{}, fmt.Errorf("platform: copyMessage: %w", err)
	}
	return wire.SentMessage{MessageID: res.MessageID}, nil
}

// GetFile resolves loc.Raw (the original file_id) to a download URL via
// bot.GetFile, then issues a ranged HTTP GET for [offset, offset+limit).
// This is the Bot-API-shaped stand-in for a raw chunked transfer keyed by
// access-hash/file-reference/datacenter-id.
func (c *TelegoClient) GetFile(ctx context.Context, loc wire.FileHandle, offset, limit int64) ([]byte, error) {
	c.limiter.Take()
	tf, err := c.bot.GetFile(ctx, &telego.GetFileParams{FileID: loc.Raw})
	if err != nil {
		return nil, fmt.Errorf("platform: getFile: %w", err)
	}
	url := c.bot.FileDownloadURL(tf.FilePath)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", offset, offset+limit-1))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusPartialContent && resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("platform: getFile range request: status %d", resp.StatusCode)
	}

	buf := make([]byte, limit)
	n, err := readFull(resp.Body, buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

func (c *TelegoClient) StreamMedia(ctx context.Context, msg wire.RawMessage) (wire.ChunkIterator, error) {
	if msg.Media == nil {
		return nil, fmt.Errorf("platform: message %d has no media to stream", msg.ID)
	}
	c.limiter.Take()
	tf, err := c.bot.GetFile(ctx, &telego.GetFileParams{FileID: msg.Media.FileID})
	if err != nil {
		return nil, fmt.Errorf("platform: getFile: %w", err)
	}
	url := c.bot.FileDownloadURL(tf.FilePath)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	return &httpChunkIterator{body: resp.Body, chunkSize: 1 << 20}, nil
}
