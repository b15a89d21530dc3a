// Package publish implements the Staged Publisher from spec §4.7: a
// four-stage pipeline that uploads downloaded media to an account-owned
// scratch chat, assembles batches, fans them out to target channels, and
// cleans up scratch messages. Grounded on the teacher's
// sendMediaGroupWithRetry (bot/helpers.go) for the per-target retry loop
// and createInputMedia for the kind-to-InputMedia dispatch table, both
// generalized from photo/video-only to every media.Kind.
package publish

import (
	"context"
	"fmt"

	"tgharvester/internal/download"
	"tgharvester/internal/message"
	"tgharvester/internal/platform"
	"tgharvester/internal/wire"
)

// scratchSender is the per-kind "send to self-chat" dispatch table from
// spec §4.7 Stage 1 / §6.3 ("each kind maps to a distinct send method
// with its own parameter set").
type scratchSender func(ctx context.Context, c platform.Client, chat string, data []byte, meta wire.SendMeta) (wire.SentMessage, error)

var scratchSenders = map[message.Kind]scratchSender{
	message.KindPhoto: func(ctx context.Context, c platform.Client, chat string, data []byte, meta wire.SendMeta) (wire.SentMessage, error) {
		return c.SendPhoto(ctx, chat, data, meta)
	},
	message.KindVideo: func(ctx context.Context, c platform.Client, chat string, data []byte, meta wire.SendMeta) (wire.SentMessage, error) {
		return c.SendVideo(ctx, chat, data, meta)
	},
	message.KindDocument: func(ctx context.Context, c platform.Client, chat string, data []byte, meta wire.SendMeta) (wire.SentMessage, error) {
		return c.SendDocument(ctx, chat, data, meta)
	},
	message.KindAudio: func(ctx context.Context, c platform.Client, chat string, data []byte, meta wire.SendMeta) (wire.SentMessage, error) {
		return c.SendAudio(ctx, chat, data, meta)
	},
	message.KindVoice: func(ctx context.Context, c platform.Client, chat string, data []byte, meta wire.SendMeta) (wire.SentMessage, error) {
		return c.SendVoice(ctx, chat, data, meta)
	},
	message.KindVideoNote: func(ctx context.Context, c platform.Client, chat string, data []byte, meta wire.SendMeta) (wire.SentMessage, error) {
		return c.SendVideoNote(ctx, chat, data, meta)
	},
	message.KindAnimation: func(ctx context.Context, c platform.Client, chat string, data []byte, meta wire.SendMeta) (wire.SentMessage, error) {
		return c.SendAnimation(ctx, chat, data, meta)
	},
	message.KindSticker: func(ctx context.Context, c platform.Client, chat string, data []byte, meta wire.SendMeta) (wire.SentMessage, error) {
		return c.SendSticker(ctx, chat, data, meta)
	},
}

func dataOf(item download.Item) ([]byte, error) {
	if !item.OnDisk {
		return item.Buffer, nil
	}
	return readFile(item.Path)
}

// kindFamily classifies a kind into the legacy-mode packing families from
// spec §4.7 Stage 2: {photo, video, animation} | {document} | {audio,
// voice} | everything-else -> document.
func kindFamily(k message.Kind) string {
	switch k {
	case message.KindPhoto, message.KindVideo, message.KindAnimation:
		return "visual"
	case message.KindAudio, message.KindVoice:
		return "audio"
	default:
		return "document"
	}
}

// mediaGroupKind maps a kind to spec §4.7's media-group-send descriptor
// classes: photo, video, audio, or document (everything else, including
// voice/video-note/animation/sticker in group context).
func mediaGroupKind(k message.Kind) string {
	switch k {
	case message.KindPhoto:
		return "photo"
	case message.KindVideo:
		return "video"
	case message.KindAudio:
		return "audio"
	default:
		return "document"
	}
}

var errUnknownKind = fmt.Errorf("publish: no scratch sender for this media kind")
