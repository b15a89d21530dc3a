// Package message defines the immutable Message snapshot produced by the
// Fetcher and the media-kind dispatch table used throughout the pipeline.
package message

import "tgharvester/internal/wire"

// Kind identifies the media payload carried by a Message, if any.
type Kind int

const (
	KindNone Kind = iota
	KindPhoto
	KindVideo
	KindDocument
	KindAudio
	KindVoice
	KindVideoNote
	KindAnimation
	KindSticker
)

func (k Kind) String() string {
	switch k {
	case KindPhoto:
		return "photo"
	case KindVideo:
		return "video"
	case KindDocument:
		return "document"
	case KindAudio:
		return "audio"
	case KindVoice:
		return "voice"
	case KindVideoNote:
		return "video_note"
	case KindAnimation:
		return "animation"
	case KindSticker:
		return "sticker"
	default:
		return "none"
	}
}

// defaultSizeEstimates backs the per-kind fallback table from spec §4.3,
// used by the Grouper when a message carries no declared file size.
var defaultSizeEstimates = map[Kind]int64{
	KindPhoto:     3 * 1024 * 1024,
	KindVideo:     37 * 1024 * 1024,
	KindDocument:  10 * 1024 * 1024,
	KindAudio:     5 * 1024 * 1024,
	KindAnimation: 3 * 1024 * 1024,
	KindVoice:     1 * 1024 * 1024,
	KindVideoNote: 2 * 1024 * 1024,
}

const (
	unknownMediaEstimate = 5 * 1024 * 1024
	textOnlyEstimate     = 1024
)

// Media carries the type-specific descriptor captured from the platform.
type Media struct {
	Kind        Kind
	FileID      string // platform file identifier, opaque
	DeclaredSize int64  // 0 if the platform did not report one
	MimeType    string
	Width       int
	Height      int
	Duration    int // seconds, 0 if not applicable
}

// EstimatedSize returns the declared size when known, otherwise the
// per-kind default from spec §4.3. Callers pass nil for pure-text
// messages, which get the text-only estimate.
func EstimatedSize(m *Media) int64 {
	if m == nil {
		return textOnlyEstimate
	}
	if m.DeclaredSize > 0 {
		return m.DeclaredSize
	}
	if est, ok := defaultSizeEstimates[m.Kind]; ok {
		return est
	}
	return unknownMediaEstimate
}

// Message is an immutable snapshot of one platform message, identified by
// (ChannelID, ID).
type Message struct {
	ChannelID    string
	ID           int
	GroupID      string // platform media_group_id, empty if none
	Text         string
	Caption      string
	Media        *Media // nil for text-only messages
	Empty        bool   // platform returned an empty placeholder for this id
}

// Valid reports whether the platform did not mark this message empty,
// per spec §3's Message invariant.
func (m Message) Valid() bool {
	return !m.Empty
}

// HasMedia reports whether the message carries a downloadable payload.
func (m Message) HasMedia() bool {
	return m.Media != nil && m.Media.Kind != KindNone
}

var kindByName = map[string]Kind{
	"photo":      KindPhoto,
	"video":      KindVideo,
	"document":   KindDocument,
	"audio":      KindAudio,
	"voice":      KindVoice,
	"video_note": KindVideoNote,
	"animation":  KindAnimation,
	"sticker":    KindSticker,
}

// ParseKind resolves a string-typed media kind (as stored on StagedItem
// after a round trip through the platform) back into the Kind enum.
func ParseKind(name string) Kind {
	return kindByName[name]
}

// FromRaw lifts a wire.RawMessage (the platform boundary type) into the
// pipeline's Message, resolving the string-typed media kind into the Kind
// enum per spec §9's tagged-union redesign.
func FromRaw(channelID string, raw wire.RawMessage) Message {
	m := Message{
		ChannelID: channelID,
		ID:        raw.ID,
		GroupID:   raw.GroupID,
		Text:      raw.Text,
		Caption:   raw.Caption,
		Empty:     raw.Empty,
	}
	if raw.Media != nil {
		m.Media = &Media{
			Kind:         kindByName[raw.Media.Kind],
			FileID:       raw.Media.FileID,
			DeclaredSize: raw.Media.DeclaredSize,
			MimeType:     raw.Media.MimeType,
			Width:        raw.Media.Width,
			Height:       raw.Media.Height,
			Duration:     raw.Media.Duration,
		}
	}
	return m
}
