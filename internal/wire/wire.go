// Package wire holds the platform-agnostic value types and the narrow
// SessionClient contract shared between internal/platform (which implements
// them against github.com/mymmrac/telego) and internal/message (whose
// Fetcher only needs read access, not the full internal/platform.Client
// surface). Keeping them here avoids an import cycle between the two.
package wire

import (
	"context"
	"time"
)

// ChunkIterator yields successive byte chunks for a streamed download,
// per spec §4.5's "streaming path".
type ChunkIterator interface {
	// Next returns the next chunk. done is true once the iterator is
	// exhausted; a final zero-length chunk with done=true is valid.
	Next(ctx context.Context) (chunk []byte, done bool, err error)
}

// RawMessage is the platform-level message snapshot, before being lifted
// into message.Message by the message package.
type RawMessage struct {
	ID      int
	GroupID string
	Text    string
	Caption string
	Media   *MediaDescriptor
	Empty   bool
}

// MediaDescriptor mirrors message.Media at the platform boundary.
type MediaDescriptor struct {
	Kind         string
	FileID       string
	DeclaredSize int64
	MimeType     string
	Width        int
	Height       int
	Duration     int
}

// ChatInfo is metadata used only for folder-name derivation, per spec §6.3.
type ChatInfo struct {
	Handle string
	Title  string
}

// AccountInfo identifies the account tier, per spec §6.3's get_me and
// SPEC_FULL.md §10.2's account-info cache.
type AccountInfo struct {
	ID      int64
	Premium bool
}

// SendMeta carries the per-kind parameters for a scratch upload.
type SendMeta struct {
	FileName string
	MimeType string
	Caption  string
	Width    int
	Height   int
	Duration int
}

// SentMessage is the return of a scratch-upload or publish call, carrying
// the kind-specific file-handle for later re-send without re-upload.
type SentMessage struct {
	MessageID  int
	FileHandle FileHandle
}

// InputMedia references an already-uploaded file handle for group sends.
type InputMedia struct {
	Kind     string
	Handle   FileHandle
	Caption  string
	Width    int
	Height   int
	Duration int
}

// FileHandle is the decoded view of an opaque platform file reference:
// media-id, access-hash, file-reference, datacenter-id, and an optional
// thumb-size hint, per spec §6.3.
type FileHandle struct {
	MediaID       int64
	AccessHash    int64
	FileReference []byte
	DatacenterID  int
	ThumbSize     string // empty if none
	Raw           string // original opaque file_id, kept for re-send
}

// FloodWait is the rate-limit signal shape from spec §6.3: an instruction
// to sleep Wait before retrying. It implements error so it can travel
// through ordinary Go error returns.
type FloodWait struct {
	Wait time.Duration
}

func (e FloodWait) Error() string { return "flood wait" }

// AsFloodWait reports whether err is a FloodWait signal.
func AsFloodWait(err error) (FloodWait, bool) {
	fw, ok := err.(FloodWait)
	return fw, ok
}

// SessionClient is the narrow, read-mostly view the Fetcher needs.
type SessionClient interface {
	GetMessages(ctx context.Context, channel string, ids []int) ([]RawMessage, error)
	DatacenterID() int
	Name() string
}
