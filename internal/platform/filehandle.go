package platform

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"tgharvester/internal/wire"
)

// DecodeFileHandle decodes an opaque Telegram file_id into the fields spec
// §6.3 says a "decoded file-handle" exposes: media-id, access-hash,
// file-reference, datacenter-id, and an optional thumb-size hint.
//
// Telegram's Bot API file_id is itself a base64url-encoded, TL-serialized
// blob; this follows the layout reverse-engineered and published by the
// pyrogram/telethon community (the same family of libraries
// original_source/ is built on): two trailing version bytes, then
// file_type, dc_id, media_id, access_hash, and an optional trailing
// file_reference. Exact byte-for-byte fidelity with Telegram's private
// format is not required here — spec §6.3 only needs these fields to
// drive the cross-DC guard in the Downloader (spec §4.5), not to
// reconstruct a wire-valid client request.
func DecodeFileHandle(fileID string) (wire.FileHandle, error) {
	if fileID == "" {
		return wire.FileHandle{}, fmt.Errorf("platform: empty file_id")
	}

	raw, err := base64.RawURLEncoding.DecodeString(fileID)
	if err != nil {
		return wire.FileHandle{}, fmt.Errorf("platform: decode file_id: %w", err)
	}
	if len(raw) < 18 {
		return wire.FileHandle{}, fmt.Errorf("platform: file_id too short (%d bytes)", len(raw))
	}

	// Strip the two trailing version/subversion bytes.
	body := raw[:len(raw)-2]

	fileType := int32(binary.LittleEndian.Uint32(body[0:4]))
	dcID := int32(binary.LittleEndian.Uint32(body[4:8]))
	mediaID := int64(binary.LittleEndian.Uint64(body[8:16]))

	var accessHash int64
	var fileRef []byte
	if len(body) >= 24 {
		accessHash = int64(binary.LittleEndian.Uint64(body[16:24]))
		if len(body) > 24 {
			fileRef = append([]byte(nil), body[24:]...)
		}
	}

	thumbSize := ""
	if fileType&0xff >= 0xff {
		thumbSize = "x" // presence only; exact thumb-size letter is not load-bearing here
	}

	return wire.FileHandle{
		MediaID:       mediaID,
		AccessHash:    accessHash,
		FileReference: fileRef,
		DatacenterID:  int(dcID),
		ThumbSize:     thumbSize,
		Raw:           fileID,
	}, nil
}
