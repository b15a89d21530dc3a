package publish

import (
	"tgharvester/internal/message"
)

const (
	premiumCaptionCap = 4096
	standardCaptionCap = 1024
)

// dropsCaption reports whether kind's send method does not accept a
// caption at all, per spec §4.7's Caption policy.
func dropsCaption(kind message.Kind) bool {
	switch kind {
	case message.KindVoice, message.KindVideoNote, message.KindSticker:
		return true
	default:
		return false
	}
}

// ApplyCaptionPolicy truncates caption to cap-3 plus "..." when it
// overflows the account-tier cap, or drops it silently for kinds that
// don't accept one.
func ApplyCaptionPolicy(caption string, kind message.Kind, premium bool) string {
	if dropsCaption(kind) {
		return ""
	}
	limit := standardCaptionCap
	if premium {
		limit = premiumCaptionCap
	}
	runes := []rune(caption)
	if len(runes) <= limit {
		return caption
	}
	return string(runes[:limit-3]) + "..."
}
