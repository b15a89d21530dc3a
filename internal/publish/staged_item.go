package publish

import "os"

func readFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// StagedItem is spec §3's StagedItem: a DownloadedItem after scratch
// upload, carrying the captured file-handle used by subsequent
// send_media_group calls instead of raw bytes.
type StagedItem struct {
	OriginalMessageID int
	GroupID           string
	ScratchMessageID  int
	FileHandle        string // opaque platform file_id captured from the scratch send
	Kind              string // message.Kind.String()
	Caption           string
	Width, Height, Duration int
	Failed bool
}
