package media

import (
	"fmt"
	"strings"
)

// Kind selects the output container and the retrieval strategy.
type Kind string

const (
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
)

// ParseKind accepts "video" or "audio" (case-insensitive, surrounding space ignored).
func ParseKind(value string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(value))) {
	case KindVideo:
		return KindVideo, nil
	case KindAudio:
		return KindAudio, nil
	default:
		return "", fmt.Errorf("unsupported media kind %q", value)
	}
}

// Extension returns the file extension, without the dot, produced for the kind.
func (k Kind) Extension() string {
	switch k {
	case KindAudio:
		return "mp3"
	case KindVideo:
		return "mp4"
	default:
		return ""
	}
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	return k == KindVideo || k == KindAudio
}

func (k Kind) String() string { return string(k) }

// KindForExtension maps a served file extension back to its kind.
func KindForExtension(ext string) (Kind, bool) {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "mp4":
		return KindVideo, true
	case "mp3":
		return KindAudio, true
	default:
		return "", false
	}
}
