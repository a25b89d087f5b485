package metadata

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"uniloader/internal/media"
	"uniloader/internal/services/ytdlp"
)

const (
	MaxVideoVariants = 10
	MaxAudioVariants = 5

	UnknownSize     = "Size Unknown"
	UnknownDuration = "N/A"
	UnknownPlatform = "unknown"
	DefaultAuthor   = "Official"
)

// Normalize converts a yt-dlp record into a descriptor for sourceURL.
func Normalize(info *ytdlp.Info, sourceURL string) media.Descriptor {
	desc := media.Descriptor{
		ID:           info.ID,
		SourceURL:    sourceURL,
		Platform:     platformTag(info),
		Title:        strings.TrimSpace(info.Title),
		Author:       authorName(info),
		Duration:     durationDisplay(info),
		ThumbnailURL: info.Thumbnail,
	}
	desc.VideoVariants = videoVariants(info.Formats)
	desc.AudioVariants = audioVariants(info.Formats)

	if len(desc.VideoVariants) > 0 {
		desc.AvailableKinds = append(desc.AvailableKinds, media.KindVideo)
	}
	if len(desc.AudioVariants) > 0 || hasAnyAudio(info.Formats) {
		desc.AvailableKinds = append(desc.AvailableKinds, media.KindAudio)
	}
	if desc.AvailableKinds == nil {
		desc.AvailableKinds = []media.Kind{}
	}
	return desc
}

func videoVariants(formats []ytdlp.Format) []media.QualityOption {
	seen := make(map[string]struct{}, len(formats))
	options := make([]media.QualityOption, 0, len(formats))
	for _, f := range formats {
		if !f.HasVideo() || f.Height <= 0 {
			continue
		}
		label := videoLabel(f)
		if _, dup := seen[label]; dup {
			continue
		}
		seen[label] = struct{}{}
		options = append(options, media.QualityOption{
			Label:           label,
			VariantID:       f.FormatID,
			ApproximateSize: sizeDisplay(f),
			Height:          f.Height,
		})
	}
	sort.SliceStable(options, func(i, j int) bool {
		return options[i].Height > options[j].Height
	})
	if len(options) > MaxVideoVariants {
		options = options[:MaxVideoVariants]
	}
	return options
}

func audioVariants(formats []ytdlp.Format) []media.QualityOption {
	options := make([]media.QualityOption, 0, MaxAudioVariants)
	for _, f := range formats {
		if !f.HasAudio() || f.HasVideo() {
			continue
		}
		options = append(options, media.QualityOption{
			Label:           audioLabel(f),
			VariantID:       f.FormatID,
			ApproximateSize: sizeDisplay(f),
		})
		if len(options) == MaxAudioVariants {
			break
		}
	}
	return options
}

func videoLabel(f ytdlp.Format) string {
	label := fmt.Sprintf("%dp", f.Height)
	if ext := strings.ToUpper(strings.TrimSpace(f.Ext)); ext != "" {
		label += " - " + ext
	}
	if f.FPS > 0 {
		label += fmt.Sprintf(" (%sfps)", strconv.FormatFloat(f.FPS, 'f', -1, 64))
	}
	return label
}

func audioLabel(f ytdlp.Format) string {
	switch {
	case f.ABR > 0:
		return fmt.Sprintf("MP3 - %skbps", formatBitrate(f.ABR))
	case f.TBR > 0:
		return fmt.Sprintf("MP3 - ~%skbps", formatBitrate(f.TBR))
	default:
		return "MP3 - High"
	}
}

func formatBitrate(v float64) string {
	return strconv.FormatFloat(math.Round(v*10)/10, 'f', -1, 64)
}

func sizeDisplay(f ytdlp.Format) string {
	const mib = 1024 * 1024
	switch {
	case f.FileSize > 0:
		return fmt.Sprintf("%.1f MB", f.FileSize/mib)
	case f.FileSizeApprox > 0:
		return fmt.Sprintf("~%.1f MB", f.FileSizeApprox/mib)
	default:
		return UnknownSize
	}
}

func platformTag(info *ytdlp.Info) string {
	key := strings.TrimSpace(info.ExtractorKey)
	if key == "" {
		key = strings.TrimSpace(info.Extractor)
	}
	if key == "" {
		return UnknownPlatform
	}
	return strings.ToLower(key)
}

func authorName(info *ytdlp.Info) string {
	for _, candidate := range []string{info.Uploader, info.Channel} {
		if v := strings.TrimSpace(candidate); v != "" {
			return v
		}
	}
	return DefaultAuthor
}

func durationDisplay(info *ytdlp.Info) string {
	if v := strings.TrimSpace(info.DurationString); v != "" {
		return v
	}
	if info.Duration <= 0 {
		return UnknownDuration
	}
	total := int(math.Round(info.Duration))
	hours, minutes, seconds := total/3600, (total%3600)/60, total%60
	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%d:%02d", minutes, seconds)
}

func hasAnyAudio(formats []ytdlp.Format) bool {
	for _, f := range formats {
		if f.HasAudio() && f.ACodec != "" {
			return true
		}
	}
	return false
}
