package media

// QualityOption is one selectable rendition offered to the client.
type QualityOption struct {
	Label           string `json:"label"`
	VariantID       string `json:"variantId"`
	ApproximateSize string `json:"approximateSize"`
	Height          int    `json:"height,omitempty"`
}

// Descriptor is the normalized, platform-independent view of a media item.
type Descriptor struct {
	ID             string          `json:"id"`
	SourceURL      string          `json:"sourceUrl"`
	Platform       string          `json:"platform"`
	Title          string          `json:"title"`
	Author         string          `json:"author"`
	Duration       string          `json:"duration"`
	ThumbnailURL   string          `json:"thumbnailUrl"`
	AvailableKinds []Kind          `json:"availableKinds"`
	VideoVariants  []QualityOption `json:"videoVariants"`
	AudioVariants  []QualityOption `json:"audioVariants"`
}

// Variants returns the option list for kind.
func (d Descriptor) Variants(kind Kind) []QualityOption {
	switch kind {
	case KindVideo:
		return d.VideoVariants
	case KindAudio:
		return d.AudioVariants
	default:
		return nil
	}
}
