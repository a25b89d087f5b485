package ytdlp

// Info is the subset of the yt-dlp --dump-json record uniloader consumes.
type Info struct {
	ID             string   `json:"id"`
	Extractor      string   `json:"extractor"`
	ExtractorKey   string   `json:"extractor_key"`
	Title          string   `json:"title"`
	Thumbnail      string   `json:"thumbnail"`
	Duration       float64  `json:"duration"`
	DurationString string   `json:"duration_string"`
	Uploader       string   `json:"uploader"`
	Channel        string   `json:"channel"`
	WebpageURL     string   `json:"webpage_url"`
	Formats        []Format `json:"formats"`
}

// Format is one entry of Info.Formats. Codec fields hold "none" when the
// stream is absent.
type Format struct {
	FormatID       string  `json:"format_id"`
	Ext            string  `json:"ext"`
	VCodec         string  `json:"vcodec"`
	ACodec         string  `json:"acodec"`
	Height         int     `json:"height"`
	FPS            float64 `json:"fps"`
	ABR            float64 `json:"abr"`
	TBR            float64 `json:"tbr"`
	FileSize       float64 `json:"filesize"`
	FileSizeApprox float64 `json:"filesize_approx"`
}

// HasVideo reports whether the format carries a video stream.
func (f Format) HasVideo() bool {
	return f.VCodec != "none"
}

// HasAudio reports whether the format carries an audio stream.
func (f Format) HasAudio() bool {
	return f.ACodec != "none"
}
