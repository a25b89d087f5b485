// Package metadata turns raw yt-dlp records into media.Descriptor values.
//
// Normalize is pure and holds every ranking rule: video variants are collapsed
// by label, ordered by the numeric height field, and capped; audio-only variants
// keep extractor order and are capped separately. Normalizer.Describe adds the
// subprocess call and maps tool failures onto services.ErrExtraction.
package metadata
