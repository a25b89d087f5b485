package testsupport

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// SampleInfoJSON is a trimmed yt-dlp --dump-json record.
const SampleInfoJSON = `{
  "id": "dQw4w9WgXcQ",
  "extractor": "youtube",
  "extractor_key": "Youtube",
  "title": "Sample Clip",
  "thumbnail": "https://i.ytimg.com/vi/dQw4w9WgXcQ/maxresdefault.jpg",
  "duration": 213,
  "duration_string": "3:33",
  "uploader": "Sample Uploader",
  "channel": "Sample Channel",
  "webpage_url": "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
  "formats": [
    {"format_id": "140", "ext": "m4a", "vcodec": "none", "acodec": "mp4a.40.2", "abr": 129.478, "filesize": 3449447},
    {"format_id": "251", "ext": "webm", "vcodec": "none", "acodec": "opus", "abr": 135.8},
    {"format_id": "160", "ext": "mp4", "vcodec": "avc1.4d400c", "acodec": "none", "height": 144, "fps": 25, "filesize": 1200000},
    {"format_id": "137", "ext": "mp4", "vcodec": "avc1.640028", "acodec": "none", "height": 1080, "fps": 25, "filesize": 82000000},
    {"format_id": "248", "ext": "webm", "vcodec": "vp9", "acodec": "none", "height": 1080, "fps": 25, "filesize_approx": 61000000},
    {"format_id": "18", "ext": "mp4", "vcodec": "avc1.42001E", "acodec": "mp4a.40.2", "height": 360, "fps": 25}
  ]
}`

// fakeYtDlpTemplate mimics the two yt-dlp modes uniloader uses. URLs
// containing "fail" exit non-zero, "unavailable" reports a rejected format,
// and "slow" sleeps before writing output.
const fakeYtDlpTemplate = `#!/bin/sh
if [ "$1" = "--version" ]; then
  echo "2026.03.01"
  exit 0
fi
out=""
audio=0
dump=0
prev=""
url=""
for arg in "$@"; do
  if [ "$prev" = "-o" ]; then out="$arg"; fi
  if [ "$arg" = "-x" ]; then audio=1; fi
  if [ "$arg" = "--dump-json" ]; then dump=1; fi
  prev="$arg"
  url="$arg"
done
case "$url" in
  *fail*) echo "ERROR: [generic] Unable to process $url" >&2; exit 1 ;;
  *unavailable*) echo "ERROR: [youtube] x: Requested format is not available" >&2; exit 1 ;;
  *slow*) sleep 5 ;;
esac
if [ "$dump" = 1 ]; then
  cat %q
  exit 0
fi
ext=mp4
if [ "$audio" = 1 ]; then ext=mp3; fi
target=$(printf '%%s' "$out" | sed "s/%%(ext)s/$ext/")
printf 'stub media payload' > "$target"
`

// FakeYtDlp writes fixture into dir and returns a yt-dlp stub script that
// prints it for --dump-json and writes a small output file otherwise.
func FakeYtDlp(t testing.TB, dir, fixture string) string {
	t.Helper()
	fixturePath := filepath.Join(dir, "yt-dlp-fixture.json")
	if err := os.WriteFile(fixturePath, []byte(fixture), 0o644); err != nil {
		t.Fatalf("write yt-dlp fixture: %v", err)
	}
	return fmt.Sprintf(fakeYtDlpTemplate, fixturePath)
}
