package media_test

import (
	"testing"

	"uniloader/internal/media"
)

func TestParseKind(t *testing.T) {
	cases := []struct {
		in      string
		want    media.Kind
		wantErr bool
	}{
		{in: "video", want: media.KindVideo},
		{in: " Audio ", want: media.KindAudio},
		{in: "gif", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tc := range cases {
		got, err := media.ParseKind(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("ParseKind(%q) expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseKind(%q) returned error: %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ParseKind(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestKindExtensionRoundTrip(t *testing.T) {
	for _, kind := range []media.Kind{media.KindVideo, media.KindAudio} {
		back, ok := media.KindForExtension("." + kind.Extension())
		if !ok || back != kind {
			t.Fatalf("KindForExtension(%q) = %q, %v", kind.Extension(), back, ok)
		}
	}
	if _, ok := media.KindForExtension("mkv"); ok {
		t.Fatal("expected mkv to be rejected")
	}
}
