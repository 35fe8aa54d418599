package render

import (
	"testing"

	"github.com/park285/omok-room-server/internal/omok"
)

func TestSanitizeSVG(t *testing.T) {
	got := string(sanitizeSVG([]byte(`style="fill: #111;stroke: #222" style="stop-color: #333"`)))
	want := `style="fill:#111;stroke:#222" style="stop-color:#333"`
	if got != want {
		t.Fatalf("got %s", got)
	}
}

func TestStoneImageIsCached(t *testing.T) {
	a, err := renderStoneImage(omok.White, 20)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	b, err := renderStoneImage(omok.White, 20)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if a != b {
		t.Fatal("expected cached image")
	}
	if a.Bounds().Dx() != 20 {
		t.Fatalf("size = %d", a.Bounds().Dx())
	}
}
