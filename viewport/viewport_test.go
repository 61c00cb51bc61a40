package viewport

import (
	"testing"

	"github.com/voxread/readkit/fragindex"
	"github.com/voxread/readkit/highlight"
)

func TestProjectScalesPerAxis(t *testing.T) {
	h := highlight.Highlight{
		Rects: []highlight.Rect{
			{X: 100, Y: 50, Width: 200, Height: 14},
			{X: 10, Y: 70, Width: 80, Height: 14},
		},
		CreationScale:       1.5,
		CreationLayerWidth:  900,
		CreationLayerHeight: 1200,
	}
	// Zoomed to exactly twice the creation size.
	got := NewProjector(OverlayStyle{}).Project(h, Layer{Width: 1800, Height: 2400})
	want := []highlight.Rect{
		{X: 200, Y: 100, Width: 400, Height: 28},
		{X: 20, Y: 140, Width: 160, Height: 28},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d rects, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("rect %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestProjectAsymmetricResize(t *testing.T) {
	h := highlight.Highlight{
		Rects:               []highlight.Rect{{X: 100, Y: 100, Width: 100, Height: 10}},
		CreationLayerWidth:  1000,
		CreationLayerHeight: 1000,
	}
	got := NewProjector(OverlayStyle{}).Project(h, Layer{Width: 500, Height: 2000})
	want := highlight.Rect{X: 50, Y: 200, Width: 50, Height: 20}
	if got[0] != want {
		t.Errorf("rect = %+v, want %+v", got[0], want)
	}
}

func TestProjectWithoutCreationGeometry(t *testing.T) {
	// Legacy records without creation layer sizes pass through untouched.
	h := highlight.Highlight{Rects: []highlight.Rect{{X: 5, Y: 6, Width: 7, Height: 8}}}
	got := NewProjector(OverlayStyle{}).Project(h, Layer{Width: 1800, Height: 2400})
	if got[0] != h.Rects[0] {
		t.Errorf("rect = %+v, want %+v unchanged", got[0], h.Rects[0])
	}
}

func TestReadingOverlay(t *testing.T) {
	style := OverlayStyle{PaddingFactor: 0.25, RadiusMin: 4, RadiusMax: 9}
	p := NewProjector(style)
	bounds := fragindex.Rect{X: 100, Y: 200, Width: 60, Height: 16}

	for i := 0; i < 50; i++ {
		o := p.ProjectReadingOverlay(bounds)
		pad := 16 * 0.25
		want := fragindex.Rect{X: 100 - pad, Y: 200 - pad, Width: 60 + 2*pad, Height: 16 + 2*pad}
		if o.Rect != want {
			t.Fatalf("overlay rect = %+v, want %+v", o.Rect, want)
		}
		if o.Radius < style.RadiusMin || o.Radius > style.RadiusMax {
			t.Fatalf("radius %v outside [%v, %v]", o.Radius, style.RadiusMin, style.RadiusMax)
		}
	}
}

func TestDefaultStyleApplied(t *testing.T) {
	p := NewProjector(OverlayStyle{})
	o := p.ProjectReadingOverlay(fragindex.Rect{Width: 40, Height: 10})
	def := DefaultOverlayStyle()
	if o.FadeOut != def.FadeOut {
		t.Errorf("FadeOut = %v, want default %v", o.FadeOut, def.FadeOut)
	}
}
