package ocr

import (
	"context"
	"errors"
	"testing"
)

func wordAt(text string, x, y, w, h float64) Word {
	return Word{Text: text, Bounds: Region{X: x, Y: y, Width: w, Height: h}, Confidence: 0.9}
}

func TestFragmentsPixelToPointMapping(t *testing.T) {
	res := Result{
		Page: 2,
		Lines: []Line{
			{Words: []Word{
				wordAt("hola", 100, 200, 300, 40),
				wordAt("mundo", 450, 200, 350, 40),
			}},
			{Words: []Word{wordAt("abajo", 100, 400, 200, 40)}},
		},
	}
	// A 2448x3168 pixel scan of a 612x792pt page: 4 pixels per point.
	frags := Fragments(res, 2448, 3168, 612, 792)
	if len(frags) != 3 {
		t.Fatalf("got %d fragments, want 3", len(frags))
	}
	first := frags[0]
	if first.Page != 2 || first.Text != "hola" {
		t.Errorf("first fragment = page %d %q", first.Page, first.Text)
	}
	if first.X != 25 || first.Y != 50 || first.Width != 75 || first.Height != 10 {
		t.Errorf("geometry = %v/%v/%v/%v, want 25/50/75/10", first.X, first.Y, first.Width, first.Height)
	}
	if first.FontSize != first.Height {
		t.Errorf("FontSize = %v, want the scaled height %v", first.FontSize, first.Height)
	}
	if first.CanonicalOffset != -1 || first.ColumnIndex != -1 {
		t.Errorf("offsets = %d/%d, want unassigned", first.CanonicalOffset, first.ColumnIndex)
	}
}

func TestFragmentsSkipsEmptyWordsAndBadDimensions(t *testing.T) {
	res := Result{Lines: []Line{{Words: []Word{wordAt("", 0, 0, 10, 10), wordAt("ok", 0, 0, 10, 10)}}}}
	frags := Fragments(res, 100, 100, 612, 792)
	if len(frags) != 1 || frags[0].Text != "ok" {
		t.Errorf("frags = %+v, want only the non-empty word", frags)
	}
	if frags := Fragments(res, 0, 100, 612, 792); frags != nil {
		t.Errorf("zero image width produced %+v", frags)
	}
}

type fixedEngine struct {
	res Result
	err error
	in  Input
}

func (e *fixedEngine) Name() string { return "fixed" }

func (e *fixedEngine) Recognize(_ context.Context, in Input) (Result, error) {
	e.in = in
	return e.res, e.err
}

func TestRecognizePage(t *testing.T) {
	engine := &fixedEngine{res: Result{
		Page:  5,
		Lines: []Line{{Words: []Word{wordAt("scanned", 10, 10, 80, 20)}}},
	}}
	in := Input{ID: "p5", Page: 5, Format: ImageFormatPNG, Languages: []string{"eng"}}

	pt, err := RecognizePage(context.Background(), engine, in, 612, 792, 1224, 1584)
	if err != nil {
		t.Fatalf("RecognizePage: %v", err)
	}
	if pt.Page != 5 || pt.Width != 612 || pt.Height != 792 {
		t.Errorf("page text = %d %vx%v", pt.Page, pt.Width, pt.Height)
	}
	if len(pt.Fragments) != 1 || pt.Fragments[0].Text != "scanned" {
		t.Errorf("fragments = %+v", pt.Fragments)
	}
	if engine.in.ID != "p5" {
		t.Errorf("engine saw input %q", engine.in.ID)
	}

	engine.err = errors.New("tesseract exploded")
	if _, err := RecognizePage(context.Background(), engine, in, 612, 792, 1224, 1584); err == nil {
		t.Error("engine failure did not propagate")
	}
}

func TestRegionIsEmpty(t *testing.T) {
	if (Region{Width: 10, Height: 10}).IsEmpty() {
		t.Error("non-empty region reported empty")
	}
	if !(Region{Width: 0, Height: 10}).IsEmpty() {
		t.Error("zero-width region reported non-empty")
	}
}
