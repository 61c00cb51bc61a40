package httpapi

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxread/readkit/doctext"
	"github.com/voxread/readkit/observability"
	"github.com/voxread/readkit/render"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type instantTask struct{ done chan error }

func newInstantTask() instantTask {
	t := instantTask{done: make(chan error, 1)}
	t.done <- nil
	return t
}

func (t instantTask) Done() <-chan error { return t.done }
func (instantTask) Cancel()              {}

// fakeDocSource serves three fixed pages of words.
type fakeDocSource struct{}

var fakePages = [][]string{
	{"hello", "world", "today"},
	{"second", "page", "words"},
	{"see", "Appendix", "B"},
}

func (fakeDocSource) pageText(page int) doctext.PageText {
	words := fakePages[page-1]
	frags := make([]doctext.Fragment, len(words))
	for i, w := range words {
		frags[i] = doctext.Fragment{
			Text: w, Page: page,
			X: float64(10 + i*60), Y: 100, Width: 50, Height: 12,
			CanonicalOffset: -1, ColumnIndex: -1,
		}
	}
	return doctext.PageText{Page: page, Width: 600, Height: 800, Fragments: frags}
}

func (f fakeDocSource) Pages(context.Context) ([]doctext.PageText, error) {
	out := make([]doctext.PageText, 3)
	for i := range out {
		out[i] = f.pageText(i + 1)
	}
	return out, nil
}

func (fakeDocSource) Render(context.Context, int, float64) (render.Task, error) {
	return newInstantTask(), nil
}

func (f fakeDocSource) TextContent(_ context.Context, page int) (doctext.PageText, error) {
	return f.pageText(page), nil
}

func (fakeDocSource) Layer(_ int, scale float64) (float64, float64) {
	return 600 * scale, 800 * scale
}

func (fakeDocSource) PageCount() int { return 3 }
func (fakeDocSource) Close() error   { return nil }

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	cfg := DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Session.ReExtractDelay = time.Hour
	srv, err := NewServer(cfg, nil, observability.NopLogger{})
	require.NoError(t, err)
	srv.openSource = func(string, observability.Logger) (DocumentSource, error) {
		return fakeDocSource{}, nil
	}
	t.Cleanup(srv.Close)
	return srv.Router()
}

func do(t *testing.T, r *gin.Engine, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := sonic.Marshal(payload)
	require.NoError(t, err)
	return do(t, r, method, path, bytes.NewReader(body), "application/json")
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), out))
}

func uploadDoc(t *testing.T, r *gin.Engine) string {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("document", "sample.pdf")
	require.NoError(t, err)
	io.WriteString(fw, "%PDF-1.4 test fixture")
	require.NoError(t, mw.Close())

	w := do(t, r, http.MethodPost, "/api/docs", &buf, mw.FormDataContentType())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		ID    string `json:"id"`
		Title string `json:"title"`
		Pages int    `json:"pages"`
	}
	decode(t, w, &resp)
	require.NotEmpty(t, resp.ID)
	assert.Equal(t, "sample.pdf", resp.Title)
	assert.Equal(t, 3, resp.Pages)
	return resp.ID
}

func renderPage(t *testing.T, r *gin.Engine, id string) {
	t.Helper()
	w := doJSON(t, r, http.MethodPost, "/api/docs/"+id+"/render", map[string]any{
		"pages": []int{1},
		"scale": 1,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func selectWords(t *testing.T, r *gin.Engine, id, color string, x0, x1 float64) map[string]any {
	t.Helper()
	w := doJSON(t, r, http.MethodPost, "/api/docs/"+id+"/selection", map[string]any{
		"page":   1,
		"color":  color,
		"points": []map[string]float64{{"X": x0, "Y": 106}, {"X": x1, "Y": 106}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp struct {
		Highlight map[string]any `json:"highlight"`
	}
	decode(t, w, &resp)
	return resp.Highlight
}

func TestOpenAndGetDoc(t *testing.T) {
	r := newTestRouter(t)
	id := uploadDoc(t, r)

	w := do(t, r, http.MethodGet, "/api/docs/"+id, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Chars int `json:"chars"`
		Pages int `json:"pages"`
	}
	decode(t, w, &resp)
	assert.Equal(t, 3, resp.Pages)
	assert.Positive(t, resp.Chars)

	w = do(t, r, http.MethodGet, "/api/docs/nope", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestExhibitsEndpoint(t *testing.T) {
	r := newTestRouter(t)
	id := uploadDoc(t, r)

	w := do(t, r, http.MethodGet, "/api/docs/"+id+"/exhibits", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Exhibits []struct {
			Label  string `json:"label"`
			Page   int    `json:"page"`
			Offset int    `json:"offset"`
		} `json:"exhibits"`
	}
	decode(t, w, &resp)
	require.Len(t, resp.Exhibits, 1)
	assert.Equal(t, "Appendix B", resp.Exhibits[0].Label)
	assert.Equal(t, 3, resp.Exhibits[0].Page)

	w = do(t, r, http.MethodGet, "/api/docs/nope/exhibits", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestOpenDocRejectsMissingUpload(t *testing.T) {
	r := newTestRouter(t)
	w := do(t, r, http.MethodPost, "/api/docs", strings.NewReader("{}"), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRenderEndpoint(t *testing.T) {
	r := newTestRouter(t)
	id := uploadDoc(t, r)

	w := doJSON(t, r, http.MethodPost, "/api/docs/"+id+"/render", map[string]any{
		"pages": []int{1, 2},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Generations map[string]uint64 `json:"generations"`
	}
	decode(t, w, &resp)
	assert.Equal(t, uint64(1), resp.Generations["1"])
	assert.Equal(t, uint64(1), resp.Generations["2"])

	w = doJSON(t, r, http.MethodPost, "/api/docs/"+id+"/render", map[string]any{"scale": 2})
	assert.Equal(t, http.StatusBadRequest, w.Code, "pages is required")
}

func TestSelectionFlow(t *testing.T) {
	r := newTestRouter(t)
	id := uploadDoc(t, r)
	renderPage(t, r, id)

	h := selectWords(t, r, id, "yellow", 15, 170)
	assert.Equal(t, "hello world today", h["text"])

	w := do(t, r, http.MethodGet, "/api/docs/"+id+"/highlights", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Highlights []map[string]any `json:"highlights"`
	}
	decode(t, w, &list)
	require.Len(t, list.Highlights, 1)

	// A one-point gesture is not a drag.
	w = doJSON(t, r, http.MethodPost, "/api/docs/"+id+"/selection", map[string]any{
		"page":   1,
		"points": []map[string]float64{{"X": 15, "Y": 106}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHighlightLifecycle(t *testing.T) {
	r := newTestRouter(t)
	id := uploadDoc(t, r)
	renderPage(t, r, id)

	first := selectWords(t, r, id, "yellow", 15, 55)["id"].(string)
	second := selectWords(t, r, id, "green", 135, 170)["id"].(string)

	// Cross-color connections are refused.
	w := doJSON(t, r, http.MethodPost, "/api/docs/"+id+"/highlights/connect", map[string]any{
		"from": first, "to": second, "fromDot": "right", "toDot": "left",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(t, r, http.MethodPost, "/api/docs/"+id+"/highlights/"+second+"/color", map[string]any{
		"color": "yellow",
	})
	require.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(t, r, http.MethodPost, "/api/docs/"+id+"/highlights/connect", map[string]any{
		"from": first, "to": second, "fromDot": "right", "toDot": "left",
	})
	require.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(t, r, http.MethodPost, "/api/docs/"+id+"/highlights/disconnect", map[string]any{
		"from": first, "to": second,
	})
	require.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, r, http.MethodDelete, "/api/docs/"+id+"/highlights/"+second, nil, "")
	require.Equal(t, http.StatusNoContent, w.Code)
	w = do(t, r, http.MethodDelete, "/api/docs/"+id+"/highlights/"+second, nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	var applied struct {
		Applied bool `json:"applied"`
	}
	w = do(t, r, http.MethodPost, "/api/docs/"+id+"/highlights/undo", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &applied)
	assert.True(t, applied.Applied)

	w = do(t, r, http.MethodPost, "/api/docs/"+id+"/highlights/redo", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &applied)
	assert.True(t, applied.Applied)
}

func TestExportEndpoints(t *testing.T) {
	r := newTestRouter(t)
	id := uploadDoc(t, r)
	renderPage(t, r, id)
	selectWords(t, r, id, "yellow", 15, 170)

	w := do(t, r, http.MethodGet, "/api/docs/"+id+"/export.html", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "hello world today")

	w = do(t, r, http.MethodGet, "/api/docs/"+id+"/export.pdf", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF")))
}

func TestCloseDoc(t *testing.T) {
	r := newTestRouter(t)
	id := uploadDoc(t, r)

	w := do(t, r, http.MethodDelete, "/api/docs/"+id, nil, "")
	require.Equal(t, http.StatusNoContent, w.Code)
	w = do(t, r, http.MethodGet, "/api/docs/"+id, nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
