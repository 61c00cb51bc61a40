package httpapi

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/voxread/readkit/export"
	"github.com/voxread/readkit/highlight"
	"github.com/voxread/readkit/observability"
	"github.com/voxread/readkit/selection"
	"github.com/voxread/readkit/session"
)

func (s *Server) handleOpenDoc(c *gin.Context) {
	file, err := c.FormFile("document")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing document upload"})
		return
	}
	if file.Size > s.cfg.MaxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "document too large"})
		return
	}

	id := newDocID()
	path := s.docPath(id)
	if err := c.SaveUploadedFile(file, path); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store document"})
		return
	}

	src, err := s.openSource(path, s.log)
	if err != nil {
		os.Remove(path)
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	sess, err := session.Open(c.Request.Context(), id, src, s.store, s.cfg.Session, s.log)
	if err != nil {
		src.Close()
		os.Remove(path)
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	d := &openDoc{id: id, title: filepath.Base(file.Filename), source: src, session: sess}
	if s.store != nil {
		feedCtx, cancel := context.WithCancel(context.Background())
		d.stopFeed = cancel
		if err := sess.FollowRemote(feedCtx); err != nil {
			s.log.Warn("remote feed unavailable", observability.Error("err", err))
		}
	}
	s.addDoc(d)
	s.log.Info("document opened",
		observability.String("doc", id),
		observability.Int("pages", src.PageCount()))
	c.JSON(http.StatusCreated, gin.H{
		"id":    id,
		"title": d.title,
		"pages": src.PageCount(),
	})
}

func (s *Server) handleGetDoc(c *gin.Context) {
	d, ok := s.doc(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown document"})
		return
	}
	canon := d.session.Canonical()
	c.JSON(http.StatusOK, gin.H{
		"id":     d.id,
		"title":  d.title,
		"pages":  d.source.PageCount(),
		"chars":  canon.Len(),
		"offset": d.session.Resolver.LastResolvedOffset(),
	})
}

func (s *Server) handleCloseDoc(c *gin.Context) {
	d, ok := s.removeDoc(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown document"})
		return
	}
	d.close()
	c.Status(http.StatusNoContent)
}

type renderRequest struct {
	Pages []int   `json:"pages" binding:"required"`
	Scale float64 `json:"scale"`
}

func (s *Server) handleRender(c *gin.Context) {
	d, ok := s.doc(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown document"})
		return
	}
	var req renderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Scale <= 0 {
		req.Scale = 1
	}
	if err := d.session.RenderPages(c.Request.Context(), req.Pages, req.Scale); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	gens := make(map[int]uint64, len(req.Pages))
	for _, p := range req.Pages {
		gens[p] = d.session.Coordinator.Generation(p)
	}
	c.JSON(http.StatusOK, gin.H{"generations": gens})
}

func (s *Server) handleExhibits(c *gin.Context) {
	d, ok := s.doc(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown document"})
		return
	}
	ex := d.session.Exhibits()
	if ex == nil {
		ex = []session.Exhibit{}
	}
	c.JSON(http.StatusOK, gin.H{"exhibits": ex})
}

type readingStartRequest struct {
	Offset int `json:"offset"`
}

func (s *Server) handleReadingStart(c *gin.Context) {
	d, ok := s.doc(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown document"})
		return
	}
	var req readingStartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := d.session.StartReading(c.Request.Context(), req.Offset); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusAccepted)
}

func (s *Server) handleReadingPause(c *gin.Context) {
	d, ok := s.doc(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown document"})
		return
	}
	off := d.session.PauseReading(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"offset": off})
}

func (s *Server) handleReadingResume(c *gin.Context) {
	d, ok := s.doc(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown document"})
		return
	}
	d.session.ResumeReading()
	c.Status(http.StatusAccepted)
}

func (s *Server) handleReadingStop(c *gin.Context) {
	d, ok := s.doc(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown document"})
		return
	}
	d.session.StopReading(c.Request.Context())
	c.Status(http.StatusNoContent)
}

func (s *Server) handleListHighlights(c *gin.Context) {
	d, ok := s.doc(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown document"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"highlights": d.session.Highlights.Items()})
}

type selectionRequest struct {
	Page   int               `json:"page" binding:"required"`
	Points []selection.Point `json:"points" binding:"required"`
	Color  highlight.Color   `json:"color"`
	Scale  float64           `json:"scale"`
}

// handleSelection replays a full drag gesture: the first point anchors the
// selection, the rest extend it, and the resulting highlight is stored.
func (s *Server) handleSelection(c *gin.Context) {
	d, ok := s.doc(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown document"})
		return
	}
	var req selectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Points) < 2 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at least two points required"})
		return
	}
	if !req.Color.Valid() {
		req.Color = highlight.ColorYellow
	}
	if req.Scale <= 0 {
		req.Scale = 1
	}

	drag := d.session.BeginSelection(req.Page, req.Points[0])
	for _, p := range req.Points[1:] {
		d.session.MoveSelection(drag, p)
	}
	h, created, err := d.session.FinishSelection(c.Request.Context(), drag, req.Color, req.Scale, req.Page)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !created {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"highlight": h})
}

func (s *Server) handleRemoveHighlight(c *gin.Context) {
	d, ok := s.doc(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown document"})
		return
	}
	if err := d.session.Highlights.Remove(c.Request.Context(), c.Param("hid")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

type colorRequest struct {
	Color highlight.Color `json:"color" binding:"required"`
}

func (s *Server) handleSetColor(c *gin.Context) {
	d, ok := s.doc(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown document"})
		return
	}
	var req colorRequest
	if err := c.ShouldBindJSON(&req); err != nil || !req.Color.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid color"})
		return
	}
	if err := d.session.Highlights.SetColor(c.Request.Context(), c.Param("hid"), req.Color); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

type connectRequest struct {
	From    string        `json:"from" binding:"required"`
	To      string        `json:"to" binding:"required"`
	FromDot highlight.Dot `json:"fromDot"`
	ToDot   highlight.Dot `json:"toDot"`
}

func (s *Server) handleConnect(c *gin.Context) {
	d, ok := s.doc(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown document"})
		return
	}
	var req connectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	err := d.session.Highlights.Connect(c.Request.Context(), req.From, req.To, req.FromDot, req.ToDot)
	switch {
	case errors.Is(err, highlight.ErrColorMismatch):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		c.Status(http.StatusNoContent)
	}
}

func (s *Server) handleDisconnect(c *gin.Context) {
	d, ok := s.doc(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown document"})
		return
	}
	var req connectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := d.session.Highlights.Disconnect(c.Request.Context(), req.From, req.To); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleUndo(c *gin.Context) {
	d, ok := s.doc(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown document"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"applied": d.session.Highlights.Undo(c.Request.Context())})
}

func (s *Server) handleRedo(c *gin.Context) {
	d, ok := s.doc(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown document"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"applied": d.session.Highlights.Redo(c.Request.Context())})
}

func (s *Server) exportDoc(d *openDoc) (export.Document, []export.Item) {
	w, h := d.source.Layer(1, 1)
	doc := export.Document{
		Title:      d.title,
		PageCount:  d.source.PageCount(),
		PageWidth:  w,
		PageHeight: h,
	}
	return doc, export.BuildItems(d.session.Highlights, nil)
}

func (s *Server) handleExportHTML(c *gin.Context) {
	d, ok := s.doc(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown document"})
		return
	}
	doc, items := s.exportDoc(d)
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(http.StatusOK)
	if err := export.WriteHTML(c.Writer, doc, items); err != nil {
		s.log.Error("html export failed", observability.Error("err", err))
	}
}

func (s *Server) handleExportPDF(c *gin.Context) {
	d, ok := s.doc(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown document"})
		return
	}
	doc, items := s.exportDoc(d)
	c.Header("Content-Type", "application/pdf")
	c.Header("Content-Disposition", `attachment; filename="highlights.pdf"`)
	c.Status(http.StatusOK)
	if err := export.WritePDF(c.Writer, doc, items); err != nil {
		s.log.Error("pdf export failed", observability.Error("err", err))
	}
}
