// Package httpapi exposes document sessions over HTTP for the reader
// frontend: document lifecycle, rendering, read-aloud control, selection,
// highlights and export.
package httpapi

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/voxread/readkit/observability"
	"github.com/voxread/readkit/ocr"
	"github.com/voxread/readkit/pdfsource"
	"github.com/voxread/readkit/session"
)

// Config holds server settings.
type Config struct {
	// DataDir is where uploaded documents are stored.
	DataDir string
	// MaxUploadBytes caps document upload size.
	MaxUploadBytes int64
	Session        session.Config

	// OCR, when set, recognizes pages that have no text layer.
	OCR          ocr.Engine
	OCRLanguages []string
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		DataDir:        "data",
		MaxUploadBytes: 100 << 20,
		Session:        session.DefaultConfig(),
	}
}

// DocumentSource is an open document file serving pages to a session.
type DocumentSource interface {
	session.PageSource
	Close() error
}

// openDoc is one live document: its source file plus the session over it.
type openDoc struct {
	id       string
	title    string
	source   DocumentSource
	session  *session.Session
	stopFeed context.CancelFunc
}

func (d *openDoc) close() {
	if d.stopFeed != nil {
		d.stopFeed()
	}
	d.session.Close()
	d.source.Close()
}

// Server owns the set of open documents.
type Server struct {
	cfg   Config
	store session.ProgressStore
	log   observability.Logger

	openSource func(path string, log observability.Logger) (DocumentSource, error)

	mu   sync.RWMutex
	docs map[string]*openDoc
}

// NewServer builds a Server. store may be nil to run without persistence.
func NewServer(cfg Config, store session.ProgressStore, log observability.Logger) (*Server, error) {
	if log == nil {
		log = observability.Default()
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &Server{
		cfg:   cfg,
		store: store,
		log:   log,
		openSource: func(path string, log observability.Logger) (DocumentSource, error) {
			var opts []pdfsource.Option
			if cfg.OCR != nil {
				opts = append(opts, pdfsource.WithOCR(cfg.OCR, cfg.OCRLanguages...))
			}
			return pdfsource.Open(path, log, opts...)
		},
		docs: make(map[string]*openDoc),
	}, nil
}

// Router builds the gin engine with all routes mounted.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(s.log))
	r.MaxMultipartMemory = s.cfg.MaxUploadBytes

	api := r.Group("/api")
	{
		api.POST("/docs", s.handleOpenDoc)
		api.GET("/docs/:id", s.handleGetDoc)
		api.DELETE("/docs/:id", s.handleCloseDoc)

		api.POST("/docs/:id/render", s.handleRender)
		api.GET("/docs/:id/exhibits", s.handleExhibits)

		api.POST("/docs/:id/reading/start", s.handleReadingStart)
		api.POST("/docs/:id/reading/pause", s.handleReadingPause)
		api.POST("/docs/:id/reading/resume", s.handleReadingResume)
		api.POST("/docs/:id/reading/stop", s.handleReadingStop)

		api.GET("/docs/:id/highlights", s.handleListHighlights)
		api.POST("/docs/:id/selection", s.handleSelection)
		api.DELETE("/docs/:id/highlights/:hid", s.handleRemoveHighlight)
		api.POST("/docs/:id/highlights/:hid/color", s.handleSetColor)
		api.POST("/docs/:id/highlights/connect", s.handleConnect)
		api.POST("/docs/:id/highlights/disconnect", s.handleDisconnect)
		api.POST("/docs/:id/highlights/undo", s.handleUndo)
		api.POST("/docs/:id/highlights/redo", s.handleRedo)

		api.GET("/docs/:id/export.html", s.handleExportHTML)
		api.GET("/docs/:id/export.pdf", s.handleExportPDF)
	}
	return r
}

// Close shuts every open document down.
func (s *Server) Close() {
	s.mu.Lock()
	docs := s.docs
	s.docs = make(map[string]*openDoc)
	s.mu.Unlock()
	for _, d := range docs {
		d.close()
	}
}

func (s *Server) doc(id string) (*openDoc, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.docs[id]
	return d, ok
}

func (s *Server) addDoc(d *openDoc) {
	s.mu.Lock()
	s.docs[d.id] = d
	s.mu.Unlock()
}

func (s *Server) removeDoc(id string) (*openDoc, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[id]
	if ok {
		delete(s.docs, id)
	}
	return d, ok
}

func (s *Server) docPath(id string) string {
	return filepath.Join(s.cfg.DataDir, id+".pdf")
}

func newDocID() string { return uuid.NewString() }
