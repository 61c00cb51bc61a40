// readkitd serves the reader API: document upload, text extraction,
// read-aloud control, highlighting and export over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/voxread/readkit/httpapi"
	"github.com/voxread/readkit/observability"
	"github.com/voxread/readkit/ocr/tesseract"
	"github.com/voxread/readkit/session"
	"github.com/voxread/readkit/store"
)

type options struct {
	addr     string
	dataDir  string
	storeURL string
	storeKey string
	ocrLangs string
	verbose  bool
}

func main() {
	opts := parseFlags()
	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "readkitd: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() options {
	var opts options
	flag.StringVar(&opts.addr, "addr", envOr("READKIT_ADDR", ":8480"), "listen address")
	flag.StringVar(&opts.dataDir, "data", envOr("READKIT_DATA", "data"), "document storage directory")
	flag.StringVar(&opts.storeURL, "store", os.Getenv("READKIT_STORE_URL"), "metadata store base URL (empty disables persistence)")
	flag.StringVar(&opts.storeKey, "store-key", os.Getenv("READKIT_STORE_KEY"), "metadata store API key")
	flag.StringVar(&opts.ocrLangs, "ocr", os.Getenv("READKIT_OCR"), "comma-separated OCR languages for scanned pages (empty disables OCR)")
	flag.BoolVar(&opts.verbose, "v", false, "debug logging")
	flag.Parse()
	return opts
}

func run(opts options) error {
	log := observability.Default()
	if opts.verbose {
		base := logrus.New()
		base.SetLevel(logrus.DebugLevel)
		log = observability.NewLogrusLogger(base)
	}

	var progress session.ProgressStore
	if opts.storeURL != "" {
		progress = store.NewClient(opts.storeURL,
			store.WithAPIKey(opts.storeKey),
			store.WithLogger(log))
	}

	cfg := httpapi.DefaultConfig()
	cfg.DataDir = opts.dataDir
	if opts.ocrLangs != "" {
		cfg.OCR = tesseract.New()
		cfg.OCRLanguages = strings.Split(opts.ocrLangs, ",")
	}
	srv, err := httpapi.NewServer(cfg, progress, log)
	if err != nil {
		return err
	}
	defer srv.Close()

	httpSrv := &http.Server{
		Addr:              opts.addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", observability.String("addr", opts.addr))
		errCh <- httpSrv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case sig := <-stop:
		log.Info("shutting down", observability.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
