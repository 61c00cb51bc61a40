// readkit-export renders a document's stored highlights into a standalone
// HTML digest or an annotated PDF without starting the server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/voxread/readkit/export"
	"github.com/voxread/readkit/highlight"
	"github.com/voxread/readkit/observability"
	"github.com/voxread/readkit/pdfsource"
	"github.com/voxread/readkit/store"
)

type options struct {
	pdfPath  string
	docID    string
	storeURL string
	storeKey string
	format   string
	outPath  string
}

func main() {
	opts, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "readkit-export: %v\n", err)
		os.Exit(2)
	}
	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "readkit-export: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() (options, error) {
	var opts options
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: readkit-export [flags] <pdf>\n")
		flag.PrintDefaults()
	}
	flag.StringVar(&opts.docID, "doc", "", "document id in the metadata store")
	flag.StringVar(&opts.storeURL, "store", os.Getenv("READKIT_STORE_URL"), "metadata store base URL")
	flag.StringVar(&opts.storeKey, "store-key", os.Getenv("READKIT_STORE_KEY"), "metadata store API key")
	flag.StringVar(&opts.format, "format", "html", "output format: html or pdf")
	flag.StringVar(&opts.outPath, "o", "", "output path (defaults next to the document)")
	flag.Parse()

	if flag.NArg() != 1 {
		return opts, fmt.Errorf("exactly one document path required")
	}
	opts.pdfPath = flag.Arg(0)
	if opts.docID == "" || opts.storeURL == "" {
		return opts, fmt.Errorf("-doc and -store are required")
	}
	if opts.format != "html" && opts.format != "pdf" {
		return opts, fmt.Errorf("unknown format %q", opts.format)
	}
	if opts.outPath == "" {
		base := strings.TrimSuffix(opts.pdfPath, filepath.Ext(opts.pdfPath))
		opts.outPath = base + ".highlights." + opts.format
	}
	return opts, nil
}

func run(opts options) error {
	log := observability.Default()
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	src, err := pdfsource.Open(opts.pdfPath, log)
	if err != nil {
		return err
	}
	defer src.Close()

	client := store.NewClient(opts.storeURL,
		store.WithAPIKey(opts.storeKey),
		store.WithLogger(log))
	items, _, err := client.LoadHighlights(ctx, opts.docID)
	if err != nil {
		return fmt.Errorf("load highlights: %w", err)
	}

	col := highlight.NewCollection(opts.docID, nil, log)
	col.Load(items)

	w, h := src.Layer(1, 1)
	doc := export.Document{
		Title:      filepath.Base(opts.pdfPath),
		PageCount:  src.PageCount(),
		PageWidth:  w,
		PageHeight: h,
	}
	exportItems := export.BuildItems(col, nil)

	out, err := os.Create(opts.outPath)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer out.Close()

	if opts.format == "pdf" {
		err = export.WritePDF(out, doc, exportItems)
	} else {
		err = export.WriteHTML(out, doc, exportItems)
	}
	if err != nil {
		return err
	}
	fmt.Printf("wrote %s (%d highlights)\n", opts.outPath, len(items))
	return nil
}
