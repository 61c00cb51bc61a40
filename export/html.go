package export

import (
	"bytes"
	"fmt"
	"html"
	"io"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/voxread/readkit/highlight"
)

var noteRenderer = goldmark.New(goldmark.WithExtensions(extension.GFM))

var colorCSS = map[highlight.Color]string{
	highlight.ColorYellow: "#f5d547",
	highlight.ColorGreen:  "#5cb85c",
	highlight.ColorBlue:   "#5b9bd5",
}

// WriteHTML renders a standalone HTML digest of the document's highlights.
// Notes are markdown and rendered inline; snip images are embedded via their
// data URLs so the file has no external references.
func WriteHTML(w io.Writer, doc Document, items []Item) error {
	var buf bytes.Buffer
	buf.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&buf, "<title>%s</title>\n", html.EscapeString(doc.Title))
	buf.WriteString("<style>\n" + digestCSS + "</style>\n</head>\n<body>\n")
	fmt.Fprintf(&buf, "<h1>%s</h1>\n", html.EscapeString(doc.Title))
	if doc.Author != "" {
		fmt.Fprintf(&buf, "<p class=\"meta\">%s</p>\n", html.EscapeString(doc.Author))
	}

	for _, it := range items {
		h := it.Highlight
		css := colorCSS[h.Color]
		if css == "" {
			css = colorCSS[highlight.ColorYellow]
		}
		fmt.Fprintf(&buf, "<section class=\"highlight\" style=\"border-left-color:%s\">\n", css)
		fmt.Fprintf(&buf, "<p class=\"page\">p. %d</p>\n", h.Page)
		if h.IsSnip && h.Image != "" {
			fmt.Fprintf(&buf, "<img class=\"snip\" alt=\"snip from page %d\" src=%q>\n", h.Page, h.Image)
		} else {
			fmt.Fprintf(&buf, "<blockquote>%s</blockquote>\n", html.EscapeString(it.MergedText))
		}
		if it.Note != "" {
			buf.WriteString("<div class=\"note\">\n")
			if err := noteRenderer.Convert([]byte(it.Note), &buf); err != nil {
				return fmt.Errorf("render note for %s: %w", h.ID, err)
			}
			buf.WriteString("</div>\n")
		}
		buf.WriteString("</section>\n")
	}
	buf.WriteString("</body>\n</html>\n")
	_, err := w.Write(buf.Bytes())
	return err
}

const digestCSS = `body{font-family:Georgia,serif;max-width:42em;margin:2em auto;padding:0 1em;color:#222}
h1{font-size:1.6em}
.meta{color:#666;margin-top:-0.8em}
.highlight{border-left:4px solid;padding:0.2em 1em;margin:1.4em 0}
.page{color:#999;font-size:0.8em;margin:0}
blockquote{margin:0.4em 0;font-style:italic}
.note{font-size:0.92em;color:#444}
.snip{max-width:100%;border:1px solid #ddd}
`
