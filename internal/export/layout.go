package export

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"golang.org/x/text/width"
)

// A4 portrait, millimetres.
const (
	pageHeight  = 297.0
	marginLeft  = 20.0
	marginTop   = 22.0
	bottomLimit = pageHeight - 25.0

	commentIndent = 5.0
	replyIndent   = 12.0

	titleText        = "Annotations"
	continuationText = "Annotations (continued)"
	timeLayout       = "2006-01-02 15:04"
)

// Column budgets in cells: a narrow rune is one cell, an East Asian wide
// rune two. At the 9pt body size a cell is about 1.6mm.
const (
	memoCols    = 96
	excerptCols = 96
	commentCols = 96
	replyCols   = 90
)

type lineStyle int

const (
	styleTitle lineStyle = iota
	styleHeading
	styleMeta
	styleLabel
	styleBody
	styleSpacer
)

type textStyle struct {
	size   float64 // points
	height float64 // mm advanced before the line is drawn
}

var styles = map[lineStyle]textStyle{
	styleTitle:   {size: 16, height: 10},
	styleHeading: {size: 12, height: 8},
	styleMeta:    {size: 9, height: 5},
	styleLabel:   {size: 10, height: 6},
	styleBody:    {size: 9, height: 4.6},
	styleSpacer:  {size: 9, height: 5},
}

// Line is one line of appendix text, already sanitized and wrapped.
type Line struct {
	Style  lineStyle
	Indent float64
	Text   string
}

func (l Line) height() float64 {
	return styles[l.Style].height
}

// buildLines lays out every entry in order as a flat list of lines.
func buildLines(entries []Entry, san *Sanitizer, replyMarker string) []Line {
	var lines []Line
	body := func(indent float64, text string, cols int) {
		for _, w := range wrap(san.Clean(text), cols) {
			lines = append(lines, Line{Style: styleBody, Indent: indent, Text: w})
		}
	}

	for i, e := range entries {
		h := e.Highlight
		lines = append(lines,
			Line{Style: styleHeading, Text: fmt.Sprintf("Highlight %d", i+1)},
			Line{Style: styleMeta, Text: "Created by: " + san.Clean(h.CreatedBy)},
			Line{Style: styleMeta, Text: "Date: " + formatTime(h.CreatedAt)},
		)
		if strings.TrimSpace(h.Memo) != "" {
			lines = append(lines, Line{Style: styleLabel, Text: "Memo:"})
			body(commentIndent, h.Memo, memoCols)
		}
		if strings.TrimSpace(h.Text) != "" {
			lines = append(lines, Line{Style: styleLabel, Text: "Excerpt:"})
			body(commentIndent, h.Text, excerptCols)
		}
		if len(e.Threads) > 0 {
			lines = append(lines, Line{Style: styleLabel, Text: "Comments:"})
		}
		for _, t := range e.Threads {
			lines = append(lines, Line{
				Style:  styleMeta,
				Indent: commentIndent,
				Text:   fmt.Sprintf("%s (%s)", san.Clean(t.Root.Author), formatTime(t.Root.CreatedAt)),
			})
			body(commentIndent, t.Root.Text, commentCols)
			for _, r := range t.Replies {
				lines = append(lines, Line{
					Style:  styleMeta,
					Indent: replyIndent,
					Text:   fmt.Sprintf("%s %s (%s)", replyMarker, san.Clean(r.Author), formatTime(r.CreatedAt)),
				})
				body(replyIndent, r.Text, replyCols)
			}
		}
		lines = append(lines, Line{Style: styleSpacer})
	}
	return lines
}

// paginate splits lines into pages. Every page opens with the title, later
// pages with the continuation title, and a page breaks before any line that
// would cross the bottom margin.
func paginate(lines []Line) [][]Line {
	newPage := func(title string) ([]Line, float64) {
		l := Line{Style: styleTitle, Text: title}
		return []Line{l}, marginTop + l.height()
	}

	var pages [][]Line
	page, y := newPage(titleText)
	for _, l := range lines {
		if y+l.height() > bottomLimit {
			pages = append(pages, page)
			page, y = newPage(continuationText)
			if l.Style == styleSpacer {
				continue
			}
		}
		page = append(page, l)
		y += l.height()
	}
	return append(pages, page)
}

// drawPages renders the paginated lines into a standalone PDF.
func drawPages(face Face, pages [][]Line) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetCreator("marginalia", true)

	translate := func(s string) string { return s }
	if face.Embedded() {
		pdf.AddUTF8FontFromBytes(embeddedFamily, "", face.ttf)
	} else {
		translate = pdf.UnicodeTranslatorFromDescriptor("")
	}
	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("register font %s: %w", face.Source, err)
	}

	for _, page := range pages {
		pdf.AddPage()
		y := marginTop
		for _, l := range page {
			st := styles[l.Style]
			y += st.height
			if l.Text == "" {
				continue
			}
			pdf.SetFont(face.Family(), "", st.size)
			pdf.Text(marginLeft+l.Indent, y, translate(l.Text))
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("write appendix: %w", err)
	}
	return buf.Bytes(), nil
}

// wrap breaks text into lines of at most cols cells. Existing newlines are
// kept as line breaks and tabs become four spaces. Words are not respected.
func wrap(text string, cols int) []string {
	if text == "" {
		return nil
	}
	var out []string
	for _, para := range strings.Split(strings.ReplaceAll(text, "\t", "    "), "\n") {
		var cur strings.Builder
		used := 0
		for _, r := range para {
			w := cellWidth(r)
			if used+w > cols && used > 0 {
				out = append(out, cur.String())
				cur.Reset()
				used = 0
			}
			cur.WriteRune(r)
			used += w
		}
		out = append(out, cur.String())
	}
	return out
}

func cellWidth(r rune) int {
	switch width.LookupRune(r).Kind() {
	case width.EastAsianWide, width.EastAsianFullwidth:
		return 2
	}
	return 1
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(timeLayout)
}
