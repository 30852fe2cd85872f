package export

import (
	"context"
	"log/slog"

	"marginalia/api/internal/apperr"
	"marginalia/api/internal/logging"
)

// Renderer turns original bytes plus annotation entries into the annotated
// document. It holds no per-render state.
type Renderer struct {
	face   Face
	logger *slog.Logger
}

func NewRenderer(face Face, logger *slog.Logger) *Renderer {
	return &Renderer{face: face, logger: logging.OrDefault(logger)}
}

// Render returns the original pages followed by the appendix. Unparseable
// input is a render error. With no entries the original bytes come back
// unchanged.
func (r *Renderer) Render(ctx context.Context, original []byte, entries []Entry) ([]byte, Stats, error) {
	stats := Stats{InputBytes: len(original)}
	pages, err := countPages(original)
	if err != nil {
		return nil, stats, apperr.Render("parse original document", err)
	}
	stats.OriginalPages = pages

	if len(entries) == 0 {
		stats.PassThrough = true
		stats.OutputBytes = len(original)
		return original, stats, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, stats, err
	}

	appendix, appendixPages, subs, err := r.appendix(entries)
	if err != nil {
		return nil, stats, apperr.Render("draw appendix", err)
	}
	stats.AppendixPages = appendixPages
	stats.Substitutions = subs

	if err := ctx.Err(); err != nil {
		return nil, stats, err
	}
	out, err := mergePDFs(original, appendix)
	if err != nil {
		return nil, stats, apperr.Render("merge appendix", err)
	}
	stats.OutputBytes = len(out)
	return out, stats, nil
}

// appendix draws with the resolved face, dropping to core Helvetica when the
// face cannot be embedded.
func (r *Renderer) appendix(entries []Entry) ([]byte, int, int, error) {
	data, pages, subs, err := drawAppendix(r.face, entries, r.logger)
	if err == nil || !r.face.Embedded() {
		return data, pages, subs, err
	}
	r.logger.Warn("export font could not be embedded, using core font", "source", r.face.Source, "error", err)
	return drawAppendix(CoreFace(), entries, r.logger)
}

func drawAppendix(face Face, entries []Entry, logger *slog.Logger) ([]byte, int, int, error) {
	san := NewSanitizer(face, logger)
	marker := "↳"
	if !face.Covers('↳') {
		marker = "-"
	}
	pages := paginate(buildLines(entries, san, marker))
	data, err := drawPages(face, pages)
	if err != nil {
		return nil, 0, san.Substitutions(), err
	}
	return data, len(pages), san.Substitutions(), nil
}
