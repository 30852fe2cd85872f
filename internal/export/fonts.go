package export

import (
	"log/slog"
	"os"

	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font/gofont/goregular"

	"marginalia/api/internal/logging"
)

const (
	builtinSource = "builtin:goregular"
	coreSource    = "core:helvetica"

	// Family name the embedded font is registered under in the appendix.
	embeddedFamily = "appendix"
	coreFamily     = "Helvetica"
)

// Face is a resolved appendix font. It is immutable once returned, so one
// value can back any number of concurrent renders.
type Face struct {
	Source string
	ttf    []byte
	font   *truetype.Font
}

// Embedded reports whether the face carries TrueType bytes to embed. The
// alternative is the PDF core Helvetica, which needs no embedding.
func (f Face) Embedded() bool {
	return f.font != nil
}

// Family is the font family name to select when drawing with this face.
func (f Face) Family() string {
	if f.Embedded() {
		return embeddedFamily
	}
	return coreFamily
}

// Covers reports whether the face has a glyph for r.
func (f Face) Covers(r rune) bool {
	if f.font != nil {
		return f.font.Index(r) != 0
	}
	// Core fonts are drawn through the cp1252 translator.
	return (r >= 0x20 && r <= 0x7e) || (r >= 0xa0 && r <= 0xff)
}

// CoreFace is the last resort: Latin-1 only, always available.
func CoreFace() Face {
	return Face{Source: coreSource}
}

// BuiltinFace parses the Go Regular font shipped with x/image.
func BuiltinFace() (Face, error) {
	return parseFace(builtinSource, goregular.TTF)
}

func parseFace(source string, data []byte) (Face, error) {
	f, err := truetype.Parse(data)
	if err != nil {
		return Face{}, err
	}
	return Face{Source: source, ttf: data, font: f}, nil
}

// FontResolver walks an ordered candidate list and returns the first font
// that loads.
type FontResolver struct {
	paths    []string
	readFile func(string) ([]byte, error)
	logger   *slog.Logger
}

func NewFontResolver(paths []string, logger *slog.Logger) *FontResolver {
	return &FontResolver{
		paths:    append([]string(nil), paths...),
		readFile: os.ReadFile,
		logger:   logging.OrDefault(logger),
	}
}

// Resolve never fails: candidates fall back to the built-in Go font, and
// that to core Helvetica.
func (r *FontResolver) Resolve() Face {
	for _, path := range r.paths {
		data, err := r.readFile(path)
		if err != nil {
			r.logger.Warn("font candidate unavailable", "path", path, "error", err)
			continue
		}
		face, err := parseFace(path, data)
		if err != nil {
			r.logger.Warn("font candidate unusable", "path", path, "error", err)
			continue
		}
		r.logger.Info("export font selected", "source", face.Source)
		return face
	}

	face, err := BuiltinFace()
	if err != nil {
		r.logger.Warn("builtin font unusable, non-latin text will be replaced", "error", err)
		return CoreFace()
	}
	r.logger.Info("export font selected", "source", face.Source)
	return face
}
