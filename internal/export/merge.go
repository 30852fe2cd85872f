package export

import (
	"bytes"
	"fmt"
	"io"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

func init() {
	// Keep pdfcpu from writing a config directory under the user's home.
	model.ConfigPath = "disable"
}

// countPages parses data as a PDF and returns its page count.
func countPages(data []byte) (n int, err error) {
	if len(data) == 0 {
		return 0, ErrEmptyInput
	}
	// The reader panics on some truncated inputs.
	defer func() {
		if r := recover(); r != nil {
			n, err = 0, fmt.Errorf("%w: %v", ErrMalformedInput, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	n = reader.NumPage()
	if n == 0 {
		return 0, fmt.Errorf("%w: no pages", ErrMalformedInput)
	}
	return n, nil
}

// mergePDFs appends every page of appendix after every page of original.
func mergePDFs(original, appendix []byte) ([]byte, error) {
	conf := model.NewDefaultConfiguration()
	conf.WriteObjectStream = false
	conf.WriteXRefStream = false

	inputs := []io.ReadSeeker{bytes.NewReader(original), bytes.NewReader(appendix)}
	var out bytes.Buffer
	if err := api.MergeRaw(inputs, &out, false, conf); err != nil {
		return nil, fmt.Errorf("merge pages: %w", err)
	}
	return out.Bytes(), nil
}
