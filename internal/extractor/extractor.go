package extractor

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Format identifies a supported document container format.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
	FormatPPTX Format = "pptx"
)

// ErrUnsupportedFormat is returned for file extensions outside the
// supported set.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// ExtractionError indicates the byte stream could not be parsed as the
// declared format. It is never used for per-image failures, which degrade
// to placeholder descriptions instead.
type ExtractionError struct {
	Format Format
	Err    error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("failed to parse %s content: %v", e.Format, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// SegmentKind distinguishes text blocks from embedded images.
type SegmentKind string

const (
	SegmentText  SegmentKind = "text"
	SegmentImage SegmentKind = "image"
)

// Segment is one atomic unit of extracted content with its position key.
// Segments are ordered by (Page, Ordinal); text sorts before images on the
// same page. Description is filled in later by the assembler, except when
// an individual image could not be read, in which case the extractor
// pre-sets a placeholder so the document as a whole still succeeds.
type Segment struct {
	Kind        SegmentKind
	Page        int    // 1-based page/slide index; 0 for document-scoped content (DOCX)
	Ordinal     int    // 1-based intra-page image sequence; 0 for text
	Header      string // rendered block header, e.g. "=== Page 3 Text ==="
	Text        string
	Image       []byte
	Name        string // synthetic image name, e.g. "page_3_img_1.png"
	Description string
}

// Detect maps a filename to its declared format by extension.
func Detect(filename string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".pdf":
		return FormatPDF, nil
	case ".docx":
		return FormatDOCX, nil
	case ".pptx":
		return FormatPPTX, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

// Extract parses raw document bytes into an ordered segment sequence.
// Image segments are produced only when withImages is set.
func Extract(format Format, data []byte, withImages bool) ([]Segment, error) {
	switch format {
	case FormatPDF:
		return extractPDF(data, withImages)
	case FormatDOCX:
		return extractDocx(data, withImages)
	case FormatPPTX:
		return extractPptx(data, withImages)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// imagePlaceholder is the degraded description used when an embedded image
// cannot be read out of its container.
func imagePlaceholder(name string, err error) string {
	return fmt.Sprintf("Error describing image %s: %v", name, err)
}
