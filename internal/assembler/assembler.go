package assembler

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/mkarev/document-analysis-service/internal/describer"
	"github.com/mkarev/document-analysis-service/internal/extractor"
	"github.com/mkarev/document-analysis-service/internal/utils"
)

// ErrEmptyDocument is returned when extraction succeeds but yields no
// usable content. No analysis job may be built from empty content.
var ErrEmptyDocument = errors.New("no content could be extracted from the document")

// defaultConcurrency bounds the image-description fan-out.
const defaultConcurrency = 8

// Assembler turns raw document bytes into a single linear text
// representation: format-specific extraction, concurrent image enrichment,
// then rendering in source order.
type Assembler struct {
	describer   describer.Describer
	logger      *utils.Logger
	concurrency int
}

func New(d describer.Describer, logger *utils.Logger) *Assembler {
	return &Assembler{
		describer:   d,
		logger:      logger,
		concurrency: defaultConcurrency,
	}
}

// Assemble extracts segments, enriches image segments concurrently and
// renders the final text. Image descriptions run fanned out, but each
// worker writes only the segment slot it owns, so the rendered output
// always reflects source document order, never completion order.
func (a *Assembler) Assemble(ctx context.Context, format extractor.Format, data []byte, withImages bool) (string, error) {
	segments, err := extractor.Extract(format, data, withImages)
	if err != nil {
		return "", err
	}

	a.describeAll(ctx, segments)

	text := Render(segments)
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyDocument
	}
	return text, nil
}

// describeAll dispatches one describe call per undescribed image segment.
// Describe never fails (failures come back as placeholder strings), so the
// group always waits for every call to settle.
func (a *Assembler) describeAll(ctx context.Context, segments []Segment) {
	g := new(errgroup.Group)
	g.SetLimit(a.concurrency)

	for i := range segments {
		seg := &segments[i]
		if seg.Kind != extractor.SegmentImage || seg.Description != "" {
			continue
		}
		g.Go(func() error {
			seg.Description = a.describer.Describe(ctx, seg.Name, seg.Image)
			return nil
		})
	}

	_ = g.Wait()
}

// Segment aliases the extractor segment so callers of Render need not
// import both packages.
type Segment = extractor.Segment

// Render walks segments in their original order and emits one header block
// per segment. Text segments whose content is blank contribute nothing.
func Render(segments []Segment) string {
	var sb strings.Builder
	for _, seg := range segments {
		switch seg.Kind {
		case extractor.SegmentText:
			if strings.TrimSpace(seg.Text) == "" {
				continue
			}
			sb.WriteString("\n")
			sb.WriteString(seg.Header)
			sb.WriteString("\n")
			sb.WriteString(seg.Text)
			sb.WriteString("\n")
		case extractor.SegmentImage:
			sb.WriteString("\n")
			sb.WriteString(seg.Header)
			sb.WriteString("\n")
			sb.WriteString("Image Name: ")
			sb.WriteString(seg.Name)
			sb.WriteString("\n")
			sb.WriteString("Description: ")
			sb.WriteString(seg.Description)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}
