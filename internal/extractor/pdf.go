package extractor

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"

	ledongthuc "github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// extractPDF produces one text segment per non-empty page and, when
// requested, one image segment per embedded raster image. Page text comes
// from ledongthuc/pdf; embedded images are pulled out with pdfcpu.
func extractPDF(data []byte, withImages bool) ([]Segment, error) {
	reader, err := ledongthuc.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, &ExtractionError{Format: FormatPDF, Err: err}
	}

	numPages := reader.NumPage()

	images := map[int][]Segment{}
	if withImages {
		images = pdfImages(data)
	}

	lastPage := numPages
	for page := range images {
		if page > lastPage {
			lastPage = page
		}
	}

	var segments []Segment
	for pageNr := 1; pageNr <= lastPage; pageNr++ {
		if pageNr <= numPages {
			page := reader.Page(pageNr)
			if !page.V.IsNull() {
				text, err := page.GetPlainText(nil)
				if err == nil && strings.TrimSpace(text) != "" {
					segments = append(segments, Segment{
						Kind:   SegmentText,
						Page:   pageNr,
						Header: fmt.Sprintf("=== Page %d Text ===", pageNr),
						Text:   strings.TrimSpace(text),
					})
				}
			}
		}
		segments = append(segments, images[pageNr]...)
	}

	return segments, nil
}

// pdfImages extracts embedded raster images keyed by page number. Any
// failure degrades to fewer (or no) image segments; image trouble never
// fails the document.
func pdfImages(data []byte) map[int][]Segment {
	conf := model.NewDefaultConfiguration()

	pageImages, err := api.ExtractImagesRaw(bytes.NewReader(data), nil, conf)
	if err != nil {
		return nil
	}

	out := make(map[int][]Segment)
	for _, byObjNr := range pageImages {
		objNrs := make([]int, 0, len(byObjNr))
		for objNr := range byObjNr {
			objNrs = append(objNrs, objNr)
		}
		sort.Ints(objNrs)

		for _, objNr := range objNrs {
			img := byObjNr[objNr]
			ordinal := len(out[img.PageNr]) + 1
			ext := img.FileType
			if ext == "" {
				ext = "png"
			}
			name := fmt.Sprintf("page_%d_img_%d.%s", img.PageNr, ordinal, ext)

			seg := Segment{
				Kind:    SegmentImage,
				Page:    img.PageNr,
				Ordinal: ordinal,
				Header:  fmt.Sprintf("=== Page %d Image ===", img.PageNr),
				Name:    name,
			}
			if raw, err := io.ReadAll(img); err != nil || len(raw) == 0 {
				seg.Description = imagePlaceholder(name, fmt.Errorf("unreadable image stream"))
			} else {
				seg.Image = raw
			}
			out[img.PageNr] = append(out[img.PageNr], seg)
		}
	}

	return out
}
