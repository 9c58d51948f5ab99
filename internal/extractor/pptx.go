package extractor

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var slideNameRe = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

const imageRelType = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/image"

// relationships mirrors the slide .rels file linking a slide to its media parts.
type relationships struct {
	XMLName xml.Name `xml:"Relationships"`
	Rels    []struct {
		ID     string `xml:"Id,attr"`
		Type   string `xml:"Type,attr"`
		Target string `xml:"Target,attr"`
	} `xml:"Relationship"`
}

// extractPptx produces, per slide in slide order: one text segment holding
// shape, table and notes text, then one image segment per picture
// relationship. Slides whose text is empty contribute no text segment.
func extractPptx(data []byte, withImages bool) ([]Segment, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, &ExtractionError{Format: FormatPPTX, Err: err}
	}

	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[f.Name] = f
	}
	if _, ok := files["ppt/presentation.xml"]; !ok {
		return nil, &ExtractionError{Format: FormatPPTX, Err: fmt.Errorf("ppt/presentation.xml not found in archive")}
	}

	var slideNrs []int
	for name := range files {
		if m := slideNameRe.FindStringSubmatch(name); m != nil {
			nr, _ := strconv.Atoi(m[1])
			slideNrs = append(slideNrs, nr)
		}
	}
	sort.Ints(slideNrs)

	var segments []Segment
	for _, nr := range slideNrs {
		slideFile := files[fmt.Sprintf("ppt/slides/slide%d.xml", nr)]

		text, err := pptxSlideText(slideFile)
		if err != nil {
			return nil, &ExtractionError{Format: FormatPPTX, Err: err}
		}

		if notesFile, ok := files[fmt.Sprintf("ppt/notesSlides/notesSlide%d.xml", nr)]; ok {
			if notes, err := pptxSlideText(notesFile); err == nil && notes != "" {
				if text != "" {
					text += "\n"
				}
				text += "Notes:\n" + notes
			}
		}

		if text != "" {
			segments = append(segments, Segment{
				Kind:   SegmentText,
				Page:   nr,
				Header: fmt.Sprintf("=== Slide %d Text ===", nr),
				Text:   text,
			})
		}

		if withImages {
			segments = append(segments, pptxSlideImages(files, nr)...)
		}
	}

	return segments, nil
}

// pptxSlideText collects every a:t text run in a slide part. Table cells
// carry their text in a:t runs too, so one walk covers shapes and tables.
func pptxSlideText(f *zip.File) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	decoder := xml.NewDecoder(rc)

	var lines []string
	var inRun bool
	var current strings.Builder

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("decode %s: %w", f.Name, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inRun = true
				current.Reset()
			}
		case xml.CharData:
			if inRun {
				current.Write(t)
			}
		case xml.EndElement:
			if t.Name.Local == "t" && inRun {
				inRun = false
				if text := strings.TrimSpace(current.String()); text != "" {
					lines = append(lines, text)
				}
			}
		}
	}

	return strings.Join(lines, "\n"), nil
}

// pptxSlideImages resolves the slide's image relationships to media parts.
func pptxSlideImages(files map[string]*zip.File, slideNr int) []Segment {
	relsFile, ok := files[fmt.Sprintf("ppt/slides/_rels/slide%d.xml.rels", slideNr)]
	if !ok {
		return nil
	}

	raw, err := readZipFile(relsFile)
	if err != nil {
		return nil
	}

	var rels relationships
	if err := xml.Unmarshal(raw, &rels); err != nil {
		return nil
	}

	var targets []string
	for _, rel := range rels.Rels {
		if rel.Type == imageRelType {
			targets = append(targets, rel.Target)
		}
	}
	sort.Strings(targets)

	var segments []Segment
	for i, target := range targets {
		// Targets are relative to ppt/slides/, e.g. "../media/image1.png".
		resolved := path.Clean(path.Join("ppt/slides", target))

		ext := strings.TrimPrefix(strings.ToLower(pathExt(resolved)), ".")
		if ext == "" {
			ext = "png"
		}
		name := fmt.Sprintf("slide_%d_img_%d.%s", slideNr, i+1, ext)

		seg := Segment{
			Kind:    SegmentImage,
			Page:    slideNr,
			Ordinal: i + 1,
			Header:  fmt.Sprintf("=== Slide %d Image ===", slideNr),
			Name:    name,
		}

		mediaFile, ok := files[resolved]
		if !ok {
			seg.Description = imagePlaceholder(name, fmt.Errorf("media part %s not found", resolved))
		} else if raw, err := readZipFile(mediaFile); err != nil {
			seg.Description = imagePlaceholder(name, err)
		} else {
			seg.Image = raw
		}
		segments = append(segments, seg)
	}

	return segments
}
