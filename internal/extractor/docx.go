package extractor

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"
)

// extractDocx reads word/document.xml out of the ZIP container with a
// streaming token walk. Table cell text is picked up by the same walk,
// since cells contain ordinary paragraphs. DOCX has no page concept, so
// all content is document-scoped (Page 0): one text segment followed by
// one image segment per embedded media file.
func extractDocx(data []byte, withImages bool) ([]Segment, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, &ExtractionError{Format: FormatDOCX, Err: err}
	}

	var docFile *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			docFile = f
			break
		}
	}
	if docFile == nil {
		return nil, &ExtractionError{Format: FormatDOCX, Err: fmt.Errorf("word/document.xml not found in archive")}
	}

	rc, err := docFile.Open()
	if err != nil {
		return nil, &ExtractionError{Format: FormatDOCX, Err: err}
	}
	defer rc.Close()

	text, err := docxText(rc)
	if err != nil {
		return nil, &ExtractionError{Format: FormatDOCX, Err: err}
	}

	var segments []Segment
	if text != "" {
		segments = append(segments, Segment{
			Kind:   SegmentText,
			Page:   0,
			Header: "=== Document Text ===",
			Text:   text,
		})
	}

	if withImages {
		segments = append(segments, docxImages(zr)...)
	}

	return segments, nil
}

// docxText walks document.xml collecting paragraph text.
func docxText(r io.Reader) (string, error) {
	decoder := xml.NewDecoder(r)

	var paragraphs []string
	var current strings.Builder
	var inParagraph bool

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("decode document.xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "p" {
				inParagraph = true
				current.Reset()
			}
		case xml.CharData:
			if inParagraph {
				current.Write(t)
			}
		case xml.EndElement:
			if t.Name.Local == "p" && inParagraph {
				inParagraph = false
				if text := strings.TrimSpace(current.String()); text != "" {
					paragraphs = append(paragraphs, text)
				}
			}
		}
	}

	return strings.Join(paragraphs, "\n"), nil
}

// docxImages produces one image segment per file under word/media/,
// ordered by filename for a stable ordinal.
func docxImages(zr *zip.Reader) []Segment {
	var media []*zip.File
	for _, f := range zr.File {
		if strings.HasPrefix(f.Name, "word/media/") {
			media = append(media, f)
		}
	}
	sort.Slice(media, func(i, j int) bool { return media[i].Name < media[j].Name })

	var segments []Segment
	for i, f := range media {
		ext := strings.TrimPrefix(strings.ToLower(pathExt(f.Name)), ".")
		if ext == "" {
			ext = "png"
		}
		name := fmt.Sprintf("doc_img_%d.%s", i+1, ext)

		seg := Segment{
			Kind:    SegmentImage,
			Page:    0,
			Ordinal: i + 1,
			Header:  fmt.Sprintf("=== Image %s ===", name),
			Name:    name,
		}
		if raw, err := readZipFile(f); err != nil {
			seg.Description = imagePlaceholder(name, err)
		} else {
			seg.Image = raw
		}
		segments = append(segments, seg)
	}

	return segments
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func pathExt(name string) string {
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		return name[idx:]
	}
	return ""
}
