package extractor

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"
)

// pptxSlide describes one slide of a generated test deck.
type pptxSlide struct {
	texts  []string
	notes  string
	images map[string][]byte // media filename -> bytes
}

// buildPptx assembles a minimal valid PPTX archive in memory.
func buildPptx(t *testing.T, slides []pptxSlide) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	write := func(name string, content []byte) {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("failed to create %s: %v", name, err)
		}
		if _, err := w.Write(content); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}

	write("ppt/presentation.xml", []byte(`<p:presentation xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main"/>`))

	for i, slide := range slides {
		nr := i + 1

		var sb strings.Builder
		sb.WriteString(`<p:sld xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main" xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main"><p:cSld><p:spTree>`)
		for _, text := range slide.texts {
			sb.WriteString(`<p:sp><p:txBody><a:p><a:r><a:t>`)
			sb.WriteString(text)
			sb.WriteString(`</a:t></a:r></a:p></p:txBody></p:sp>`)
		}
		sb.WriteString(`</p:spTree></p:cSld></p:sld>`)
		write(fmt.Sprintf("ppt/slides/slide%d.xml", nr), []byte(sb.String()))

		if slide.notes != "" {
			notes := `<p:notes xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main" xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main"><p:cSld><p:spTree><p:sp><p:txBody><a:p><a:r><a:t>` + slide.notes + `</a:t></a:r></a:p></p:txBody></p:sp></p:spTree></p:cSld></p:notes>`
			write(fmt.Sprintf("ppt/notesSlides/notesSlide%d.xml", nr), []byte(notes))
		}

		if len(slide.images) > 0 {
			var rels strings.Builder
			rels.WriteString(`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">`)
			relNr := 1
			for mediaName, mediaBytes := range slide.images {
				rels.WriteString(fmt.Sprintf(
					`<Relationship Id="rId%d" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/image" Target="../media/%s"/>`,
					relNr, mediaName))
				relNr++
				write("ppt/media/"+mediaName, mediaBytes)
			}
			rels.WriteString(`</Relationships>`)
			write(fmt.Sprintf("ppt/slides/_rels/slide%d.xml.rels", nr), []byte(rels.String()))
		}
	}

	if err := zw.Close(); err != nil {
		t.Fatalf("failed to close zip: %v", err)
	}
	return buf.Bytes()
}

func TestExtractPptxSkipsEmptySlides(t *testing.T) {
	// Text on slides 1 and 3 only; slide 2 is blank and must be absent.
	data := buildPptx(t, []pptxSlide{
		{texts: []string{"Intro"}},
		{},
		{texts: []string{"Conclusion"}},
	})

	segments, err := Extract(FormatPPTX, data, true)
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}

	if len(segments) != 2 {
		t.Fatalf("got %d segments, want 2: %+v", len(segments), segments)
	}
	if segments[0].Page != 1 || segments[0].Text != "Intro" {
		t.Errorf("first segment = %+v", segments[0])
	}
	if segments[1].Page != 3 || segments[1].Text != "Conclusion" {
		t.Errorf("second segment = %+v", segments[1])
	}
	if segments[0].Header != "=== Slide 1 Text ===" {
		t.Errorf("header = %q", segments[0].Header)
	}
}

func TestExtractPptxNotes(t *testing.T) {
	data := buildPptx(t, []pptxSlide{
		{texts: []string{"Slide body"}, notes: "Speaker notes"},
	})

	segments, err := Extract(FormatPPTX, data, false)
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	if len(segments) != 1 {
		t.Fatalf("got %d segments, want 1", len(segments))
	}
	want := "Slide body\nNotes:\nSpeaker notes"
	if segments[0].Text != want {
		t.Errorf("segment text = %q, want %q", segments[0].Text, want)
	}
}

func TestExtractPptxWithImages(t *testing.T) {
	imgBytes := []byte{0x89, 'P', 'N', 'G'}
	data := buildPptx(t, []pptxSlide{
		{texts: []string{"Title slide"}},
		{texts: []string{"Picture slide"}, images: map[string][]byte{"image1.png": imgBytes}},
	})

	segments, err := Extract(FormatPPTX, data, true)
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}

	if len(segments) != 3 {
		t.Fatalf("got %d segments, want 3", len(segments))
	}
	img := segments[2]
	if img.Kind != SegmentImage || img.Page != 2 || img.Ordinal != 1 {
		t.Fatalf("image segment = %+v", img)
	}
	if img.Name != "slide_2_img_1.png" {
		t.Errorf("image name = %q", img.Name)
	}
	if !bytes.Equal(img.Image, imgBytes) {
		t.Errorf("image bytes do not match source media")
	}

	// Image segments follow the slide's text segment in source order.
	if segments[1].Kind != SegmentText || segments[1].Page != 2 {
		t.Errorf("segment before image = %+v", segments[1])
	}
}

func TestExtractPptxMissingMediaPartDegrades(t *testing.T) {
	// A rels entry pointing at a media part that does not exist must yield
	// a placeholder description, not an error.
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	files := map[string]string{
		"ppt/presentation.xml": `<p:presentation xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main"/>`,
		"ppt/slides/slide1.xml": `<p:sld xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main" xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main"><p:cSld><p:spTree><p:sp><p:txBody><a:p><a:r><a:t>Text</a:t></a:r></a:p></p:txBody></p:sp></p:spTree></p:cSld></p:sld>`,
		"ppt/slides/_rels/slide1.xml.rels": `<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"><Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/image" Target="../media/missing.png"/></Relationships>`,
	}
	for name, content := range files {
		w, _ := zw.Create(name)
		w.Write([]byte(content))
	}
	zw.Close()

	segments, err := Extract(FormatPPTX, buf.Bytes(), true)
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	if len(segments) != 2 {
		t.Fatalf("got %d segments, want 2", len(segments))
	}
	img := segments[1]
	if !strings.Contains(img.Description, "Error describing image") {
		t.Errorf("expected placeholder description, got %q", img.Description)
	}
}

func TestExtractPptxNotAPresentation(t *testing.T) {
	// A valid zip that is not a PPTX (e.g. a renamed DOCX).
	data := buildDocx(t, []string{"Hello"}, nil)

	_, err := Extract(FormatPPTX, data, false)
	var extErr *ExtractionError
	if !errors.As(err, &extErr) {
		t.Fatalf("error = %v, want *ExtractionError", err)
	}
}
