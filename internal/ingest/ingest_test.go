package ingest

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestIngestor(mod func(*Limits)) *Ingestor {
	l := DefaultLimits()
	if mod != nil {
		mod(&l)
	}
	return NewIngestor(l, zap.NewNop())
}

func TestCheckType_AllowListMatrix(t *testing.T) {
	declared := []string{}
	for _, m := range allowedTypes {
		declared = append(declared, m)
	}
	declared = append(declared, "application/zip", "application/x-zip-compressed", "application/octet-stream", "text/html")

	for ext, want := range allowedTypes {
		for _, mt := range declared {
			_, err := CheckType("file."+ext, mt)
			ok := mt == want || (ext == "docx" && docxZipAliases[mt])
			if ok {
				assert.NoError(t, err, "ext=%s mime=%s", ext, mt)
			} else {
				assert.ErrorIs(t, err, ErrUnsupportedFile, "ext=%s mime=%s", ext, mt)
			}
		}
	}
}

func TestCheckType_EdgeCases(t *testing.T) {
	_, err := CheckType("notes.TXT", "text/plain; charset=utf-8")
	assert.NoError(t, err)

	_, err = CheckType("archive.zip", "application/zip")
	assert.ErrorIs(t, err, ErrUnsupportedFile)

	_, err = CheckType("noext", "text/plain")
	assert.ErrorIs(t, err, ErrUnsupportedFile)

	_, err = CheckType("slides.pptx", "application/zip")
	assert.ErrorIs(t, err, ErrUnsupportedFile)
}

func pngBytes(t *testing.T, w, h int, fill color.Color) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, fill)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestIngest_ImageResizedToBoundingBox(t *testing.T) {
	in := newTestIngestor(func(l *Limits) { l.MaxImageDim = 64 })
	data := pngBytes(t, 200, 100, color.NRGBA{R: 200, A: 255})

	part, err := in.Ingest(File{Name: "wide.png", MIMEType: "image/png", Body: bytes.NewReader(data)})
	require.NoError(t, err)
	require.NotNil(t, part.InlineData)
	assert.Equal(t, "image/jpeg", part.InlineData.MIMEType)
	assert.LessOrEqual(t, len(part.InlineData.Data), in.limits.MaxImageBytes)

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(part.InlineData.Data))
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.Width)
	assert.Equal(t, 32, cfg.Height)
}

func TestIngest_TransparencyFlattenedOntoWhite(t *testing.T) {
	in := newTestIngestor(nil)
	data := pngBytes(t, 8, 8, color.NRGBA{})

	part, err := in.Ingest(File{Name: "clear.png", MIMEType: "image/png", Body: bytes.NewReader(data)})
	require.NoError(t, err)

	img, err := jpeg.Decode(bytes.NewReader(part.InlineData.Data))
	require.NoError(t, err)
	r, g, b, _ := img.At(4, 4).RGBA()
	assert.Greater(t, r>>8, uint32(240))
	assert.Greater(t, g>>8, uint32(240))
	assert.Greater(t, b>>8, uint32(240))
}

func TestIngest_ImageOverCeilingFails(t *testing.T) {
	in := newTestIngestor(func(l *Limits) { l.MaxImageBytes = 64 })
	data := pngBytes(t, 32, 32, color.NRGBA{G: 120, A: 255})

	part, err := in.Ingest(File{Name: "big.png", MIMEType: "image/png", Body: bytes.NewReader(data)})
	assert.Nil(t, part)
	assert.ErrorIs(t, err, ErrFileTooLarge)

	var fe *FileError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "big.png", fe.File)
}

func TestIngest_UploadLimit(t *testing.T) {
	in := newTestIngestor(func(l *Limits) { l.MaxUploadBytes = 10 })
	_, err := in.Ingest(File{Name: "a.txt", MIMEType: "text/plain", Body: strings.NewReader("more than ten bytes")})
	assert.ErrorIs(t, err, ErrFileTooLarge)
}

func TestIngest_CorruptImage(t *testing.T) {
	in := newTestIngestor(nil)
	_, err := in.Ingest(File{Name: "x.jpg", MIMEType: "image/jpeg", Body: strings.NewReader("not a jpeg")})
	assert.ErrorIs(t, err, ErrExtractionFailed)
}

func TestIngest_TextWrappedAndTruncated(t *testing.T) {
	in := newTestIngestor(func(l *Limits) { l.MaxTextChars = 5 })
	part, err := in.Ingest(File{Name: "notes.txt", MIMEType: "text/plain", Body: strings.NewReader("héllo world")})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(part.Text, "--- Attached file: notes.txt ---\n"))
	assert.Contains(t, part.Text, "héllo"+in.limits.TruncatedMarker)
	assert.NotContains(t, part.Text, "world")
}

func TestIngest_EmptyTextFails(t *testing.T) {
	in := newTestIngestor(nil)
	_, err := in.Ingest(File{Name: "blank.txt", MIMEType: "text/plain", Body: strings.NewReader("  \n\t ")})
	assert.ErrorIs(t, err, ErrExtractionFailed)
}

func TestIngest_CorruptPDF(t *testing.T) {
	in := newTestIngestor(nil)
	_, err := in.Ingest(File{Name: "broken.pdf", MIMEType: "application/pdf", Body: strings.NewReader("%PDF-1.4 garbage")})
	assert.ErrorIs(t, err, ErrExtractionFailed)
}

func zipBytes(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestIngest_DOCX(t *testing.T) {
	doc := `<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>
<w:p><w:r><w:t>Photosynthesis</w:t></w:r></w:p>
<w:p><w:r><w:t>converts light</w:t></w:r><w:r><w:tab/><w:t>to energy</w:t></w:r></w:p>
</w:body></w:document>`
	data := zipBytes(t, map[string]string{"word/document.xml": doc})

	in := newTestIngestor(nil)
	part, err := in.Ingest(File{Name: "bio.docx", MIMEType: "application/zip", Body: bytes.NewReader(data)})
	require.NoError(t, err)
	assert.Contains(t, part.Text, "Photosynthesis\n")
	assert.Contains(t, part.Text, "converts light\tto energy")
}

func TestIngest_PPTXSlidesInOrder(t *testing.T) {
	slide := func(s string) string {
		return `<p:sld xmlns:p="p" xmlns:a="a"><p:cSld><p:spTree><p:sp><p:txBody><a:p><a:r><a:t>` + s + `</a:t></a:r></a:p></p:txBody></p:sp></p:spTree></p:cSld></p:sld>`
	}
	data := zipBytes(t, map[string]string{
		"ppt/slides/slide10.xml": slide("ten"),
		"ppt/slides/slide2.xml":  slide("two"),
		"ppt/slides/_rels/x.xml": "<x/>",
	})

	in := newTestIngestor(nil)
	part, err := in.Ingest(File{Name: "deck.pptx", MIMEType: mimePPTX, Body: bytes.NewReader(data)})
	require.NoError(t, err)
	assert.Less(t, strings.Index(part.Text, "Slide 2:\ntwo"), strings.Index(part.Text, "Slide 10:\nten"))
}

func TestIngestAll_IsolatesFailures(t *testing.T) {
	in := newTestIngestor(nil)
	parts, usable := in.IngestAll([]File{
		{Name: "broken.pdf", MIMEType: "application/pdf", Body: strings.NewReader("nope")},
		{Name: "notes.txt", MIMEType: "text/plain", Body: strings.NewReader("cell biology")},
		{Name: "virus.exe", MIMEType: "application/octet-stream", Body: strings.NewReader("MZ")},
	})

	require.Len(t, parts, 3)
	assert.Equal(t, 1, usable)
	assert.Contains(t, parts[0].Text, `"broken.pdf"`)
	assert.Contains(t, parts[0].Text, "System error")
	assert.Contains(t, parts[1].Text, "cell biology")
	assert.Contains(t, parts[2].Text, "not supported")
}

func TestFitWithin(t *testing.T) {
	w, h := fitWithin(4000, 3000, 1024)
	assert.Equal(t, 1024, w)
	assert.Equal(t, 768, h)

	w, h = fitWithin(500, 400, 1024)
	assert.Equal(t, 500, w)
	assert.Equal(t, 400, h)

	w, h = fitWithin(5000, 2, 1024)
	assert.Equal(t, 1024, w)
	assert.Equal(t, 1, h)
}

// hugePNGHeader is a valid 1x1 PNG whose header claims w x h pixels.
func hugePNGHeader(t *testing.T, w, h uint32) []byte {
	t.Helper()
	data := pngBytes(t, 1, 1, color.White)
	binary.BigEndian.PutUint32(data[16:], w)
	binary.BigEndian.PutUint32(data[20:], h)
	binary.BigEndian.PutUint32(data[29:], crc32.ChecksumIEEE(data[12:29]))
	return data
}

func TestIngest_ImagePixelBudgetCheckedBeforeDecode(t *testing.T) {
	in := newTestIngestor(nil)
	data := hugePNGHeader(t, 12000, 12000)

	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, 12000, cfg.Width)

	_, err = in.Ingest(File{Name: "bomb.png", MIMEType: "image/png", Body: bytes.NewReader(data)})
	assert.ErrorIs(t, err, ErrFileTooLarge)

	small := newTestIngestor(func(l *Limits) { l.MaxImagePixels = 100 })
	_, err = small.Ingest(File{Name: "tile.png", MIMEType: "image/png", Body: bytes.NewReader(pngBytes(t, 20, 20, color.White))})
	assert.ErrorIs(t, err, ErrFileTooLarge)
}

func TestIngest_DOCXStopsAtTextBudget(t *testing.T) {
	var doc strings.Builder
	doc.WriteString(`<w:document xmlns:w="w"><w:body>`)
	for i := 0; i < 20000; i++ {
		doc.WriteString(`<w:p><w:r><w:t>abcdefghij</w:t></w:r></w:p>`)
	}
	doc.WriteString(`</w:body></w:document>`)
	data := zipBytes(t, map[string]string{"word/document.xml": doc.String()})

	in := newTestIngestor(func(l *Limits) { l.MaxTextChars = 25 })
	part, err := in.Ingest(File{Name: "long.docx", MIMEType: mimeDOCX, Body: bytes.NewReader(data)})
	require.NoError(t, err)
	assert.Contains(t, part.Text, "abcdefghij\nabcdefghij\nabc"+in.limits.TruncatedMarker)
	assert.Less(t, len(part.Text), 200)
}

func TestIngest_DOCXEntryCutShortKeepsText(t *testing.T) {
	var doc strings.Builder
	doc.WriteString(`<w:document xmlns:w="w"><w:body><w:p><w:r><w:t>first</w:t></w:r></w:p>`)
	doc.WriteString(`<w:p><w:r><w:t>` + strings.Repeat("z", 4096) + `</w:t></w:r></w:p></w:body></w:document>`)
	data := zipBytes(t, map[string]string{"word/document.xml": doc.String()})

	in := newTestIngestor(func(l *Limits) { l.MaxEntryBytes = 1024 })
	part, err := in.Ingest(File{Name: "cut.docx", MIMEType: mimeDOCX, Body: bytes.NewReader(data)})
	require.NoError(t, err)
	assert.Contains(t, part.Text, "first\n")
	assert.Less(t, strings.Count(part.Text, "z"), 1024)
}
