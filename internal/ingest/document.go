package ingest

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"rsc.io/pdf"
)

// budget bounds the work an extractor does on one document.
type budget struct {
	runes      int
	entryBytes int64
}

// textBuilder collects text until the rune budget is spent.
type textBuilder struct {
	b     strings.Builder
	n     int
	limit int
}

func (t *textBuilder) add(s string) {
	if t.full() {
		return
	}
	n := utf8.RuneCountInString(s)
	if t.limit > 0 && t.n+n > t.limit {
		s = string([]rune(s)[:t.limit-t.n])
		n = t.limit - t.n
	}
	t.b.WriteString(s)
	t.n += n
}

func (t *textBuilder) full() bool { return t.limit > 0 && t.n >= t.limit }

func (t *textBuilder) String() string { return t.b.String() }

func extractText(name, ext string, data []byte, bud budget) (string, error) {
	var (
		text string
		err  error
	)
	switch ext {
	case "txt":
		text = string(data)
		if !utf8.ValidString(text) {
			text = strings.ToValidUTF8(text, "")
		}
	case "pdf":
		text, err = pdfText(data, bud)
	case "docx":
		text, err = docxText(data, bud)
	case "pptx":
		text, err = pptxText(data, bud)
	default:
		return "", fileErr(name, ErrUnsupportedFile, "no extractor for .%s", ext)
	}
	if err != nil {
		return "", &FileError{File: name, Kind: ErrExtractionFailed, Err: err}
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", fileErr(name, ErrExtractionFailed, "document contains no text")
	}
	return text, nil
}

// pdfText walks every page and rebuilds lines from positioned glyph runs.
// rsc.io/pdf panics on some malformed inputs, so those are turned into errors.
func pdfText(data []byte, bud budget) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	doc, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	b := &textBuilder{limit: bud.runes}
	for i := 1; i <= doc.NumPage() && !b.full(); i++ {
		p := doc.Page(i)
		if p.V.IsNull() {
			continue
		}
		var prevY, prevEnd float64
		first := true
		for _, t := range p.Content().Text {
			if t.S == "" {
				continue
			}
			switch {
			case first:
				first = false
			case math.Abs(t.Y-prevY) > 1:
				b.add("\n")
			case t.X-prevEnd > t.FontSize*0.2:
				b.add(" ")
			}
			b.add(t.S)
			prevY, prevEnd = t.Y, t.X+t.W
		}
		b.add("\n\n")
	}
	return b.String(), nil
}

func docxText(data []byte, bud budget) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			b := &textBuilder{limit: bud.runes}
			if err := ooxmlText(f, b, bud.entryBytes); err != nil {
				return "", err
			}
			return b.String(), nil
		}
	}
	return "", errors.New("docx: word/document.xml missing")
}

func pptxText(data []byte, bud budget) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pptx: %w", err)
	}

	type slide struct {
		n int
		f *zip.File
	}
	var slides []slide
	for _, f := range zr.File {
		if !strings.HasPrefix(f.Name, "ppt/slides/slide") || !strings.HasSuffix(f.Name, ".xml") {
			continue
		}
		num := strings.TrimSuffix(strings.TrimPrefix(f.Name, "ppt/slides/slide"), ".xml")
		n, err := strconv.Atoi(num)
		if err != nil {
			continue
		}
		slides = append(slides, slide{n: n, f: f})
	}
	if len(slides) == 0 {
		return "", errors.New("pptx: no slides")
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].n < slides[j].n })

	b := &textBuilder{limit: bud.runes}
	for _, s := range slides {
		if b.full() {
			break
		}
		slideText := &textBuilder{limit: bud.runes - b.n}
		if err := ooxmlText(s.f, slideText, bud.entryBytes); err != nil {
			return "", err
		}
		text := strings.TrimSpace(slideText.String())
		if text == "" {
			continue
		}
		b.add(fmt.Sprintf("Slide %d:\n%s\n\n", s.n, text))
	}
	return b.String(), nil
}

// ooxmlText collects the character data of <w:t>/<a:t> runs into b, breaking
// lines at paragraph ends. Namespaces are ignored; only local names matter.
// Reading stops once b is full or maxBytes of the entry have been inflated;
// an entry cut short keeps the text gathered so far.
func ooxmlText(f *zip.File, b *textBuilder, maxBytes int64) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()

	lr := &io.LimitedReader{R: rc, N: maxBytes}
	dec := xml.NewDecoder(lr)
	inText := false
	for !b.full() {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			if lr.N <= 0 {
				break
			}
			return fmt.Errorf("parse %s: %w", f.Name, err)
		}
		switch el := tok.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "t":
				inText = true
			case "tab":
				b.add("\t")
			case "br":
				b.add("\n")
			}
		case xml.EndElement:
			switch el.Name.Local {
			case "t":
				inText = false
			case "p":
				b.add("\n")
			}
		case xml.CharData:
			if inText {
				b.add(string(el))
			}
		}
	}
	return nil
}
