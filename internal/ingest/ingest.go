package ingest

import (
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

const (
	mimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	mimePPTX = "application/vnd.openxmlformats-officedocument.presentationml.presentation"
)

// allowedTypes maps a lowercase extension to the MIME type the upload must declare.
var allowedTypes = map[string]string{
	"txt":  "text/plain",
	"pdf":  "application/pdf",
	"docx": mimeDOCX,
	"pptx": mimePPTX,
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"bmp":  "image/bmp",
	"webp": "image/webp",
}

// Browsers commonly report .docx uploads as a plain zip archive.
var docxZipAliases = map[string]bool{
	"application/zip":              true,
	"application/x-zip-compressed": true,
}

// File is one uploaded attachment.
type File struct {
	Name     string
	MIMEType string
	Body     io.Reader
}

type Limits struct {
	MaxUploadBytes  int64
	MaxImageBytes   int
	MaxImageDim     int
	// decoded width*height ceiling, checked before any pixel is allocated
	MaxImagePixels  int
	MaxTextChars    int
	// uncompressed bytes read from any one zip entry of a docx/pptx
	MaxEntryBytes   int64
	JPEGQuality     int
	TruncatedMarker string
}

func DefaultLimits() Limits {
	return Limits{
		MaxUploadBytes:  20 << 20,
		MaxImageBytes:   4 << 20,
		MaxImageDim:     1024,
		MaxImagePixels:  24_000_000,
		MaxTextChars:    50000,
		MaxEntryBytes:   32 << 20,
		JPEGQuality:     85,
		TruncatedMarker: "\n\n[... content truncated ...]",
	}
}

type Ingestor struct {
	limits Limits
	logger *zap.Logger
}

func NewIngestor(limits Limits, logger *zap.Logger) *Ingestor {
	def := DefaultLimits()
	if limits.MaxUploadBytes <= 0 {
		limits.MaxUploadBytes = def.MaxUploadBytes
	}
	if limits.MaxImageBytes <= 0 {
		limits.MaxImageBytes = def.MaxImageBytes
	}
	if limits.MaxImageDim <= 0 {
		limits.MaxImageDim = def.MaxImageDim
	}
	if limits.MaxImagePixels <= 0 {
		limits.MaxImagePixels = def.MaxImagePixels
	}
	if limits.MaxTextChars <= 0 {
		limits.MaxTextChars = def.MaxTextChars
	}
	if limits.MaxEntryBytes <= 0 {
		limits.MaxEntryBytes = def.MaxEntryBytes
	}
	if limits.JPEGQuality <= 0 || limits.JPEGQuality > 100 {
		limits.JPEGQuality = def.JPEGQuality
	}
	if limits.TruncatedMarker == "" {
		limits.TruncatedMarker = def.TruncatedMarker
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingestor{limits: limits, logger: logger.Named("ingest")}
}

// CheckType validates the extension against the allow-list and the declared
// MIME type against the extension. It returns the lowercase extension.
func CheckType(name, declared string) (string, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	want, ok := allowedTypes[ext]
	if !ok {
		return "", fileErr(name, ErrUnsupportedFile, "extension %q not allowed", ext)
	}

	mt, _, err := mime.ParseMediaType(declared)
	if err != nil {
		mt = strings.ToLower(strings.TrimSpace(declared))
	}
	if mt == want {
		return ext, nil
	}
	if ext == "docx" && docxZipAliases[mt] {
		return ext, nil
	}
	return "", fileErr(name, ErrUnsupportedFile, "declared type %q does not match .%s", mt, ext)
}

// Ingest converts one file into a single model content part: inline JPEG
// data for images, provenance-wrapped text for documents.
func (in *Ingestor) Ingest(f File) (*genai.Part, error) {
	ext, err := CheckType(f.Name, f.MIMEType)
	if err != nil {
		return nil, err
	}
	if f.Body == nil {
		return nil, fileErr(f.Name, ErrExtractionFailed, "empty upload")
	}

	data, err := io.ReadAll(io.LimitReader(f.Body, in.limits.MaxUploadBytes+1))
	if err != nil {
		return nil, fileErr(f.Name, ErrExtractionFailed, "read: %v", err)
	}
	if int64(len(data)) > in.limits.MaxUploadBytes {
		return nil, fileErr(f.Name, ErrFileTooLarge, "upload exceeds %d bytes", in.limits.MaxUploadBytes)
	}

	if strings.HasPrefix(allowedTypes[ext], "image/") {
		out, err := in.normalizeImage(f.Name, data)
		if err != nil {
			return nil, err
		}
		return &genai.Part{InlineData: &genai.Blob{MIMEType: "image/jpeg", Data: out}}, nil
	}

	text, err := extractText(f.Name, ext, data, in.extractBudget())
	if err != nil {
		return nil, err
	}
	text = in.truncate(text)
	return genai.NewPartFromText(fmt.Sprintf("--- Attached file: %s ---\n%s\n--- End of file: %s ---", f.Name, text, f.Name)), nil
}

// IngestAll processes files one at a time. A failing file is replaced by a
// text part describing the failure so the turn can go on. usable counts the
// files that produced real content.
func (in *Ingestor) IngestAll(files []File) (parts []*genai.Part, usable int) {
	parts = make([]*genai.Part, 0, len(files))
	for _, f := range files {
		p, err := in.Ingest(f)
		if err != nil {
			in.logger.Warn("attachment rejected",
				zap.String("file", f.Name),
				zap.String("mime", f.MIMEType),
				zap.Error(err))
			parts = append(parts, FailurePart(f.Name, err))
			continue
		}
		parts = append(parts, p)
		usable++
	}
	return parts, usable
}

// FailurePart is the synthetic text part that stands in for a file that
// could not be ingested.
func FailurePart(name string, err error) *genai.Part {
	return genai.NewPartFromText(fmt.Sprintf("[System error: the attached file %q could not be processed: %s.]", name, reason(err)))
}

// extractBudget stops extractors one rune past the limit so truncate still
// sees that the document was cut.
func (in *Ingestor) extractBudget() budget {
	return budget{runes: in.limits.MaxTextChars + 1, entryBytes: in.limits.MaxEntryBytes}
}

func (in *Ingestor) truncate(text string) string {
	r := []rune(text)
	if len(r) <= in.limits.MaxTextChars {
		return text
	}
	return string(r[:in.limits.MaxTextChars]) + in.limits.TruncatedMarker
}
