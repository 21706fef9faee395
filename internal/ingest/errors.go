package ingest

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupportedFile  = errors.New("unsupported file")
	ErrFileTooLarge     = errors.New("file too large")
	ErrExtractionFailed = errors.New("extraction failed")
)

// FileError ties an ingestion failure to the file that caused it.
// errors.Is matches both the kind and the underlying cause.
type FileError struct {
	File string
	Kind error
	Err  error
}

func (e *FileError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.File, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.File, e.Kind, e.Err)
}

func (e *FileError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func fileErr(name string, kind error, format string, args ...any) *FileError {
	var cause error
	if format != "" {
		cause = fmt.Errorf(format, args...)
	}
	return &FileError{File: name, Kind: kind, Err: cause}
}

// reason renders the failure in words a learner can act on.
func reason(err error) string {
	switch {
	case errors.Is(err, ErrUnsupportedFile):
		return "this file type is not supported; use txt, pdf, docx, pptx, jpg, png, gif, bmp or webp"
	case errors.Is(err, ErrFileTooLarge):
		return "the file is too large"
	case errors.Is(err, ErrExtractionFailed):
		return "no readable text could be extracted"
	default:
		return "an unexpected error occurred"
	}
}
