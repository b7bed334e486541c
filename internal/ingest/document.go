package ingest

import (
	"context"
	"errors"
)

// Document is normalized text extracted from one source file.
type Document struct {
	ID       string
	Source   string
	Text     string
	Metadata map[string]string
}

// Parser turns files on disk into normalized documents.
type Parser interface {
	Parse(ctx context.Context, paths []string) ([]Document, error)
}

// ErrUnsupported marks files whose format has no native parser.
var ErrUnsupported = errors.New("unsupported document type")
