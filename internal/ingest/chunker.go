package ingest

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	DefaultChunkSize    = 512
	DefaultChunkOverlap = 64
)

// Chunker splits documents into overlapping word windows.
type Chunker struct {
	Size    int
	Overlap int
}

// Split returns chunk documents with ids "<doc-id>#<n>", numbered from zero.
// Blank documents produce no chunks.
func (c Chunker) Split(docs []Document) []Document {
	size, overlap := c.Size, c.Overlap
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	step := size - overlap

	var out []Document
	for _, doc := range docs {
		words := strings.Fields(doc.Text)
		n := 0
		for start := 0; start < len(words); start += step {
			end := start + size
			if end > len(words) {
				end = len(words)
			}
			meta := make(map[string]string, len(doc.Metadata)+1)
			for k, v := range doc.Metadata {
				meta[k] = v
			}
			meta["chunk"] = strconv.Itoa(n)
			out = append(out, Document{
				ID:       fmt.Sprintf("%s#%d", doc.ID, n),
				Source:   doc.Source,
				Text:     strings.Join(words[start:end], " "),
				Metadata: meta,
			})
			n++
			if end == len(words) {
				break
			}
		}
	}
	return out
}
