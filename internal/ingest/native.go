package ingest

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/xuri/excelize/v2"
	"golang.org/x/sync/errgroup"
)

// DefaultParallelism bounds how many files are parsed at once.
const DefaultParallelism = 4

// maxSheetCells caps the cells rendered per spreadsheet sheet.
const maxSheetCells = 5000

// binary office and image formats accepted by uploads but without a native reader.
var unsupportedExt = map[string]bool{
	".doc": true, ".xls": true, ".ppt": true, ".pptx": true,
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".bmp": true, ".tiff": true, ".webp": true,
}

// NativeParser extracts text from pdf, docx, xlsx, csv and plain-text files.
type NativeParser struct {
	Parallelism int
}

// NewNativeParser returns a parser using DefaultParallelism.
func NewNativeParser() *NativeParser {
	return &NativeParser{Parallelism: DefaultParallelism}
}

// Parse reads every path concurrently and returns documents in input order.
// The first failure cancels the remaining work.
func (p *NativeParser) Parse(ctx context.Context, paths []string) ([]Document, error) {
	limit := p.Parallelism
	if limit <= 0 {
		limit = DefaultParallelism
	}

	docs := make([]Document, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			doc, err := p.parseFile(gctx, path)
			if err != nil {
				return fmt.Errorf("%s: %w", filepath.Base(path), err)
			}
			docs[i] = doc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	assignIDs(docs)
	return docs, nil
}

func (p *NativeParser) parseFile(ctx context.Context, path string) (Document, error) {
	ext := strings.ToLower(filepath.Ext(path))
	meta := map[string]string{
		"source":    path,
		"file_name": filepath.Base(path),
	}

	var (
		text string
		err  error
	)
	switch {
	case ext == ".pdf":
		text, err = parsePDF(ctx, path, meta)
	case ext == ".docx":
		text, err = parseDocx(path, meta)
	case ext == ".xlsx":
		text, err = parseXlsx(ctx, path, meta)
	case ext == ".csv":
		text, err = parseCSV(path, meta)
	case unsupportedExt[ext]:
		return Document{}, fmt.Errorf("%w: %s", ErrUnsupported, ext)
	default:
		text, err = parseText(path, meta)
	}
	if err != nil {
		return Document{}, err
	}

	meta["word_count"] = strconv.Itoa(len(strings.Fields(text)))
	return Document{
		Source:   path,
		Text:     text,
		Metadata: meta,
	}, nil
}

func parsePDF(ctx context.Context, path string, meta map[string]string) (string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	total := reader.NumPage()
	meta["type"] = "pdf"
	meta["pages"] = strconv.Itoa(total)

	var parts []string
	for n := 1; n <= total; n++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := reader.Page(n)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("pdf page %d: %w", n, err)
		}
		if strings.TrimSpace(text) != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n\n"), nil
}

func parseDocx(path string, meta map[string]string) (string, error) {
	doc, err := docx.ReadDocxFile(path)
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}
	defer doc.Close()

	text, err := docxText(doc.Editable().GetContent())
	if err != nil {
		return "", fmt.Errorf("read docx: %w", err)
	}
	meta["type"] = "docx"
	return text, nil
}

// docxText flattens WordprocessingML into text, one line per paragraph.
func docxText(raw string) (string, error) {
	dec := xml.NewDecoder(strings.NewReader(raw))
	var (
		out    strings.Builder
		inText bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				out.WriteByte('\t')
			case "br":
				out.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				out.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				out.Write(t)
			}
		}
	}
	return strings.TrimSpace(out.String()), nil
}

func parseXlsx(ctx context.Context, path string, meta map[string]string) (string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return "", fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	meta["type"] = "xlsx"
	meta["sheets"] = strconv.Itoa(len(sheets))

	var parts []string
	for _, sheet := range sheets {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("sheet %s: %w", sheet, err)
		}

		var b strings.Builder
		fmt.Fprintf(&b, "Sheet: %s\n", sheet)
		cells := 0
	rowLoop:
		for r, row := range rows {
			for c, cell := range row {
				if cells >= maxSheetCells {
					b.WriteString("... (truncated)\n")
					break rowLoop
				}
				if v := strings.TrimSpace(cell); v != "" {
					name, err := excelize.CoordinatesToCellName(c+1, r+1)
					if err != nil {
						return "", err
					}
					fmt.Fprintf(&b, "%s: %s\n", name, v)
					cells++
				}
			}
		}
		if cells > 0 {
			parts = append(parts, strings.TrimSpace(b.String()))
		}
	}
	return strings.Join(parts, "\n\n"), nil
}

// parseCSV renders each record as "header: value" lines separated by blank lines.
func parseCSV(path string, meta map[string]string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return "", fmt.Errorf("read csv: %w", err)
	}
	meta["type"] = "csv"
	if len(records) == 0 {
		return "", nil
	}

	header := records[0]
	meta["rows"] = strconv.Itoa(len(records) - 1)
	var rows []string
	for _, rec := range records[1:] {
		var b strings.Builder
		for i, v := range rec {
			key := "column_" + strconv.Itoa(i+1)
			if i < len(header) && strings.TrimSpace(header[i]) != "" {
				key = strings.TrimSpace(header[i])
			}
			fmt.Fprintf(&b, "%s: %s\n", key, v)
		}
		rows = append(rows, strings.TrimSpace(b.String()))
	}
	return strings.Join(rows, "\n\n"), nil
}

func parseText(path string, meta map[string]string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) || bytes.IndexByte(data, 0) >= 0 {
		return "", fmt.Errorf("%w: %s is not text", ErrUnsupported, filepath.Base(path))
	}
	meta["type"] = "text"
	return string(data), nil
}

// assignIDs names documents after their file. Repeated names get a ~N
// suffix that no other input file is named.
func assignIDs(docs []Document) {
	names := make(map[string]bool, len(docs))
	for i := range docs {
		names[filepath.Base(docs[i].Source)] = true
	}
	used := make(map[string]bool, len(docs))
	for i := range docs {
		base := filepath.Base(docs[i].Source)
		id := base
		for n := 2; used[id]; n++ {
			id = fmt.Sprintf("%s~%d", base, n)
			if names[id] {
				id = base
			}
		}
		used[id] = true
		docs[i].ID = id
		docs[i].Metadata["doc_id"] = id
	}
}
