package pdftext

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/labexam-cli/internal/model"
)

const (
	pdfMagic   = "%PDF-"
	pdfEOF     = "%%EOF"
	eofWindow  = 1024
	maxFileMiB = 50
)

// ErrInvalidPDF marks files that are not well-formed PDF documents.
var ErrInvalidPDF = eris.New("pdftext: invalid pdf")

// Loader reads report files into raw documents.
type Loader struct {
	conv Converter
}

// NewLoader returns a Loader that converts PDFs with conv.
func NewLoader(conv Converter) *Loader {
	return &Loader{conv: conv}
}

// Collect expands directories into the supported files beneath them. Plain
// file arguments are kept even when their extension is unsupported so the
// caller sees an error for them.
func Collect(paths []string) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, eris.Wrapf(err, "pdftext: stat %s", p)
		}
		if !info.IsDir() {
			add(p)
			continue
		}
		var found []string
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && supported(path) {
				found = append(found, path)
			}
			return nil
		})
		if err != nil {
			return nil, eris.Wrapf(err, "pdftext: walk %s", p)
		}
		sort.Strings(found)
		for _, f := range found {
			add(f)
		}
	}
	return out, nil
}

func supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf", ".txt":
		return true
	}
	return false
}

// Load reads every path in order. A file that cannot be read or converted
// becomes a FileError and never stops the others.
func (l *Loader) Load(ctx context.Context, paths []string) ([]model.RawDocument, []model.FileError) {
	var docs []model.RawDocument
	var errs []model.FileError
	for _, p := range paths {
		doc, err := l.LoadFile(ctx, p)
		if err != nil {
			zap.L().Warn("pdftext: skipping file", zap.String("file", p), zap.Error(err))
			errs = append(errs, model.FileError{File: filepath.Base(p), Message: err.Error()})
			continue
		}
		docs = append(docs, *doc)
	}
	return docs, errs
}

// LoadFile reads one .txt or .pdf file.
func (l *Loader) LoadFile(ctx context.Context, path string) (*model.RawDocument, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, eris.Wrapf(err, "pdftext: stat %s", path)
	}
	if info.Size() > maxFileMiB<<20 {
		return nil, eris.Errorf("pdftext: %s exceeds %d MiB", filepath.Base(path), maxFileMiB)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "pdftext: read %s", path)
	}

	doc := &model.RawDocument{Filename: filepath.Base(path), ContentHash: Hash(data)}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt":
		doc.RawText = string(data)
	case ".pdf":
		if err := ValidatePDF(data); err != nil {
			return nil, eris.Wrapf(err, "pdftext: %s", doc.Filename)
		}
		if l.conv == nil {
			return nil, eris.Errorf("pdftext: no converter configured for %s", doc.Filename)
		}
		text, err := l.conv.ExtractText(ctx, path)
		if err != nil {
			return nil, err
		}
		doc.RawText = text
	default:
		return nil, eris.Errorf("pdftext: unsupported file type %q", filepath.Ext(path))
	}
	return doc, nil
}

// ValidatePDF checks the header magic and the end-of-file marker near the end.
func ValidatePDF(data []byte) error {
	if !bytes.HasPrefix(data, []byte(pdfMagic)) {
		return eris.Wrap(ErrInvalidPDF, "missing PDF header")
	}
	tail := data
	if len(tail) > eofWindow {
		tail = tail[len(tail)-eofWindow:]
	}
	if !bytes.Contains(tail, []byte(pdfEOF)) {
		return eris.Wrap(ErrInvalidPDF, "missing EOF marker")
	}
	return nil
}

// Hash returns the hex SHA-256 of data, used as the document's pdfHash.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
