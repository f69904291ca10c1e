// Package splitter turns one multi-page PDF into independent single-page PDFs.
package splitter

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	pdfmodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rs/zerolog"

	"github.com/slipmail/slipmail/internal/blobstore"
	"github.com/slipmail/slipmail/internal/model"
)

const defaultSourceName = "document.pdf"

func init() {
	// pdfcpu otherwise creates a config directory under the user's home.
	api.DisableConfigDir()
}

// Splitter splits composite PDFs and persists every page to a blob store.
type Splitter struct {
	blobs model.BlobStore
	log   zerolog.Logger
	now   func() time.Time
}

// New creates a Splitter writing pages to blobs.
func New(blobs model.BlobStore, log zerolog.Logger) *Splitter {
	return &Splitter{
		blobs: blobs,
		log:   log.With().Str("component", "splitter").Logger(),
		now:   time.Now,
	}
}

// Split produces one artifact per page of data, in page order. The source
// bytes are never modified. Nothing is registered here: callers hand the
// result to the registry only when Split succeeds.
func (s *Splitter) Split(ctx context.Context, sourceName string, data []byte) ([]model.Artifact, error) {
	sourceName = cleanSourceName(sourceName)

	doc, err := readDocument(data)
	if err != nil {
		return nil, err
	}
	pages := doc.PageCount
	if pages <= 0 {
		return nil, fmt.Errorf("%w: document has no pages", model.ErrMalformedInput)
	}

	s.log.Debug().Str("source", sourceName).Int("pages", pages).Msg("splitting document")

	created := s.now()
	artifacts := make([]model.Artifact, 0, pages)
	for i := 0; i < pages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page, err := extractPage(doc, i+1)
		if err != nil {
			return nil, fmt.Errorf("%w: page %d: %v", model.ErrMalformedInput, i+1, err)
		}

		ref, err := s.blobs.Put(ctx, page)
		if err != nil {
			return nil, fmt.Errorf("%w: page %d: %v", model.ErrSplitPersistence, i+1, err)
		}

		artifacts = append(artifacts, model.Artifact{
			ID:            uuid.NewString(),
			Label:         Label(sourceName, i+1),
			SequenceIndex: i + 1,
			Location:      ref,
			ContentHash:   blobstore.Hash(page),
			Size:          int64(len(page)),
			SourceName:    sourceName,
			CreatedAt:     created,
		})
	}

	s.log.Info().Str("source", sourceName).Int("pages", pages).Msg("document split")
	return artifacts, nil
}

// Label is the human-readable artifact name for page pageNr of sourceName.
func Label(sourceName string, pageNr int) string {
	return sourceName + " - page " + strconv.Itoa(pageNr)
}

// readDocument parses and validates data once; every page is extracted
// from the returned context.
func readDocument(data []byte) (*pdfmodel.Context, error) {
	doc, err := api.ReadValidateAndOptimize(bytes.NewReader(data), pdfmodel.NewDefaultConfiguration())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrMalformedInput, err)
	}
	return doc, nil
}

// extractPage writes a new document holding only page pageNr of doc.
func extractPage(doc *pdfmodel.Context, pageNr int) ([]byte, error) {
	page, err := pdfcpu.ExtractPages(doc, []int{pageNr}, false)
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := api.WriteContext(page, &out); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func cleanSourceName(name string) string {
	name = strings.TrimSpace(filepath.Base(strings.ReplaceAll(name, "\\", "/")))
	if name == "" || name == "." || name == "/" {
		return defaultSourceName
	}
	return name
}
