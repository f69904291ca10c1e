package splitter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/slipmail/slipmail/internal/model"
	"github.com/slipmail/slipmail/internal/testpdf"
)

type memBlobs struct {
	mu     sync.Mutex
	data   map[string][]byte
	puts   int
	failAt int // 1-based Put call that fails; 0 = never
}

func newMemBlobs() *memBlobs {
	return &memBlobs{data: make(map[string][]byte)}
}

func (m *memBlobs) Put(_ context.Context, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	if m.failAt > 0 && m.puts == m.failAt {
		return "", errors.New("disk full")
	}
	ref := fmt.Sprintf("ref-%d", m.puts)
	m.data[ref] = append([]byte(nil), data...)
	return ref, nil
}

func (m *memBlobs) Get(_ context.Context, ref string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.data[ref]
	if !ok {
		return nil, model.ErrBlobNotFound
	}
	return d, nil
}

func newTestSplitter(t *testing.T) (*Splitter, *memBlobs) {
	t.Helper()
	blobs := newMemBlobs()
	return New(blobs, zerolog.Nop()), blobs
}

func TestSplitProducesOneArtifactPerPage(t *testing.T) {
	t.Parallel()
	s, blobs := newTestSplitter(t)

	artifacts, err := s.Split(context.Background(), "payslips.pdf", testpdf.Build(3))
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(artifacts) != 3 {
		t.Fatalf("Split returned %d artifacts, want 3", len(artifacts))
	}

	ids := make(map[string]bool)
	for i, a := range artifacts {
		if a.SequenceIndex != i+1 {
			t.Errorf("artifact %d SequenceIndex = %d, want %d", i, a.SequenceIndex, i+1)
		}
		if want := fmt.Sprintf("payslips.pdf - page %d", i+1); a.Label != want {
			t.Errorf("artifact %d Label = %q, want %q", i, a.Label, want)
		}
		if ids[a.ID] {
			t.Errorf("duplicate artifact id %s", a.ID)
		}
		ids[a.ID] = true

		page, err := blobs.Get(context.Background(), a.Location)
		if err != nil {
			t.Fatalf("artifact %d not persisted: %v", i, err)
		}
		if a.Size != int64(len(page)) {
			t.Errorf("artifact %d Size = %d, want %d", i, a.Size, len(page))
		}
		doc, err := readDocument(page)
		if err != nil {
			t.Fatalf("artifact %d is not a valid PDF: %v", i, err)
		}
		if n := doc.PageCount; n != 1 {
			t.Errorf("artifact %d has %d pages, want 1", i, n)
		}
		markers := testpdf.Markers(page)
		if len(markers) != 1 || markers[0] != fmt.Sprintf("(Page %d)", i+1) {
			t.Errorf("artifact %d markers = %v, want only (Page %d)", i, markers, i+1)
		}
	}
}

func TestSplitSamePageCountAsSource(t *testing.T) {
	t.Parallel()
	s, _ := newTestSplitter(t)

	for _, pages := range []int{1, 2, 7} {
		artifacts, err := s.Split(context.Background(), "in.pdf", testpdf.Build(pages))
		if err != nil {
			t.Fatalf("Split(%d pages): %v", pages, err)
		}
		if len(artifacts) != pages {
			t.Errorf("Split(%d pages) returned %d artifacts", pages, len(artifacts))
		}
	}
}

func TestSplitMalformedInput(t *testing.T) {
	t.Parallel()
	s, blobs := newTestSplitter(t)

	_, err := s.Split(context.Background(), "bad.pdf", []byte("this is not a pdf"))
	if !errors.Is(err, model.ErrMalformedInput) {
		t.Fatalf("Split err = %v, want ErrMalformedInput", err)
	}
	if blobs.puts != 0 {
		t.Errorf("malformed input wrote %d blobs, want 0", blobs.puts)
	}
}

func TestSplitPersistenceFailure(t *testing.T) {
	t.Parallel()
	s, blobs := newTestSplitter(t)
	blobs.failAt = 2

	artifacts, err := s.Split(context.Background(), "payslips.pdf", testpdf.Build(3))
	if !errors.Is(err, model.ErrSplitPersistence) {
		t.Fatalf("Split err = %v, want ErrSplitPersistence", err)
	}
	if artifacts != nil {
		t.Errorf("Split returned %d artifacts on failure, want none", len(artifacts))
	}
}

func TestSplitTwiceYieldsSamePageContent(t *testing.T) {
	t.Parallel()
	s, blobs := newTestSplitter(t)
	src := testpdf.Build(4)

	first, err := s.Split(context.Background(), "a.pdf", src)
	if err != nil {
		t.Fatalf("Split #1: %v", err)
	}
	second, err := s.Split(context.Background(), "a.pdf", src)
	if err != nil {
		t.Fatalf("Split #2: %v", err)
	}

	for i := range first {
		if first[i].ID == second[i].ID {
			t.Errorf("page %d reused id %s across generations", i+1, first[i].ID)
		}
		a, _ := blobs.Get(context.Background(), first[i].Location)
		b, _ := blobs.Get(context.Background(), second[i].Location)
		ma, mb := testpdf.Markers(a), testpdf.Markers(b)
		if fmt.Sprint(ma) != fmt.Sprint(mb) {
			t.Errorf("page %d content differs: %v vs %v", i+1, ma, mb)
		}
	}
}

func TestSplitDoesNotModifySource(t *testing.T) {
	t.Parallel()
	s, _ := newTestSplitter(t)
	src := testpdf.Build(2)
	orig := append([]byte(nil), src...)

	if _, err := s.Split(context.Background(), "a.pdf", src); err != nil {
		t.Fatalf("Split: %v", err)
	}
	if string(src) != string(orig) {
		t.Error("Split modified the source document")
	}
}

func TestCleanSourceName(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"":                    defaultSourceName,
		"  ":                  defaultSourceName,
		"payslips.pdf":        "payslips.pdf",
		"/tmp/up/march.pdf":   "march.pdf",
		`C:\Users\hr\may.pdf`: "may.pdf",
	}
	for in, want := range cases {
		if got := cleanSourceName(in); got != want {
			t.Errorf("cleanSourceName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSplitLargeDocument(t *testing.T) {
	t.Parallel()
	s, blobs := newTestSplitter(t)

	const pages = 300
	artifacts, err := s.Split(context.Background(), "payroll.pdf", testpdf.Build(pages))
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(artifacts) != pages {
		t.Fatalf("Split returned %d artifacts, want %d", len(artifacts), pages)
	}
	for i, a := range artifacts {
		if a.SequenceIndex != i+1 {
			t.Fatalf("artifact %d SequenceIndex = %d, want %d", i, a.SequenceIndex, i+1)
		}
	}

	for _, i := range []int{0, pages / 2, pages - 1} {
		page, err := blobs.Get(context.Background(), artifacts[i].Location)
		if err != nil {
			t.Fatalf("artifact %d not persisted: %v", i, err)
		}
		markers := testpdf.Markers(page)
		if want := fmt.Sprintf("(Page %d)", i+1); len(markers) != 1 || markers[0] != want {
			t.Errorf("artifact %d markers = %v, want only %s", i, markers, want)
		}
	}
}
