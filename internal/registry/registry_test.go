package registry

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/slipmail/slipmail/internal/model"
)

func makeGeneration(tag string, n int) []model.Artifact {
	out := make([]model.Artifact, n)
	for i := range out {
		out[i] = model.Artifact{
			ID:            fmt.Sprintf("%s-%d", tag, i+1),
			Label:         fmt.Sprintf("%s.pdf - page %d", tag, i+1),
			SequenceIndex: i + 1,
		}
	}
	return out
}

func TestEmptyRegistry(t *testing.T) {
	t.Parallel()
	r := New()

	if r.Generation() != 0 {
		t.Errorf("Generation = %d, want 0", r.Generation())
	}
	if got := r.List(); len(got) != 0 {
		t.Errorf("List = %v, want empty", got)
	}
	if _, err := r.Get("x"); !errors.Is(err, model.ErrArtifactNotFound) {
		t.Errorf("Get err = %v, want ErrArtifactNotFound", err)
	}
}

func TestReplaceAllSwapsGeneration(t *testing.T) {
	t.Parallel()
	r := New()

	gen1, err := r.ReplaceAll(makeGeneration("a", 3))
	if err != nil {
		t.Fatalf("ReplaceAll #1: %v", err)
	}
	if _, err := r.Get("a-2"); err != nil {
		t.Fatalf("Get(a-2): %v", err)
	}

	gen2, err := r.ReplaceAll(makeGeneration("b", 2))
	if err != nil {
		t.Fatalf("ReplaceAll #2: %v", err)
	}
	if gen2 <= gen1 {
		t.Errorf("generation did not increase: %d -> %d", gen1, gen2)
	}
	if _, err := r.Get("a-2"); !errors.Is(err, model.ErrArtifactNotFound) {
		t.Errorf("old artifact still visible, err = %v", err)
	}
	list := r.List()
	if len(list) != 2 || list[0].ID != "b-1" || list[1].ID != "b-2" {
		t.Errorf("List = %+v, want b-1, b-2", list)
	}
}

func TestReplaceAllRejectsDuplicateIDs(t *testing.T) {
	t.Parallel()
	r := New()
	if _, err := r.ReplaceAll(makeGeneration("a", 2)); err != nil {
		t.Fatalf("ReplaceAll: %v", err)
	}

	bad := makeGeneration("b", 2)
	bad[1].ID = bad[0].ID
	if _, err := r.ReplaceAll(bad); err == nil {
		t.Fatal("expected error for duplicate ids")
	}
	if r.Generation() != 1 {
		t.Errorf("failed replace changed generation to %d", r.Generation())
	}
	if _, err := r.Get("a-1"); err != nil {
		t.Errorf("previous generation lost after failed replace: %v", err)
	}
}

func TestListReturnsCopy(t *testing.T) {
	t.Parallel()
	r := New()
	if _, err := r.ReplaceAll(makeGeneration("a", 1)); err != nil {
		t.Fatalf("ReplaceAll: %v", err)
	}
	list := r.List()
	list[0].Label = "mutated"
	if got, _ := r.Get("a-1"); got.Label == "mutated" {
		t.Error("List exposed internal state")
	}
}

// Readers racing with ReplaceAll must only ever see complete generations:
// every generation installed below has exactly size artifacts sharing one tag.
func TestReplaceAllIsAtomicForReaders(t *testing.T) {
	t.Parallel()
	r := New()
	const size = 25
	if _, err := r.ReplaceAll(makeGeneration("g0", size)); err != nil {
		t.Fatalf("ReplaceAll: %v", err)
	}

	stop := make(chan struct{})
	errs := make(chan error, 8)
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				list := r.List()
				if len(list) != size {
					errs <- fmt.Errorf("observed %d artifacts, want %d", len(list), size)
					return
				}
				tag := list[0].ID[:strings.LastIndex(list[0].ID, "-")]
				for i, a := range list {
					if want := fmt.Sprintf("%s-%d", tag, i+1); a.ID != want {
						errs <- fmt.Errorf("mixed generation: got %s, want %s", a.ID, want)
						return
					}
				}
			}
		}()
	}

	for g := 1; g <= 200; g++ {
		if _, err := r.ReplaceAll(makeGeneration(fmt.Sprintf("g%d", g%10), size)); err != nil {
			t.Fatalf("ReplaceAll: %v", err)
		}
	}
	close(stop)
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
