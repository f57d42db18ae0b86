package bufferpool

import (
	"fmt"
	"testing"

	"lastree/lastreeerr"
	"lastree/page"
)

// memLoader is an in-memory Loader stand-in, avoiding any real file I/O
// in these unit tests.
type memLoader struct {
	pages map[page.ID]*page.Page
	reads int
}

func newMemLoader() *memLoader { return &memLoader{pages: make(map[page.ID]*page.Page)} }

func (m *memLoader) ReadPage(id page.ID) (*page.Page, error) {
	m.reads++
	if p, ok := m.pages[id]; ok {
		cp := *p
		return &cp, nil
	}
	return &page.Page{}, nil
}

func (m *memLoader) WritePage(id page.ID, p *page.Page) error {
	cp := *p
	m.pages[id] = &cp
	return nil
}

func idN(n uint32) page.ID { return page.ID{File: "t", Num: n} }

func TestFetchUnpinMarkDirtyFlush(t *testing.T) {
	loader := newMemLoader()
	bp := New(4)
	bp.SetLoader(loader)

	p, err := bp.Fetch(idN(1))
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	p[10] = 42
	if err := bp.Unpin(idN(1), true); err != nil {
		t.Fatalf("Unpin: %v", err)
	}
	if err := bp.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if loader.pages[idN(1)][10] != 42 {
		t.Errorf("flushed page missing write-back")
	}
}

func TestEvictionSkipsPinnedPages(t *testing.T) {
	loader := newMemLoader()
	bp := New(2)
	bp.SetLoader(loader)

	if _, err := bp.Fetch(idN(1)); err != nil { // stays pinned
		t.Fatalf("Fetch 1: %v", err)
	}
	if _, err := bp.Fetch(idN(2)); err != nil {
		t.Fatalf("Fetch 2: %v", err)
	}
	if err := bp.Unpin(idN(2), false); err != nil {
		t.Fatalf("Unpin 2: %v", err)
	}

	// Pool full: fetching a third page must evict id 2 (unpinned), not id 1.
	if _, err := bp.Fetch(idN(3)); err != nil {
		t.Fatalf("Fetch 3: %v", err)
	}
	if bp.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", bp.Len())
	}
	if _, ok := bp.frames[idN(1)]; !ok {
		t.Errorf("pinned page 1 was evicted")
	}
	if _, ok := bp.frames[idN(2)]; ok {
		t.Errorf("unpinned page 2 was not evicted")
	}
}

func TestAllPinnedEvictionIsFatal(t *testing.T) {
	loader := newMemLoader()
	bp := New(1)
	bp.SetLoader(loader)

	if _, err := bp.Fetch(idN(1)); err != nil {
		t.Fatalf("Fetch 1: %v", err)
	}
	_, err := bp.Fetch(idN(2))
	if err == nil {
		t.Fatalf("expected an error when no unpinned victim exists")
	}
	if !lastreeerr.IsFatal(err) {
		t.Errorf("expected a fatal error, got: %v", err)
	}
}

func TestConservationInvariant(t *testing.T) {
	loader := newMemLoader()
	capacity := 3
	bp := New(capacity)
	bp.SetLoader(loader)

	for i := uint32(0); i < 10; i++ {
		if _, err := bp.Fetch(idN(i)); err != nil {
			t.Fatalf("Fetch %d: %v", i, err)
		}
		if err := bp.Unpin(idN(i), false); err != nil {
			t.Fatalf("Unpin %d: %v", i, err)
		}
		if bp.Len() > capacity {
			t.Fatalf("resident count %d exceeds capacity %d after %s", bp.Len(), capacity, fmt.Sprintf("fetch %d", i))
		}
	}
}
