// Package bufferpool implements the fixed-capacity, pinned, LRU-evicted
// page cache shared by every tree coordinator in this module.
package bufferpool

import (
	"fmt"
	"log"
	"sync"

	"github.com/dustin/go-humanize"

	"lastree/lastreeerr"
	"lastree/page"
)

// Loader fetches and persists pages by ID on a cache miss or eviction. A
// database.Database's registered FileStores satisfy this interface.
type Loader interface {
	ReadPage(id page.ID) (*page.Page, error)
	WritePage(id page.ID, p *page.Page) error
}

type frame struct {
	page     *page.Page
	pinCount int
	dirty    bool
}

// BufferPool caches up to Capacity pages across every open index,
// enforcing the conservation invariant: every resident page is either in
// frames or counted toward free capacity, never both, and a page with a
// nonzero pin count is never chosen as an eviction victim.
type BufferPool struct {
	mu       sync.Mutex
	frames   map[page.ID]*frame
	order    []page.ID // least-recently-used first
	capacity int
	loader   Loader
}

// New creates a buffer pool with the given fixed capacity (POOL_SIZE in
// spec terms). SetLoader must be called before Fetch is used.
func New(capacity int) *BufferPool {
	return &BufferPool{
		frames:   make(map[page.ID]*frame, capacity),
		order:    make([]page.ID, 0, capacity),
		capacity: capacity,
	}
}

// SetLoader wires the backing store used on cache misses and eviction
// flushes.
func (bp *BufferPool) SetLoader(l Loader) {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	bp.loader = l
}

// Fetch returns the page for id, pinned once. The caller must call Unpin
// exactly once when done. A cache miss loads the page via the configured
// Loader, evicting an unpinned victim first if the pool is full.
func (bp *BufferPool) Fetch(id page.ID) (*page.Page, error) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	if f, ok := bp.frames[id]; ok {
		f.pinCount++
		bp.touch(id)
		return f.page, nil
	}

	if bp.loader == nil {
		return nil, fmt.Errorf("bufferpool: no loader configured, cannot fetch %s", id)
	}
	p, err := bp.loader.ReadPage(id)
	if err != nil {
		return nil, fmt.Errorf("bufferpool: load %s: %w", id, err)
	}

	if len(bp.frames) >= bp.capacity {
		if err := bp.evict(); err != nil {
			return nil, err
		}
	}

	bp.frames[id] = &frame{page: p, pinCount: 1}
	bp.touch(id)
	return p, nil
}

// Unpin releases one pin on id. MarkDirty, if true, flags the page for
// write-back before it is ever evicted or flushed.
func (bp *BufferPool) Unpin(id page.ID, markDirty bool) error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	f, ok := bp.frames[id]
	if !ok {
		return fmt.Errorf("bufferpool: unpin of %s not resident", id)
	}
	if markDirty {
		f.dirty = true
	}
	if f.pinCount > 0 {
		f.pinCount--
	}
	return nil
}

// Flush writes every dirty resident page back through the loader.
func (bp *BufferPool) Flush() error {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return bp.flushLocked()
}

func (bp *BufferPool) flushLocked() error {
	if bp.loader == nil {
		return fmt.Errorf("bufferpool: no loader configured, cannot flush")
	}
	for id, f := range bp.frames {
		if !f.dirty {
			continue
		}
		if err := bp.loader.WritePage(id, f.page); err != nil {
			return fmt.Errorf("bufferpool: flush %s: %w", id, err)
		}
		f.dirty = false
	}
	return nil
}

// evict removes the least-recently-used unpinned frame, writing it back
// first if dirty. It is a fatal condition — not merely an error to
// propagate and retry — when every resident frame is pinned: the pool
// has no legal move and the conservation invariant cannot be upheld.
func (bp *BufferPool) evict() error {
	if bp.loader == nil {
		return fmt.Errorf("bufferpool: no loader configured, cannot evict")
	}
	for i, id := range bp.order {
		f, ok := bp.frames[id]
		if !ok {
			bp.order = append(bp.order[:i], bp.order[i+1:]...)
			continue
		}
		if f.pinCount > 0 {
			continue
		}
		if f.dirty {
			if err := bp.loader.WritePage(id, f.page); err != nil {
				return fmt.Errorf("bufferpool: write back %s during eviction: %w", id, err)
			}
		}
		delete(bp.frames, id)
		bp.order = append(bp.order[:i], bp.order[i+1:]...)
		log.Printf("[BufferPool] evict %s (%s resident, capacity %d)", id, humanize.Comma(int64(len(bp.frames))), bp.capacity)
		return nil
	}
	return lastreeerr.Fatal(fmt.Sprintf("all %d resident pages are pinned, cannot evict to satisfy a fetch", bp.capacity), nil)
}

func (bp *BufferPool) touch(id page.ID) {
	for i, cur := range bp.order {
		if cur == id {
			bp.order = append(bp.order[:i], bp.order[i+1:]...)
			break
		}
	}
	bp.order = append(bp.order, id)
}

// Len returns the number of currently resident pages.
func (bp *BufferPool) Len() int {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return len(bp.frames)
}

// Capacity returns POOL_SIZE.
func (bp *BufferPool) Capacity() int { return bp.capacity }
