// Package filestore persists pages for one index to a single on-disk
// file, with positioned reads/writes and a monotonic page allocator.
package filestore

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"lastree/page"
)

// FileStore backs one index's pages with one OS file. It has no free
// list: deallocated pages are never reclaimed, an accepted leak for this
// module's scope.
type FileStore struct {
	mu       sync.Mutex
	file     *os.File
	name     string
	nextPage uint32
}

// Open opens (creating if absent) the file at path as the backing store
// named name. Page 0 is reserved for the tree's head leaf and page 1 for
// its initial root, matching the convention the coordinator packages
// rely on; the allocator starts past whatever pages already exist.
func Open(name, path string) (*FileStore, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("filestore: open %s: %w", path, err)
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("filestore: stat %s: %w", path, err)
	}
	next := uint32(stat.Size() / page.Size)
	return &FileStore{file: f, name: name, nextPage: next}, nil
}

// Name returns the store's logical name, used as the File component of
// every page.ID it issues.
func (fs *FileStore) Name() string { return fs.name }

// NumPages reports how many pages have been allocated so far.
func (fs *FileStore) NumPages() uint32 {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.nextPage
}

// ReadPage reads the page at num, zero-filling any bytes past a short or
// nonexistent read (e.g. a page allocated but never written).
func (fs *FileStore) ReadPage(num uint32) (*page.Page, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	var p page.Page
	off := int64(num) * page.Size
	n, err := fs.file.ReadAt(p[:], off)
	if err != nil && n == 0 {
		if errors.Is(err, io.EOF) {
			return &p, nil
		}
		return nil, fmt.Errorf("filestore: read page %s#%d: %w", fs.name, num, err)
	}
	// short read beyond EOF: remaining bytes are already zero in p
	return &p, nil
}

// WritePage writes p at num.
func (fs *FileStore) WritePage(num uint32, p *page.Page) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	off := int64(num) * page.Size
	if _, err := fs.file.WriteAt(p[:], off); err != nil {
		return fmt.Errorf("filestore: write page %s#%d: %w", fs.name, num, err)
	}
	return nil
}

// AllocatePage reserves and zero-initializes the next page number.
func (fs *FileStore) AllocatePage() (uint32, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	num := fs.nextPage
	fs.nextPage++

	var empty page.Page
	off := int64(num) * page.Size
	if _, err := fs.file.WriteAt(empty[:], off); err != nil {
		return 0, fmt.Errorf("filestore: allocate page %s#%d: %w", fs.name, num, err)
	}
	return num, nil
}

// Sync flushes pending writes to stable storage.
func (fs *FileStore) Sync() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := fs.file.Sync(); err != nil {
		return fmt.Errorf("filestore: sync %s: %w", fs.name, err)
	}
	return nil
}

// Close syncs and closes the backing file.
func (fs *FileStore) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.file == nil {
		return nil
	}
	syncErr := fs.file.Sync()
	closeErr := fs.file.Close()
	fs.file = nil
	if syncErr != nil {
		return fmt.Errorf("filestore: sync before close %s: %w", fs.name, syncErr)
	}
	if closeErr != nil {
		return fmt.Errorf("filestore: close %s: %w", fs.name, closeErr)
	}
	return nil
}
