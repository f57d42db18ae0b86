// Package database provides the explicitly-passed context every tree
// coordinator needs: the set of open index files plus the one shared
// buffer pool they draw pages from. There is no package-level registry
// or singleton here — callers construct one Database and thread it
// through their tree constructors.
package database

import (
	"fmt"
	"log"
	"sync"

	"lastree/page"
	"lastree/storage/bufferpool"
	"lastree/storage/filestore"
)

// Database owns every open FileStore plus the shared BufferPool that
// caches their pages. One Database is shared by every tree opened
// against it; trees never hold a FileStore directly.
type Database struct {
	mu    sync.RWMutex
	files map[string]*filestore.FileStore
	pool  *bufferpool.BufferPool
}

// New creates a Database whose buffer pool holds at most poolSize pages
// resident across every registered file.
func New(poolSize int) *Database {
	db := &Database{
		files: make(map[string]*filestore.FileStore),
		pool:  bufferpool.New(poolSize),
	}
	db.pool.SetLoader(db)
	return db
}

// Register opens (or creates) the index file at path under name and adds
// it to this Database. name is the component trees use to address the
// file's pages through page.ID.
func (db *Database) Register(name, path string) (*filestore.FileStore, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, exists := db.files[name]; exists {
		return nil, fmt.Errorf("database: %q already registered", name)
	}
	fs, err := filestore.Open(name, path)
	if err != nil {
		return nil, fmt.Errorf("database: register %q: %w", name, err)
	}
	db.files[name] = fs
	log.Printf("[Database] register file %q at %s", name, path)
	return fs, nil
}

// Pool returns the buffer pool shared by every file registered with db.
func (db *Database) Pool() *bufferpool.BufferPool { return db.pool }

// ReadPage implements bufferpool.Loader, dispatching to the named file's
// FileStore.
func (db *Database) ReadPage(id page.ID) (*page.Page, error) {
	fs, err := db.lookup(id.File)
	if err != nil {
		return nil, err
	}
	return fs.ReadPage(id.Num)
}

// WritePage implements bufferpool.Loader.
func (db *Database) WritePage(id page.ID, p *page.Page) error {
	fs, err := db.lookup(id.File)
	if err != nil {
		return err
	}
	return fs.WritePage(id.Num, p)
}

// AllocatePage reserves a fresh page in the named file.
func (db *Database) AllocatePage(name string) (page.ID, error) {
	fs, err := db.lookup(name)
	if err != nil {
		return page.ID{}, err
	}
	num, err := fs.AllocatePage()
	if err != nil {
		return page.ID{}, err
	}
	return page.ID{File: name, Num: num}, nil
}

func (db *Database) lookup(name string) (*filestore.FileStore, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	fs, ok := db.files[name]
	if !ok {
		return nil, fmt.Errorf("database: %q is not registered", name)
	}
	return fs, nil
}

// Close flushes the buffer pool and closes every registered file.
func (db *Database) Close() error {
	if err := db.pool.Flush(); err != nil {
		return err
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	for name, fs := range db.files {
		if err := fs.Close(); err != nil {
			return fmt.Errorf("database: close %q: %w", name, err)
		}
	}
	return nil
}
