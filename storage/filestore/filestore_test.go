package filestore

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"lastree/page"
)

func TestAllocateReadWriteRoundTrip(t *testing.T) {
	testDir := filepath.Join(os.TempDir(), "lastree_filestore_test")
	os.MkdirAll(testDir, 0755)
	defer os.RemoveAll(testDir)

	path := filepath.Join(testDir, "idx0.dat")
	fs, err := Open("idx0", path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer fs.Close()

	num, err := fs.AllocatePage()
	if err != nil {
		t.Fatalf("AllocatePage: %v", err)
	}
	if num != 0 {
		t.Errorf("first allocated page = %d, want 0", num)
	}

	p := page.New(page.KindLeaf)
	copy(p[1:], []byte("hello filestore"))
	if err := fs.WritePage(num, p); err != nil {
		t.Fatalf("WritePage: %v", err)
	}

	got, err := fs.ReadPage(num)
	if err != nil {
		t.Fatalf("ReadPage: %v", err)
	}
	if !bytes.Equal(got[:], p[:]) {
		t.Errorf("read page does not match written page")
	}

	num2, err := fs.AllocatePage()
	if err != nil {
		t.Fatalf("AllocatePage: %v", err)
	}
	if num2 != 1 {
		t.Errorf("second allocated page = %d, want 1", num2)
	}
}

func TestReadUnwrittenPageIsZeroFilled(t *testing.T) {
	testDir := filepath.Join(os.TempDir(), "lastree_filestore_test2")
	os.MkdirAll(testDir, 0755)
	defer os.RemoveAll(testDir)

	path := filepath.Join(testDir, "idx1.dat")
	fs, err := Open("idx1", path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer fs.Close()

	p, err := fs.ReadPage(7)
	if err != nil {
		t.Fatalf("ReadPage: %v", err)
	}
	for i, b := range p {
		if b != 0 {
			t.Fatalf("byte %d of unwritten page = %d, want 0", i, b)
		}
	}
}

func TestReopenResumesAllocatorPastExistingPages(t *testing.T) {
	testDir := filepath.Join(os.TempDir(), "lastree_filestore_test3")
	os.MkdirAll(testDir, 0755)
	defer os.RemoveAll(testDir)

	path := filepath.Join(testDir, "idx2.dat")
	fs, err := Open("idx2", path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := fs.AllocatePage(); err != nil {
			t.Fatalf("AllocatePage: %v", err)
		}
	}
	fs.Close()

	fs2, err := Open("idx2", path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer fs2.Close()
	num, err := fs2.AllocatePage()
	if err != nil {
		t.Fatalf("AllocatePage after reopen: %v", err)
	}
	if num != 3 {
		t.Errorf("allocator resumed at %d, want 3", num)
	}
}
