// lastreeinspect dumps the page structure of a lastree index file for
// debugging: a BFS walk from the root printing each internal node's keys
// and children, and each leaf's tuple count, sortedness, and key range.
//
// Usage:
//
//	go run ./cmd/lastreeinspect -schema int32:id,char:name -file students.idx
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"lastree/internalnode"
	"lastree/leaf"
	"lastree/page"
	"lastree/storage/filestore"
	"lastree/tuple"
)

func main() {
	schemaFlag := flag.String("schema", "int32:key", "comma-separated type:name pairs, e.g. int32:id,char:name")
	keyIndex := flag.Int("keyfield", 0, "index of the key field within -schema")
	filePath := flag.String("file", "", "path to a .idx file")
	leafKind := flag.String("leafkind", "sorted", "leaf representation the file was built with: sorted or append (page headers differ between the two, so this must match)")
	flag.Parse()

	if *filePath == "" {
		fmt.Fprintln(os.Stderr, "usage: lastreeinspect -file <path> [-schema int32:id,...] [-keyfield 0]")
		os.Exit(1)
	}

	schema, err := parseSchema(*schemaFlag, *keyIndex)
	if err != nil {
		fmt.Fprintf(os.Stderr, "lastreeinspect: %v\n", err)
		os.Exit(1)
	}

	switch *leafKind {
	case "sorted", "append":
	default:
		fmt.Fprintf(os.Stderr, "lastreeinspect: -leafkind must be sorted or append, got %q\n", *leafKind)
		os.Exit(1)
	}

	if err := run(*filePath, schema, *leafKind); err != nil {
		fmt.Fprintf(os.Stderr, "lastreeinspect: %v\n", err)
		os.Exit(1)
	}
}

func parseSchema(spec string, keyField int) (*tuple.Schema, error) {
	parts := strings.Split(spec, ",")
	types := make([]tuple.Type, len(parts))
	names := make([]string, len(parts))
	for i, part := range parts {
		tn := strings.SplitN(part, ":", 2)
		if len(tn) != 2 {
			return nil, fmt.Errorf("bad -schema field %q, want type:name", part)
		}
		ty, err := parseType(tn[0])
		if err != nil {
			return nil, err
		}
		types[i] = ty
		names[i] = tn[1]
	}
	return tuple.NewSchema(types, names, keyField)
}

func parseType(s string) (tuple.Type, error) {
	switch strings.ToLower(s) {
	case "int32", "int":
		return tuple.Int32, nil
	case "float64", "float", "double":
		return tuple.Float64, nil
	case "char":
		return tuple.Char, nil
	case "varchar":
		return tuple.Varchar, nil
	default:
		return 0, fmt.Errorf("unknown field type %q", s)
	}
}

// run opens indexPath directly through a FileStore (bypassing the buffer
// pool and coordinator entirely, the same way the teacher's inspect_idx
// bypasses the B+ tree's pager) and BFS-walks from page 1, the
// coordinator's fixed root page number per spec.md §6.
func run(indexPath string, schema *tuple.Schema, leafKind string) error {
	const fileName = "inspect"
	fs, err := filestore.Open(fileName, indexPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", indexPath, err)
	}
	defer fs.Close()

	fmt.Printf("Index file: %s (%s)\n", indexPath, humanize.Bytes(uint64(fs.NumPages())*page.Size))

	const rootPageNum = 1
	if fs.NumPages() <= rootPageNum {
		fmt.Println("  (empty or truncated file, no root page)")
		return nil
	}

	queue := []uint32{rootPageNum}
	level := 0
	for len(queue) > 0 {
		fmt.Printf("Level %d:\n", level)
		var next []uint32
		for _, num := range queue {
			p, err := fs.ReadPage(num)
			if err != nil {
				fmt.Printf("  [page %d] read error: %v\n", num, err)
				continue
			}
			switch p.Kind() {
			case page.KindInternal:
				node := internalnode.Load(p, schema)
				next = append(next, dumpInternal(num, node, schema)...)
			case page.KindLeaf:
				dumpLeaf(num, p, schema, leafKind)
			default:
				fmt.Printf("  [page %d] unknown kind %v\n", num, p.Kind())
			}
		}
		queue = next
		level++
	}
	return nil
}

func dumpInternal(num uint32, node *internalnode.View, schema *tuple.Schema) []uint32 {
	n := node.KeyCount()
	keys := make([]string, n)
	for i := 0; i < n; i++ {
		keys[i] = formatField(schema.KeyType(), node.Key(i))
	}
	children := make([]uint32, n+1)
	for i := range children {
		children[i] = node.Child(i)
	}
	fmt.Printf("  [page %d] INTERNAL keys=%v children=%v\n", num, keys, children)
	return children
}

// dumpLeaf decodes num using whichever leaf representation leafKind
// selects — SortedView and AppendView headers are laid out differently
// (see leaf/sorted.go and leaf/append.go's offset constants), so this
// tool must be told which one the file was built with.
func dumpLeaf(num uint32, p *page.Page, schema *tuple.Schema, leafKind string) {
	var view leaf.Leaf
	if leafKind == "append" {
		view = leaf.LoadAppendLeaf(p, schema, leaf.SplitSorted)
	} else {
		view = leaf.LoadSortedLeaf(p, schema)
	}
	fmt.Printf("  [page %d] LEAF tuples=%s sorted=%v cold=%v next=%s\n",
		num, humanize.Comma(int64(view.TupleCount())), view.IsSorted(), view.IsCold(), nextOrNone(view.NextID()))
	if view.TupleCount() > 0 {
		fmt.Printf("      range [%s, %s]\n",
			formatField(schema.KeyType(), view.MinKey()), formatField(schema.KeyType(), view.MaxKey()))
	}
}

func nextOrNone(id uint32) string {
	if id == ^uint32(0) {
		return "none"
	}
	return strconv.FormatUint(uint64(id), 10)
}

func formatField(ty tuple.Type, f tuple.Field) string {
	switch ty {
	case tuple.Int32:
		return strconv.FormatInt(int64(f.I32), 10)
	case tuple.Float64:
		return strconv.FormatFloat(f.F64, 'g', -1, 64)
	default:
		return strconv.Quote(f.Str)
	}
}
