// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/strongdm/nstree"
	"github.com/strongdm/nstree/inode"
)

// entry is the plain, msgpack-friendly rendering of one live inode,
// used only by this fixture dumper — the engine itself never
// serializes a *inode.Node directly, since reference nodes and
// unexported fields have no business crossing a wire format.
type entry struct {
	Name     string  `msgpack:"name"`
	ID       uint64  `msgpack:"id"`
	IsDir    bool    `msgpack:"is_dir"`
	Owner    string  `msgpack:"owner,omitempty"`
	Mode     uint16  `msgpack:"mode"`
	Blocks   []uint64 `msgpack:"blocks,omitempty"`
	Children []entry  `msgpack:"children,omitempty"`
}

type fixture struct {
	Name       string `json:"name"`
	PayloadHex string `json:"payload_hex"`
	Notes      string `json:"notes,omitempty"`
}

func main() {
	outDir := flag.String("out", "fixtures", "output directory for fixtures")
	flag.Parse()

	fixtures := []fixture{
		mustFixture("basic_tree", seedBasicTree),
		mustFixture("renamed_tree", seedRenamedTree),
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "mkdir: %v\n", err)
		os.Exit(1)
	}
	for _, f := range fixtures {
		path := filepath.Join(*outDir, f.Name+".json")
		data, err := json.MarshalIndent(f, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "marshal %s: %v\n", f.Name, err)
			os.Exit(1)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "write %s: %v\n", path, err)
			os.Exit(1)
		}
	}
}

func mustFixture(name string, seed func() (*nstree.Namespace, string)) fixture {
	ns, notes := seed()
	root := walk(ns.Root())
	payload, err := encodeMsgpack(root)
	if err != nil {
		panic(err)
	}
	return fixture{
		Name:       name,
		PayloadHex: hex.EncodeToString(payload),
		Notes:      notes,
	}
}

// encodeMsgpack mirrors the teacher client's EncodeMsgpack: sorted map
// keys for deterministic, content-addressable output.
func encodeMsgpack(v any) ([]byte, error) {
	buf := &bytes.Buffer{}
	enc := msgpack.NewEncoder(buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func walk(dir *inode.Directory) entry {
	e := entry{
		Name:  dir.NameKey().String(),
		ID:    uint64(dir.ID()),
		IsDir: true,
		Owner: dir.Perm().Owner,
		Mode:  dir.Perm().Mode,
	}
	for _, child := range dir.Children() {
		switch v := child.(type) {
		case *inode.Directory:
			e.Children = append(e.Children, walk(v))
		case *inode.QuotaDirectory:
			e.Children = append(e.Children, walk(v.Directory))
		case *inode.File:
			e.Children = append(e.Children, fileEntry(v))
		default:
			// A reference node left behind by a rename still under a
			// live snapshot delegates every read accessor to its
			// pointee, so it renders the same as the pointee would.
			e.Children = append(e.Children, referenceEntry(child))
		}
	}
	return e
}

func fileEntry(f *inode.File) entry {
	blocks := make([]uint64, len(f.Blocks))
	for i, b := range f.Blocks {
		blocks[i] = uint64(b)
	}
	return entry{
		Name:   f.NameKey().String(),
		ID:     uint64(f.ID()),
		Owner:  f.Perm().Owner,
		Mode:   f.Perm().Mode,
		Blocks: blocks,
	}
}

func referenceEntry(n inode.Node) entry {
	e := entry{
		Name:  n.NameKey().String(),
		ID:    uint64(n.ID()),
		Owner: n.Perm().Owner,
		Mode:  n.Perm().Mode,
	}
	if dir, ok := pathresolverAsDirectory(n); ok {
		e.IsDir = true
		for _, child := range dir.Children() {
			e.Children = append(e.Children, referenceOrWalk(child))
		}
	}
	return e
}

func referenceOrWalk(n inode.Node) entry {
	switch v := n.(type) {
	case *inode.Directory:
		return walk(v)
	case *inode.QuotaDirectory:
		return walk(v.Directory)
	case *inode.File:
		return fileEntry(v)
	default:
		return referenceEntry(n)
	}
}

// pathresolverAsDirectory duplicates pathresolver.AsDirectory's
// reference-unwrapping rule locally rather than importing the
// package, since this fixture dumper has no other use for it.
func pathresolverAsDirectory(n inode.Node) (*inode.Directory, bool) {
	switch v := n.(type) {
	case *inode.Directory:
		return v, true
	case *inode.QuotaDirectory:
		return v.Directory, true
	default:
		ref := n.AsReference()
		if ref == nil {
			return nil, false
		}
		return pathresolverAsDirectory(ref.Referred)
	}
}

func seedBasicTree() (*nstree.Namespace, string) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ns := nstree.New(now)
	must(ignoreSlice(ns.Mkdirs("/home/alice", inode.Permissions{Owner: "alice", Mode: 0o755}, now)))
	f, err := ns.Create("/home/alice/notes.txt", inode.Permissions{Owner: "alice", Mode: 0o644}, now)
	must(err)
	f.SetBlocks([]inode.BlockID{1, 2, 3})
	return ns, "A plain two-level tree with one file, no snapshots."
}

func seedRenamedTree() (*nstree.Namespace, string) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ns := nstree.New(now)
	must(ignoreSlice(ns.Mkdirs("/a", inode.Permissions{Owner: "alice", Mode: 0o755}, now)))
	must(ignoreSlice(ns.Mkdirs("/b", inode.Permissions{Owner: "alice", Mode: 0o755}, now)))
	_, err := ns.Create("/a/x", inode.Permissions{Owner: "alice", Mode: 0o644}, now)
	must(err)
	must(ns.AllowSnapshot("/a"))
	_, err = ns.CreateSnapshot("/a", "s0", now)
	must(err)
	must(ns.Rename("/a/x", "/b/y", now.Add(time.Minute)))
	return ns, "x renamed to /b/y while /a/.snapshot/s0 still covers its old position; live tree only, the snapshot view itself is not part of this fixture."
}

func ignoreSlice[T any](v []T, err error) error {
	return err
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}
