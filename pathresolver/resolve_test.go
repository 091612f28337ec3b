// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package pathresolver

import (
	"testing"
	"time"

	"github.com/strongdm/nstree/inode"
	"github.com/strongdm/nstree/nskey"
	"github.com/strongdm/nstree/snapshot"
)

type testIndex struct {
	snap     map[*inode.Directory]*snapshot.SnapshottableDirectory
	dirState map[*inode.Directory]*snapshot.DirectorySnapshotState
}

func newTestIndex() *testIndex {
	return &testIndex{
		snap:     make(map[*inode.Directory]*snapshot.SnapshottableDirectory),
		dirState: make(map[*inode.Directory]*snapshot.DirectorySnapshotState),
	}
}

func (t *testIndex) Snapshottable(d *inode.Directory) *snapshot.SnapshottableDirectory {
	return t.snap[d]
}

func (t *testIndex) DirState(d *inode.Directory) *snapshot.DirectorySnapshotState {
	return t.dirState[d]
}

func mkDir(id inode.ID, name string) *inode.Directory {
	return inode.NewDirectory(id, nskey.NewKey(name), inode.Permissions{Owner: "u", Mode: 0755}, time.Unix(0, 0))
}

func mkFile(id inode.ID, name string) *inode.File {
	return inode.NewFile(id, nskey.NewKey(name), inode.Permissions{Owner: "u", Mode: 0644}, time.Unix(0, 0))
}

func TestResolveLivePath(t *testing.T) {
	root := mkDir(1, "")
	a := mkDir(2, "a")
	root.InsertChild(a)
	f1 := mkFile(3, "f1")
	a.InsertChild(f1)

	idx := newTestIndex()
	res, err := Resolve(idx, root, "/a/f1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !res.Found() || res.Last() != inode.Node(f1) {
		t.Fatalf("Resolve(/a/f1) did not resolve to f1: %+v", res)
	}
	if res.NumNonNull != 2 {
		t.Fatalf("NumNonNull = %d, want 2", res.NumNonNull)
	}
}

func TestResolveMissingComponentFillsTrailingNulls(t *testing.T) {
	root := mkDir(1, "")
	a := mkDir(2, "a")
	root.InsertChild(a)

	idx := newTestIndex()
	res, err := Resolve(idx, root, "/a/missing/deeper")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(res.Inodes) != 3 {
		t.Fatalf("len(Inodes) = %d, want 3", len(res.Inodes))
	}
	if res.Inodes[1] != nil || res.Inodes[2] != nil {
		t.Fatalf("trailing entries should be nil: %+v", res.Inodes)
	}
	if res.NumNonNull != 1 {
		t.Fatalf("NumNonNull = %d, want 1", res.NumNonNull)
	}
}

func TestResolveThroughFileFillsRemainingNulls(t *testing.T) {
	root := mkDir(1, "")
	f1 := mkFile(2, "f1")
	root.InsertChild(f1)

	idx := newTestIndex()
	res, err := Resolve(idx, root, "/f1/nonsense")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(res.Inodes) != 2 {
		t.Fatalf("len(Inodes) = %d, want 2", len(res.Inodes))
	}
	if res.Inodes[0] != inode.Node(f1) {
		t.Fatalf("Inodes[0] should be f1")
	}
	if res.Inodes[1] != nil {
		t.Fatal("Inodes[1] should be nil: a file has no children")
	}
}

func TestResolveDotSnapshotFinalComponentTerminatesWithoutInode(t *testing.T) {
	root := mkDir(1, "")
	a := mkDir(2, "a")
	root.InsertChild(a)
	sd := snapshot.AllowSnapshot(a)

	idx := newTestIndex()
	idx.snap[a] = sd
	idx.dirState[a] = sd.State

	res, err := Resolve(idx, root, "/a/.snapshot")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !res.IsSnapshotPath {
		t.Fatal("IsSnapshotPath should be true")
	}
	if len(res.Inodes) != 1 || res.Inodes[0] != inode.Node(a) {
		t.Fatalf("Inodes should stop at the snapshottable directory: %+v", res.Inodes)
	}
	if res.SnapshotRootIndex != -1 {
		t.Fatal("SnapshotRootIndex should be -1 when .snapshot is the final component")
	}
}

// TestResolveIntoNamedSnapshotSeesFrozenState exercises spec.md §8
// scenario E1: a file present at snapshot time must resolve through
// `.snapshot/<name>` even after later changes to the live tree.
func TestResolveIntoNamedSnapshotSeesFrozenState(t *testing.T) {
	root := mkDir(1, "")
	a := mkDir(2, "a")
	root.InsertChild(a)
	sd := snapshot.AllowSnapshot(a)

	idx := newTestIndex()
	idx.snap[a] = sd
	idx.dirState[a] = sd.State

	f1 := mkFile(3, "f1")
	f1.SetBlocks([]inode.BlockID{10, 11})
	sd.State.AddChild(f1, sd.Latest())

	s0, err := sd.CreateSnapshot("s0", time.Unix(1, 0))
	if err != nil {
		t.Fatalf("CreateSnapshot: %v", err)
	}

	sd.State.RemoveChild(f1, sd.Latest(), nil)

	live, err := Resolve(idx, root, "/a/f1")
	if err != nil {
		t.Fatalf("Resolve(live): %v", err)
	}
	if live.Found() {
		t.Fatal("/a/f1 should no longer resolve live")
	}

	snap, err := Resolve(idx, root, "/a/.snapshot/s0/f1")
	if err != nil {
		t.Fatalf("Resolve(snapshot): %v", err)
	}
	if !snap.Found() {
		t.Fatal("/a/.snapshot/s0/f1 should resolve")
	}
	got, ok := snap.Last().(*inode.File)
	if !ok || got.ID() != f1.ID() {
		t.Fatalf("resolved node = %+v, want f1", snap.Last())
	}
	if snap.PathSnapshot != s0 {
		t.Fatal("PathSnapshot should be s0")
	}
	if snap.SnapshotRootIndex != 1 {
		t.Fatalf("SnapshotRootIndex = %d, want 1", snap.SnapshotRootIndex)
	}
}

func TestResolveUnknownSnapshotNameYieldsNullTail(t *testing.T) {
	root := mkDir(1, "")
	a := mkDir(2, "a")
	root.InsertChild(a)
	sd := snapshot.AllowSnapshot(a)

	idx := newTestIndex()
	idx.snap[a] = sd
	idx.dirState[a] = sd.State

	res, err := Resolve(idx, root, "/a/.snapshot/ghost/f1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Found() {
		t.Fatal("unknown snapshot name should not resolve")
	}
}

func TestResolveTracksLatestSnapshotOnLivePath(t *testing.T) {
	root := mkDir(1, "")
	a := mkDir(2, "a")
	root.InsertChild(a)
	b := mkDir(4, "b")
	a.InsertChild(b)
	sd := snapshot.AllowSnapshot(a)

	idx := newTestIndex()
	idx.snap[a] = sd
	idx.dirState[a] = sd.State

	s0, _ := sd.CreateSnapshot("s0", time.Unix(1, 0))

	res, err := Resolve(idx, root, "/a/b")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.LatestSnapshot != s0 {
		t.Fatalf("LatestSnapshot = %v, want %v", res.LatestSnapshot, s0)
	}
}
