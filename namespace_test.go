// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package nstree

import (
	"errors"
	"testing"
	"time"

	"github.com/strongdm/nstree/inode"
	"github.com/strongdm/nstree/nserrors"
)

func mustMkdirs(t *testing.T, ns *Namespace, path string, now time.Time) {
	t.Helper()
	if _, err := ns.Mkdirs(path, inode.Permissions{Owner: "alice"}, now); err != nil {
		t.Fatalf("Mkdirs(%q): %v", path, err)
	}
}

func mustCreate(t *testing.T, ns *Namespace, path string, blocks []inode.BlockID, now time.Time) *inode.File {
	t.Helper()
	f, err := ns.Create(path, inode.Permissions{Owner: "alice"}, now)
	if err != nil {
		t.Fatalf("Create(%q): %v", path, err)
	}
	f.SetBlocks(blocks)
	return f
}

// E1 — snapshot after create, then delete.
func TestE1SnapshotAfterCreateThenDelete(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ns := New(t0)
	mustMkdirs(t, ns, "/a", t0)
	mustCreate(t, ns, "/a/f1", []inode.BlockID{1, 2}, t0)

	if err := ns.AllowSnapshot("/a"); err != nil {
		t.Fatalf("AllowSnapshot: %v", err)
	}
	if _, err := ns.CreateSnapshot("/a", "s0", t0); err != nil {
		t.Fatalf("CreateSnapshot: %v", err)
	}

	if _, err := ns.Delete("/a/f1", t0); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	res, err := ns.Lookup("/a/f1")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if res.Found() {
		t.Fatalf("expected /a/f1 to be gone live, got %v", res.Last())
	}

	res, err = ns.Lookup("/a/.snapshot/s0/f1")
	if err != nil {
		t.Fatalf("Lookup snapshot: %v", err)
	}
	f, ok := res.Last().(*inode.File)
	if !ok || f == nil {
		t.Fatalf("expected /a/.snapshot/s0/f1 to resolve to a file, got %v", res.Last())
	}
	if len(f.Blocks) != 2 || f.Blocks[0] != 1 || f.Blocks[1] != 2 {
		t.Fatalf("snapshot copy lost its blocks: %v", f.Blocks)
	}
}

// E2 — snapshot then modify.
func TestE2SnapshotThenModify(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tNew := t0.Add(time.Hour)
	ns := New(t0)
	mustMkdirs(t, ns, "/a", t0)
	mustCreate(t, ns, "/a/f1", []inode.BlockID{1}, t0)
	if err := ns.AllowSnapshot("/a"); err != nil {
		t.Fatalf("AllowSnapshot: %v", err)
	}
	if _, err := ns.CreateSnapshot("/a", "s0", t0); err != nil {
		t.Fatalf("CreateSnapshot: %v", err)
	}

	if err := ns.SetAttrs("/a/f1", inode.Permissions{Owner: "bob"}, tNew); err != nil {
		t.Fatalf("SetAttrs: %v", err)
	}

	res, _ := ns.Lookup("/a/f1")
	live := res.Last().(*inode.File)
	if !live.ModTime().Equal(tNew) {
		t.Fatalf("live mtime = %v, want %v", live.ModTime(), tNew)
	}

	res, _ = ns.Lookup("/a/.snapshot/s0/f1")
	frozen := res.Last().(*inode.File)
	if !frozen.ModTime().Equal(t0) {
		t.Fatalf("snapshot mtime = %v, want original %v", frozen.ModTime(), t0)
	}
}

// E3 — rename into snapshot.
func TestE3RenameIntoSnapshot(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ns := New(t0)
	mustMkdirs(t, ns, "/a", t0)
	mustMkdirs(t, ns, "/b", t0)
	x := mustCreate(t, ns, "/a/x", []inode.BlockID{5}, t0)
	if err := ns.AllowSnapshot("/a"); err != nil {
		t.Fatalf("AllowSnapshot: %v", err)
	}
	if _, err := ns.CreateSnapshot("/a", "s0", t0); err != nil {
		t.Fatalf("CreateSnapshot: %v", err)
	}

	if err := ns.Rename("/a/x", "/b/y", t0.Add(time.Minute)); err != nil {
		t.Fatalf("Rename: %v", err)
	}

	res, err := ns.Lookup("/a/.snapshot/s0/x")
	if err != nil || !res.Found() {
		t.Fatalf("expected /a/.snapshot/s0/x to still resolve, err=%v found=%v", err, res.Found())
	}
	if res.Last().ID() != x.ID() {
		t.Fatalf("snapshot view resolved to a different inode")
	}

	res, err = ns.Lookup("/b/y")
	if err != nil || !res.Found() {
		t.Fatalf("expected /b/y to resolve, err=%v", err)
	}
	if res.Last().ID() != x.ID() {
		t.Fatalf("/b/y resolved to a different inode than the renamed x")
	}
	if ref := res.Last().AsReference(); ref == nil || ref.Count() != 2 {
		t.Fatalf("expected reference count 2, got %v", ref)
	}
	bDir, err := ns.resolveLiveDir("test", "/b")
	if err != nil {
		t.Fatalf("resolveLiveDir /b: %v", err)
	}
	if res.Last().Parent() != bDir {
		t.Fatalf("expected renamed inode's parent to be /b")
	}
}

// E4 — delete snapshot after rename.
func TestE4DeleteSnapshotAfterRename(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ns := New(t0)
	mustMkdirs(t, ns, "/a", t0)
	mustMkdirs(t, ns, "/b", t0)
	x := mustCreate(t, ns, "/a/x", []inode.BlockID{5}, t0)
	if err := ns.AllowSnapshot("/a"); err != nil {
		t.Fatalf("AllowSnapshot: %v", err)
	}
	if _, err := ns.CreateSnapshot("/a", "s0", t0); err != nil {
		t.Fatalf("CreateSnapshot: %v", err)
	}
	if err := ns.Rename("/a/x", "/b/y", t0); err != nil {
		t.Fatalf("Rename: %v", err)
	}

	if _, err := ns.DeleteSnapshot("/a", "s0"); err != nil {
		t.Fatalf("DeleteSnapshot: %v", err)
	}

	res, err := ns.Lookup("/a/.snapshot/s0/x")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if res.Found() {
		t.Fatalf("expected /a/.snapshot/s0 to be gone, got %v", res.Last())
	}

	res, err = ns.Lookup("/b/y")
	if err != nil || !res.Found() {
		t.Fatalf("expected /b/y to still resolve after snapshot deletion, err=%v", err)
	}
	if res.Last().ID() != x.ID() {
		t.Fatalf("/b/y resolved to a different inode after snapshot deletion")
	}
	if ref := res.Last().AsReference(); ref == nil || ref.Count() != 1 {
		t.Fatalf("expected reference count 1 after snapshot deletion, got %v", ref)
	}
}

// E5 — snapshot of a snapshot's parent: two successive snapshots, the
// file created between them must only be visible in the later one.
func TestE5SnapshotOfASnapshotsParent(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ns := New(t0)
	mustMkdirs(t, ns, "/a", t0)
	if err := ns.AllowSnapshot("/a"); err != nil {
		t.Fatalf("AllowSnapshot: %v", err)
	}
	if _, err := ns.CreateSnapshot("/a", "s0", t0); err != nil {
		t.Fatalf("CreateSnapshot s0: %v", err)
	}
	mustCreate(t, ns, "/a/f1", []inode.BlockID{9}, t0)
	if _, err := ns.CreateSnapshot("/a", "s1", t0); err != nil {
		t.Fatalf("CreateSnapshot s1: %v", err)
	}
	if _, err := ns.Delete("/a/f1", t0); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	res, _ := ns.Lookup("/a/.snapshot/s0/f1")
	if res.Found() {
		t.Fatalf("expected f1 absent from s0, got %v", res.Last())
	}
	res, _ = ns.Lookup("/a/.snapshot/s1/f1")
	if !res.Found() {
		t.Fatalf("expected f1 present in s1")
	}
	res, _ = ns.Lookup("/a/f1")
	if res.Found() {
		t.Fatalf("expected f1 absent live, got %v", res.Last())
	}
}

// E6 — create/delete within the same snapshot diff must never surface
// in any snapshot, but must still be collected once that diff is
// combined away.
func TestE6CreateDeleteWithinSameDiff(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ns := New(t0)
	mustMkdirs(t, ns, "/a", t0)
	if err := ns.AllowSnapshot("/a"); err != nil {
		t.Fatalf("AllowSnapshot: %v", err)
	}
	if _, err := ns.CreateSnapshot("/a", "s0", t0); err != nil {
		t.Fatalf("CreateSnapshot s0: %v", err)
	}
	if _, err := ns.CreateSnapshot("/a", "s1", t0); err != nil {
		t.Fatalf("CreateSnapshot s1: %v", err)
	}

	mustCreate(t, ns, "/a/tmp", []inode.BlockID{42}, t0)
	if _, err := ns.Delete("/a/tmp", t0); err != nil {
		t.Fatalf("Delete tmp: %v", err)
	}

	res, _ := ns.Lookup("/a/.snapshot/s0/tmp")
	if res.Found() {
		t.Fatalf("tmp must never be visible in s0")
	}

	info, err := ns.DeleteSnapshot("/a", "s1")
	if err != nil {
		t.Fatalf("DeleteSnapshot s1: %v", err)
	}
	found42 := false
	for _, b := range info.Blocks {
		if b == 42 {
			found42 = true
		}
	}
	if !found42 {
		t.Fatalf("expected block 42 collected on deleting s1, got %v", info.Blocks)
	}
}

func TestMkdirsCreatesIntermediateDirectories(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ns := New(t0)
	created, err := ns.Mkdirs("/x/y/z", inode.Permissions{Owner: "alice"}, t0)
	if err != nil {
		t.Fatalf("Mkdirs: %v", err)
	}
	if len(created) != 3 {
		t.Fatalf("expected 3 directories created, got %d", len(created))
	}
	res, err := ns.Lookup("/x/y/z")
	if err != nil || !res.Found() {
		t.Fatalf("expected /x/y/z to resolve, err=%v", err)
	}
}

func TestCreateRejectsDuplicateName(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ns := New(t0)
	mustMkdirs(t, ns, "/a", t0)
	mustCreate(t, ns, "/a/f1", nil, t0)
	if _, err := ns.Create("/a/f1", inode.Permissions{}, t0); !nserrors.Is(err, nserrors.KindExists) {
		t.Fatalf("expected KindExists, got %v", err)
	}
}

func TestDeleteRejectsSnapshottableWithRetainedSnapshots(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ns := New(t0)
	mustMkdirs(t, ns, "/a", t0)
	if err := ns.AllowSnapshot("/a"); err != nil {
		t.Fatalf("AllowSnapshot: %v", err)
	}
	if _, err := ns.CreateSnapshot("/a", "s0", t0); err != nil {
		t.Fatalf("CreateSnapshot: %v", err)
	}
	if _, err := ns.Delete("/a", t0); !nserrors.Is(err, nserrors.KindHasSnapshots) {
		t.Fatalf("expected KindHasSnapshots, got %v", err)
	}
}

func TestAllowSnapshotReusesAccumulatedHistory(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ns := New(t0)
	mustMkdirs(t, ns, "/a", t0)
	if err := ns.AllowSnapshot("/a"); err != nil {
		t.Fatalf("AllowSnapshot: %v", err)
	}
	if _, err := ns.CreateSnapshot("/a", "s0", t0); err != nil {
		t.Fatalf("CreateSnapshot: %v", err)
	}
	mustCreate(t, ns, "/a/f1", []inode.BlockID{1}, t0)

	if err := ns.DisallowSnapshot("/a"); !nserrors.Is(err, nserrors.KindHasSnapshots) {
		t.Fatalf("expected DisallowSnapshot to fail while s0 is retained, got %v", err)
	}
	if _, err := ns.DeleteSnapshot("/a", "s0"); err != nil {
		t.Fatalf("DeleteSnapshot: %v", err)
	}
	if err := ns.DisallowSnapshot("/a"); err != nil {
		t.Fatalf("DisallowSnapshot: %v", err)
	}

	res, err := ns.Lookup("/a/f1")
	if err != nil || !res.Found() {
		t.Fatalf("expected /a/f1 to still resolve after disallowSnapshot, err=%v", err)
	}
}

func TestListSnapshottableOrdersByID(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ns := New(t0)
	mustMkdirs(t, ns, "/b", t0)
	mustMkdirs(t, ns, "/a", t0)
	if err := ns.AllowSnapshot("/b"); err != nil {
		t.Fatalf("AllowSnapshot /b: %v", err)
	}
	if err := ns.AllowSnapshot("/a"); err != nil {
		t.Fatalf("AllowSnapshot /a: %v", err)
	}
	dirs := ns.ListSnapshottable()
	if len(dirs) != 2 {
		t.Fatalf("expected 2 snapshottable directories, got %d", len(dirs))
	}
	if dirs[0].ID() >= dirs[1].ID() {
		t.Fatalf("expected ascending id order, got %v then %v", dirs[0].ID(), dirs[1].ID())
	}
}

// E7 — nested snapshottable directories. Deleting an outer
// snapshottable directory whose inner, independently-snapshottable
// descendant still retains snapshots must fail naming the inner
// directory, not the outer one, even though both produce
// KindHasSnapshots (spec.md §4.5's "both produce the same failure
// kind" rule). Deleting succeeds once the inner snapshot is gone.
func TestE7NestedSnapshottableDirectories(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ns := New(t0)
	mustMkdirs(t, ns, "/a", t0)
	mustMkdirs(t, ns, "/a/b", t0)
	mustCreate(t, ns, "/a/b/f1", []inode.BlockID{1}, t0)

	if err := ns.AllowSnapshot("/a"); err != nil {
		t.Fatalf("AllowSnapshot /a: %v", err)
	}
	if err := ns.AllowSnapshot("/a/b"); err != nil {
		t.Fatalf("AllowSnapshot /a/b: %v", err)
	}
	if _, err := ns.CreateSnapshot("/a/b", "sb0", t0); err != nil {
		t.Fatalf("CreateSnapshot /a/b: %v", err)
	}

	_, err := ns.Delete("/a", t0)
	if !nserrors.Is(err, nserrors.KindHasSnapshots) {
		t.Fatalf("expected KindHasSnapshots, got %v", err)
	}
	var opErr *nserrors.OpError
	if !errors.As(err, &opErr) {
		t.Fatalf("expected *nserrors.OpError, got %T", err)
	}
	if opErr.Path != "/a/b" {
		t.Fatalf("expected delete to name the inner directory /a/b, got %q", opErr.Path)
	}

	// /a itself was never made to carry its own snapshot, so this
	// nesting does not block ordinary reads of either level.
	res, err := ns.Lookup("/a/b/f1")
	if err != nil || !res.Found() {
		t.Fatalf("expected /a/b/f1 to resolve, err=%v", err)
	}

	if _, err := ns.DeleteSnapshot("/a/b", "sb0"); err != nil {
		t.Fatalf("DeleteSnapshot /a/b sb0: %v", err)
	}
	if _, err := ns.Delete("/a", t0); err != nil {
		t.Fatalf("expected delete to succeed once the inner snapshot is gone, got %v", err)
	}
}

// E8 — reference count conservation under repeated cross-snapshot
// rename. Renaming the same inode across a snapshot boundary twice in
// a row must reuse the original WithCount rather than wrapping a
// fresh one around an already-reference node (a WithCount must never
// point at another reference), and the count after each rename must
// equal exactly the number of reference nodes reachable afterward.
func TestE8RepeatedCrossSnapshotRename(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ns := New(t0)
	mustMkdirs(t, ns, "/a", t0)
	mustMkdirs(t, ns, "/b", t0)
	mustMkdirs(t, ns, "/c", t0)
	x := mustCreate(t, ns, "/a/x", []inode.BlockID{7}, t0)

	if err := ns.AllowSnapshot("/a"); err != nil {
		t.Fatalf("AllowSnapshot /a: %v", err)
	}
	if _, err := ns.CreateSnapshot("/a", "sa0", t0); err != nil {
		t.Fatalf("CreateSnapshot /a: %v", err)
	}
	if err := ns.Rename("/a/x", "/b/y", t0.Add(time.Minute)); err != nil {
		t.Fatalf("Rename /a/x -> /b/y: %v", err)
	}

	res, err := ns.Lookup("/b/y")
	if err != nil || !res.Found() {
		t.Fatalf("expected /b/y to resolve, err=%v", err)
	}
	if ref := res.Last().AsReference(); ref == nil || ref.Count() != 2 {
		t.Fatalf("expected reference count 2 after first rename, got %v", ref)
	}

	if err := ns.AllowSnapshot("/b"); err != nil {
		t.Fatalf("AllowSnapshot /b: %v", err)
	}
	if _, err := ns.CreateSnapshot("/b", "sb0", t0.Add(time.Minute)); err != nil {
		t.Fatalf("CreateSnapshot /b: %v", err)
	}

	if err := ns.Rename("/b/y", "/c/z", t0.Add(2*time.Minute)); err != nil {
		t.Fatalf("Rename /b/y -> /c/z: %v", err)
	}

	res, err = ns.Lookup("/c/z")
	if err != nil || !res.Found() {
		t.Fatalf("expected /c/z to resolve, err=%v", err)
	}
	if res.Last().ID() != x.ID() {
		t.Fatalf("/c/z resolved to a different inode than the original x")
	}
	ref := res.Last().AsReference()
	if ref == nil || ref.Count() != 3 {
		t.Fatalf("expected reference count 3 after second rename, got %v", ref)
	}

	res, err = ns.Lookup("/a/.snapshot/sa0/x")
	if err != nil || !res.Found() || res.Last().ID() != x.ID() {
		t.Fatalf("expected /a/.snapshot/sa0/x to still resolve to x, err=%v found=%v", err, res.Found())
	}
	res, err = ns.Lookup("/b/.snapshot/sb0/y")
	if err != nil || !res.Found() || res.Last().ID() != x.ID() {
		t.Fatalf("expected /b/.snapshot/sb0/y to still resolve to x, err=%v found=%v", err, res.Found())
	}

	res, err = ns.Lookup("/b/y")
	if err != nil {
		t.Fatalf("Lookup /b/y: %v", err)
	}
	if res.Found() {
		t.Fatalf("expected /b/y to be gone live after the second rename, got %v", res.Last())
	}
}
