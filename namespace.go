// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

// Package nstree implements an in-memory hierarchical namespace with
// HDFS-style snapshots: copy-on-write diff chains per directory and
// per file, `.snapshot` pseudo-path resolution, reference nodes that
// keep a renamed inode reachable from both sides of the rename, and a
// block-collection protocol an external block map can drain.
//
// Namespace is the single entry point. It owns id allocation, the
// live tree, and every directory's and file's snapshot state, and
// wires components C1 through C9 (nskey, diff, inode, inode
// reference, snapshot/dirstate, snapshot/filestate,
// snapshot/snapshottable, pathresolver, blockmap) together behind one
// mutex.
//
//	ns := nstree.New(time.Now())
//	ns.Mkdirs("/home/alice", inode.Permissions{Owner: "alice"}, time.Now())
//	ns.AllowSnapshot("/home/alice")
//	ns.CreateSnapshot("/home/alice", "s0", time.Now())
package nstree

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/strongdm/nstree/blockmap"
	"github.com/strongdm/nstree/inode"
	"github.com/strongdm/nstree/nserrors"
	"github.com/strongdm/nstree/nskey"
	"github.com/strongdm/nstree/pathresolver"
	"github.com/strongdm/nstree/snapshot"
)

// Namespace is the namespace snapshot engine. The zero value is not
// usable; construct one with New.
type Namespace struct {
	mu sync.Mutex

	root   *inode.Directory
	nextID uint64

	dirStates  map[*inode.Directory]*snapshot.DirectorySnapshotState
	fileStates map[*inode.File]*snapshot.FileSnapshotState
	snappable  map[*inode.Directory]*snapshot.SnapshottableDirectory

	// dirMembers/fileMembers index every descendant directory/file that
	// has accumulated its own diff-chain state back to the nearest
	// snapshottable ancestor that covered it at the time the state was
	// created. Deleting a snapshot must combine or collect diffs on
	// every one of these, not just the snapshottable root's own chain
	// (spec.md §4.2's deleteSnapshotDiff is a per-node operation; a
	// snapshottable subtree may contain many nodes each carrying their
	// own diff list).
	dirMembers  map[*inode.Directory][]*inode.Directory
	fileMembers map[*inode.Directory][]*inode.File

	logger *slog.Logger
}

var _ pathresolver.Index = (*Namespace)(nil)

// New returns a Namespace with an empty root directory, created at
// now.
func New(now time.Time) *Namespace {
	ns := &Namespace{
		root:       inode.NewDirectory(0, nskey.NewKey(""), inode.Permissions{Mode: 0o755}, now),
		nextID:     1,
		dirStates:   make(map[*inode.Directory]*snapshot.DirectorySnapshotState),
		fileStates:  make(map[*inode.File]*snapshot.FileSnapshotState),
		snappable:   make(map[*inode.Directory]*snapshot.SnapshottableDirectory),
		dirMembers:  make(map[*inode.Directory][]*inode.Directory),
		fileMembers: make(map[*inode.Directory][]*inode.File),
		logger:      slog.Default(),
	}
	return ns
}

// Root returns the root directory inode. Exposed for callers (tests,
// fixture tools) that need to descend the live tree directly.
func (ns *Namespace) Root() *inode.Directory {
	return ns.root
}

func (ns *Namespace) allocID() inode.ID {
	id := inode.ID(ns.nextID)
	ns.nextID++
	return id
}

func (ns *Namespace) opID() string {
	return uuid.New().String()
}

// dirState returns dir's DirectorySnapshotState, creating an empty one
// the first time any directory under a snapshottable root is touched
// (spec.md §4.2 attaches state lazily, per descendant, not only at the
// snapshottable root).
func (ns *Namespace) dirState(dir *inode.Directory) *snapshot.DirectorySnapshotState {
	if s, ok := ns.dirStates[dir]; ok {
		return s
	}
	s := snapshot.NewDirectorySnapshotState(dir)
	ns.dirStates[dir] = s
	if root := ns.owningRoot(dir); root != nil {
		ns.dirMembers[root] = append(ns.dirMembers[root], dir)
	}
	return s
}

// owningRoot walks from start upward (inclusive) looking for the
// nearest snapshottable directory, the same search latestFor performs,
// exposed separately so membership registration does not depend on a
// snapshot having actually been created yet.
func (ns *Namespace) owningRoot(start *inode.Directory) *inode.Directory {
	for d := start; d != nil; d = d.Parent() {
		if _, ok := ns.snappable[d]; ok {
			return d
		}
	}
	return nil
}

// fileState returns f's FileSnapshotState, creating it lazily the same
// way dirState does for directories (spec.md §4.3).
func (ns *Namespace) fileState(f *inode.File) *snapshot.FileSnapshotState {
	if s, ok := ns.fileStates[f]; ok {
		return s
	}
	s := snapshot.NewFileSnapshotState(f)
	ns.fileStates[f] = s
	if root := ns.owningRoot(f.Parent()); root != nil {
		ns.fileMembers[root] = append(ns.fileMembers[root], f)
	}
	return s
}

// DirState implements pathresolver.Index. It deliberately does not
// create state on a miss — path resolution is read-only — so a
// directory that has never been mutated under a covering snapshot
// correctly reports no state.
func (ns *Namespace) DirState(dir *inode.Directory) *snapshot.DirectorySnapshotState {
	return ns.dirStates[dir]
}

// Snapshottable implements pathresolver.Index.
func (ns *Namespace) Snapshottable(dir *inode.Directory) *snapshot.SnapshottableDirectory {
	return ns.snappable[dir]
}

// latestFor walks dir and its ancestors looking for the nearest
// snapshottable directory's latest snapshot handle, stopping at the
// first one found (spec.md §4.2's "the latest snapshot covering this
// position" — a descendant of a snapshottable root is covered by that
// root's own snapshot sequence). Nesting snapshottable directories is
// not rejected; a node under two of them is covered only by the nearer
// one's sequence.
func (ns *Namespace) latestFor(dir *inode.Directory) *inode.SnapshotHandle {
	for d := dir; d != nil; d = d.Parent() {
		if sd, ok := ns.snappable[d]; ok {
			return sd.Latest()
		}
	}
	return nil
}

func (ns *Namespace) resolve(path string) (*pathresolver.Resolution, error) {
	return pathresolver.Resolve(ns, ns.root, path)
}

// splitParentPath splits path into its parent path string and its
// final component. The root path itself yields ("", nil).
func splitParentPath(path string) (string, nskey.Key) {
	keys := nskey.Split(path)
	if len(keys) == 0 {
		return "", nil
	}
	return nskey.Join(keys[:len(keys)-1]), keys[len(keys)-1]
}

// resolveLiveDir resolves path to a live (non-snapshot) directory,
// the parent-directory lookup every mutating operation needs before it
// can touch a directory's children.
func (ns *Namespace) resolveLiveDir(op, path string) (*inode.Directory, error) {
	if path == "" || path == "/" {
		return ns.root, nil
	}
	res, err := ns.resolve(path)
	if err != nil {
		return nil, err
	}
	if res.IsSnapshotPath {
		return nil, nserrors.New(op, path, nserrors.KindInSnapshotPath)
	}
	if !res.Found() {
		return nil, nserrors.New(op, path, nserrors.KindParentMissing)
	}
	dir, ok := pathresolver.AsDirectory(res.Last())
	if !ok {
		return nil, nserrors.New(op, path, nserrors.KindParentIsFile)
	}
	return dir, nil
}

// Lookup resolves path against the live tree, transparently following
// a `.snapshot` pseudo-component into the frozen view it names (spec.md
// §4.6). A file reached through `.snapshot` whose attributes changed
// after that snapshot is answered with its frozen copy.
func (ns *Namespace) Lookup(path string) (*pathresolver.Resolution, error) {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	res, err := ns.resolve(path)
	if err != nil || res.PathSnapshot == nil {
		return res, err
	}
	if f, ok := res.Last().(*inode.File); ok {
		if fs := ns.fileStates[f]; fs != nil {
			res.Inodes[len(res.Inodes)-1] = fs.GetFileAt(res.PathSnapshot, true)
		}
	}
	return res, nil
}

// Mkdirs creates every missing directory along path, like "mkdir -p",
// returning the directories it actually created (spec.md §4.1's create
// operations extended to directories, in the teacher's sense that a
// single call can do several inserts).
func (ns *Namespace) Mkdirs(path string, perm inode.Permissions, now time.Time) ([]*inode.Directory, error) {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	id := ns.opID()

	keys := nskey.Split(path)
	dir := ns.root
	var created []*inode.Directory
	for _, k := range keys {
		if nskey.IsDotSnapshot(k) {
			ns.logger.Error("[nstree] mkdirs", "op_id", id, "path", path, "err", nserrors.KindInSnapshotPath)
			return nil, nserrors.New("mkdirs", path, nserrors.KindInSnapshotPath)
		}
		if child, _, found := dir.Lookup(k); found {
			next, ok := pathresolver.AsDirectory(child)
			if !ok {
				ns.logger.Error("[nstree] mkdirs", "op_id", id, "path", path, "err", nserrors.KindParentIsFile)
				return nil, nserrors.New("mkdirs", path, nserrors.KindParentIsFile)
			}
			dir = next
			continue
		}
		nd := inode.NewDirectory(ns.allocID(), k, perm, now)
		latest := ns.latestFor(dir)
		ns.dirState(dir).AddChild(nd, latest)
		created = append(created, nd)
		dir = nd
	}
	ns.logger.Info("[nstree] mkdirs", "op_id", id, "path", path, "created", len(created))
	return created, nil
}

// Create adds a new, empty file at path. The parent directory must
// already exist (spec.md §4.1's createFile).
func (ns *Namespace) Create(path string, perm inode.Permissions, now time.Time) (*inode.File, error) {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	id := ns.opID()

	parentPath, name := splitParentPath(path)
	if name == nil {
		ns.logger.Error("[nstree] create", "op_id", id, "path", path, "err", nserrors.KindParentIsFile)
		return nil, nserrors.New("create", path, nserrors.KindParentIsFile)
	}
	if nskey.IsDotSnapshot(name) {
		return nil, nserrors.New("create", path, nserrors.KindExists)
	}
	parentDir, err := ns.resolveLiveDir("create", parentPath)
	if err != nil {
		ns.logger.Error("[nstree] create", "op_id", id, "path", path, "err", err)
		return nil, err
	}
	if _, _, found := parentDir.Lookup(name); found {
		return nil, nserrors.New("create", path, nserrors.KindExists)
	}

	f := inode.NewFile(ns.allocID(), name, perm, now)
	latest := ns.latestFor(parentDir)
	ns.dirState(parentDir).AddChild(f, latest)
	ns.logger.Info("[nstree] create", "op_id", id, "path", path)
	return f, nil
}

// Delete removes the inode at path, releasing any blocks that become
// unreachable as a result (spec.md §4.1's delete, via C9's
// block-collection protocol). A directory with retained snapshots, or
// a snapshottable directory whose own retained snapshots have not all
// been deleted, cannot be removed.
func (ns *Namespace) Delete(path string, now time.Time) (*blockmap.UpdateInfo, error) {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	id := ns.opID()

	res, err := ns.resolve(path)
	if err != nil {
		return nil, err
	}
	if res.IsSnapshotPath {
		return nil, nserrors.New("delete", path, nserrors.KindInSnapshotPath)
	}
	if !res.Found() {
		return nil, nserrors.New("delete", path, nserrors.KindNotFound)
	}
	target := res.Last()

	if offender, found := ns.subtreeHasSnapshots(target, path); found {
		ns.logger.Error("[nstree] delete", "op_id", id, "path", path, "offender", offender, "err", nserrors.KindHasSnapshots)
		return nil, nserrors.New("delete", offender, nserrors.KindHasSnapshots)
	}

	parentPath, _ := splitParentPath(path)
	parentDir, err := ns.resolveLiveDir("delete", parentPath)
	if err != nil {
		return nil, err
	}

	collector := blockmap.NewCollector()
	latest := ns.latestFor(parentDir)
	_, err = ns.dirState(parentDir).RemoveChild(target, latest, func(trashed inode.Node) {
		snapshot.CollectSubtree(trashed, collector)
	})
	if err != nil {
		return nil, err
	}
	if latest == nil {
		// No snapshot anywhere above parentDir covers this position, so
		// nothing preserves target's old reachability: it is gone for
		// good the instant it leaves the live tree.
		snapshot.CollectSubtree(target, collector)
	}

	info := collector.Finish()
	ns.logger.Info("[nstree] delete", "op_id", id, "path", path, "blocks_collected", len(info.Blocks))
	return info, nil
}

// subtreeHasSnapshots reports whether n is a directory that is itself
// snapshottable with retained snapshots, or contains such a directory
// anywhere beneath it — the condition spec.md §4.1's delete forbids
// (a retained snapshot must never be able to go silently unreachable).
// path is n's own namespace path; on a true result the returned path
// names whichever directory — n itself or a nested descendant — is
// actually still holding snapshots, so a caller reports the real
// offender rather than always blaming the delete's own target (spec.md
// §4.5's "both produce the same failure kind" rule still applies, but
// the path differs).
func (ns *Namespace) subtreeHasSnapshots(n inode.Node, path string) (string, bool) {
	dir, ok := pathresolver.AsDirectory(n)
	if !ok {
		return "", false
	}
	if sd, ok := ns.snappable[dir]; ok && !sd.CanDisallow() {
		return path, true
	}
	for _, c := range dir.Children() {
		childPath := nskey.Join(append(nskey.Split(path), c.NameKey()))
		if offender, found := ns.subtreeHasSnapshots(c, childPath); found {
			return offender, true
		}
	}
	return "", false
}

// touchNode updates n's modification time in place. A reference node
// (WithName/DstReference) has no modification time of its own — it
// delegates to its pointee — so touchNode follows AsReference first
// and touches the underlying concrete inode instead. A promoted
// concrete inode answers AsReference with the WithCount that wraps it,
// whose Referred is the inode itself; that one is touched directly.
func touchNode(n inode.Node, now time.Time) {
	if ref := n.AsReference(); ref != nil && ref.Referred != n {
		touchNode(ref.Referred, now)
		return
	}
	switch v := n.(type) {
	case *inode.File:
		v.Touch(now)
	case *inode.Directory:
		v.Touch(now)
	case *inode.QuotaDirectory:
		v.Touch(now)
	}
}

// renameNode updates n's local name in place for the plain-move case
// (no snapshot anywhere needs to keep seeing the old position). A
// reference node has no local name of its own to rename in this
// sense — its frozen localName belongs to a different position
// entirely — so renameNode follows AsReference and renames the
// pointee itself, the same delegation touchNode applies (including
// its rule for a promoted concrete inode).
func renameNode(n inode.Node, newName nskey.Key) {
	if ref := n.AsReference(); ref != nil && ref.Referred != n {
		renameNode(ref.Referred, newName)
		return
	}
	switch v := n.(type) {
	case *inode.File:
		v.SetName(newName)
	case *inode.Directory:
		v.SetName(newName)
	case *inode.QuotaDirectory:
		v.SetName(newName)
	}
}

// Rename moves the inode at src to dst, implementing spec.md §4.4's
// reference-node algorithm when a snapshot covering the source
// position would otherwise lose sight of it: x is wrapped in a shared
// WithCount, a WithName frozen at its old name replaces it at src, and
// a DstReference is installed at dst. When no snapshot covers the
// source position, x is simply moved and renamed in place.
func (ns *Namespace) Rename(src, dst string, now time.Time) error {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	id := ns.opID()

	srcRes, err := ns.resolve(src)
	if err != nil {
		return err
	}
	if srcRes.IsSnapshotPath {
		return nserrors.New("rename", src, nserrors.KindInSnapshotPath)
	}
	if !srcRes.Found() {
		return nserrors.New("rename", src, nserrors.KindNotFound)
	}
	dstRes, err := ns.resolve(dst)
	if err != nil {
		return err
	}
	if dstRes.IsSnapshotPath {
		return nserrors.New("rename", dst, nserrors.KindInSnapshotPath)
	}
	if dstRes.Found() {
		return nserrors.New("rename", dst, nserrors.KindExists)
	}

	srcParentPath, srcName := splitParentPath(src)
	dstParentPath, dstName := splitParentPath(dst)
	if srcName == nil || dstName == nil {
		return nserrors.New("rename", src, nserrors.KindInvariantViolation)
	}
	srcParent, err := ns.resolveLiveDir("rename", srcParentPath)
	if err != nil {
		return err
	}
	dstParent, err := ns.resolveLiveDir("rename", dstParentPath)
	if err != nil {
		return err
	}

	x, _, found := srcParent.Lookup(srcName)
	if !found {
		return nserrors.New("rename", src, nserrors.KindNotFound)
	}

	srcLatest := ns.latestFor(srcParent)
	dstLatest := ns.latestFor(dstParent)

	if srcLatest == nil {
		// Nothing covers the source position anymore, so x (or, if x is
		// itself a reference left by an earlier cross-snapshot rename,
		// its pointee) can simply move. Unwrapping here — rather than
		// moving the reference node itself — keeps renameNode/touchNode
		// operating on the concrete inode whose NameKey the live tree
		// actually needs, and drops the now-unnecessary indirection: the
		// one reference edge x held is released, but the pointee is
		// reattached directly rather than collected, since it remains
		// live right here.
		live := x
		if ref := x.AsReference(); ref != nil {
			_, pointee := ref.RemoveReference()
			inode.ReleaseReference(pointee)
			live = pointee
		}
		if _, err := ns.dirState(srcParent).RemoveChild(x, nil, nil); err != nil {
			return err
		}
		renameNode(live, dstName)
		touchNode(live, now)
		ns.dirState(dstParent).AddChild(live, dstLatest)
		ns.logger.Info("[nstree] rename", "op_id", id, "src", src, "dst", dst, "referenced", false)
		return nil
	}

	touchNode(x, now)
	// PromoteToReference reuses x's existing WithCount when x is
	// already a WithName/DstReference (a second rename of an already-
	// renamed inode): the new WithName below takes over the reference
	// edge x itself held, so no count change happens here — only
	// NewDstReference's AddReference below grows the count.
	w, wn := inode.PromoteToReference(x, srcParent)
	// The diff records (deleted: wn, created: —) per spec.md §4.4 rule
	// 1 — wn, not x, is the value a historical read recovers, and the
	// live tree loses the child entirely (x really did move away).
	// RemoveChild is given wn rather than x: it looks the live child up
	// by NameKey (wn's frozen name matches x's, so it finds and removes
	// x's actual live slot) but records wn as the deleted value.
	if _, err := ns.dirState(srcParent).RemoveChild(wn, srcLatest, nil); err != nil {
		return err
	}

	var dstSnapshotID uint64
	if dstLatest != nil {
		dstSnapshotID = dstLatest.ID
	}
	dr := inode.NewDstReference(w, dstName, dstParent, dstSnapshotID)
	ns.dirState(dstParent).AddChild(dr, dstLatest)

	ns.logger.Info("[nstree] rename", "op_id", id, "src", src, "dst", dst, "referenced", true, "ref_count", w.Count())
	return nil
}

// SetAttrs updates the owner/group/mode and modification time of the
// inode at path, capturing its pre-change state into the latest
// covering snapshot first if one exists (spec.md §4.2/§4.3's
// saveSelf2Snapshot). A path that resolves through a WithName or
// DstReference left by an earlier cross-snapshot rename is handled by
// delegating through the reference to its pointee, per spec.md §4.4's
// "attribute delegation": the caller sees one inode regardless of
// which side of a rename it is reached from.
func (ns *Namespace) SetAttrs(path string, perm inode.Permissions, now time.Time) error {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	id := ns.opID()

	res, err := ns.resolve(path)
	if err != nil {
		return err
	}
	if res.IsSnapshotPath {
		return nserrors.New("setAttrs", path, nserrors.KindInSnapshotPath)
	}
	if !res.Found() {
		return nserrors.New("setAttrs", path, nserrors.KindNotFound)
	}
	parentPath, _ := splitParentPath(path)
	parentDir, err := ns.resolveLiveDir("setAttrs", parentPath)
	if err != nil {
		return err
	}
	latest := ns.latestFor(parentDir)

	target := res.Last()
	if dr, ok := target.(*inode.DstReference); ok {
		latest = ns.effectiveHandle(dr, latest, id, path)
	}
	if ref := target.AsReference(); ref != nil {
		target = ref.Referred
	}

	if !ns.applyAttrs(target, latest, perm, now) {
		return nserrors.New("setAttrs", path, nserrors.KindInvariantViolation)
	}
	ns.logger.Info("[nstree] setAttrs", "op_id", id, "path", path)
	return nil
}

// applyAttrs captures n's pre-change state into the latest diff, if
// any, and applies perm/now to the live copy. n must be one of the
// three concrete inode kinds — applyAttrs is always called after any
// reference has already been unwrapped to its pointee — and reports
// false if it is not.
func (ns *Namespace) applyAttrs(n inode.Node, latest *inode.SnapshotHandle, perm inode.Permissions, now time.Time) bool {
	switch v := n.(type) {
	case *inode.File:
		ns.fileState(v).SaveSelf2Snapshot(latest)
		v.SetPerm(perm)
		v.Touch(now)
	case *inode.Directory:
		ns.dirState(v).SaveSelf2Snapshot(latest, nil)
		v.SetPerm(perm)
		v.Touch(now)
	case *inode.QuotaDirectory:
		ns.dirState(v.Directory).SaveSelf2Snapshot(latest, nil)
		v.SetPerm(perm)
		v.Touch(now)
	default:
		return false
	}
	return true
}

// effectiveHandle resolves dr.EffectiveSnapshotID (spec.md §4.4 rule
// 2) against the live handle this namespace still has: destLatest
// itself, whether or not it is the newer of the two ids. The only
// other candidate EffectiveSnapshotID could name is the snapshot id
// captured at rename time, and when that one is the newer of the two
// it is because the destination's own covering snapshot has since
// been renamed past or deleted — there is no live *inode.SnapshotHandle
// left to record against besides destLatest, so this is logged rather
// than acted on.
func (ns *Namespace) effectiveHandle(dr *inode.DstReference, destLatest *inode.SnapshotHandle, opID, path string) *inode.SnapshotHandle {
	eff := dr.EffectiveSnapshotID(destLatest)
	if destLatest == nil || eff != destLatest.ID {
		ns.logger.Debug("[nstree] setAttrs effective snapshot predates capture", "op_id", opID, "path", path, "captured", dr.DstSnapshotID(), "effective", eff)
	}
	return destLatest
}

// AllowSnapshot makes the directory at path snapshottable (spec.md
// §4.5). The directory's identity, attributes, and children are
// unchanged; any diff-chain state it already accumulated as a plain
// descendant of an ancestor's snapshottable subtree is carried over
// rather than discarded.
func (ns *Namespace) AllowSnapshot(path string) error {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	dir, err := ns.resolveLiveDir("allowSnapshot", path)
	if err != nil {
		return err
	}
	if _, exists := ns.snappable[dir]; exists {
		return nil
	}
	sd := snapshot.AllowSnapshotWithState(dir, ns.dirState(dir))
	ns.snappable[dir] = sd
	ns.logger.Info("[nstree] allowSnapshot", "path", path)
	return nil
}

// DisallowSnapshot reverses AllowSnapshot. It fails if the directory
// currently retains any snapshots (spec.md §4.5's CanDisallow).
func (ns *Namespace) DisallowSnapshot(path string) error {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	dir, err := ns.resolveLiveDir("disallowSnapshot", path)
	if err != nil {
		return err
	}
	sd, ok := ns.snappable[dir]
	if !ok {
		return nserrors.New("disallowSnapshot", path, nserrors.KindNotSnapshottable)
	}
	if !sd.CanDisallow() {
		return nserrors.New("disallowSnapshot", path, nserrors.KindHasSnapshots)
	}
	delete(ns.snappable, dir)
	ns.logger.Info("[nstree] disallowSnapshot", "path", path)
	return nil
}

// CreateSnapshot takes a named snapshot of the directory at path,
// which must already be snapshottable (spec.md §4.5).
func (ns *Namespace) CreateSnapshot(path, name string, now time.Time) (*inode.SnapshotHandle, error) {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	id := ns.opID()

	dir, err := ns.resolveLiveDir("createSnapshot", path)
	if err != nil {
		return nil, err
	}
	sd, ok := ns.snappable[dir]
	if !ok {
		return nil, nserrors.New("createSnapshot", path, nserrors.KindNotSnapshottable)
	}
	handle, err := sd.CreateSnapshot(name, now)
	if err != nil {
		ns.logger.Error("[nstree] createSnapshot", "op_id", id, "path", path, "name", name, "err", err)
		return nil, err
	}
	ns.logger.Info("[nstree] createSnapshot", "op_id", id, "path", path, "name", name, "snapshot_id", handle.ID)
	return handle, nil
}

// RenameSnapshot renames an existing snapshot of the directory at
// path.
func (ns *Namespace) RenameSnapshot(path, oldName, newName string) error {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	dir, err := ns.resolveLiveDir("renameSnapshot", path)
	if err != nil {
		return err
	}
	sd, ok := ns.snappable[dir]
	if !ok {
		return nserrors.New("renameSnapshot", path, nserrors.KindNotSnapshottable)
	}
	if err := sd.RenameSnapshot(oldName, newName); err != nil {
		return err
	}
	ns.logger.Info("[nstree] renameSnapshot", "path", path, "old_name", oldName, "new_name", newName)
	return nil
}

// DeleteSnapshot removes a named snapshot of the directory at path,
// releasing any blocks that become unreachable as a result (spec.md
// §4.7's deleteSnapshotDiff, via C9).
func (ns *Namespace) DeleteSnapshot(path, name string) (*blockmap.UpdateInfo, error) {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	id := ns.opID()

	dir, err := ns.resolveLiveDir("deleteSnapshot", path)
	if err != nil {
		return nil, err
	}
	sd, ok := ns.snappable[dir]
	if !ok {
		return nil, nserrors.New("deleteSnapshot", path, nserrors.KindNotSnapshottable)
	}
	handle, ok := sd.Get(name)
	if !ok {
		return nil, nserrors.New("deleteSnapshot", name, nserrors.KindNotFound)
	}

	collector := blockmap.NewCollector()
	if _, err := sd.DeleteSnapshot(name, collector); err != nil {
		ns.logger.Error("[nstree] deleteSnapshot", "op_id", id, "path", path, "name", name, "err", err)
		return nil, err
	}
	for _, d := range ns.dirMembers[dir] {
		if err := ns.dirStates[d].DeleteSnapshotDiff(handle, collector); err != nil {
			return nil, err
		}
	}
	for _, f := range ns.fileMembers[dir] {
		if err := ns.fileStates[f].DeleteSnapshotDiff(handle, collector); err != nil {
			return nil, err
		}
	}

	info := collector.Finish()
	ns.logger.Info("[nstree] deleteSnapshot", "op_id", id, "path", path, "name", name, "blocks_collected", len(info.Blocks))
	return info, nil
}

// ListSnapshots lists every retained snapshot of the directory at
// path, ordered by id ascending.
func (ns *Namespace) ListSnapshots(path string) ([]*inode.SnapshotHandle, error) {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	dir, err := ns.resolveLiveDir("listSnapshots", path)
	if err != nil {
		return nil, err
	}
	sd, ok := ns.snappable[dir]
	if !ok {
		return nil, nserrors.New("listSnapshots", path, nserrors.KindNotSnapshottable)
	}
	return sd.ListSnapshots(), nil
}

// ListSnapshottable returns every directory currently snapshottable,
// ordered by inode id ascending for deterministic output.
func (ns *Namespace) ListSnapshottable() []*inode.Directory {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	out := make([]*inode.Directory, 0, len(ns.snappable))
	for d := range ns.snappable {
		out = append(out, d)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].ID() < out[j-1].ID(); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
