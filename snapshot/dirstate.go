// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package snapshot

import (
	"encoding/binary"

	"github.com/strongdm/nstree/blockmap"
	"github.com/strongdm/nstree/diff"
	"github.com/strongdm/nstree/inode"
	"github.com/strongdm/nstree/nserrors"
	"github.com/strongdm/nstree/nskey"
	"github.com/zeebo/blake3"
)

// ChildrenDiff is the generic diff primitive instantiated over a
// directory's children: created/deleted name keys, with the deleted
// side carrying the removed inode's snapshot copy (spec.md §3).
type ChildrenDiff = diff.Diff[nskey.Key, inode.Node]

// DirectoryDiff bundles everything spec.md §3's "SnapshotDiff" names
// for a directory: the snapshot it produces when applied backwards
// from its posterior state, the posterior child-count, an optional
// frozen attribute copy, the ChildrenDiff itself, and the pointer to
// the next (posterior) diff in the chain — nil meaning the live state
// is posterior.
type DirectoryDiff struct {
	Snapshot      *inode.SnapshotHandle
	PosteriorSize int
	FrozenDir     *inode.Directory
	Children      *ChildrenDiff
	Posterior     *DirectoryDiff

	state lifecycle
}

func newDirectoryDiff(snap *inode.SnapshotHandle, posteriorSize int) *DirectoryDiff {
	return &DirectoryDiff{
		Snapshot:      snap,
		PosteriorSize: posteriorSize,
		Children:      diff.New[nskey.Key, inode.Node](),
		state:         latestEmpty,
	}
}

func (dd *DirectoryDiff) markMutated() {
	if dd.state == latestEmpty {
		dd.state = accumulating
	}
}

// Fingerprint hashes the diff's frozen attribute copy (if any) and its
// sorted created/deleted key sets with BLAKE3 — the content-addressing
// expansion of §3, used only by tests and the fixture dumper to
// compare two independently reconstructed diffs cheaply.
func (dd *DirectoryDiff) Fingerprint() [32]byte {
	h := blake3.New()
	if dd.FrozenDir != nil {
		fp := dd.FrozenDir.Fingerprint()
		h.Write(fp[:])
	}
	var buf [8]byte
	for _, k := range dd.Children.Created {
		binary.LittleEndian.PutUint64(buf[:], uint64(len(k)))
		h.Write(buf[:])
		h.Write(k)
		h.Write([]byte{0})
	}
	for _, e := range dd.Children.Deleted {
		binary.LittleEndian.PutUint64(buf[:], uint64(len(e.Key)))
		h.Write(buf[:])
		h.Write(e.Key)
		h.Write([]byte{1})
	}
	var sum [32]byte
	h.Sum(sum[:0])
	return sum
}

// DirectorySnapshotState owns the chronological diff chain
// d1 → d2 → … → dn → (live) attached to one snapshottable directory's
// descendant (spec.md §4.2).
type DirectorySnapshotState struct {
	dir   *inode.Directory
	diffs []*DirectoryDiff
}

// NewDirectorySnapshotState returns empty snapshot state for dir.
func NewDirectorySnapshotState(dir *inode.Directory) *DirectorySnapshotState {
	return &DirectorySnapshotState{dir: dir}
}

func (s *DirectorySnapshotState) last() *DirectoryDiff {
	if len(s.diffs) == 0 {
		return nil
	}
	return s.diffs[len(s.diffs)-1]
}

// CheckAndAddLatestDiff appends a fresh empty diff if latest is
// non-nil and differs from the last recorded diff's snapshot
// (spec.md §4.2's checkAndAddLatestDiff). A nil latest means no
// snapshot currently covers this directory, so no diff is recorded at
// all — mutations fall straight through to the live tree.
func (s *DirectorySnapshotState) CheckAndAddLatestDiff(latest *inode.SnapshotHandle) *DirectoryDiff {
	if latest == nil {
		return nil
	}
	last := s.last()
	if last != nil && last.Snapshot == latest {
		return last
	}
	nd := newDirectoryDiff(latest, len(s.dir.Children()))
	if last != nil {
		last.Posterior = nd
		last.state = frozen
	}
	s.diffs = append(s.diffs, nd)
	return nd
}

// AddSnapshotDiff implements the explicit creation path: a fresh empty
// diff whose frozen directory inode is the snapshot root itself, so
// this diff is recognizable as a snapshot root (spec.md §4.2, "Snapshot
// creation for a directory").
func (s *DirectorySnapshotState) AddSnapshotDiff(snap *inode.SnapshotHandle, snapshotRoot *inode.Directory) *DirectoryDiff {
	last := s.last()
	nd := newDirectoryDiff(snap, len(s.dir.Children()))
	nd.FrozenDir = snapshotRoot
	if last != nil {
		last.Posterior = nd
		last.state = frozen
	}
	s.diffs = append(s.diffs, nd)
	return nd
}

// AddChild implements spec.md §4.2's addChild: diff.create(node) into
// the latest diff (if any snapshot covers this directory), then insert
// into the live children. The returned Undo reverses both steps.
func (s *DirectorySnapshotState) AddChild(child inode.Node, latest *inode.SnapshotHandle) diff.Undo {
	dd := s.CheckAndAddLatestDiff(latest)
	undoDiff := diff.Undo(func() {})
	if dd != nil {
		undoDiff = dd.Children.Create(child.NameKey(), nskey.Compare)
		dd.markMutated()
	}
	s.dir.InsertChild(child)
	return func() {
		if _, idx, found := s.dir.Lookup(child.NameKey()); found {
			s.dir.RemoveChildAt(idx)
		}
		undoDiff()
	}
}

// RemoveChild implements spec.md §4.2's removeChild: diff.delete(node)
// into the latest diff, then remove from the live children. onTrash,
// if non-nil, is invoked with the previously-created element the diff
// trashed (created and deleted within the same diff) so the caller can
// detach a file from its version chain per §4.2's final clause.
func (s *DirectorySnapshotState) RemoveChild(child inode.Node, latest *inode.SnapshotHandle, onTrash func(inode.Node)) (diff.Undo, error) {
	_, idx, found := s.dir.Lookup(child.NameKey())
	if !found {
		return nil, nserrors.New("removeChild", child.NameKey().String(), nserrors.KindNotFound)
	}
	dd := s.CheckAndAddLatestDiff(latest)
	undoDiff := diff.Undo(func() {})
	if dd != nil {
		u, trashed := dd.Children.Delete(child.NameKey(), child, nskey.Compare)
		undoDiff = u
		dd.markMutated()
		if trashed != nil && onTrash != nil {
			onTrash(*trashed)
		}
	}
	s.dir.RemoveChildAt(idx)
	return func() {
		s.dir.InsertChild(child)
		undoDiff()
	}, nil
}

// SaveSelf2Snapshot captures the directory's own attributes into the
// latest diff if it has not already been captured this diff. provided
// lets a caller that already built a copy (e.g. the snapshot-creation
// path) supply it instead of triggering another clone.
func (s *DirectorySnapshotState) SaveSelf2Snapshot(latest *inode.SnapshotHandle, provided *inode.Directory) *inode.Directory {
	dd := s.CheckAndAddLatestDiff(latest)
	if dd == nil {
		return nil
	}
	if dd.FrozenDir == nil {
		if provided != nil {
			dd.FrozenDir = provided
		} else {
			dd.FrozenDir = s.dir.CloneAttrsOnly()
		}
		dd.markMutated()
	}
	return dd.FrozenDir
}

func (s *DirectorySnapshotState) findDiffIndex(handle *inode.SnapshotHandle) (int, bool) {
	return findBySnapshotID(len(s.diffs), func(i int) uint64 { return s.diffs[i].Snapshot.ID }, handle.ID)
}

func (s *DirectorySnapshotState) combineFrom(idx int) *ChildrenDiff {
	combined := s.diffs[idx].Children
	for i := idx + 1; i < len(s.diffs); i++ {
		next, err := combined.CombinePosterior(s.diffs[i].Children, nskey.Compare, nil)
		if err != nil {
			panic(err) // invariant-violation: programmer error, never recovered (spec.md §7)
		}
		combined = next
	}
	return combined
}

// GetChildrenList reconstructs the children of the directory as of
// snapshot handle (nil meaning live), per spec.md §4.2's
// getChildrenList.
func (s *DirectorySnapshotState) GetChildrenList(handle *inode.SnapshotHandle) []inode.Node {
	if handle == nil {
		return s.dir.Children()
	}
	idx, exact := s.findDiffIndex(handle)
	if exact {
		combined := s.combineFrom(idx)
		posterior := nodesToEntries(s.dir.Children())
		prior := combined.Apply2Current(posterior, nskey.Compare)
		return entriesToNodes(prior)
	}
	if idx < len(s.diffs) {
		return s.GetChildrenList(s.diffs[idx].Snapshot)
	}
	return s.dir.Children()
}

// GetChild implements spec.md §4.2's getChild: walk from the diff for
// handle forward through posterior links, answering as soon as
// AccessPrevious is conclusive; at the end of the chain, consult the
// live child only if checkPosterior.
func (s *DirectorySnapshotState) GetChild(name nskey.Key, handle *inode.SnapshotHandle, checkPosterior bool) inode.Node {
	if handle == nil {
		if node, _, found := s.dir.Lookup(name); found {
			return node
		}
		return nil
	}
	idx, exact := s.findDiffIndex(handle)
	if !exact {
		if idx >= len(s.diffs) {
			if checkPosterior {
				if node, _, found := s.dir.Lookup(name); found {
					return node
				}
			}
			return nil
		}
		return s.GetChild(name, s.diffs[idx].Snapshot, checkPosterior)
	}
	for i := idx; i < len(s.diffs); i++ {
		state, val := s.diffs[i].Children.AccessPrevious(name, nskey.Compare)
		switch state {
		case diff.Exists:
			return val
		case diff.Absent:
			return nil
		}
	}
	if checkPosterior {
		if node, _, found := s.dir.Lookup(name); found {
			return node
		}
	}
	return nil
}

// DeleteSnapshotDiff implements spec.md §4.2/§4.7's C9 deletion:
// binary-search for handle; if absent, no-op. Otherwise combine it
// into its predecessor (or, if it is the oldest diff, collect blocks
// for whatever it alone made unreachable) and remove it from the
// chain.
func (s *DirectorySnapshotState) DeleteSnapshotDiff(handle *inode.SnapshotHandle, collector *blockmap.Collector) error {
	idx, exact := s.findDiffIndex(handle)
	if !exact {
		return nil
	}
	d := s.diffs[idx]
	if idx > 0 {
		prev := s.diffs[idx-1]
		combined, err := prev.Children.CombinePosterior(d.Children, nskey.Compare, func(n inode.Node) {
			collectTrashedNode(n, collector)
		})
		if err != nil {
			return err
		}
		prev.Children = combined
		prev.Posterior = d.Posterior
		if prev.FrozenDir == nil {
			prev.FrozenDir = d.FrozenDir
		}
	} else {
		for _, e := range d.Children.Deleted {
			collectTrashedNode(e.Val, collector)
		}
	}
	d.state = gone
	s.diffs = append(s.diffs[:idx], s.diffs[idx+1:]...)
	return nil
}

func nodesToEntries(nodes []inode.Node) []diff.Entry[nskey.Key, inode.Node] {
	out := make([]diff.Entry[nskey.Key, inode.Node], len(nodes))
	for i, n := range nodes {
		out[i] = diff.Entry[nskey.Key, inode.Node]{Key: n.NameKey(), Val: n}
	}
	return out
}

func entriesToNodes(entries []diff.Entry[nskey.Key, inode.Node]) []inode.Node {
	out := make([]inode.Node, len(entries))
	for i, e := range entries {
		out[i] = e.Val
	}
	return out
}
