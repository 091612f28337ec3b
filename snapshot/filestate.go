// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package snapshot

import (
	"github.com/strongdm/nstree/blockmap"
	"github.com/strongdm/nstree/inode"
)

// FileDiff parallels DirectoryDiff's shape for a single file: instead
// of a ChildrenDiff it carries at most one frozen attribute+block-list
// copy, captured the first time the file is mutated under this diff
// (spec.md §4.3). Unlike ChildrenDiff, a FileDiff never needs the
// generic diff.Diff primitive's create/delete machinery — a file
// "diff" has exactly one possible entry (itself), so it is represented
// directly rather than through diff.Diff[struct{}, *inode.File].
type FileDiff struct {
	Snapshot  *inode.SnapshotHandle
	Size      uint64
	Frozen    *inode.File
	Posterior *FileDiff

	state lifecycle
}

func newFileDiff(snap *inode.SnapshotHandle, posteriorSize uint64) *FileDiff {
	return &FileDiff{Snapshot: snap, Size: posteriorSize, state: latestEmpty}
}

func (fd *FileDiff) markMutated() {
	if fd.state == latestEmpty {
		fd.state = accumulating
	}
}

// FileSnapshotState owns the diff list and the version chain for a
// file that has snapshots (spec.md §4.3): every inode representing
// the same file at a different time, live copy plus one per captured
// snapshot state. Represented as an arena-style slice rather than a
// true circular pointer chain (Design Note, spec.md §9) — chain[i]'s
// neighbors are simply chain[i-1] and chain[i+1].
type FileSnapshotState struct {
	live           *inode.File
	diffs          []*FileDiff
	chain          []*inode.File
	CurrentDeleted bool
}

// NewFileSnapshotState returns empty snapshot state for live.
func NewFileSnapshotState(live *inode.File) *FileSnapshotState {
	return &FileSnapshotState{live: live}
}

func (s *FileSnapshotState) last() *FileDiff {
	if len(s.diffs) == 0 {
		return nil
	}
	return s.diffs[len(s.diffs)-1]
}

// CheckAndAddLatestDiff mirrors DirectorySnapshotState's method of the
// same name.
func (s *FileSnapshotState) CheckAndAddLatestDiff(latest *inode.SnapshotHandle) *FileDiff {
	if latest == nil {
		return nil
	}
	last := s.last()
	if last != nil && last.Snapshot == latest {
		return last
	}
	nd := newFileDiff(latest, uint64(len(s.live.Blocks)))
	if last != nil {
		last.Posterior = nd
		last.state = frozen
	}
	s.diffs = append(s.diffs, nd)
	return nd
}

// SaveSelf2Snapshot captures the file's current attributes and block
// list into the latest diff, if not already captured, and links the
// frozen copy into the version chain immediately (spec.md §4.3). The
// live file itself is left for the caller to mutate afterward — the
// frozen copy already holds an independent Blocks slice.
func (s *FileSnapshotState) SaveSelf2Snapshot(latest *inode.SnapshotHandle) *inode.File {
	dd := s.CheckAndAddLatestDiff(latest)
	if dd == nil {
		return nil
	}
	if dd.Frozen == nil {
		frozen := s.live.Clone()
		dd.Frozen = frozen
		dd.Size = uint64(len(frozen.Blocks))
		s.chain = append(s.chain, frozen)
		dd.markMutated()
	}
	return dd.Frozen
}

// VersionChain returns the captured historical copies, oldest first.
// The live file itself is not included.
func (s *FileSnapshotState) VersionChain() []*inode.File {
	return s.chain
}

func (s *FileSnapshotState) findDiffIndex(handle *inode.SnapshotHandle) (int, bool) {
	return findBySnapshotID(len(s.diffs), func(i int) uint64 { return s.diffs[i].Snapshot.ID }, handle.ID)
}

// GetFileAt returns the file as of handle (nil meaning live), walking
// forward through posterior diffs the same way
// DirectorySnapshotState.GetChild does, until a frozen copy is found.
func (s *FileSnapshotState) GetFileAt(handle *inode.SnapshotHandle, checkPosterior bool) *inode.File {
	if handle == nil {
		return s.live
	}
	idx, exact := s.findDiffIndex(handle)
	if !exact {
		if idx < len(s.diffs) {
			return s.GetFileAt(s.diffs[idx].Snapshot, checkPosterior)
		}
		if checkPosterior {
			return s.live
		}
		return nil
	}
	for i := idx; i < len(s.diffs); i++ {
		if s.diffs[i].Frozen != nil {
			return s.diffs[i].Frozen
		}
	}
	if checkPosterior {
		return s.live
	}
	return nil
}

// releaseUnique releases the blocks frozen holds that no other member
// of the version chain (nor the live file, unless CurrentDeleted)
// still references, then drops frozen from the chain — spec.md §4.3's
// "removing a node from the chain ... releases only the blocks no
// other chain member still holds."
func (s *FileSnapshotState) releaseUnique(frozen *inode.File, collector *blockmap.Collector) {
	if frozen == nil {
		return
	}
	held := make(map[inode.BlockID]bool)
	for _, c := range s.chain {
		if c == frozen {
			continue
		}
		for _, b := range c.Blocks {
			held[b] = true
		}
	}
	if !s.CurrentDeleted {
		for _, b := range s.live.Blocks {
			held[b] = true
		}
	}
	var unique []inode.BlockID
	for _, b := range frozen.Blocks {
		if !held[b] {
			unique = append(unique, b)
		}
	}
	if len(unique) > 0 {
		collector.CollectBlocks(unique)
	}
	for i, c := range s.chain {
		if c == frozen {
			s.chain = append(s.chain[:i], s.chain[i+1:]...)
			break
		}
	}
}

// DeleteSnapshotDiff implements C9 for a file diff chain. Unlike
// DirectorySnapshotState's children-set combine, combining two
// adjacent FileDiffs never needs diff.Diff's generic CombinePosterior:
// a FileDiff holds at most one captured value, so "combine" is simply
// "keep whichever frozen copy is older" — the rule the generic
// primitive's "same key deleted/modified in both diffs" case would
// reject is exactly the common case here (the same file legitimately
// changed once in each of two adjacent spans), so the bespoke merge
// below is used instead of reusing the ChildrenDiff machinery (see
// DESIGN.md).
func (s *FileSnapshotState) DeleteSnapshotDiff(handle *inode.SnapshotHandle, collector *blockmap.Collector) error {
	idx, exact := s.findDiffIndex(handle)
	if !exact {
		return nil
	}
	d := s.diffs[idx]
	if idx > 0 {
		prev := s.diffs[idx-1]
		if prev.Frozen == nil {
			prev.Frozen = d.Frozen
		} else if d.Frozen != nil {
			s.releaseUnique(d.Frozen, collector)
		}
		prev.Posterior = d.Posterior
	} else if d.Frozen != nil {
		s.releaseUnique(d.Frozen, collector)
	}
	d.state = gone
	s.diffs = append(s.diffs[:idx], s.diffs[idx+1:]...)
	return nil
}
