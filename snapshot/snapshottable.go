// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package snapshot

import (
	"sort"
	"time"

	"github.com/strongdm/nstree/blockmap"
	"github.com/strongdm/nstree/inode"
	"github.com/strongdm/nstree/nserrors"
)

// SnapshottableDirectory is the per-directory state spec.md §4.5
// describes: a monotonically-increasing snapshot id counter, a
// name-to-handle map (names unique within the directory), and a
// pointer to the most recently created snapshot. Converting a plain
// *inode.Directory into one (allowSnapshot) and back (disallowSnapshot)
// preserves the directory's identity — SnapshottableDirectory simply
// wraps the same *inode.Directory, it never copies it.
type SnapshottableDirectory struct {
	Dir   *inode.Directory
	State *DirectorySnapshotState

	nextSnapshotID uint64
	byName         map[string]*inode.SnapshotHandle
	latest         *inode.SnapshotHandle
}

// AllowSnapshot wraps dir as a SnapshottableDirectory. dir's identity,
// attributes, and children are unchanged.
func AllowSnapshot(dir *inode.Directory) *SnapshottableDirectory {
	return AllowSnapshotWithState(dir, NewDirectorySnapshotState(dir))
}

// AllowSnapshotWithState is like AllowSnapshot but reuses an existing
// DirectorySnapshotState rather than starting a fresh one — the case
// where dir already accumulated diffs as a plain descendant of some
// ancestor's snapshottable subtree before becoming snapshottable
// itself (spec.md §4.5's identity-preserving allowSnapshot must not
// discard history the directory already has).
func AllowSnapshotWithState(dir *inode.Directory, state *DirectorySnapshotState) *SnapshottableDirectory {
	return &SnapshottableDirectory{
		Dir:            dir,
		State:          state,
		nextSnapshotID: 1,
		byName:         make(map[string]*inode.SnapshotHandle),
	}
}

// CanDisallow reports whether sd currently has zero retained
// snapshots — the only condition under which disallowSnapshot is
// permitted (spec.md §4.5).
func (sd *SnapshottableDirectory) CanDisallow() bool {
	return len(sd.byName) == 0
}

// Latest returns the most recently created snapshot, or nil if none
// exist.
func (sd *SnapshottableDirectory) Latest() *inode.SnapshotHandle {
	return sd.latest
}

// Get looks up a snapshot by name.
func (sd *SnapshottableDirectory) Get(name string) (*inode.SnapshotHandle, bool) {
	h, ok := sd.byName[name]
	return h, ok
}

// CreateSnapshot allocates the next id, freezes a shallow copy of the
// directory as the snapshot root, and records a creation diff
// (spec.md §4.5's createSnapshot).
func (sd *SnapshottableDirectory) CreateSnapshot(name string, now time.Time) (*inode.SnapshotHandle, error) {
	if _, exists := sd.byName[name]; exists {
		return nil, nserrors.New("createSnapshot", name, nserrors.KindNameExists)
	}
	id := sd.nextSnapshotID
	sd.nextSnapshotID++

	root := sd.Dir.Clone()
	handle := &inode.SnapshotHandle{ID: id, Name: name, Root: root}
	sd.State.AddSnapshotDiff(handle, root)
	sd.byName[name] = handle
	sd.latest = inode.Newer(sd.latest, handle)
	return handle, nil
}

// RenameSnapshot renames an existing snapshot, forbidding a name
// collision (spec.md §4.5's renameSnapshot).
func (sd *SnapshottableDirectory) RenameSnapshot(oldName, newName string) error {
	handle, ok := sd.byName[oldName]
	if !ok {
		return nserrors.New("renameSnapshot", oldName, nserrors.KindNotFound)
	}
	if oldName == newName {
		return nil
	}
	if _, exists := sd.byName[newName]; exists {
		return nserrors.New("renameSnapshot", newName, nserrors.KindNameExists)
	}
	delete(sd.byName, oldName)
	handle.Name = newName
	sd.byName[newName] = handle
	return nil
}

// DeleteSnapshot invokes C9's deleteSnapshotDiff and then drops the
// handle (spec.md §4.5's deleteSnapshot).
func (sd *SnapshottableDirectory) DeleteSnapshot(name string, collector *blockmap.Collector) (*blockmap.UpdateInfo, error) {
	handle, ok := sd.byName[name]
	if !ok {
		return nil, nserrors.New("deleteSnapshot", name, nserrors.KindNotFound)
	}
	if err := sd.State.DeleteSnapshotDiff(handle, collector); err != nil {
		return nil, err
	}
	delete(sd.byName, name)
	if sd.latest == handle {
		sd.latest = sd.mostRecentRemaining()
	}
	return collector.Finish(), nil
}

func (sd *SnapshottableDirectory) mostRecentRemaining() *inode.SnapshotHandle {
	var latest *inode.SnapshotHandle
	for _, h := range sd.byName {
		latest = inode.Newer(latest, h)
	}
	return latest
}

// ListSnapshots returns every retained snapshot, ordered by id
// ascending (spec.md §3's "totally ordered by id").
func (sd *SnapshottableDirectory) ListSnapshots() []*inode.SnapshotHandle {
	out := make([]*inode.SnapshotHandle, 0, len(sd.byName))
	for _, h := range sd.byName {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
