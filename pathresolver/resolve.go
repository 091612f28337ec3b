// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

// Package pathresolver walks the live namespace tree and transparently
// redirects into a snapshot view the moment it crosses a `.snapshot`
// pseudo-component (spec.md §4.6, component C8).
package pathresolver

import (
	"github.com/strongdm/nstree/inode"
	"github.com/strongdm/nstree/nskey"
	"github.com/strongdm/nstree/snapshot"
)

// Index supplies the per-directory snapshot bookkeeping the resolver
// consults but does not own. Every directory under a snapshottable
// root may carry its own *snapshot.DirectorySnapshotState (spec.md
// §4.2), not only the root itself, so the resolver asks for it one
// directory at a time rather than assuming the root package's
// registries.
type Index interface {
	// Snapshottable returns dir's snapshottable-root state, or nil if
	// dir is not (or is no longer) snapshottable.
	Snapshottable(dir *inode.Directory) *snapshot.SnapshottableDirectory
	// DirState returns dir's diff-chain state, or nil if dir has never
	// been mutated under a covering snapshot.
	DirState(dir *inode.Directory) *snapshot.DirectorySnapshotState
}

// Resolution is the inodes-in-path record spec.md §3/§4.6 describes.
// It is a read-only snapshot of one resolution: nothing the engine
// does afterward mutates a Resolution already returned.
type Resolution struct {
	// Inodes holds one entry per path component actually walked, in
	// order; a nil entry marks a component that does not exist. Once
	// one entry is nil, every later entry is nil too. When the path
	// ends in a bare `.snapshot` pseudo-component, Inodes stops short
	// of it — the pseudo-directory itself never gets a slot.
	Inodes []inode.Node
	// NumNonNull counts the non-nil entries in Inodes.
	NumNonNull int
	// LatestSnapshot is the newest snapshot handle found on any
	// snapshottable directory passed on the way down, for live (not
	// in-snapshot) paths. It is the handle a write reached through this
	// resolution should record its diff against.
	LatestSnapshot *inode.SnapshotHandle
	// IsSnapshotPath reports whether the path crossed `.snapshot`
	// anywhere along its walk.
	IsSnapshotPath bool
	// PathSnapshot is the snapshot named after the `.snapshot`
	// component, once crossed. Every further lookup on this
	// Resolution must use it, never the live tree.
	PathSnapshot *inode.SnapshotHandle
	// SnapshotRootIndex is the index within Inodes of the snapshot's
	// frozen root directory, or -1 if the path never crossed
	// `.snapshot`.
	SnapshotRootIndex int
}

// Last returns the final resolved inode, or nil if the path resolved
// to nothing (including the empty path).
func (r *Resolution) Last() inode.Node {
	if len(r.Inodes) == 0 {
		return nil
	}
	return r.Inodes[len(r.Inodes)-1]
}

// Found reports whether the path resolved all the way to an inode.
func (r *Resolution) Found() bool {
	return r.Last() != nil
}

func (r *Resolution) append(n inode.Node) {
	r.Inodes = append(r.Inodes, n)
	if n != nil {
		r.NumNonNull++
	}
}

func (r *Resolution) fillRemaining(n int) {
	for i := 0; i < n; i++ {
		r.Inodes = append(r.Inodes, nil)
	}
}

// Resolve walks path from root, following spec.md §4.6's algorithm.
// It never fails on a missing component — those become null entries —
// so the returned error is reserved for inputs the resolver itself
// cannot interpret; today there are none, and Resolve always returns
// a nil error.
func Resolve(idx Index, root *inode.Directory, path string) (*Resolution, error) {
	keys := nskey.Split(path)
	res := &Resolution{SnapshotRootIndex: -1}

	currentDir := root
	for i := 0; i < len(keys); i++ {
		if !res.IsSnapshotPath {
			if sd := idx.Snapshottable(currentDir); sd != nil {
				res.LatestSnapshot = inode.Newer(res.LatestSnapshot, sd.Latest())
			}
		}

		k := keys[i]
		if nskey.IsDotSnapshot(k) {
			if sd := idx.Snapshottable(currentDir); sd != nil {
				res.IsSnapshotPath = true
				if i == len(keys)-1 {
					return res, nil
				}
				i++
				handle, ok := sd.Get(keys[i].String())
				if !ok {
					res.fillRemaining(len(keys) - i)
					return res, nil
				}
				res.PathSnapshot = handle
				res.SnapshotRootIndex = len(res.Inodes)
				res.append(handle.Root)
				currentDir = handle.Root
				continue
			}
		}

		child := lookupChild(idx, currentDir, k, res)
		res.append(child)
		if child == nil {
			res.fillRemaining(len(keys) - i - 1)
			return res, nil
		}
		if i == len(keys)-1 {
			break
		}
		next, ok := AsDirectory(child)
		if !ok {
			res.fillRemaining(len(keys) - i - 1)
			return res, nil
		}
		currentDir = next
	}
	return res, nil
}

func lookupChild(idx Index, dir *inode.Directory, name nskey.Key, res *Resolution) inode.Node {
	if res.IsSnapshotPath {
		if ds := idx.DirState(dir); ds != nil {
			return ds.GetChild(name, res.PathSnapshot, true)
		}
		child, _, found := dir.Lookup(name)
		if !found {
			return nil
		}
		return child
	}
	child, _, found := dir.Lookup(name)
	if !found {
		return nil
	}
	return child
}

// AsDirectory reports whether n can be descended into as a directory,
// unwrapping one reference-node hop if necessary (a renamed directory
// reached through a WithName/DstReference still delegates to the same
// underlying *inode.Directory). Exported so the root namespace package
// can reuse the same unwrapping rule for mkdirs/create/rename's parent
// resolution.
func AsDirectory(n inode.Node) (*inode.Directory, bool) {
	switch v := n.(type) {
	case *inode.Directory:
		return v, true
	case *inode.QuotaDirectory:
		return v.Directory, true
	case *inode.WithName:
		return AsDirectory(v.AsReference().Referred)
	case *inode.DstReference:
		return AsDirectory(v.AsReference().Referred)
	default:
		return nil, false
	}
}
