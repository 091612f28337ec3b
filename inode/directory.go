// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package inode

import (
	"encoding/binary"
	"sort"
	"time"

	"github.com/strongdm/nstree/nskey"
	"github.com/zeebo/blake3"
)

// Directory is the inode variant for a directory: a sorted children
// list keyed by name (spec.md §3). The children slice itself always
// reflects the *live* state; historical states are reconstructed by
// the snapshot package from the directory's diff chain, never by
// mutating or copying this slice per snapshot.
type Directory struct {
	header
	children []Node
}

// NewDirectory constructs an empty directory inode.
func NewDirectory(id ID, name nskey.Key, perm Permissions, now time.Time) *Directory {
	return &Directory{
		header: header{
			id:         id,
			name:       name.Clone(),
			perm:       perm,
			modTime:    now,
			accessTime: now,
		},
	}
}

// Children returns the live children in ascending key order. The
// returned slice must not be mutated by the caller; use InsertChild
// and RemoveChildAt.
func (d *Directory) Children() []Node {
	return d.children
}

// Lookup binary-searches the live children for name, returning the
// node, its index, and whether it was found.
func (d *Directory) Lookup(name nskey.Key) (Node, int, bool) {
	i := sort.Search(len(d.children), func(i int) bool {
		return d.children[i].NameKey().Compare(name) >= 0
	})
	if i < len(d.children) && d.children[i].NameKey().Equal(name) {
		return d.children[i], i, true
	}
	return nil, i, false
}

// InsertChild inserts n into the live children at its sorted
// position. It is the caller's responsibility (DirectorySnapshotState
// in the snapshot package) to have already recorded the change in the
// directory's diff chain before calling this — InsertChild only
// maintains the live slice.
func (d *Directory) InsertChild(n Node) {
	if ps, ok := n.(parentSetter); ok {
		ps.setParent(d)
	}
	_, i, found := d.Lookup(n.NameKey())
	if found {
		d.children[i] = n
		return
	}
	d.children = append(d.children, nil)
	copy(d.children[i+1:], d.children[i:])
	d.children[i] = n
}

// RemoveChildAt removes the child at index i from the live children.
func (d *Directory) RemoveChildAt(i int) {
	d.children = append(d.children[:i], d.children[i+1:]...)
}

// SetPerm replaces d's owner/group/mode triple in place. Callers that
// need the pre-change value visible to an existing snapshot must
// capture it first via DirectorySnapshotState.SaveSelf2Snapshot.
func (d *Directory) SetPerm(p Permissions) {
	d.perm = p
}

// SetName renames d in place, preserving its identity. The caller is
// responsible for re-sorting whatever directory's children slice
// holds d.
func (d *Directory) SetName(name nskey.Key) {
	d.setName(name.Clone())
}

// Touch updates d's modification time.
func (d *Directory) Touch(now time.Time) {
	d.touch(now)
}

// Clone returns a shallow copy of d suitable for use as a
// SnapshotHandle's Root: an independent header and an independent
// children slice, but the child nodes themselves are shared (the
// children are frozen in the sense that any *further* mutation goes
// through the diff chain, not through this slice).
func (d *Directory) Clone() *Directory {
	clone := &Directory{
		header: header{
			id:         d.id,
			name:       d.name.Clone(),
			perm:       d.perm,
			modTime:    d.modTime,
			accessTime: d.accessTime,
		},
		children: append([]Node(nil), d.children...),
	}
	return clone
}

// CloneAttrsOnly returns a copy of d's attribute header with no
// children, the shape used for the optional frozen directory inode
// inside a DirectoryDiff (spec.md §4.2's saveSelf2Snapshot) — only
// attribute changes are captured there, since the children themselves
// are reconstructed from the ChildrenDiff against the live list.
func (d *Directory) CloneAttrsOnly() *Directory {
	return &Directory{
		header: header{
			id:         d.id,
			name:       d.name.Clone(),
			perm:       d.perm,
			modTime:    d.modTime,
			accessTime: d.accessTime,
		},
	}
}

// Fingerprint hashes the sorted children-name list with BLAKE3, the
// same cheap-comparison role the teacher's fstree package uses BLAKE3
// for over a TreeObject's serialized entries.
func (d *Directory) Fingerprint() [32]byte {
	h := blake3.New()
	var buf [8]byte
	for _, c := range d.children {
		binary.LittleEndian.PutUint64(buf[:], uint64(len(c.NameKey())))
		h.Write(buf[:])
		h.Write(c.NameKey())
	}
	var sum [32]byte
	h.Sum(sum[:0])
	return sum
}
