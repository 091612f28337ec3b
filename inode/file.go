// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package inode

import (
	"encoding/binary"
	"time"

	"github.com/strongdm/nstree/nskey"
	"github.com/zeebo/blake3"
)

// File is the inode variant for regular files: a replication factor,
// a preferred block size, and an ordered sequence of block ids
// (spec.md §3).
type File struct {
	header
	Replication     uint16
	PreferredBlock  uint64
	Blocks          []BlockID
}

// NewFile constructs a file inode. The caller supplies the id — the
// namespace engine owns id allocation, not the inode package.
func NewFile(id ID, name nskey.Key, perm Permissions, now time.Time) *File {
	return &File{
		header: header{
			id:         id,
			name:       name.Clone(),
			perm:       perm,
			modTime:    now,
			accessTime: now,
		},
	}
}

// Clone returns an independent copy of f: attributes and an
// independent Blocks slice, suitable as the frozen inode captured by
// a FileDiff or as the next link in a version chain (spec.md §4.3).
// Clone does not copy refParent or parent — a frozen historical copy
// is never itself wrapped by a reference and never has live-tree
// parentage.
func (f *File) Clone() *File {
	clone := &File{
		header: header{
			id:         f.id,
			name:       f.name.Clone(),
			perm:       f.perm,
			modTime:    f.modTime,
			accessTime: f.accessTime,
		},
		Replication:    f.Replication,
		PreferredBlock: f.PreferredBlock,
		Blocks:         append([]BlockID(nil), f.Blocks...),
	}
	return clone
}

// SetBlocks replaces the file's current block list, e.g. on append or
// truncation. Historical copies already captured in a diff or version
// chain link are unaffected since Clone gave them an independent
// slice.
func (f *File) SetBlocks(blocks []BlockID) {
	f.Blocks = blocks
}

// SetPerm replaces the file's owner/group/mode triple in place.
// Callers that need the pre-change value visible to an existing
// snapshot must capture it first via FileSnapshotState.SaveSelf2Snapshot.
func (f *File) SetPerm(p Permissions) {
	f.perm = p
}

// SetName renames f in place, preserving its identity. The caller is
// responsible for re-sorting whatever directory's children slice
// holds f.
func (f *File) SetName(name nskey.Key) {
	f.setName(name.Clone())
}

// Touch updates f's modification time.
func (f *File) Touch(now time.Time) {
	f.touch(now)
}

// Fingerprint hashes the file's attributes and block list with
// BLAKE3, the teacher's content-addressing primitive
// (fstree/capture.go's hashFile), so two independently reconstructed
// frozen copies can be compared without a deep slice comparison. The
// fingerprint plays no role in diff-chain correctness.
func (f *File) Fingerprint() [32]byte {
	h := blake3.New()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(f.id))
	h.Write(buf[:])
	h.Write(f.name)
	binary.LittleEndian.PutUint16(buf[:2], uint16(f.perm.Mode))
	h.Write(buf[:2])
	binary.LittleEndian.PutUint16(buf[:2], f.Replication)
	h.Write(buf[:2])
	binary.LittleEndian.PutUint64(buf[:], f.PreferredBlock)
	h.Write(buf[:])
	for _, b := range f.Blocks {
		binary.LittleEndian.PutUint64(buf[:], uint64(b))
		h.Write(buf[:])
	}
	var sum [32]byte
	h.Sum(sum[:0])
	return sum
}
