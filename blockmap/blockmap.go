// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

// Package blockmap implements the block-collection protocol (spec.md
// §4.7, component C9): the narrow contract the namespace engine uses
// to tell an external block map which blocks became unreachable, and
// a Collector that accumulates a deletion batch without the engine
// ever calling the real block map directly — the same deferred-I/O
// shape the teacher uses in fstree.Capture (which only ever builds a
// Snapshot in memory) versus the separate Upload step that actually
// talks to the network.
package blockmap

import "github.com/strongdm/nstree/inode"

// BlockID identifies a single data block. Re-exported from inode
// because File.Blocks and block-map bookkeeping must agree on the
// type without this package needing to depend on anything else inode
// exposes.
type BlockID = inode.BlockID

// FileID identifies the file that owned a block before it was marked
// for deletion.
type FileID = inode.ID

// BlockMap is the external collaborator spec.md §1 places out of
// scope: a mapping from block identity to owning file, referenced
// only through this interface.
type BlockMap interface {
	// AddToDelete marks blockID for removal.
	AddToDelete(blockID BlockID)
	// Mark associates blockID with its (possibly former) owner, used
	// by a real block map to resolve conflicts when the same block id
	// is reported by more than one file (should not happen, but the
	// contract does not forbid a defensive implementation from
	// checking).
	Mark(blockID BlockID, owner FileID)
}

// UpdateInfo is the namespace engine's verdict on which blocks became
// unreachable, in collection order: depth-first, children before
// parent (spec.md §4.7).
type UpdateInfo struct {
	Blocks []BlockID
}

// IsEmpty reports whether no blocks were collected.
func (u *UpdateInfo) IsEmpty() bool {
	return u == nil || len(u.Blocks) == 0
}

// Collector accumulates a block-deletion batch across however many
// subtrees and version-chain links contribute to a single delete or
// snapshot-deletion operation. It does not call BlockMap itself — the
// caller decides when (or whether) to drain it, mirroring how the
// teacher's fstree.Upload is a distinct step from fstree.Capture.
type Collector struct {
	blocks []BlockID
}

// NewCollector returns an empty Collector.
func NewCollector() *Collector {
	return &Collector{}
}

// CollectBlocks appends blocks to the batch, in the order given. The
// caller is responsible for depth-first, children-before-parent
// ordering across calls.
func (c *Collector) CollectBlocks(blocks []BlockID) {
	c.blocks = append(c.blocks, blocks...)
}

// CollectFile appends every block still held by f. Used when f's
// entire version chain is released (its WithCount reached zero, or
// its last snapshot was deleted with no later version to inherit the
// blocks).
func (c *Collector) CollectFile(f *inode.File) {
	c.CollectBlocks(f.Blocks)
}

// Len reports how many blocks have been collected so far.
func (c *Collector) Len() int {
	return len(c.blocks)
}

// Finish returns the accumulated batch as an UpdateInfo. The Collector
// remains usable afterward; Finish does not reset it.
func (c *Collector) Finish() *UpdateInfo {
	return &UpdateInfo{Blocks: append([]BlockID(nil), c.blocks...)}
}

// Drain reports every collected block to bm via AddToDelete, in
// collection order.
func (c *Collector) Drain(bm BlockMap) {
	for _, b := range c.blocks {
		bm.AddToDelete(b)
	}
}
