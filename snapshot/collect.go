// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package snapshot

import (
	"github.com/strongdm/nstree/blockmap"
	"github.com/strongdm/nstree/inode"
)

// collectTrashedNode releases the blocks owned by n, recursing into
// an entire subtree when n is a directory — spec.md §4.7's "a file or
// a containing diff becomes unreachable" case, where the whole
// subtree rooted at a trashed directory is gone at once. Collection
// order is depth-first, children before parent, as required.
//
// n is a node orphaned by a ChildrenDiff combine or delete: either it
// was created and deleted within the span being collapsed (never
// visible in any surviving state), or it was the last version of a
// directory whose owning snapshot no longer exists.
func collectTrashedNode(n inode.Node, c *blockmap.Collector) {
	switch v := n.(type) {
	case *inode.File:
		c.CollectFile(v)
	case *inode.Directory:
		for _, child := range v.Children() {
			collectTrashedNode(child, c)
		}
	case *inode.QuotaDirectory:
		for _, child := range v.Children() {
			collectTrashedNode(child, c)
		}
	default:
		// A reference node (WithName/DstReference) being trashed
		// means this diff held the last path reaching it through
		// that particular reference; collection only actually fires
		// once the shared WithCount reaches zero (spec.md §4.4 rule
		// 3).
		if ref := n.AsReference(); ref != nil {
			if zero, pointee := ref.RemoveReference(); zero {
				collectTrashedNode(pointee, c)
			}
		}
	}
}

// CollectSubtree releases every block reachable under n, recursing
// into a directory's children or unwrapping a reference node exactly
// as DeleteSnapshotDiff's internal trash path does. It is exported for
// the case a caller outside this package needs to collect a node that
// no diff chain covers at all — removing a path with no snapshot
// above it anywhere makes the whole subtree unreachable immediately,
// the same children-before-parent walk applies even though no
// SnapshotDiff is involved.
func CollectSubtree(n inode.Node, c *blockmap.Collector) {
	collectTrashedNode(n, c)
}
