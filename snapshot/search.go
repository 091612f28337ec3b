// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package snapshot

import "sort"

// findBySnapshotID binary-searches a chronologically-sorted diff list
// (by ascending snapshot id) for target, shared by DirectorySnapshotState
// and FileSnapshotState. idAt(i) must return the snapshot id of the
// i-th diff. idx is the position of an exact match, or the insertion
// position (spec.md §4.2's "j = −i−1, next recorded state") otherwise.
func findBySnapshotID(n int, idAt func(i int) uint64, target uint64) (idx int, exact bool) {
	idx = sort.Search(n, func(i int) bool { return idAt(i) >= target })
	exact = idx < n && idAt(idx) == target
	return idx, exact
}
