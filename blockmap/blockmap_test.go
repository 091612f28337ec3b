// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package blockmap

import "testing"

type fakeBlockMap struct {
	deleted []BlockID
	marked  map[BlockID]FileID
}

func newFakeBlockMap() *fakeBlockMap {
	return &fakeBlockMap{marked: make(map[BlockID]FileID)}
}

func (f *fakeBlockMap) AddToDelete(blockID BlockID)      { f.deleted = append(f.deleted, blockID) }
func (f *fakeBlockMap) Mark(blockID BlockID, owner FileID) { f.marked[blockID] = owner }

func TestCollectorAccumulatesInOrder(t *testing.T) {
	c := NewCollector()
	c.CollectBlocks([]BlockID{3, 4}) // e.g. a leaf file's blocks, depth-first
	c.CollectBlocks([]BlockID{1})    // then its parent's own block (directories have none, but files might)

	if c.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", c.Len())
	}
	info := c.Finish()
	want := []BlockID{3, 4, 1}
	if len(info.Blocks) != len(want) {
		t.Fatalf("Blocks = %v, want %v", info.Blocks, want)
	}
	for i := range want {
		if info.Blocks[i] != want[i] {
			t.Errorf("Blocks[%d] = %d, want %d", i, info.Blocks[i], want[i])
		}
	}
}

func TestUpdateInfoIsEmpty(t *testing.T) {
	var nilInfo *UpdateInfo
	if !nilInfo.IsEmpty() {
		t.Error("nil *UpdateInfo should be empty")
	}
	empty := &UpdateInfo{}
	if !empty.IsEmpty() {
		t.Error("UpdateInfo with no blocks should be empty")
	}
	nonEmpty := &UpdateInfo{Blocks: []BlockID{1}}
	if nonEmpty.IsEmpty() {
		t.Error("UpdateInfo with blocks should not be empty")
	}
}

func TestCollectorDrainReportsEveryBlock(t *testing.T) {
	c := NewCollector()
	c.CollectBlocks([]BlockID{10, 20, 30})

	bm := newFakeBlockMap()
	c.Drain(bm)

	if len(bm.deleted) != 3 || bm.deleted[0] != 10 || bm.deleted[2] != 30 {
		t.Fatalf("deleted = %v, want [10 20 30]", bm.deleted)
	}
}

func TestCollectorFinishDoesNotResetAccumulator(t *testing.T) {
	c := NewCollector()
	c.CollectBlocks([]BlockID{1})
	first := c.Finish()
	c.CollectBlocks([]BlockID{2})
	second := c.Finish()

	if len(first.Blocks) != 1 {
		t.Fatalf("first.Blocks = %v, want 1 entry (independent snapshot)", first.Blocks)
	}
	if len(second.Blocks) != 2 {
		t.Fatalf("second.Blocks = %v, want 2 entries", second.Blocks)
	}
}
