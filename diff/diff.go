// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

// Package diff implements the generic ordered (created, deleted) diff
// primitive that every snapshot diff in the namespace engine is built
// from — directory children diffs and single-file attribute diffs
// alike.
//
// A Diff[K, V] represents the change between a "prior" state and a
// "posterior" state of some keyed collection: Created holds keys
// present in the posterior state but not the prior one, Deleted holds
// keys present in the prior state but not the posterior one (together
// with the value they had in the prior state, so a historical read can
// reconstruct it without looking anywhere else).
package diff

import (
	"fmt"
	"sort"

	"github.com/strongdm/nstree/nserrors"
)

// Cmp orders two keys, returning <0, 0, >0 the way bytes.Compare does.
type Cmp[K any] func(a, b K) int

// PrevState is the three-valued answer to "did this key exist in the
// state immediately prior to this diff".
type PrevState int

const (
	// Unknown means the diff says nothing about this key: the caller
	// must consult the posterior (more recent) state.
	Unknown PrevState = iota
	// Exists means the key existed in the prior state (captured in Deleted).
	Exists
	// Absent means the key did not exist in the prior state (captured in Created).
	Absent
)

func (s PrevState) String() string {
	switch s {
	case Exists:
		return "exists"
	case Absent:
		return "absent"
	default:
		return "unknown"
	}
}

// Entry pairs a key with the value it had in the prior state.
type Entry[K any, V any] struct {
	Key K
	Val V
}

// Undo reverses exactly the mutation it was returned from. Undo
// handles let an atomic public write roll back a Diff mutation when a
// later step (e.g. the live-tree mutation) fails.
type Undo func()

// Diff is the ordered (created, deleted) pair over a keyed universe
// described in spec.md §4.1. Both slices are kept sorted by key at all
// times; Created holds bare keys (their value lives in the posterior
// state, which the diff does not own), Deleted holds full Entry pairs
// (their value must be preserved since the posterior state no longer
// has it).
type Diff[K any, V any] struct {
	Created []K
	Deleted []Entry[K, V]
}

// New returns an empty Diff.
func New[K any, V any]() *Diff[K, V] {
	return &Diff[K, V]{}
}

func searchCreated[K any, V any](d *Diff[K, V], k K, cmp Cmp[K]) (int, bool) {
	i := sort.Search(len(d.Created), func(i int) bool { return cmp(d.Created[i], k) >= 0 })
	return i, i < len(d.Created) && cmp(d.Created[i], k) == 0
}

func searchDeleted[K any, V any](d *Diff[K, V], k K, cmp Cmp[K]) (int, bool) {
	i := sort.Search(len(d.Deleted), func(i int) bool { return cmp(d.Deleted[i].Key, k) >= 0 })
	return i, i < len(d.Deleted) && cmp(d.Deleted[i].Key, k) == 0
}

func insertCreated[K any, V any](d *Diff[K, V], i int, k K) {
	d.Created = append(d.Created, k)
	copy(d.Created[i+1:], d.Created[i:])
	d.Created[i] = k
}

func removeCreated[K any, V any](d *Diff[K, V], i int) {
	d.Created = append(d.Created[:i], d.Created[i+1:]...)
}

func insertDeleted[K any, V any](d *Diff[K, V], i int, e Entry[K, V]) {
	d.Deleted = append(d.Deleted, e)
	copy(d.Deleted[i+1:], d.Deleted[i:])
	d.Deleted[i] = e
}

func removeDeleted[K any, V any](d *Diff[K, V], i int) {
	d.Deleted = append(d.Deleted[:i], d.Deleted[i+1:]...)
}

// Create records that key k, absent before this diff, is now present.
// If k was previously recorded as Deleted within this same diff, this
// is a restoration: the delete is undone and k never appears in
// Created at all (create cancels a prior delete of the same key
// within one diff).
func (d *Diff[K, V]) Create(k K, cmp Cmp[K]) Undo {
	if i, found := searchDeleted(d, k, cmp); found {
		old := d.Deleted[i]
		removeDeleted(d, i)
		return func() {
			j, _ := searchDeleted(d, k, cmp)
			insertDeleted(d, j, old)
		}
	}

	i, _ := searchCreated(d, k, cmp)
	insertCreated(d, i, k)
	return func() {
		j, found := searchCreated(d, k, cmp)
		if found {
			removeCreated(d, j)
		}
	}
}

// Delete records that key k, present before this diff, is now gone.
// current is the value k held just before this deletion. If k was
// created within this same diff, current becomes the trashed value
// reported to the caller — this diff never saw k exist before or
// after; otherwise current is recorded as k's Deleted value.
//
// trashed is non-nil when k was created and deleted within the same
// diff: the caller is responsible for any cleanup that value needs
// (e.g. releasing blocks, detaching a file from its version chain).
func (d *Diff[K, V]) Delete(k K, current V, cmp Cmp[K]) (undo Undo, trashed *V) {
	if i, found := searchCreated(d, k, cmp); found {
		removeCreated(d, i)
		v := current
		return func() {
			j, _ := searchCreated(d, k, cmp)
			insertCreated(d, j, k)
		}, &v
	}

	i, _ := searchDeleted(d, k, cmp)
	e := Entry[K, V]{Key: k, Val: current}
	insertDeleted(d, i, e)
	return func() {
		j, found := searchDeleted(d, k, cmp)
		if found {
			removeDeleted(d, j)
		}
	}, nil
}

// Modify records that key k's value changed in place (neither created
// nor deleted). old is the value immediately before this diff. If k is
// already recorded as Deleted (its pre-diff value already captured),
// Modify is a no-op — the original value is already preserved.
func (d *Diff[K, V]) Modify(k K, old V, cmp Cmp[K]) Undo {
	if _, found := searchDeleted(d, k, cmp); found {
		return func() {}
	}
	i, _ := searchDeleted(d, k, cmp)
	insertDeleted(d, i, Entry[K, V]{Key: k, Val: old})
	return func() {
		j, found := searchDeleted(d, k, cmp)
		if found {
			removeDeleted(d, j)
		}
	}
}

// AccessPrevious answers whether k existed in the state immediately
// before this diff was applied. Exists returns the captured value;
// Absent and Unknown return the zero value of V.
func (d *Diff[K, V]) AccessPrevious(k K, cmp Cmp[K]) (PrevState, V) {
	if i, found := searchDeleted(d, k, cmp); found {
		return Exists, d.Deleted[i].Val
	}
	if _, found := searchCreated(d, k, cmp); found {
		var zero V
		return Absent, zero
	}
	var zero V
	return Unknown, zero
}

// CombinePosterior folds next — the diff describing the change from
// this diff's posterior state to a still-later state — into this
// diff, producing a single diff from this diff's prior state directly
// to next's posterior state. onTrash is invoked, in key order, for
// every value that was created by this diff and deleted by next (a
// short-lived entry that neither endpoint state ever retained).
//
// Returns an error wrapping nserrors.ErrInvariantViolation, with a
// message naming which of the impossible cases occurred (not the key
// itself), if this and next disagree about a key in a way the diff
// protocol considers impossible — see spec.md §4.1.
func (d *Diff[K, V]) CombinePosterior(next *Diff[K, V], cmp Cmp[K], onTrash func(V)) (*Diff[K, V], error) {
	combined := &Diff[K, V]{
		Created: append([]K(nil), d.Created...),
		Deleted: append([]Entry[K, V](nil), d.Deleted...),
	}

	for _, k := range next.Created {
		if _, found := searchCreated(combined, k, cmp); found {
			return nil, fmt.Errorf("%w: key created in both diffs being combined", nserrors.ErrInvariantViolation)
		}
		if _, found := searchDeleted(combined, k, cmp); found {
			return nil, fmt.Errorf("%w: key deleted by prior diff and created by posterior diff", nserrors.ErrInvariantViolation)
		}
		i, _ := searchCreated(combined, k, cmp)
		insertCreated(combined, i, k)
	}

	for _, e := range next.Deleted {
		if i, found := searchCreated(combined, e.Key, cmp); found {
			removeCreated(combined, i)
			if onTrash != nil {
				onTrash(e.Val)
			}
			continue
		}
		if _, found := searchDeleted(combined, e.Key, cmp); found {
			return nil, fmt.Errorf("%w: key deleted in both diffs being combined", nserrors.ErrInvariantViolation)
		}
		i, _ := searchDeleted(combined, e.Key, cmp)
		insertDeleted(combined, i, e)
	}

	return combined, nil
}

// Apply2Current reconstructs the prior-state list from a sorted
// posterior-state list: entries whose key is in Created are removed
// (they did not exist before this diff), entries in Deleted are
// inserted back at their sorted position (they existed before this
// diff but do not in the posterior state).
func (d *Diff[K, V]) Apply2Current(posterior []Entry[K, V], cmp Cmp[K]) []Entry[K, V] {
	prior := make([]Entry[K, V], 0, len(posterior)+len(d.Deleted))
	ci := 0
	for _, e := range posterior {
		for ci < len(d.Created) && cmp(d.Created[ci], e.Key) < 0 {
			ci++
		}
		if ci < len(d.Created) && cmp(d.Created[ci], e.Key) == 0 {
			ci++
			continue
		}
		prior = append(prior, e)
	}

	for _, del := range d.Deleted {
		i := sort.Search(len(prior), func(i int) bool { return cmp(prior[i].Key, del.Key) >= 0 })
		prior = append(prior, Entry[K, V]{})
		copy(prior[i+1:], prior[i:])
		prior[i] = del
	}

	return prior
}

// IsEmpty reports whether the diff records no change at all — the
// "latest-empty" state of a freshly appended snapshot diff, per
// spec.md §4.7's lifecycle table.
func (d *Diff[K, V]) IsEmpty() bool {
	return len(d.Created) == 0 && len(d.Deleted) == 0
}
