// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package inode

import (
	"time"

	"github.com/strongdm/nstree/nserrors"
	"github.com/strongdm/nstree/nskey"
)

// WithCount is the anonymous reference wrapper of spec.md §4.4: it
// holds a reference count ≥ 1 and a single owned pointee, which must
// itself be a non-reference inode ("a WithCount never points at
// another reference"). WithCount is never a directory child directly
// — WithName and DstReference, which always point at the same
// WithCount, occupy the child slots.
type WithCount struct {
	count    int
	Referred Node
}

// newWithCount wraps referred with an initial count of 1 and sets
// referred's back-pointer so AsReference() finds it.
func newWithCount(referred Node) *WithCount {
	w := &WithCount{count: 1, Referred: referred}
	if setter, ok := referred.(refParentSetter); ok {
		setter.setRefParent(w)
	}
	return w
}

type refParentSetter interface {
	setRefParent(*WithCount)
}

// Count returns the current reference count.
func (w *WithCount) Count() int { return w.count }

// AddReference increments the count, e.g. when a second
// DstReference/WithName is created against the same pointee.
func (w *WithCount) AddReference() { w.count++ }

// RemoveReference decrements the count and reports whether it reached
// zero. Callers that observe zero must release the pointee's blocks
// through the external block map (spec.md §4.4 rule 3); this package
// does not depend on the block map so it returns the pointee rather
// than calling out itself.
func (w *WithCount) RemoveReference() (zero bool, pointee Node) {
	w.count--
	if w.count < 0 {
		w.count = 0
	}
	return w.count == 0, w.Referred
}

// WithName is the immutable-name reference left behind at a rename's
// source position when the source directory has a latest snapshot
// that must still see the old child. Its local name is frozen at the
// value the pointee had at the moment of the rename.
type WithName struct {
	localName nskey.Key
	parent    *Directory
	ref       *WithCount
}

var _ Node = (*WithName)(nil)

func (n *WithName) ID() ID                { return n.ref.Referred.ID() }
func (n *WithName) NameKey() nskey.Key    { return n.localName }
func (n *WithName) Perm() Permissions     { return n.ref.Referred.Perm() }
func (n *WithName) ModTime() time.Time    { return n.ref.Referred.ModTime() }
func (n *WithName) AccessTime() time.Time { return n.ref.Referred.AccessTime() }
func (n *WithName) Parent() *Directory    { return n.parent }
func (n *WithName) AsReference() *WithCount { return n.ref }
func (n *WithName) setParent(d *Directory)  { n.parent = d }

// SetLocalName always fails: the name is frozen evidence used by the
// snapshot view at the source path (spec.md §4.4, "attribute
// delegation").
func (n *WithName) SetLocalName(nskey.Key) error {
	return nserrors.Wrap("setLocalName", n.localName.String(), nserrors.KindInvariantViolation, nserrors.ErrFrozenReferenceName)
}

// DstReference is the reference left at a rename's destination
// position. It records the destination subtree's latest snapshot id
// at the moment of the rename; later modifications reached through it
// record against whichever is newer of that id and the destination's
// current latest (spec.md §4.4 rule 2).
type DstReference struct {
	localName     nskey.Key
	parent        *Directory
	dstSnapshotID uint64
	ref           *WithCount
}

var _ Node = (*DstReference)(nil)

func (n *DstReference) ID() ID                  { return n.ref.Referred.ID() }
func (n *DstReference) NameKey() nskey.Key      { return n.localName }
func (n *DstReference) Perm() Permissions       { return n.ref.Referred.Perm() }
func (n *DstReference) ModTime() time.Time      { return n.ref.Referred.ModTime() }
func (n *DstReference) AccessTime() time.Time   { return n.ref.Referred.AccessTime() }
func (n *DstReference) Parent() *Directory      { return n.parent }
func (n *DstReference) AsReference() *WithCount { return n.ref }
func (n *DstReference) setParent(d *Directory)   { n.parent = d }

// DstSnapshotID returns the destination subtree's latest snapshot id
// as it was at rename time.
func (n *DstReference) DstSnapshotID() uint64 { return n.dstSnapshotID }

// EffectiveSnapshotID returns whichever is newer of the id captured at
// rename time and destLatest (the destination directory's current
// latest snapshot handle, or nil if none) — spec.md §4.4 rule 2's
// "destination's current latest, if newer" branch. The rule's
// remaining fallback ("failing that, the source-side latest through
// the WithName") is not needed here: the path resolver (C8) already
// supplies the correct latest-snapshot-on-the-way-down independent of
// which reference variant was crossed, so by the time a write reaches
// this inode the resolver's own latest already reflects the
// source-side history when the destination has none of its own.
func (n *DstReference) EffectiveSnapshotID(destLatest *SnapshotHandle) uint64 {
	if destLatest != nil && destLatest.ID > n.dstSnapshotID {
		return destLatest.ID
	}
	return n.dstSnapshotID
}

// PromoteToReference implements spec.md §4.4 rule 1's first two
// steps: wrap x in a WithCount (count=1, x.refParent=w) and return a
// WithName carrying x's name and current parent, ready to replace x
// at its old position. If x is already reachable through a reference
// — renaming an inode that a prior cross-snapshot rename already left
// as a WithName/DstReference — the existing WithCount is reused
// rather than wrapped again: a WithCount must never point at another
// reference. The caller (the snapshot package, which owns the
// directory diff bookkeeping) is responsible for actually swapping
// the child and recording the diff.
func PromoteToReference(x Node, parent *Directory) (*WithCount, *WithName) {
	w := x.AsReference()
	if w == nil {
		w = newWithCount(x)
	}
	wn := &WithName{localName: x.NameKey().Clone(), parent: parent, ref: w}
	return w, wn
}

// ReleaseReference clears n's back-pointer to its WithCount. Used when
// a rename reattaches a pointee directly to the live tree because no
// snapshot covers the position it is moving away from: n is no longer
// itself wrapped by any reference, even though other WithName/
// DstReference nodes elsewhere may still share the same WithCount.
func ReleaseReference(n Node) {
	if setter, ok := n.(refParentSetter); ok {
		setter.setRefParent(nil)
	}
}

// NewDstReference implements spec.md §4.4 rule 1's third step:
// increments w's count and returns the DstReference to install as the
// new child at the destination. localName is the destination child's
// name (the rename's "y"), independent of the pointee's frozen
// WithName.
func NewDstReference(w *WithCount, localName nskey.Key, parent *Directory, dstSnapshotID uint64) *DstReference {
	w.AddReference()
	return &DstReference{
		localName:     localName.Clone(),
		parent:        parent,
		dstSnapshotID: dstSnapshotID,
		ref:           w,
	}
}
