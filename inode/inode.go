// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

// Package inode implements the namespace's inode model (spec.md §3, §4
// components C3 and C4): the common attribute header shared by files,
// directories, and quota-directories, plus the reference-node variants
// (WithCount, WithName, DstReference) that let a single inode be
// reachable through more than one path after a rename crosses a
// snapshot boundary.
//
// The accessors in this package answer for the live state only.
// Historical answers come from the snapshot package's readers, which
// take a *SnapshotHandle; passing nil there means "the live state".
package inode

import (
	"time"

	"github.com/strongdm/nstree/nskey"
)

// ID identifies an inode for its lifetime. Ids are never reused.
type ID uint64

// BlockID identifies a single data block owned by a file. The
// namespace engine never interprets a BlockID beyond ordering and
// equality — block content and placement belong to the external block
// map (§6).
type BlockID uint64

// Permissions mirrors the owner/group/mode triple spec.md §3 lists as
// part of every inode's common header.
type Permissions struct {
	Owner string
	Group string
	Mode  uint16
}

// Node is implemented by every inode variant: the three concrete
// kinds (*File, *Directory, *QuotaDirectory) and the two reference
// kinds (*WithName, *DstReference) that stand in for them along
// certain paths. Reference kinds forward every accessor except
// NameKey and Parent to their pointee, per spec.md §4.4's "attribute
// delegation" rule.
type Node interface {
	ID() ID
	NameKey() nskey.Key
	Perm() Permissions
	ModTime() time.Time
	AccessTime() time.Time
	Parent() *Directory

	// AsReference returns the WithCount currently wrapping this node,
	// or nil if this node is not presently reachable through a
	// reference. A non-reference inode's back-pointer is set the
	// moment it is promoted by PromoteToReference and cleared by
	// ReleaseReference when a rename reattaches the pointee directly
	// to the live tree because nothing covers the position it is
	// moving away from anymore.
	AsReference() *WithCount
}

// header is embedded by every non-reference inode kind. It is not
// itself exported: callers interact with it only through the Node
// interface and the concrete type's own methods.
type header struct {
	id         ID
	name       nskey.Key
	perm       Permissions
	modTime    time.Time
	accessTime time.Time
	parent     *Directory
	refParent  *WithCount
}

func (h *header) ID() ID                    { return h.id }
func (h *header) NameKey() nskey.Key        { return h.name }
func (h *header) Perm() Permissions         { return h.perm }
func (h *header) ModTime() time.Time        { return h.modTime }
func (h *header) AccessTime() time.Time     { return h.accessTime }
func (h *header) Parent() *Directory        { return h.parent }
func (h *header) AsReference() *WithCount   { return h.refParent }
func (h *header) setRefParent(w *WithCount) { h.refParent = w }
func (h *header) setParent(d *Directory)    { h.parent = d }
func (h *header) setName(k nskey.Key)       { h.name = k }
func (h *header) touch(now time.Time)       { h.modTime = now }
func (h *header) access(now time.Time)      { h.accessTime = now }

// parentSetter is implemented by every Node variant (header-embedding
// kinds directly, reference kinds via their own method) so
// Directory.InsertChild can set Parent() on insertion without a type
// switch over every concrete kind. RemoveChildAt leaves the removed
// node's parent link as it was.
type parentSetter interface {
	setParent(*Directory)
}

// CompareNodes orders two nodes by their NameKey, the order every
// directory's children slice and every ChildrenDiff is kept in.
func CompareNodes(a, b Node) int {
	return a.NameKey().Compare(b.NameKey())
}
