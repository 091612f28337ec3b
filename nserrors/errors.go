// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

// Package nserrors defines the error kinds of the namespace snapshot
// engine (spec.md §7) as sentinel errors plus a single typed error,
// OpError, that carries the kind alongside the operation and path that
// failed. This mirrors the teacher's errors.go: a handful of sentinel
// errors (ErrClientClosed, ErrTurnNotFound, ...) plus one typed error
// (ServerError) with an Is-style helper (IsServerError).
package nserrors

import (
	"errors"
	"fmt"
)

// ErrorKind enumerates the error kinds named in spec.md §7.
type ErrorKind uint8

const (
	// KindNotFound: a required path component is absent.
	KindNotFound ErrorKind = iota + 1
	// KindParentMissing: an ancestor directory does not exist.
	KindParentMissing
	// KindParentIsFile: an ancestor path component is a file, not a directory.
	KindParentIsFile
	// KindExists: a create/rename destination is already occupied.
	KindExists
	// KindNotSnapshottable: a snapshot operation targeted an ineligible directory.
	KindNotSnapshottable
	// KindNameExists: a snapshot name already exists within its directory.
	KindNameExists
	// KindInSnapshotPath: a mutation was attempted through a .snapshot path.
	KindInSnapshotPath
	// KindHasSnapshots: deletion of a directory that has, or contains, retained snapshots.
	KindHasSnapshots
	// KindQuotaExceeded: a namespace or diskspace cap was violated.
	KindQuotaExceeded
	// KindInvariantViolation: a programming-error kind — fatal, never recovered.
	KindInvariantViolation
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not-found"
	case KindParentMissing:
		return "parent-missing"
	case KindParentIsFile:
		return "parent-is-file"
	case KindExists:
		return "exists"
	case KindNotSnapshottable:
		return "not-snapshottable"
	case KindNameExists:
		return "name-exists"
	case KindInSnapshotPath:
		return "in-snapshot-path"
	case KindHasSnapshots:
		return "has-snapshots"
	case KindQuotaExceeded:
		return "quota-exceeded"
	case KindInvariantViolation:
		return "invariant-violation"
	default:
		return "unknown"
	}
}

// Sentinel errors, one per ErrorKind, for errors.Is comparisons against
// a bare kind without needing to unwrap an OpError first.
var (
	ErrNotFound            = errors.New("nstree: not found")
	ErrParentMissing       = errors.New("nstree: parent missing")
	ErrParentIsFile        = errors.New("nstree: parent is a file")
	ErrExists              = errors.New("nstree: already exists")
	ErrNotSnapshottable    = errors.New("nstree: directory is not snapshottable")
	ErrNameExists          = errors.New("nstree: snapshot name already exists")
	ErrInSnapshotPath      = errors.New("nstree: path resolves through .snapshot and is read-only")
	ErrHasSnapshots        = errors.New("nstree: directory has retained snapshots")
	ErrQuotaExceeded       = errors.New("nstree: quota exceeded")
	ErrInvariantViolation  = errors.New("nstree: invariant violation")
	ErrFrozenReferenceName = errors.New("nstree: reference local name is frozen evidence and cannot be renamed")
)

var sentinelByKind = map[ErrorKind]error{
	KindNotFound:           ErrNotFound,
	KindParentMissing:      ErrParentMissing,
	KindParentIsFile:       ErrParentIsFile,
	KindExists:             ErrExists,
	KindNotSnapshottable:   ErrNotSnapshottable,
	KindNameExists:         ErrNameExists,
	KindInSnapshotPath:     ErrInSnapshotPath,
	KindHasSnapshots:       ErrHasSnapshots,
	KindQuotaExceeded:      ErrQuotaExceeded,
	KindInvariantViolation: ErrInvariantViolation,
}

// OpError identifies the operation and path an error kind occurred in,
// the way the teacher's ServerError identifies a numeric code and
// detail string.
type OpError struct {
	Op   string
	Path string
	Kind ErrorKind
	Err  error // underlying error, if any; may be nil
}

func (e *OpError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("nstree: %s %s: %s: %v", e.Op, e.Path, e.Kind, e.Err)
	}
	return fmt.Sprintf("nstree: %s %s: %s", e.Op, e.Path, e.Kind)
}

// Unwrap exposes both the underlying error (if any) and the kind's
// sentinel, so errors.Is(err, nserrors.ErrNotFound) and
// errors.Is(err, someWrappedCause) both work.
func (e *OpError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if sentinel, ok := sentinelByKind[e.Kind]; ok {
		errs = append(errs, sentinel)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// New builds an *OpError for the given operation, path, and kind.
func New(op, path string, kind ErrorKind) *OpError {
	return &OpError{Op: op, Path: path, Kind: kind}
}

// Wrap builds an *OpError wrapping an underlying cause.
func Wrap(op, path string, kind ErrorKind, err error) *OpError {
	return &OpError{Op: op, Path: path, Kind: kind, Err: err}
}

// Is reports whether err is an *OpError (at any wrap depth) of the
// given kind, mirroring the teacher's IsServerError helper.
func Is(err error, kind ErrorKind) bool {
	var oe *OpError
	if errors.As(err, &oe) {
		return oe.Kind == kind
	}
	return false
}
