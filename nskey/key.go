// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

// Package nskey provides the name-key and path codec for the namespace
// snapshot engine.
//
// Children of a directory are kept in ascending byte-lexicographic order
// by their Key, not by Go string comparison of arbitrary encodings, so
// that lookups are O(log n) and diff keys sort identically regardless of
// the bytes' origin (a rename source name, a restored snapshot copy's
// name, etc).
package nskey

import "bytes"

// Key is an ordered byte sequence identifying a single path component.
// It is deliberately not a string: the namespace does not assume any
// particular text encoding for child names.
type Key []byte

// NewKey copies s into a Key.
func NewKey(s string) Key {
	return Key(s)
}

// String renders the key as a string for logging and error messages.
func (k Key) String() string {
	return string(k)
}

// Compare returns <0, 0, >0 if k sorts before, equal to, or after other,
// byte-lexicographically.
func (k Key) Compare(other Key) int {
	return bytes.Compare(k, other)
}

// Less reports whether k sorts strictly before other.
func (k Key) Less(other Key) bool {
	return k.Compare(other) < 0
}

// Equal reports whether k and other are the same byte sequence.
func (k Key) Equal(other Key) bool {
	return bytes.Equal(k, other)
}

// Clone returns an independent copy of k, safe to retain past the
// lifetime of whatever buffer k currently aliases.
func (k Key) Clone() Key {
	if k == nil {
		return nil
	}
	out := make(Key, len(k))
	copy(out, k)
	return out
}

// Compare is a standalone comparator matching diff.Cmp[Key], usable
// wherever a function value rather than a method is required.
func Compare(a, b Key) int {
	return a.Compare(b)
}
