// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package nskey

import "strings"

// DotSnapshot is the literal pseudo-component that diverts path
// resolution into a snapshot view. Matching against it is always
// case-insensitive (ASCII only, see Split/IsDotSnapshot).
const DotSnapshot = ".snapshot"

// Split breaks a namespace path into an ordered list of Keys.
// Namespace paths always use "/" as the separator, independent of the
// host OS — this is not a filesystem path and must not be passed
// through path/filepath.
//
// Leading, trailing, and repeated slashes are ignored, mirroring how
// the teacher's fstree.splitPath avoids producing empty components.
func Split(p string) []Key {
	var keys []Key
	start := 0
	for i := 0; i <= len(p); i++ {
		if i == len(p) || p[i] == '/' {
			if i > start {
				keys = append(keys, NewKey(p[start:i]))
			}
			start = i + 1
		}
	}
	return keys
}

// Join renders a list of Keys back into a "/"-separated path string.
func Join(keys []Key) string {
	if len(keys) == 0 {
		return "/"
	}
	var b strings.Builder
	for _, k := range keys {
		b.WriteByte('/')
		b.Write(k)
	}
	return b.String()
}

// IsDotSnapshot reports whether k is the literal ".snapshot" pseudo
// component, matched ASCII case-insensitively per the Design Note in
// spec.md §9 ("ASCII-only is sufficient for the historical contract").
func IsDotSnapshot(k Key) bool {
	if len(k) != len(DotSnapshot) {
		return false
	}
	for i := 0; i < len(k); i++ {
		if asciiLower(k[i]) != DotSnapshot[i] {
			return false
		}
	}
	return true
}

func asciiLower(b byte) byte {
	if b >= 'A' && b <= 'Z' {
		return b + ('a' - 'A')
	}
	return b
}
