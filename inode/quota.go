// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package inode

// QuotaDirectory is a directory with namespace and diskspace caps
// (spec.md §3). It embeds *Directory by pointer so a plain Directory
// can be promoted to a QuotaDirectory, and back, without changing
// identity (spec.md §4.5's allowSnapshot/disallowSnapshot preserve
// identity the same way).
type QuotaDirectory struct {
	*Directory
	NSQuota int64 // -1 means unlimited
	DSQuota int64
	NSCount int64
	DSCount int64
}

// NewQuotaDirectory wraps dir with the given quota caps.
func NewQuotaDirectory(dir *Directory, nsQuota, dsQuota int64) *QuotaDirectory {
	return &QuotaDirectory{Directory: dir, NSQuota: nsQuota, DSQuota: dsQuota}
}

// HasSpace reports whether adding addNS namespace entries and addDS
// diskspace bytes would stay within quota. A negative quota means
// unlimited.
func (q *QuotaDirectory) HasSpace(addNS, addDS int64) bool {
	if q.NSQuota >= 0 && q.NSCount+addNS > q.NSQuota {
		return false
	}
	if q.DSQuota >= 0 && q.DSCount+addDS > q.DSQuota {
		return false
	}
	return true
}
