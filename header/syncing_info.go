package header

// SyncingInfo is a point-in-time snapshot of syncer progress.
// SubjectiveHead is 0 before initialization; once set it is monotone
// non-decreasing for the lifetime of the syncer.
type SyncingInfo struct {
	StoredHeaders  BlockRanges
	SubjectiveHead uint64
}

// Finished reports whether the store's coverage reaches the subjective head.
func (s SyncingInfo) Finished() bool {
	if s.SubjectiveHead == 0 {
		return false
	}
	head, ok := s.StoredHeaders.Head()
	return ok && head >= s.SubjectiveHead
}
