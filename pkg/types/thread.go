package types

// ConversationThread is a chronologically ordered subset of memory records
// judged related by recency and content overlap. Threads are built
// transiently per query and never persisted.
type ConversationThread struct {
	// Records are ordered chronologically ascending (conversation order,
	// not score order) so consumers see a coherent timeline.
	Records []MemoryRecord `json:"records"`

	// Score is the aggregate relevance of the thread, the mean of the
	// per-record selection scores.
	Score float64 `json:"score"`
}

// Empty reports whether the thread contains no records.
func (t ConversationThread) Empty() bool {
	return len(t.Records) == 0
}
