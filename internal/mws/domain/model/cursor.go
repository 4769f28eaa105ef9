package model

// CursorToken is the client-visible continuation state of a paged query.
// It is round-tripped through the client between requests and never
// persisted server side; the cursor id names a live server-side cursor.
//
// TotalCount is captured once when the query first executes and trusted on
// resume. Recomputing it against a live collection could disagree with the
// in-flight result set, so staleness under concurrent writes is accepted.
type CursorToken struct {
	CursorID  int64 `json:"cursor_id"`
	Retrieved int64 `json:"retrieved"`
	Total     int64 `json:"count"`
	BatchSize int64 `json:"batch_size"`
}

// IsResume reports whether the token continues an existing query rather
// than starting a new one.
func (t CursorToken) IsResume() bool {
	return t.CursorID != 0
}
