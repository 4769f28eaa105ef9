package model

import "go.mongodb.org/mongo-driver/bson"

// FindArgs are the arguments of a find operation. A zero CursorID starts a
// new query; a non-zero CursorID resumes the paged cursor it names, in
// which case Query/Projection/Skip/Limit/Sort are ignored and Retrieved and
// Total are trusted from the initiating response.
type FindArgs struct {
	Query      bson.M `json:"query"`
	Projection bson.M `json:"projection"`
	Skip       int64  `json:"skip"`
	Limit      int64  `json:"limit"`
	Sort       bson.D `json:"sort"`

	CursorID  int64 `json:"cursor_id"`
	Retrieved int64 `json:"retrieved"`
	Total     int64 `json:"count"`
	BatchSize int64 `json:"batch_size"`
}

// FindResult is the payload of a find operation. CursorID is zero when the
// query was drained; otherwise the client presents it to fetch the next
// batch.
type FindResult struct {
	Result   []bson.M `json:"result"`
	Count    int64    `json:"count"`
	CursorID int64    `json:"cursor_id"`
}

// CountArgs are the arguments of a count operation.
type CountArgs struct {
	Query bson.M `json:"query"`
	Skip  int64  `json:"skip"`
	Limit int64  `json:"limit"`
}

// UpdateArgs are the arguments of an update operation.
type UpdateArgs struct {
	Query  bson.M `json:"query"`
	Update bson.M `json:"update"`
	Upsert bool   `json:"upsert"`
	Multi  bool   `json:"multi"`
}

// RemoveArgs are the arguments of a remove operation.
type RemoveArgs struct {
	Constraint bson.M `json:"constraint"`
	JustOne    bool   `json:"just_one"`
}

// WriteSummary reports the effect of a mutating operation.
type WriteSummary struct {
	Matched  int64       `json:"matched"`
	Modified int64       `json:"modified"`
	Removed  int64       `json:"removed"`
	Upserted interface{} `json:"upserted_id,omitempty"`
}
