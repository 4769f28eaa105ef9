package model

import "time"

// Tenant is the control record for one logical database, stored in the
// shared clients collection. One tenant record exists per res_id; the
// current design keeps one active res_id per session.
type Tenant struct {
	Version     int       `bson:"version" json:"version"`
	ResID       string    `bson:"res_id" json:"res_id"`
	SessionID   string    `bson:"session_id" json:"session_id"`
	Collections []string  `bson:"collections" json:"collections"`
	Timestamp   time.Time `bson:"timestamp" json:"timestamp"`
}

// RateLimitEvent is one admitted request, recorded in the rate-limit
// collection. Only events inside the rolling window are ever queried.
type RateLimitEvent struct {
	SessionID string    `bson:"session_id"`
	Timestamp time.Time `bson:"timestamp"`
}

// Resource is the payload returned when a web-shell client creates or
// re-attaches to its resource.
type Resource struct {
	ResID string `json:"res_id"`
	IsNew bool   `json:"is_new"`
}
