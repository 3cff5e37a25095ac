package journal

import (
	"encoding/json"
	"time"
)

// Record is one stored event. Seq and At are assigned by the store on Append.
type Record struct {
	Seq     int64
	BuildID string
	Crate   string
	Kind    string
	At      time.Time
	Body    json.RawMessage
}

// Filter selects records for Query. Zero fields match everything.
type Filter struct {
	Since time.Time
	Crate string
}
