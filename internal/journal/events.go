package journal

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event kinds.
const (
	TypeBuildStarted   = "BuildStarted"
	TypeBuildSucceeded = "BuildSucceeded"
	TypeBuildFailed    = "BuildFailed"
	TypeBuildSkipped   = "BuildSkipped"
)

// BuildStarted is recorded before the builder runs.
type BuildStarted struct {
	Crate     string `json:"crate"`
	CratePath string `json:"crate_path"`
	Profile   string `json:"profile"`
	CrateType string `json:"crate_type"`
	Prefix    string `json:"prefix"`
	Trigger   string `json:"trigger"` // "cli" or "watch"
}

// BuildSucceeded is recorded when the assembly was produced.
type BuildSucceeded struct {
	AssemblyPath string `json:"assembly_path"`
	DurationMS   int64  `json:"duration_ms"`
}

// BuildFailed is recorded when the build returned an error.
type BuildFailed struct {
	Kind        string   `json:"kind"`
	Message     string   `json:"message"`
	Diagnostics []string `json:"diagnostics,omitempty"`
	DurationMS  int64    `json:"duration_ms"`
}

// BuildSkipped is recorded for nested invocations.
type BuildSkipped struct {
	Reason string `json:"reason"`
}

func encode(kind string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal %s body: %w", kind, err)
	}
	return payload, nil
}

// decode unmarshals the body of r into a value of type T.
func decode[T any](r Record) (T, error) {
	var v T
	if err := json.Unmarshal(r.Body, &v); err != nil {
		return v, fmt.Errorf("unmarshal %s body: %w", r.Kind, err)
	}
	return v, nil
}

func durationMS(d time.Duration) int64 { return d.Milliseconds() }
