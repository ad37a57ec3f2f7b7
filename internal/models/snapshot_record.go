package models

import "time"

// SnapshotRecord is a stored resource snapshot.
type SnapshotRecord struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Source    string    `json:"source" db:"source"` // upload, manifest, live
	Digest    string    `json:"digest" db:"digest"`
	Data      string    `json:"-" db:"data"` // JSON serialized Snapshot
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// SnapshotSummary is what list endpoints return.
type SnapshotSummary struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Source    string         `json:"source"`
	Digest    string         `json:"digest"`
	Counts    map[string]int `json:"counts,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// WebSocketMessage is the envelope for messages pushed to graph clients.
type WebSocketMessage struct {
	Type       string     `json:"type"`
	SnapshotID string     `json:"snapshot_id,omitempty"`
	RequestID  string     `json:"request_id,omitempty"`
	Graph      *RBACGraph `json:"graph,omitempty"`
	Error      string     `json:"error,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}
