// Package pubsub broadcasts analysis progress and results to subscribers.
package pubsub

import (
	"context"
	"encoding/json"
)

// Topics published by the analysis server
const (
	TopicWorkspaceStatus = "workspace_status"
	TopicAnalysis        = "analysis"
)

// Event represents a pub/sub event
type Event struct {
	Topic   string          `json:"topic"`   // Subscription topic (e.g., "workspace_status", "analysis")
	Type    string          `json:"type"`    // Event type (e.g., "hashing", "complete")
	Data    json.RawMessage `json:"data"`    // Event payload
	Version int             `json:"version"` // Version number for ordering
}

// Subscription represents a client subscription to a topic
type Subscription interface {
	// Topic returns the subscription topic
	Topic() string

	// Events returns a channel for receiving events. It is closed when the
	// publisher shuts down.
	Events() <-chan Event

	// Close closes the subscription
	Close() error
}

// Publisher manages pub/sub subscriptions and event publishing
type Publisher interface {
	// Subscribe creates a new subscription to a topic
	// Context cancellation will close the subscription
	Subscribe(ctx context.Context, topic string) (Subscription, error)

	// Publish sends an event to all subscribers of a topic
	Publish(topic string, eventType string, data interface{}) error

	// Close shuts down the publisher and all subscriptions
	Close() error
}

// WorkspaceStatus represents the progress of the running analysis job
type WorkspaceStatus struct {
	State   string `json:"state"`   // loading, building_tree, hashing, classifying, recording, complete, error
	Message string `json:"message"` // Human-readable status message
	Step    int    `json:"step"`    // Current step number (1-based)
	Total   int    `json:"total"`   // Total number of steps
}

// AnalysisFinished announces a completed analysis job
type AnalysisFinished struct {
	Reason               string `json:"reason"`
	Files                int    `json:"files"`
	Skipped              bool   `json:"skipped"`
	MarkedAsUnchanged    int    `json:"markedAsUnchanged"`
	NotMarkedAsUnchanged int    `json:"notMarkedAsUnchanged"`
	TrustBroken          bool   `json:"trustBroken"`
	BrokenAt             string `json:"brokenAt,omitempty"`
	DurationMs           int64  `json:"durationMs"`
}
