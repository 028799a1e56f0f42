package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type JobID string

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Job is one background analytics execution scheduled by an event
// notification. The id encodes the analytics and the trace or group it
// runs on, so status queries can find the matching execution results.
type Job struct {
	ID           JobID             `json:"id"`
	TenantID     string            `json:"tenant_id"`
	AnalyticsID  string            `json:"analytics_id"`
	TraceID      string            `json:"trace_id,omitempty"`
	TraceGroupID string            `json:"trace_group_id,omitempty"`
	Status       JobStatus         `json:"status"`
	Error        string            `json:"error,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

var (
	ErrJobNotFound = errors.New("job not found")
)

// EncodeEventID builds the public event id: {analytics_id}:{trace_or_group_id}.
func EncodeEventID(analyticsID, traceID, traceGroupID string) (string, error) {
	identifier := traceID
	if identifier == "" {
		identifier = traceGroupID
	}
	if identifier == "" {
		return "", errors.New("either trace_id or trace_group_id must be provided")
	}
	return analyticsID + ":" + identifier, nil
}

// DecodeEventID splits an event id back into analytics id and trace/group id.
func DecodeEventID(eventID string) (analyticsID, traceOrGroupID string, err error) {
	parts := strings.SplitN(eventID, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid event_id format: %s", eventID)
	}
	return parts[0], parts[1], nil
}

// EventContent is the payload of an event notification.
type EventContent struct {
	TraceID          string         `json:"trace_id,omitempty"`
	TraceGroupID     string         `json:"trace_group_id,omitempty"`
	CreatingPluginID string         `json:"creating_plugin_id,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	Timestamp        time.Time      `json:"timestamp,omitempty"`
}

// EventNotification is the body of POST /api/events.
type EventNotification struct {
	EventType    string       `json:"event_type"`
	DataItemType string       `json:"data_item_type"`
	Content      EventContent `json:"content"`
}
