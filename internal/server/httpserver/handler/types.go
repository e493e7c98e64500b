package handler

import (
	"encoding/json"
	"time"

	"github.com/yndnr/diagsave-go/internal/core/domain"
	"github.com/yndnr/diagsave-go/internal/storage/snapshot"
)

// Response is the standard API response envelope.
// All JSON responses use this format (except /metrics).
type Response struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data,omitempty"`
	Details   any    `json:"details,omitempty"`
}

// NewResponse creates a success response.
func NewResponse(requestID string, data any) *Response {
	return &Response{
		Code:      "OK",
		Message:   "Success",
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(requestID, code, message string, details any) *Response {
	return &Response{
		Code:      code,
		Message:   message,
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Details:   details,
	}
}

// SaveRequest is the JSON body of the save endpoints.
type SaveRequest struct {
	Content  string          `json:"content"`
	Metadata json.RawMessage `json:"metadata,omitempty"`

	// CapturedAt defaults to the time the request is received.
	CapturedAt *time.Time `json:"captured_at,omitempty"`
}

// SaveAcceptedResponse is returned by POST .../backups/requests.
type SaveAcceptedResponse struct {
	Namespace string `json:"namespace"`
	Enabled   bool   `json:"enabled"`
	Pending   bool   `json:"pending"`
}

// SnapshotResponse represents a persisted snapshot.
type SnapshotResponse struct {
	ID         string          `json:"id"`
	Namespace  string          `json:"namespace"`
	Content    string          `json:"content"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	CapturedAt time.Time       `json:"captured_at"`
	WrittenAt  time.Time       `json:"written_at"`
	Encrypted  bool            `json:"encrypted"`
}

func newSnapshotResponse(ns string, snap domain.Snapshot, info *snapshot.Info) SnapshotResponse {
	resp := SnapshotResponse{
		Namespace:  ns,
		Content:    snap.Content(),
		Metadata:   snap.Metadata(),
		CapturedAt: snap.CapturedAt(),
	}
	if info != nil {
		resp.ID = info.ID
		resp.WrittenAt = info.WrittenAt
		resp.Encrypted = info.Encrypted
	}
	return resp
}

// ForceSaveResponse is returned by POST .../backups.
type ForceSaveResponse struct {
	Namespace string         `json:"namespace"`
	Saved     *snapshot.Info `json:"saved,omitempty"`
}

// ListBackupsResponse is returned by GET .../backups.
type ListBackupsResponse struct {
	Namespace string           `json:"namespace"`
	Items     []*snapshot.Info `json:"items"`
	Total     int              `json:"total"`
}

// ClearBackupsResponse is returned by DELETE .../backups.
type ClearBackupsResponse struct {
	Namespace string `json:"namespace"`
	Deleted   int    `json:"deleted"`
}

// ListNamespacesResponse is returned by GET /v1/diagrams.
type ListNamespacesResponse struct {
	Items []string `json:"items"`
	Total int      `json:"total"`
}
