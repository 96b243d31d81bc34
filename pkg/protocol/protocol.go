package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// CommandType represents the type of command
type CommandType string

const (
	// CommandStatus gets daemon status
	CommandStatus CommandType = "status"
	// CommandList lists connected devices
	CommandList CommandType = "list"
	// CommandWait blocks until a connected device is unplugged
	CommandWait CommandType = "wait"
)

// Request represents a command request from client to daemon
type Request struct {
	ID      string          `json:"id"`                // Unique request ID
	Type    CommandType     `json:"type"`              // Command type
	Payload json.RawMessage `json:"payload,omitempty"` // Command-specific payload
}

// Response represents a response from daemon to client
type Response struct {
	ID      string          `json:"id"`              // Request ID this responds to
	Success bool            `json:"success"`         // Whether command succeeded
	Error   string          `json:"error,omitempty"` // Error message if failed
	Data    json.RawMessage `json:"data,omitempty"`  // Response data if succeeded
}

// DeviceInfo describes one connected device
type DeviceInfo struct {
	ID        string `json:"id"`
	Port      string `json:"port"`
	VendorID  string `json:"vendor_id"`
	ProductID string `json:"product_id"`
	PluggedAt string `json:"plugged_at"`
}

// StatusResponse represents daemon status
type StatusResponse struct {
	Version       string   `json:"version"`
	Uptime        string   `json:"uptime"`
	Source        string   `json:"source"`
	Identities    []string `json:"identities"`
	ActiveDevices int      `json:"active_devices"`
	TotalPlugged  int      `json:"total_plugged"`
}

// ListResponse represents the connected devices
type ListResponse struct {
	Devices []DeviceInfo `json:"devices"`
}

// WaitRequest asks the daemon to hold the connection until the device with
// DeviceID is unplugged or Timeout elapses.
type WaitRequest struct {
	DeviceID string `json:"device_id"`
	Timeout  string `json:"timeout,omitempty"` // Go duration; empty waits indefinitely
}

// ParseTimeout returns the requested timeout, or zero for none.
func (w WaitRequest) ParseTimeout() (time.Duration, error) {
	if w.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(w.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q: %w", w.Timeout, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid timeout %q: must not be negative", w.Timeout)
	}
	return d, nil
}

// WaitResponse reports how a wait ended
type WaitResponse struct {
	DeviceID  string `json:"device_id"`
	Unplugged bool   `json:"unplugged"`
}

// NewRequest builds a request with the given payload
func NewRequest(id string, cmd CommandType, payload interface{}) (*Request, error) {
	req := &Request{ID: id, Type: cmd}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal payload: %w", err)
		}
		req.Payload = data
	}
	return req, nil
}

// ParseRequest parses a JSON request
func ParseRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to parse request: %w", err)
	}
	return &req, nil
}

// MarshalResponse marshals a response to JSON
func MarshalResponse(resp *Response) ([]byte, error) {
	data, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response: %w", err)
	}
	return data, nil
}

// NewErrorResponse creates an error response
func NewErrorResponse(id string, err error) *Response {
	return &Response{
		ID:      id,
		Success: false,
		Error:   err.Error(),
	}
}

// NewSuccessResponse creates a success response with data
func NewSuccessResponse(id string, data interface{}) (*Response, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal data: %w", err)
	}

	return &Response{
		ID:      id,
		Success: true,
		Data:    jsonData,
	}, nil
}

// Decode unmarshals the response data into v, or returns the daemon's error
func (r *Response) Decode(v interface{}) error {
	if !r.Success {
		return fmt.Errorf("daemon error: %s", r.Error)
	}
	if err := json.Unmarshal(r.Data, v); err != nil {
		return fmt.Errorf("failed to parse response data: %w", err)
	}
	return nil
}
