package dto

import (
	"bytes"
	"encoding/json"
)

// ListResponse is the paginated envelope some deployments wrap lists in.
type ListResponse[T any] struct {
	Items      []T `json:"items"`
	TotalItems int `json:"totalItems,omitempty"`
}

// DecodeList accepts either a bare JSON array or a ListResponse envelope.
func DecodeList[T any](body []byte) ([]T, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var env ListResponse[T]
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return nil, err
		}
		return env.Items, nil
	}
	var list []T
	if err := json.Unmarshal(trimmed, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// ErrorResponse is the service's error body.
type ErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}
