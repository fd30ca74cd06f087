// Package dto provides Data Transfer Objects for API requests and responses.
package dto

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// SuccessResponse is returned by operations with no other payload.
type SuccessResponse struct {
	Success bool `json:"success"`
}
