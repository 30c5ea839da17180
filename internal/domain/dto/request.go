// Package dto defines the request and response bodies of the admin API.
package dto

import "errors"

// ErrInvalidateTarget is returned when an invalidation names both or neither
// of key and prefix.
var ErrInvalidateTarget = errors.New("exactly one of key or prefix is required")

// InvalidateRequest is the body of POST /api/cache/invalidate. Exactly one
// of Key or Prefix must be set.
type InvalidateRequest struct {
	// Key removes a single query cache entry.
	Key string `json:"key" binding:"required_without=Prefix,max=512"`
	// Prefix removes every entry whose key starts with it, for example
	// "sql:reservas:".
	Prefix string `json:"prefix" binding:"required_without=Key,max=512"`
}

// Validate rejects requests naming both a key and a prefix.
func (r *InvalidateRequest) Validate() error {
	if (r.Key == "") == (r.Prefix == "") {
		return ErrInvalidateTarget
	}
	return nil
}

// InvalidateResponse reports how many cache entries were removed.
type InvalidateResponse struct {
	Removed int `json:"removed"`
}
