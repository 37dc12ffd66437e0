package api

import "github.com/starford/virt/internal/registrar"

// RegisterRequest is the request body for POST /register.
type RegisterRequest = registrar.RegisterRequest

// UpdateRequest is the request body for PUT /update. Omitted fields are
// left unchanged.
type UpdateRequest = registrar.UpdateRequest

// DeleteRequest is the request body for DELETE /delete.
type DeleteRequest = registrar.DeleteRequest

// CheckResponse answers GET /check/{label}.
type CheckResponse = registrar.Availability

// RegisterResponse is returned once by POST /register with the secret.
type RegisterResponse = registrar.Registration

// UpdateResponse describes the record after PUT /update.
type UpdateResponse = registrar.RecordSummary

// LookupResponse answers GET /lookup/{label}/{tag}.
type LookupResponse = registrar.LookupResult

// SearchResult is one element of the GET /search array.
type SearchResult = registrar.SearchHit

// DeleteResponse confirms DELETE /delete.
type DeleteResponse struct {
	Success bool   `json:"success" example:"true" validate:"required"`
	Message string `json:"message,omitempty" example:"Name deleted"`
}

// HealthResponse is returned by the health checks.
type HealthResponse struct {
	Status string `json:"status" example:"ok" validate:"required"`
}
