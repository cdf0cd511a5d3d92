package models

import "time"

// Issuer represents an issuing principal (a training partner or institute).
// The core treats the ID as an opaque string; authentication beyond API key
// resolution is delegated to an external collaborator.
type Issuer struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	APIKeyHash     string    `json:"-"` // Never expose the key hash in JSON
	Enabled        bool      `json:"enabled"`
	MaxCertsPerDay int       `json:"max_certs_per_day"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
