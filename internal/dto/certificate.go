package dto

import "time"

// CertificateLinkResponse carries a signed download token and its public path.
type CertificateLinkResponse struct {
	Token     string    `json:"token"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}
