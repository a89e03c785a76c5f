// Package domain contains the core domain types and validation logic.
// This is part of the Functional Core - all functions are pure with no I/O.
package domain

import (
	"errors"
	"strings"
	"time"
)

// =============================================================================
// Remote Host Errors
// =============================================================================

var (
	ErrHostNameRequired   = errors.New("remote host name is required")
	ErrHostNameTooLong    = errors.New("remote host name must be at most 100 characters")
	ErrHostAddrRequired   = errors.New("remote host address is required")
	ErrHostPortInvalid    = errors.New("remote host port must be between 1 and 65535")
	ErrCredentialRequired = errors.New("remote host credential is required")
)

// =============================================================================
// Remote Host
// =============================================================================

// RemoteHost is a machine running the 1Panel API.
// Credential is the API key configured in the panel; it never leaves the
// server in API responses.
type RemoteHost struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Host       string    `json:"host"`
	Port       int       `json:"port"`
	Credential string    `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewRemoteHost creates a validated remote host. The ID is assigned by the store.
func NewRemoteHost(name, host string, port int, credential string) (*RemoteHost, error) {
	h := &RemoteHost{
		Name:       strings.TrimSpace(name),
		Host:       strings.TrimSpace(host),
		Port:       port,
		Credential: strings.TrimSpace(credential),
		CreatedAt:  time.Now().UTC(),
	}
	if err := h.Validate(); err != nil {
		return nil, err
	}
	return h, nil
}

// Validate checks the host fields.
func (h *RemoteHost) Validate() error {
	if h.Name == "" {
		return ErrHostNameRequired
	}
	if len(h.Name) > 100 {
		return ErrHostNameTooLong
	}
	if h.Host == "" {
		return ErrHostAddrRequired
	}
	if h.Port < 1 || h.Port > 65535 {
		return ErrHostPortInvalid
	}
	if h.Credential == "" {
		return ErrCredentialRequired
	}
	return nil
}
