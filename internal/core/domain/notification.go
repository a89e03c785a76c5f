package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotificationTitleRequired = errors.New("notification title is required")

// NotificationStatus is the outcome a notification reports.
type NotificationStatus string

const (
	NotificationSuccess NotificationStatus = "success"
	NotificationError   NotificationStatus = "error"
	NotificationInfo    NotificationStatus = "info"
	NotificationPending NotificationStatus = "pending"
)

// IsValid checks if the status is known.
func (s NotificationStatus) IsValid() bool {
	switch s {
	case NotificationSuccess, NotificationError, NotificationInfo, NotificationPending:
		return true
	default:
		return false
	}
}

// Notification types written by the server itself.
const (
	NotificationTypeDeploy = "deploy"
	NotificationTypePush   = "push"
)

// Notification is an entry in the operator's activity feed.
type Notification struct {
	ID         string             `json:"id"`
	Type       string             `json:"type"`
	Title      string             `json:"title"`
	Detail     string             `json:"detail,omitempty"`
	Status     NotificationStatus `json:"status"`
	Timestamp  time.Time          `json:"timestamp"`
	DurationMs int64              `json:"duration_ms,omitempty"`
	ServerName string             `json:"server_name,omitempty"`
}

// NewNotification creates a notification stamped with the current time.
func NewNotification(typ, title, detail string, status NotificationStatus) (*Notification, error) {
	if title == "" {
		return nil, ErrNotificationTitleRequired
	}
	if !status.IsValid() {
		status = NotificationInfo
	}
	return &Notification{
		ID:        uuid.New().String(),
		Type:      typ,
		Title:     title,
		Detail:    detail,
		Status:    status,
		Timestamp: time.Now().UTC(),
	}, nil
}
