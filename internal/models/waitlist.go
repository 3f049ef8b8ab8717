package models

import "time"

type WaitlistEntry struct {
	ID         int64      `json:"id"`
	Reference  string     `json:"reference"`
	UserID     int64      `json:"user_id"`
	Date       time.Time  `json:"date"`
	StartTime  string     `json:"start_time"`
	EndTime    string     `json:"end_time"`
	CourtID    int64      `json:"court_id"`
	Status     string     `json:"status"` // waiting, notified, expired
	Position   int        `json:"position"`
	NotifiedAt *time.Time `json:"notified_at,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}
