package model

import "time"

// Level is an announcement's urgency. Values are stored as shown to users.
type Level string

const (
	LevelLow    Level = "低"
	LevelMedium Level = "中"
	LevelHigh   Level = "高"
)

// Valid reports whether l is one of the three levels.
func (l Level) Valid() bool {
	return l == LevelLow || l == LevelMedium || l == LevelHigh
}

// Rank orders levels for display, most urgent first.
func (l Level) Rank() int {
	switch l {
	case LevelHigh:
		return 1
	case LevelMedium:
		return 2
	case LevelLow:
		return 3
	}
	return 4
}

// Notification is an admin announcement shown on the home page while active.
type Notification struct {
	ID        int64      `gorm:"primaryKey" json:"id"`
	Content   string     `gorm:"type:text;not null" json:"content"`
	Level     Level      `gorm:"size:8;not null" json:"level"`
	StartTime *time.Time `json:"start_time"`
	EndTime   *time.Time `json:"end_time"`
	CreatedBy string     `gorm:"size:256" json:"created_by,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// ActiveAt reports whether now falls inside every bound that is set.
func (n Notification) ActiveAt(now time.Time) bool {
	if n.StartTime != nil && now.Before(*n.StartTime) {
		return false
	}
	if n.EndTime != nil && now.After(*n.EndTime) {
		return false
	}
	return true
}
