package model

import "time"

// OnboardingState is the single persisted preference record (id 1).
type OnboardingState struct {
	ID           uint `gorm:"primaryKey"`
	HasOnboarded bool `gorm:"default:false"`
	Username     string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
