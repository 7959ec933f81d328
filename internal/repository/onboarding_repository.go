package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"tasktimeline/internal/model"
)

// onboardingID is the primary key of the only preference row.
const onboardingID = 1

// OnboardingRepository persists the first-run flag and display name.
type OnboardingRepository struct {
	db *gorm.DB
}

func NewOnboardingRepository(db *gorm.DB) *OnboardingRepository {
	return &OnboardingRepository{db: db}
}

// Get returns the stored state, or a zero state when nothing was saved yet.
func (r *OnboardingRepository) Get(ctx context.Context) (model.OnboardingState, error) {
	var state model.OnboardingState
	err := r.db.WithContext(ctx).First(&state, onboardingID).Error
	switch {
	case err == nil:
		return state, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return model.OnboardingState{ID: onboardingID}, nil
	default:
		return model.OnboardingState{}, fmt.Errorf("find onboarding state: %w", err)
	}
}

// Save creates or updates the preference row.
func (r *OnboardingRepository) Save(ctx context.Context, hasOnboarded bool, username string) (*model.OnboardingState, error) {
	var state model.OnboardingState
	db := r.db.WithContext(ctx)
	err := db.First(&state, onboardingID).Error
	switch {
	case err == nil:
		updates := map[string]interface{}{
			"has_onboarded": hasOnboarded,
			"username":      username,
		}
		if err := db.Model(&state).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("update onboarding state: %w", err)
		}
		state.HasOnboarded = hasOnboarded
		state.Username = username
		return &state, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		state = model.OnboardingState{
			ID:           onboardingID,
			HasOnboarded: hasOnboarded,
			Username:     username,
		}
		if err := db.Create(&state).Error; err != nil {
			return nil, fmt.Errorf("create onboarding state: %w", err)
		}
		return &state, nil
	default:
		return nil, fmt.Errorf("find onboarding state: %w", err)
	}
}

// Reset removes the preference row.
func (r *OnboardingRepository) Reset(ctx context.Context) error {
	if err := r.db.WithContext(ctx).Delete(&model.OnboardingState{}, onboardingID).Error; err != nil {
		return fmt.Errorf("reset onboarding state: %w", err)
	}
	return nil
}
