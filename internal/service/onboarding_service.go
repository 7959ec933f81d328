package service

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"tasktimeline/internal/logger"
	"tasktimeline/internal/model"
)

// OnboardingSteps is the number of wizard steps; valid steps are 0..OnboardingSteps-1.
const OnboardingSteps = 3

// OnboardingRepository persists the onboarding record.
type OnboardingRepository interface {
	Get(ctx context.Context) (model.OnboardingState, error)
	Save(ctx context.Context, hasOnboarded bool, username string) (*model.OnboardingState, error)
	Reset(ctx context.Context) error
}

// OnboardingService holds the first-run flag, the display name and the wizard step.
type OnboardingService struct {
	repo OnboardingRepository

	mu           sync.RWMutex
	hasOnboarded bool
	username     string
	step         int
}

func NewOnboardingService(repo OnboardingRepository) *OnboardingService {
	return &OnboardingService{repo: repo}
}

// Load reads the stored record. On failure the defaults are kept.
func (s *OnboardingService) Load(ctx context.Context) {
	state, err := s.repo.Get(ctx)
	if err != nil {
		logger.Error("Onboarding: load failed", err)
		return
	}
	s.mu.Lock()
	s.hasOnboarded = state.HasOnboarded
	s.username = state.Username
	s.mu.Unlock()
}

func (s *OnboardingService) State() model.OnboardingState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return model.OnboardingState{HasOnboarded: s.hasOnboarded, Username: s.username}
}

func (s *OnboardingService) Step() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.step
}

// SetStep moves the wizard to step, clamped to the valid range.
func (s *OnboardingService) SetStep(step int) {
	if step < 0 {
		step = 0
	}
	if step > OnboardingSteps-1 {
		step = OnboardingSteps - 1
	}
	s.mu.Lock()
	s.step = step
	s.mu.Unlock()
}

func (s *OnboardingService) NextStep() { s.SetStep(s.Step() + 1) }

func (s *OnboardingService) PrevStep() { s.SetStep(s.Step() - 1) }

// SetUsername keeps a draft name until onboarding completes.
func (s *OnboardingService) SetUsername(name string) {
	s.mu.Lock()
	s.username = name
	s.mu.Unlock()
}

// CompleteOnboarding persists the flag together with the trimmed draft name.
func (s *OnboardingService) CompleteOnboarding(ctx context.Context) error {
	name := strings.TrimSpace(s.State().Username)
	if _, err := s.repo.Save(ctx, true, name); err != nil {
		return fmt.Errorf("complete onboarding: %w", err)
	}
	s.mu.Lock()
	s.hasOnboarded = true
	s.username = name
	s.mu.Unlock()
	return nil
}

func (s *OnboardingService) UpdateUsername(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("username is required: %w", model.ErrInvalidArgument)
	}
	if _, err := s.repo.Save(ctx, s.State().HasOnboarded, name); err != nil {
		return fmt.Errorf("update username: %w", err)
	}
	s.SetUsername(name)
	return nil
}

// ResetOnboarding clears the stored record and the in-memory state. Storage errors are logged.
func (s *OnboardingService) ResetOnboarding(ctx context.Context) {
	if err := s.repo.Reset(ctx); err != nil {
		logger.Error("Onboarding: reset failed", err)
	}
	s.mu.Lock()
	s.hasOnboarded = false
	s.username = ""
	s.step = 0
	s.mu.Unlock()
}
