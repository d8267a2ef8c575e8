package reminder

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/academy-api/internal/model"
	"github.com/jwalitptl/academy-api/internal/repository"
	"github.com/jwalitptl/academy-api/pkg/logger"
)

// RuleService manages the staff-edited reminder rules.
type RuleService interface {
	ListRules(ctx context.Context) ([]*model.ReminderRule, error)
	GetRule(ctx context.Context, id uuid.UUID) (*model.ReminderRule, error)
	CreateRule(ctx context.Context, rule *model.ReminderRule, actor *uuid.UUID) (*model.ReminderRule, error)
	UpdateRule(ctx context.Context, id uuid.UUID, rule *model.ReminderRule, actor *uuid.UUID) (*model.ReminderRule, error)
	DeleteRule(ctx context.Context, id uuid.UUID) error
	// ToggleRule flips enabled; the change applies from the next sweep.
	ToggleRule(ctx context.Context, id uuid.UUID, actor *uuid.UUID) (*model.ReminderRule, error)
}

type ruleService struct {
	repo      repository.ReminderRuleRepository
	validator *RuleValidator
	log       *logger.Logger
}

func NewRuleService(repo repository.ReminderRuleRepository, validator *RuleValidator, log *logger.Logger) RuleService {
	return &ruleService{repo: repo, validator: validator, log: log.With("reminder-rules")}
}

func (s *ruleService) ListRules(ctx context.Context) ([]*model.ReminderRule, error) {
	rules, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list reminder rules: %w", err)
	}
	return rules, nil
}

func (s *ruleService) GetRule(ctx context.Context, id uuid.UUID) (*model.ReminderRule, error) {
	return s.repo.Get(ctx, id)
}

func (s *ruleService) CreateRule(ctx context.Context, rule *model.ReminderRule, actor *uuid.UUID) (*model.ReminderRule, error) {
	Normalize(rule)
	if err := s.validator.Validate(rule); err != nil {
		return nil, err
	}

	rule.ID = uuid.New()
	rule.LastUpdatedBy = actor
	if err := s.repo.Create(ctx, rule); err != nil {
		return nil, fmt.Errorf("failed to create reminder rule: %w", err)
	}

	s.log.Info("reminder rule created", "rule_id", rule.ID.String(), "type", string(rule.Type))
	return rule, nil
}

func (s *ruleService) UpdateRule(ctx context.Context, id uuid.UUID, rule *model.ReminderRule, actor *uuid.UUID) (*model.ReminderRule, error) {
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	Normalize(rule)
	if err := s.validator.Validate(rule); err != nil {
		return nil, err
	}

	rule.ID = id
	rule.CreatedAt = existing.CreatedAt
	rule.LastUpdatedBy = actor
	if err := s.repo.Update(ctx, rule); err != nil {
		return nil, err
	}

	s.log.Info("reminder rule updated", "rule_id", id.String())
	return rule, nil
}

func (s *ruleService) DeleteRule(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.log.Info("reminder rule deleted", "rule_id", id.String())
	return nil
}

func (s *ruleService) ToggleRule(ctx context.Context, id uuid.UUID, actor *uuid.UUID) (*model.ReminderRule, error) {
	rule, err := s.repo.Toggle(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	s.log.Info("reminder rule toggled", "rule_id", id.String(), "enabled", rule.Enabled)
	return rule, nil
}
