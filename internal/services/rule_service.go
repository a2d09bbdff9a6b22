package services

import (
	"context"
	"fmt"
	"log/slog"

	"bilancio/internal/core"
	"bilancio/internal/storage"
)

// RuleService validates and persists recurring rules.
type RuleService struct {
	storage *storage.SQLiteRepository
}

func NewRuleService(storage *storage.SQLiteRepository) *RuleService {
	return &RuleService{storage: storage}
}

// CreateRule validates the rule, including the double-entry balance of its
// template, and saves it.
func (s *RuleService) CreateRule(ctx context.Context, rule core.RecurringRule) (int64, error) {
	if err := rule.Validate(); err != nil {
		return 0, fmt.Errorf("validate rule: %w", err)
	}

	id, err := s.storage.CreateRule(ctx, rule)
	if err != nil {
		return 0, fmt.Errorf("save rule: %w", err)
	}

	slog.InfoContext(ctx, "Created recurring rule",
		"id", id,
		"name", rule.Name,
		"frequency", rule.Frequency,
		"start_date", rule.StartDate.String())
	return id, nil
}

func (s *RuleService) GetRule(ctx context.Context, id int64) (*core.RecurringRule, error) {
	return s.storage.GetRule(ctx, id)
}

func (s *RuleService) ListActiveRules(ctx context.Context) ([]core.RecurringRule, error) {
	return s.storage.ListActiveRules(ctx)
}
