package services

import (
	"context"
	"fmt"
	"log/slog"

	"bilancio/internal/core"
	"bilancio/internal/storage"
)

// BudgetService validates and persists budgets.
type BudgetService struct {
	storage *storage.SQLiteRepository
}

func NewBudgetService(storage *storage.SQLiteRepository) *BudgetService {
	return &BudgetService{storage: storage}
}

func (s *BudgetService) CreateBudget(ctx context.Context, budget core.Budget) (int64, error) {
	if err := budget.Validate(); err != nil {
		return 0, fmt.Errorf("validate budget: %w", err)
	}

	id, err := s.storage.CreateBudget(ctx, budget)
	if err != nil {
		return 0, fmt.Errorf("save budget: %w", err)
	}

	slog.InfoContext(ctx, "Created budget",
		"id", id,
		"name", budget.Name,
		"cycle_type", budget.CycleType,
		"carry_over", budget.CarryOver)
	return id, nil
}

func (s *BudgetService) GetBudget(ctx context.Context, id int64) (*core.Budget, error) {
	return s.storage.GetBudget(ctx, id)
}

func (s *BudgetService) ListActiveBudgets(ctx context.Context) ([]core.Budget, error) {
	return s.storage.ListActiveBudgets(ctx)
}
