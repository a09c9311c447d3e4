package service

import (
	"context"

	"task-reminder/internal/model"
	"task-reminder/internal/repository"
)

// CategoryService provides helpers around categories.
type CategoryService struct {
	repo *repository.CategoryRepository
}

func NewCategoryService(repo *repository.CategoryRepository) *CategoryService {
	return &CategoryService{repo: repo}
}

func (s *CategoryService) List(ctx context.Context) ([]model.Category, error) {
	return s.repo.List(ctx)
}

func (s *CategoryService) GetOrCreate(ctx context.Context, name string) (*model.Category, error) {
	return s.repo.GetOrCreate(ctx, name)
}

// Delete removes a category; tasks referencing it are detached, never
// deleted.
func (s *CategoryService) Delete(ctx context.Context, id uint) error {
	return s.repo.Delete(ctx, id)
}
