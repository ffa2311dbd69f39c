package cache

import (
	"context"
	"time"

	"cigarmanager/backend/internal/domain"
)

type AnalysisCache interface {
	Get(ctx context.Context, key string) (*domain.RotationReport, bool, error)
	Set(ctx context.Context, key string, value *domain.RotationReport, ttl time.Duration) error
}

type NoopAnalysisCache struct{}

func (NoopAnalysisCache) Get(_ context.Context, _ string) (*domain.RotationReport, bool, error) {
	return nil, false, nil
}

func (NoopAnalysisCache) Set(_ context.Context, _ string, _ *domain.RotationReport, _ time.Duration) error {
	return nil
}
