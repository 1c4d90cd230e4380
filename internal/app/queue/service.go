package queue

import (
	"context"

	"github.com/confetex/tracker/internal/adapter/logger"
	"github.com/confetex/tracker/internal/cache"
	"github.com/confetex/tracker/internal/config"
	"github.com/confetex/tracker/internal/domain"
	"github.com/confetex/tracker/internal/interfaces"
)

// Service is the cached read side. Every query is read-through against the
// shared response cache: hit returns the cached payload, miss loads from the
// store and fills the entry. Write handlers invalidate; the TTL bounds
// staleness for anything they miss.
type Service struct {
	orders   interfaces.OrderRepository
	progress interfaces.ProgressRepository
	reprints interfaces.ReprintRepository
	cache    *cache.Cache
	cfg      config.CacheConfig
	logger   logger.Logger
}

func NewService(
	orders interfaces.OrderRepository,
	progress interfaces.ProgressRepository,
	reprints interfaces.ReprintRepository,
	responses *cache.Cache,
	cfg config.CacheConfig,
	lgr logger.Logger,
) *Service {
	return &Service{
		orders:   orders,
		progress: progress,
		reprints: reprints,
		cache:    responses,
		cfg:      cfg,
		logger:   lgr,
	}
}

func (s *Service) GetQueue(ctx context.Context, dept domain.Department) ([]interfaces.QueueItem, error) {
	if !domain.Valid(dept) {
		return nil, domain.ErrUnknownDepartment
	}

	key := cache.QueueKey(string(dept))
	if v, ok := s.cache.Get(key); ok {
		return v.([]interfaces.QueueItem), nil
	}

	items, err := s.orders.QueueForDepartment(ctx, dept)
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, items, s.cfg.QueueTTL())
	return items, nil
}

func (s *Service) GetCounts(ctx context.Context) (map[domain.Department]int, error) {
	key := cache.CountsKey()
	if v, ok := s.cache.Get(key); ok {
		return v.(map[domain.Department]int), nil
	}

	counts, err := s.orders.CountsByDepartment(ctx)
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, counts, s.cfg.QueueTTL())
	return counts, nil
}

func (s *Service) GetStats(ctx context.Context, dept domain.Department) (*interfaces.DepartmentStats, error) {
	if !domain.Valid(dept) {
		return nil, domain.ErrUnknownDepartment
	}

	key := cache.StatsKey(string(dept))
	if v, ok := s.cache.Get(key); ok {
		return v.(*interfaces.DepartmentStats), nil
	}

	stats, err := s.orders.StatsForDepartment(ctx, dept)
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, stats, s.cfg.StatsTTL())
	return stats, nil
}

func (s *Service) GetHistory(ctx context.Context, orderID int) ([]*domain.DepartmentProgress, error) {
	key := cache.HistoryKey(orderID)
	if v, ok := s.cache.Get(key); ok {
		return v.([]*domain.DepartmentProgress), nil
	}

	history, err := s.progress.HistoryForOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, history, s.cfg.QueueTTL())
	return history, nil
}

func (s *Service) ListOpenReprints(ctx context.Context) ([]*domain.ReprintRequest, error) {
	key := cache.ReprintsKey()
	if v, ok := s.cache.Get(key); ok {
		return v.([]*domain.ReprintRequest), nil
	}

	open, err := s.reprints.ListOpen(ctx)
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, open, s.cfg.QueueTTL())
	return open, nil
}
