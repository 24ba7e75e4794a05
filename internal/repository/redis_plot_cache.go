package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/jlk1997/n-dog-b/internal/interfaces"
	"github.com/jlk1997/n-dog-b/internal/models"
)

// Compile-time check
var _ interfaces.PlotCache = (*redisPlotCache)(nil)

const (
	activePlotsKey = "story:active_plots"
	activePlotsTTL = 5 * time.Minute
)

type redisPlotCache struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisPlotCache creates a new Redis-backed PlotCache.
func NewRedisPlotCache(client *redis.Client, logger *zap.Logger) interfaces.PlotCache {
	return &redisPlotCache{
		client: client,
		logger: logger.Named("RedisPlotCache"),
	}
}

func (c *redisPlotCache) GetActivePlots(ctx context.Context) ([]models.StoryPlot, error) {
	data, err := c.client.Get(ctx, activePlotsKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("ошибка чтения кэша активных plots: %w", err)
	}

	var plots []models.StoryPlot
	if err := json.Unmarshal(data, &plots); err != nil {
		// Повреждённый кэш сбрасываем, как будто его не было.
		c.logger.Warn("Dropping corrupted plot cache entry", zap.Error(err))
		c.client.Del(ctx, activePlotsKey)
		return nil, models.ErrNotFound
	}
	return plots, nil
}

func (c *redisPlotCache) SetActivePlots(ctx context.Context, plots []models.StoryPlot) error {
	data, err := json.Marshal(plots)
	if err != nil {
		return fmt.Errorf("ошибка сериализации plots для кэша: %w", err)
	}
	if err := c.client.Set(ctx, activePlotsKey, data, activePlotsTTL).Err(); err != nil {
		return fmt.Errorf("ошибка записи кэша активных plots: %w", err)
	}
	c.logger.Debug("Active plots cached", zap.Int("count", len(plots)))
	return nil
}

func (c *redisPlotCache) Invalidate(ctx context.Context) error {
	if err := c.client.Del(ctx, activePlotsKey).Err(); err != nil {
		return fmt.Errorf("ошибка инвалидации кэша plots: %w", err)
	}
	c.logger.Debug("Plot cache invalidated")
	return nil
}
