package settings

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/gorm"

	"github.com/oakline/marketplace-backend/pkg/db/models"
	"github.com/oakline/marketplace-backend/pkg/errors"
	"github.com/oakline/marketplace-backend/pkg/logger"
	"github.com/oakline/marketplace-backend/pkg/redis"
)

const cacheKeyName = "site_settings"

// Service exposes the single marketplace settings row. Reads go through a
// short-lived cache so every checkout does not hit the settings table.
type Service interface {
	Current(ctx context.Context) (*models.SiteSettings, error)
	Invalidate(ctx context.Context) error
}

type service struct {
	db    *gorm.DB
	cache *redis.Client
	ttl   time.Duration
	logg  *logger.Logger
}

// NewService builds the settings service. cache may be nil, in which case
// every read falls through to the database.
func NewService(db *gorm.DB, cache *redis.Client, ttl time.Duration, logg *logger.Logger) Service {
	return &service{db: db, cache: cache, ttl: ttl, logg: logg}
}

func (s *service) Current(ctx context.Context) (*models.SiteSettings, error) {
	key := redis.CacheKey(cacheKeyName)
	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, key); err == nil {
			var cached models.SiteSettings
			if jsonErr := json.Unmarshal([]byte(raw), &cached); jsonErr == nil {
				return &cached, nil
			}
			if s.logg != nil {
				s.logg.Warn(ctx, "settings cache entry unreadable, falling through")
			}
		}
	}

	var row models.SiteSettings
	if err := s.db.WithContext(ctx).First(&row, "id = ?", models.SiteSettingsID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.New(errors.CodeInternal, "site settings row missing")
		}
		return nil, errors.Wrap(errors.CodeInternal, err, "load site settings")
	}

	if s.cache != nil {
		if raw, err := json.Marshal(row); err == nil {
			if err := s.cache.Set(ctx, key, string(raw), s.ttl); err != nil {
				if s.logg != nil {
					s.logg.Warn(ctx, "settings cache write failed")
				}
			}
		}
	}
	return &row, nil
}

func (s *service) Invalidate(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Del(ctx, redis.CacheKey(cacheKeyName))
}
