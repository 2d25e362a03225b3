package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"fairytale-server/internal/interfaces"
	"fairytale-server/internal/models"
)

const maxUpdateRetries = 10

// redisStoryRepository хранит историю как JSON-значение под ключом prefix+id.
// Частичное обновление выполняется оптимистичной транзакцией WATCH/MULTI.
type redisStoryRepository struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time
}

// NewRedisStoryRepository создает хранилище поверх готового клиента Redis.
// ttl <= 0 означает хранение без срока.
func NewRedisStoryRepository(client *redis.Client, prefix string, ttl time.Duration, logger *zap.Logger) interfaces.StoryRepository {
	if prefix == "" {
		prefix = "story:"
	}
	return &redisStoryRepository{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		logger: logger.Named("RedisStoryRepo"),
		now:    time.Now,
	}
}

func (r *redisStoryRepository) storyKey(id string) string { return r.prefix + id }
func (r *redisStoryRepository) claimKey(id string) string { return r.prefix + id + ":claim" }

func (r *redisStoryRepository) expiration() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	return r.ttl
}

func (r *redisStoryRepository) CreateStory(ctx context.Context, story *models.Story) error {
	data, err := json.Marshal(story)
	if err != nil {
		return fmt.Errorf("%w: encode story: %v", models.ErrPersistence, err)
	}
	created, err := r.client.SetNX(ctx, r.storyKey(story.ID), data, r.expiration()).Result()
	if err != nil {
		r.logger.Error("Failed to create story in Redis", zap.String("story_id", story.ID), zap.Error(err))
		return fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}
	if !created {
		return fmt.Errorf("%w: story %s already exists", models.ErrPersistence, story.ID)
	}
	r.logger.Debug("Story created", zap.String("story_id", story.ID))
	return nil
}

func (r *redisStoryRepository) UpdateStory(ctx context.Context, id string, update models.StoryUpdate) (*models.Story, error) {
	key := r.storyKey(id)
	var result *models.Story

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return models.ErrNotFound
		}
		if err != nil {
			return err
		}
		var story models.Story
		if err := json.Unmarshal(data, &story); err != nil {
			return fmt.Errorf("%w: decode story: %v", models.ErrPersistence, err)
		}
		if err := story.ApplyUpdate(update, r.now().UTC()); err != nil {
			return err
		}
		encoded, err := json.Marshal(&story)
		if err != nil {
			return fmt.Errorf("%w: encode story: %v", models.ErrPersistence, err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, redis.KeepTTL)
			return nil
		})
		if err != nil {
			return err
		}
		result = &story
		return nil
	}

	for attempt := 0; attempt < maxUpdateRetries; attempt++ {
		err := r.client.Watch(ctx, txf, key)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			r.logger.Debug("Optimistic lock conflict, retrying", zap.String("story_id", id), zap.Int("attempt", attempt+1))
			continue
		}
		if isDomainError(err) {
			return nil, err
		}
		r.logger.Error("Failed to update story in Redis", zap.String("story_id", id), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}
	return nil, fmt.Errorf("%w: too many concurrent updates for story %s", models.ErrPersistence, id)
}

func (r *redisStoryRepository) GetStory(ctx context.Context, id string) (*models.Story, error) {
	data, err := r.client.Get(ctx, r.storyKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get story from Redis", zap.String("story_id", id), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}
	var story models.Story
	if err := json.Unmarshal(data, &story); err != nil {
		return nil, fmt.Errorf("%w: decode story: %v", models.ErrPersistence, err)
	}
	return &story, nil
}

func (r *redisStoryRepository) DeleteStory(ctx context.Context, id string) (bool, error) {
	deleted, err := r.client.Del(ctx, r.storyKey(id), r.claimKey(id)).Result()
	if err != nil {
		r.logger.Error("Failed to delete story from Redis", zap.String("story_id", id), zap.Error(err))
		return false, fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}
	if deleted > 0 {
		r.logger.Info("Story deleted", zap.String("story_id", id))
	}
	return deleted > 0, nil
}

func (r *redisStoryRepository) ClaimStory(ctx context.Context, id, owner string, ttl time.Duration) (bool, error) {
	key := r.claimKey(id)
	ok, err := r.client.SetNX(ctx, key, owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: claim story: %v", models.ErrPersistence, err)
	}
	if ok {
		return true, nil
	}

	current, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		// Claim истек между SETNX и GET
		return r.client.SetNX(ctx, key, owner, ttl).Result()
	}
	if err != nil {
		return false, fmt.Errorf("%w: read claim: %v", models.ErrPersistence, err)
	}
	if current != owner {
		return false, nil
	}
	if err := r.client.Expire(ctx, key, ttl).Err(); err != nil {
		return false, fmt.Errorf("%w: refresh claim: %v", models.ErrPersistence, err)
	}
	return true, nil
}

func (r *redisStoryRepository) Close() error {
	return r.client.Close()
}

// isDomainError - ошибки, которые нужно вернуть вызывающему без обертки.
func isDomainError(err error) bool {
	return errors.Is(err, models.ErrNotFound) ||
		errors.Is(err, models.ErrInvalidStatusTransition) ||
		errors.Is(err, models.ErrReferenceAlreadySet) ||
		errors.Is(err, models.ErrInvalidInput) ||
		errors.Is(err, models.ErrPersistence)
}

var _ interfaces.StoryRepository = (*redisStoryRepository)(nil)
