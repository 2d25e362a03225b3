package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"fairytale-server/internal/interfaces"
	"fairytale-server/internal/models"
)

const (
	selectStoryColumns = `id, request, status, title, content, images, character_reference, error, created_at, updated_at, completed_at`

	insertStoryQuery = `
        INSERT INTO stories (id, request, status, title, content, images, character_reference, error, created_at, updated_at, completed_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	getStoryQuery       = `SELECT ` + selectStoryColumns + ` FROM stories WHERE id = $1`
	getStoryForUpdQuery = getStoryQuery + ` FOR UPDATE`

	updateStoryQuery = `
        UPDATE stories
        SET status = $2, title = $3, content = $4, images = $5, character_reference = $6,
            error = $7, updated_at = $8, completed_at = $9
        WHERE id = $1`

	deleteStoryQuery = `DELETE FROM stories WHERE id = $1`

	claimStoryQuery = `
        UPDATE stories
        SET claimed_by = $2, claim_expires_at = NOW() + make_interval(secs => $3)
        WHERE id = $1
          AND (claimed_by IS NULL OR claimed_by = $2 OR claim_expires_at < NOW())`

	storyExistsQuery = `SELECT EXISTS(SELECT 1 FROM stories WHERE id = $1)`
)

// storyRow - строка таблицы stories. JSONB-колонки сканируются как []byte.
type storyRow struct {
	ID                 string     `db:"id"`
	Request            []byte     `db:"request"`
	Status             string     `db:"status"`
	Title              string     `db:"title"`
	Content            []byte     `db:"content"`
	Images             []byte     `db:"images"`
	CharacterReference []byte     `db:"character_reference"`
	Error              string     `db:"error"`
	CreatedAt          time.Time  `db:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at"`
	CompletedAt        *time.Time `db:"completed_at"`
}

func (row *storyRow) toModel() (*models.Story, error) {
	story := &models.Story{
		ID:          row.ID,
		Status:      models.StoryStatus(row.Status),
		Title:       row.Title,
		Error:       row.Error,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
		CompletedAt: row.CompletedAt,
	}
	if err := json.Unmarshal(row.Request, &story.Request); err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}
	if len(row.Content) > 0 {
		story.Content = &models.StoryContent{}
		if err := json.Unmarshal(row.Content, story.Content); err != nil {
			return nil, fmt.Errorf("decode content: %w", err)
		}
	}
	if len(row.Images) > 0 {
		if err := json.Unmarshal(row.Images, &story.Images); err != nil {
			return nil, fmt.Errorf("decode images: %w", err)
		}
		if len(story.Images) == 0 {
			story.Images = nil
		}
	}
	if len(row.CharacterReference) > 0 {
		story.CharacterReference = &models.CharacterReference{}
		if err := json.Unmarshal(row.CharacterReference, story.CharacterReference); err != nil {
			return nil, fmt.Errorf("decode character reference: %w", err)
		}
	}
	return story, nil
}

// encodedStory - JSONB-поля истории, готовые к записи.
type encodedStory struct {
	request   []byte
	content   []byte
	images    []byte
	reference []byte
}

func encodeStory(story *models.Story) (*encodedStory, error) {
	var (
		enc encodedStory
		err error
	)
	if enc.request, err = json.Marshal(story.Request); err != nil {
		return nil, err
	}
	if story.Content != nil {
		if enc.content, err = json.Marshal(story.Content); err != nil {
			return nil, err
		}
	}
	images := story.Images
	if images == nil {
		images = []string{}
	}
	if enc.images, err = json.Marshal(images); err != nil {
		return nil, err
	}
	if story.CharacterReference != nil {
		if enc.reference, err = json.Marshal(story.CharacterReference); err != nil {
			return nil, err
		}
	}
	return &enc, nil
}

type pgStoryRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	now    func() time.Time
}

// NewPgStoryRepository создает хранилище историй в PostgreSQL.
func NewPgStoryRepository(pool *pgxpool.Pool, logger *zap.Logger) interfaces.StoryRepository {
	return &pgStoryRepository{
		pool:   pool,
		logger: logger.Named("PgStoryRepo"),
		now:    time.Now,
	}
}

func (r *pgStoryRepository) CreateStory(ctx context.Context, story *models.Story) error {
	enc, err := encodeStory(story)
	if err != nil {
		return fmt.Errorf("%w: encode story: %v", models.ErrPersistence, err)
	}
	_, err = r.pool.Exec(ctx, insertStoryQuery,
		story.ID, enc.request, string(story.Status), story.Title, enc.content, enc.images,
		enc.reference, story.Error, story.CreatedAt, story.UpdatedAt, story.CompletedAt,
	)
	if err != nil {
		r.logger.Error("Failed to insert story", zap.String("story_id", story.ID), zap.Error(err))
		return fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}
	r.logger.Debug("Story created", zap.String("story_id", story.ID))
	return nil
}

func (r *pgStoryRepository) UpdateStory(ctx context.Context, id string, update models.StoryUpdate) (result *models.Story, err error) {
	log := r.logger.With(zap.String("story_id", id))

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: begin tx: %v", models.ErrPersistence, err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				log.Error("Failed to rollback transaction", zap.Error(rbErr))
			}
		}
	}()

	var row storyRow
	if err = pgxscan.Get(ctx, tx, &row, getStoryForUpdQuery, id); err != nil {
		if pgxscan.NotFound(err) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("%w: select story: %v", models.ErrPersistence, err)
	}
	story, err := row.toModel()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}
	if err = story.ApplyUpdate(update, r.now().UTC()); err != nil {
		return nil, err
	}
	enc, err := encodeStory(story)
	if err != nil {
		return nil, fmt.Errorf("%w: encode story: %v", models.ErrPersistence, err)
	}
	if _, err = tx.Exec(ctx, updateStoryQuery,
		id, string(story.Status), story.Title, enc.content, enc.images, enc.reference,
		story.Error, story.UpdatedAt, story.CompletedAt,
	); err != nil {
		log.Error("Failed to update story", zap.Error(err))
		return nil, fmt.Errorf("%w: update story: %v", models.ErrPersistence, err)
	}
	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("%w: commit: %v", models.ErrPersistence, err)
	}
	return story, nil
}

func (r *pgStoryRepository) GetStory(ctx context.Context, id string) (*models.Story, error) {
	var row storyRow
	if err := pgxscan.Get(ctx, r.pool, &row, getStoryQuery, id); err != nil {
		if pgxscan.NotFound(err) {
			return nil, models.ErrNotFound
		}
		r.logger.Error("Failed to get story", zap.String("story_id", id), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}
	story, err := row.toModel()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}
	return story, nil
}

func (r *pgStoryRepository) DeleteStory(ctx context.Context, id string) (bool, error) {
	tag, err := r.pool.Exec(ctx, deleteStoryQuery, id)
	if err != nil {
		r.logger.Error("Failed to delete story", zap.String("story_id", id), zap.Error(err))
		return false, fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}
	if tag.RowsAffected() > 0 {
		r.logger.Info("Story deleted", zap.String("story_id", id))
	}
	return tag.RowsAffected() > 0, nil
}

func (r *pgStoryRepository) ClaimStory(ctx context.Context, id, owner string, ttl time.Duration) (bool, error) {
	tag, err := r.pool.Exec(ctx, claimStoryQuery, id, owner, ttl.Seconds())
	if err != nil {
		return false, fmt.Errorf("%w: claim story: %v", models.ErrPersistence, err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	var exists bool
	if err := r.pool.QueryRow(ctx, storyExistsQuery, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("%w: check story: %v", models.ErrPersistence, err)
	}
	if !exists {
		return false, models.ErrNotFound
	}
	return false, nil
}

func (r *pgStoryRepository) Close() error {
	r.pool.Close()
	return nil
}

var _ interfaces.StoryRepository = (*pgStoryRepository)(nil)
