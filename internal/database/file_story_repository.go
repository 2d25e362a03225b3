package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"go.uber.org/zap"

	"fairytale-server/internal/interfaces"
	"fairytale-server/internal/models"
)

var storyIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

type fileClaim struct {
	Owner     string    `json:"owner"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// fileStoryRepository хранит каждую историю в отдельном JSON-файле.
// Подходит для одного процесса: атомарность обеспечивается мьютексом.
type fileStoryRepository struct {
	dir    string
	mu     sync.Mutex
	logger *zap.Logger
	now    func() time.Time
}

// NewFileStoryRepository создает файловое хранилище в каталоге dir.
func NewFileStoryRepository(dir string, logger *zap.Logger) (interfaces.StoryRepository, error) {
	if dir == "" {
		return nil, errors.New("storage directory (STORAGE_FILE_DIR) is not configured")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create storage dir: %v", models.ErrPersistence, err)
	}
	return &fileStoryRepository{
		dir:    dir,
		logger: logger.Named("FileStoryRepo"),
		now:    time.Now,
	}, nil
}

func (r *fileStoryRepository) storyPath(id string) (string, error) {
	if !storyIDPattern.MatchString(id) {
		return "", fmt.Errorf("%w: malformed story id %q", models.ErrInvalidInput, id)
	}
	return filepath.Join(r.dir, id+".json"), nil
}

func (r *fileStoryRepository) claimPath(id string) string {
	return filepath.Join(r.dir, id+".claim")
}

func (r *fileStoryRepository) CreateStory(ctx context.Context, story *models.Story) error {
	path, err := r.storyPath(story.ID)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: story %s already exists", models.ErrPersistence, story.ID)
	}
	if err := r.writeJSON(path, story); err != nil {
		r.logger.Error("Failed to create story", zap.String("story_id", story.ID), zap.Error(err))
		return err
	}
	r.logger.Debug("Story created", zap.String("story_id", story.ID))
	return nil
}

func (r *fileStoryRepository) UpdateStory(ctx context.Context, id string, update models.StoryUpdate) (*models.Story, error) {
	path, err := r.storyPath(id)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	story, err := r.readStory(path)
	if err != nil {
		return nil, err
	}
	if err := story.ApplyUpdate(update, r.now().UTC()); err != nil {
		return nil, err
	}
	if err := r.writeJSON(path, story); err != nil {
		r.logger.Error("Failed to update story", zap.String("story_id", id), zap.Error(err))
		return nil, err
	}
	return story, nil
}

func (r *fileStoryRepository) GetStory(ctx context.Context, id string) (*models.Story, error) {
	path, err := r.storyPath(id)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.readStory(path)
}

func (r *fileStoryRepository) DeleteStory(ctx context.Context, id string) (bool, error) {
	path, err := r.storyPath(id)
	if err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	err = os.Remove(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: delete story %s: %v", models.ErrPersistence, id, err)
	}
	_ = os.Remove(r.claimPath(id))
	r.logger.Info("Story deleted", zap.String("story_id", id))
	return true, nil
}

func (r *fileStoryRepository) ClaimStory(ctx context.Context, id, owner string, ttl time.Duration) (bool, error) {
	if _, err := r.storyPath(id); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	path := r.claimPath(id)
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		var existing fileClaim
		if jsonErr := json.Unmarshal(data, &existing); jsonErr == nil &&
			existing.Owner != owner && now.Before(existing.ExpiresAt) {
			return false, nil
		}
	case !errors.Is(err, os.ErrNotExist):
		return false, fmt.Errorf("%w: read claim %s: %v", models.ErrPersistence, id, err)
	}

	if err := r.writeJSON(path, fileClaim{Owner: owner, ExpiresAt: now.Add(ttl)}); err != nil {
		return false, err
	}
	return true, nil
}

func (r *fileStoryRepository) Close() error { return nil }

func (r *fileStoryRepository) readStory(path string) (*models.Story, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", models.ErrPersistence, path, err)
	}
	var story models.Story
	if err := json.Unmarshal(data, &story); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", models.ErrPersistence, path, err)
	}
	return &story, nil
}

// writeJSON пишет файл через временный файл и rename, чтобы читатель
// никогда не видел частично записанную запись.
func (r *fileStoryRepository) writeJSON(path string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: encode: %v", models.ErrPersistence, err)
	}
	tmp, err := os.CreateTemp(r.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %v", models.ErrPersistence, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: write temp file: %v", models.ErrPersistence, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: close temp file: %v", models.ErrPersistence, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: rename: %v", models.ErrPersistence, err)
	}
	return nil
}

var _ interfaces.StoryRepository = (*fileStoryRepository)(nil)
