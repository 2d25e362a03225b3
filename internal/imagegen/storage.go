package imagegen

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

var storyIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// ImageStorage сохраняет байты иллюстрации и возвращает публичный URL.
type ImageStorage interface {
	Save(ctx context.Context, storyID string, pageIndex int, data []byte) (string, error)
}

type fileImageStorage struct {
	dir     string
	baseURL string
	logger  *zap.Logger
}

// NewFileImageStorage создает хранилище в локальной директории.
// Файлы раздаются HTTP-сервером по baseURL.
func NewFileImageStorage(dir, baseURL string, logger *zap.Logger) (ImageStorage, error) {
	if dir == "" {
		return nil, fmt.Errorf("image save path (IMAGE_SAVE_PATH) is not configured")
	}
	if baseURL == "" {
		return nil, fmt.Errorf("image public base URL (IMAGE_PUBLIC_BASE_URL) is not configured")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create image directory %s: %w", dir, err)
	}
	return &fileImageStorage{
		dir:     dir,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger.Named("FileImageStorage"),
	}, nil
}

// FileName возвращает имя файла для страницы истории.
func FileName(storyID string, pageIndex int) string {
	return fmt.Sprintf("%s_p%d.jpg", storyID, pageIndex)
}

func (s *fileImageStorage) Save(ctx context.Context, storyID string, pageIndex int, data []byte) (string, error) {
	if !storyIDPattern.MatchString(storyID) {
		return "", fmt.Errorf("%w: invalid story id %q", ErrImageSaveFailed, storyID)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty image data", ErrImageSaveFailed)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	fileName := FileName(storyID, pageIndex)
	filePath := filepath.Join(s.dir, fileName)
	tmp := filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("%w: %v", ErrImageSaveFailed, err)
	}
	if err := os.Rename(tmp, filePath); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("%w: %v", ErrImageSaveFailed, err)
	}
	s.logger.Debug("Image saved to file", zap.String("path", filePath))
	return s.baseURL + "/" + fileName, nil
}

var _ ImageStorage = (*fileImageStorage)(nil)
