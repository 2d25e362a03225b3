package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fairytale-server/internal/interfaces"
	"fairytale-server/internal/models"
	"fairytale-server/internal/storygen"
)

const (
	DefaultTextTimeout  = 60 * time.Second
	DefaultImageTimeout = 2 * time.Minute
	DefaultStoreTimeout = 10 * time.Second
	DefaultClaimTTL     = 30 * time.Minute
)

// Config - параметры оркестратора.
type Config struct {
	TextTimeout      time.Duration
	ImageTimeout     time.Duration
	StoreTimeout     time.Duration
	ClaimTTL         time.Duration
	PlaceholderImage string
	// Owner - идентификатор процесса для ClaimStory. Пустой - сгенерировать.
	Owner string
}

// Orchestrator проводит историю через все этапы генерации.
// Все состояние прогона хранится в записи Story.
type Orchestrator struct {
	repo     interfaces.StoryRepository
	text     interfaces.TextGenerator
	images   interfaces.ImageGenerator
	notifier interfaces.StatusNotifier
	cfg      Config
	logger   *zap.Logger
	now      func() time.Time
}

// NewOrchestrator создает Orchestrator. notifier может быть nil.
func NewOrchestrator(
	repo interfaces.StoryRepository,
	text interfaces.TextGenerator,
	images interfaces.ImageGenerator,
	notifier interfaces.StatusNotifier,
	cfg Config,
	logger *zap.Logger,
) *Orchestrator {
	if cfg.TextTimeout <= 0 {
		cfg.TextTimeout = DefaultTextTimeout
	}
	if cfg.ImageTimeout <= 0 {
		cfg.ImageTimeout = DefaultImageTimeout
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = DefaultStoreTimeout
	}
	if cfg.ClaimTTL <= 0 {
		cfg.ClaimTTL = DefaultClaimTTL
	}
	if cfg.Owner == "" {
		cfg.Owner = uuid.NewString()
	}
	return &Orchestrator{
		repo:     repo,
		text:     text,
		images:   images,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger.Named("Orchestrator"),
		now:      time.Now,
	}
}

// runState - то, что прогон знает о записи на текущий момент.
type runState struct {
	content      *models.StoryContent
	images       []string
	reference    *models.CharacterReference
	placeholders int
}

// Run генерирует историю storyID. Результат наблюдается только через хранилище.
func (o *Orchestrator) Run(ctx context.Context, storyID string, req models.StoryRequest) {
	start := o.now()
	log := o.logger.With(zap.String("story_id", storyID))

	req = req.Normalize()
	if err := req.Validate(); err != nil {
		log.Warn("Invalid story request, marking story failed", zap.Error(err))
		o.fail(ctx, log, storyID, err.Error())
		MetricsRecordRun("failed", 0)
		return
	}

	claimed, err := o.claim(ctx, storyID)
	if err != nil {
		log.Error("Failed to claim story", zap.Error(err))
		MetricsRecordRun("persist_error", 0)
		return
	}
	if !claimed {
		log.Info("Story is claimed by another run, skipping")
		MetricsRecordRun("skipped", 0)
		return
	}

	state, proceed := o.prepare(ctx, log, storyID)
	if !proceed {
		return
	}

	if state.content == nil {
		if _, err := o.update(ctx, storyID, models.StoryUpdate{Status: models.StatusPtr(models.StatusGeneratingStory)}); err != nil {
			log.Error("Failed to persist generating_story status", zap.Error(err))
			o.fail(ctx, log, storyID, "failed to persist story state")
			MetricsRecordRun("failed", 0)
			return
		}

		content, err := o.generateText(ctx, log, req)
		if ctx.Err() != nil {
			o.cancelled(ctx, log, start)
			return
		}
		if err != nil {
			log.Error("Fallback story synthesis failed", zap.Error(err))
			o.fail(ctx, log, storyID, err.Error())
			MetricsRecordRun("failed", o.now().Sub(start).Seconds())
			return
		}

		if _, err := o.update(ctx, storyID, models.StoryUpdate{
			Status:  models.StatusPtr(models.StatusGeneratingImages),
			Title:   models.StringPtr(content.Title),
			Content: content,
		}); err != nil {
			log.Error("Failed to persist story content", zap.Error(err))
			o.fail(ctx, log, storyID, "failed to persist story content")
			MetricsRecordRun("failed", o.now().Sub(start).Seconds())
			return
		}
		state.content = content
		log.Info("Story text stored", zap.Int("pages", len(content.Pages)))
	} else {
		log.Info("Resuming image generation", zap.Int("images_done", len(state.images)))
	}

	if !o.generateImages(ctx, log, storyID, req, state) {
		o.cancelled(ctx, log, start)
		return
	}

	completedAt := o.now()
	story, err := o.update(ctx, storyID, models.StoryUpdate{
		Status:      models.StatusPtr(models.StatusComplete),
		Images:      state.images,
		CompletedAt: &completedAt,
	})
	if err != nil {
		log.Error("Failed to persist completed story", zap.Error(err))
		MetricsRecordRun("persist_error", o.now().Sub(start).Seconds())
		return
	}

	log.Info("Story complete",
		zap.Int("images", len(state.images)),
		zap.Int("placeholders", state.placeholders),
		zap.Duration("duration", o.now().Sub(start)),
	)
	MetricsRecordRun("complete", o.now().Sub(start).Seconds())
	o.notify(ctx, log, models.StoryStatusEvent{
		StoryID:          storyID,
		Status:           models.StatusComplete,
		Title:            story.Title,
		ImageCount:       len(state.images),
		PlaceholderCount: state.placeholders,
		OccurredAt:       completedAt,
	})
}

// cancelled завершает прерванный прогон без записи. История остается в
// текущем статусе и продолжается следующим прогоном после истечения захвата.
func (o *Orchestrator) cancelled(ctx context.Context, log *zap.Logger, start time.Time) {
	log.Info("Run cancelled, story left for resume", zap.Error(ctx.Err()))
	MetricsRecordRun("cancelled", o.now().Sub(start).Seconds())
}

// prepare читает запись и решает, с какого этапа продолжать.
// Завершенная история повторно не обрабатывается. История, у которой уже есть
// текст, продолжает генерацию иллюстраций с первой отсутствующей страницы.
func (o *Orchestrator) prepare(ctx context.Context, log *zap.Logger, storyID string) (*runState, bool) {
	story, err := o.get(ctx, storyID)
	if err != nil {
		log.Error("Failed to load story", zap.Error(err))
		MetricsRecordRun("persist_error", 0)
		return nil, false
	}
	if story.Status.IsTerminal() {
		log.Info("Story already finished, skipping", zap.String("status", string(story.Status)))
		MetricsRecordRun("skipped", 0)
		return nil, false
	}

	state := &runState{}
	if story.Status == models.StatusGeneratingImages && story.Content != nil && len(story.Content.Pages) > 0 {
		state.content = story.Content
		state.images = append([]string(nil), story.Images...)
		state.reference = story.CharacterReference
		for _, img := range state.images {
			if img == o.cfg.PlaceholderImage {
				state.placeholders++
			}
		}
	}
	return state, true
}

// generateText возвращает текст от генератора или резервную историю.
// Ошибка означает, что не удалось построить и резервную историю либо прогон отменен.
func (o *Orchestrator) generateText(ctx context.Context, log *zap.Logger, req models.StoryRequest) (*models.StoryContent, error) {
	content, err := callWithTimeout(ctx, "text", o.cfg.TextTimeout, func(c context.Context) (*models.StoryContent, error) {
		return o.text.Generate(c, req)
	})
	if ctx.Err() != nil {
		return nil, fmt.Errorf("text generation interrupted: %w", ctx.Err())
	}
	if err == nil {
		err = content.Validate()
	}
	if err == nil {
		return content, nil
	}

	reason := fallbackReason(err)
	log.Warn("Text generation failed, using fallback story", zap.String("reason", reason), zap.Error(err))
	pipelineFallbackTotal.WithLabelValues(reason).Inc()

	fallback, fbErr := storygen.FallbackStory(req)
	if fbErr != nil {
		return nil, fmt.Errorf("fallback story: %w", fbErr)
	}
	return fallback, nil
}

func fallbackReason(err error) string {
	switch {
	case errors.Is(err, models.ErrUpstreamTimeout):
		return "timeout"
	case errors.Is(err, models.ErrInvalidResponse):
		return "invalid_response"
	default:
		return "upstream_error"
	}
}

// generateImages последовательно генерирует иллюстрации, начиная с первой
// отсутствующей страницы. Референс персонажа берется только с картинки 0
// и передается во все следующие вызовы. false - прогон отменен, страница,
// на которой это произошло, не записывается.
func (o *Orchestrator) generateImages(ctx context.Context, log *zap.Logger, storyID string, req models.StoryRequest, state *runState) bool {
	pages := state.content.Pages
	for i := len(state.images); i < len(pages); i++ {
		pageLog := log.With(zap.Int("page_index", i))
		prompt := interfaces.ImagePrompt{
			StoryID:   storyID,
			PageIndex: i,
			Scene:     pages[i].ImagePrompt,
			Style:     req.IllustrationStyle,
			ChildName: req.ChildName,
			ChildAge:  req.ChildAge,
			Language:  req.Language,
		}
		reference := state.reference

		img, err := callWithTimeout(ctx, "image", o.cfg.ImageTimeout, func(c context.Context) (*models.GeneratedImage, error) {
			return o.images.Generate(c, prompt, reference)
		})
		if ctx.Err() != nil {
			pageLog.Info("Image generation interrupted", zap.Int("images_done", len(state.images)))
			return false
		}

		update := models.StoryUpdate{}
		if err != nil || img == nil || img.URL == "" {
			pageLog.Warn("Image generation failed, using placeholder", zap.Error(err))
			pipelinePlaceholdersTotal.Inc()
			state.images = append(state.images, o.cfg.PlaceholderImage)
			state.placeholders++
		} else {
			state.images = append(state.images, img.URL)
			if i == 0 && state.reference == nil && img.Artifact != nil {
				state.reference = img.Artifact
				update.CharacterReference = img.Artifact
			}
		}
		update.Images = append([]string(nil), state.images...)

		_, err = o.update(ctx, storyID, update)
		if errors.Is(err, models.ErrReferenceAlreadySet) {
			pageLog.Warn("Character reference already stored, keeping existing one")
			update.CharacterReference = nil
			_, err = o.update(ctx, storyID, update)
		}
		if err != nil {
			// Префикс будет записан следующим обновлением
			pageLog.Warn("Failed to persist images prefix", zap.Error(err))
		}
	}
	return true
}

func (o *Orchestrator) claim(ctx context.Context, storyID string) (bool, error) {
	storeCtx, cancel := context.WithTimeout(ctx, o.cfg.StoreTimeout)
	defer cancel()
	return o.repo.ClaimStory(storeCtx, storyID, o.cfg.Owner, o.cfg.ClaimTTL)
}

func (o *Orchestrator) get(ctx context.Context, storyID string) (*models.Story, error) {
	storeCtx, cancel := context.WithTimeout(ctx, o.cfg.StoreTimeout)
	defer cancel()
	return o.repo.GetStory(storeCtx, storyID)
}

func (o *Orchestrator) update(ctx context.Context, storyID string, u models.StoryUpdate) (*models.Story, error) {
	storeCtx, cancel := context.WithTimeout(ctx, o.cfg.StoreTimeout)
	defer cancel()
	return o.repo.UpdateStory(storeCtx, storyID, u)
}

// fail переводит историю в failed и публикует событие.
func (o *Orchestrator) fail(ctx context.Context, log *zap.Logger, storyID, reason string) {
	if _, err := o.update(ctx, storyID, models.StoryUpdate{
		Status: models.StatusPtr(models.StatusFailed),
		Error:  models.StringPtr(reason),
	}); err != nil {
		log.Error("Failed to mark story failed", zap.Error(err))
		return
	}
	o.notify(ctx, log, models.StoryStatusEvent{
		StoryID:    storyID,
		Status:     models.StatusFailed,
		Error:      reason,
		OccurredAt: o.now(),
	})
}

// notify публикует событие. Ошибки только логируются.
func (o *Orchestrator) notify(ctx context.Context, log *zap.Logger, event models.StoryStatusEvent) {
	if o.notifier == nil {
		return
	}
	notifyCtx, cancel := context.WithTimeout(ctx, o.cfg.StoreTimeout)
	defer cancel()
	if err := o.notifier.NotifyStatus(notifyCtx, event); err != nil {
		log.Warn("Failed to publish story status event", zap.Error(err))
	}
}
