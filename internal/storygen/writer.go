package storygen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"fairytale-server/internal/config"
	"fairytale-server/internal/interfaces"
	"fairytale-server/internal/models"
	"fairytale-server/internal/utils"
)

var (
	storyPageCountAdjustments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fairytale_story_page_count_adjustments_total",
			Help: "Stories whose page count had to be corrected, by method.",
		},
		[]string{"method"},
	)
	storyPromptTokens = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fairytale_story_prompt_tokens",
			Help:    "Estimated prompt size in tokens before sending to the model.",
			Buckets: prometheus.LinearBuckets(100, 100, 15),
		},
	)
)

// WriterConfig - параметры генерации текста истории.
type WriterConfig struct {
	Temperature   float64
	MaxTokens     int
	MaxSeedTokens int
}

// StoryWriter генерирует текст истории через AIClient.
type StoryWriter struct {
	ai        AIClient
	tokenizer Tokenizer
	cfg       WriterConfig
	logger    *zap.Logger
}

// NewStoryWriter создает StoryWriter. tokenizer может быть nil,
// тогда затравка не обрезается и токены не считаются.
func NewStoryWriter(ai AIClient, tokenizer Tokenizer, cfg WriterConfig, logger *zap.Logger) *StoryWriter {
	return &StoryWriter{
		ai:        ai,
		tokenizer: tokenizer,
		cfg:       cfg,
		logger:    logger.Named("StoryWriter"),
	}
}

// rawStory - ответ модели до валидации.
type rawStory struct {
	Title string `json:"title"`
	Pages []struct {
		Text        string `json:"text"`
		ImagePrompt string `json:"imagePrompt"`
	} `json:"pages"`
	Moral string `json:"moral"`
}

// Generate реализует interfaces.TextGenerator.
func (w *StoryWriter) Generate(ctx context.Context, req models.StoryRequest) (*models.StoryContent, error) {
	log := w.logger.With(
		zap.String("language", string(req.Language)),
		zap.Int("page_count", req.PageCount),
		zap.String("age_band", AgeBandFor(req.ChildAge).String()),
	)

	seed := req.FreeTextSeed
	if w.tokenizer != nil && w.cfg.MaxSeedTokens > 0 && seed != "" {
		seed = w.tokenizer.Truncate(seed, w.cfg.MaxSeedTokens)
		if seed != req.FreeTextSeed {
			log.Info("Free text seed truncated", zap.Int("max_tokens", w.cfg.MaxSeedTokens))
		}
	}

	systemPrompt := BuildSystemPrompt(req)
	userPrompt := BuildUserPrompt(req, seed)
	if w.tokenizer != nil {
		storyPromptTokens.Observe(float64(w.tokenizer.Count(systemPrompt) + w.tokenizer.Count(userPrompt)))
	}

	raw, err := w.call(ctx, systemPrompt, userPrompt)
	if err != nil {
		return nil, err
	}
	content, err := parseStory(raw)
	if err != nil {
		log.Warn("Model returned unparseable story", zap.Error(err), zap.String("response", utils.StringShort(raw, 300)))
		return nil, err
	}

	if len(content.Pages) != req.PageCount {
		log.Info("Page count mismatch, asking model to correct",
			zap.Int("got_pages", len(content.Pages)))
		correctionPrompt := BuildCorrectionPrompt(req, seed, len(content.Pages), raw)
		if fixedRaw, callErr := w.call(ctx, systemPrompt, correctionPrompt); callErr == nil {
			if fixed, parseErr := parseStory(fixedRaw); parseErr == nil && len(fixed.Pages) == req.PageCount {
				storyPageCountAdjustments.WithLabelValues("reask").Inc()
				return fixed, nil
			}
		} else if ctx.Err() != nil {
			return nil, classifyCallError(ctx, callErr)
		}
		content = fitPageCount(content, req)
	}
	return content, nil
}

func (w *StoryWriter) call(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	temperature := w.cfg.Temperature
	params := GenerationParams{Temperature: &temperature, JSONMode: true}
	if w.cfg.MaxTokens > 0 {
		maxTokens := w.cfg.MaxTokens
		params.MaxTokens = &maxTokens
	}
	text, _, err := w.ai.GenerateText(ctx, systemPrompt, userPrompt, params)
	if err != nil {
		return "", classifyCallError(ctx, err)
	}
	return text, nil
}

// classifyCallError приводит ошибку клиента к ошибкам TextGenerator.
func classifyCallError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", models.ErrUpstreamTimeout, err)
	}
	return fmt.Errorf("%w: %v", models.ErrUpstreamError, err)
}

// parseStory извлекает JSON из ответа модели и проверяет форму.
func parseStory(raw string) (*models.StoryContent, error) {
	jsonText := utils.ExtractJSONObject(raw)
	if jsonText == "" {
		return nil, fmt.Errorf("%w: no JSON object in response", models.ErrInvalidResponse)
	}
	var parsed rawStory
	if err := json.Unmarshal([]byte(jsonText), &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidResponse, err)
	}
	content := &models.StoryContent{
		Title: parsed.Title,
		Moral: parsed.Moral,
		Pages: make([]models.Page, 0, len(parsed.Pages)),
	}
	for _, p := range parsed.Pages {
		content.Pages = append(content.Pages, models.Page{Text: p.Text, ImagePrompt: p.ImagePrompt})
	}
	if err := content.Validate(); err != nil {
		return nil, err
	}
	return content, nil
}

// fitPageCount обрезает лишние страницы или дополняет недостающие
// страницами резервного каркаса.
func fitPageCount(content *models.StoryContent, req models.StoryRequest) *models.StoryContent {
	if len(content.Pages) > req.PageCount {
		storyPageCountAdjustments.WithLabelValues("truncate").Inc()
		content.Pages = content.Pages[:req.PageCount]
		return content
	}
	storyPageCountAdjustments.WithLabelValues("pad").Inc()
	fallback, err := FallbackStory(req)
	if err != nil {
		return content
	}
	for i := len(content.Pages); i < req.PageCount; i++ {
		content.Pages = append(content.Pages, fallback.Pages[i])
	}
	return content
}

var _ interfaces.TextGenerator = (*StoryWriter)(nil)

// NewFromConfig собирает StoryWriter с клиентом модели и токенизатором из конфигурации.
func NewFromConfig(cfg config.TextAIConfig, logger *zap.Logger) (*StoryWriter, error) {
	ai, err := NewAIClient(cfg, logger)
	if err != nil {
		return nil, err
	}
	return NewStoryWriter(ai, NewTiktokenTokenizer(cfg.Model), WriterConfig{
		Temperature:   cfg.Temperature,
		MaxTokens:     cfg.MaxTokens,
		MaxSeedTokens: cfg.MaxSeedTokens,
	}, logger), nil
}
