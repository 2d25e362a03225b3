package imagegen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// SeedHeader - заголовок ответа SANA с фактическим seed.
const SeedHeader = "X-Seed"

// maxErrorBody ограничивает тело ошибки в логах и сообщениях.
const maxErrorBody = 512

// sanaAPIRequest - структура запроса к SANA API.
type sanaAPIRequest struct {
	Prompt         string `json:"prompt"`
	Ratio          string `json:"ratio"`
	Seed           int64  `json:"seed,omitempty"`
	ReferenceImage string `json:"reference_image,omitempty"`
}

type sanaClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewSanaClient создает бэкенд для SANA image server.
func NewSanaClient(baseURL string, timeout time.Duration, logger *zap.Logger) Backend {
	return &sanaClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.Named("SanaClient"),
	}
}

func (c *sanaClient) Name() string { return "sana" }

// Generate вызывает POST /generate и возвращает байты изображения.
func (c *sanaClient) Generate(ctx context.Context, req BackendRequest) (*BackendResult, error) {
	log := c.logger.With(zap.String("api_url", c.baseURL), zap.Bool("with_reference", len(req.ReferenceImage) > 0))

	payload := sanaAPIRequest{
		Prompt: req.Prompt,
		Ratio:  req.Ratio,
		Seed:   req.Seed,
	}
	if len(req.ReferenceImage) > 0 {
		payload.ReferenceImage = base64.StdEncoding.EncodeToString(req.ReferenceImage)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	endpointURL := c.baseURL + "/generate"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpointURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "image/*")

	log.Debug("Sending request to SANA API", zap.String("url", endpointURL))
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: http request failed: %w", ErrImageGenerationFailed, err)
	}
	defer resp.Body.Close()

	data, readErr := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		if len(data) > maxErrorBody {
			data = data[:maxErrorBody]
		}
		log.Error("SANA API returned non-OK status",
			zap.Int("status_code", resp.StatusCode),
			zap.ByteString("response_body", data),
		)
		return nil, fmt.Errorf("%w: API returned status %d: %s", ErrImageGenerationFailed, resp.StatusCode, string(data))
	}
	if readErr != nil {
		return nil, fmt.Errorf("%w: failed to read response body: %w", ErrImageGenerationFailed, readErr)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: API returned empty data", ErrImageGenerationFailed)
	}

	seed := req.Seed
	if h := resp.Header.Get(SeedHeader); h != "" {
		if parsed, parseErr := strconv.ParseInt(h, 10, 64); parseErr == nil {
			seed = parsed
		} else {
			log.Warn("Invalid seed header in SANA response", zap.String("value", h))
		}
	}

	log.Debug("SANA API call successful", zap.Int("size_bytes", len(data)))
	return &BackendResult{Data: data, Seed: seed}, nil
}

var _ Backend = (*sanaClient)(nil)
