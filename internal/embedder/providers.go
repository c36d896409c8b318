package embedder

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Provider names
const (
	ProviderHTTP  = "http"
	ProviderLocal = "local"

	DefaultHTTPModel = "text-embedding-3-small"
	LocalDimension   = 384

	defaultHTTPTimeout = 30 * time.Second
	maxErrorBodyBytes  = 4096
)

// HTTPProvider calls an OpenAI-compatible embeddings endpoint
type HTTPProvider struct {
	url        string
	token      string
	model      string
	httpClient *http.Client
	cache      *Cache
}

// NewHTTPProvider creates an embedder for the endpoint at url
func NewHTTPProvider(url, token, model string, cache *Cache) (*HTTPProvider, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("%w: embedding base url not set", ErrNoProviderEnabled)
	}
	if model == "" {
		model = DefaultHTTPModel
	}
	return &HTTPProvider{
		url:   url,
		token: token,
		model: model,
		httpClient: &http.Client{
			Timeout: defaultHTTPTimeout,
		},
		cache: cache,
	}, nil
}

func (p *HTTPProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyText
	}

	hash := ComputeHash(text)
	if v, ok := p.cache.Get(hash); ok {
		return v, nil
	}

	v, err := p.callAPI(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProviderFailed, err)
	}
	p.cache.Set(hash, v)
	return v, nil
}

func (p *HTTPProvider) callAPI(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(map[string]interface{}{
		"input": []string{text},
		"model": p.model,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, fmt.Errorf("api error %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var apiResp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(apiResp.Data) == 0 || len(apiResp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}
	return apiResp.Data[0].Embedding, nil
}

func (p *HTTPProvider) Provider() string {
	return ProviderHTTP
}

func (p *HTTPProvider) Model() string {
	return p.model
}

func (p *HTTPProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}

// LocalProvider derives a deterministic vector from the text hash.
// Equal texts get equal vectors; nothing else about similarity holds.
type LocalProvider struct {
	cache *Cache
}

// NewLocalProvider creates a local embedder
func NewLocalProvider(cache *Cache) *LocalProvider {
	return &LocalProvider{cache: cache}
}

func (l *LocalProvider) Embed(_ context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyText
	}

	hash := ComputeHash(text)
	if v, ok := l.cache.Get(hash); ok {
		return v, nil
	}

	vector := make([]float32, LocalDimension)
	sum := sha256.Sum256([]byte(text))
	for i := range vector {
		vector[i] = float32(sum[i%len(sum)])/255.0 - 0.5
	}
	vector = NormalizeVector(vector)

	l.cache.Set(hash, vector)
	return vector, nil
}

func (l *LocalProvider) Provider() string {
	return ProviderLocal
}

func (l *LocalProvider) Model() string {
	return "local-hash"
}

func (l *LocalProvider) Close() error {
	return nil
}
