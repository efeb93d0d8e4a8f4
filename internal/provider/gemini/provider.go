package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"chatrelay/internal/config"
	"chatrelay/internal/models"
	"chatrelay/internal/provider"
)

const (
	contentTypeJSON = "application/json"
	userAgent       = "chatrelay/0.1"

	roleUser  = "user"
	roleModel = "model"
)

// Provider implements provider.Adapter for the Gemini generateContent API.
// Gemini authenticates through the key query parameter rather than a header.
type Provider struct {
	id      string
	name    string
	baseURL string
	headers map[string]string
	timeout time.Duration
	client  *http.Client
	models  []models.Model
}

// New creates a new Gemini provider.
func New(id string, cfg config.ProviderConfig, client *http.Client) (*Provider, error) {
	if client == nil {
		return nil, errors.New("http client must not be nil")
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		return nil, errors.New("base url must not be empty")
	}
	if cfg.APIStyle != config.StyleGemini {
		return nil, fmt.Errorf("gemini provider %q configured with unsupported api_style %q", id, cfg.APIStyle)
	}

	name := cfg.DisplayName
	if name == "" {
		name = id
	}

	modelsList := make([]models.Model, 0, len(cfg.Models))
	for _, model := range cfg.Models {
		modelsList = append(modelsList, models.Model{ID: model.ID, Name: model.Name, Provider: id})
	}

	return &Provider{
		id:      id,
		name:    name,
		baseURL: baseURL,
		headers: cfg.Headers,
		timeout: cfg.Timeout,
		client:  client,
		models:  modelsList,
	}, nil
}

func (p *Provider) ID() string {
	return p.id
}

func (p *Provider) DisplayName() string {
	return p.name
}

func (p *Provider) Models() []models.Model {
	result := make([]models.Model, len(p.models))
	copy(result, p.models)
	return result
}

func (p *Provider) Send(ctx context.Context, req models.ChatRequest, cred models.ProviderCredential) (*models.ChatResult, error) {
	if strings.TrimSpace(cred.APIKey) == "" {
		return nil, provider.ErrCredentialMissing
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	httpReq, err := p.newRequest(ctx, req.Model, cred, buildPayload(req))
	if err != nil {
		return nil, err
	}

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, provider.WrapTransportError(ctx, p.id, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		body, readErr := io.ReadAll(io.LimitReader(httpResp.Body, provider.MaxErrorBody))
		if readErr != nil {
			return nil, fmt.Errorf("upstream error status %d and failed to read body: %w", httpResp.StatusCode, readErr)
		}
		return nil, &provider.UpstreamError{Status: httpResp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var resp generateResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		if ctx.Err() != nil {
			return nil, provider.WrapTransportError(ctx, p.id, ctx.Err())
		}
		return nil, fmt.Errorf("decode provider response: %v: %w", err, provider.ErrResponseFormat)
	}

	return resp.toUnified()
}

func (p *Provider) newRequest(ctx context.Context, model string, cred models.ProviderCredential, payload generatePayload) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	baseURL := p.baseURL
	if cred.BaseURL != "" {
		baseURL = strings.TrimRight(cred.BaseURL, "/")
	}
	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", baseURL, url.PathEscape(model), url.QueryEscape(cred.APIKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("construct request: %w", err)
	}

	req.Header.Set("Content-Type", contentTypeJSON)
	req.Header.Set("Accept", contentTypeJSON)
	req.Header.Set("User-Agent", userAgent)

	for k, v := range p.headers {
		req.Header.Set(k, v)
	}

	return req, nil
}

type generatePayload struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type content struct {
	Role  string `json:"role"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
	TopP            float64 `json:"topP,omitempty"`
}

func buildPayload(req models.ChatRequest) generatePayload {
	contents := make([]content, 0, len(req.Messages))
	for _, turn := range req.Messages {
		role := roleUser
		if turn.Role == models.RoleAssistant {
			role = roleModel
		}
		contents = append(contents, content{
			Role:  role,
			Parts: []part{{Text: turn.PlainText()}},
		})
	}

	return generatePayload{
		Contents: contents,
		GenerationConfig: generationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxTokens,
			TopP:            req.TopP,
		},
	}
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata,omitempty"`
}

func (r generateResponse) toUnified() (*models.ChatResult, error) {
	if len(r.Candidates) == 0 {
		return nil, fmt.Errorf("response did not include candidates: %w", provider.ErrResponseFormat)
	}

	candidate := r.Candidates[0]
	var text strings.Builder
	for _, p := range candidate.Content.Parts {
		text.WriteString(p.Text)
	}

	result := &models.ChatResult{
		Content:      text.String(),
		FinishReason: strings.ToLower(candidate.FinishReason),
	}
	if r.UsageMetadata != nil {
		result.Usage = &models.Usage{
			PromptTokens:     r.UsageMetadata.PromptTokenCount,
			CompletionTokens: r.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      r.UsageMetadata.TotalTokenCount,
		}
	}
	return result, nil
}
