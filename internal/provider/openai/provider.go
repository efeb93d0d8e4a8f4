package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"chatrelay/internal/config"
	"chatrelay/internal/models"
	"chatrelay/internal/provider"
)

const (
	contentTypeJSON = "application/json"
	contentTypeSSE  = "text/event-stream"
	userAgent       = "chatrelay/0.1"

	maxStreamLine = 1024 * 1024
	doneMarker    = "[DONE]"
)

// Provider implements provider.Adapter for OpenAI-compatible chat completion APIs.
// The same type serves OpenAI, Moonshot, Qwen, DeepSeek and Doubao, which differ
// only in base URL and display name.
type Provider struct {
	id         string
	name       string
	baseURL    string
	headers    map[string]string
	multimodal bool
	timeout    time.Duration
	client     *http.Client
	models     []models.Model
}

// StreamingProvider is a Provider that also relays tokens as they are generated.
type StreamingProvider struct {
	*Provider
}

// New creates a new OpenAI-compatible provider.
func New(id string, cfg config.ProviderConfig, client *http.Client) (*Provider, error) {
	if client == nil {
		return nil, errors.New("http client must not be nil")
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		return nil, errors.New("base url must not be empty")
	}
	if cfg.APIStyle != config.StyleOpenAI {
		return nil, fmt.Errorf("openai provider %q configured with unsupported api_style %q", id, cfg.APIStyle)
	}

	name := cfg.DisplayName
	if name == "" {
		name = id
	}

	modelsList := make([]models.Model, 0, len(cfg.Models))
	for _, model := range cfg.Models {
		modelsList = append(modelsList, models.Model{
			ID:       model.ID,
			Name:     model.Name,
			Provider: id,
		})
	}

	return &Provider{
		id:         id,
		name:       name,
		baseURL:    baseURL,
		headers:    cfg.Headers,
		multimodal: cfg.Multimodal,
		timeout:    cfg.Timeout,
		client:     client,
		models:     modelsList,
	}, nil
}

// Streaming enables token streaming on p.
func Streaming(p *Provider) *StreamingProvider {
	return &StreamingProvider{Provider: p}
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
	if err := checkRequest(req, cred); err != nil {
		return nil, err
	}

	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	httpReq, err := p.newRequest(ctx, cred, buildChatPayload(req, p.multimodal, false))
	if err != nil {
		return nil, err
	}

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, provider.WrapTransportError(ctx, p.id, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return nil, parseAPIError(httpResp)
	}

	var providerResp chatResponse
	if err := decodeJSON(httpResp.Body, &providerResp); err != nil {
		if ctx.Err() != nil {
			return nil, provider.WrapTransportError(ctx, p.id, ctx.Err())
		}
		return nil, err
	}

	return providerResp.toUnified()
}

// Stream performs a streaming completion, invoking onToken for every content delta.
// The returned result carries the concatenated text.
func (p *StreamingProvider) Stream(ctx context.Context, req models.ChatRequest, cred models.ProviderCredential, onToken func(string) error) (*models.ChatResult, error) {
	if err := checkRequest(req, cred); err != nil {
		return nil, err
	}

	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	httpReq, err := p.newRequest(ctx, cred, buildChatPayload(req, p.multimodal, true))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", contentTypeSSE)

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, provider.WrapTransportError(ctx, p.id, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return nil, parseAPIError(httpResp)
	}

	result := &models.ChatResult{}
	var text strings.Builder
	chunks := 0

	scanner := bufio.NewScanner(httpResp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxStreamLine)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == doneMarker {
			break
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return nil, fmt.Errorf("decode stream chunk: %w", provider.ErrResponseFormat)
		}
		chunks++
		if result.ID == "" {
			result.ID = chunk.ID
		}
		if chunk.Usage != nil {
			result.Usage = chunk.Usage.toUnified()
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]
		if choice.FinishReason != nil {
			result.FinishReason = *choice.FinishReason
		}
		if choice.Delta.Content == "" {
			continue
		}
		text.WriteString(choice.Delta.Content)
		if err := onToken(choice.Delta.Content); err != nil {
			return nil, fmt.Errorf("relay token: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, provider.WrapTransportError(ctx, p.id, err)
	}
	if chunks == 0 {
		return nil, fmt.Errorf("stream carried no chunks: %w", provider.ErrResponseFormat)
	}

	result.Content = text.String()
	return result, nil
}

func (p *Provider) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.timeout)
}

func checkRequest(req models.ChatRequest, cred models.ProviderCredential) error {
	if strings.TrimSpace(cred.APIKey) == "" {
		return provider.ErrCredentialMissing
	}
	return req.Validate()
}

func (p *Provider) newRequest(ctx context.Context, cred models.ProviderCredential, payload any) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	baseURL := p.baseURL
	if cred.BaseURL != "" {
		baseURL = strings.TrimRight(cred.BaseURL, "/")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("construct request: %w", err)
	}

	req.Header.Set("Content-Type", contentTypeJSON)
	req.Header.Set("Accept", contentTypeJSON)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Authorization", "Bearer "+cred.APIKey)

	for k, v := range p.headers {
		req.Header.Set(k, v)
	}

	return req, nil
}

type chatPayload struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Stream      bool          `json:"stream,omitempty"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	TopP        float64       `json:"top_p,omitempty"`
}

// chatMessage carries either a plain string or a list of content parts.
type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

func buildChatPayload(req models.ChatRequest, multimodal, stream bool) chatPayload {
	messages := make([]chatMessage, 0, len(req.Messages))
	for _, turn := range req.Messages {
		msg := chatMessage{Role: string(turn.Role)}
		switch {
		case turn.HasImage() && multimodal && turn.Role == models.RoleUser:
			msg.Content = []contentPart{
				{Type: "text", Text: turn.Content},
				{Type: "image_url", ImageURL: &imageURL{URL: turn.ImageURL}},
			}
		default:
			msg.Content = turn.PlainText()
		}
		messages = append(messages, msg)
	}

	return chatPayload{
		Model:       req.Model,
		Messages:    messages,
		Stream:      stream,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		TopP:        req.TopP,
	}
}

type chatResponse struct {
	ID      string       `json:"id"`
	Choices []chatChoice `json:"choices"`
	Usage   *usageBlock  `json:"usage,omitempty"`
}

type chatChoice struct {
	Index   int `json:"index"`
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	FinishReason string `json:"finish_reason"`
}

type streamChunk struct {
	ID      string `json:"id"`
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *usageBlock `json:"usage,omitempty"`
}

type usageBlock struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func (u *usageBlock) toUnified() *models.Usage {
	if u == nil {
		return nil
	}
	return &models.Usage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
}

func (r chatResponse) toUnified() (*models.ChatResult, error) {
	if len(r.Choices) == 0 {
		return nil, fmt.Errorf("response did not include choices: %w", provider.ErrResponseFormat)
	}

	choice := r.Choices[0]
	return &models.ChatResult{
		ID:           r.ID,
		Content:      choice.Message.Content,
		FinishReason: choice.FinishReason,
		Usage:        r.Usage.toUnified(),
	}, nil
}

func parseAPIError(resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, provider.MaxErrorBody))
	if err != nil {
		return fmt.Errorf("upstream error status %d and failed to read body: %w", resp.StatusCode, err)
	}

	return &provider.UpstreamError{
		Status: resp.StatusCode,
		Body:   strings.TrimSpace(string(body)),
	}
}

func decodeJSON(reader io.Reader, target any) error {
	decoder := json.NewDecoder(reader)
	if err := decoder.Decode(target); err != nil {
		return fmt.Errorf("decode provider response: %v: %w", err, provider.ErrResponseFormat)
	}
	return nil
}
