package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chatrelay/internal/config"
	"chatrelay/internal/models"
	"chatrelay/internal/provider"
)

func newTestProvider(t *testing.T, baseURL string) *Provider {
	t.Helper()
	p, err := New("gemini", config.ProviderConfig{
		DisplayName: "Google Gemini",
		APIStyle:    config.StyleGemini,
		BaseURL:     baseURL,
		Timeout:     5 * time.Second,
	}, http.DefaultClient)
	require.NoError(t, err)
	return p
}

func TestSendTranslatesRolesAndImages(t *testing.T) {
	var got generatePayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/models/gemini-pro:generateContent", r.URL.Path)
		require.Equal(t, "g-key", r.URL.Query().Get("key"))
		require.Empty(t, r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		fmt.Fprint(w, `{"candidates":[{"content":{"parts":[{"text":"Hello "},{"text":"there"}]},"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":5,"candidatesTokenCount":2,"totalTokenCount":7}}`)
	}))
	defer srv.Close()

	p := newTestProvider(t, srv.URL)
	res, err := p.Send(context.Background(), models.ChatRequest{
		Model: "gemini-pro",
		Messages: []models.Turn{
			{Role: models.RoleUser, Content: "hi"},
			{Role: models.RoleAssistant, Content: "hey"},
			{Role: models.RoleUser, ImageURL: "https://img.example/x.png"},
		},
		Temperature: 0.6,
		MaxTokens:   2000,
		TopP:        0.7,
	}, models.ProviderCredential{ProviderID: "gemini", APIKey: "g-key"})
	require.NoError(t, err)

	require.Equal(t, "Hello there", res.Content)
	require.Equal(t, "stop", res.FinishReason)
	require.Equal(t, 7, res.Usage.TotalTokens)

	require.Len(t, got.Contents, 3)
	require.Equal(t, "user", got.Contents[0].Role)
	require.Equal(t, "model", got.Contents[1].Role)
	require.Equal(t, models.ImagePlaceholder, got.Contents[2].Parts[0].Text)
	require.Equal(t, 2000, got.GenerationConfig.MaxOutputTokens)
	require.InDelta(t, 0.7, got.GenerationConfig.TopP, 1e-9)
}

func TestSendErrors(t *testing.T) {
	t.Run("no candidates", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"candidates":[]}`)
		}))
		defer srv.Close()

		_, err := newTestProvider(t, srv.URL).Send(context.Background(), validRequest(), models.ProviderCredential{APIKey: "k"})
		require.ErrorIs(t, err, provider.ErrResponseFormat)
	})

	t.Run("upstream status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "API key not valid", http.StatusBadRequest)
		}))
		defer srv.Close()

		_, err := newTestProvider(t, srv.URL).Send(context.Background(), validRequest(), models.ProviderCredential{APIKey: "k"})
		var upstream *provider.UpstreamError
		require.ErrorAs(t, err, &upstream)
		require.Equal(t, http.StatusBadRequest, upstream.Status)
		require.Equal(t, "API key not valid", upstream.Body)
	})

	t.Run("transport failure hides key", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		closedURL := srv.URL
		srv.Close()

		_, err := newTestProvider(t, closedURL).Send(context.Background(), validRequest(), models.ProviderCredential{APIKey: "SUPERSECRETKEY"})
		require.Error(t, err)
		require.NotContains(t, err.Error(), "SUPERSECRETKEY")
		require.Contains(t, err.Error(), "generateContent")
		require.NotContains(t, provider.Apology("Google Gemini", err), "SUPERSECRETKEY")
	})

	t.Run("missing key", func(t *testing.T) {
		_, err := newTestProvider(t, "http://127.0.0.1:1").Send(context.Background(), validRequest(), models.ProviderCredential{})
		require.ErrorIs(t, err, provider.ErrCredentialMissing)
	})
}

func validRequest() models.ChatRequest {
	return models.ChatRequest{
		Model:       "gemini-pro",
		Messages:    []models.Turn{{Role: models.RoleUser, Content: "hi"}},
		Temperature: 0.5,
		MaxTokens:   100,
	}
}
