package config

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"filing_rating/pkg/core/agent"
	"filing_rating/pkg/core/llm"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopProvider struct{}

func (nopProvider) GenerateResponse(ctx context.Context, prompt, systemPrompt string, options map[string]interface{}) (string, error) {
	return "", nil
}

func (nopProvider) AdaptInstructions(raw string) string { return raw }

func newHandler() *Handler {
	mgr := agent.NewManager(agent.Config{ActiveProvider: "gemini"}, map[string]llm.Provider{
		"gemini":   nopProvider{},
		"deepseek": nopProvider{},
	}, zerolog.Nop())
	return NewHandler(mgr)
}

func TestHandleConfig(t *testing.T) {
	rec := httptest.NewRecorder()
	newHandler().HandleConfig(rec, httptest.NewRequest(http.MethodGet, "/api/config", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "gemini", resp.ActiveProvider)
	assert.Equal(t, []string{"deepseek", "gemini"}, resp.Available)
}

func TestHandleSwitch(t *testing.T) {
	h := newHandler()

	rec := httptest.NewRecorder()
	h.HandleSwitch(rec, httptest.NewRequest(http.MethodPost, "/api/config/switch", strings.NewReader(`{"provider":"deepseek"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "deepseek", h.AgentMgr.GetActiveProvider())

	rec = httptest.NewRecorder()
	h.HandleSwitch(rec, httptest.NewRequest(http.MethodPost, "/api/config/switch", strings.NewReader(`{"provider":"openai"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.HandleSwitch(rec, httptest.NewRequest(http.MethodPost, "/api/config/switch", strings.NewReader(`not json`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
