package prompt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistry_RendersNarrativePrompt(t *testing.T) {
	r := NewDefaultRegistry()
	pt, err := r.GetPrompt(PromptIDs.RatingNarrative)
	require.NoError(t, err)

	out, err := RenderUserPrompt(pt, NewContext().Set("RiskText", "supply risk").Set("MDAText", "strong growth"))
	require.NoError(t, err)
	assert.Contains(t, out, "supply risk")
	assert.Contains(t, out, "strong growth")
	assert.Contains(t, out, `"rating"`)
}

func TestRenderUserPrompt_MissingRequired(t *testing.T) {
	pt, err := NewDefaultRegistry().GetPrompt(PromptIDs.RatingNarrative)
	require.NoError(t, err)

	_, err = RenderUserPrompt(pt, NewContext().Set("RiskText", "x"))
	assert.Error(t, err)
}

func TestLoadFromDirectory_OverridesBuiltin(t *testing.T) {
	base := t.TempDir()
	dir := filepath.Join(base, "prompts", "rating")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "narrative.json"),
		[]byte(`{"system_prompt": "custom", "user_prompt_template": "R={{.RiskText}} M={{.MDAText}}"}`), 0644))

	r := NewDefaultRegistry()
	n, err := LoadFromDirectory(r, base)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	pt, err := r.GetPrompt("rating.narrative")
	require.NoError(t, err)
	assert.Equal(t, "custom", pt.SystemPrompt)
	assert.Equal(t, "rating", pt.Category)

	out, err := RenderUserPrompt(pt, NewContext().Set("RiskText", "a").Set("MDAText", "b"))
	require.NoError(t, err)
	assert.Equal(t, "R=a M=b", out)
}

func TestLoadFromDirectory_Missing(t *testing.T) {
	n, err := LoadFromDirectory(NewRegistry(), t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = NewRegistry().GetPrompt("nope")
	assert.ErrorIs(t, err, ErrPromptNotFound)
}
