package catalog

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zen-systems/mediagate/pkg/provider"
)

func TestEveryProviderHasAnImageDefault(t *testing.T) {
	c := New()
	for _, p := range provider.All() {
		model, ok := c.DefaultModel(p, provider.ImageGeneration)
		require.True(t, ok, "no image default for %s", p)
		assert.True(t, c.Supports(p, model, provider.ImageGeneration), "%s/%s", p, model)
	}
}

func TestSupports(t *testing.T) {
	c := New()

	assert.True(t, c.Supports(provider.OpenAI, "dall-e-3", provider.ImageGeneration))
	assert.False(t, c.Supports(provider.OpenAI, "dall-e-3", provider.VideoGeneration))
	assert.False(t, c.Supports(provider.OpenAI, "imagen-3.0-generate-002", provider.ImageGeneration))
	assert.True(t, c.Supports(provider.Google, "veo-2.0-generate-001", provider.VideoGeneration))
	assert.True(t, c.Supports(provider.Luma, "ray-2", provider.VideoGeneration))
}

func TestOpenHubsAcceptOwnerName(t *testing.T) {
	c := New()

	assert.True(t, c.Supports(provider.Replicate, "someone/some-model", provider.ImageGeneration))
	assert.True(t, c.Supports(provider.Replicate, "someone/some-model", provider.VideoGeneration))
	assert.True(t, c.Supports(provider.HuggingFace, "org/model", provider.ImageGeneration))
	assert.False(t, c.Supports(provider.HuggingFace, "org/model", provider.VideoGeneration))
	assert.False(t, c.Supports(provider.HuggingFace, "not-a-hub-id", provider.ImageGeneration))
	assert.False(t, c.Supports(provider.Replicate, "a/b/c", provider.ImageGeneration))
	assert.False(t, c.Supports(provider.OpenAI, "someone/some-model", provider.ImageGeneration))
}

func TestListFilterAndOrder(t *testing.T) {
	c := New()

	videos := c.List(Filter{Capability: provider.VideoGeneration})
	require.NotEmpty(t, videos)
	for _, m := range videos {
		assert.True(t, m.Has(provider.VideoGeneration))
	}

	stability := c.List(Filter{Provider: provider.StabilityAI})
	for i := 1; i < len(stability); i++ {
		assert.Less(t, stability[i-1].ID, stability[i].ID)
	}
	m, ok := c.Lookup(provider.StabilityAI, "ultra")
	require.True(t, ok)
	assert.Equal(t, 8.0, m.Credits)
}

func TestProvidersForVideo(t *testing.T) {
	got := New().Providers(provider.VideoGeneration)
	assert.Equal(t, []provider.Provider{provider.Google, provider.Luma, provider.Replicate}, got)
}

func TestLoadOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "models.yaml")
	data := []byte(`models:
  - provider: openai
    id: gpt-image-2
    capabilities: [image_generation]
    default: true
aliases:
  fast: black-forest-labs/FLUX.1-schnell
`)
	require.NoError(t, os.WriteFile(path, data, 0600))

	c, err := Load(path)
	require.NoError(t, err)

	model, ok := c.DefaultModel(provider.OpenAI, provider.ImageGeneration)
	require.True(t, ok)
	assert.Equal(t, "gpt-image-2", model)

	m, ok := c.Lookup(provider.OpenAI, "dall-e-3")
	require.True(t, ok)
	assert.False(t, m.Default)

	assert.Equal(t, "black-forest-labs/FLUX.1-schnell", c.Resolve("fast"))
	assert.True(t, c.Supports(provider.HuggingFace, "fast", provider.ImageGeneration))
	assert.Equal(t, "unknown", c.Resolve("unknown"))
}

func TestLoadOverlayRejectsUnknownProvider(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.yaml")
	data := []byte("models:\n  - provider: midjourney\n    id: v6\n    capabilities: [image_generation]\n")
	require.NoError(t, os.WriteFile(path, data, 0600))

	_, err := Load(path)
	assert.ErrorIs(t, err, provider.ErrUnknown)
}

func TestLoadWithFallbackPrefersUserFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	if runtime.GOOS == "windows" {
		t.Setenv("USERPROFILE", home)
	}

	userDir := filepath.Join(home, ".mediagate")
	require.NoError(t, os.MkdirAll(userDir, 0700))
	require.NoError(t, os.WriteFile(filepath.Join(userDir, "models.yaml"), []byte("aliases:\n  hero: dall-e-3\n"), 0600))

	c, err := LoadWithFallback(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "dall-e-3", c.Resolve("hero"))
}

func TestLoadWithFallbackBuiltins(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	c, err := LoadWithFallback("")
	require.NoError(t, err)
	assert.Empty(t, c.Aliases())
	assert.True(t, c.Supports(provider.XAI, "grok-2-image", provider.ImageGeneration))
}
