package adapter

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zen-systems/mediagate/pkg/catalog"
	"github.com/zen-systems/mediagate/pkg/config"
	"github.com/zen-systems/mediagate/pkg/metrics"
	"github.com/zen-systems/mediagate/pkg/provider"
)

func allCredentials() *config.Settings {
	s := &config.Settings{Credentials: make(map[provider.Provider]string)}
	for _, p := range provider.All() {
		s.Credentials[p] = "key-" + string(p)
	}
	return s
}

func TestFactoryBuildsEveryCatalogPair(t *testing.T) {
	cat := catalog.New()
	f := &Factory{Settings: allCredentials(), Catalog: cat, Logger: zap.NewNop()}

	for _, m := range cat.List(catalog.Filter{}) {
		for _, c := range m.Capabilities {
			a, err := f.New(string(m.Provider), c, m.ID)
			require.NoError(t, err, "%s/%s %s", m.Provider, m.ID, c)
			assert.Equal(t, m.Provider, a.Provider())
			assert.Equal(t, m.ID, a.Model())
			assert.Equal(t, c, a.Capability())
			require.NoError(t, a.Close())
		}
	}
}

func TestFactoryDefaultModel(t *testing.T) {
	f := &Factory{Settings: allCredentials()}

	tests := []struct {
		provider   string
		capability provider.Capability
		want       string
	}{
		{"openai", provider.ImageGeneration, "dall-e-3"},
		{"google", provider.ImageGeneration, "imagen-3.0-generate-002"},
		{"google", provider.VideoGeneration, "veo-2.0-generate-001"},
		{"luma", provider.VideoGeneration, "ray-2"},
		{"stability", provider.ImageGeneration, "stable-diffusion-xl-1024-v1-0"},
		{"grok", provider.ImageGeneration, "grok-2-image"},
		{"replicate", provider.VideoGeneration, "minimax/video-01"},
	}
	for _, tt := range tests {
		t.Run(tt.provider+"/"+string(tt.capability), func(t *testing.T) {
			a, err := f.New(tt.provider, tt.capability, "")
			require.NoError(t, err)
			assert.Equal(t, tt.want, a.Model())
		})
	}
}

func TestFactoryUnknownProvider(t *testing.T) {
	f := &Factory{Settings: allCredentials()}

	_, err := f.New("midjourney", provider.ImageGeneration, "")
	var unsupported *UnsupportedProviderError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "midjourney", unsupported.Value)
	assert.Equal(t, provider.All(), unsupported.Supported)
	assert.Contains(t, err.Error(), "openai")
}

func TestFactoryUnwiredCapability(t *testing.T) {
	f := &Factory{Settings: allCredentials()}

	for _, p := range []string{"openai", "local", "xai", "stabilityai", "huggingface"} {
		_, err := f.New(p, provider.VideoGeneration, "")
		var unsupported *UnsupportedProviderError
		require.ErrorAs(t, err, &unsupported, p)
		assert.Equal(t, []provider.Provider{provider.Google, provider.Luma, provider.Replicate}, unsupported.Supported)
	}
}

func TestFactoryMissingCredential(t *testing.T) {
	f := &Factory{Settings: &config.Settings{}}

	_, err := f.New("openai", provider.ImageGeneration, "")
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, provider.OpenAI, cfgErr.Provider)
	assert.ErrorIs(t, err, config.ErrMissingCredential)

	a, err := f.New("local", provider.ImageGeneration, "")
	require.NoError(t, err)
	assert.Equal(t, provider.Local, a.Provider())

	a, err = f.New("openai", provider.ImageGeneration, "", WithAPIKey("explicit"))
	require.NoError(t, err)
	assert.Equal(t, provider.OpenAI, a.Provider())
}

func TestFactoryUnsupportedModel(t *testing.T) {
	f := &Factory{Settings: allCredentials()}

	_, err := f.New("openai", provider.ImageGeneration, "veo-2.0-generate-001")
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "veo-2.0-generate-001", cfgErr.Model)

	_, err = f.New("luma", provider.VideoGeneration, "photon-1")
	require.ErrorAs(t, err, &cfgErr)

	// Open hubs take any owner/name identifier.
	a, err := f.New("huggingface", provider.ImageGeneration, "someone/custom-lora")
	require.NoError(t, err)
	assert.Equal(t, "someone/custom-lora", a.Model())
}

func TestFactoryFreshInstances(t *testing.T) {
	f := &Factory{Settings: allCredentials()}
	a, err := f.New("openai", provider.ImageGeneration, "")
	require.NoError(t, err)
	b, err := f.New("openai", provider.ImageGeneration, "")
	require.NoError(t, err)
	assert.NotSame(t, a, b)
}

func TestFactoryLenient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer srv.Close()

	f := &Factory{Settings: allCredentials(), Lenient: true, Poller: instantPoller}

	a, err := f.New("huggingface", provider.ImageGeneration, "", WithBaseURL(srv.URL))
	require.NoError(t, err)
	arts, err := a.Generate(context.Background(), "a red circle", Options{})
	require.NoError(t, err)
	assert.NotNil(t, arts)
	assert.Empty(t, arts)

	strict, err := f.New("huggingface", provider.ImageGeneration, "", WithBaseURL(srv.URL), WithLenient(false))
	require.NoError(t, err)
	_, err = strict.Generate(context.Background(), "a red circle", Options{})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
}

func TestLenientKeepsRejections(t *testing.T) {
	inner := NewMockAdapter()
	inner.Err = &ContentRejectedError{Provider: provider.OpenAI, Reason: "no"}

	_, err := Lenient(inner, nil).Generate(context.Background(), "p", Options{})
	var rejected *ContentRejectedError
	assert.True(t, errors.As(err, &rejected))
}

func TestFactoryRateLimiterSharedPerProvider(t *testing.T) {
	s := allCredentials()
	s.RateLimits = map[provider.Provider]config.RateLimit{provider.Luma: {RequestsPerSecond: 5, Burst: 1}}
	f := &Factory{Settings: s}

	c1 := f.client(provider.Luma, s)
	c2 := f.client(provider.Luma, s)
	t1, ok := c1.Transport.(*rateLimitedTransport)
	require.True(t, ok)
	t2, ok := c2.Transport.(*rateLimitedTransport)
	require.True(t, ok)
	assert.Same(t, t1.limiter, t2.limiter)

	plain := f.client(provider.OpenAI, s)
	_, limited := plain.Transport.(*rateLimitedTransport)
	assert.False(t, limited)
}

func TestInstrumentRecordsMetrics(t *testing.T) {
	m := metrics.NewCollector("mediagate", nil)
	inner := NewMockAdapter()

	a := Instrument(inner, m, nil)
	arts, err := a.Generate(context.Background(), "p", Options{N: 2})
	require.NoError(t, err)
	require.Len(t, arts, 2)

	inner.Err = &ContentRejectedError{Provider: provider.Local, Reason: "no"}
	_, err = a.Generate(context.Background(), "p", Options{})
	require.Error(t, err)

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	outcomes := map[string]float64{}
	var artifacts float64
	for _, fam := range families {
		switch fam.GetName() {
		case "mediagate_generate_requests_total":
			for _, metric := range fam.GetMetric() {
				for _, l := range metric.GetLabel() {
					if l.GetName() == "outcome" {
						outcomes[l.GetValue()] += metric.GetCounter().GetValue()
					}
				}
			}
		case "mediagate_artifacts_total":
			for _, metric := range fam.GetMetric() {
				artifacts += metric.GetCounter().GetValue()
			}
		}
	}
	assert.Equal(t, 1.0, outcomes["success"])
	assert.Equal(t, 1.0, outcomes["rejected"])
	assert.Equal(t, 2.0, artifacts)
}
