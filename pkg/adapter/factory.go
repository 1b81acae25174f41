package adapter

import (
	"fmt"
	"net/http"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/zen-systems/mediagate/pkg/catalog"
	"github.com/zen-systems/mediagate/pkg/config"
	"github.com/zen-systems/mediagate/pkg/metrics"
	"github.com/zen-systems/mediagate/pkg/poll"
	"github.com/zen-systems/mediagate/pkg/provider"
)

// wired lists, per capability, the providers that have an adapter.
var wired = map[provider.Capability][]provider.Provider{
	provider.ImageGeneration: {
		provider.OpenAI, provider.Google, provider.StabilityAI, provider.Luma,
		provider.HuggingFace, provider.Local, provider.XAI, provider.Replicate,
	},
	provider.VideoGeneration: {provider.Google, provider.Luma, provider.Replicate},
}

// WiredProviders returns the providers with an adapter for capability, in
// provider.All order.
func WiredProviders(capability provider.Capability) []provider.Provider {
	return append([]provider.Provider(nil), wired[capability]...)
}

func isWired(p provider.Provider, capability provider.Capability) bool {
	for _, w := range wired[capability] {
		if w == p {
			return true
		}
	}
	return false
}

// Factory constructs adapters. The zero value works with empty settings and
// the built-in catalog.
type Factory struct {
	Settings   *config.Settings
	Catalog    *catalog.Catalog
	Logger     *zap.Logger
	Metrics    *metrics.Collector
	HTTPClient *http.Client

	// Lenient turns transport failures into empty results for every adapter
	// the factory builds.
	Lenient bool

	// Poller overrides the polling schedule, mostly for tests.
	Poller func() *poll.Poller

	// Pipeline overrides the local diffusion pipeline.
	Pipeline func() Pipeline

	mu       sync.Mutex
	limiters map[provider.Provider]*rate.Limiter
}

// NewFactory creates a factory over settings and a model catalog.
func NewFactory(settings *config.Settings, cat *catalog.Catalog, logger *zap.Logger) *Factory {
	return &Factory{Settings: settings, Catalog: cat, Logger: logger}
}

// Option adjusts a single New call.
type Option func(*buildOptions)

type buildOptions struct {
	apiKey  string
	baseURL string
	lenient *bool
}

// WithAPIKey overrides the configured credential.
func WithAPIKey(key string) Option {
	return func(o *buildOptions) { o.apiKey = key }
}

// WithBaseURL points the adapter at a different endpoint.
func WithBaseURL(url string) Option {
	return func(o *buildOptions) { o.baseURL = url }
}

// WithLenient overrides Factory.Lenient for one adapter.
func WithLenient(lenient bool) Option {
	return func(o *buildOptions) { o.lenient = &lenient }
}

// New returns a fresh adapter for providerID and capability. An empty model
// selects the catalog default. Nothing touches the network here.
func (f *Factory) New(providerID string, capability provider.Capability, model string, opts ...Option) (Adapter, error) {
	var bo buildOptions
	for _, opt := range opts {
		opt(&bo)
	}

	if _, ok := wired[capability]; !ok {
		return nil, &ConfigurationError{Provider: provider.Provider(providerID), Model: model, Capability: capability,
			Reason: fmt.Sprintf("unknown capability %q", capability)}
	}

	p, err := provider.Parse(providerID)
	if err != nil {
		return nil, &UnsupportedProviderError{Value: providerID, Capability: capability, Supported: WiredProviders(capability)}
	}
	if !isWired(p, capability) {
		return nil, &UnsupportedProviderError{Value: providerID, Capability: capability, Supported: WiredProviders(capability)}
	}

	settings := f.settings()
	apiKey := bo.apiKey
	if apiKey == "" {
		if err := settings.ValidateFor(p); err != nil {
			return nil, &ConfigurationError{Provider: p, Model: model, Capability: capability, Reason: "missing credential", Err: err}
		}
		apiKey = settings.Credential(p)
	}

	cat := f.catalog()
	if model == "" {
		def, ok := cat.DefaultModel(p, capability)
		if !ok {
			return nil, &ConfigurationError{Provider: p, Capability: capability,
				Reason: fmt.Sprintf("no default model for %s", capability)}
		}
		model = def
	}
	model = cat.Resolve(model)
	if !cat.Supports(p, model, capability) {
		return nil, &ConfigurationError{Provider: p, Model: model, Capability: capability,
			Reason: fmt.Sprintf("model does not support %s", capability)}
	}

	baseURL := bo.baseURL
	if baseURL == "" {
		fallback := ""
		if p == provider.Local {
			fallback = settings.LocalURL
			if fallback == "" {
				fallback = config.DefaultLocalURL
			}
		}
		baseURL = settings.BaseURL(p, fallback)
	}

	logger := f.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	b := base{
		provider:   p,
		model:      model,
		capability: capability,
		apiKey:     apiKey,
		baseURL:    baseURL,
		client:     f.client(p, settings),
		logger:     logger.With(zap.String("provider", string(p)), zap.String("model", model)),
		metrics:    f.Metrics,
		poller:     f.Poller,
	}

	var a Adapter
	switch p {
	case provider.OpenAI:
		a = newOpenAIAdapter(b)
	case provider.XAI:
		a = newXAIAdapter(b)
	case provider.Google:
		ga, err := newGoogleAdapter(b)
		if err != nil {
			return nil, err
		}
		a = ga
	case provider.StabilityAI:
		var credits float64
		if m, ok := cat.Lookup(p, model); ok {
			credits = m.Credits
		}
		a = newStabilityAdapter(b, credits)
	case provider.Luma:
		a = newLumaAdapter(b)
	case provider.HuggingFace:
		a = newHuggingFaceAdapter(b)
	case provider.Local:
		a = newLocalAdapter(b, f.Pipeline)
	case provider.Replicate:
		a = newReplicateAdapter(b)
	default:
		return nil, &UnsupportedProviderError{Value: providerID, Capability: capability, Supported: WiredProviders(capability)}
	}

	lenient := f.Lenient
	if bo.lenient != nil {
		lenient = *bo.lenient
	}
	if lenient {
		a = Lenient(a, b.logger)
	}
	return Instrument(a, f.Metrics, b.logger), nil
}

func (f *Factory) settings() *config.Settings {
	if f.Settings == nil {
		return &config.Settings{}
	}
	return f.Settings
}

func (f *Factory) catalog() *catalog.Catalog {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Catalog == nil {
		f.Catalog = catalog.New()
	}
	return f.Catalog
}

// client returns the HTTP client for p. Adapters built by one factory share a
// rate limiter per provider.
func (f *Factory) client(p provider.Provider, settings *config.Settings) *http.Client {
	client := f.HTTPClient
	if client == nil {
		timeout := settings.RequestTimeout
		if timeout <= 0 {
			timeout = config.DefaultRequestTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	rl, ok := settings.RateLimits[p]
	if !ok {
		return client
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.limiters == nil {
		f.limiters = make(map[provider.Provider]*rate.Limiter)
	}
	limiter, ok := f.limiters[p]
	if !ok {
		limiter = newRateLimiter(rl)
		f.limiters[p] = limiter
	}
	return withRateLimit(client, limiter)
}
