package adapter

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zen-systems/mediagate/pkg/artifact"
	"github.com/zen-systems/mediagate/pkg/payload"
)

// unloadTimeout bounds the release call made by Close.
const unloadTimeout = 30 * time.Second

// LocalRequest is one text-to-image call against a loaded pipeline.
type LocalRequest struct {
	Prompt         string
	NegativePrompt string
	Steps          int
	GuidanceScale  float64
	Width          int
	Height         int
	Seed           *int64
	BatchSize      int
	Extra          map[string]any
}

// Pipeline is a local diffusion pipeline. Load acquires the model weights,
// Close releases them and must be safe after a failed Load.
type Pipeline interface {
	Load(ctx context.Context, model string) error
	Generate(ctx context.Context, req LocalRequest) ([]payload.Item, error)
	Device() string
	Close() error
}

// LocalAdapter implements the Adapter interface over a local pipeline. The
// pipeline is loaded on first use and generations are serialized.
type LocalAdapter struct {
	base
	newPipeline func() Pipeline

	mu   sync.Mutex
	pipe Pipeline
}

// newLocalAdapter creates a local adapter. newPipeline defaults to the
// AUTOMATIC1111-compatible HTTP pipeline at the adapter's base URL.
func newLocalAdapter(b base, newPipeline func() Pipeline) *LocalAdapter {
	a := &LocalAdapter{base: b, newPipeline: newPipeline}
	if a.newPipeline == nil {
		a.newPipeline = func() Pipeline { return &sdapiPipeline{b: b} }
	}
	return a
}

// Generate loads the pipeline if needed and runs one batch.
func (a *LocalAdapter) Generate(ctx context.Context, prompt string, opts Options) ([]*artifact.Artifact, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.acquire(ctx); err != nil {
		return nil, err
	}

	req := a.request(prompt, opts)
	items, err := a.pipe.Generate(ctx, req)
	if err != nil {
		return nil, a.translate(err)
	}

	device := a.pipe.Device()
	return a.artifacts(ctx, a.decoder(nil), items, func(_ int, m map[string]any) {
		m["device"] = device
		m["steps"] = req.Steps
		m["guidance_scale"] = req.GuidanceScale
		m["width"] = req.Width
		m["height"] = req.Height
		if req.Seed != nil {
			m["seed"] = *req.Seed
		}
	})
}

// acquire loads the pipeline. Callers hold a.mu.
func (a *LocalAdapter) acquire(ctx context.Context) error {
	if a.pipe != nil {
		return nil
	}
	start := time.Now()
	p := a.newPipeline()
	if err := p.Load(ctx, a.model); err != nil {
		if cerr := p.Close(); cerr != nil {
			a.log().Warn("failed to release partially loaded pipeline", zap.Error(cerr))
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &ConfigurationError{
			Provider:   a.provider,
			Model:      a.model,
			Capability: a.capability,
			Reason:     "failed to load local pipeline",
			Err:        err,
		}
	}
	a.pipe = p
	a.log().Info("local pipeline loaded",
		zap.String("model", a.model),
		zap.String("device", p.Device()),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

// request fills in defaults for the distilled turbo and lightning checkpoints,
// which want very few steps and no guidance.
func (a *LocalAdapter) request(prompt string, opts Options) LocalRequest {
	lower := strings.ToLower(a.model)
	steps, guidance, size := 30, 7.5, 1024
	switch {
	case strings.Contains(lower, "turbo"):
		steps, guidance, size = 1, 0, 512
	case strings.Contains(lower, "lightning"):
		steps, guidance = 4, 0
	case strings.Contains(lower, "schnell"):
		steps, guidance = 4, 0
	case strings.Contains(lower, "stable-diffusion-2"):
		size = 768
	}
	if opts.Steps > 0 {
		steps = opts.Steps
	}
	if opts.GuidanceScale > 0 {
		guidance = opts.GuidanceScale
	}
	w, h := opts.Dimensions(size)
	return LocalRequest{
		Prompt:         prompt,
		NegativePrompt: opts.NegativePrompt,
		Steps:          steps,
		GuidanceScale:  guidance,
		Width:          w,
		Height:         h,
		Seed:           opts.Seed,
		BatchSize:      opts.Count(),
		Extra:          opts.Extra,
	}
}

// Close releases the pipeline. It is safe to call more than once.
func (a *LocalAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pipe == nil {
		return nil
	}
	err := a.pipe.Close()
	a.pipe = nil
	return err
}

// sdapiPipeline drives an AUTOMATIC1111-compatible server.
type sdapiPipeline struct {
	b      base
	device string
	loaded bool
}

type sdapiTxt2Img struct {
	Prompt           string         `json:"prompt"`
	NegativePrompt   string         `json:"negative_prompt,omitempty"`
	Steps            int            `json:"steps"`
	CfgScale         float64        `json:"cfg_scale"`
	Width            int            `json:"width"`
	Height           int            `json:"height"`
	Seed             int64          `json:"seed"`
	BatchSize        int            `json:"batch_size"`
	OverrideSettings map[string]any `json:"override_settings,omitempty"`
}

type sdapiImages struct {
	Images []string `json:"images"`
}

type sdapiMemory struct {
	CUDA map[string]any `json:"cuda"`
}

func (p *sdapiPipeline) Load(ctx context.Context, model string) error {
	// The server may hold a partial checkpoint even when the switch fails,
	// so Close unloads after any attempt.
	p.loaded = true
	body := map[string]any{"sd_model_checkpoint": model}
	if _, err := p.b.doJSON(ctx, http.MethodPost, p.b.baseURL+"/sdapi/v1/options", nil, body, nil); err != nil {
		return err
	}

	p.device = "cpu"
	var mem sdapiMemory
	if _, err := p.b.doJSON(ctx, http.MethodGet, p.b.baseURL+"/sdapi/v1/memory", nil, nil, &mem); err == nil {
		if _, failed := mem.CUDA["error"]; len(mem.CUDA) > 0 && !failed {
			p.device = "cuda"
		}
	}
	return nil
}

func (p *sdapiPipeline) Generate(ctx context.Context, req LocalRequest) ([]payload.Item, error) {
	seed := int64(-1)
	if req.Seed != nil {
		seed = *req.Seed
	}
	body := sdapiTxt2Img{
		Prompt:           req.Prompt,
		NegativePrompt:   req.NegativePrompt,
		Steps:            req.Steps,
		CfgScale:         req.GuidanceScale,
		Width:            req.Width,
		Height:           req.Height,
		Seed:             seed,
		BatchSize:        req.BatchSize,
		OverrideSettings: req.Extra,
	}

	var out sdapiImages
	if _, err := p.b.doJSON(ctx, http.MethodPost, p.b.baseURL+"/sdapi/v1/txt2img", nil, body, &out); err != nil {
		return nil, err
	}
	if len(out.Images) == 0 {
		return nil, p.b.malformed("txt2img returned no images", out)
	}
	items := make([]payload.Item, len(out.Images))
	for i, img := range out.Images {
		items[i] = payload.Item{B64: img}
	}
	return items, nil
}

func (p *sdapiPipeline) Device() string { return p.device }

func (p *sdapiPipeline) Close() error {
	if !p.loaded {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), unloadTimeout)
	defer cancel()
	_, err := p.b.doJSON(ctx, http.MethodPost, p.b.baseURL+"/sdapi/v1/unload-checkpoint", nil, nil, nil)
	p.loaded = false
	return err
}
