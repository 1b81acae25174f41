package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/zen-systems/mediagate/pkg/artifact"
	"github.com/zen-systems/mediagate/pkg/payload"
)

const stabilityBaseURL = "https://api.stability.ai"

// StabilityAdapter implements the Adapter interface for Stability AI. The
// Stable Image models (ultra, core, sd3.5-*) use the v2beta multipart API;
// SDXL and SD 1.6 use the v1 JSON API.
type StabilityAdapter struct {
	base
	credits float64
}

type stabilityV1Request struct {
	TextPrompts []stabilityTextPrompt `json:"text_prompts"`
	Height      int                   `json:"height"`
	Width       int                   `json:"width"`
	Samples     int                   `json:"samples,omitempty"`
	Steps       int                   `json:"steps,omitempty"`
	CfgScale    float64               `json:"cfg_scale,omitempty"`
	Seed        *int64                `json:"seed,omitempty"`
	StylePreset string                `json:"style_preset,omitempty"`
}

type stabilityTextPrompt struct {
	Text   string  `json:"text"`
	Weight float64 `json:"weight,omitempty"`
}

type stabilityV1Response struct {
	Artifacts []struct {
		Base64       string `json:"base64"`
		Seed         int64  `json:"seed"`
		FinishReason string `json:"finishReason"`
	} `json:"artifacts"`
}

type stabilityV2Response struct {
	Image        string `json:"image"`
	Seed         int64  `json:"seed"`
	FinishReason string `json:"finish_reason"`
}

// newStabilityAdapter creates a new Stability AI adapter. credits is the
// per-image price from the catalog, zero when unknown.
func newStabilityAdapter(b base, credits float64) *StabilityAdapter {
	if b.baseURL == "" {
		b.baseURL = stabilityBaseURL
	}
	return &StabilityAdapter{base: b, credits: credits}
}

func (a *StabilityAdapter) isV2() bool {
	switch a.model {
	case "ultra", "core":
		return true
	}
	return strings.HasPrefix(a.model, "sd3")
}

// isRaw reports whether the endpoint is asked for image bytes instead of
// a JSON envelope.
func (a *StabilityAdapter) isRaw() bool {
	return a.model == "ultra" || a.model == "core"
}

// Generate sends a prompt to Stability AI.
func (a *StabilityAdapter) Generate(ctx context.Context, prompt string, opts Options) ([]*artifact.Artifact, error) {
	if a.isV2() {
		return a.generateV2(ctx, prompt, opts)
	}
	return a.generateV1(ctx, prompt, opts)
}

func (a *StabilityAdapter) generateV2(ctx context.Context, prompt string, opts Options) ([]*artifact.Artifact, error) {
	endpoint := a.model
	if strings.HasPrefix(a.model, "sd3") {
		endpoint = "sd3"
	}

	outputFormat := opts.OutputFormat
	if outputFormat == "" {
		outputFormat = "png"
		if a.isRaw() {
			outputFormat = "webp"
		}
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	fields := [][2]string{
		{"prompt", prompt},
		{"output_format", outputFormat},
	}
	if strings.HasPrefix(a.model, "sd3") {
		fields = append(fields, [2]string{"model", a.model})
	}
	if opts.AspectRatio != "" {
		fields = append(fields, [2]string{"aspect_ratio", opts.AspectRatio})
	}
	if opts.NegativePrompt != "" {
		fields = append(fields, [2]string{"negative_prompt", opts.NegativePrompt})
	}
	if opts.Seed != nil {
		fields = append(fields, [2]string{"seed", strconv.FormatInt(*opts.Seed, 10)})
	}
	if opts.Style != "" {
		fields = append(fields, [2]string{"style_preset", opts.Style})
	}
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		set[f[0]] = true
	}
	for k, v := range opts.Extra {
		if !set[k] {
			fields = append(fields, [2]string{k, fmt.Sprint(v)})
		}
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, fmt.Errorf("failed to build form: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to build form: %w", err)
	}

	accept := "application/json"
	if a.isRaw() {
		accept = "image/*"
	}
	resp, err := a.do(ctx, request{
		URL:         a.baseURL + "/v2beta/stable-image/generate/" + endpoint,
		Body:        &body,
		ContentType: w.FormDataContentType(),
		Accept:      accept,
		Header:      bearer(a.apiKey),
	})
	if err != nil {
		return nil, err
	}
	if resp.Status != http.StatusOK {
		return nil, a.stabilityError(resp)
	}

	meta := func(seed int64) func(int, map[string]any) {
		return func(_ int, m map[string]any) {
			m["output_format"] = outputFormat
			if seed != 0 {
				m["seed"] = seed
			}
			if a.credits > 0 {
				m["credits"] = a.credits
			}
		}
	}

	if a.isRaw() || strings.HasPrefix(resp.ContentType, "image/") {
		var seed int64
		if s := opts.Seed; s != nil {
			seed = *s
		}
		return a.artifacts(ctx, a.decoder(nil), []payload.Item{{Raw: resp.Body}}, meta(seed))
	}

	var parsed stabilityV2Response
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return nil, a.malformed("response is not valid JSON", resp.Body)
	}
	if parsed.FinishReason == "CONTENT_FILTERED" {
		return nil, &ContentRejectedError{Provider: a.provider, Reason: "output filtered by moderation"}
	}
	if parsed.Image == "" {
		return nil, a.malformed("missing image field", resp.Body)
	}
	return a.artifacts(ctx, a.decoder(nil), []payload.Item{{B64: parsed.Image}}, meta(parsed.Seed))
}

func (a *StabilityAdapter) generateV1(ctx context.Context, prompt string, opts Options) ([]*artifact.Artifact, error) {
	width, height := opts.Dimensions(1024)
	reqBody := stabilityV1Request{
		TextPrompts: []stabilityTextPrompt{{Text: prompt}},
		Height:      height,
		Width:       width,
		Samples:     opts.N,
		Steps:       opts.Steps,
		CfgScale:    opts.GuidanceScale,
		Seed:        opts.Seed,
		StylePreset: opts.Style,
	}
	if opts.NegativePrompt != "" {
		reqBody.TextPrompts = append(reqBody.TextPrompts, stabilityTextPrompt{Text: opts.NegativePrompt, Weight: -1})
	}

	var parsed stabilityV1Response
	resp, err := a.doJSON(ctx, http.MethodPost,
		a.baseURL+"/v1/generation/"+a.model+"/text-to-image",
		bearer(a.apiKey), reqBody, &parsed, http.StatusOK)
	if err != nil {
		if resp != nil && resp.Status != http.StatusOK {
			return nil, a.stabilityError(resp)
		}
		return nil, err
	}

	var items []payload.Item
	var seeds []int64
	filtered := 0
	for _, art := range parsed.Artifacts {
		if art.FinishReason == "CONTENT_FILTERED" {
			filtered++
			continue
		}
		if art.Base64 == "" {
			continue
		}
		items = append(items, payload.Item{B64: art.Base64})
		seeds = append(seeds, art.Seed)
	}
	if len(items) == 0 {
		if filtered > 0 {
			return nil, &ContentRejectedError{Provider: a.provider, Reason: "output filtered by moderation"}
		}
		return nil, a.malformed("no artifacts in response", resp.Body)
	}

	return a.artifacts(ctx, a.decoder(nil), items, func(i int, m map[string]any) {
		m["seed"] = seeds[i]
		m["width"] = width
		m["height"] = height
		if a.credits > 0 {
			m["credits"] = a.credits
		}
	})
}

// stabilityError maps a non-200 response. A 403 mentioning content
// moderation is a rejection, not a transport failure.
func (a *StabilityAdapter) stabilityError(resp *rawResponse) error {
	if resp.Status == http.StatusForbidden && strings.Contains(string(resp.Body), "content_moderation") {
		return &ContentRejectedError{
			Provider: a.provider,
			Reason:   "content blocked by Stability AI moderation; try rephrasing the prompt or using a local model",
		}
	}
	return a.statusError(resp)
}
