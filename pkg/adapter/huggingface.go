package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/zen-systems/mediagate/pkg/artifact"
	"github.com/zen-systems/mediagate/pkg/payload"
)

const huggingFaceBaseURL = "https://api-inference.huggingface.co/models"

// HuggingFaceAdapter implements the Adapter interface for the HuggingFace
// Inference API, which answers text-to-image calls with raw image bytes.
type HuggingFaceAdapter struct {
	base
}

type huggingFaceRequest struct {
	Inputs     string         `json:"inputs"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

type huggingFaceLoading struct {
	Error         string  `json:"error"`
	EstimatedTime float64 `json:"estimated_time"`
}

// newHuggingFaceAdapter creates a new HuggingFace adapter.
func newHuggingFaceAdapter(b base) *HuggingFaceAdapter {
	if b.baseURL == "" {
		b.baseURL = huggingFaceBaseURL
	}
	return &HuggingFaceAdapter{base: b}
}

// Generate sends a prompt to the model endpoint and returns one image.
func (a *HuggingFaceAdapter) Generate(ctx context.Context, prompt string, opts Options) ([]*artifact.Artifact, error) {
	params := map[string]any{}
	if opts.Width > 0 || opts.Height > 0 || opts.Size != "" {
		w, h := opts.Dimensions(1024)
		params["width"] = w
		params["height"] = h
	}
	if opts.NegativePrompt != "" {
		params["negative_prompt"] = opts.NegativePrompt
	}
	if opts.Steps > 0 {
		params["num_inference_steps"] = opts.Steps
	}
	if opts.GuidanceScale > 0 {
		params["guidance_scale"] = opts.GuidanceScale
	}
	if opts.Seed != nil {
		params["seed"] = *opts.Seed
	}
	opts.mergeExtra(params)

	reqBody := huggingFaceRequest{Inputs: prompt}
	if len(params) > 0 {
		reqBody.Parameters = params
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := a.do(ctx, request{
		URL:         a.baseURL + "/" + a.model,
		Body:        bytes.NewReader(jsonBody),
		ContentType: "application/json",
		Accept:      "image/png",
		Header:      bearer(a.apiKey),
	})
	if err != nil {
		return nil, err
	}

	switch {
	case resp.Status == http.StatusServiceUnavailable:
		// Cold model: the vendor reports how long loading will take.
		var loading huggingFaceLoading
		_ = json.Unmarshal(resp.Body, &loading)
		if loading.EstimatedTime == 0 {
			loading.EstimatedTime = 20
		}
		return nil, &APIError{
			Provider:  a.provider,
			Status:    resp.Status,
			Body:      fmt.Sprintf("model is loading, retry in %.0f seconds", loading.EstimatedTime),
			Temporary: true,
		}
	case resp.Status != http.StatusOK:
		return nil, a.statusError(resp)
	}

	contentType := http.DetectContentType(resp.Body)
	if !strings.HasPrefix(contentType, "image/") {
		return nil, a.malformed("response is not an image ("+contentType+")", resp.Body)
	}

	return a.artifacts(ctx, a.decoder(nil), []payload.Item{{Raw: resp.Body}}, nil)
}
