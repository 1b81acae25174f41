package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/zen-systems/mediagate/pkg/artifact"
	"github.com/zen-systems/mediagate/pkg/payload"
	"github.com/zen-systems/mediagate/pkg/poll"
)

const (
	lumaBaseURL            = "https://api.lumalabs.ai/dream-machine/v1"
	lumaDefaultAspectRatio = "16:9"
)

// LumaAdapter implements the Adapter interface for Luma Dream Machine. Both
// image and video generation are submit-then-poll.
type LumaAdapter struct {
	base
}

type lumaCharacterRef struct {
	Images []string `json:"images"`
}

type lumaRequest struct {
	Prompt         string                      `json:"prompt"`
	Model          string                      `json:"model"`
	AspectRatio    string                      `json:"aspect_ratio,omitempty"`
	Resolution     string                      `json:"resolution,omitempty"`
	Duration       string                      `json:"duration,omitempty"`
	Loop           bool                        `json:"loop,omitempty"`
	ImageRef       []Ref                       `json:"image_ref,omitempty"`
	StyleRef       []Ref                       `json:"style_ref,omitempty"`
	CharacterRef   map[string]lumaCharacterRef `json:"character_ref,omitempty"`
	ModifyImageRef *Ref                        `json:"modify_image_ref,omitempty"`
}

type lumaGeneration struct {
	ID            string `json:"id"`
	State         string `json:"state"`
	FailureReason string `json:"failure_reason"`
	CreatedAt     string `json:"created_at"`
	Assets        struct {
		Image string `json:"image"`
		Video string `json:"video"`
	} `json:"assets"`
}

// newLumaAdapter creates a new Luma adapter.
func newLumaAdapter(b base) *LumaAdapter {
	if b.baseURL == "" {
		b.baseURL = lumaBaseURL
	}
	return &LumaAdapter{base: b}
}

// Generate submits one generation, polls it to completion and downloads the
// resulting asset.
func (a *LumaAdapter) Generate(ctx context.Context, prompt string, opts Options) ([]*artifact.Artifact, error) {
	reqBody, endpoint := a.buildRequest(prompt, opts)
	body, err := withExtra(reqBody, opts)
	if err != nil {
		return nil, err
	}

	var created lumaGeneration
	if _, err := a.doJSON(ctx, http.MethodPost, a.baseURL+endpoint, bearer(a.apiKey), body, &created, http.StatusCreated); err != nil {
		return nil, err
	}
	if created.ID == "" {
		return nil, a.malformed("creation response has no id", created)
	}
	a.log().Info("generation submitted", zap.String("provider", string(a.provider)), zap.String("generation_id", created.ID))

	var final lumaGeneration
	check := func(ctx context.Context) (*poll.Job, error) {
		var status lumaGeneration
		if _, err := a.doJSON(ctx, http.MethodGet, a.baseURL+"/generations/"+created.ID, bearer(a.apiKey), nil, &status); err != nil {
			return nil, err
		}
		final = status
		return &poll.Job{
			ID:            created.ID,
			State:         poll.NormalizeState(status.State),
			ContentURL:    a.assetURL(status),
			FailureReason: status.FailureReason,
		}, nil
	}

	job, err := a.newPoller().Run(ctx, created.ID, check)
	if err != nil {
		return nil, a.translate(err)
	}
	if job.ContentURL == "" {
		return nil, a.malformed("completed generation has no asset url", final)
	}

	return a.artifacts(ctx, a.decoder(nil), []payload.Item{{URL: job.ContentURL}}, func(_ int, m map[string]any) {
		m["generation_id"] = created.ID
		m["aspect_ratio"] = reqBody.AspectRatio
		if final.CreatedAt != "" {
			m["created_at"] = final.CreatedAt
		}
		if reqBody.Resolution != "" {
			m["resolution"] = reqBody.Resolution
		}
		if reqBody.Duration != "" {
			m["duration"] = reqBody.Duration
		}
	})
}

func (a *LumaAdapter) buildRequest(prompt string, opts Options) (lumaRequest, string) {
	req := lumaRequest{
		Prompt:      prompt,
		Model:       a.model,
		AspectRatio: opts.AspectRatio,
	}
	if req.AspectRatio == "" {
		req.AspectRatio = lumaDefaultAspectRatio
	}

	if a.kind() == artifact.KindVideo {
		req.Resolution = opts.Resolution
		req.Duration = opts.Duration
		req.Loop = opts.Loop
		return req, "/generations"
	}

	req.ImageRef = opts.ImageRef
	req.StyleRef = opts.StyleRef
	req.ModifyImageRef = opts.ModifyImageRef
	if len(opts.CharacterRef) > 0 {
		req.CharacterRef = make(map[string]lumaCharacterRef, len(opts.CharacterRef))
		for identity, images := range opts.CharacterRef {
			req.CharacterRef[identity] = lumaCharacterRef{Images: images}
		}
	}
	return req, "/generations/image"
}

func (a *LumaAdapter) assetURL(g lumaGeneration) string {
	if a.kind() == artifact.KindVideo {
		return g.Assets.Video
	}
	return g.Assets.Image
}

// withExtra flattens a typed request body into a map and adds Extra keys it
// does not already set.
func withExtra(req any, opts Options) (any, error) {
	if len(opts.Extra) == 0 {
		return req, nil
	}
	raw, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	m := map[string]any{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	opts.mergeExtra(m)
	return m, nil
}
