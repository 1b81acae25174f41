package adapter

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/zen-systems/mediagate/pkg/artifact"
	"github.com/zen-systems/mediagate/pkg/payload"
	"github.com/zen-systems/mediagate/pkg/poll"
)

const replicateBaseURL = "https://api.replicate.com/v1"

// ReplicateAdapter implements the Adapter interface for Replicate
// predictions. Model is "owner/name" for official models or
// "owner/name:version" for a pinned version.
type ReplicateAdapter struct {
	base
}

type replicateRequest struct {
	Version string         `json:"version,omitempty"`
	Input   map[string]any `json:"input"`
}

type replicatePrediction struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Output any    `json:"output"`
	Error  any    `json:"error"`
	URLs   struct {
		Get string `json:"get"`
	} `json:"urls"`
	Metrics map[string]any `json:"metrics"`
}

// newReplicateAdapter creates a new Replicate adapter.
func newReplicateAdapter(b base) *ReplicateAdapter {
	if b.baseURL == "" {
		b.baseURL = replicateBaseURL
	}
	return &ReplicateAdapter{base: b}
}

// Generate creates a prediction, waiting synchronously where the vendor
// allows, and polls it when it is still running.
func (a *ReplicateAdapter) Generate(ctx context.Context, prompt string, opts Options) ([]*artifact.Artifact, error) {
	input := a.input(prompt, opts)

	reqBody := replicateRequest{Input: input}
	url := a.baseURL + "/models/" + a.model + "/predictions"
	if _, version, ok := strings.Cut(a.model, ":"); ok {
		reqBody.Version = version
		url = a.baseURL + "/predictions"
	}

	header := bearer(a.apiKey)
	header.Set("Prefer", "wait")

	var pred replicatePrediction
	if _, err := a.doJSON(ctx, http.MethodPost, url, header, reqBody, &pred, http.StatusOK, http.StatusCreated); err != nil {
		return nil, err
	}
	if pred.ID == "" {
		return nil, a.malformed("prediction has no id", pred)
	}

	if !poll.NormalizeState(pred.Status).Terminal() {
		a.log().Info("prediction still running, polling",
			zap.String("prediction_id", pred.ID), zap.String("status", pred.Status))

		statusURL := pred.URLs.Get
		if statusURL == "" {
			statusURL = a.baseURL + "/predictions/" + pred.ID
		}
		check := func(ctx context.Context) (*poll.Job, error) {
			var status replicatePrediction
			if _, err := a.doJSON(ctx, http.MethodGet, statusURL, bearer(a.apiKey), nil, &status); err != nil {
				return nil, err
			}
			pred = status
			return a.job(status), nil
		}
		if _, err := a.newPoller().Run(ctx, pred.ID, check); err != nil {
			return nil, a.replicateError(a.translate(err))
		}
	} else if job := a.job(pred); job.State == poll.Failed {
		return nil, a.replicateError(&GenerationFailedError{Provider: a.provider, JobID: pred.ID, Reason: job.FailureReason})
	}

	items := outputItems(pred.Output)
	if len(items) == 0 {
		return nil, a.malformed("prediction succeeded without output", pred)
	}

	return a.artifacts(ctx, a.decoder(nil), items, func(_ int, m map[string]any) {
		m["prediction_id"] = pred.ID
		for k, v := range input {
			if k == "prompt" {
				continue
			}
			if _, exists := m[k]; !exists {
				m[k] = v
			}
		}
		if pt, ok := pred.Metrics["predict_time"]; ok {
			m["predict_time"] = pt
		}
	})
}

func (a *ReplicateAdapter) input(prompt string, opts Options) map[string]any {
	input := map[string]any{"prompt": prompt}
	if opts.N > 1 {
		input["num_outputs"] = opts.N
	}
	if opts.Width > 0 && opts.Height > 0 {
		input["width"] = opts.Width
		input["height"] = opts.Height
	} else if opts.Size != "" {
		if w, h, err := ParseSize(opts.Size); err == nil {
			input["width"] = w
			input["height"] = h
		}
	}
	if opts.AspectRatio != "" {
		input["aspect_ratio"] = opts.AspectRatio
	}
	if opts.NegativePrompt != "" {
		input["negative_prompt"] = opts.NegativePrompt
	}
	if opts.Seed != nil {
		input["seed"] = *opts.Seed
	}
	if opts.Steps > 0 {
		input["num_inference_steps"] = opts.Steps
	}
	if opts.GuidanceScale > 0 {
		input["guidance_scale"] = opts.GuidanceScale
	}
	if opts.OutputFormat != "" {
		input["output_format"] = opts.OutputFormat
	}
	if a.kind() == artifact.KindVideo {
		if secs, ok := durationSeconds(opts.Duration); ok {
			input["duration"] = secs
		}
		if opts.Resolution != "" {
			input["resolution"] = opts.Resolution
		}
	}
	opts.mergeExtra(input)
	return input
}

func (a *ReplicateAdapter) job(p replicatePrediction) *poll.Job {
	job := &poll.Job{ID: p.ID, State: poll.NormalizeState(p.Status)}
	if job.State == poll.Failed {
		if p.Error != nil {
			job.FailureReason = payload.Describe(p.Error)
			if s, ok := p.Error.(string); ok {
				job.FailureReason = s
			}
		} else {
			job.FailureReason = "prediction " + p.Status
		}
	}
	return job
}

// replicateError upgrades NSFW failures to content rejections.
func (a *ReplicateAdapter) replicateError(err error) error {
	if gf, ok := err.(*GenerationFailedError); ok && strings.Contains(strings.ToLower(gf.Reason), "nsfw") {
		return &ContentRejectedError{Provider: a.provider, Reason: gf.Reason}
	}
	return err
}

// outputItems flattens a prediction output, which is a single URL or a list
// of URLs.
func outputItems(output any) []payload.Item {
	switch v := output.(type) {
	case string:
		if v == "" {
			return nil
		}
		return []payload.Item{payload.FromString(v)}
	case []any:
		var items []payload.Item
		for _, o := range v {
			if s, ok := o.(string); ok && s != "" {
				items = append(items, payload.FromString(s))
			}
		}
		return items
	case map[string]any:
		if it, ok := payload.FromFields(v, "url", "video", "image", "output"); ok {
			return []payload.Item{it}
		}
	}
	return nil
}
