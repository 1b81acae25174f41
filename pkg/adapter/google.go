package adapter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/zen-systems/mediagate/pkg/artifact"
	"github.com/zen-systems/mediagate/pkg/payload"
	"github.com/zen-systems/mediagate/pkg/poll"
)

// genaiModels is the subset of *genai.Models the adapter calls, so tests can
// inject a stub without hitting the API.
type genaiModels interface {
	GenerateImages(ctx context.Context, model, prompt string, config *genai.GenerateImagesConfig) (*genai.GenerateImagesResponse, error)
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	GenerateVideos(ctx context.Context, model, prompt string, image *genai.Image, config *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error)
}

// genaiOperations is the subset of *genai.Operations used to poll Veo jobs.
type genaiOperations interface {
	GetVideosOperation(ctx context.Context, operation *genai.GenerateVideosOperation, config *genai.GetOperationConfig) (*genai.GenerateVideosOperation, error)
}

// Finish reasons that mean Gemini withheld output for safety.
var geminiBlockedReasons = map[string]bool{
	"SAFETY":                   true,
	"IMAGE_SAFETY":             true,
	"PROHIBITED_CONTENT":       true,
	"IMAGE_PROHIBITED_CONTENT": true,
	"BLOCKLIST":                true,
	"SPII":                     true,
}

// GoogleAdapter implements the Adapter interface for Imagen, Gemini image
// output and Veo. The model prefix selects the API.
type GoogleAdapter struct {
	base
	models genaiModels
	ops    genaiOperations
}

// newGoogleAdapter creates a new Google adapter.
func newGoogleAdapter(b base) (*GoogleAdapter, error) {
	cfg := &genai.ClientConfig{
		APIKey:     b.apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: b.client,
	}
	if b.baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: b.baseURL}
	}
	client, err := genai.NewClient(context.Background(), cfg)
	if err != nil {
		return nil, &ConfigurationError{Provider: b.provider, Model: b.model, Reason: "failed to create google client", Err: err}
	}

	return &GoogleAdapter{base: b, models: client.Models, ops: client.Operations}, nil
}

// Generate dispatches on the model family.
func (a *GoogleAdapter) Generate(ctx context.Context, prompt string, opts Options) ([]*artifact.Artifact, error) {
	switch {
	case strings.HasPrefix(a.model, "veo"):
		return a.generateVideo(ctx, prompt, opts)
	case strings.HasPrefix(a.model, "gemini"):
		return a.generateContentImage(ctx, prompt, opts)
	default:
		return a.generateImagen(ctx, prompt, opts)
	}
}

func (a *GoogleAdapter) generateImagen(ctx context.Context, prompt string, opts Options) ([]*artifact.Artifact, error) {
	cfg := &genai.GenerateImagesConfig{
		NumberOfImages: int32(opts.Count()),
		AspectRatio:    opts.AspectRatio,
		NegativePrompt: opts.NegativePrompt,
		OutputMIMEType: imageMIME(opts.OutputFormat),
	}
	if opts.Seed != nil {
		seed := int32(*opts.Seed)
		cfg.Seed = &seed
	}
	if g, ok := opts.Float("guidance_scale"); ok {
		gs := float32(g)
		cfg.GuidanceScale = &gs
	} else if opts.GuidanceScale > 0 {
		gs := float32(opts.GuidanceScale)
		cfg.GuidanceScale = &gs
	}
	if pg, ok := opts.Extra["person_generation"].(string); ok {
		cfg.PersonGeneration = genai.PersonGeneration(pg)
	}
	if v, ok := opts.Bool("enhance_prompt"); ok {
		cfg.EnhancePrompt = v
	}
	if v, ok := opts.Bool("add_watermark"); ok {
		cfg.AddWatermark = &v
	}
	if v, ok := opts.Bool("include_rai_reason"); ok {
		cfg.IncludeRAIReason = v
	}
	cfg.HTTPOptions = extraBody(opts, "guidance_scale", "person_generation", "enhance_prompt", "add_watermark", "include_rai_reason")

	resp, err := a.models.GenerateImages(ctx, a.model, prompt, cfg)
	if err != nil {
		return nil, a.googleError(err)
	}
	if resp == nil {
		return nil, a.malformed("empty response", nil)
	}

	var items []payload.Item
	var mimes []string
	var filtered []string
	for _, gi := range resp.GeneratedImages {
		if gi == nil {
			continue
		}
		if gi.Image == nil || len(gi.Image.ImageBytes) == 0 {
			if gi.RAIFilteredReason != "" {
				filtered = append(filtered, gi.RAIFilteredReason)
			}
			continue
		}
		items = append(items, payload.Item{Raw: gi.Image.ImageBytes})
		mimes = append(mimes, gi.Image.MIMEType)
	}
	if len(items) == 0 {
		if len(filtered) > 0 {
			return nil, &ContentRejectedError{Provider: a.provider, Reason: strings.Join(filtered, "; ")}
		}
		return nil, a.malformed("no images in response", resp)
	}
	if len(filtered) > 0 {
		a.log().Warn("some images were filtered", zap.Strings("reasons", filtered))
	}

	return a.artifacts(ctx, a.decoder(nil), items, func(i int, m map[string]any) {
		if opts.AspectRatio != "" {
			m["aspect_ratio"] = opts.AspectRatio
		}
		if mimes[i] != "" {
			m["mime_type"] = mimes[i]
		}
	})
}

func (a *GoogleAdapter) generateContentImage(ctx context.Context, prompt string, opts Options) ([]*artifact.Artifact, error) {
	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
	}
	if opts.Seed != nil {
		seed := int32(*opts.Seed)
		cfg.Seed = &seed
	}
	if v, ok := opts.Float("temperature"); ok {
		temp := float32(v)
		cfg.Temperature = &temp
	}
	if v, ok := opts.Float("top_p"); ok {
		topP := float32(v)
		cfg.TopP = &topP
	}
	cfg.HTTPOptions = extraBody(opts, "temperature", "top_p")

	resp, err := a.models.GenerateContent(ctx, a.model, genai.Text(prompt), cfg)
	if err != nil {
		return nil, a.googleError(err)
	}
	if resp == nil {
		return nil, a.malformed("empty response", nil)
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return nil, &ContentRejectedError{Provider: a.provider, Reason: string(resp.PromptFeedback.BlockReason)}
	}

	var items []payload.Item
	var text []string
	var blocked string
	for _, cand := range resp.Candidates {
		if cand == nil {
			continue
		}
		if geminiBlockedReasons[string(cand.FinishReason)] {
			blocked = string(cand.FinishReason)
		}
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part == nil {
				continue
			}
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				items = append(items, payload.Item{Raw: part.InlineData.Data})
			} else if part.Text != "" {
				text = append(text, part.Text)
			}
		}
	}
	if len(items) == 0 {
		if blocked != "" {
			return nil, &ContentRejectedError{Provider: a.provider, Reason: blocked}
		}
		return nil, a.malformed("no inline image data in response", strings.Join(text, " "))
	}

	return a.artifacts(ctx, a.decoder(nil), items, func(i int, m map[string]any) {
		if len(text) > 0 {
			m["text"] = strings.Join(text, "\n")
		}
	})
}

func (a *GoogleAdapter) generateVideo(ctx context.Context, prompt string, opts Options) ([]*artifact.Artifact, error) {
	cfg := &genai.GenerateVideosConfig{
		AspectRatio:    opts.AspectRatio,
		NegativePrompt: opts.NegativePrompt,
		Resolution:     opts.Resolution,
	}
	if opts.N > 0 {
		cfg.NumberOfVideos = int32(opts.N)
	}
	if secs, ok := durationSeconds(opts.Duration); ok {
		cfg.DurationSeconds = &secs
	}
	if opts.Seed != nil {
		seed := int32(*opts.Seed)
		cfg.Seed = &seed
	}
	if v, ok := opts.Bool("enhance_prompt"); ok {
		cfg.EnhancePrompt = v
	}
	if v, ok := opts.Int("fps"); ok {
		fps := int32(v)
		cfg.FPS = &fps
	}
	cfg.HTTPOptions = extraBody(opts, "enhance_prompt", "fps")

	op, err := a.models.GenerateVideos(ctx, a.model, prompt, nil, cfg)
	if err != nil {
		return nil, a.googleError(err)
	}
	if op == nil {
		return nil, a.malformed("no operation returned", nil)
	}
	a.log().Info("video generation submitted", zap.String("operation", op.Name))

	current := op
	if !current.Done {
		check := func(ctx context.Context) (*poll.Job, error) {
			next, err := a.ops.GetVideosOperation(ctx, current, nil)
			if err != nil {
				return nil, a.googleError(err)
			}
			if next == nil {
				return nil, a.malformed("empty operation status", nil)
			}
			current = next
			return veoJob(next), nil
		}
		if _, err := a.newPoller().Run(ctx, op.Name, check); err != nil {
			return nil, a.translate(err)
		}
	} else if job := veoJob(current); job.State == poll.Failed {
		return nil, &GenerationFailedError{Provider: a.provider, JobID: current.Name, Reason: job.FailureReason}
	}

	resp := current.Response
	if resp == nil || len(resp.GeneratedVideos) == 0 {
		if resp != nil && resp.RAIMediaFilteredCount > 0 {
			return nil, &ContentRejectedError{Provider: a.provider, Reason: strings.Join(resp.RAIMediaFilteredReasons, "; ")}
		}
		return nil, a.malformed("completed operation has no videos", current)
	}

	var items []payload.Item
	for _, gv := range resp.GeneratedVideos {
		if gv == nil || gv.Video == nil {
			continue
		}
		switch {
		case len(gv.Video.VideoBytes) > 0:
			items = append(items, payload.Item{Raw: gv.Video.VideoBytes})
		case gv.Video.URI != "":
			items = append(items, payload.Item{URL: gv.Video.URI})
		}
	}
	if len(items) == 0 {
		return nil, a.malformed("completed operation has no video content", current)
	}

	header := http.Header{"X-Goog-Api-Key": {a.apiKey}}
	return a.artifacts(ctx, a.decoder(header), items, func(i int, m map[string]any) {
		m["operation"] = current.Name
		if opts.AspectRatio != "" {
			m["aspect_ratio"] = opts.AspectRatio
		}
		if opts.Resolution != "" {
			m["resolution"] = opts.Resolution
		}
	})
}

// extraBody sends the Extra keys that have no config field as additional
// request body fields.
func extraBody(opts Options, mapped ...string) *genai.HTTPOptions {
	rest := map[string]any{}
	for k, v := range opts.Extra {
		if !slices.Contains(mapped, k) {
			rest[k] = v
		}
	}
	if len(rest) == 0 {
		return nil
	}
	return &genai.HTTPOptions{ExtraBody: rest}
}

// veoJob maps a long-running operation onto the poll state machine.
func veoJob(op *genai.GenerateVideosOperation) *poll.Job {
	job := &poll.Job{ID: op.Name, State: poll.Processing}
	if !op.Done {
		return job
	}
	if len(op.Error) > 0 {
		job.State = poll.Failed
		if msg, ok := op.Error["message"].(string); ok {
			job.FailureReason = msg
		} else {
			job.FailureReason = payload.Describe(op.Error)
		}
		return job
	}
	job.State = poll.Completed
	return job
}

func (a *GoogleAdapter) googleError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return a.googleAPIError(apiErr.Code, apiErr.Message, err)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return a.googleAPIError(apiErrPtr.Code, apiErrPtr.Message, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &APIError{Provider: a.provider, Err: fmt.Errorf("google API error: %w", err)}
}

func (a *GoogleAdapter) googleAPIError(code int, message string, err error) error {
	if code == http.StatusBadRequest && strings.Contains(strings.ToLower(message), "safety") {
		return &ContentRejectedError{Provider: a.provider, Reason: message}
	}
	return &APIError{Provider: a.provider, Status: code, Body: message, Err: err}
}

func imageMIME(format string) string {
	switch strings.ToLower(format) {
	case "":
		return ""
	case "jpg", "jpeg":
		return "image/jpeg"
	default:
		if strings.Contains(format, "/") {
			return format
		}
		return "image/" + strings.ToLower(format)
	}
}

// durationSeconds accepts "5", "5s" or "8 seconds".
func durationSeconds(s string) (int32, bool) {
	s = strings.TrimSpace(strings.ToLower(s))
	s = strings.TrimSuffix(s, "seconds")
	s = strings.TrimSuffix(strings.TrimSpace(s), "s")
	var n int32
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d", &n); err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
