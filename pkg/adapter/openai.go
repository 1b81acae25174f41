package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"

	"github.com/zen-systems/mediagate/pkg/artifact"
	"github.com/zen-systems/mediagate/pkg/payload"
)

const openAIBaseURL = "https://api.openai.com/v1/"

// OpenAI moderation error codes.
var openAIRejectCodes = map[string]bool{
	"content_policy_violation": true,
	"moderation_blocked":       true,
}

// OpenAIAdapter implements the Adapter interface for the OpenAI images API.
// The xAI adapter reuses it against an OpenAI-compatible endpoint.
type OpenAIAdapter struct {
	base
	client openai.Client
	params func(prompt string, opts Options) (openai.ImageGenerateParams, map[string]any)
}

// newOpenAIAdapter creates a new OpenAI image adapter.
func newOpenAIAdapter(b base) *OpenAIAdapter {
	a := &OpenAIAdapter{base: b, client: newOpenAIClient(b, openAIBaseURL)}
	a.params = a.openAIParams
	return a
}

func newOpenAIClient(b base, defaultURL string) openai.Client {
	baseURL := b.baseURL
	if baseURL == "" {
		baseURL = defaultURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	opts := []option.RequestOption{
		option.WithAPIKey(b.apiKey),
		option.WithBaseURL(baseURL),
		option.WithMaxRetries(0),
	}
	if b.client != nil {
		opts = append(opts, option.WithHTTPClient(b.client))
	}
	return openai.NewClient(opts...)
}

func isDallE(model string) bool { return strings.HasPrefix(model, "dall-e") }

// openAIParams maps Options onto the images API. dall-e-3 accepts a single
// image per request and is the only model with a style.
func (a *OpenAIAdapter) openAIParams(prompt string, opts Options) (openai.ImageGenerateParams, map[string]any) {
	meta := map[string]any{}
	params := openai.ImageGenerateParams{
		Prompt: prompt,
		Model:  openai.ImageModel(a.model),
	}

	n := opts.Count()
	if a.model == "dall-e-3" && n > 1 {
		a.log().Warn("dall-e-3 generates one image per request", zap.Int("requested", n))
		n = 1
	}
	params.N = openai.Int(int64(n))

	size := opts.Size
	if size == "" && (opts.Width > 0 || opts.Height > 0) {
		w, h := opts.Dimensions(1024)
		size = fmt.Sprintf("%dx%d", w, h)
	}
	if size == "" {
		size = "1024x1024"
	}
	params.Size = openai.ImageGenerateParamsSize(size)
	meta["size"] = size

	switch {
	case a.model == "dall-e-3":
		quality := opts.Quality
		if quality == "" {
			quality = "standard"
		}
		style := opts.Style
		if style == "" {
			style = "vivid"
		}
		params.Quality = openai.ImageGenerateParamsQuality(quality)
		params.Style = openai.ImageGenerateParamsStyle(style)
		meta["quality"] = quality
		meta["style"] = style
	case opts.Quality != "":
		params.Quality = openai.ImageGenerateParamsQuality(opts.Quality)
		meta["quality"] = opts.Quality
	}

	if isDallE(a.model) {
		rf := opts.ResponseFormat
		if rf == "" {
			rf = "b64_json"
		}
		params.ResponseFormat = openai.ImageGenerateParamsResponseFormat(rf)
	} else if opts.OutputFormat != "" {
		params.OutputFormat = openai.ImageGenerateParamsOutputFormat(opts.OutputFormat)
		meta["output_format"] = opts.OutputFormat
	}

	return params, meta
}

// Generate sends a prompt to the images API and returns the images in
// response order.
func (a *OpenAIAdapter) Generate(ctx context.Context, prompt string, opts Options) ([]*artifact.Artifact, error) {
	params, callMeta := a.params(prompt, opts)

	resp, err := a.client.Images.Generate(ctx, params, extraFields(params, opts.Extra)...)
	if err != nil {
		return nil, a.openAIError(err)
	}
	if resp == nil || len(resp.Data) == 0 {
		return nil, a.malformed("no images in response", resp)
	}

	items := make([]payload.Item, len(resp.Data))
	for i, d := range resp.Data {
		items[i] = payload.Item{B64: d.B64JSON, URL: d.URL}
	}

	return a.artifacts(ctx, a.decoder(nil), items, func(i int, m map[string]any) {
		for k, v := range callMeta {
			m[k] = v
		}
		if rp := resp.Data[i].RevisedPrompt; rp != "" {
			m["revised_prompt"] = rp
		}
		if resp.Created != 0 {
			m["created"] = resp.Created
		}
	})
}

// extraFields sends Extra as additional JSON body fields. Keys the typed
// params already set are left alone.
func extraFields(params openai.ImageGenerateParams, extra map[string]any) []option.RequestOption {
	if len(extra) == 0 {
		return nil
	}
	set := map[string]json.RawMessage{}
	if raw, err := json.Marshal(params); err == nil {
		_ = json.Unmarshal(raw, &set)
	}
	var opts []option.RequestOption
	for key, value := range extra {
		if _, ok := set[key]; ok {
			continue
		}
		opts = append(opts, option.WithJSONSet(key, value))
	}
	return opts
}

func (a *OpenAIAdapter) openAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if openAIRejectCodes[apiErr.Code] || mentionsRejectCode(apiErr.Error()) {
			reason := apiErr.Message
			if reason == "" {
				reason = "prompt rejected by the safety system"
			}
			return &ContentRejectedError{Provider: a.provider, Reason: reason}
		}
		return &APIError{Provider: a.provider, Status: apiErr.StatusCode, Body: apiErr.Message, Err: err}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &APIError{Provider: a.provider, Err: fmt.Errorf("%s API error: %w", a.provider, err)}
}

// mentionsRejectCode catches rejections whose envelope the SDK did not
// unwrap into Code.
func mentionsRejectCode(msg string) bool {
	for code := range openAIRejectCodes {
		if strings.Contains(msg, code) {
			return true
		}
	}
	return false
}
