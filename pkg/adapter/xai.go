package adapter

import (
	"github.com/openai/openai-go"
)

const xaiBaseURL = "https://api.x.ai/v1/"

// newXAIAdapter creates an adapter for xAI's OpenAI-compatible images
// endpoint. It takes n and response_format only; size, quality and style are
// rejected by the vendor and therefore never sent.
func newXAIAdapter(b base) *OpenAIAdapter {
	a := &OpenAIAdapter{base: b, client: newOpenAIClient(b, xaiBaseURL)}
	a.params = a.xaiParams
	return a
}

func (a *OpenAIAdapter) xaiParams(prompt string, opts Options) (openai.ImageGenerateParams, map[string]any) {
	rf := opts.ResponseFormat
	if rf == "" {
		rf = "b64_json"
	}
	return openai.ImageGenerateParams{
		Prompt:         prompt,
		Model:          openai.ImageModel(a.model),
		N:              openai.Int(int64(opts.Count())),
		ResponseFormat: openai.ImageGenerateParamsResponseFormat(rf),
	}, map[string]any{}
}
