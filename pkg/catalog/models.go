package catalog

import "github.com/zen-systems/mediagate/pkg/provider"

var (
	image = []provider.Capability{provider.ImageGeneration}
	video = []provider.Capability{provider.VideoGeneration}
)

// builtin is the shipped model table. The first Default entry per provider and
// capability is what adapters fall back to when no model is given.
var builtin = []Model{
	// OpenAI
	{Provider: provider.OpenAI, ID: "dall-e-3", DisplayName: "DALL·E 3", Capabilities: image, Default: true},
	{Provider: provider.OpenAI, ID: "dall-e-2", DisplayName: "DALL·E 2", Capabilities: image},
	{Provider: provider.OpenAI, ID: "gpt-image-1", DisplayName: "GPT Image 1", Capabilities: image},

	// Google
	{Provider: provider.Google, ID: "imagen-3.0-generate-002", DisplayName: "Imagen 3", Capabilities: image, Default: true},
	{Provider: provider.Google, ID: "imagen-4.0-generate-preview-06-06", DisplayName: "Imagen 4", Capabilities: image},
	{Provider: provider.Google, ID: "imagen-4.0-ultra-generate-preview-06-06", DisplayName: "Imagen 4 Ultra", Capabilities: image},
	{Provider: provider.Google, ID: "gemini-2.0-flash-preview-image-generation", DisplayName: "Gemini 2.0 Flash Image", Capabilities: image},
	{Provider: provider.Google, ID: "veo-2.0-generate-001", DisplayName: "Veo 2", Capabilities: video, Default: true},
	{Provider: provider.Google, ID: "veo-3.0-generate-preview", DisplayName: "Veo 3", Capabilities: video},

	// Stability AI, credits per image
	{Provider: provider.StabilityAI, ID: "stable-diffusion-xl-1024-v1-0", DisplayName: "SDXL 1.0", Capabilities: image, Default: true, Credits: 0.9},
	{Provider: provider.StabilityAI, ID: "stable-diffusion-v1-6", DisplayName: "SD 1.6", Capabilities: image, Credits: 0.9},
	{Provider: provider.StabilityAI, ID: "ultra", DisplayName: "Stable Image Ultra", Capabilities: image, Credits: 8.0},
	{Provider: provider.StabilityAI, ID: "core", DisplayName: "Stable Image Core", Capabilities: image, Credits: 3.0},
	{Provider: provider.StabilityAI, ID: "sd3.5-large", DisplayName: "SD 3.5 Large", Capabilities: image, Credits: 6.5},
	{Provider: provider.StabilityAI, ID: "sd3.5-large-turbo", DisplayName: "SD 3.5 Large Turbo", Capabilities: image, Credits: 4.0},
	{Provider: provider.StabilityAI, ID: "sd3.5-medium", DisplayName: "SD 3.5 Medium", Capabilities: image, Credits: 3.5},

	// Luma
	{Provider: provider.Luma, ID: "photon-1", DisplayName: "Photon 1", Capabilities: image, Default: true},
	{Provider: provider.Luma, ID: "photon-flash-1", DisplayName: "Photon Flash 1", Capabilities: image},
	{Provider: provider.Luma, ID: "ray-2", DisplayName: "Ray 2", Capabilities: video, Default: true},
	{Provider: provider.Luma, ID: "ray-flash-2", DisplayName: "Ray Flash 2", Capabilities: video},

	// HuggingFace Inference
	{Provider: provider.HuggingFace, ID: "black-forest-labs/FLUX.1-schnell", DisplayName: "FLUX.1 schnell", Capabilities: image, Default: true},
	{Provider: provider.HuggingFace, ID: "black-forest-labs/FLUX.1-dev", DisplayName: "FLUX.1 dev", Capabilities: image},
	{Provider: provider.HuggingFace, ID: "black-forest-labs/FLUX.1-Krea-dev", DisplayName: "FLUX.1 Krea dev", Capabilities: image},
	{Provider: provider.HuggingFace, ID: "stabilityai/stable-diffusion-xl-base-1.0", DisplayName: "SDXL base", Capabilities: image},
	{Provider: provider.HuggingFace, ID: "stabilityai/stable-diffusion-3-medium-diffusers", DisplayName: "SD3 medium", Capabilities: image},
	{Provider: provider.HuggingFace, ID: "Qwen/Qwen-Image", DisplayName: "Qwen Image", Capabilities: image},

	// Local pipeline
	{Provider: provider.Local, ID: "stabilityai/sdxl-turbo", DisplayName: "SDXL Turbo", Capabilities: image, Default: true},
	{Provider: provider.Local, ID: "ByteDance/SDXL-Lightning", DisplayName: "SDXL Lightning", Capabilities: image},
	{Provider: provider.Local, ID: "stabilityai/stable-diffusion-xl-base-1.0", DisplayName: "SDXL base", Capabilities: image},
	{Provider: provider.Local, ID: "stabilityai/stable-diffusion-2-1", DisplayName: "SD 2.1", Capabilities: image},
	{Provider: provider.Local, ID: "black-forest-labs/FLUX.1-schnell", DisplayName: "FLUX.1 schnell", Capabilities: image},
	{Provider: provider.Local, ID: "black-forest-labs/FLUX.1-dev", DisplayName: "FLUX.1 dev", Capabilities: image},

	// xAI
	{Provider: provider.XAI, ID: "grok-2-image", DisplayName: "Grok 2 Image", Capabilities: image, Default: true},

	// Replicate
	{Provider: provider.Replicate, ID: "stability-ai/sdxl", DisplayName: "SDXL", Capabilities: image, Default: true},
	{Provider: provider.Replicate, ID: "black-forest-labs/flux-schnell", DisplayName: "FLUX schnell", Capabilities: image},
	{Provider: provider.Replicate, ID: "minimax/video-01", DisplayName: "MiniMax Video-01", Capabilities: video, Default: true},
}

// openHubs are providers whose model namespace is an open hub: any
// "owner/name" identifier is accepted for the listed capabilities.
var openHubs = map[provider.Provider][]provider.Capability{
	provider.HuggingFace: image,
	provider.Replicate:   {provider.ImageGeneration, provider.VideoGeneration},
}
