// Package provider defines the closed set of generation vendors and the
// capabilities they can be asked for.
package provider

import (
	"errors"
	"fmt"
	"strings"
)

// Provider identifies a generation vendor. The set is closed; Parse rejects
// anything that is not listed in All.
type Provider string

const (
	OpenAI      Provider = "openai"
	Google      Provider = "google"
	StabilityAI Provider = "stabilityai"
	Luma        Provider = "luma"
	HuggingFace Provider = "huggingface"
	Local       Provider = "local"
	XAI         Provider = "xai"
	Replicate   Provider = "replicate"
)

// ErrUnknown is returned by Parse for identifiers outside the closed set.
var ErrUnknown = errors.New("unknown provider")

var all = []Provider{OpenAI, Google, StabilityAI, Luma, HuggingFace, Local, XAI, Replicate}

var aliases = map[string]Provider{
	"stability":    StabilityAI,
	"stability-ai": StabilityAI,
	"stability_ai": StabilityAI,
	"hf":           HuggingFace,
	"grok":         XAI,
	"gemini":       Google,
}

// All returns every provider in a stable order.
func All() []Provider {
	out := make([]Provider, len(all))
	copy(out, all)
	return out
}

// Parse normalizes s to a Provider.
func Parse(s string) (Provider, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	for _, p := range all {
		if string(p) == key {
			return p, nil
		}
	}
	if p, ok := aliases[key]; ok {
		return p, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknown, s)
}

// Valid reports whether p is a member of the closed set.
func (p Provider) Valid() bool {
	for _, known := range all {
		if p == known {
			return true
		}
	}
	return false
}

func (p Provider) String() string { return string(p) }

// Strings renders a provider list for error messages and CLI output.
func Strings(ps []Provider) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = string(p)
	}
	return out
}

// Capability is a kind of generation a (provider, model) pair can serve.
type Capability string

const (
	ImageGeneration Capability = "image_generation"
	VideoGeneration Capability = "video_generation"
)

// ParseCapability accepts the canonical names plus the short forms "image"
// and "video".
func ParseCapability(s string) (Capability, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "image", "image_generation", "image-generation":
		return ImageGeneration, nil
	case "video", "video_generation", "video-generation":
		return VideoGeneration, nil
	}
	return "", fmt.Errorf("unknown capability %q", s)
}

// Kind is the artifact kind produced by the capability.
func (c Capability) Kind() string {
	if c == VideoGeneration {
		return "video"
	}
	return "image"
}
