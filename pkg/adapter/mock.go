package adapter

import (
	"bytes"
	"context"
	"crypto/sha256"
	"image"
	"image/color"
	"image/png"
	"sync"
	"time"

	"github.com/zen-systems/mediagate/pkg/artifact"
	"github.com/zen-systems/mediagate/pkg/poll"
	"github.com/zen-systems/mediagate/pkg/provider"
)

// MockAdapter returns deterministic images, or MP4 stubs for video, for dry
// runs and tests. The same prompt always yields the same bytes.
type MockAdapter struct {
	ProviderID provider.Provider
	ModelID    string
	Cap        provider.Capability

	// Err, when set, is returned by every Generate call.
	Err error
	// Delay is waited out before answering, honoring cancellation.
	Delay time.Duration

	mu    sync.Mutex
	calls []string
}

// NewMockAdapter creates a mock image adapter.
func NewMockAdapter() *MockAdapter {
	return &MockAdapter{ProviderID: provider.Local, ModelID: "mock-1", Cap: provider.ImageGeneration}
}

func (a *MockAdapter) Provider() provider.Provider     { return a.ProviderID }
func (a *MockAdapter) Model() string                   { return a.ModelID }
func (a *MockAdapter) Capability() provider.Capability { return a.Cap }
func (a *MockAdapter) Close() error                    { return nil }

// Calls returns the prompts seen so far.
func (a *MockAdapter) Calls() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.calls...)
}

// Generate renders one small solid-color PNG per requested image, colored by
// the prompt hash.
func (a *MockAdapter) Generate(ctx context.Context, prompt string, opts Options) ([]*artifact.Artifact, error) {
	a.mu.Lock()
	a.calls = append(a.calls, prompt)
	a.mu.Unlock()

	if a.Delay > 0 {
		if err := poll.SleepWithContext(ctx, a.Delay); err != nil {
			return nil, err
		}
	}
	if a.Err != nil {
		return nil, a.Err
	}

	kind := artifact.KindImage
	var data []byte
	if a.Cap == provider.VideoGeneration {
		kind = artifact.KindVideo
		data = mockMP4(prompt)
	} else {
		var err error
		if data, err = mockPNG(prompt); err != nil {
			return nil, err
		}
	}

	n := opts.Count()
	out := make([]*artifact.Artifact, n)
	for i := range out {
		out[i] = artifact.New(kind, data, map[string]any{
			"provider": string(a.ProviderID),
			"model":    a.ModelID,
			"mock":     true,
		})
	}
	return out, nil
}

// mockMP4 returns an ftyp box followed by an mdat box holding the prompt hash.
// It is not playable but is recognized as MP4.
func mockMP4(prompt string) []byte {
	sum := sha256.Sum256([]byte(prompt))
	var buf bytes.Buffer
	buf.Write([]byte{0, 0, 0, 24})
	buf.WriteString("ftypmp42")
	buf.Write([]byte{0, 0, 0, 0})
	buf.WriteString("mp42isom")
	buf.Write([]byte{0, 0, 0, byte(8 + len(sum))})
	buf.WriteString("mdat")
	buf.Write(sum[:])
	return buf.Bytes()
}

func mockPNG(prompt string) ([]byte, error) {
	sum := sha256.Sum256([]byte(prompt))
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	c := color.RGBA{R: sum[0], G: sum[1], B: sum[2], A: 255}
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
