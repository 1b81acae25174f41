package adapter

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/png"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zen-systems/mediagate/pkg/poll"
	"github.com/zen-systems/mediagate/pkg/provider"
)

// instantPoller keeps the production attempt ceiling but never sleeps.
func instantPoller() *poll.Poller {
	p := poll.New()
	p.Sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return p
}

func testBase(p provider.Provider, model string, capability provider.Capability, baseURL string) base {
	return base{
		provider:   p,
		model:      model,
		capability: capability,
		apiKey:     "test-key",
		baseURL:    baseURL,
		client:     &http.Client{Timeout: 5 * time.Second},
		poller:     instantPoller,
	}
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))))
	return buf.Bytes()
}

func testPNGBase64(t *testing.T) string {
	return base64.StdEncoding.EncodeToString(testPNG(t))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
