package adapter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zen-systems/mediagate/pkg/provider"
)

func TestHuggingFaceRawImage(t *testing.T) {
	png := testPNG(t)
	var body huggingFaceRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/black-forest-labs/FLUX.1-schnell", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
	}))
	defer srv.Close()

	a := newHuggingFaceAdapter(testBase(provider.HuggingFace, "black-forest-labs/FLUX.1-schnell", provider.ImageGeneration, srv.URL))
	arts, err := a.Generate(context.Background(), "a red circle", Options{Size: "768x512", Steps: 4})
	require.NoError(t, err)
	require.Len(t, arts, 1)
	assert.Equal(t, png, arts[0].Data)
	assert.Equal(t, "black-forest-labs/FLUX.1-schnell", arts[0].MetaString("model"))

	assert.Equal(t, "a red circle", body.Inputs)
	assert.EqualValues(t, 768, body.Parameters["width"])
	assert.EqualValues(t, 512, body.Parameters["height"])
	assert.EqualValues(t, 4, body.Parameters["num_inference_steps"])
}

func TestHuggingFaceModelLoading(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"Model is currently loading","estimated_time":42.5}`))
	}))
	defer srv.Close()

	a := newHuggingFaceAdapter(testBase(provider.HuggingFace, "stabilityai/stable-diffusion-2-1", provider.ImageGeneration, srv.URL))
	_, err := a.Generate(context.Background(), "p", Options{})

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.Temporary)
	assert.True(t, IsTransient(err))
	assert.Contains(t, apiErr.Body, "42")
}

func TestHuggingFaceNotAnImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>maintenance</html>`))
	}))
	defer srv.Close()

	a := newHuggingFaceAdapter(testBase(provider.HuggingFace, "owner/model", provider.ImageGeneration, srv.URL))
	_, err := a.Generate(context.Background(), "p", Options{})

	var malformed *MalformedResponseError
	require.ErrorAs(t, err, &malformed)
	assert.Contains(t, malformed.Reason, "not an image")
}
