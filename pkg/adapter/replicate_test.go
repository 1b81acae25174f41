package adapter

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zen-systems/mediagate/pkg/artifact"
	"github.com/zen-systems/mediagate/pkg/provider"
)

func TestReplicateSyncListOutput(t *testing.T) {
	png := testPNG(t)
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	var body replicateRequest
	mux.HandleFunc("/models/black-forest-labs/flux-schnell/predictions", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "wait", r.Header.Get("Prefer"))
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "p-1",
			"status": "succeeded",
			"output": []string{srv.URL + "/out/0.png", srv.URL + "/out/1.png"},
		})
	})
	mux.HandleFunc("/out/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(png)
	})

	a := newReplicateAdapter(testBase(provider.Replicate, "black-forest-labs/flux-schnell", provider.ImageGeneration, srv.URL))
	arts, err := a.Generate(context.Background(), "a red circle", Options{N: 2, AspectRatio: "1:1"})
	require.NoError(t, err)
	require.Len(t, arts, 2)
	assert.Equal(t, png, arts[1].Data)
	assert.Equal(t, "p-1", arts[0].MetaString("prediction_id"))
	assert.Equal(t, "1:1", arts[0].MetaString("aspect_ratio"))

	assert.Empty(t, body.Version)
	assert.Equal(t, "a red circle", body.Input["prompt"])
	assert.EqualValues(t, 2, body.Input["num_outputs"])
}

func TestReplicateDataURIOutput(t *testing.T) {
	png := testPNG(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "p-2",
			"status": "succeeded",
			"output": "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
		})
	}))
	defer srv.Close()

	a := newReplicateAdapter(testBase(provider.Replicate, "stability-ai/sdxl", provider.ImageGeneration, srv.URL))
	arts, err := a.Generate(context.Background(), "p", Options{})
	require.NoError(t, err)
	require.Len(t, arts, 1)
	assert.Equal(t, png, arts[0].Data)
}

func TestReplicatePinnedVersion(t *testing.T) {
	var body replicateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/predictions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "p-3",
			"status": "succeeded",
			"output": "data:image/png;base64," + testPNGBase64(t),
		})
	}))
	defer srv.Close()

	a := newReplicateAdapter(testBase(provider.Replicate, "stability-ai/sdxl:39ed52f2a78e", provider.ImageGeneration, srv.URL))
	_, err := a.Generate(context.Background(), "p", Options{})
	require.NoError(t, err)
	assert.Equal(t, "39ed52f2a78e", body.Version)
}

func TestReplicatePollsRunningPrediction(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	var checks atomic.Int32
	mux.HandleFunc("/models/minimax/video-01/predictions", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "p-4",
			"status": "starting",
			"urls":   map[string]string{"get": srv.URL + "/predictions/p-4"},
		})
	})
	mux.HandleFunc("/predictions/p-4", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		resp := map[string]any{"id": "p-4", "status": "processing"}
		if checks.Add(1) >= 2 {
			resp["status"] = "succeeded"
			resp["output"] = srv.URL + "/files/out.mp4"
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("/files/out.mp4", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("\x00\x00\x00\x18ftypmp42 fake video"))
	})

	a := newReplicateAdapter(testBase(provider.Replicate, "minimax/video-01", provider.VideoGeneration, srv.URL))
	arts, err := a.Generate(context.Background(), "waves", Options{Duration: "6s"})
	require.NoError(t, err)
	require.Len(t, arts, 1)
	assert.Equal(t, artifact.KindVideo, arts[0].Kind)
	assert.EqualValues(t, 2, checks.Load())
	assert.EqualValues(t, 6, arts[0].Metadata["duration"])
}

func TestReplicateNSFWIsRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "p-5",
			"status": "failed",
			"error":  "NSFW content detected. Try running it again, or try a different prompt.",
		})
	}))
	defer srv.Close()

	a := newReplicateAdapter(testBase(provider.Replicate, "stability-ai/sdxl", provider.ImageGeneration, srv.URL))
	_, err := a.Generate(context.Background(), "p", Options{})
	var rejected *ContentRejectedError
	require.ErrorAs(t, err, &rejected)
}

func TestReplicateFailedPrediction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "p-6", "status": "canceled"})
	}))
	defer srv.Close()

	a := newReplicateAdapter(testBase(provider.Replicate, "stability-ai/sdxl", provider.ImageGeneration, srv.URL))
	_, err := a.Generate(context.Background(), "p", Options{})
	var failed *GenerationFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, "p-6", failed.JobID)
	assert.Equal(t, "prediction canceled", failed.Reason)
}
