package adapter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zen-systems/mediagate/pkg/artifact"
	"github.com/zen-systems/mediagate/pkg/provider"
)

func TestOpenAIEndToEnd(t *testing.T) {
	img := testPNGBase64(t)
	var body map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/images/generations", r.URL.Path)
		assert.Equal(t, "Bearer key-openai", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"created": 1700000000,
			"data":    []map[string]any{{"b64_json": img, "revised_prompt": "A bright red circle"}},
		})
	}))
	defer srv.Close()

	f := &Factory{Settings: allCredentials()}
	a, err := f.New("openai", provider.ImageGeneration, "", WithBaseURL(srv.URL+"/v1"))
	require.NoError(t, err)

	arts, err := a.Generate(context.Background(), "a red circle", Options{})
	require.NoError(t, err)
	require.Len(t, arts, 1)

	art := arts[0]
	assert.NotEmpty(t, art.Data)
	assert.Equal(t, artifact.KindImage, art.Kind)
	assert.Equal(t, "image/png", art.MIMEType)
	assert.Equal(t, "dall-e-3", art.MetaString("model"))
	assert.Equal(t, "openai", art.MetaString("provider"))
	assert.Equal(t, "1024x1024", art.MetaString("size"))
	assert.Equal(t, "standard", art.MetaString("quality"))
	assert.Equal(t, "vivid", art.MetaString("style"))
	assert.Equal(t, "A bright red circle", art.MetaString("revised_prompt"))

	assert.Equal(t, "a red circle", body["prompt"])
	assert.Equal(t, "dall-e-3", body["model"])
	assert.Equal(t, 1.0, body["n"])
	assert.Equal(t, "b64_json", body["response_format"])
}

func TestOpenAIDallE3ForcesSingleImage(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		writeJSON(w, map[string]any{"data": []map[string]any{{"b64_json": testPNGBase64(t)}}})
	}))
	defer srv.Close()

	a := newOpenAIAdapter(testBase(provider.OpenAI, "dall-e-3", provider.ImageGeneration, srv.URL))
	_, err := a.Generate(context.Background(), "p", Options{N: 4, Quality: "hd", Style: "natural"})
	require.NoError(t, err)
	assert.Equal(t, 1.0, body["n"])
	assert.Equal(t, "hd", body["quality"])
	assert.Equal(t, "natural", body["style"])
}

func TestOpenAIURLResponse(t *testing.T) {
	png := testPNG(t)
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/images/generations", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "url", body["response_format"])
		writeJSON(w, map[string]any{"data": []map[string]any{
			{"url": srv.URL + "/files/a.png"},
			{"url": srv.URL + "/files/b.png"},
		}})
	})
	mux.HandleFunc("/files/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(png)
	})

	a := newOpenAIAdapter(testBase(provider.OpenAI, "dall-e-2", provider.ImageGeneration, srv.URL))
	arts, err := a.Generate(context.Background(), "p", Options{N: 2, ResponseFormat: "url"})
	require.NoError(t, err)
	require.Len(t, arts, 2)
	assert.Equal(t, png, arts[0].Data)
	assert.Equal(t, png, arts[1].Data)
}

func TestOpenAIContentPolicy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":"content_policy_violation","message":"Your request was rejected by our safety system.","type":"invalid_request_error","param":null}}`))
	}))
	defer srv.Close()

	a := newOpenAIAdapter(testBase(provider.OpenAI, "dall-e-3", provider.ImageGeneration, srv.URL))
	_, err := a.Generate(context.Background(), "p", Options{})
	var rejected *ContentRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, provider.OpenAI, rejected.Provider)
}

func TestOpenAIServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
	}))
	defer srv.Close()

	a := newOpenAIAdapter(testBase(provider.OpenAI, "gpt-image-1", provider.ImageGeneration, srv.URL))
	_, err := a.Generate(context.Background(), "p", Options{})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
	assert.True(t, IsTransient(err))
}

func TestOpenAIEmptyData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"created": 1, "data": []any{}})
	}))
	defer srv.Close()

	a := newOpenAIAdapter(testBase(provider.OpenAI, "gpt-image-1", provider.ImageGeneration, srv.URL))
	_, err := a.Generate(context.Background(), "p", Options{})
	var malformed *MalformedResponseError
	require.ErrorAs(t, err, &malformed)
}

func TestXAIParams(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/images/generations", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		writeJSON(w, map[string]any{"data": []map[string]any{
			{"b64_json": testPNGBase64(t)},
			{"b64_json": testPNGBase64(t)},
		}})
	}))
	defer srv.Close()

	a := newXAIAdapter(testBase(provider.XAI, "grok-2-image", provider.ImageGeneration, srv.URL))
	arts, err := a.Generate(context.Background(), "p", Options{N: 2, Size: "512x512", Quality: "hd"})
	require.NoError(t, err)
	assert.Len(t, arts, 2)
	assert.Equal(t, "xai", arts[0].MetaString("provider"))

	assert.Equal(t, 2.0, body["n"])
	assert.Equal(t, "b64_json", body["response_format"])
	assert.NotContains(t, body, "size")
	assert.NotContains(t, body, "quality")
}

func TestOpenAIPassesExtraFields(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		writeJSON(w, map[string]any{"data": []map[string]any{{"b64_json": testPNGBase64(t)}}})
	}))
	defer srv.Close()

	a := newOpenAIAdapter(testBase(provider.OpenAI, "gpt-image-1", provider.ImageGeneration, srv.URL))
	_, err := a.Generate(context.Background(), "p", Options{
		Size:  "1536x1024",
		Extra: map[string]any{"background": "transparent", "moderation": "low", "size": "256x256"},
	})
	require.NoError(t, err)
	assert.Equal(t, "transparent", body["background"])
	assert.Equal(t, "low", body["moderation"])
	assert.Equal(t, "1536x1024", body["size"], "typed fields win over extras")
	assert.Equal(t, "p", body["prompt"])
}

func TestXAIPassesExtraFields(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		writeJSON(w, map[string]any{"data": []map[string]any{{"b64_json": testPNGBase64(t)}}})
	}))
	defer srv.Close()

	a := newXAIAdapter(testBase(provider.XAI, "grok-2-image", provider.ImageGeneration, srv.URL))
	_, err := a.Generate(context.Background(), "p", Options{Extra: map[string]any{"user": "u-1", "n": int64(3)}})
	require.NoError(t, err)
	assert.Equal(t, "u-1", body["user"])
	assert.Equal(t, 1.0, body["n"])
}
