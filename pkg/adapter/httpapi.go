package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 2048

// rawResponse is a fully read HTTP response.
type rawResponse struct {
	Status      int
	ContentType string
	Body        []byte
}

// request describes one outbound vendor call.
type request struct {
	Method      string
	URL         string
	Body        io.Reader
	ContentType string
	Accept      string
	Header      http.Header
}

// do sends req with the adapter's client and reads the whole body. Non-2xx
// statuses are not errors here; callers decide.
func (b *base) do(ctx context.Context, req request) (*rawResponse, error) {
	method := req.Method
	if method == "" {
		method = http.MethodPost
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, req.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if req.ContentType != "" {
		httpReq.Header.Set("Content-Type", req.ContentType)
	}
	if req.Accept != "" {
		httpReq.Header.Set("Accept", req.Accept)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	client := b.client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, &APIError{Provider: b.provider, Err: fmt.Errorf("%s request failed: %w", b.provider, err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &APIError{Provider: b.provider, Status: resp.StatusCode, Err: fmt.Errorf("failed to read response body: %w", err)}
	}
	return &rawResponse{
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

// doJSON posts body as JSON and decodes a 2xx (or the expected status)
// response into out.
func (b *base) doJSON(ctx context.Context, method, url string, header http.Header, body any, out any, expect ...int) (*rawResponse, error) {
	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(jsonBody)
	}

	req := request{Method: method, URL: url, Body: reader, Accept: "application/json", Header: header}
	if body != nil {
		req.ContentType = "application/json"
	}
	resp, err := b.do(ctx, req)
	if err != nil {
		return nil, err
	}
	if !statusOK(resp.Status, expect) {
		return resp, b.statusError(resp)
	}
	if out != nil {
		if err := json.Unmarshal(resp.Body, out); err != nil {
			return resp, b.malformed("response is not valid JSON", resp.Body)
		}
	}
	return resp, nil
}

func statusOK(status int, expect []int) bool {
	if len(expect) == 0 {
		return status >= 200 && status < 300
	}
	for _, s := range expect {
		if status == s {
			return true
		}
	}
	return false
}

// statusError builds the APIError for an unexpected status.
func (b *base) statusError(resp *rawResponse) *APIError {
	body := strings.TrimSpace(string(resp.Body))
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody] + "..."
	}
	return &APIError{Provider: b.provider, Status: resp.Status, Body: body}
}

func bearer(token string) http.Header {
	return http.Header{"Authorization": {"Bearer " + token}}
}
