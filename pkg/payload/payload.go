// Package payload turns vendor response items into content bytes. A vendor
// hands back content in one of three shapes: inline base64, a URL to fetch,
// or a raw response body.
package payload

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/sync/errgroup"
)

// MaxFetchBytes bounds a single URL download.
const MaxFetchBytes = 512 << 20

// Item is one vendor-returned content reference. Exactly one field is
// expected to be set; when several are, Raw wins over B64 over URL.
type Item struct {
	B64 string
	URL string
	Raw []byte
}

// Shape names the populated field, for logs and errors.
func (it Item) Shape() string {
	switch {
	case it.Raw != nil:
		return "raw"
	case it.B64 != "":
		return "base64"
	case it.URL != "":
		if strings.HasPrefix(it.URL, "data:") {
			return "data-uri"
		}
		return "url"
	default:
		return "empty"
	}
}

// FetchError reports a non-2xx response while downloading content.
type FetchError struct {
	URL    string
	Status int
	Body   string
}

func (e *FetchError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("fetch %s: status %d: %s", e.URL, e.Status, e.Body)
}

// MalformedError reports an item that carries no decodable content.
type MalformedError struct {
	Payload string
	Reason  string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed payload (%s): %s", e.Reason, e.Payload)
}

// Malformed builds a MalformedError, rendering v compactly.
func Malformed(reason string, v any) *MalformedError {
	return &MalformedError{Payload: Describe(v), Reason: reason}
}

// Decoder resolves Items. The zero value uses http.DefaultClient.
type Decoder struct {
	Client *http.Client
	// Header is sent with every URL fetch, e.g. a vendor key for signed
	// download endpoints.
	Header http.Header
}

// Decode returns the content of a single item. Base64 and raw items are
// decoded without I/O.
func (d *Decoder) Decode(ctx context.Context, it Item) ([]byte, error) {
	switch {
	case it.Raw != nil:
		if len(it.Raw) == 0 {
			return nil, &MalformedError{Payload: "<empty body>", Reason: "raw body is empty"}
		}
		return it.Raw, nil
	case it.B64 != "":
		return decodeBase64(it.B64)
	case strings.HasPrefix(it.URL, "data:"):
		return decodeDataURI(it.URL)
	case it.URL != "":
		return d.fetch(ctx, it.URL)
	default:
		return nil, &MalformedError{Payload: "{}", Reason: "no base64, url or body"}
	}
}

// DecodeAll decodes items concurrently and returns their contents in input
// order. The first failure cancels the remaining fetches.
func (d *Decoder) DecodeAll(ctx context.Context, items []Item) ([][]byte, error) {
	out := make([][]byte, len(items))
	g, gctx := errgroup.WithContext(ctx)
	for i, it := range items {
		g.Go(func() error {
			data, err := d.Decode(gctx, it)
			if err != nil {
				return fmt.Errorf("item %d: %w", i, err)
			}
			out[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (d *Decoder) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", url, err)
	}
	for k, vs := range d.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &FetchError{URL: url, Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxFetchBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	if len(data) > MaxFetchBytes {
		return nil, fmt.Errorf("fetch %s: content exceeds %d bytes", url, MaxFetchBytes)
	}
	if len(data) == 0 {
		return nil, &MalformedError{Payload: url, Reason: "url returned empty body"}
	}
	return data, nil
}

// FromFields builds an Item from the first non-empty string field among
// keys. Values that look like http(s) URLs become URL items, data: URIs and
// everything else are treated as inline base64.
func FromFields(fields map[string]any, keys ...string) (Item, bool) {
	for _, k := range keys {
		s, ok := fields[k].(string)
		if !ok || s == "" {
			continue
		}
		return FromString(s), true
	}
	return Item{}, false
}

// FromString classifies a single string reference.
func FromString(s string) Item {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "data:") {
		return Item{URL: s}
	}
	return Item{B64: s}
}

// Describe renders v for error messages, truncated.
func Describe(v any) string {
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case []byte:
		s = string(t)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			s = fmt.Sprintf("%v", v)
		} else {
			s = string(b)
		}
	}
	if len(s) > 512 {
		s = s[:512] + "..."
	}
	return s
}

func decodeBase64(orig string) ([]byte, error) {
	s := strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', ' ', '\t':
			return -1
		}
		return r
	}, orig)

	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if data, err := enc.DecodeString(s); err == nil {
			if len(data) == 0 {
				break
			}
			return data, nil
		}
	}
	return nil, Malformed("invalid base64", orig)
}

func decodeDataURI(uri string) ([]byte, error) {
	header, body, ok := strings.Cut(uri, ",")
	if !ok {
		return nil, Malformed("data uri without payload", uri)
	}
	if !strings.HasSuffix(header, ";base64") {
		return nil, Malformed("data uri is not base64", header)
	}
	return decodeBase64(body)
}
