package adapter

import (
	"fmt"
	"strconv"
	"strings"
)

// Options are the per-call generation parameters. Zero values mean "vendor
// default". Adapters read only the fields their vendor understands; anything
// else can be passed verbatim through Extra.
type Options struct {
	N              int
	Size           string
	Width          int
	Height         int
	AspectRatio    string
	Quality        string
	Style          string
	OutputFormat   string
	ResponseFormat string
	NegativePrompt string
	Seed           *int64
	Steps          int
	GuidanceScale  float64

	// Video
	Resolution string
	Duration   string
	Loop       bool

	// Reference media, Luma
	ImageRef       []Ref
	StyleRef       []Ref
	CharacterRef   map[string][]string
	ModifyImageRef *Ref

	Extra map[string]any
}

// Ref is a reference image by URL with an influence weight.
type Ref struct {
	URL    string  `json:"url"`
	Weight float64 `json:"weight,omitempty"`
}

// Get returns an Extra value.
func (o Options) Get(key string) (any, bool) {
	v, ok := o.Extra[key]
	return v, ok
}

// Float returns a numeric Extra value as float64.
func (o Options) Float(key string) (float64, bool) {
	v, ok := o.Get(key)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

// Int returns an integral Extra value.
func (o Options) Int(key string) (int64, bool) {
	f, ok := o.Float(key)
	if !ok || f != float64(int64(f)) {
		return 0, false
	}
	return int64(f), true
}

// Bool returns a boolean Extra value.
func (o Options) Bool(key string) (bool, bool) {
	v, ok := o.Get(key)
	if !ok {
		return false, false
	}
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		parsed, err := strconv.ParseBool(b)
		return parsed, err == nil
	}
	return false, false
}

// Clone returns a copy whose maps and slices can be modified freely.
func (o Options) Clone() Options {
	c := o
	if o.Seed != nil {
		s := *o.Seed
		c.Seed = &s
	}
	c.ImageRef = append([]Ref(nil), o.ImageRef...)
	c.StyleRef = append([]Ref(nil), o.StyleRef...)
	if o.ModifyImageRef != nil {
		r := *o.ModifyImageRef
		c.ModifyImageRef = &r
	}
	if o.CharacterRef != nil {
		c.CharacterRef = make(map[string][]string, len(o.CharacterRef))
		for k, v := range o.CharacterRef {
			c.CharacterRef[k] = append([]string(nil), v...)
		}
	}
	if o.Extra != nil {
		c.Extra = make(map[string]any, len(o.Extra))
		for k, v := range o.Extra {
			c.Extra[k] = v
		}
	}
	return c
}

// Count returns N, at least 1.
func (o Options) Count() int {
	if o.N < 1 {
		return 1
	}
	return o.N
}

// Dimensions returns Width and Height, falling back to a "WxH" Size, then
// to def for both.
func (o Options) Dimensions(def int) (int, int) {
	w, h := o.Width, o.Height
	if (w == 0 || h == 0) && o.Size != "" {
		if sw, sh, err := ParseSize(o.Size); err == nil {
			if w == 0 {
				w = sw
			}
			if h == 0 {
				h = sh
			}
		}
	}
	if w == 0 {
		w = def
	}
	if h == 0 {
		h = def
	}
	return w, h
}

// ParseSize parses "1024x768".
func ParseSize(s string) (int, int, error) {
	ws, hs, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !ok {
		return 0, 0, fmt.Errorf("size %q is not WIDTHxHEIGHT", s)
	}
	w, err := strconv.Atoi(ws)
	if err != nil {
		return 0, 0, fmt.Errorf("size %q: %w", s, err)
	}
	h, err := strconv.Atoi(hs)
	if err != nil {
		return 0, 0, fmt.Errorf("size %q: %w", s, err)
	}
	if w <= 0 || h <= 0 {
		return 0, 0, fmt.Errorf("size %q must be positive", s)
	}
	return w, h, nil
}

// mergeExtra copies Extra into dst without overwriting keys already set.
func (o Options) mergeExtra(dst map[string]any) {
	for k, v := range o.Extra {
		if _, exists := dst[k]; !exists {
			dst[k] = v
		}
	}
}
