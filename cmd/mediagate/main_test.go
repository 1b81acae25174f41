package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/zen-systems/mediagate/pkg/adapter"
	"github.com/zen-systems/mediagate/pkg/config"
	"github.com/zen-systems/mediagate/pkg/fanout"
	"github.com/zen-systems/mediagate/pkg/metrics"
	"github.com/zen-systems/mediagate/pkg/provider"
)

func TestParseSet(t *testing.T) {
	got, err := parseSet([]string{"steps=20", "cfg=7.5", "hires=true", "sampler=DPM++ 2M", "empty="})
	if err != nil {
		t.Fatalf("parseSet: %v", err)
	}
	if got["steps"] != int64(20) {
		t.Errorf("steps = %#v, want int64(20)", got["steps"])
	}
	if got["cfg"] != 7.5 {
		t.Errorf("cfg = %#v, want 7.5", got["cfg"])
	}
	if got["hires"] != true {
		t.Errorf("hires = %#v, want true", got["hires"])
	}
	if got["sampler"] != "DPM++ 2M" {
		t.Errorf("sampler = %#v", got["sampler"])
	}
	if got["empty"] != "" {
		t.Errorf("empty = %#v", got["empty"])
	}

	if _, err := parseSet([]string{"novalue"}); err == nil {
		t.Error("expected error for missing '='")
	}
	if _, err := parseSet([]string{"=x"}); err == nil {
		t.Error("expected error for empty key")
	}
	if m, err := parseSet(nil); err != nil || m != nil {
		t.Errorf("parseSet(nil) = %v, %v", m, err)
	}
}

func TestRunGenerateDryRun(t *testing.T) {
	out := t.TempDir()
	g := &generateFlags{
		provider:    "openai",
		count:       3,
		concurrency: 2,
		out:         out,
		noArchive:   true,
		dryRun:      true,
		seed:        -1,
	}

	var buf bytes.Buffer
	if err := runGenerate(context.Background(), &buf, provider.ImageGeneration, "a red circle", g); err != nil {
		t.Fatalf("runGenerate: %v", err)
	}

	files, err := filepath.Glob(filepath.Join(out, "openai_*.png"))
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 3 {
		t.Fatalf("wrote %d files, want 3; output:\n%s", len(files), buf.String())
	}
	for _, f := range files {
		info, err := os.Stat(f)
		if err != nil {
			t.Fatal(err)
		}
		if info.Size() == 0 {
			t.Errorf("%s is empty", f)
		}
	}
	if !strings.Contains(buf.String(), "3 saved, 0 failed") {
		t.Errorf("missing summary in output:\n%s", buf.String())
	}
	if !strings.Contains(buf.String(), "concurrency 2") {
		t.Errorf("missing concurrency in output:\n%s", buf.String())
	}
}

func TestRunGenerateLocalIsSerialized(t *testing.T) {
	g := &generateFlags{
		provider:    "local",
		count:       2,
		concurrency: 4,
		out:         t.TempDir(),
		noArchive:   true,
		dryRun:      true,
		seed:        -1,
	}

	var buf bytes.Buffer
	if err := runGenerate(context.Background(), &buf, provider.ImageGeneration, "p", g); err != nil {
		t.Fatalf("runGenerate: %v", err)
	}
	if !strings.Contains(buf.String(), "concurrency 1") {
		t.Errorf("local provider should run one call at a time:\n%s", buf.String())
	}
}

func TestRunGenerateVideoDryRun(t *testing.T) {
	out := t.TempDir()
	g := &generateFlags{
		provider:  "luma",
		count:     1,
		out:       out,
		noArchive: true,
		dryRun:    true,
		seed:      -1,
	}

	var buf bytes.Buffer
	if err := runGenerate(context.Background(), &buf, provider.VideoGeneration, "waves", g); err != nil {
		t.Fatalf("runGenerate: %v", err)
	}
	files, err := filepath.Glob(filepath.Join(out, "luma_*.mp4"))
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 {
		t.Fatalf("wrote %d mp4 files, want 1; output:\n%s", len(files), buf.String())
	}
}

func TestInFlightGaugeCountsCalls(t *testing.T) {
	prev := collector
	collector = metrics.NewCollector("test", nil)
	defer func() { collector = prev }()

	mock := adapter.NewMockAdapter()
	mock.Delay = time.Minute

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	results := fanout.Run(ctx, 3, 3, generateCall(mock, "p", adapter.Options{}))

	deadline := time.Now().Add(5 * time.Second)
	for inFlight() != 3 {
		if time.Now().After(deadline) {
			t.Fatalf("in-flight gauge = %v, want 3", inFlight())
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	for range results {
	}
	if got := inFlight(); got != 0 {
		t.Errorf("in-flight gauge after completion = %v, want 0", got)
	}
}

func inFlight() float64 {
	families, err := collector.Registry().Gather()
	if err != nil {
		return -1
	}
	for _, fam := range families {
		if fam.GetName() == "test_fanout_in_flight" {
			return fam.GetMetric()[0].GetGauge().GetValue()
		}
	}
	return 0
}

func TestGenerateFlagsOptions(t *testing.T) {
	g := &generateFlags{seed: 42, set: []string{"style_preset=anime"}}
	g.opts.AspectRatio = "16:9"

	opts, err := g.options()
	if err != nil {
		t.Fatal(err)
	}
	if opts.Seed == nil || *opts.Seed != 42 {
		t.Errorf("seed = %v, want 42", opts.Seed)
	}
	if opts.AspectRatio != "16:9" {
		t.Errorf("aspect ratio = %q", opts.AspectRatio)
	}
	if opts.Extra["style_preset"] != "anime" {
		t.Errorf("extra = %v", opts.Extra)
	}

	g.seed = -1
	opts, err = g.options()
	if err != nil {
		t.Fatal(err)
	}
	if opts.Seed != nil {
		t.Errorf("seed = %v, want nil", *opts.Seed)
	}
}

func TestProviderRows(t *testing.T) {
	settings := &config.Settings{Credentials: map[provider.Provider]string{provider.Luma: "k"}}

	status := make(map[provider.Provider]providerRow)
	for _, row := range providerRows(settings) {
		status[row.provider] = row
	}
	if len(status) != len(provider.All()) {
		t.Fatalf("got %d rows, want %d", len(status), len(provider.All()))
	}
	if status[provider.Luma].status != "ready" || status[provider.Luma].video != "yes" {
		t.Errorf("luma row = %+v", status[provider.Luma])
	}
	if status[provider.Local].status != "ready" {
		t.Errorf("local needs no key: %+v", status[provider.Local])
	}
	if status[provider.OpenAI].status != "no key" || status[provider.OpenAI].video != "-" {
		t.Errorf("openai row = %+v", status[provider.OpenAI])
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("a much longer prompt", 10); got != "a much ..." {
		t.Errorf("truncate = %q", got)
	}
}
