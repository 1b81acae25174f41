package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zen-systems/mediagate/pkg/adapter"
	"github.com/zen-systems/mediagate/pkg/archive"
	"github.com/zen-systems/mediagate/pkg/artifact"
	"github.com/zen-systems/mediagate/pkg/fanout"
	"github.com/zen-systems/mediagate/pkg/provider"
)

// generateFlags are shared by the image and video commands.
type generateFlags struct {
	provider    string
	model       string
	count       int
	concurrency int
	out         string
	noArchive   bool
	lenient     bool
	dryRun      bool
	set         []string

	opts adapter.Options
	seed int64
}

func (g *generateFlags) register(cmd *cobra.Command, defaultProvider string) {
	f := cmd.Flags()
	f.StringVar(&g.provider, "provider", defaultProvider, "vendor to generate with")
	f.StringVar(&g.model, "model", "", "model identifier or alias (default: the provider's default)")
	f.IntVar(&g.count, "count", 1, "number of independent generate calls")
	f.IntVar(&g.concurrency, "concurrency", 0, "max calls in flight (default: min(count, 4); always 1 for local)")
	f.StringVar(&g.out, "out", ".", "directory to write results to")
	f.BoolVar(&g.noArchive, "no-archive", false, "do not record results in ~/.mediagate/archive")
	f.BoolVar(&g.lenient, "lenient", false, "treat vendor transport failures as empty results")
	f.BoolVar(&g.dryRun, "dry-run", false, "render placeholder images without calling a vendor")
	f.StringArrayVar(&g.set, "set", nil, "extra vendor parameter as key=value (repeatable)")
	f.StringVar(&g.opts.AspectRatio, "aspect-ratio", "", "aspect ratio, e.g. 16:9")
	f.StringVar(&g.opts.NegativePrompt, "negative-prompt", "", "what the output should not contain")
	f.Int64Var(&g.seed, "seed", -1, "random seed (-1: vendor chooses)")
}

func (g *generateFlags) options() (adapter.Options, error) {
	opts := g.opts.Clone()
	if g.seed >= 0 {
		seed := g.seed
		opts.Seed = &seed
	}
	extra, err := parseSet(g.set)
	if err != nil {
		return adapter.Options{}, err
	}
	opts.Extra = extra
	return opts, nil
}

func imageCmd() *cobra.Command {
	var g generateFlags

	cmd := &cobra.Command{
		Use:   "image [prompt]",
		Short: "Generate images from a prompt",
		Long: `Generates images with the chosen provider and writes them to --out.

	Use --count to issue several independent calls; they run concurrently up to
	--concurrency and results are written as they complete.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd.Context(), cmd.OutOrStdout(), provider.ImageGeneration, args[0], &g)
		},
	}

	g.register(cmd, string(provider.OpenAI))
	f := cmd.Flags()
	f.IntVar(&g.opts.N, "n", 0, "images per call, where the vendor supports it")
	f.StringVar(&g.opts.Size, "size", "", "image size as WIDTHxHEIGHT")
	f.StringVar(&g.opts.Quality, "quality", "", "quality tier, e.g. standard or hd")
	f.StringVar(&g.opts.Style, "style", "", "style or style preset")
	f.StringVar(&g.opts.OutputFormat, "output-format", "", "output format, e.g. png, jpeg, webp")
	f.IntVar(&g.opts.Steps, "steps", 0, "inference steps (stability v1, huggingface, local)")
	f.Float64Var(&g.opts.GuidanceScale, "guidance-scale", 0, "classifier-free guidance scale")

	return cmd
}

func videoCmd() *cobra.Command {
	var g generateFlags

	cmd := &cobra.Command{
		Use:   "video [prompt]",
		Short: "Generate a video from a prompt",
		Long: `Submits a video job with the chosen provider, waits for it to finish
	and writes the result to --out. Video jobs take minutes.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd.Context(), cmd.OutOrStdout(), provider.VideoGeneration, args[0], &g)
		},
	}

	g.register(cmd, string(provider.Luma))
	f := cmd.Flags()
	f.StringVar(&g.opts.Resolution, "resolution", "", "resolution, e.g. 720p")
	f.StringVar(&g.opts.Duration, "duration", "", "duration, e.g. 5s")
	f.BoolVar(&g.opts.Loop, "loop", false, "loop the video")

	return cmd
}

func runGenerate(ctx context.Context, w io.Writer, capability provider.Capability, prompt string, g *generateFlags) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	opts, err := g.options()
	if err != nil {
		return err
	}

	a, err := buildAdapter(capability, g)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("failed to close adapter", zap.Error(err))
		}
	}()

	var store *archive.Store
	if !g.noArchive {
		store, err = archive.NewStore("")
		if err != nil {
			return fmt.Errorf("failed to open archive: %w", err)
		}
	}

	limit := g.concurrency
	if limit <= 0 || a.Provider() == provider.Local {
		limit = fanout.Limit(a.Provider(), g.count)
	}

	fmt.Fprintf(w, "Generating %d x %s with %s/%s (concurrency %d)\n",
		g.count, capability.Kind(), a.Provider(), a.Model(), limit)

	prefix := fmt.Sprintf("%s_%s", a.Provider(), time.Now().Format("20060102_150405"))
	results := fanout.Run(ctx, g.count, limit, generateCall(a, prompt, opts))

	var saved, failed int
	for r := range results {
		if r.Err != nil {
			failed++
			fmt.Fprintf(w, "[%d] call %d failed: %v\n", r.Slot+1, r.Index+1, r.Err)
			continue
		}
		if len(r.Artifacts) == 0 {
			fmt.Fprintf(w, "[%d] call %d returned nothing\n", r.Slot+1, r.Index+1)
			continue
		}
		for _, art := range r.Artifacts {
			art = art.WithMetadata("call", r.Index+1)
			path, err := save(store, g.out, fmt.Sprintf("%s_%d", prefix, r.Index+1), prompt, art)
			if err != nil {
				return err
			}
			saved++
			fmt.Fprintf(w, "[%d] %s (%s, %d bytes)\n", r.Slot+1, path, art.MIMEType, art.Size())
		}
	}

	fmt.Fprintf(w, "%d saved, %d failed\n", saved, failed)
	if failed > 0 && saved == 0 {
		return fmt.Errorf("all %d calls failed", failed)
	}
	return nil
}

// generateCall is one fan-out slot. Each running call counts toward the
// in-flight gauge.
func generateCall(a adapter.Adapter, prompt string, opts adapter.Options) fanout.Func {
	return func(ctx context.Context, index int) ([]*artifact.Artifact, error) {
		if collector != nil {
			collector.FanoutStarted()
			defer collector.FanoutFinished()
		}
		return a.Generate(ctx, prompt, opts)
	}
}

func buildAdapter(capability provider.Capability, g *generateFlags) (adapter.Adapter, error) {
	if g.dryRun {
		mock := adapter.NewMockAdapter()
		mock.Cap = capability
		if p, err := provider.Parse(g.provider); err == nil {
			mock.ProviderID = p
		}
		if g.model != "" {
			mock.ModelID = g.model
		}
		return adapter.Instrument(mock, collector, logger), nil
	}

	f, err := newFactory()
	if err != nil {
		return nil, err
	}
	return f.New(g.provider, capability, g.model, adapter.WithLenient(g.lenient))
}

// save exports art to dir and, when store is set, archives it.
func save(store *archive.Store, dir, prefix, prompt string, art *artifact.Artifact) (string, error) {
	if store != nil {
		if _, _, err := store.Put(art, prompt); err != nil {
			return "", fmt.Errorf("failed to archive %s: %w", art.ID, err)
		}
	}
	exported, err := archive.Export(dir, prefix, art)
	if err != nil {
		return "", fmt.Errorf("failed to write %s: %w", art.ID, err)
	}
	return exported.Path, nil
}
