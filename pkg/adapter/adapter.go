package adapter

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/zen-systems/mediagate/pkg/artifact"
	"github.com/zen-systems/mediagate/pkg/metrics"
	"github.com/zen-systems/mediagate/pkg/payload"
	"github.com/zen-systems/mediagate/pkg/poll"
	"github.com/zen-systems/mediagate/pkg/provider"
)

// Adapter defines the interface for media generation provider adapters.
type Adapter interface {
	// Generate sends a prompt to the vendor and returns the generated
	// artifacts in vendor order. A nil error means at least one artifact.
	Generate(ctx context.Context, prompt string, opts Options) ([]*artifact.Artifact, error)

	// Provider returns the vendor this adapter talks to.
	Provider() provider.Provider

	// Model returns the model identifier requests are sent to.
	Model() string

	// Capability returns what this adapter was constructed to generate.
	Capability() provider.Capability

	// Close releases resources held by the adapter. Only the local
	// pipeline holds any; for the rest it is a no-op.
	Close() error
}

// base carries what every adapter is constructed with. Vendor adapters embed
// it and never modify it after construction.
type base struct {
	provider   provider.Provider
	model      string
	capability provider.Capability

	apiKey  string
	baseURL string
	client  *http.Client
	logger  *zap.Logger
	metrics *metrics.Collector
	poller  func() *poll.Poller
}

func (b *base) Provider() provider.Provider { return b.provider }

func (b *base) Model() string { return b.model }

func (b *base) Capability() provider.Capability { return b.capability }

func (b *base) Close() error { return nil }

func (b *base) log() *zap.Logger {
	if b.logger == nil {
		return zap.NewNop()
	}
	return b.logger
}

func (b *base) kind() artifact.Kind {
	if b.capability == provider.VideoGeneration {
		return artifact.KindVideo
	}
	return artifact.KindImage
}

// meta starts a metadata map with the keys every artifact carries.
func (b *base) meta() map[string]any {
	return map[string]any{
		"provider": string(b.provider),
		"model":    b.model,
	}
}

func (b *base) decoder(header http.Header) *payload.Decoder {
	return &payload.Decoder{Client: b.client, Header: header}
}

// newPoller returns a poller wired to this adapter's transient-error policy
// and metrics.
func (b *base) newPoller() *poll.Poller {
	var p *poll.Poller
	if b.poller != nil {
		p = b.poller()
	} else {
		p = poll.New()
	}
	if p.Transient == nil {
		p.Transient = IsTransient
	}
	log := b.log()
	m := b.metrics
	prov := string(b.provider)
	onCheck := p.OnCheck
	p.OnCheck = func(attempt int, job *poll.Job, err error) {
		if onCheck != nil {
			onCheck(attempt, job, err)
		}
		state := "error"
		if job != nil {
			state = string(job.State)
		}
		if m != nil {
			m.RecordPollCheck(prov, state)
		}
		log.Debug("status check",
			zap.String("provider", prov),
			zap.Int("attempt", attempt),
			zap.String("state", state),
			zap.Error(err))
	}
	return p
}

// artifacts decodes items in order and wraps each in an artifact. metaFor
// may add per-item metadata; it receives the item index.
func (b *base) artifacts(ctx context.Context, dec *payload.Decoder, items []payload.Item, metaFor func(i int, m map[string]any)) ([]*artifact.Artifact, error) {
	if len(items) == 0 {
		return nil, &MalformedResponseError{Provider: b.provider, Reason: "response contained no content"}
	}
	contents, err := dec.DecodeAll(ctx, items)
	if err != nil {
		return nil, b.translate(err)
	}

	out := make([]*artifact.Artifact, 0, len(contents))
	for i, data := range contents {
		m := b.meta()
		if metaFor != nil {
			metaFor(i, m)
		}
		out = append(out, artifact.New(b.kind(), data, m))
	}
	return out, nil
}
