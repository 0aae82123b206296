// Package mock provides a test double for the embedding.Provider interface,
// returning pre-canned vectors and recording every call made against it.
package mock

import (
	"context"
	"sync"

	"github.com/toolgate/toolgate/internal/embedding"
)

// EmbedCall records one Embed invocation.
type EmbedCall struct {
	Text string
}

// Provider is a configurable, call-recording test double.
type Provider struct {
	mu sync.Mutex

	// EmbedFunc, if set, computes the result instead of EmbedResult — useful
	// when different inputs must map to different vectors within one test.
	EmbedFunc func(text string) ([]float32, error)

	EmbedResult     []float32
	EmbedErr        error
	DimensionsValue int
	ModelIDValue    string

	EmbedCalls []EmbedCall
}

func (p *Provider) Embed(_ context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	p.EmbedCalls = append(p.EmbedCalls, EmbedCall{Text: text})
	fn := p.EmbedFunc
	p.mu.Unlock()
	if fn != nil {
		return fn(text)
	}
	return p.EmbedResult, p.EmbedErr
}

func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := p.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (p *Provider) Dimensions() int { return p.DimensionsValue }
func (p *Provider) ModelID() string { return p.ModelIDValue }

func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EmbedCalls = nil
}

var _ embedding.Provider = (*Provider)(nil)
