//go:build !onnx

package onnx

import (
	"context"
	"fmt"

	"github.com/becomeliminal/ragent/core"
)

// Name identifies this backend in stats output.
const Name = "onnx"

// ONNXEmbedder is unavailable in builds without the onnx tag.
type ONNXEmbedder struct{}

// New always fails; rebuild with -tags onnx to enable ONNX Runtime.
func New(cfg Config) (*ONNXEmbedder, error) {
	return nil, fmt.Errorf("%w: binary built without the onnx tag", core.ErrEmbeddingUnavailable)
}

func (e *ONNXEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, core.ErrEmbeddingUnavailable
}

func (e *ONNXEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, core.ErrEmbeddingUnavailable
}

func (e *ONNXEmbedder) Dimensions() int { return 0 }

func (e *ONNXEmbedder) Name() string { return Name }

func (e *ONNXEmbedder) Close() error { return nil }
