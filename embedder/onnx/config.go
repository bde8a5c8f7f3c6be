package onnx

import "go.uber.org/zap"

// Config configures the ONNX embedder.
type Config struct {
	// Model is a display name, e.g. "all-MiniLM-L6-v2".
	Model string

	// ModelPath is the path to the ONNX model file.
	ModelPath string

	// TokenizerPath is the path to the tokenizer.json file.
	TokenizerPath string

	// SharedLibraryPath points at libonnxruntime. Empty uses the runtime's
	// default lookup.
	SharedLibraryPath string

	// Dimensions is the embedding vector size (384 for all-MiniLM-L6-v2).
	Dimensions int

	// MaxLength is the token window, including [CLS] and [SEP].
	MaxLength int

	Logger *zap.Logger
}

func (c *Config) applyDefaults() {
	if c.Dimensions == 0 {
		c.Dimensions = 384
	}
	if c.MaxLength < 3 {
		c.MaxLength = 128
	}
	if c.Model == "" {
		c.Model = "all-MiniLM-L6-v2"
	}
}
