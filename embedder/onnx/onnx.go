//go:build onnx

package onnx

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"

	"github.com/becomeliminal/ragent/core"
)

// Name identifies this backend in stats output.
const Name = "onnx"

// BERTTokenizer handles BERT-style WordPiece tokenization.
type BERTTokenizer struct {
	vocab    map[string]int
	clsToken int
	sepToken int
	unkToken int
}

// ONNXEmbedder generates sentence embeddings with ONNX Runtime.
type ONNXEmbedder struct {
	session    *ort.DynamicAdvancedSession
	tokenizer  *BERTTokenizer
	dimensions int
	maxLength  int
	model      string
	logger     *zap.Logger
}

// New loads the tokenizer and model and opens an inference session.
func New(cfg Config) (*ONNXEmbedder, error) {
	cfg.applyDefaults()
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("%w: onnx model path is required", core.ErrEmbeddingUnavailable)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	if !ort.IsInitialized() {
		if cfg.SharedLibraryPath != "" {
			ort.SetSharedLibraryPath(cfg.SharedLibraryPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("%w: initialize onnx runtime: %v", core.ErrEmbeddingUnavailable, err)
		}
	}

	tokenizer, err := loadBERTTokenizer(cfg.TokenizerPath)
	if err != nil {
		return nil, fmt.Errorf("%w: load tokenizer: %v", core.ErrEmbeddingUnavailable, err)
	}

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"last_hidden_state"},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: create onnx session: %v", core.ErrEmbeddingUnavailable, err)
	}

	logger.Info("onnx embedder ready",
		zap.String("model", cfg.ModelPath),
		zap.Int("dimensions", cfg.Dimensions),
		zap.Int("max_length", cfg.MaxLength))

	return &ONNXEmbedder{
		session:    session,
		tokenizer:  tokenizer,
		dimensions: cfg.Dimensions,
		maxLength:  cfg.MaxLength,
		model:      cfg.Model,
		logger:     logger,
	}, nil
}

// Embed converts text to a mean-pooled, normalized embedding.
func (e *ONNXEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tokens := e.tokenizer.Tokenize(text)
	maxLen := e.maxLength
	inputIDs := make([]int64, maxLen)
	attentionMask := make([]int64, maxLen)
	tokenTypeIDs := make([]int64, maxLen)

	inputIDs[0] = int64(e.tokenizer.clsToken)
	attentionMask[0] = 1

	tokenLen := len(tokens)
	if tokenLen > maxLen-2 {
		tokenLen = maxLen - 2
	}
	for i := 0; i < tokenLen; i++ {
		inputIDs[i+1] = tokens[i]
		attentionMask[i+1] = 1
	}
	inputIDs[tokenLen+1] = int64(e.tokenizer.sepToken)
	attentionMask[tokenLen+1] = 1

	shape := ort.NewShape(1, int64(maxLen))
	inputs := make([]ort.Value, 0, 3)
	defer func() {
		for _, v := range inputs {
			v.Destroy()
		}
	}()
	for _, data := range [][]int64{inputIDs, attentionMask, tokenTypeIDs} {
		tensor, err := ort.NewTensor(shape, data)
		if err != nil {
			return nil, fmt.Errorf("create input tensor: %w", err)
		}
		inputs = append(inputs, tensor)
	}

	outputs := []ort.Value{nil}
	if err := e.session.Run(inputs, outputs); err != nil {
		return nil, fmt.Errorf("onnx inference: %w", err)
	}
	defer func() {
		for _, v := range outputs {
			if v != nil {
				v.Destroy()
			}
		}
	}()

	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output tensor type %T", outputs[0])
	}
	data := out.GetData()
	outShape := out.GetShape()

	embedding := make([]float32, e.dimensions)
	switch len(outShape) {
	case 2:
		// Already pooled: [1, hidden]
		if len(data) < e.dimensions {
			return nil, &core.DimensionMismatchError{Expected: e.dimensions, Got: len(data)}
		}
		copy(embedding, data[:e.dimensions])
	case 3:
		// [1, seq, hidden] needs mean pooling over attended tokens.
		seqLen, hidden := int(outShape[1]), int(outShape[2])
		if hidden != e.dimensions {
			return nil, &core.DimensionMismatchError{Expected: e.dimensions, Got: hidden}
		}
		var attended float32
		for i := 0; i < seqLen; i++ {
			if attentionMask[i] == 0 {
				continue
			}
			attended++
			offset := i * hidden
			for j := 0; j < hidden; j++ {
				embedding[j] += data[offset+j]
			}
		}
		for j := range embedding {
			embedding[j] /= attended
		}
	default:
		return nil, fmt.Errorf("unexpected output shape %v", outShape)
	}

	e.logger.Debug("onnx inference", zap.Int("tokens", tokenLen), zap.Any("shape", outShape))
	return core.Normalize(embedding), nil
}

// EmbedBatch embeds texts one at a time; the session is built for batch 1.
func (e *ONNXEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// Dimensions returns the embedding vector size.
func (e *ONNXEmbedder) Dimensions() int {
	return e.dimensions
}

// Name returns "onnx:<model>".
func (e *ONNXEmbedder) Name() string {
	return Name + ":" + e.model
}

// Close releases ONNX resources.
func (e *ONNXEmbedder) Close() error {
	if e.session != nil {
		return e.session.Destroy()
	}
	return nil
}

func loadBERTTokenizer(path string) (*BERTTokenizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var tokenizerData struct {
		Model struct {
			Vocab map[string]int `json:"vocab"`
		} `json:"model"`
	}
	if err := json.Unmarshal(data, &tokenizerData); err != nil {
		return nil, err
	}
	if len(tokenizerData.Model.Vocab) == 0 {
		return nil, fmt.Errorf("tokenizer %s has an empty vocabulary", path)
	}

	t := &BERTTokenizer{
		vocab:    tokenizerData.Model.Vocab,
		clsToken: 101,
		sepToken: 102,
		unkToken: 100,
	}
	for token, field := range map[string]*int{"[CLS]": &t.clsToken, "[SEP]": &t.sepToken, "[UNK]": &t.unkToken} {
		if id, ok := t.vocab[token]; ok {
			*field = id
		}
	}
	return t, nil
}

// Tokenize converts text to WordPiece token ids.
func (t *BERTTokenizer) Tokenize(text string) []int64 {
	var tokens []int64
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,!?;:\"'()[]")
		if word == "" {
			continue
		}
		if id, ok := t.vocab[word]; ok {
			tokens = append(tokens, int64(id))
			continue
		}
		for _, sub := range t.wordPieceTokenize(word) {
			if id, ok := t.vocab[sub]; ok {
				tokens = append(tokens, int64(id))
			} else {
				tokens = append(tokens, int64(t.unkToken))
			}
		}
	}
	return tokens
}

// wordPieceTokenize splits word greedily into the longest known prefixes.
func (t *BERTTokenizer) wordPieceTokenize(word string) []string {
	var subwords []string
	start := 0
	for start < len(word) {
		end := len(word)
		found := false
		for end > start {
			sub := word[start:end]
			if start > 0 {
				sub = "##" + sub
			}
			if _, ok := t.vocab[sub]; ok {
				subwords = append(subwords, sub)
				start = end
				found = true
				break
			}
			end--
		}
		if !found {
			subwords = append(subwords, "[UNK]")
			start++
		}
	}
	return subwords
}
