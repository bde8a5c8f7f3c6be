// Package engine runs the retrieval-reasoning state machine that turns a
// query into a grounded answer.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/becomeliminal/ragent/core"
	"github.com/becomeliminal/ragent/generator"
	"github.com/becomeliminal/ragent/memory"
	"github.com/becomeliminal/ragent/metrics"
)

// Fixed answers.
const (
	EmptyQueryAnswer          = "Please provide a valid question."
	InsufficientContextAnswer = "I don't have enough information to answer this question."
	TimeoutAnswer             = "The request timed out before an answer could be composed."
)

// Abort reasons, also used as metric labels.
const (
	reasonTimeout       = "timeout"
	reasonMaxIterations = "max_iterations"
)

// Retriever finds passages relevant to a query.
type Retriever interface {
	Search(ctx context.Context, query string, k int) ([]core.RetrievalResult, error)
}

// Recorder persists task logs.
type Recorder interface {
	Record(ctx context.Context, log *core.TaskLog) error
}

// Config bounds and tunes a run.
type Config struct {
	// MaxIterations caps the work states a run may execute, from RETRIEVE
	// through RECORD_MEMORY.
	MaxIterations int

	// Timeout is the wall-clock budget for a whole run.
	Timeout time.Duration

	// RetryAttempts is the number of retries after a failed retrieval or
	// generation call.
	RetryAttempts int

	// RetryBackoff is the base delay of the Fibonacci backoff.
	RetryBackoff time.Duration

	TopK int

	// MinConfidence is the top score at or above which an answer is
	// considered verified.
	MinConfidence float64

	MaxContextPassages int
	MaxPassageChars    int
	MaxAnswerSentences int
}

// DefaultConfig returns the default run configuration.
func DefaultConfig() Config {
	return Config{
		MaxIterations:      6,
		Timeout:            30 * time.Second,
		RetryAttempts:      2,
		RetryBackoff:       200 * time.Millisecond,
		TopK:               5,
		MinConfidence:      0.55,
		MaxContextPassages: 3,
		MaxPassageChars:    500,
		MaxAnswerSentences: 3,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.MaxIterations <= 0 {
		c.MaxIterations = d.MaxIterations
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.RetryAttempts < 0 {
		c.RetryAttempts = 0
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = d.RetryBackoff
	}
	if c.TopK <= 0 {
		c.TopK = d.TopK
	}
	if c.MaxContextPassages <= 0 {
		c.MaxContextPassages = d.MaxContextPassages
	}
	if c.MaxPassageChars <= 0 {
		c.MaxPassageChars = d.MaxPassageChars
	}
	if c.MaxAnswerSentences <= 0 {
		c.MaxAnswerSentences = d.MaxAnswerSentences
	}
}

// Engine answers queries. It is safe for concurrent use; each Run owns its
// own state.
type Engine struct {
	retriever Retriever
	generator generator.Generator // Optional: extractive synthesis when nil
	memory    Recorder            // Optional: no task logs when nil
	config    Config
	logger    *zap.Logger
	now       func() time.Time
}

// Option configures the engine.
type Option func(*Engine)

// WithGenerator sets the text generation collaborator.
func WithGenerator(g generator.Generator) Option {
	return func(e *Engine) {
		e.generator = g
	}
}

// WithMemory sets where task logs are recorded.
func WithMemory(r Recorder) Option {
	return func(e *Engine) {
		e.memory = r
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithClock replaces the time source used for task log timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates an engine over retriever.
func NewEngine(retriever Retriever, cfg Config, opts ...Option) *Engine {
	cfg.applyDefaults()
	e := &Engine{
		retriever: retriever,
		config:    cfg,
		logger:    zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.config
}

// HasGenerator reports whether answers are delegated to a generator.
func (e *Engine) HasGenerator() bool {
	return e.generator != nil
}

// run is the mutable state of a single invocation.
type run struct {
	taskID     string
	query      string
	results    []core.RetrievalResult
	answer     string
	composed   bool
	confidence float64
	verified   bool
	steps      []string
	abort      string
}

func (r *run) references() []string {
	refs := make([]string, 0, len(r.results))
	for _, res := range r.results {
		refs = append(refs, res.Document.ID)
	}
	return refs
}

// Run answers query. It never fails: errors degrade to fallback answers and
// budget overruns return a partial response with TimedOut set.
func (e *Engine) Run(ctx context.Context, query string) *core.AgentResponse {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	r := &run{taskID: uuid.New().String(), query: query}
	logger := e.logger.With(zap.String("task_id", r.taskID))

	state := StateReceiveQuery
	iterations := 0
	for !state.terminal() {
		if ctx.Err() != nil {
			r.abort = reasonTimeout
			state = StateAbort
			break
		}
		if state.budgeted() {
			if iterations >= e.config.MaxIterations {
				r.abort = reasonMaxIterations
				state = StateAbort
				break
			}
			iterations++
		}
		r.steps = append(r.steps, string(state))

		next := e.step(ctx, r, state, logger)
		logger.Debug("state transition",
			zap.String("from", string(state)),
			zap.String("to", string(next)))
		state = next
	}
	r.steps = append(r.steps, string(state))

	resp := e.respond(r, state)
	metrics.QueryDuration.Observe(time.Since(start).Seconds())

	switch {
	case resp.TimedOut:
		metrics.Queries.WithLabelValues("aborted").Inc()
		metrics.Aborts.WithLabelValues(r.abort).Inc()
		logger.Warn("run aborted",
			zap.Error(core.ErrTimeoutExceeded),
			zap.String("reason", r.abort),
			zap.Strings("steps", r.steps))
	case resp.Verified:
		metrics.Queries.WithLabelValues("verified").Inc()
	default:
		metrics.Queries.WithLabelValues("unverified").Inc()
	}

	logger.Info("query answered",
		zap.Int("references", len(resp.References)),
		zap.Float64("confidence", resp.Confidence),
		zap.Bool("verified", resp.Verified),
		zap.Bool("timed_out", resp.TimedOut),
		zap.Duration("duration", time.Since(start)))
	return resp
}

// step executes one work state and returns the next state.
func (e *Engine) step(ctx context.Context, r *run, state State, logger *zap.Logger) State {
	switch state {
	case StateReceiveQuery:
		return e.receive(r)
	case StateRetrieve:
		return e.retrieve(ctx, r, logger)
	case StateComposeAnswer:
		return e.compose(ctx, r, logger)
	case StateVerify:
		return e.verify(r)
	case StateRecordMemory:
		return e.record(ctx, r, logger)
	default:
		panic(fmt.Sprintf("engine: no handler for state %s", state))
	}
}

func (e *Engine) receive(r *run) State {
	if strings.TrimSpace(r.query) == "" {
		r.answer = EmptyQueryAnswer
		r.composed = true
		return StateRespond
	}
	return StateRetrieve
}

func (e *Engine) retrieve(ctx context.Context, r *run, logger *zap.Logger) State {
	var results []core.RetrievalResult
	err := e.withRetry(ctx, func(ctx context.Context) error {
		var err error
		results, err = await(ctx, func(ctx context.Context) ([]core.RetrievalResult, error) {
			return e.retriever.Search(ctx, r.query, e.config.TopK)
		})
		return err
	})
	if err != nil {
		if ctx.Err() != nil {
			r.abort = reasonTimeout
			return StateAbort
		}
		// Retrieval failure degrades to an empty context.
		logger.Warn("retrieval failed", zap.Error(err))
		results = nil
	}
	r.results = results
	return StateComposeAnswer
}

func (e *Engine) compose(ctx context.Context, r *run, logger *zap.Logger) State {
	if len(r.results) == 0 {
		r.answer = InsufficientContextAnswer
		r.composed = true
		return StateVerify
	}

	if e.generator == nil {
		r.answer = Extract(r.query, r.results, e.config)
		r.composed = true
		return StateVerify
	}

	passages := r.results
	if len(passages) > e.config.MaxContextPassages {
		passages = passages[:e.config.MaxContextPassages]
	}

	var answer string
	err := e.withRetry(ctx, func(ctx context.Context) error {
		text, err := await(ctx, func(ctx context.Context) (string, error) {
			return e.generator.Generate(ctx, r.query, passages)
		})
		if err != nil {
			return err
		}
		if strings.TrimSpace(text) == "" {
			return errors.New("empty answer")
		}
		answer = text
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			r.abort = reasonTimeout
			return StateAbort
		}
		metrics.GenerationFallbacks.Inc()
		logger.Warn("generation failed, using extractive answer",
			zap.String("generator", e.generator.Name()),
			zap.Error(fmt.Errorf("%w: %v", core.ErrGenerationFailure, err)))
		answer = Extract(r.query, r.results, e.config)
	}

	r.answer = strings.TrimSpace(answer)
	r.composed = true
	return StateVerify
}

func (e *Engine) verify(r *run) State {
	if len(r.results) > 0 {
		r.confidence = r.results[0].Score
	}
	r.verified = len(r.results) > 0 && r.confidence >= e.config.MinConfidence
	if e.memory == nil {
		return StateRespond
	}
	return StateRecordMemory
}

func (e *Engine) record(ctx context.Context, r *run, logger *zap.Logger) State {
	log := memory.NewTaskLog(memory.Outcome{
		Query:        r.query,
		Answer:       r.answer,
		RetrievedIDs: r.references(),
		Steps:        r.steps,
		Confidence:   r.confidence,
		Verified:     r.verified,
	}, e.now())
	log.TaskID = r.taskID

	_, err := await(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, e.memory.Record(ctx, log)
	})
	if err != nil {
		if ctx.Err() != nil {
			r.abort = reasonTimeout
			return StateAbort
		}
		// Best effort: the answer is still returned.
		logger.Warn("task log not recorded", zap.String("kind", "memory_write"), zap.Error(err))
	}
	return StateRespond
}

func (e *Engine) respond(r *run, state State) *core.AgentResponse {
	resp := &core.AgentResponse{
		TaskID:     r.taskID,
		Answer:     r.answer,
		References: r.references(),
		Steps:      r.steps,
		Verified:   r.verified,
		Confidence: r.confidence,
	}
	if state == StateAbort {
		resp.TimedOut = true
		resp.Verified = false
		if !r.composed {
			resp.Answer = TimeoutAnswer
		}
	}
	return resp
}

// withRetry runs fn, retrying transient failures with Fibonacci backoff.
// Dimension mismatches and deadline errors are permanent.
func (e *Engine) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	b := retry.WithMaxRetries(uint64(e.config.RetryAttempts), retry.NewFibonacci(e.config.RetryBackoff))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || errors.Is(err, core.ErrDimensionMismatch) {
			return err
		}
		return retry.RetryableError(err)
	})
}

// await runs fn on its own goroutine and gives up when ctx is done, so a
// collaborator that ignores cancellation cannot stall the run.
func await[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		ch <- result{v, err}
	}()

	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case res := <-ch:
		return res.v, res.err
	}
}
