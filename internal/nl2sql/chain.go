// Package nl2sql turns a question into SQL, runs it, and turns the rows back
// into an answer.
package nl2sql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dbtalk/dbtalk/internal/config"
	"github.com/dbtalk/dbtalk/internal/database"
	"github.com/dbtalk/dbtalk/internal/generation"
	"github.com/dbtalk/dbtalk/internal/history"
	historypostgres "github.com/dbtalk/dbtalk/internal/history/postgres"
	"github.com/dbtalk/dbtalk/internal/observability"
	"github.com/dbtalk/dbtalk/internal/query"
	"github.com/dbtalk/dbtalk/internal/schema"
)

const historyWriteTimeout = 5 * time.Second

// Chain answers one question per call. Initialize reports whether the chain's
// dependencies are reachable. Implementations hold no state between calls.
type Chain interface {
	Initialize(ctx context.Context) error
	Run(ctx context.Context, question string) (string, error)
}

type Answer struct {
	RunID    string
	Question string
	SQL      string
	Context  string
	Text     string
	Degraded bool
	Duration time.Duration
}

type Translation struct {
	SQL   string
	Raw   string
	Model string
}

type Options struct {
	DB                *sql.DB
	Introspector      schema.Introspector
	Generator         generation.Client
	SQLModel          string
	AnswerModel       string
	Dialect           string
	GenerationTimeout time.Duration
	Policy            query.Policy
	RowLimit          int
	QueryTimeout      time.Duration
	Recorder          history.Recorder
	Logger            *slog.Logger
	NewRunID          func() string
	// OnTransition, when set, is called synchronously on every state change.
	OnTransition      func(from, to State)
}

// TextToSQLChain runs the two generation stages around a query against db.
type TextToSQLChain struct {
	db                *sql.DB
	introspector      schema.Introspector
	generator         generation.Client
	executor          *query.Executor
	sqlModel          string
	answerModel       string
	dialect           string
	generationTimeout time.Duration
	recorder          history.Recorder
	logger            *slog.Logger
	newRunID          func() string
	onTransition      func(from, to State)

	history history.Reader
	closers []io.Closer
}

var _ Chain = (*TextToSQLChain)(nil)

func New(opts Options) (*TextToSQLChain, error) {
	if opts.DB == nil {
		return nil, &InitializationError{Component: "database", Err: errors.New("database is required")}
	}
	if opts.Generator == nil {
		return nil, &InitializationError{Component: "generation", Err: errors.New("generation client is required")}
	}
	sqlModel := strings.TrimSpace(opts.SQLModel)
	answerModel := strings.TrimSpace(opts.AnswerModel)
	if sqlModel == "" || answerModel == "" {
		return nil, &InitializationError{Component: "generation", Err: errors.New("sql and answer models are required")}
	}
	if sqlModel == answerModel {
		return nil, &InitializationError{Component: "generation", Err: errors.New("sql and answer models must differ")}
	}

	logger := opts.Logger
	if logger == nil {
		logger = observability.DiscardLogger()
	}
	introspector := opts.Introspector
	if introspector == nil {
		introspector = schema.SQLite{}
	}
	recorder := opts.Recorder
	if recorder == nil {
		recorder = history.Noop{}
	}
	newRunID := opts.NewRunID
	if newRunID == nil {
		newRunID = uuid.NewString
	}
	policy := opts.Policy
	if policy == "" {
		policy = query.PolicyDegraded
	}

	return &TextToSQLChain{
		db:           opts.DB,
		introspector: introspector,
		generator:    opts.Generator,
		executor: &query.Executor{
			DB:       opts.DB,
			Policy:   policy,
			RowLimit: opts.RowLimit,
			Timeout:  opts.QueryTimeout,
			Logger:   logger,
		},
		sqlModel:          sqlModel,
		answerModel:       answerModel,
		dialect:           opts.Dialect,
		generationTimeout: opts.GenerationTimeout,
		recorder:          recorder,
		logger:            logger,
		newRunID:          newRunID,
		onTransition:      opts.OnTransition,
		closers:           []io.Closer{opts.DB},
	}, nil
}

// Initialize opens the database, the generation client and, when configured,
// the run history store.
func Initialize(ctx context.Context, cfg config.Config, logger *slog.Logger) (*TextToSQLChain, error) {
	db, err := database.Open(ctx, database.Config{
		Driver:          cfg.Database.Driver,
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	})
	if err != nil {
		return nil, &InitializationError{Component: "database", Err: err}
	}

	generator, err := generation.New(cfg.Generation)
	if err != nil {
		_ = db.Close()
		return nil, &InitializationError{Component: "generation", Err: err}
	}

	var repository *historypostgres.Repository
	var historyDB *sql.DB
	if cfg.History.Enabled() {
		historyDB, err = historypostgres.Open(ctx, cfg.History.DSN, cfg.History.MaxOpenConns)
		if err != nil {
			_ = db.Close()
			return nil, &InitializationError{Component: "history", Err: err}
		}
		repository = historypostgres.NewRepository(historyDB)
	}

	opts := Options{
		DB:                db,
		Introspector:      schema.ForDriver(cfg.Database.Driver),
		Generator:         generator,
		SQLModel:          cfg.Generation.SQLModel,
		AnswerModel:       cfg.Generation.AnswerModel,
		Dialect:           database.DialectName(cfg.Database.Driver),
		GenerationTimeout: cfg.Generation.Timeout,
		Policy:            query.ParsePolicy(cfg.Query.Policy),
		RowLimit:          cfg.Query.RowLimit,
		QueryTimeout:      cfg.Query.Timeout,
		Logger:            logger,
	}
	if repository != nil {
		opts.Recorder = repository
	}

	chain, err := New(opts)
	if err != nil {
		_ = db.Close()
		if historyDB != nil {
			_ = historyDB.Close()
		}
		return nil, err
	}
	if repository != nil {
		chain.history = repository
		chain.closers = append(chain.closers, historyDB)
	}
	if err := chain.Initialize(ctx); err != nil {
		_ = chain.Close()
		return nil, err
	}
	chain.logger.InfoContext(ctx, "chain ready",
		"driver", cfg.Database.Driver,
		"provider", cfg.Generation.Provider,
		"sql_model", chain.sqlModel,
		"answer_model", chain.answerModel,
		"policy", string(chain.executor.Policy),
		"history", repository != nil,
	)
	return chain, nil
}

// Initialize moves the chain from Uninitialized to Ready once the database
// answers a ping.
func (c *TextToSQLChain) Initialize(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return &InitializationError{Component: "database", Err: err}
	}
	if c.onTransition != nil {
		c.onTransition(StateUninitialized, StateReady)
	}
	return nil
}

// Run returns the answer text for question.
func (c *TextToSQLChain) Run(ctx context.Context, question string) (string, error) {
	answer, err := c.Ask(ctx, question)
	if err != nil {
		return "", err
	}
	return answer.Text, nil
}

// Ask drives one question through every stage. Errors are *StageError values
// except ErrEmptyQuestion, which is returned before any stage runs.
func (c *TextToSQLChain) Ask(ctx context.Context, question string) (Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Answer{}, ErrEmptyQuestion
	}

	answer := Answer{RunID: c.newRunID(), Question: question}
	ctx = observability.ContextWithRunID(ctx, answer.RunID)
	r := c.startRun(ctx)

	sqlText, _, err := c.synthesizeSQL(ctx, r, question)
	if err != nil {
		return c.finish(ctx, r, answer, err)
	}
	answer.SQL = sqlText

	r.transition(StateExecutingQuery)
	contextData, degraded, err := c.executor.Retrieve(ctx, sqlText)
	if err != nil {
		return c.finish(ctx, r, answer, r.fail(StageExecuteQuery, err))
	}
	answer.Context = contextData
	answer.Degraded = degraded

	r.transition(StateGeneratingAnswer)
	text, err := c.generate(ctx, StageGenerateAnswer, c.answerModel, BuildAnswerPrompt(contextData, question))
	if err != nil {
		return c.finish(ctx, r, answer, r.fail(StageGenerateAnswer, err))
	}
	answer.Text = text

	r.transition(StateDone)
	return c.finish(ctx, r, answer, nil)
}

// Translate runs the stages up to SQL extraction without touching user data.
func (c *TextToSQLChain) Translate(ctx context.Context, question string) (Translation, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Translation{}, ErrEmptyQuestion
	}
	ctx = observability.ContextWithRunID(ctx, c.newRunID())
	r := c.startRun(ctx)

	sqlText, raw, err := c.synthesizeSQL(ctx, r, question)
	if err != nil {
		return Translation{}, err
	}
	r.transition(StateDone)
	return Translation{SQL: sqlText, Raw: raw, Model: c.sqlModel}, nil
}

// Schema returns a fresh snapshot of the database catalog.
func (c *TextToSQLChain) Schema(ctx context.Context) (schema.Snapshot, error) {
	snapshot, err := c.introspector.Describe(ctx, c.db)
	if err != nil {
		return schema.Snapshot{}, schemaError(err)
	}
	return snapshot, nil
}

func (c *TextToSQLChain) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// History returns the run history reader, or nil when history is disabled.
func (c *TextToSQLChain) History() history.Reader {
	return c.history
}

func (c *TextToSQLChain) Close() error {
	var errs []error
	for _, closer := range c.closers {
		if err := closer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *TextToSQLChain) synthesizeSQL(ctx context.Context, r *run, question string) (string, string, error) {
	snapshot, err := c.introspector.Describe(ctx, c.db)
	if err != nil {
		return "", "", r.fail(StageSchema, schemaError(err))
	}
	prompt := BuildSQLPrompt(snapshot, question, c.dialect)

	r.transition(StateGeneratingSQL)
	raw, err := c.generate(ctx, StageGenerateSQL, c.sqlModel, prompt)
	if err != nil {
		return "", "", r.fail(StageGenerateSQL, err)
	}

	r.transition(StateExtractingSQL)
	sqlText := ExtractSQL(raw)
	if sqlText == "" {
		sqlText = strings.TrimSpace(raw)
	}
	c.logger.DebugContext(ctx, "sql extracted", append(observability.LogAttrs(ctx), "sql", sqlText)...)
	return sqlText, raw, nil
}

func (c *TextToSQLChain) generate(ctx context.Context, stage Stage, model, prompt string) (string, error) {
	if c.generationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.generationTimeout)
		defer cancel()
	}
	text, err := c.generator.Generate(ctx, model, prompt)
	observability.ObserveGeneration(model, err)
	if err != nil {
		return "", &GenerationError{Stage: stage, Model: model, Err: err}
	}
	return text, nil
}

func (c *TextToSQLChain) finish(ctx context.Context, r *run, answer Answer, runErr error) (Answer, error) {
	answer.Duration = time.Since(r.started)

	record := history.Record{
		RunID:       answer.RunID,
		Question:    answer.Question,
		SQL:         answer.SQL,
		Answer:      answer.Text,
		Status:      history.StatusSucceeded,
		Degraded:    answer.Degraded,
		SQLModel:    c.sqlModel,
		AnswerModel: c.answerModel,
		DurationMs:  answer.Duration.Milliseconds(),
		CreatedAt:   r.started.UTC(),
	}
	if stage, ok := FailedStage(runErr); ok {
		record.Status = history.StatusFailed
		record.FailedStage = string(stage)
	}
	observability.ObserveRun(string(record.Status))

	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), historyWriteTimeout)
	defer cancel()
	if err := c.recorder.Record(recordCtx, record); err != nil {
		observability.IncrementHistoryRecordFailure()
		c.logger.WarnContext(ctx, "record run history failed", append(observability.LogAttrs(ctx), "error", err)...)
	}

	attrs := append(observability.LogAttrs(ctx), "duration_ms", record.DurationMs, "degraded", answer.Degraded)
	if runErr != nil {
		c.logger.WarnContext(ctx, "question failed", append(attrs, "stage", record.FailedStage, "error", runErr)...)
		return Answer{}, runErr
	}
	c.logger.InfoContext(ctx, "question answered", attrs...)
	return answer, nil
}

func schemaError(err error) error {
	if errors.Is(err, ErrSchemaUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrSchemaUnavailable, err)
}

type run struct {
	ctx      context.Context
	logger   *slog.Logger
	observer func(from, to State)
	state    State
	started  time.Time
	entered  time.Time
}

func (c *TextToSQLChain) startRun(ctx context.Context) *run {
	now := time.Now()
	return &run{ctx: ctx, logger: c.logger, observer: c.onTransition, state: StateReady, started: now, entered: now}
}

func (r *run) transition(next State) {
	now := time.Now()
	elapsed := now.Sub(r.entered)
	if stage, ok := r.state.stage(); ok {
		observability.ObserveStage(string(stage), elapsed)
	}
	r.logger.DebugContext(r.ctx, "chain transition", append(observability.LogAttrs(r.ctx),
		"from", r.state.String(),
		"to", next.String(),
		"elapsed_ms", elapsed.Milliseconds(),
	)...)
	if r.observer != nil {
		r.observer(r.state, next)
	}
	r.state = next
	r.entered = now
}

func (r *run) fail(stage Stage, err error) error {
	r.transition(StateFailed)
	return &StageError{Stage: stage, Err: err}
}
