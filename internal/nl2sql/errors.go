package nl2sql

import (
	"errors"
	"fmt"

	"github.com/dbtalk/dbtalk/internal/schema"
)

var (
	ErrInitializationFailed = errors.New("chain initialization failed")
	ErrSchemaUnavailable    = schema.ErrUnavailable
	ErrEmptyQuestion        = errors.New("question is required")
)

type Stage string

const (
	StageSchema         Stage = "schema"
	StageGenerateSQL    Stage = "generate_sql"
	StageExtractSQL     Stage = "extract_sql"
	StageExecuteQuery   Stage = "execute_query"
	StageGenerateAnswer Stage = "generate_answer"
)

// StageError wraps every failure of a run with the stage it happened in.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

type GenerationError struct {
	Stage Stage
	Model string
	Err   error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed stage=%s model=%s: %v", e.Stage, e.Model, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

type InitializationError struct {
	Component string
	Err       error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("initialize %s: %v", e.Component, e.Err)
}

func (e *InitializationError) Unwrap() error {
	return e.Err
}

func (e *InitializationError) Is(target error) bool {
	return target == ErrInitializationFailed
}

// FailedStage reports the stage recorded in err, if any.
func FailedStage(err error) (Stage, bool) {
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr.Stage, true
	}
	return "", false
}
