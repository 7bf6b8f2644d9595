package core

import (
	"context"
	"errors"
	"fmt"
)

// Stage names a pipeline stage for error reporting.
type Stage string

const (
	StageFetch  Stage = "fetch"
	StageParse  Stage = "parse"
	StageEmbed  Stage = "embed"
	StageUpsert Stage = "upsert"
)

// ErrorKind splits stage errors into retry-eligible and terminal.
type ErrorKind string

const (
	KindTransient ErrorKind = "transient"
	KindPermanent ErrorKind = "permanent"
)

// Query-path sentinels. Handlers map these to structured HTTP failures;
// the service never substitutes a fabricated answer.
var (
	ErrRetrievalFailed  = errors.New("retrieval failed")
	ErrGenerationFailed = errors.New("generation failed")
)

// StageError wraps an ingestion failure with the stage it occurred in and
// whether a retry could succeed.
type StageError struct {
	Stage Stage
	Kind  ErrorKind
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s (%s): %s", e.Stage, e.Kind, e.Err.Error())
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func Transient(stage Stage, err error) *StageError {
	return &StageError{Stage: stage, Kind: KindTransient, Err: err}
}

func Permanent(stage Stage, err error) *StageError {
	return &StageError{Stage: stage, Kind: KindPermanent, Err: err}
}

func Transientf(stage Stage, format string, args ...any) *StageError {
	return Transient(stage, fmt.Errorf(format, args...))
}

func Permanentf(stage Stage, format string, args ...any) *StageError {
	return Permanent(stage, fmt.Errorf(format, args...))
}

// IsTransient reports whether err is retry-eligible. Timeouts are
// transient even when not wrapped in a StageError; anything unclassified
// is treated as permanent so unknown failures never loop forever.
func IsTransient(err error) bool {
	var se *StageError
	if errors.As(err, &se) {
		return se.Kind == KindTransient
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// FailedStage returns the stage recorded on err, or "unknown".
func FailedStage(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return Stage("unknown")
}
