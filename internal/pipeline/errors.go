package pipeline

import (
	"errors"
	"fmt"
)

// ErrTerminated is returned by Run once the stop phrase has been heard
var ErrTerminated = errors.New("session terminated by stop phrase")

// Stage names a pipeline step for errors, logs and metrics
type Stage string

const (
	StageRead      Stage = "read"
	StageTranslate Stage = "translate"
	StageDelete    Stage = "delete"
	StageSpeak     Stage = "speak"
)

// StageError is a failure of one pipeline step on one segment
type StageError struct {
	Stage Stage
	Seq   uint64
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed for segment %d: %v", e.Stage, e.Seq, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// ErrorPolicy decides what the driver does when a stage fails
type ErrorPolicy string

const (
	// PolicyHalt stops the driver on the first failure
	PolicyHalt ErrorPolicy = "halt"
	// PolicySkip logs the failure and moves on to the next segment
	PolicySkip ErrorPolicy = "skip"
)

// ParseErrorPolicy validates a policy name; empty means PolicyHalt
func ParseErrorPolicy(name string) (ErrorPolicy, error) {
	switch ErrorPolicy(name) {
	case "", PolicyHalt:
		return PolicyHalt, nil
	case PolicySkip:
		return PolicySkip, nil
	default:
		return "", fmt.Errorf("unknown error policy: %q", name)
	}
}
