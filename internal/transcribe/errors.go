package transcribe

import (
	"errors"
	"fmt"
)

// Kind separates client input problems from failures of the model pipeline.
type Kind int

const (
	KindPipelineFailure Kind = iota
	KindMissingInput
)

func (k Kind) String() string {
	switch k {
	case KindMissingInput:
		return "missing_input"
	default:
		return "pipeline_failure"
	}
}

var (
	ErrMissingInput = errors.New("No audio file provided")
	ErrEmptyAudio   = errors.New("audio payload is empty")
)

// PipelineError wraps any failure after the upload was accepted.
type PipelineError struct {
	Op  string
	Err error
}

func (e *PipelineError) Error() string {
	if e.Err == nil {
		return e.Op + ": unknown failure"
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

func pipelineError(op string, err error) error {
	return &PipelineError{Op: op, Err: err}
}

// Classify maps an error returned by Service.Transcribe to its Kind. Anything
// that is not recognizably a missing input counts as a pipeline failure.
func Classify(err error) Kind {
	if errors.Is(err, ErrMissingInput) {
		return KindMissingInput
	}
	return KindPipelineFailure
}
