package service

import "fmt"

// SpiderError wraps an error produced while processing a Task so the
// dispatcher can tell "a handler returned this error" apart from "a
// handler panicked" or "the network layer failed outright", all three of
// which need different retry treatment.
type SpiderError struct {
	TaskName string
	Err      error
}

func (e *SpiderError) Error() string {
	return fmt.Sprintf("spider: task %q: %v", e.TaskName, e.Err)
}

func (e *SpiderError) Unwrap() error { return e.Err }

// NewSpiderError wraps err with the name of the task that produced it.
func NewSpiderError(taskName string, err error) error {
	if err == nil {
		return nil
	}
	return &SpiderError{TaskName: taskName, Err: err}
}

// ParserError reports a failure in a task's parser/handler function,
// distinct from a network-layer failure: the request succeeded, but
// interpreting the response did not.
type ParserError struct {
	Err error
}

func (e *ParserError) Error() string { return fmt.Sprintf("spider: parser: %v", e.Err) }
func (e *ParserError) Unwrap() error  { return e.Err }

// NewParserError wraps err as a parser-stage failure.
func NewParserError(err error) error {
	if err == nil {
		return nil
	}
	return &ParserError{Err: err}
}
