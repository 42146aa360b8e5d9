package service

import "github.com/vireo-dev/vireo/grab"

// NetworkResult is what a network worker hands to the dispatcher after
// attempting a Task's request: either Document is set and Err is nil, or
// Err explains why the attempt failed. Task travels alongside so the
// dispatcher can re-enqueue it without a lookup.
type NetworkResult struct {
	Task     *Task
	Document *grab.Document
	Err      error
}
