package types

import "time"

// RunMessage is the SQS payload that carries an asynchronous flood run from
// the API to the flood worker. The run record already exists in the queued
// state when the message is published.
type RunMessage struct {
	RunID      string       `json:"run_id"`
	Request    FloodRequest `json:"request"`
	TraceID    string       `json:"trace_id"`
	EnqueuedAt time.Time    `json:"enqueued_at"`
}
