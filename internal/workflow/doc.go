// Package workflow coordinates queue processing across the pipeline stages.
//
// A single polling loop claims the oldest actionable job, hands it to the
// stage handler registered for its status, and persists the resulting
// transition. Transient stage failures keep the job in place and consume a
// retry; exhausted retries and permanent failures move it to a terminal
// status and notify the operator.
package workflow
