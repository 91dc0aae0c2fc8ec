// Package progress carries step-by-step status of long POS workflows
// (finalization, fiscal emission) to whoever is watching - usually the
// terminal UI via the response, or just the log.
package progress

import (
	"context"

	"caixa/pkg/logger"
)

// Status of a workflow step.
type Status string

const (
	StatusPending Status = "pending"
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Reporter receives step updates. Implementations must be fire-and-forget:
// reporting never blocks or fails the workflow.
type Reporter interface {
	Report(ctx context.Context, stepID string, status Status, message string)
}

// LogReporter writes step updates to the structured log.
type LogReporter struct{}

// NewLogReporter returns a Reporter backed by the context logger.
func NewLogReporter() *LogReporter {
	return &LogReporter{}
}

func (r *LogReporter) Report(ctx context.Context, stepID string, status Status, message string) {
	switch status {
	case StatusError:
		logger.Warn(ctx, "workflow step failed", "step", stepID, "message", message)
	default:
		logger.Debug(ctx, "workflow step", "step", stepID, "status", status, "message", message)
	}
}

// NopReporter discards all updates.
type NopReporter struct{}

func NewNopReporter() *NopReporter { return &NopReporter{} }

func (r *NopReporter) Report(ctx context.Context, stepID string, status Status, message string) {}

// Recorder collects updates in memory. Test helper and response builder.
type Recorder struct {
	Steps []Step
}

// Step is one recorded update.
type Step struct {
	StepID  string `json:"stepId"`
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Report(ctx context.Context, stepID string, status Status, message string) {
	r.Steps = append(r.Steps, Step{StepID: stepID, Status: status, Message: message})
}
