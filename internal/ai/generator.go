package ai

import (
	"context"
	"errors"

	quotadomain "github.com/smallbiznis/studyquota/internal/quota/domain"
)

// Task names the kind of content to generate. Each task is billed against
// the quota feature of the same purpose.
type Task string

const (
	TaskDoubt   Task = "doubt"
	TaskSummary Task = "summary"
	TaskRoadmap Task = "roadmap"
)

// Feature returns the quota feature a task consumes.
func (t Task) Feature() string {
	switch t {
	case TaskDoubt:
		return quotadomain.FeatureDoubts
	case TaskSummary:
		return quotadomain.FeatureSummaries
	case TaskRoadmap:
		return quotadomain.FeatureRoadmaps
	default:
		return string(t)
	}
}

// Request is a fully rendered prompt.
type Request struct {
	Task   Task
	System string
	Prompt string
}

// Generator produces text for an already authorized request.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
	Provider() string
}

var (
	ErrMissingAPIKey       = errors.New("ai_api_key_not_configured")
	ErrUnsupportedProvider = errors.New("ai_provider_unsupported")
	ErrEmptyResponse       = errors.New("ai_empty_response")
	ErrGenerationFailed    = errors.New("ai_generation_failed")
)
