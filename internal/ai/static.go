package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallbiznis/studyquota/internal/config"
)

// StaticGenerator answers without calling a model. Used for local runs and tests.
type StaticGenerator struct{}

func NewStaticGenerator() *StaticGenerator { return &StaticGenerator{} }

func (StaticGenerator) Provider() string { return config.AIProviderStatic }

func (StaticGenerator) Generate(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return "", ErrEmptyResponse
	}
	firstLine, _, _ := strings.Cut(prompt, "\n")
	return fmt.Sprintf("[%s] %s", req.Task, firstLine), nil
}
