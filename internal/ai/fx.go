package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smallbiznis/studyquota/internal/config"
	"github.com/smallbiznis/studyquota/internal/observability/logger"
	"github.com/smallbiznis/studyquota/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("ai",
	fx.Provide(New),
)

type Params struct {
	fx.In

	Cfg     config.Config
	Log     *zap.Logger
	Metrics *metrics.Metrics `optional:"true"`
}

func New(p Params) (Generator, error) {
	var (
		gen Generator
		err error
	)
	switch p.Cfg.AI.Provider {
	case config.AIProviderOpenAI:
		gen, err = NewOpenAIGenerator(p.Cfg.AI)
	case config.AIProviderGemini:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		gen, err = NewGeminiGenerator(ctx, p.Cfg.AI)
	case config.AIProviderStatic, "":
		gen = NewStaticGenerator()
	default:
		err = fmt.Errorf("%w: %q", ErrUnsupportedProvider, p.Cfg.AI.Provider)
	}
	if err != nil {
		return nil, err
	}

	p.Log.Named("ai").Info("ai generator configured", zap.String("provider", gen.Provider()))
	return NewInstrumented(gen, p.Log, p.Metrics), nil
}

type instrumented struct {
	next    Generator
	log     *zap.Logger
	metrics *metrics.Metrics
}

// NewInstrumented wraps next with call logging and the ai call counter.
func NewInstrumented(next Generator, log *zap.Logger, m *metrics.Metrics) Generator {
	return &instrumented{next: next, log: log.Named("ai"), metrics: m}
}

func (g *instrumented) Provider() string { return g.next.Provider() }

func (g *instrumented) Generate(ctx context.Context, req Request) (string, error) {
	start := time.Now()
	text, err := g.next.Generate(ctx, req)

	outcome := "success"
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		outcome = "timeout"
	case err != nil:
		outcome = "error"
	}
	g.metrics.RecordAICall(ctx, g.next.Provider(), req.Task.Feature(), outcome)

	log := logger.WithContext(ctx, g.log).With(
		zap.String("provider", g.next.Provider()),
		zap.String("task", string(req.Task)),
		zap.Duration("elapsed", time.Since(start)),
	)
	if err != nil {
		log.Warn("ai generation failed", zap.Error(err))
		return "", err
	}
	log.Debug("ai generation completed", zap.Int("chars", len(text)))
	return text, nil
}
