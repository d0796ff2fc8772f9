package quota

import (
	"github.com/smallbiznis/studyquota/internal/quota/repository"
	"github.com/smallbiznis/studyquota/internal/quota/service"
	"github.com/smallbiznis/studyquota/internal/quota/window"
	"go.uber.org/fx"
)

var Module = fx.Module("quota.service",
	fx.Provide(window.NewFromConfig),
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
