package memo

import (
	"github.com/halfnote/halfnote/internal/memo/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("memo",
	fx.Provide(repository.Provide),
)
