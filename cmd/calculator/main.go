// Command calculator serves the arithmetic example routes.
package main

import (
	"github.com/advdv/bpush"
	"github.com/advdv/bpush/bserve"
	"github.com/advdv/bpush/internal/example"
	"go.uber.org/zap"
)

type Env struct {
	bserve.BaseEnvironment
}

func main() {
	bserve.NewApp[Env](func(routes *bpush.RestRoutes, logs *zap.Logger) {
		routes.Use(example.Middleware(logs.Named("calculator")))
		example.Register(routes)
	}).Run()
}
