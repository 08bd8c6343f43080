package none

import (
	"context"

	registryratelimit "github.com/chirino/weave-service/internal/registry/ratelimit"
)

func init() {
	registryratelimit.Register(registryratelimit.Plugin{
		Name: "none",
		Loader: func(context.Context) (registryratelimit.Limiter, error) {
			return unlimited{}, nil
		},
	})
}

type unlimited struct{}

func (unlimited) Name() string { return "none" }
func (unlimited) Allow(context.Context, string) (registryratelimit.Decision, error) {
	return registryratelimit.Decision{Allowed: true}, nil
}
