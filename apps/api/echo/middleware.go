package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/gradebook/core/gradebook"
)

const contextStoreKey = "gradebookStore"

// storeMiddleware puts the loaded Store of the authenticated owner in the context.
func storeMiddleware(registry *gradebook.Registry) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return err
			}
			store, err := registry.Get(ctx.Request().Context(), claims.Subject)
			if err != nil {
				return errors.Wrap(err, "getting gradebook store")
			}
			ctx.Set(contextStoreKey, store)
			return next(ctx)
		}
	}
}

func getContextStore(ctx echo.Context) (*gradebook.Store, error) {
	if store, ok := ctx.Get(contextStoreKey).(*gradebook.Store); ok {
		return store, nil
	}
	return nil, errors.New("gradebook store not found in echo.Context")
}
