package serve

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type BaseController struct {
}

func (b *BaseController) GET(r gin.IRoutes, p string, f func(ctx *gin.Context) error) {
	r.GET(p, func(ctx *gin.Context) {
		if err := f(ctx); err != nil {
			b.Abort(ctx, err)
		}
	})
}

func (b *BaseController) Abort(ctx *gin.Context, err error) {
	ctx.Abort()
	_ = ctx.Error(err)
}

// HandlerController mounts a plain http.Handler, e.g. the Prometheus one.
type HandlerController struct {
	BaseController
	Handler http.Handler
}

func (h *HandlerController) InitRoute(routes gin.IRoutes, path string) {
	h.GET(routes, path, func(ctx *gin.Context) error {
		h.Handler.ServeHTTP(ctx.Writer, ctx.Request)
		return nil
	})
}

// HealthController reports 503 while any check fails.
type HealthController struct {
	BaseController
	Checks map[string]func() error
}

func (h *HealthController) InitRoute(routes gin.IRoutes, path string) {
	h.GET(routes, path, func(ctx *gin.Context) error {
		status := gin.H{}
		for name, check := range h.Checks {
			if err := check(); err != nil {
				return &CheckError{Name: name, Err: err}
			}
			status[name] = "ok"
		}
		ctx.JSON(http.StatusOK, status)
		return nil
	})
}

type CheckError struct {
	Name string
	Err  error
}

func (e *CheckError) Error() string { return e.Name + ": " + e.Err.Error() }
func (e *CheckError) Unwrap() error { return e.Err }
