package serve

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/C0nstantin/mailrelay/errors"
	"github.com/C0nstantin/mailrelay/log"
)

type Notificator interface {
	Notify(err error)
}

// DefaultErrorHandler turns errors left on the gin context into JSON
// responses. Health check failures map to 503, anything else to 500 and is
// passed to Notifier.
type DefaultErrorHandler struct {
	Logger   log.Logger
	Notifier Notificator
}

func (e *DefaultErrorHandler) Handler() []gin.HandlerFunc {
	return []gin.HandlerFunc{func(ctx *gin.Context) {
		ctx.Next()
		err := ctx.Errors.Last()
		if err == nil {
			return
		}
		if e.Logger == nil {
			e.Logger = log.NewLogger("serve")
		}
		e.Logger.Infof("Error in handler: %s", err.Error())

		var check *CheckError
		if errors.As(err.Err, &check) {
			ctx.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		if e.Notifier != nil {
			e.Notifier.Notify(err.Err)
		}
	}}
}
