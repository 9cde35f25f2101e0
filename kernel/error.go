package kernel

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/codes"

	"github.com/Esja2001/CoopVilcabamba-sub000/gateway"
)

func (rt *RequestRuntime) MakeError(err error) error {
	s := rt.Span
	s.RecordError(err)
	s.SetStatus(codes.Error, err.Error())
	s.End()
	rt.Error = err

	if c := rt.AppRuntime.Diagnostic.ErrorCounter; c != nil {
		c.Add(rt.SpanContext, 1)
	}

	rt.StepBack()
	return err
}

func (rt *RequestRuntime) MakeErrorf(format string, args ...interface{}) error {
	return rt.MakeError(fmt.Errorf(format, args...))
}

func (rt *RequestRuntime) E(code int, err error) *RequestRuntime {
	rt.RequestContext.AbortWithStatusJSON(code, &gin.H{
		"error":   rt.MakeError(err).Error(),
		"traceId": rt.Span.SpanContext().TraceID().String(),
	})
	return rt
}

func (rt *RequestRuntime) Ef(code int, format string, args ...interface{}) *RequestRuntime {
	return rt.E(code, fmt.Errorf(format, args...))
}

// EGateway aborts the request with an HTTP status derived from the gateway
// error's classification.
func (rt *RequestRuntime) EGateway(err error) *RequestRuntime {
	code := http.StatusInternalServerError
	switch gateway.KindOf(err) {
	case gateway.KindInvalidSession:
		code = http.StatusUnauthorized
	case gateway.KindInsufficientFunds:
		code = http.StatusUnprocessableEntity
	case gateway.KindWrongCode, gateway.KindExpiredCode:
		code = http.StatusConflict
	case gateway.KindUnavailable:
		code = http.StatusBadGateway
	}
	return rt.E(code, err)
}
