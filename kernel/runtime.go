package kernel

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/Esja2001/CoopVilcabamba-sub000/models"
)

type spanCtxPair struct {
	span trace.Span
	ctx  context.Context
}

type RequestRuntime struct {
	AppRuntime *AppRuntime
	DB         *gorm.DB

	Session *models.Session

	RequestContext *gin.Context
	Span           trace.Span
	SpanContext    context.Context

	Error error

	pairs   []*spanCtxPair
	current uint8
}

func InitRequest(art *AppRuntime, rctx *gin.Context) *RequestRuntime {
	ctx := rctx.Request.Context()
	span, ctx := art.Diagnostic.BeginTracing(ctx, rctx.FullPath())

	log.Printf("Initializing request %s", rctx.Request.RequestURI)

	rt := &RequestRuntime{
		AppRuntime: art,
		DB:         art.DatabaseClient,

		RequestContext: rctx,
		Span:           span,
		SpanContext:    ctx,

		pairs:   make([]*spanCtxPair, 0),
		current: 0,
	}

	rt.pairs = append(rt.pairs, &spanCtxPair{span: span, ctx: ctx})

	return rt
}

func (rt *RequestRuntime) NewChildTracer(spanName string) *RequestRuntime {
	ctx, span := rt.AppRuntime.Diagnostic.Tracer.Start(rt.SpanContext, spanName)
	rt.PushTrace(span, ctx)
	return rt
}

// StepInto opens a child span and advances into it in one call.
func (rt *RequestRuntime) StepInto(spanName string) *RequestRuntime {
	return rt.NewChildTracer(spanName).Advance()
}

func (rt *RequestRuntime) PushTrace(span trace.Span, ctx context.Context) {
	rt.pairs = append(rt.pairs, &spanCtxPair{span: span, ctx: ctx})
}

func (rt *RequestRuntime) Advance() *RequestRuntime {
	if uint8(len(rt.pairs)-1) < rt.current+1 {
		log.Printf(" !!! trying to advance out of bounds, %d < %d", uint8(len(rt.pairs)-1), rt.current+1)
		return rt
	}
	rt.current = rt.current + 1

	pair := rt.pairs[rt.current]
	rt.Span = pair.span
	rt.SpanContext = pair.ctx
	return rt
}

func (rt *RequestRuntime) StepBack() {
	if rt.current == 0 {
		log.Printf(" !!! trying to step back out of bounds")
		return
	}

	rt.current = rt.current - 1

	pair := rt.pairs[rt.current]
	rt.Span = pair.span
	rt.SpanContext = pair.ctx
}

// SetIndex jumps to an arbitrary position in the span stack.
func (rt *RequestRuntime) SetIndex(index uint8) {
	if uint8(len(rt.pairs)) <= index {
		log.Printf(" !!! trying to skip over out of bounds")
		return
	}

	rt.current = index
	pair := rt.pairs[rt.current]
	rt.Span = pair.span
	rt.SpanContext = pair.ctx
}

func (rt *RequestRuntime) End() *RequestRuntime {
	if rt.Span.IsRecording() {
		rt.Span.End()
	} else {
		return rt
	}
	rt.pairs = append(rt.pairs[:rt.current], rt.pairs[rt.current+1:]...)
	return rt
}

func (rt *RequestRuntime) EndBlock() {
	rt.End().StepBack()
}
