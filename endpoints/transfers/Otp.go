package transfers

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Esja2001/CoopVilcabamba-sub000/assert"
	"github.com/Esja2001/CoopVilcabamba-sub000/flow"
	"github.com/Esja2001/CoopVilcabamba-sub000/kernel"
)

type SubmitOtpDto struct {
	Code string `json:"code" binding:"required"`
}

// lookupFlow resolves the flow from the path parameter, scoped to the
// session's holder.
func lookupFlow(rt *kernel.RequestRuntime, c *gin.Context) (string, *flow.Flow, bool) {
	flowID := c.Param("flowId")

	f, ok := rt.AppRuntime.Flows.Get(flowID)
	if !ok || f.HolderID() != rt.Session.HolderID {
		rt.Ef(404, "transfer flow '%s' not found", flowID)
		return flowID, nil, false
	}
	return flowID, f, true
}

// SubmitOtp verifies the entered code and, on success, executes the
// transfer.
func SubmitOtp(c *gin.Context) {
	rt := c.MustGet("rt").(*kernel.RequestRuntime)
	rt.StepInto("transfer_otp.handler")

	assert.NotNil(rt.Session, "session != nil")

	var dto SubmitOtpDto
	if err := c.ShouldBindJSON(&dto); err != nil {
		rt.Ef(400, "bad request: %v", err)
		return
	}

	flowID, f, ok := lookupFlow(rt, c)
	if !ok {
		return
	}

	res, err := f.SubmitCode(rt.SpanContext, dto.Code)
	if err != nil {
		switch {
		case errors.Is(err, flow.ErrCodeFormat):
			rt.Ef(400, "bad request: %v", err)
		case errors.Is(err, flow.ErrNoChallenge):
			rt.Ef(409, "no active code: request a new one first")
		case errors.Is(err, flow.ErrBusy):
			rt.Ef(409, "a previous request is still being processed")
		default:
			rt.Ef(409, "code entry is not possible right now")
		}
		return
	}

	c.JSON(200, flowView(flowID, res))
	rt.EndBlock()
}

// ResendOtp invalidates the current code and requests a fresh challenge.
func ResendOtp(c *gin.Context) {
	rt := c.MustGet("rt").(*kernel.RequestRuntime)
	rt.StepInto("transfer_resend.handler")

	assert.NotNil(rt.Session, "session != nil")

	flowID, f, ok := lookupFlow(rt, c)
	if !ok {
		return
	}

	res, err := f.RequestResend(rt.SpanContext)
	if err != nil {
		var cooldown *flow.CooldownError
		switch {
		case errors.As(err, &cooldown):
			c.Header("Retry-After", cooldown.Remaining.Round(time.Second).String())
			rt.Ef(429, "resend not available yet: %v", err)
		case errors.Is(err, flow.ErrBusy):
			rt.Ef(409, "a previous request is still being processed")
		default:
			rt.Ef(409, "resend is not possible right now")
		}
		return
	}

	c.JSON(200, flowView(flowID, res))
	rt.EndBlock()
}

// CancelTransfer abandons the flow on the holder's request.
func CancelTransfer(c *gin.Context) {
	rt := c.MustGet("rt").(*kernel.RequestRuntime)
	rt.StepInto("transfer_cancel.handler")

	assert.NotNil(rt.Session, "session != nil")

	flowID, f, ok := lookupFlow(rt, c)
	if !ok {
		return
	}

	if err := f.Cancel(); err != nil {
		rt.Ef(409, "cancellation is not possible right now")
		return
	}

	outcome, _ := f.Outcome()
	c.JSON(200, &gin.H{
		"flowId":  flowID,
		"state":   f.State(),
		"outcome": outcomeView(outcome),
	})
	rt.EndBlock()
}
