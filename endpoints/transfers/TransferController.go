package transfers

import (
	"github.com/gin-gonic/gin"

	"github.com/Esja2001/CoopVilcabamba-sub000/flow"
)

func RegisterController(rg *gin.RouterGroup) {
	g := rg.Group("/transfers")

	g.POST("", InitiateTransfer)
	g.GET("/:flowId", TransferStatus)
	g.POST("/:flowId/otp", SubmitOtp)
	g.POST("/:flowId/resend", ResendOtp)
	g.POST("/:flowId/cancel", CancelTransfer)
}

// flowView renders the flow's position for the client.
func flowView(flowID string, r *flow.Result) gin.H {
	h := gin.H{
		"flowId":            flowID,
		"state":             r.State,
		"remainingAttempts": r.RemainingAttempts,
	}
	if r.Rejection != "" {
		h["rejection"] = r.Rejection
		h["message"] = r.Message
	}
	if r.Outcome != nil {
		h["outcome"] = outcomeView(*r.Outcome)
	}
	return h
}

func outcomeView(o flow.Outcome) gin.H {
	h := gin.H{"kind": o.Kind}
	switch o.Kind {
	case flow.OutcomeCommitted:
		h["reference"] = o.Reference
		h["executedAt"] = o.ExecutedAt
	case flow.OutcomeCancelled:
		h["reason"] = o.CancelReason
	case flow.OutcomeFailed:
		h["errorKind"] = o.ErrorKind
		h["message"] = o.Message
	}
	return h
}
