package transfers

import (
	"github.com/gin-gonic/gin"

	"github.com/Esja2001/CoopVilcabamba-sub000/assert"
	"github.com/Esja2001/CoopVilcabamba-sub000/kernel"
	"github.com/Esja2001/CoopVilcabamba-sub000/models"
)

// TransferStatus reports a flow's position. Live flows come from the
// registry; resolved ones from the journal.
func TransferStatus(c *gin.Context) {
	rt := c.MustGet("rt").(*kernel.RequestRuntime)
	rt.StepInto("transfer_status.handler")

	assert.NotNil(rt.Session, "session != nil")

	flowID := c.Param("flowId")

	if f, ok := rt.AppRuntime.Flows.Get(flowID); ok && f.HolderID() == rt.Session.HolderID {
		view := gin.H{
			"flowId":            flowID,
			"state":             f.State(),
			"remainingAttempts": f.RemainingAttempts(),
			"resendAvailableIn": f.ResendAvailableIn().Seconds(),
		}
		if outcome, done := f.Outcome(); done {
			view["outcome"] = outcomeView(outcome)
		}
		c.JSON(200, view)
		rt.EndBlock()
		return
	}

	var record models.Transfer
	found, err := rt.First(&record, "flow_id = ? AND holder_id = ?", flowID, rt.Session.HolderID)
	if !found {
		if err != nil {
			rt.Ef(500, "failed to query database: %v", err)
			return
		}
		rt.Ef(404, "transfer flow '%s' not found", flowID)
		return
	}

	c.JSON(200, &gin.H{
		"flowId": flowID,
		"state":  record.Status,
		"outcome": gin.H{
			"kind":      record.Status,
			"reference": record.Reference,
			"reason":    record.FailureReason,
		},
	})
	rt.EndBlock()
}
