package endpoints

import (
	"github.com/gin-gonic/gin"
	"go.nhat.io/otelsql/attribute"

	"github.com/Esja2001/CoopVilcabamba-sub000/assert"
	"github.com/Esja2001/CoopVilcabamba-sub000/kernel"
)

// Accounts lists the holder's positions (savings, checking, deposits) with
// balances.
func Accounts(c *gin.Context) {
	rt := c.MustGet("rt").(*kernel.RequestRuntime)
	rt.StepInto("accounts.handler")

	assert.NotNil(rt.Session, "session != nil")

	art := rt.AppRuntime
	rt.Span.SetAttributes(attribute.KeyValue("holder.id", rt.Session.HolderID))

	positions, err := art.Gateway.ListPositions(rt.SpanContext, rt.Session.HolderID)
	if err != nil {
		rt.EGateway(err)
		return
	}

	out := make([]gin.H, 0, len(positions))
	for _, p := range positions {
		out = append(out, gin.H{
			"accountId":   p.AccountID,
			"productType": p.ProductType,
			"currency":    p.Currency,
			"available":   p.Available.StringFixed(2),
			"ledger":      p.Ledger.StringFixed(2),
			"status":      p.Status,
		})
	}

	c.JSON(200, &gin.H{"accounts": out})
	rt.EndBlock()
}
