package endpoints

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"go.nhat.io/otelsql/attribute"

	"github.com/Esja2001/CoopVilcabamba-sub000/assert"
	"github.com/Esja2001/CoopVilcabamba-sub000/gateway"
	"github.com/Esja2001/CoopVilcabamba-sub000/kernel"
)

type TransactionsModel struct {
	AccountID string `form:"accountId" binding:"required"`

	DateFrom string `form:"dateFrom"` // YYYY-MM-DD
	DateTo   string `form:"dateTo"`   // YYYY-MM-DD
	Page     string `form:"page"`
	PageSize string `form:"pageSize"`
}

// Transactions lists the booked movements of one of the holder's accounts.
func Transactions(c *gin.Context) {
	rt := c.MustGet("rt").(*kernel.RequestRuntime)
	rt.StepInto("transactions.handler")

	assert.NotNil(rt.Session, "session != nil")

	art := rt.AppRuntime

	var query TransactionsModel
	if err := c.ShouldBindQuery(&query); err != nil {
		rt.Ef(400, "bad request: %v", err)
		return
	}

	page, _ := strconv.Atoi(query.Page)
	pageSize, _ := strconv.Atoi(query.PageSize)
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 25
	}

	rt.Span.SetAttributes(
		attribute.KeyValue("holder.id", rt.Session.HolderID),
		attribute.KeyValue("account.id", query.AccountID),
	)

	movements, err := art.Gateway.ListMovements(rt.SpanContext, rt.Session.HolderID, query.AccountID, gateway.MovementQuery{
		DateFrom: query.DateFrom,
		DateTo:   query.DateTo,
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		rt.EGateway(err)
		return
	}

	out := make([]gin.H, 0, len(movements))
	for _, m := range movements {
		out = append(out, gin.H{
			"id":          m.ID,
			"bookingDate": m.BookingDate,
			"description": m.Description,
			"direction":   m.Direction,
			"amount":      m.Amount.StringFixed(2),
			"balance":     m.Balance.StringFixed(2),
		})
	}

	c.JSON(200, &gin.H{
		"accountId": query.AccountID,
		"movements": out,
		"page":      page,
		"pageSize":  pageSize,
	})
	rt.EndBlock()
}
