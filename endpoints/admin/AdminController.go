package admin

import (
	"github.com/gin-gonic/gin"

	"github.com/Esja2001/CoopVilcabamba-sub000/kernel"
	"github.com/Esja2001/CoopVilcabamba-sub000/models"
)

func RegisterController(rg *gin.Engine) {
	art := kernel.LoadConfig()

	g := rg.Group("/admin")
	g.POST("/login", art.JWT.LoginHandler)

	authorized := g.Group("/")
	authorized.Use(art.JWT.MiddlewareFunc())
	{
		authorized.GET("/refresh_token", art.JWT.RefreshHandler)
		authorized.GET("/transfers", ListTransfers)
		authorized.GET("/sessions", ListSessions)
	}
}

// ListTransfers returns the most recent journal rows across all holders.
func ListTransfers(c *gin.Context) {
	art := kernel.LoadConfig()

	var transfers []models.Transfer
	result := art.DatabaseClient.WithContext(c.Request.Context()).
		Order("created_at DESC").
		Limit(100).
		Find(&transfers)
	if result.Error != nil {
		c.AbortWithStatusJSON(500, &gin.H{"error": result.Error.Error()})
		return
	}

	out := make([]gin.H, 0, len(transfers))
	for _, t := range transfers {
		out = append(out, gin.H{
			"flowId":             t.FlowID,
			"holderId":           t.HolderID,
			"kind":               t.Kind,
			"sourceAccount":      t.SourceAccount,
			"destinationAccount": t.DestinationAccount,
			"amount":             t.Amount,
			"status":             t.Status,
			"reference":          t.Reference,
			"failureReason":      t.FailureReason,
			"createdAt":          t.CreatedAt,
		})
	}

	c.JSON(200, &gin.H{"transfers": out})
}

// ListSessions returns the active portal sessions.
func ListSessions(c *gin.Context) {
	art := kernel.LoadConfig()

	var sessions []models.Session
	result := art.DatabaseClient.WithContext(c.Request.Context()).
		Where("expires_at > NOW()").
		Order("created_at DESC").
		Limit(100).
		Find(&sessions)
	if result.Error != nil {
		c.AbortWithStatusJSON(500, &gin.H{"error": result.Error.Error()})
		return
	}

	out := make([]gin.H, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, gin.H{
			"holderId":   s.HolderID,
			"holderName": s.HolderName,
			"createdAt":  s.CreatedAt,
			"expiresAt":  s.ExpiresAt,
		})
	}

	c.JSON(200, &gin.H{"sessions": out})
}
