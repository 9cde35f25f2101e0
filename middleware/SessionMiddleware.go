package middleware

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/Esja2001/CoopVilcabamba-sub000/kernel"
	"github.com/Esja2001/CoopVilcabamba-sub000/models"
)

func SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		rt := c.MustGet("rt").(*kernel.RequestRuntime)

		rt.StepInto("middleware.session")

		authHeader := c.GetHeader("X-Api-Key")
		if authHeader == "" {
			rt.Ef(401, "unauthorized: no auth header")
			return
		}

		hashedToken := kernel.Sha512(authHeader)

		session := models.Session{}
		res := rt.DB.WithContext(c.Request.Context()).First(&session, "token_hash = ?", hashedToken)
		if err := res.Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				rt.Ef(401, "unauthorized: invalid token")
				return
			}

			rt.Ef(500, "failed to authorize holder: could not query database: %s", err)
			return
		}

		if session.Expired(time.Now()) {
			rt.Ef(401, "unauthorized: session expired")
			return
		}

		rt.Session = &session

		rt.StepBack()
		c.Next()
	}
}
