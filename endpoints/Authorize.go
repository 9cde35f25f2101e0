package endpoints

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	val "github.com/go-ozzo/ozzo-validation"

	"github.com/Esja2001/CoopVilcabamba-sub000/kernel"
	"github.com/Esja2001/CoopVilcabamba-sub000/models"
	"github.com/Esja2001/CoopVilcabamba-sub000/utils"
)

type AuthorizeDto struct {
	Document string `json:"document" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (dto AuthorizeDto) Validate() error {
	return val.ValidateStruct(&dto,
		val.Field(&dto.Document, val.Required, val.By(cedulaRule)),
		val.Field(&dto.Password, val.Required),
	)
}

func cedulaRule(value interface{}) error {
	s, _ := value.(string)
	if !utils.ValidCedula(s) {
		return fmt.Errorf("invalid identity document")
	}
	return nil
}

// Authorize logs a holder in against the gateway and issues an API key.
// The key is returned in plaintext exactly once and stored hashed.
func Authorize(c *gin.Context) {
	rt := c.MustGet("rt").(*kernel.RequestRuntime)
	rt.StepInto("authorize.handler")

	art := rt.AppRuntime

	var dto AuthorizeDto
	if err := c.ShouldBindJSON(&dto); err != nil {
		rt.Ef(400, "bad request: %v", err)
		return
	}
	if err := dto.Validate(); err != nil {
		rt.Ef(400, "bad request: %v", err)
		return
	}

	holder, err := art.Gateway.Authenticate(rt.SpanContext, dto.Document, dto.Password)
	if err != nil {
		rt.EGateway(err)
		return
	}

	token, err := kernel.RandomToken(32)
	if err != nil {
		rt.Ef(500, "could not generate session token: %v", err)
		return
	}

	session := &models.Session{
		TokenHash:  kernel.Sha512(token),
		ExpiresAt:  time.Now().Add(art.SessionTTL),
		HolderID:   holder.ID,
		HolderName: holder.FullName,
		Document:   dto.Document,
	}

	result := rt.DB.Create(session)
	if result.Error != nil {
		rt.Ef(500, "failed to save session: %v", result.Error)
		return
	}

	c.JSON(200, &gin.H{
		"token":      token,
		"holderName": holder.FullName,
		"expiresAt":  session.ExpiresAt,
	})
	rt.EndBlock()
}
