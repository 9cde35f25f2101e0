package kernel

import (
	"errors"
	"time"

	jwt "github.com/appleboy/gin-jwt/v2"
	"github.com/gin-gonic/gin"
	"github.com/matthewhartstonge/argon2"
	"gorm.io/gorm"

	"github.com/Esja2001/CoopVilcabamba-sub000/models"
)

type adminLogin struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// SetupAdminJWT builds the JWT middleware guarding the /admin routes.
// Requires PrepareDatabase to have run.
func (art *AppRuntime) SetupAdminJWT() error {
	mw, err := jwt.New(&jwt.GinJWTMiddleware{
		Realm:       art.Realm,
		Key:         art.SecretKey,
		IdentityKey: art.IdentityKey,
		Timeout:     time.Hour * 24 * 14, // 2 weeks

		Authenticator: func(c *gin.Context) (interface{}, error) {
			var login adminLogin
			if err := c.ShouldBindJSON(&login); err != nil {
				return nil, jwt.ErrMissingLoginValues
			}

			var admin models.Admin
			err := art.DatabaseClient.First(&admin, "email = ?", login.Email).Error
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return nil, jwt.ErrFailedAuthentication
				}
				return nil, err
			}
			if admin.Disabled {
				return nil, jwt.ErrFailedAuthentication
			}

			ok, err := argon2.VerifyEncoded([]byte(login.Password), []byte(admin.PasswordHash))
			if err != nil || !ok {
				return nil, jwt.ErrFailedAuthentication
			}
			return &admin, nil
		},

		PayloadFunc: func(data interface{}) jwt.MapClaims {
			if admin, ok := data.(*models.Admin); ok {
				return jwt.MapClaims{
					art.IdentityKey: admin.Email,
					"role":          admin.Role,
				}
			}
			return jwt.MapClaims{}
		},

		IdentityHandler: func(c *gin.Context) interface{} {
			claims := jwt.ExtractClaims(c)
			return claims[art.IdentityKey]
		},

		Authorizator: func(data interface{}, c *gin.Context) bool {
			return data != nil
		},
	})
	if err != nil {
		return err
	}

	art.JWT = mw
	return nil
}
