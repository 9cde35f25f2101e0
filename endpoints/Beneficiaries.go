package endpoints

import (
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
	val "github.com/go-ozzo/ozzo-validation"
	"gorm.io/gorm"

	"github.com/Esja2001/CoopVilcabamba-sub000/assert"
	"github.com/Esja2001/CoopVilcabamba-sub000/kernel"
	"github.com/Esja2001/CoopVilcabamba-sub000/models"
	"github.com/Esja2001/CoopVilcabamba-sub000/utils"
)

func RegisterBeneficiaries(rg *gin.RouterGroup) {
	g := rg.Group("/beneficiaries")

	g.GET("", ListBeneficiaries)
	g.POST("", CreateBeneficiary)
	g.DELETE("/:id", DeleteBeneficiary)
}

type CreateBeneficiaryDto struct {
	Alias         string `json:"alias" binding:"required"`
	Kind          string `json:"kind" binding:"required"`
	AccountNumber string `json:"accountNumber" binding:"required"`
	AccountType   string `json:"accountType"`

	HolderDocument string `json:"holderDocument" binding:"required"`
	HolderName     string `json:"holderName" binding:"required"`

	// interbank only
	BankCode string `json:"bankCode"`
	BankName string `json:"bankName"`
}

func (dto CreateBeneficiaryDto) Validate() error {
	rules := []*val.FieldRules{
		val.Field(&dto.Alias, val.Required, val.Length(3, 40)),
		val.Field(&dto.Kind, val.Required, val.In(models.TKIND_COOPERATIVE, models.TKIND_INTERBANK)),
		val.Field(&dto.AccountNumber, val.Required, val.By(accountRule)),
		val.Field(&dto.AccountType, val.In("savings", "checking")),
		val.Field(&dto.HolderDocument, val.Required, val.By(cedulaRule)),
		val.Field(&dto.HolderName, val.Required, val.Length(3, 80)),
	}

	if dto.Kind == models.TKIND_INTERBANK {
		rules = append(rules,
			val.Field(&dto.BankCode, val.Required),
			val.Field(&dto.BankName, val.Required),
		)
	}

	return val.ValidateStruct(&dto, rules...)
}

func accountRule(value interface{}) error {
	s, _ := value.(string)
	if !utils.ValidAccountNumber(s) {
		return fmt.Errorf("invalid account number")
	}
	return nil
}

func ListBeneficiaries(c *gin.Context) {
	rt := c.MustGet("rt").(*kernel.RequestRuntime)
	rt.StepInto("beneficiaries.list")

	assert.NotNil(rt.Session, "session != nil")

	var beneficiaries []models.Beneficiary
	result := rt.DB.WithContext(c.Request.Context()).
		Where("holder_id = ?", rt.Session.HolderID).
		Order("alias").
		Find(&beneficiaries)
	if result.Error != nil {
		rt.Ef(500, "failed to query beneficiaries: %v", result.Error)
		return
	}

	out := make([]gin.H, 0, len(beneficiaries))
	for _, b := range beneficiaries {
		out = append(out, gin.H{
			"id":             b.ID,
			"alias":          b.Alias,
			"kind":           b.Kind,
			"accountNumber":  b.AccountNumber,
			"accountType":    b.AccountType,
			"holderDocument": b.HolderDocument,
			"holderName":     b.HolderName,
			"bankCode":       b.BankCode,
			"bankName":       b.BankName,
		})
	}

	c.JSON(200, &gin.H{"beneficiaries": out})
	rt.EndBlock()
}

func CreateBeneficiary(c *gin.Context) {
	rt := c.MustGet("rt").(*kernel.RequestRuntime)
	rt.StepInto("beneficiaries.create")

	assert.NotNil(rt.Session, "session != nil")

	var dto CreateBeneficiaryDto
	if err := rt.BindJSON(&dto); err != nil {
		rt.Ef(400, "bad request: %v", err)
		return
	}
	if err := dto.Validate(); err != nil {
		rt.Ef(400, "bad request: %v", err)
		return
	}

	m := &models.Beneficiary{
		HolderID: rt.Session.HolderID,

		Alias:         dto.Alias,
		Kind:          dto.Kind,
		AccountNumber: dto.AccountNumber,
		AccountType:   dto.AccountType,

		HolderDocument: dto.HolderDocument,
		HolderName:     dto.HolderName,

		BankCode: dto.BankCode,
		BankName: dto.BankName,
	}

	result := rt.DB.Create(m)
	if result.Error != nil {
		rt.Ef(500, "failed to save beneficiary: %v", result.Error)
		return
	}

	c.JSON(201, &gin.H{"id": m.ID})
	rt.EndBlock()
}

func DeleteBeneficiary(c *gin.Context) {
	rt := c.MustGet("rt").(*kernel.RequestRuntime)
	rt.StepInto("beneficiaries.delete")

	assert.NotNil(rt.Session, "session != nil")

	id := c.Param("id")

	var beneficiary models.Beneficiary
	err := rt.DB.First(&beneficiary, "id = ? AND holder_id = ?", id, rt.Session.HolderID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			rt.Ef(404, "beneficiary with ID '%s' not found", id)
			return
		}
		rt.Ef(500, "failed to query beneficiary: %v", err)
		return
	}

	if result := rt.DB.Delete(&beneficiary); result.Error != nil {
		rt.Ef(500, "failed to delete beneficiary: %v", result.Error)
		return
	}

	c.Status(204)
	rt.EndBlock()
}
