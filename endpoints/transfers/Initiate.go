package transfers

import (
	"fmt"

	"github.com/gin-gonic/gin"
	val "github.com/go-ozzo/ozzo-validation"
	"github.com/rs/zerolog/log"
	"go.nhat.io/otelsql/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Esja2001/CoopVilcabamba-sub000/assert"
	"github.com/Esja2001/CoopVilcabamba-sub000/flow"
	"github.com/Esja2001/CoopVilcabamba-sub000/gateway"
	"github.com/Esja2001/CoopVilcabamba-sub000/kernel"
	"github.com/Esja2001/CoopVilcabamba-sub000/models"
	"github.com/Esja2001/CoopVilcabamba-sub000/utils"
)

type InitTransferDto struct {
	Kind               string `json:"kind" binding:"required"` // refer to TransferKindValues
	SourceAccount      string `json:"sourceAccount" binding:"required"`
	DestinationAccount string `json:"destinationAccount" binding:"required"`
	Amount             string `json:"amount" binding:"required"`
	Memo               string `json:"memo" binding:"required"`

	// for interbank
	ReceivingBankCode   string `json:"receivingBankCode"`
	ReceiverName        string `json:"receiverName"`
	ReceiverDocument    string `json:"receiverDocument"`
	ReceiverAccountType string `json:"receiverAccountType"`
}

var TransferKindValues = []string{
	models.TKIND_SAME_OWNER,
	models.TKIND_COOPERATIVE,
	models.TKIND_INTERBANK,
}

func (dto InitTransferDto) Validate() error {
	rules := []*val.FieldRules{
		val.Field(&dto.Kind, val.Required, val.In(models.TKIND_SAME_OWNER, models.TKIND_COOPERATIVE, models.TKIND_INTERBANK)),
		val.Field(&dto.SourceAccount, val.Required, val.By(accountRule)),
		val.Field(&dto.DestinationAccount, val.Required, val.By(accountRule)),
		val.Field(&dto.Amount, val.Required),
		val.Field(&dto.Memo, val.Required, val.Length(3, 40)),
	}

	if dto.Kind == models.TKIND_INTERBANK {
		rules = append(rules,
			val.Field(&dto.ReceivingBankCode, val.Required),
			val.Field(&dto.ReceiverName, val.Required, val.Length(3, 80)),
			val.Field(&dto.ReceiverDocument, val.Required, val.By(cedulaRule)),
			val.Field(&dto.ReceiverAccountType, val.Required, val.In("savings", "checking")),
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

func cedulaRule(value interface{}) error {
	s, _ := value.(string)
	if !utils.ValidCedula(s) {
		return fmt.Errorf("invalid identity document")
	}
	return nil
}

// InitiateTransfer validates the form, pre-checks funds and starts the OTP
// authorization flow. The insufficient-funds check happens here so the
// holder sees it as a form error before any OTP is issued.
func InitiateTransfer(c *gin.Context) {
	rt := c.MustGet("rt").(*kernel.RequestRuntime)
	rt.StepInto("transfer_init.handler")

	assert.NotNil(rt.Session, "session != nil")

	art := rt.AppRuntime
	holderID := rt.Session.HolderID
	sessionID := rt.Session.ID

	var dto InitTransferDto
	if err := c.ShouldBindJSON(&dto); err != nil {
		rt.Ef(400, "bad request: %v", err)
		return
	}
	if err := dto.Validate(); err != nil {
		rt.Ef(400, "bad request: %v", err)
		return
	}

	amount, err := utils.ParseAmount(dto.Amount)
	if err != nil {
		rt.Ef(400, "bad request: %v", err)
		return
	}
	if dto.SourceAccount == dto.DestinationAccount {
		rt.Ef(400, "bad request: source and destination accounts must differ")
		return
	}

	if err := art.Gateway.CheckFunds(rt.SpanContext, holderID, dto.SourceAccount, amount); err != nil {
		rt.EGateway(err)
		return
	}

	transfer := gateway.PendingTransfer{
		Kind:               gateway.TransferKind(dto.Kind),
		SourceAccount:      dto.SourceAccount,
		DestinationAccount: dto.DestinationAccount,
		Amount:             amount,
		Memo:               dto.Memo,

		ReceivingBankCode:   dto.ReceivingBankCode,
		ReceiverName:        dto.ReceiverName,
		ReceiverDocument:    dto.ReceiverDocument,
		ReceiverAccountType: dto.ReceiverAccountType,
	}

	f := flow.New(art.Gateway, nil, art.FlowConfig, holderID, transfer)
	flowID, err := art.Flows.Add(f)
	if err != nil {
		rt.Ef(500, "could not register flow: %v", err)
		return
	}

	f.OnTerminal(func(o flow.Outcome) {
		recordOutcome(art, flowID, sessionID, holderID, transfer, o)
	})

	rt.Span.SetAttributes(
		attribute.KeyValue("flow.id", flowID),
		attribute.KeyValue("transfer.kind", dto.Kind),
	)
	art.Diagnostic.FlowCounter.Add(rt.SpanContext, 1,
		metric.WithAttributes(attribute.KeyValue("transfer.kind", dto.Kind)),
	)

	if err := f.Start(rt.SpanContext); err != nil {
		art.Flows.Remove(flowID)
		rt.EGateway(err)
		return
	}

	c.JSON(201, &gin.H{
		"flowId":            flowID,
		"state":             f.State(),
		"remainingAttempts": f.RemainingAttempts(),
	})
	rt.EndBlock()
}

// recordOutcome appends the journal row for a resolved flow and drops it
// from the registry. Runs on whatever goroutine resolved the flow, possibly
// a timer.
func recordOutcome(art *kernel.AppRuntime, flowID string, sessionID uint, holderID string, t gateway.PendingTransfer, o flow.Outcome) {
	defer art.Flows.Remove(flowID)

	m := &models.Transfer{
		SessionID: sessionID,
		HolderID:  holderID,
		FlowID:    flowID,

		Kind:               string(t.Kind),
		SourceAccount:      t.SourceAccount,
		DestinationAccount: t.DestinationAccount,
		Amount:             t.Amount.StringFixed(2),
		Currency:           "USD",
		Memo:               t.Memo,

		ReceivingBankCode:   t.ReceivingBankCode,
		ReceiverName:        t.ReceiverName,
		ReceiverDocument:    t.ReceiverDocument,
		ReceiverAccountType: t.ReceiverAccountType,
	}

	switch o.Kind {
	case flow.OutcomeCommitted:
		m.Status = models.TSTATUS_COMMITTED
		m.Reference = o.Reference
	case flow.OutcomeCancelled:
		m.Status = models.TSTATUS_CANCELLED
		m.FailureReason = o.CancelReason
	case flow.OutcomeFailed:
		m.Status = models.TSTATUS_FAILED
		m.FailureReason = o.Message
	}

	if result := art.DatabaseClient.Create(m); result.Error != nil {
		log.Error().Err(result.Error).Str("flow_id", flowID).Msg("failed to journal transfer outcome")
	}
}
