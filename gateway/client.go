package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// DefaultTimeout is the per-call transport timeout against the gateway. The
// authorization flow's overall deadline is enforced separately by the flow.
const DefaultTimeout = 60 * time.Second

// HTTPClient talks to the legacy prctrans endpoint: every operation is a
// POST of the same JSON envelope with a numeric process code.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

type envelope struct {
	Process   int            `json:"process"`
	Holder    string         `json:"holder,omitempty"`
	RequestID string         `json:"requestId"`
	Data      map[string]any `json:"data,omitempty"`
}

type response struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// call executes one gateway operation and returns the decoded payload.
// Transport failures and non-2xx responses classify as unavailable; a non-OK
// envelope status classifies via the status table.
func (c *HTTPClient) call(ctx context.Context, process int, holderID string, data map[string]any) (json.RawMessage, error) {
	requestID, err := uuid.NewV7()
	if err != nil {
		return nil, &Error{Kind: KindUnknown, Message: fmt.Sprintf("could not generate request id: %v", err)}
	}

	j, err := json.Marshal(&envelope{
		Process:   process,
		Holder:    holderID,
		RequestID: requestID.String(),
		Data:      data,
	})
	if err != nil {
		return nil, &Error{Kind: KindUnknown, Message: fmt.Sprintf("could not marshal request: %v", err)}
	}

	url := fmt.Sprintf("%s/prctrans", c.baseURL)
	r, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(j))
	if err != nil {
		return nil, &Error{Kind: KindUnknown, Message: fmt.Sprintf("could not create request: %v", err)}
	}
	r.Header.Add("Content-Type", "application/json")
	r.Header.Add("X-Request-ID", requestID.String())

	log.Debug().Int("process", process).Str("request_id", requestID.String()).Msg("gateway call")

	rsp, err := c.http.Do(r)
	if err != nil {
		return nil, &Error{Kind: KindUnavailable, Message: fmt.Sprintf("could not execute request: %v", err)}
	}
	defer func(body io.ReadCloser) {
		if err := body.Close(); err != nil {
			log.Warn().Err(err).Msg("could not close response body")
		}
	}(rsp.Body)

	body, err := io.ReadAll(rsp.Body)
	if err != nil {
		return nil, &Error{Kind: KindUnavailable, Message: fmt.Sprintf("could not read response body: %v", err)}
	}

	if rsp.StatusCode != http.StatusOK {
		return nil, &Error{
			Kind:    KindUnavailable,
			Message: fmt.Sprintf("gateway returned a non-OK status code %d: %s", rsp.StatusCode, string(body)),
		}
	}

	var res response
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, &Error{Kind: KindUnknown, Message: fmt.Sprintf("could not unmarshal response body: %v", err)}
	}

	if res.Status != statusOK {
		log.Debug().Int("process", process).Str("status", res.Status).Msg("gateway rejected call")
		return nil, &Error{Kind: ClassifyStatus(res.Status), Status: res.Status, Message: res.Message}
	}

	return res.Data, nil
}

func (c *HTTPClient) Authenticate(ctx context.Context, document, password string) (*Holder, error) {
	data, err := c.call(ctx, ProcAuthenticate, "", map[string]any{
		"document": document,
		"password": password,
	})
	if err != nil {
		return nil, err
	}

	var res struct {
		HolderID string `json:"holderId"`
		FullName string `json:"fullName"`
	}
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, &Error{Kind: KindUnknown, Message: fmt.Sprintf("could not unmarshal payload: %v", err)}
	}
	return &Holder{ID: res.HolderID, FullName: res.FullName}, nil
}

func (c *HTTPClient) ListPositions(ctx context.Context, holderID string) ([]Position, error) {
	data, err := c.call(ctx, ProcPositions, holderID, nil)
	if err != nil {
		return nil, err
	}

	var res struct {
		Positions []struct {
			AccountID   string `json:"accountId"`
			ProductType string `json:"productType"`
			Currency    string `json:"currency"`
			Available   string `json:"available"`
			Ledger      string `json:"ledger"`
			Status      string `json:"status"`
		} `json:"positions"`
	}
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, &Error{Kind: KindUnknown, Message: fmt.Sprintf("could not unmarshal payload: %v", err)}
	}

	positions := make([]Position, 0, len(res.Positions))
	for _, p := range res.Positions {
		available, err := decimal.NewFromString(p.Available)
		if err != nil {
			return nil, &Error{Kind: KindUnknown, Message: fmt.Sprintf("bad available balance %q: %v", p.Available, err)}
		}
		ledger, err := decimal.NewFromString(p.Ledger)
		if err != nil {
			return nil, &Error{Kind: KindUnknown, Message: fmt.Sprintf("bad ledger balance %q: %v", p.Ledger, err)}
		}
		positions = append(positions, Position{
			AccountID:   p.AccountID,
			ProductType: p.ProductType,
			Currency:    p.Currency,
			Available:   available,
			Ledger:      ledger,
			Status:      p.Status,
		})
	}
	return positions, nil
}

func (c *HTTPClient) ListMovements(ctx context.Context, holderID, accountID string, q MovementQuery) ([]Movement, error) {
	data, err := c.call(ctx, ProcMovements, holderID, map[string]any{
		"accountId": accountID,
		"dateFrom":  q.DateFrom,
		"dateTo":    q.DateTo,
		"page":      q.Page,
		"pageSize":  q.PageSize,
	})
	if err != nil {
		return nil, err
	}

	var res struct {
		Movements []struct {
			ID          string `json:"id"`
			BookingDate string `json:"bookingDate"`
			Description string `json:"description"`
			Direction   string `json:"direction"`
			Amount      string `json:"amount"`
			Balance     string `json:"balance"`
		} `json:"movements"`
	}
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, &Error{Kind: KindUnknown, Message: fmt.Sprintf("could not unmarshal payload: %v", err)}
	}

	movements := make([]Movement, 0, len(res.Movements))
	for _, m := range res.Movements {
		amount, err := decimal.NewFromString(m.Amount)
		if err != nil {
			return nil, &Error{Kind: KindUnknown, Message: fmt.Sprintf("bad movement amount %q: %v", m.Amount, err)}
		}
		balance, err := decimal.NewFromString(m.Balance)
		if err != nil {
			return nil, &Error{Kind: KindUnknown, Message: fmt.Sprintf("bad movement balance %q: %v", m.Balance, err)}
		}
		movements = append(movements, Movement{
			ID:          m.ID,
			BookingDate: m.BookingDate,
			Description: m.Description,
			Direction:   m.Direction,
			Amount:      amount,
			Balance:     balance,
		})
	}
	return movements, nil
}

func (c *HTTPClient) CheckFunds(ctx context.Context, holderID, accountID string, amount decimal.Decimal) error {
	_, err := c.call(ctx, ProcCheckFunds, holderID, map[string]any{
		"accountId": accountID,
		"amount":    amount.StringFixed(2),
	})
	return err
}

func (c *HTTPClient) RequestChallenge(ctx context.Context, holderID string, kind TransferKind) (*OtpChallenge, error) {
	code, ok := challengeCodes[kind]
	if !ok {
		return nil, &Error{Kind: KindUnknown, Message: fmt.Sprintf("unknown transfer kind %q", kind)}
	}

	data, err := c.call(ctx, code, holderID, nil)
	if err != nil {
		return nil, err
	}

	var res struct {
		IdeMsg string `json:"idemsg"`
	}
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, &Error{Kind: KindUnknown, Message: fmt.Sprintf("could not unmarshal payload: %v", err)}
	}
	if res.IdeMsg == "" {
		return nil, &Error{Kind: KindUnknown, Message: "gateway did not return a challenge id"}
	}
	return &OtpChallenge{ID: res.IdeMsg, IssuedAt: time.Now()}, nil
}

func (c *HTTPClient) VerifyAndExecute(ctx context.Context, holderID, challengeID, code string, t PendingTransfer) (*Receipt, error) {
	proc, ok := executeCodes[t.Kind]
	if !ok {
		return nil, &Error{Kind: KindUnknown, Message: fmt.Sprintf("unknown transfer kind %q", t.Kind)}
	}

	body := map[string]any{
		"idemsg":             challengeID,
		"otp":                code,
		"sourceAccount":      t.SourceAccount,
		"destinationAccount": t.DestinationAccount,
		"amount":             t.Amount.StringFixed(2),
		"memo":               t.Memo,
	}
	if t.Kind == KindInterbank {
		body["receivingBankCode"] = t.ReceivingBankCode
		body["receiverName"] = t.ReceiverName
		body["receiverDocument"] = t.ReceiverDocument
		body["receiverAccountType"] = t.ReceiverAccountType
	}

	data, err := c.call(ctx, proc, holderID, body)
	if err != nil {
		return nil, err
	}

	var res struct {
		Reference  string `json:"reference"`
		ExecutedAt string `json:"executedAt"`
	}
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, &Error{Kind: KindUnknown, Message: fmt.Sprintf("could not unmarshal payload: %v", err)}
	}

	executedAt, err := time.Parse(time.RFC3339, res.ExecutedAt)
	if err != nil {
		executedAt = time.Now()
	}
	return &Receipt{ReferenceNumber: res.Reference, ExecutedAt: executedAt}, nil
}
