package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedCall struct {
	Process   int            `json:"process"`
	Holder    string         `json:"holder"`
	RequestID string         `json:"requestId"`
	Data      map[string]any `json:"data"`
}

// gatewayStub answers /prctrans with canned envelopes keyed by process code.
type gatewayStub struct {
	t       *testing.T
	replies map[int]string
	calls   []recordedCall
}

func (s *gatewayStub) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		require.Equal(s.t, http.MethodPost, r.Method)
		require.Equal(s.t, "/prctrans", r.URL.Path)
		require.NotEmpty(s.t, r.Header.Get("X-Request-ID"))

		var call recordedCall
		require.NoError(s.t, json.NewDecoder(r.Body).Decode(&call))
		s.calls = append(s.calls, call)

		reply, ok := s.replies[call.Process]
		if !ok {
			reply = `{"status":"091","message":"proceso no disponible"}`
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(reply))
	}
}

func newStubClient(t *testing.T, replies map[int]string) (*HTTPClient, *gatewayStub) {
	stub := &gatewayStub{t: t, replies: replies}
	srv := httptest.NewServer(stub.handler())
	t.Cleanup(srv.Close)
	return NewHTTPClient(srv.URL, time.Second), stub
}

func TestHTTPClientAuthenticate(t *testing.T) {
	c, stub := newStubClient(t, map[int]string{
		ProcAuthenticate: `{"status":"000","message":"ok","data":{"holderId":"H-0001","fullName":"Maria Quishpe"}}`,
	})

	holder, err := c.Authenticate(context.Background(), "1710034065", "secret")
	require.NoError(t, err)
	assert.Equal(t, "H-0001", holder.ID)
	assert.Equal(t, "Maria Quishpe", holder.FullName)

	require.Len(t, stub.calls, 1)
	assert.Equal(t, "1710034065", stub.calls[0].Data["document"])
	assert.Empty(t, stub.calls[0].Holder, "authentication carries no holder yet")
}

func TestHTTPClientAuthenticateRejected(t *testing.T) {
	c, _ := newStubClient(t, map[int]string{
		ProcAuthenticate: `{"status":"041","message":"credenciales invalidas"}`,
	})

	_, err := c.Authenticate(context.Background(), "1710034065", "wrong")
	require.Error(t, err)
	assert.Equal(t, KindInvalidSession, KindOf(err))

	var ge *Error
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, "041", ge.Status)
	assert.Equal(t, "credenciales invalidas", ge.Message)
}

func TestHTTPClientListPositions(t *testing.T) {
	c, _ := newStubClient(t, map[int]string{
		ProcPositions: `{"status":"000","data":{"positions":[
			{"accountId":"420001001234","productType":"savings","currency":"USD","available":"1520.75","ledger":"1620.75","status":"active"}
		]}}`,
	})

	positions, err := c.ListPositions(context.Background(), "H-0001")
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, "420001001234", positions[0].AccountID)
	assert.True(t, positions[0].Available.Equal(decimal.RequireFromString("1520.75")))
	assert.True(t, positions[0].Ledger.Equal(decimal.RequireFromString("1620.75")))
}

func TestHTTPClientRequestChallengeProcessCodes(t *testing.T) {
	cases := []struct {
		kind    TransferKind
		process int
	}{
		{KindSameOwner, ProcChallengeSameOwner},
		{KindCooperativeMember, ProcChallengeCooperative},
		{KindInterbank, ProcChallengeInterbank},
	}
	for _, tc := range cases {
		t.Run(string(tc.kind), func(t *testing.T) {
			c, stub := newStubClient(t, map[int]string{
				tc.process: `{"status":"000","data":{"idemsg":"MSG-778812"}}`,
			})

			ch, err := c.RequestChallenge(context.Background(), "H-0001", tc.kind)
			require.NoError(t, err)
			assert.Equal(t, "MSG-778812", ch.ID)

			require.Len(t, stub.calls, 1)
			assert.Equal(t, tc.process, stub.calls[0].Process)
			assert.Equal(t, "H-0001", stub.calls[0].Holder)
		})
	}
}

func TestHTTPClientRequestChallengeMissingID(t *testing.T) {
	c, _ := newStubClient(t, map[int]string{
		ProcChallengeCooperative: `{"status":"000","data":{}}`,
	})

	_, err := c.RequestChallenge(context.Background(), "H-0001", KindCooperativeMember)
	require.Error(t, err)
	assert.Equal(t, KindUnknown, KindOf(err))
}

func TestHTTPClientVerifyAndExecute(t *testing.T) {
	c, stub := newStubClient(t, map[int]string{
		ProcExecuteInterbank: `{"status":"000","data":{"reference":"TRX-20240601-0042","executedAt":"2024-06-01T10:15:00Z"}}`,
	})

	receipt, err := c.VerifyAndExecute(context.Background(), "H-0001", "MSG-778812", "123456", PendingTransfer{
		Kind:                KindInterbank,
		SourceAccount:       "420001001234",
		DestinationAccount:  "2100456789",
		Amount:              decimal.RequireFromString("80.5"),
		Memo:                "luz",
		ReceivingBankCode:   "0032",
		ReceiverName:        "Jose Paredes",
		ReceiverDocument:    "0604291472",
		ReceiverAccountType: "savings",
	})
	require.NoError(t, err)
	assert.Equal(t, "TRX-20240601-0042", receipt.ReferenceNumber)
	assert.Equal(t, time.Date(2024, 6, 1, 10, 15, 0, 0, time.UTC), receipt.ExecutedAt)

	require.Len(t, stub.calls, 1)
	data := stub.calls[0].Data
	assert.Equal(t, "MSG-778812", data["idemsg"])
	assert.Equal(t, "123456", data["otp"])
	assert.Equal(t, "80.50", data["amount"], "amounts travel with two fixed decimals")
	assert.Equal(t, "0032", data["receivingBankCode"])
}

func TestHTTPClientVerifyAndExecuteOmitsInterbankFields(t *testing.T) {
	c, stub := newStubClient(t, map[int]string{
		ProcExecuteSameOwner: `{"status":"000","data":{"reference":"TRX-1","executedAt":"2024-06-01T10:15:00Z"}}`,
	})

	_, err := c.VerifyAndExecute(context.Background(), "H-0001", "MSG-1", "123456", PendingTransfer{
		Kind:               KindSameOwner,
		SourceAccount:      "420001001234",
		DestinationAccount: "420001005678",
		Amount:             decimal.NewFromInt(10),
	})
	require.NoError(t, err)

	require.Len(t, stub.calls, 1)
	_, present := stub.calls[0].Data["receivingBankCode"]
	assert.False(t, present)
}

func TestHTTPClientStatusClassification(t *testing.T) {
	cases := map[string]ErrorKind{
		"041": KindInvalidSession,
		"051": KindWrongCode,
		"052": KindExpiredCode,
		"062": KindInsufficientFunds,
		"090": KindUnavailable,
		"091": KindUnavailable,
		"777": KindUnknown,
	}
	for status, want := range cases {
		c, _ := newStubClient(t, map[int]string{
			ProcExecuteCooperative: `{"status":"` + status + `","message":"rechazado"}`,
		})
		_, err := c.VerifyAndExecute(context.Background(), "H-0001", "MSG-1", "123456", PendingTransfer{
			Kind:   KindCooperativeMember,
			Amount: decimal.NewFromInt(1),
		})
		require.Error(t, err, status)
		assert.Equal(t, want, KindOf(err), "status %s", status)
	}
}

func TestHTTPClientTransportFailureIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewHTTPClient(url, time.Second)
	_, err := c.ListPositions(context.Background(), "H-0001")
	require.Error(t, err)
	assert.Equal(t, KindUnavailable, KindOf(err))
}

func TestHTTPClientNonOKHTTPStatusIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	c := NewHTTPClient(srv.URL, time.Second)
	_, err := c.ListPositions(context.Background(), "H-0001")
	require.Error(t, err)
	assert.Equal(t, KindUnavailable, KindOf(err))
}

func TestHTTPClientCheckFunds(t *testing.T) {
	c, stub := newStubClient(t, map[int]string{
		ProcCheckFunds: `{"status":"062","message":"fondos insuficientes"}`,
	})

	err := c.CheckFunds(context.Background(), "H-0001", "420001001234", decimal.RequireFromString("5000"))
	require.Error(t, err)
	assert.Equal(t, KindInsufficientFunds, KindOf(err))
	assert.Equal(t, "5000.00", stub.calls[0].Data["amount"])
}

func TestClassifyStatusUnknown(t *testing.T) {
	assert.Equal(t, KindUnknown, ClassifyStatus(""))
	assert.Equal(t, KindUnknown, ClassifyStatus("999"))
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, KindUnknown, KindOf(context.DeadlineExceeded))
}
