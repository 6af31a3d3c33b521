package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/attendo-api/pkg/config"
)

type recordedCall struct {
	Method string
	Params map[string]interface{}
}

func newRelayer(t *testing.T, handler func(call recordedCall) (int, string)) (*RelayerClient, *[]recordedCall) {
	t.Helper()
	var (
		mu    sync.Mutex
		calls []recordedCall
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string                   `json:"method"`
			Params []map[string]interface{} `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		call := recordedCall{Method: req.Method, Params: req.Params[0]}
		mu.Lock()
		calls = append(calls, call)
		mu.Unlock()
		status, body := handler(call)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	client := NewRelayerClient(config.LedgerConfig{
		Enabled:         true,
		RPCURL:          srv.URL,
		ContractAddress: "0xcontract",
		SignerAddress:   "0xteacher",
		Timeout:         time.Second,
		ValidityUnit:    time.Second,
		BreakerFailures: 2,
		BreakerTimeout:  time.Minute,
	}, srv.Client(), nil)
	return client, &calls
}

func TestRelayerCommitBatch(t *testing.T) {
	client, calls := newRelayer(t, func(call recordedCall) (int, string) {
		return http.StatusOK, `{"jsonrpc":"2.0","id":1,"result":{"txHash":"0xabc"}}`
	})

	req := Batch([]string{"A", "B", "C", "D", "E"}, 35*time.Second)
	result := client.Commit(context.Background(), req)

	require.True(t, result.Success())
	assert.Equal(t, "0xabc", result.TxHash)
	require.Len(t, *calls, 1)
	call := (*calls)[0]
	assert.Equal(t, methodUpdateBatch, call.Method)
	assert.Equal(t, []interface{}{"A", "B", "C", "D", "E"}, call.Params["codes"])
	assert.Equal(t, float64(35), call.Params["validityInMinutes"])
	assert.Equal(t, req.Hash(), call.Params["batchHash"])
}

func TestRelayerCommitSingleCode(t *testing.T) {
	client, calls := newRelayer(t, func(call recordedCall) (int, string) {
		return http.StatusOK, `{"jsonrpc":"2.0","id":1,"result":{"txHash":"0xdef"}}`
	})

	result := client.Commit(context.Background(), SingleCode("K3F9QZ-ABC", 7*time.Second))
	require.True(t, result.Success())
	assert.Equal(t, methodUpdateCode, (*calls)[0].Method)
	assert.Equal(t, "K3F9QZ-ABC", (*calls)[0].Params["code"])
}

func TestRelayerClassifiesRPCErrors(t *testing.T) {
	cases := []struct {
		name string
		body string
		want FailureKind
	}{
		{"rejected", `{"error":{"code":4001,"message":"User rejected the request"}}`, FailureRejected},
		{"revert", `{"error":{"code":-32000,"message":"execution reverted: only teacher"}}`, FailureReverted},
		{"already marked", `{"error":{"code":-32000,"message":"execution reverted: already marked"}}`, FailureAlreadyMarked},
		{"gas", `{"error":{"code":-32010,"message":"insufficient funds for gas"}}`, FailureGas},
		{"rpc", `{"error":{"code":-32601,"message":"method not found"}}`, FailureRPC},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client, _ := newRelayer(t, func(call recordedCall) (int, string) {
				return http.StatusOK, tc.body
			})
			result := client.Redeem(context.Background(), "CODE", "student-1")
			assert.Equal(t, StatusFailed, result.Status)
			assert.Equal(t, tc.want, result.Failure)
			assert.NotEmpty(t, result.Error)
		})
	}
}

func TestRelayerCircuitOpensOnTransportFailures(t *testing.T) {
	client, calls := newRelayer(t, func(call recordedCall) (int, string) {
		return http.StatusBadGateway, `bad gateway`
	})

	for i := 0; i < 2; i++ {
		result := client.Commit(context.Background(), SingleCode("X", time.Second))
		assert.Equal(t, FailureNetwork, result.Failure)
	}
	assert.False(t, client.Available())

	result := client.Commit(context.Background(), SingleCode("X", time.Second))
	assert.Equal(t, FailureCircuitOpen, result.Failure)
	assert.Len(t, *calls, 2)
}

func TestRelayerRPCErrorsDoNotTripBreaker(t *testing.T) {
	client, _ := newRelayer(t, func(call recordedCall) (int, string) {
		return http.StatusOK, `{"error":{"code":4001,"message":"user rejected"}}`
	})
	for i := 0; i < 5; i++ {
		client.Commit(context.Background(), SingleCode("X", time.Second))
	}
	assert.True(t, client.Available())
}

func TestNewReturnsDisabledWithoutSigner(t *testing.T) {
	client := New(config.LedgerConfig{Enabled: true, RPCURL: "http://relayer", ContractAddress: "0xc"}, nil)
	assert.False(t, client.Available())
	result := client.Commit(context.Background(), Batch([]string{"A"}, time.Second))
	assert.Equal(t, StatusUnavailable, result.Status)

	result = New(config.LedgerConfig{}, nil).Redeem(context.Background(), "A", "s")
	assert.Equal(t, StatusUnavailable, result.Status)
}

func TestValidityUnits(t *testing.T) {
	assert.Equal(t, uint64(35), ValidityUnits(35*time.Second, time.Second))
	assert.Equal(t, uint64(1), ValidityUnits(35*time.Second, time.Minute))
	assert.Equal(t, uint64(2), ValidityUnits(61*time.Second, time.Minute))
	assert.Equal(t, uint64(1), ValidityUnits(0, time.Second))
}

func TestRequestHashIsOrderSensitive(t *testing.T) {
	a := Batch([]string{"A", "B"}, time.Second).Hash()
	b := Batch([]string{"B", "A"}, time.Second).Hash()
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 66)
}
