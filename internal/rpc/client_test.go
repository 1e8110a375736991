package rpc

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// rpcHandler answers each JSON-RPC request with the result produced by fn.
func rpcHandler(t *testing.T, fn func(req rpcRequest) (interface{}, *RPCError)) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}

		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
		}
		result, rpcErr := fn(req)
		if rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = result
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

func TestClient_GetAccountInfo(t *testing.T) {
	data := base64.StdEncoding.EncodeToString([]byte{1, 2, 3, 4})

	server := httptest.NewServer(rpcHandler(t, func(req rpcRequest) (interface{}, *RPCError) {
		if req.Method != "getAccountInfo" {
			t.Errorf("expected method getAccountInfo, got %s", req.Method)
		}
		return map[string]interface{}{
			"context": map[string]interface{}{"slot": 100},
			"value": map[string]interface{}{
				"lamports":   uint64(5000),
				"owner":      "11111111111111111111111111111111",
				"data":       []string{data, "base64"},
				"executable": false,
				"rentEpoch":  uint64(361),
			},
		}, nil
	}))
	defer server.Close()

	client := NewClient(server.URL)
	info, err := client.GetAccountInfo(context.Background(), "somekey")
	if err != nil {
		t.Fatalf("GetAccountInfo: %v", err)
	}
	if info == nil {
		t.Fatal("expected account info, got nil")
	}
	if info.Lamports != 5000 {
		t.Errorf("lamports = %d, want 5000", info.Lamports)
	}
	if len(info.Data) != 4 || info.Data[0] != 1 {
		t.Errorf("unexpected data: %v", info.Data)
	}
}

func TestClient_GetAccountInfo_NotFound(t *testing.T) {
	server := httptest.NewServer(rpcHandler(t, func(req rpcRequest) (interface{}, *RPCError) {
		return map[string]interface{}{"value": nil}, nil
	}))
	defer server.Close()

	client := NewClient(server.URL)
	info, err := client.GetAccountInfo(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetAccountInfo: %v", err)
	}
	if info != nil {
		t.Errorf("expected nil for missing account, got %+v", info)
	}
}

func TestClient_GetBalance(t *testing.T) {
	server := httptest.NewServer(rpcHandler(t, func(req rpcRequest) (interface{}, *RPCError) {
		return map[string]interface{}{"value": uint64(123456)}, nil
	}))
	defer server.Close()

	client := NewClient(server.URL)
	balance, err := client.GetBalance(context.Background(), "somekey")
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if balance != 123456 {
		t.Errorf("balance = %d, want 123456", balance)
	}
}

func TestClient_GetLatestBlockhash(t *testing.T) {
	server := httptest.NewServer(rpcHandler(t, func(req rpcRequest) (interface{}, *RPCError) {
		return map[string]interface{}{
			"context": map[string]interface{}{"slot": uint64(777)},
			"value": map[string]interface{}{
				"blockhash":            "EkSnNWid2cvwEVnVx9aBqawnmiCNiDgp3gUdkDPTKN1N",
				"lastValidBlockHeight": uint64(999),
			},
		}, nil
	}))
	defer server.Close()

	client := NewClient(server.URL)
	bh, err := client.GetLatestBlockhash(context.Background())
	if err != nil {
		t.Fatalf("GetLatestBlockhash: %v", err)
	}
	if bh == nil || bh.Blockhash == "" {
		t.Fatal("expected blockhash")
	}
	if bh.Slot != 777 || bh.LastValidBlockHeight != 999 {
		t.Errorf("unexpected blockhash metadata: %+v", bh)
	}
}

func TestClient_SendTransaction(t *testing.T) {
	server := httptest.NewServer(rpcHandler(t, func(req rpcRequest) (interface{}, *RPCError) {
		if req.Method != "sendTransaction" {
			t.Errorf("expected sendTransaction, got %s", req.Method)
		}
		return "5sig123", nil
	}))
	defer server.Close()

	client := NewClient(server.URL)
	sig, err := client.SendTransaction(context.Background(), "dHg=")
	if err != nil {
		t.Fatalf("SendTransaction: %v", err)
	}
	if sig != "5sig123" {
		t.Errorf("signature = %s, want 5sig123", sig)
	}
}

func TestClient_RPCErrorNotRetried(t *testing.T) {
	var calls int
	server := httptest.NewServer(rpcHandler(t, func(req rpcRequest) (interface{}, *RPCError) {
		calls++
		return nil, &RPCError{Code: -32602, Message: "invalid params"}
	}))
	defer server.Close()

	client := NewClient(server.URL, WithMaxRetries(3), WithRetryDelay(time.Millisecond))
	_, err := client.GetSlot(context.Background())

	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("expected RPCError, got %v", err)
	}
	if calls != 1 {
		t.Errorf("RPC error was retried %d times", calls)
	}
}

func TestClient_NetworkErrorRetried(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	endpoint := server.URL
	server.Close() // refuse all connections

	client := NewClient(endpoint, WithMaxRetries(2), WithRetryDelay(time.Millisecond))
	_, err := client.GetSlot(context.Background())
	if !errors.Is(err, ErrNetwork) {
		t.Errorf("expected ErrNetwork, got %v", err)
	}
}

func TestClient_APIKeyHeader(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-API-Key"); got != "k3y" {
			t.Errorf("API key header = %q, want k3y", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":42}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, WithAPIKey("k3y"))
	slot, err := client.GetSlot(context.Background())
	if err != nil {
		t.Fatalf("GetSlot: %v", err)
	}
	if slot != 42 {
		t.Errorf("slot = %d, want 42", slot)
	}
}

func TestClient_GetHealth(t *testing.T) {
	server := httptest.NewServer(rpcHandler(t, func(req rpcRequest) (interface{}, *RPCError) {
		return "ok", nil
	}))
	defer server.Close()

	client := NewClient(server.URL)
	if err := client.GetHealth(context.Background()); err != nil {
		t.Errorf("GetHealth: %v", err)
	}
}

func TestClient_GetTransaction_NotFound(t *testing.T) {
	server := httptest.NewServer(rpcHandler(t, func(req rpcRequest) (interface{}, *RPCError) {
		return nil, nil
	}))
	defer server.Close()

	client := NewClient(server.URL)
	tx, err := client.GetTransaction(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	if tx != nil {
		t.Errorf("expected nil for missing transaction, got %+v", tx)
	}
}

func TestClient_RouterMethods(t *testing.T) {
	server := httptest.NewServer(rpcHandler(t, func(req rpcRequest) (interface{}, *RPCError) {
		switch req.Method {
		case "delegateAccount", "commitAccounts", "undelegateAccount", "executePrivateTransfer":
			return "routersig", nil
		case "verifyVrf", "verifyTEEAttestation":
			return true, nil
		case "requestVrf":
			return map[string]interface{}{
				"randomness": "cmFuZA==",
				"proof":      "cHJvb2Y=",
				"slot":       uint64(55),
			}, nil
		default:
			return nil, &RPCError{Code: -32601, Message: "method not found"}
		}
	}))
	defer server.Close()

	client := NewClient(server.URL)
	ctx := context.Background()

	sig, err := client.DelegateAccount(ctx, "acct", "validator", "record", "ZGF0YQ==")
	if err != nil || sig != "routersig" {
		t.Errorf("DelegateAccount = (%s, %v)", sig, err)
	}

	vrf, err := client.RequestVrf(ctx, "vrfacct", "c2VlZA==")
	if err != nil {
		t.Fatalf("RequestVrf: %v", err)
	}
	if vrf.Slot != 55 {
		t.Errorf("vrf slot = %d, want 55", vrf.Slot)
	}

	ok, err := client.VerifyTEEAttestation(ctx, "sig")
	if err != nil || !ok {
		t.Errorf("VerifyTEEAttestation = (%v, %v)", ok, err)
	}
}
