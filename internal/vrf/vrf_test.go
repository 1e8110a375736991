package vrf

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"obscura-core/internal/config"
	"obscura-core/internal/router"
	"obscura-core/internal/rpc"
)

const testRequester = "4Nd1mBQtrMJVYVfKf2PJy9NZUZdTAsp7D4xWLs4gDB4T"

// vrfServer answers requestVrf and verifyVrf; other methods get null.
func vrfServer(t *testing.T, verifyResult *bool, verifyErr bool) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     interface{} `json:"id"`
			Method string      `json:"method"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}

		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
		switch req.Method {
		case "requestVrf":
			resp["result"] = map[string]interface{}{"slot": 1234}
		case "verifyVrf":
			if verifyErr {
				resp["error"] = map[string]interface{}{"code": -32000, "message": "oracle offline"}
			} else {
				resp["result"] = *verifyResult
			}
		default:
			resp["result"] = nil
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

func newTestService(t *testing.T, routerURL string) *Service {
	t.Helper()
	cfg, err := config.ForNetwork(config.Devnet)
	require.NoError(t, err)

	r := router.New(cfg, router.WithClients(
		rpc.NewClient("http://unused", rpc.WithMaxRetries(0)),
		rpc.NewClient(routerURL, rpc.WithMaxRetries(0)),
	))
	return NewService(cfg, r, WithLogger(log.New(vrfTestWriter{t}, "[vrf] ", 0)))
}

type vrfTestWriter struct{ t *testing.T }

func (w vrfTestWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func TestRequestRandomness_GeneratedSeed(t *testing.T) {
	ok := true
	srv := vrfServer(t, &ok, false)
	defer srv.Close()

	s := newTestService(t, srv.URL)

	result, err := s.RequestRandomness(context.Background(), testRequester, nil)
	require.NoError(t, err)
	assert.Len(t, result.Randomness, 32)
	assert.Len(t, result.Proof, 64)
	assert.Equal(t, uint64(1234), result.Slot)
	assert.True(t, result.Verified)
	require.NotNil(t, result.VrfAccount)
	assert.NotEmpty(t, *result.VrfAccount)
}

func TestRequestRandomness_Deterministic(t *testing.T) {
	ok := true
	srv := vrfServer(t, &ok, false)
	defer srv.Close()

	s := newTestService(t, srv.URL)
	seed := []byte("fixed seed for determinism check")

	a, err := s.RequestRandomness(context.Background(), testRequester, seed)
	require.NoError(t, err)
	b, err := s.RequestRandomness(context.Background(), testRequester, seed)
	require.NoError(t, err)

	assert.Equal(t, a.Randomness, b.Randomness)
	assert.Equal(t, a.Proof, b.Proof)
}

func TestRequestRandomness_FreshSeedsDiffer(t *testing.T) {
	ok := true
	srv := vrfServer(t, &ok, false)
	defer srv.Close()

	s := newTestService(t, srv.URL)

	a, err := s.RequestRandomness(context.Background(), testRequester, nil)
	require.NoError(t, err)
	b, err := s.RequestRandomness(context.Background(), testRequester, nil)
	require.NoError(t, err)

	assert.NotEqual(t, a.Randomness, b.Randomness)
}

func TestVerify_SelfConsistency(t *testing.T) {
	// Router unreachable: the local recomputation decides.
	srv := vrfServer(t, nil, true)
	defer srv.Close()

	s := newTestService(t, srv.URL)

	result, err := s.RequestRandomness(context.Background(), testRequester, []byte("some seed"))
	require.NoError(t, err)

	verified := s.Verify(context.Background(), *result.VrfAccount, result.Proof, result.Randomness)
	assert.True(t, verified)
}

func TestVerify_EmptyInputs(t *testing.T) {
	ok := true
	srv := vrfServer(t, &ok, false)
	defer srv.Close()

	s := newTestService(t, srv.URL)

	assert.False(t, s.Verify(context.Background(), "acct", nil, []byte{1}))
	assert.False(t, s.Verify(context.Background(), "acct", []byte{1}, nil))
	assert.False(t, s.Verify(context.Background(), "acct", nil, nil))
}

func TestVerify_TamperedProofRejectedLocally(t *testing.T) {
	srv := vrfServer(t, nil, true) // router offline, local check decides
	defer srv.Close()

	s := newTestService(t, srv.URL)

	result, err := s.RequestRandomness(context.Background(), testRequester, []byte("some seed"))
	require.NoError(t, err)

	tampered := append([]byte(nil), result.Proof...)
	tampered[40] ^= 0xff
	assert.False(t, s.Verify(context.Background(), *result.VrfAccount, tampered, result.Randomness))

	wrongRandomness := append([]byte(nil), result.Randomness...)
	wrongRandomness[0] ^= 0xff
	assert.False(t, s.Verify(context.Background(), *result.VrfAccount, result.Proof, wrongRandomness))
}

func TestVerify_RouterVerdictAuthoritative(t *testing.T) {
	// The router rejects a pair the local scheme would accept.
	reject := false
	srv := vrfServer(t, &reject, false)
	defer srv.Close()

	s := newTestService(t, srv.URL)

	result, err := s.RequestRandomness(context.Background(), testRequester, []byte("some seed"))
	require.NoError(t, err)
	assert.False(t, result.Verified)
	assert.False(t, s.Verify(context.Background(), *result.VrfAccount, result.Proof, result.Randomness))
}

func TestCommitmentLayout(t *testing.T) {
	seed := make([]byte, 32)
	copy(seed, "abcdefgh")
	randomness, proof := commitment(seed)

	require.Len(t, proof, 64)
	assert.Equal(t, seed, proof[:32], "proof carries the seed")
	assert.True(t, verifyLocal(proof, randomness))
	assert.False(t, verifyLocal(proof[:40], randomness))
}

func TestRequestRandomness_InvalidRequester(t *testing.T) {
	ok := true
	srv := vrfServer(t, &ok, false)
	defer srv.Close()

	s := newTestService(t, srv.URL)

	_, err := s.RequestRandomness(context.Background(), "not-an-address", nil)
	require.Error(t, err)
}
