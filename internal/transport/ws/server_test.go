package ws

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mintgate.io/internal/campaign"
	"mintgate.io/internal/campaign/campaigntest"
	"mintgate.io/internal/protocol"
)

func startServer(t *testing.T, h *campaigntest.Harness, opts Options) string {
	t.Helper()
	srv := NewServer(h.Runtime, opts, zap.NewNop())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(v))
}

func recv[T any](t *testing.T, conn *websocket.Conn) T {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, b, err := conn.ReadMessage()
	require.NoError(t, err)
	var v T
	require.NoError(t, json.Unmarshal(b, &v), string(b))
	return v
}

func signedHello(t *testing.T, w campaigntest.Wallet, campaignID string, at time.Time) protocol.HelloMsg {
	t.Helper()
	sig, err := protocol.SignLogin(w.Key, protocol.LoginMessage(campaignID, w.Addr, at.Unix()))
	require.NoError(t, err)
	return protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		Address:         w.Addr.Hex(),
		IssuedAt:        at.Unix(),
		Signature:       sig,
	}
}

func login(t *testing.T, url string, w campaigntest.Wallet) *websocket.Conn {
	t.Helper()
	conn := dial(t, url)
	send(t, conn, signedHello(t, w, "test", time.Now()))
	welcome := recv[protocol.WelcomeMsg](t, conn)
	require.Equal(t, protocol.TypeWelcome, welcome.Type)
	require.Equal(t, w.Addr.Hex(), welcome.Address)
	require.NotEmpty(t, welcome.SessionID)
	return conn
}

func req(id, op string) protocol.ReqMsg {
	return protocol.ReqMsg{Type: protocol.TypeReq, ProtocolVersion: protocol.Version, ReqID: id, Op: op}
}

func TestServer_AllowlistMintFlow(t *testing.T) {
	h := campaigntest.New(t, nil, campaign.RuntimeConfig{}).Start()
	h.OpenPhases(true, false)
	url := startServer(t, h, Options{RequireSignature: true})

	member := h.Members[0]
	conn := login(t, url, member)

	r := req("m1", "allowlist_mint")
	r.Quantity = 2
	r.ValueWei = h.Cost(2).Dec()
	for _, p := range h.Proof(member) {
		r.Proof = append(r.Proof, p.Hex())
	}
	send(t, conn, r)
	res := recv[protocol.ResultMsg](t, conn)
	require.True(t, res.Accepted, res.Message)
	assert.Equal(t, "m1", res.ReqID)
	require.NotNil(t, res.Receipt)
	assert.Equal(t, []uint64{1, 2}, res.Receipt.TokenIDs)
	require.Len(t, res.Receipt.Events, 1)
	assert.Equal(t, "allowlist", res.Receipt.Events[0].Phase)

	// Same request again trips the wallet cap.
	r.ReqID = "m2"
	send(t, conn, r)
	res = recv[protocol.ResultMsg](t, conn)
	assert.False(t, res.Accepted)
	assert.Equal(t, protocol.ErrWalletLimit, res.Code)

	// Missing proof entries are an invalid proof, not a transport error.
	r.ReqID, r.Quantity, r.ValueWei, r.Proof = "m3", 1, h.Cost(1).Dec(), nil
	send(t, conn, r)
	res = recv[protocol.ResultMsg](t, conn)
	assert.Equal(t, protocol.ErrInvalidProof, res.Code)

	q := req("q1", protocol.OpWalletCount)
	send(t, conn, q)
	res = recv[protocol.ResultMsg](t, conn)
	require.True(t, res.Accepted)
	data := res.Data.(map[string]any)
	assert.Equal(t, float64(2), data["minted"])
	assert.Equal(t, float64(3), data["limit"])
}

func TestServer_OutsiderAndAdmin(t *testing.T) {
	h := campaigntest.New(t, nil, campaign.RuntimeConfig{}).Start()
	h.OpenPhases(true, false)
	url := startServer(t, h, Options{RequireSignature: true})

	outsider := login(t, url, h.Outsider)
	r := req("a1", "set_phases")
	yes := true
	r.AllowlistOpen, r.PublicOpen = &yes, &yes
	send(t, outsider, r)
	res := recv[protocol.ResultMsg](t, outsider)
	assert.Equal(t, protocol.ErrUnauthorized, res.Code)

	owner := login(t, url, h.Owner)
	r.ReqID = "a2"
	send(t, owner, r)
	res = recv[protocol.ResultMsg](t, owner)
	require.True(t, res.Accepted, res.Message)
	assert.True(t, h.Runtime.Status().PublicOpen)

	m := req("p1", "public_mint")
	m.Quantity = 1
	m.ValueWei = "49"
	send(t, outsider, m)
	res = recv[protocol.ResultMsg](t, outsider)
	assert.Equal(t, protocol.ErrInsufficientPayment, res.Code)

	m.ReqID, m.ValueWei = "p2", "50"
	send(t, outsider, m)
	res = recv[protocol.ResultMsg](t, outsider)
	require.True(t, res.Accepted, res.Message)

	tok := req("t1", protocol.OpTokenURI)
	tok.TokenID = 1
	send(t, outsider, tok)
	res = recv[protocol.ResultMsg](t, outsider)
	require.True(t, res.Accepted)
	data := res.Data.(map[string]any)
	assert.Equal(t, "ipfs://hidden/metadata.json", data["token_uri"])
	assert.Equal(t, h.Outsider.Addr.Hex(), data["owner"])

	tok.ReqID, tok.TokenID = "t2", 9
	send(t, outsider, tok)
	res = recv[protocol.ResultMsg](t, outsider)
	assert.Equal(t, protocol.ErrUnknownToken, res.Code)
}

func TestServer_RequestErrors(t *testing.T) {
	h := campaigntest.New(t, nil, campaign.RuntimeConfig{}).Start()
	url := startServer(t, h, Options{RequireSignature: true})
	conn := login(t, url, h.Outsider)

	send(t, conn, req("x1", "burn"))
	res := recv[protocol.ResultMsg](t, conn)
	assert.Equal(t, protocol.ErrUnknownOp, res.Code)

	bad := req("x2", "public_mint")
	bad.ValueWei = "lots"
	send(t, conn, bad)
	res = recv[protocol.ResultMsg](t, conn)
	assert.Equal(t, protocol.ErrProtoBadRequest, res.Code, "schema rejects non-decimal amounts")

	old := req("x3", "status")
	old.ProtocolVersion = "0.1"
	send(t, conn, old)
	res = recv[protocol.ResultMsg](t, conn)
	assert.Equal(t, protocol.ErrProtoBadRequest, res.Code)
	assert.Equal(t, "x3", res.ReqID)

	send(t, conn, req("x4", "status"))
	res = recv[protocol.ResultMsg](t, conn)
	require.True(t, res.Accepted)
}

func TestServer_HandshakeRejections(t *testing.T) {
	h := campaigntest.New(t, nil, campaign.RuntimeConfig{}).Start()
	url := startServer(t, h, Options{RequireSignature: true, MaxClockSkew: time.Minute})

	cases := map[string]func() any{
		"not hello": func() any { return req("r", "status") },
		"stale": func() any {
			return signedHello(t, h.Members[0], "test", time.Now().Add(-time.Hour))
		},
		"wrong campaign": func() any {
			return signedHello(t, h.Members[0], "other", time.Now())
		},
		"unsigned": func() any {
			hello := signedHello(t, h.Members[0], "test", time.Now())
			hello.Signature = ""
			return hello
		},
	}
	for name, msg := range cases {
		conn := dial(t, url)
		send(t, conn, msg())
		e := recv[protocol.ErrorMsg](t, conn)
		assert.Equal(t, protocol.TypeError, e.Type, name)
		assert.NotEmpty(t, e.Code, name)
	}
}

func TestServer_TrustedAddressWithoutSignature(t *testing.T) {
	h := campaigntest.New(t, nil, campaign.RuntimeConfig{}).Start()
	url := startServer(t, h, Options{RequireSignature: false})

	conn := dial(t, url)
	send(t, conn, protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		Address:         h.Members[1].Addr.Hex(),
	})
	welcome := recv[protocol.WelcomeMsg](t, conn)
	assert.Equal(t, h.Members[1].Addr.Hex(), welcome.Address)
	assert.Equal(t, uint64(10), welcome.Campaign.MaxSupply)
	assert.Equal(t, "50", welcome.Campaign.MintPriceWei)
}
