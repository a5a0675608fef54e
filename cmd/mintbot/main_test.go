package main

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mintgate.io/internal/allowlist"
	"mintgate.io/internal/campaign"
	"mintgate.io/internal/campaign/campaigntest"
	"mintgate.io/internal/protocol"
	"mintgate.io/internal/transport/ws"
)

func startServer(t *testing.T, h *campaigntest.Harness) string {
	t.Helper()
	srv := ws.NewServer(h.Runtime, ws.Options{RequireSignature: true}, zap.NewNop())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func writeMerkle(t *testing.T, h *campaigntest.Harness) string {
	t.Helper()
	keys := make([]string, 0, len(h.Members))
	for _, m := range h.Members {
		keys = append(keys, m.Addr.Hex())
	}
	f, err := allowlist.NewFile(h.Tree, keys, time.Now())
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "merkle.json")
	require.NoError(t, allowlist.WriteFile(path, f))
	return path
}

func TestMint_AllowlistWithProofFile(t *testing.T) {
	h := campaigntest.New(t, nil, campaign.RuntimeConfig{}).Start()
	h.OpenPhases(true, false)
	url := startServer(t, h)

	c, err := dialSession(url, "test", h.Members[1].Key, "test", 2*time.Second)
	require.NoError(t, err)
	defer c.Close()
	assert.True(t, c.welcome.Campaign.AllowlistOpen)

	res, err := mint(c, options{Phase: "auto", Quantity: 2, MerklePath: writeMerkle(t, h)})
	require.NoError(t, err)
	require.True(t, res.Accepted, res.Message)
	assert.Equal(t, []uint64{1, 2}, res.Receipt.TokenIDs)
	assert.Equal(t, "100", res.Receipt.PaidWei)

	res, err = c.do(protocol.ReqMsg{Op: protocol.OpWalletCount})
	require.NoError(t, err)
	require.True(t, res.Accepted)
	assert.Equal(t, uint64(2), h.Runtime.Status().TotalMinted)
}

func TestMint_PublicClosedAndBadLogin(t *testing.T) {
	h := campaigntest.New(t, nil, campaign.RuntimeConfig{}).Start()
	url := startServer(t, h)

	c, err := dialSession(url, "test", h.Outsider.Key, "test", 2*time.Second)
	require.NoError(t, err)
	defer c.Close()
	res, err := mint(c, options{Phase: "public", Quantity: 1})
	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.Equal(t, protocol.CodeFor(campaign.ErrPublicMintClosed), res.Code)

	_, err = mint(c, options{Phase: "allowlist", Quantity: 1})
	assert.ErrorContains(t, err, "-merkle")

	// Signing for another campaign id fails the login.
	_, err = dialSession(url, "other", h.Outsider.Key, "test", 2*time.Second)
	assert.ErrorContains(t, err, protocol.ErrUnauthenticated)
}

func TestRun_KeyFromEnv(t *testing.T) {
	h := campaigntest.New(t, nil, campaign.RuntimeConfig{}).Start()
	h.OpenPhases(false, true)
	url := startServer(t, h)

	member := h.Members[2]
	t.Setenv("MINTBOT_KEY", hexutil.Encode(crypto.FromECDSA(member.Key)))
	ctx := context.Background()
	require.NoError(t, run(ctx, options{
		URL: url, CampaignID: "test", Phase: "public", Quantity: 1, Timeout: 2 * time.Second,
	}, zap.NewNop()))

	owner, err := h.Runtime.OwnerOf(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, member.Addr, owner)
}
