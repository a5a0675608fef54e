package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mintgate.io/internal/campaign"
	"mintgate.io/internal/persistence/indexdb"
	"mintgate.io/internal/persistence/objstore"
	"mintgate.io/internal/protocol"
	"mintgate.io/internal/transport"
)

// backend is the runtime surface the HTTP handlers read from.
type backend interface {
	Status() campaign.Status
	WalletMintCount(ctx context.Context, wallet common.Address) (uint64, error)
	TokenURI(ctx context.Context, id uint64) (string, error)
	OwnerOf(ctx context.Context, id uint64) (common.Address, error)
	RequestSnapshot(ctx context.Context) (uint64, error)
}

type api struct {
	backend       backend
	reg           *prometheus.Registry
	adminLoopback bool
	timeout       time.Duration
	index         *indexdb.SQLiteIndex
	mirror        *objstore.Mirror
}

func (a *api) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", promhttp.HandlerFor(a.reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /v1/status", a.handleStatus)
	mux.HandleFunc("GET /v1/wallets/{address}", a.handleWallet)
	mux.HandleFunc("GET /v1/tokens/{id}", a.handleToken)
	mux.HandleFunc("GET /v1/mints", a.handleMints)

	admin := func(h http.HandlerFunc) http.HandlerFunc {
		if a.adminLoopback {
			return loopbackOnly(h)
		}
		return h
	}
	mux.HandleFunc("POST /admin/v1/snapshot", admin(a.handleSnapshot))
	mux.HandleFunc("GET /admin/v1/index", admin(a.handleIndexStats))
	mux.HandleFunc("GET /admin/v1/mirror", admin(a.handleMirrorStats))
	return mux
}

func loopbackOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !transport.IsLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		h(rw, r)
	}
}

func (a *api) ctx(r *http.Request) (context.Context, context.CancelFunc) {
	timeout := a.timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return context.WithTimeout(r.Context(), timeout)
}

func (a *api) handleStatus(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, http.StatusOK, protocol.FromStatus(a.backend.Status()))
}

func (a *api) handleWallet(rw http.ResponseWriter, r *http.Request) {
	addr, err := protocol.ParseAddress("address", r.PathValue("address"))
	if err != nil {
		writeError(rw, http.StatusBadRequest, protocol.ErrBadAddress, err)
		return
	}
	ctx, cancel := a.ctx(r)
	defer cancel()
	n, err := a.backend.WalletMintCount(ctx, addr)
	if err != nil {
		writeBackendError(rw, err)
		return
	}
	writeJSON(rw, http.StatusOK, protocol.WalletCountData{
		Address: addr.Hex(),
		Minted:  n,
		Limit:   a.backend.Status().MaxPerWallet,
	})
}

func (a *api) handleToken(rw http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(rw, http.StatusBadRequest, protocol.ErrProtoBadRequest, errors.New("token id must be a decimal integer"))
		return
	}
	ctx, cancel := a.ctx(r)
	defer cancel()
	uri, err := a.backend.TokenURI(ctx, id)
	if err != nil {
		writeBackendError(rw, err)
		return
	}
	owner, err := a.backend.OwnerOf(ctx, id)
	if err != nil {
		writeBackendError(rw, err)
		return
	}
	writeJSON(rw, http.StatusOK, protocol.TokenData{TokenID: id, TokenURI: uri, Owner: owner.Hex()})
}

func (a *api) handleMints(rw http.ResponseWriter, r *http.Request) {
	if a.index == nil {
		writeError(rw, http.StatusServiceUnavailable, protocol.ErrUnavailable, errors.New("index disabled"))
		return
	}
	limit := 100
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(rw, http.StatusBadRequest, protocol.ErrProtoBadRequest, errors.New("limit must be a positive integer"))
			return
		}
		limit = n
	}
	ctx, cancel := a.ctx(r)
	defer cancel()

	var (
		rows []indexdb.MintRow
		err  error
	)
	if s := r.URL.Query().Get("minter"); s != "" {
		addr, perr := protocol.ParseAddress("minter", s)
		if perr != nil {
			writeError(rw, http.StatusBadRequest, protocol.ErrBadAddress, perr)
			return
		}
		rows, err = a.index.Reader().MintsByMinter(ctx, addr, limit)
	} else {
		rows, err = a.index.Reader().RecentMints(ctx, limit)
	}
	if err != nil {
		writeError(rw, http.StatusInternalServerError, protocol.ErrInternal, err)
		return
	}
	if rows == nil {
		rows = []indexdb.MintRow{}
	}
	writeJSON(rw, http.StatusOK, map[string]any{"mints": rows})
}

func (a *api) handleSnapshot(rw http.ResponseWriter, r *http.Request) {
	ctx, cancel := a.ctx(r)
	defer cancel()
	seq, err := a.backend.RequestSnapshot(ctx)
	if err != nil {
		writeJSON(rw, http.StatusServiceUnavailable, map[string]any{"ok": false, "seq": seq, "error": err.Error()})
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "seq": seq})
}

func (a *api) handleIndexStats(rw http.ResponseWriter, r *http.Request) {
	if a.index == nil {
		writeError(rw, http.StatusServiceUnavailable, protocol.ErrUnavailable, errors.New("index disabled"))
		return
	}
	ctx, cancel := a.ctx(r)
	defer cancel()
	counts, err := a.index.Reader().Counts(ctx)
	if err != nil {
		writeError(rw, http.StatusInternalServerError, protocol.ErrInternal, err)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"queue": a.index.Stats(), "rows": counts})
}

func (a *api) handleMirrorStats(rw http.ResponseWriter, _ *http.Request) {
	if a.mirror == nil {
		writeError(rw, http.StatusServiceUnavailable, protocol.ErrUnavailable, errors.New("mirror disabled"))
		return
	}
	writeJSON(rw, http.StatusOK, a.mirror.Stats())
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func writeError(rw http.ResponseWriter, status int, code string, err error) {
	writeJSON(rw, status, map[string]string{"code": code, "message": err.Error()})
}

func writeBackendError(rw http.ResponseWriter, err error) {
	code := protocol.CodeFor(err)
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, campaign.ErrUnknownToken):
		status = http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		status, code = http.StatusServiceUnavailable, protocol.ErrBusy
	case code == protocol.ErrUnavailable:
		status = http.StatusServiceUnavailable
	case campaign.IsRejection(err):
		status = http.StatusBadRequest
	}
	writeError(rw, status, code, err)
}
