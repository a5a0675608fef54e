// Package ws serves the mint API over a websocket: a signed HELLO opens a
// session for one wallet, then each REQ gets exactly one RESULT.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"mintgate.io/internal/campaign"
	"mintgate.io/internal/protocol"
)

// Backend is the runtime surface the server needs. *campaign.Runtime satisfies it.
type Backend interface {
	CampaignID() string
	Status() campaign.Status
	Submit(ctx context.Context, cmd campaign.Command) (campaign.Receipt, error)
	WalletMintCount(ctx context.Context, wallet common.Address) (uint64, error)
	TokenURI(ctx context.Context, id uint64) (string, error)
	OwnerOf(ctx context.Context, id uint64) (common.Address, error)
}

type Options struct {
	RequireSignature bool
	MaxClockSkew     time.Duration
	RequestTimeout   time.Duration
	Now              func() time.Time
}

type Server struct {
	backend Backend
	opts    Options
	log     *zap.Logger

	upgrader websocket.Upgrader
	sessions atomic.Int64
}

func NewServer(b Backend, opts Options, logger *zap.Logger) *Server {
	if opts.MaxClockSkew <= 0 {
		opts.MaxClockSkew = 5 * time.Minute
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 5 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		backend: b,
		opts:    opts,
		log:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

// Sessions is the number of open sessions.
func (s *Server) Sessions() int64 { return s.sessions.Load() }

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sessionID, addr, ok := s.handshake(conn)
		if !ok {
			return
		}
		s.sessions.Add(1)
		defer s.sessions.Add(-1)
		log := s.log.With(zap.String("session", sessionID), zap.String("address", addr.Hex()))
		log.Debug("session opened")

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		out := make(chan []byte, 16)
		writeErr := make(chan error, 1)

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b := <-out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop. Requests on one session are applied in order.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			res := s.handleMessage(ctx, addr, msg)
			b, err := json.Marshal(res)
			if err != nil {
				log.Error("marshal result", zap.Error(err))
				break
			}
			select {
			case out <- b:
			case <-ctx.Done():
			}
			if ctx.Err() != nil {
				break
			}
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
		log.Debug("session closed")
	}
}

func (s *Server) handshake(conn *websocket.Conn) (sessionID string, addr common.Address, ok bool) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", common.Address{}, false
	}

	fail := func(code, message string) (string, common.Address, bool) {
		_ = writeJSON(conn, protocol.NewError(code, message))
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, message), time.Now().Add(time.Second))
		return "", common.Address{}, false
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		return fail(protocol.ErrProtoBadRequest, "expected HELLO")
	}
	if base.ProtocolVersion != protocol.Version {
		return fail(protocol.ErrProtoBadRequest, "bad protocol_version")
	}
	if err := protocol.Validate(protocol.TypeHello, msg); err != nil {
		return fail(protocol.ErrProtoBadRequest, "invalid HELLO")
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return fail(protocol.ErrProtoBadRequest, "invalid HELLO")
	}

	campaignID := s.backend.CampaignID()
	if s.opts.RequireSignature {
		addr, err = protocol.VerifyHello(hello, campaignID, s.opts.Now(), s.opts.MaxClockSkew)
		if err != nil {
			s.log.Info("login refused", zap.String("address", hello.Address), zap.Error(err))
			return fail(protocol.ErrUnauthenticated, err.Error())
		}
	} else {
		addr, err = protocol.ParseAddress("address", hello.Address)
		if err != nil {
			return fail(protocol.ErrBadAddress, err.Error())
		}
	}

	sessionID = uuid.NewString()
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       sessionID,
		Address:         addr.Hex(),
		Campaign:        protocol.FromStatus(s.backend.Status()),
	}
	if err := writeJSON(conn, welcome); err != nil {
		return "", common.Address{}, false
	}
	return sessionID, addr, true
}

func (s *Server) handleMessage(ctx context.Context, caller common.Address, msg []byte) protocol.ResultMsg {
	res := protocol.ResultMsg{Type: protocol.TypeResult, ProtocolVersion: protocol.Version}
	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeReq {
		res.Code, res.Message = protocol.ErrProtoBadRequest, "expected REQ"
		return res
	}
	var req protocol.ReqMsg
	if err := json.Unmarshal(msg, &req); err != nil {
		res.Code, res.Message = protocol.ErrProtoBadRequest, "invalid REQ"
		return res
	}
	res.ReqID = req.ReqID
	if req.ProtocolVersion != protocol.Version {
		res.Code, res.Message = protocol.ErrProtoBadRequest, "bad protocol_version"
		return res
	}
	if err := protocol.Validate(protocol.TypeReq, msg); err != nil {
		res.Code, res.Message = protocol.ErrProtoBadRequest, err.Error()
		return res
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.RequestTimeout)
	defer cancel()

	if data, handled, err := s.query(ctx, caller, req); handled {
		if err != nil {
			res.Code, res.Message = errorCode(err), err.Error()
			return res
		}
		res.Accepted, res.Data = true, data
		return res
	}

	cmd, err := req.Command(caller)
	if err != nil {
		res.Code, res.Message = errorCode(err), err.Error()
		return res
	}
	receipt, err := s.backend.Submit(ctx, cmd)
	if err != nil {
		res.Code, res.Message = errorCode(err), err.Error()
		if !campaign.IsRejection(err) {
			s.log.Warn("command failed", zap.String("op", req.Op), zap.Error(err))
		}
		return res
	}
	res.Accepted = true
	res.Receipt = protocol.FromReceipt(receipt)
	return res
}

// query answers read-only ops. handled is false for anything else.
func (s *Server) query(ctx context.Context, caller common.Address, req protocol.ReqMsg) (data any, handled bool, err error) {
	switch strings.TrimSpace(req.Op) {
	case protocol.OpStatus:
		return protocol.FromStatus(s.backend.Status()), true, nil
	case protocol.OpWalletCount:
		wallet := caller
		if req.Address != "" {
			if wallet, err = protocol.ParseAddress("address", req.Address); err != nil {
				return nil, true, err
			}
		}
		n, err := s.backend.WalletMintCount(ctx, wallet)
		if err != nil {
			return nil, true, err
		}
		return protocol.WalletCountData{Address: wallet.Hex(), Minted: n, Limit: s.backend.Status().MaxPerWallet}, true, nil
	case protocol.OpTokenURI, protocol.OpOwnerOf:
		uri, err := s.backend.TokenURI(ctx, req.TokenID)
		if err != nil {
			return nil, true, err
		}
		owner, err := s.backend.OwnerOf(ctx, req.TokenID)
		if err != nil {
			return nil, true, err
		}
		return protocol.TokenData{TokenID: req.TokenID, TokenURI: uri, Owner: owner.Hex()}, true, nil
	}
	return nil, false, nil
}

func errorCode(err error) string {
	var fe *protocol.FieldError
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, context.DeadlineExceeded):
		return protocol.ErrBusy
	}
	return protocol.CodeFor(err)
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
