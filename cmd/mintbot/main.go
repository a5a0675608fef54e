// Command mintbot signs in to a mintgate server, mints, and optionally tails
// the event feed.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gorilla/websocket"
	"github.com/holiman/uint256"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"mintgate.io/internal/allowlist"
	"mintgate.io/internal/campaign"
	"mintgate.io/internal/logging"
	"mintgate.io/internal/protocol"
	"mintgate.io/internal/units"
)

type options struct {
	URL        string
	FeedURL    string
	CampaignID string
	KeyHex     string
	MerklePath string
	Phase      string
	Quantity   uint64
	Tail       bool
	Since      uint64
	Timeout    time.Duration
}

func main() {
	var o options
	pflag.StringVar(&o.URL, "url", "ws://localhost:8080/v1/ws", "mint api websocket url")
	pflag.StringVar(&o.FeedURL, "feed", "ws://localhost:8080/v1/feed", "event feed websocket url")
	pflag.StringVar(&o.CampaignID, "campaign", "default", "campaign id (part of the signed login)")
	pflag.StringVar(&o.KeyHex, "key", "", "hex private key (or MINTBOT_KEY; random if empty)")
	pflag.StringVar(&o.MerklePath, "merkle", "", "merkle.json with the allowlist proofs")
	pflag.StringVar(&o.Phase, "phase", "auto", "allowlist, public, auto or none")
	pflag.Uint64Var(&o.Quantity, "quantity", 1, "tokens to mint")
	pflag.BoolVar(&o.Tail, "tail", false, "tail the event feed after minting")
	pflag.Uint64Var(&o.Since, "since", 0, "feed cursor to resume from")
	pflag.DurationVar(&o.Timeout, "timeout", 10*time.Second, "per-request timeout")
	pflag.Parse()

	logger := logging.Must("info", true).Named("mintbot")
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, o, logger); err != nil {
		logger.Error("mintbot failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, o options, logger *zap.Logger) error {
	keyHex := strings.TrimPrefix(strings.TrimSpace(o.KeyHex), "0x")
	if keyHex == "" {
		keyHex = strings.TrimPrefix(strings.TrimSpace(os.Getenv("MINTBOT_KEY")), "0x")
	}
	key, err := crypto.GenerateKey()
	if keyHex != "" {
		key, err = crypto.HexToECDSA(keyHex)
	}
	if err != nil {
		return fmt.Errorf("key: %w", err)
	}

	c, err := dialSession(o.URL, o.CampaignID, key, "mintbot", o.Timeout)
	if err != nil {
		return err
	}
	defer c.Close()
	info := c.welcome.Campaign
	logger.Info("signed in",
		zap.String("session", c.welcome.SessionID),
		zap.String("address", c.addr.Hex()),
		zap.String("collection", info.Name),
		zap.Uint64("minted", info.TotalMinted),
		zap.Uint64("max_supply", info.MaxSupply),
		zap.String("price_eth", info.MintPriceEth))

	if o.Phase != "none" {
		res, err := mint(c, o)
		if err != nil {
			return err
		}
		if !res.Accepted {
			logger.Warn("mint refused", zap.String("code", res.Code), zap.String("message", res.Message))
		} else {
			logger.Info("minted",
				zap.Uint64("seq", res.Receipt.Seq),
				zap.Uint64s("token_ids", res.Receipt.TokenIDs),
				zap.String("paid_wei", res.Receipt.PaidWei))
		}
	}

	res, err := c.do(protocol.ReqMsg{Op: protocol.OpWalletCount})
	if err != nil {
		return err
	}
	if b, err := json.Marshal(res.Data); err == nil {
		fmt.Println(string(b))
	}

	if !o.Tail {
		return nil
	}
	return tail(ctx, o.FeedURL, o.Since, logger)
}

// mint picks the phase, attaches quantity times the current price and sends
// the mint request.
func mint(c *client, o options) (protocol.ResultMsg, error) {
	info := c.welcome.Campaign
	phase := o.Phase
	if phase == "auto" {
		phase = "public"
		if info.AllowlistOpen && o.MerklePath != "" {
			phase = "allowlist"
		}
	}
	price, err := units.ParseWei(info.MintPriceWei)
	if err != nil {
		return protocol.ResultMsg{}, fmt.Errorf("welcome price: %w", err)
	}
	value, overflow := new(uint256.Int).MulOverflow(price, uint256.NewInt(o.Quantity))
	if overflow {
		return protocol.ResultMsg{}, errors.New("quantity times price overflows")
	}
	req := protocol.ReqMsg{Quantity: o.Quantity, ValueWei: value.Dec()}

	switch phase {
	case "public":
		req.Op = string(campaign.OpPublicMint)
	case "allowlist":
		req.Op = string(campaign.OpAllowlistMint)
		if o.MerklePath == "" {
			return protocol.ResultMsg{}, errors.New("allowlist phase needs -merkle")
		}
		f, err := allowlist.ReadFile(o.MerklePath)
		if err != nil {
			return protocol.ResultMsg{}, err
		}
		proof, err := f.ProofFor(c.addr)
		if err != nil {
			return protocol.ResultMsg{}, err
		}
		for _, p := range proof {
			req.Proof = append(req.Proof, p.Hex())
		}
	default:
		return protocol.ResultMsg{}, fmt.Errorf("unknown phase %q", phase)
	}
	return c.do(req)
}

func tail(ctx context.Context, url string, since uint64, logger *zap.Logger) error {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return fmt.Errorf("dial feed: %w", err)
	}
	defer conn.Close()
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	sub := protocol.SubscribeMsg{Type: protocol.TypeSubscribe, ProtocolVersion: protocol.Version, SinceCursor: since}
	if err := conn.WriteJSON(sub); err != nil {
		return err
	}
	log := logger.With(zap.String("feed", url))
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeEventBatch:
			var b protocol.EventBatchMsg
			if err := json.Unmarshal(msg, &b); err != nil {
				continue
			}
			if b.Truncated {
				log.Warn("feed backlog truncated; older events are only in the journal")
			}
			for _, it := range b.Items {
				fmt.Println(string(mustJSON(it)))
			}
		case protocol.TypeEvent:
			var e protocol.EventMsg
			if err := json.Unmarshal(msg, &e); err != nil {
				continue
			}
			fmt.Println(string(mustJSON(e.Item)))
		case protocol.TypeError:
			var e protocol.ErrorMsg
			_ = json.Unmarshal(msg, &e)
			return fmt.Errorf("feed: %s %s", e.Code, e.Message)
		}
	}
}

func mustJSON(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}
