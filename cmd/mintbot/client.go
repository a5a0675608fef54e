package main

import (
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"mintgate.io/internal/protocol"
)

// client is one signed-in websocket session.
type client struct {
	conn    *websocket.Conn
	addr    common.Address
	welcome protocol.WelcomeMsg
	timeout time.Duration
}

func dialSession(url, campaignID string, key *ecdsa.PrivateKey, name string, timeout time.Duration) (*client, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	c := &client{conn: conn, addr: crypto.PubkeyToAddress(key.PublicKey), timeout: timeout}

	issued := time.Now().Unix()
	sig, err := protocol.SignLogin(key, protocol.LoginMessage(campaignID, c.addr, issued))
	if err != nil {
		conn.Close()
		return nil, err
	}
	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		Address:         c.addr.Hex(),
		IssuedAt:        issued,
		Signature:       sig,
		ClientName:      name,
	}
	if err := conn.WriteJSON(hello); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send HELLO: %w", err)
	}
	msg, err := c.read()
	if err != nil {
		conn.Close()
		return nil, err
	}
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		conn.Close()
		return nil, err
	}
	switch base.Type {
	case protocol.TypeWelcome:
		if err := json.Unmarshal(msg, &c.welcome); err != nil {
			conn.Close()
			return nil, err
		}
		return c, nil
	case protocol.TypeError:
		var e protocol.ErrorMsg
		_ = json.Unmarshal(msg, &e)
		conn.Close()
		return nil, fmt.Errorf("login refused: %s %s", e.Code, e.Message)
	}
	conn.Close()
	return nil, fmt.Errorf("unexpected %s before WELCOME", base.Type)
}

func (c *client) Close() error { return c.conn.Close() }

func (c *client) read() ([]byte, error) {
	_ = c.conn.SetReadDeadline(time.Now().Add(c.timeout))
	_, msg, err := c.conn.ReadMessage()
	return msg, err
}

// do sends req with a fresh req_id and waits for its RESULT.
func (c *client) do(req protocol.ReqMsg) (protocol.ResultMsg, error) {
	req.Type = protocol.TypeReq
	req.ProtocolVersion = protocol.Version
	req.ReqID = uuid.NewString()
	if err := c.conn.WriteJSON(req); err != nil {
		return protocol.ResultMsg{}, err
	}
	for {
		msg, err := c.read()
		if err != nil {
			return protocol.ResultMsg{}, err
		}
		var res protocol.ResultMsg
		if err := json.Unmarshal(msg, &res); err != nil {
			return protocol.ResultMsg{}, err
		}
		if res.Type == protocol.TypeResult && res.ReqID == req.ReqID {
			return res, nil
		}
	}
}
