package protocol

// HELLO (client -> server). IssuedAt is unix seconds; Signature is an
// EIP-191 personal signature over LoginMessage.
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Address         string `json:"address"`
	IssuedAt        int64  `json:"issued_at"`
	Signature       string `json:"signature,omitempty"`
	ClientName      string `json:"client_name,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	SessionID       string       `json:"session_id"`
	Address         string       `json:"address"`
	Campaign        CampaignInfo `json:"campaign"`
}

// CampaignInfo is the public read view of a campaign. Amounts are decimal wei
// strings.
type CampaignInfo struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Symbol        string `json:"symbol"`
	Owner         string `json:"owner"`
	MaxSupply     uint64 `json:"max_supply"`
	TotalMinted   uint64 `json:"total_minted"`
	MaxPerWallet  uint64 `json:"max_per_wallet"`
	MintPriceWei  string `json:"mint_price_wei"`
	MintPriceEth  string `json:"mint_price_eth"`
	MerkleRoot    string `json:"merkle_root"`
	AllowlistOpen bool   `json:"allowlist_open"`
	PublicOpen    bool   `json:"public_open"`
	Revealed      bool   `json:"revealed"`
	HiddenURI     string `json:"hidden_uri"`
	BaseURI       string `json:"base_uri,omitempty"`
	BalanceWei    string `json:"balance_wei"`
	Seq           uint64 `json:"seq"`
}

// REQ (client -> server). Only the fields used by Op are read.
type ReqMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id"`
	Op              string `json:"op"`

	Quantity uint64   `json:"quantity,omitempty"`
	Proof    []string `json:"proof,omitempty"`
	ValueWei string   `json:"value_wei,omitempty"`

	AllowlistOpen *bool   `json:"allowlist_open,omitempty"`
	PublicOpen    *bool   `json:"public_open,omitempty"`
	PriceWei      string  `json:"price_wei,omitempty"`
	MaxPerWallet  *uint64 `json:"max_per_wallet,omitempty"`
	MerkleRoot    string  `json:"merkle_root,omitempty"`
	URI           string  `json:"uri,omitempty"`
	To            string  `json:"to,omitempty"`

	// Query arguments.
	Address string `json:"address,omitempty"`
	TokenID uint64 `json:"token_id,omitempty"`
}

// Query ops answered without touching campaign state.
const (
	OpWalletCount = "wallet_count"
	OpTokenURI    = "token_uri"
	OpOwnerOf     = "owner_of"
	OpStatus      = "status"
)

// RESULT (server -> client)
type ResultMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	ReqID           string       `json:"req_id"`
	Accepted        bool         `json:"accepted"`
	Code            string       `json:"code,omitempty"`
	Message         string       `json:"message,omitempty"`
	Receipt         *ReceiptInfo `json:"receipt,omitempty"`
	Data            any          `json:"data,omitempty"`
}

type ReceiptInfo struct {
	Seq      uint64      `json:"seq"`
	TokenIDs []uint64    `json:"token_ids,omitempty"`
	PaidWei  string      `json:"paid_wei,omitempty"`
	Events   []EventInfo `json:"events,omitempty"`
}

// EventInfo is the flat wire form of a campaign notification.
type EventInfo struct {
	Type         string `json:"type"`
	Minter       string `json:"minter,omitempty"`
	Quantity     uint64 `json:"quantity,omitempty"`
	PricePaidWei string `json:"price_paid_wei,omitempty"`
	FirstTokenID uint64 `json:"first_token_id,omitempty"`
	LastTokenID  uint64 `json:"last_token_id,omitempty"`
	Phase        string `json:"phase,omitempty"`
	BaseURI      string `json:"base_uri,omitempty"`
	To           string `json:"to,omitempty"`
	AmountWei    string `json:"amount_wei,omitempty"`
}

// ERROR (server -> client) for failures outside a request, such as a bad HELLO.
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}

func NewError(code, message string) ErrorMsg {
	return ErrorMsg{Type: TypeError, ProtocolVersion: Version, Code: code, Message: message}
}

// Data payloads for query RESULTs.
type WalletCountData struct {
	Address string `json:"address"`
	Minted  uint64 `json:"minted"`
	Limit   uint64 `json:"limit"`
}

type TokenData struct {
	TokenID  uint64 `json:"token_id"`
	TokenURI string `json:"token_uri"`
	Owner    string `json:"owner"`
}
