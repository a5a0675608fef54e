package protocol

// SUBSCRIBE (client -> server). SinceCursor is the last cursor the client has
// seen; 0 asks for everything still buffered.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	SinceCursor     uint64 `json:"since_cursor"`
	Limit           int    `json:"limit,omitempty"`
}

// FeedItem is one committed command. Cursor is the command's journal sequence
// number, so cursors increase by one per commit and gaps mean loss.
type FeedItem struct {
	Cursor uint64      `json:"cursor"`
	Time   int64       `json:"time_unix_ms"`
	Op     string      `json:"op"`
	Caller string      `json:"caller"`
	Events []EventInfo `json:"events,omitempty"`
}

// EVENT (server -> client)
type EventMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	CampaignID      string   `json:"campaign_id"`
	Item            FeedItem `json:"item"`
}

// EVENT_BATCH (server -> client). Truncated reports that items between
// SinceCursor and the first returned item were evicted from the buffer.
type EventBatchMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	CampaignID      string     `json:"campaign_id"`
	Items           []FeedItem `json:"items"`
	NextCursor      uint64     `json:"next_cursor"`
	Truncated       bool       `json:"truncated,omitempty"`
}
