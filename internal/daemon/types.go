package daemon

// StatusResponse is returned by GET /v1/status.
type StatusResponse struct {
	NodeID        string   `json:"node_id"`
	Version       string   `json:"version"`
	UptimeSeconds int      `json:"uptime_seconds"`
	Addresses     []string `json:"addresses"`
	Connections   int      `json:"connections"`
	Edges         int      `json:"edges"`
}

// NodeEntry is one row of GET /v1/nodes. ConnectionCount and
// AvgSessionMs reflect this node's own, never-gossiped connection
// history for the peer and are zero if never directly connected.
type NodeEntry struct {
	NodeID          string   `json:"node_id"`
	Addresses       []string `json:"addresses"`
	TTLMs           uint64   `json:"ttl_ms"`
	Edge            bool     `json:"edge"`
	Self            bool     `json:"self"`
	ConnectionCount int      `json:"connection_count"`
	AvgSessionMs    float64  `json:"avg_session_ms"`
}

// KeyEntry is one row of GET /v1/keys. Payload bytes are never
// included — presence and remaining TTL only.
type KeyEntry struct {
	Key   string `json:"key"`
	KeyID string `json:"key_id"`
	TTLMs uint64 `json:"ttl_ms"`
	Local bool   `json:"local"`
}

// WatchEntry is one row of GET /v1/watches.
type WatchEntry struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// ErrorResponse is returned on failure.
type ErrorResponse struct {
	Error string `json:"error"`
}

// DataResponse wraps a successful response.
type DataResponse struct {
	Data any `json:"data"`
}
