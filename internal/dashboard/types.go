package dashboard

import "compliancedash/internal/feed/memorystore"

const (
	TopicTransactions = "transactions"
	TypeSnapshot      = "snapshot"
)

// StreamMessage is the envelope pushed to WebSocket subscribers.
type StreamMessage struct {
	Topic string               `json:"topic"` // always "transactions" for now
	Type  string               `json:"type"`  // "snapshot": full replacement, never a delta
	Ts    int64                `json:"ts"`    // send time in milliseconds since epoch
	Data  memorystore.Snapshot `json:"data"`
}
