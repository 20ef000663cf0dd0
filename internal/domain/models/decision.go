package models

// Decision is the outcome of feeding one tick through the streaming path.
type Decision struct {
	Sequence         uint64  `json:"seq"`
	Action           Action  `json:"action"`
	EWMA             float64 `json:"ewma"`
	OFI              float64 `json:"ofi"`
	Price            float64 `json:"price"`
	SourceTimestamp  float64 `json:"src_ts"`
	ReceiveTimestamp float64 `json:"recv_ts"`
	DecisionMicros   float64 `json:"recv_to_decision_us"`
	TransportMicros  float64 `json:"src_to_recv_us"`
}

// Snapshot is the latest streaming state published for monitoring.
type Snapshot struct {
	Sequence  uint64  `json:"seq"`
	EWMA      float64 `json:"ewma"`
	Action    string  `json:"action"`
	Price     float64 `json:"price"`
	UpdatedAt int64   `json:"updated_at"`
}
