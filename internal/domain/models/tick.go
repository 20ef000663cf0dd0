package models

// Tick is one parsed market-data record. It is passed by value and never mutated.
type Tick struct {
	Sequence         uint64  `json:"seq"`
	SourceTimestamp  float64 `json:"src_ts"`  // epoch seconds, stamped by the venue/feed
	ReceiveTimestamp float64 `json:"recv_ts"` // epoch seconds, stamped by the transport on receipt
	Price            float64 `json:"price"`
	Size             uint32  `json:"size"`
}
