package models

// BatchRequest holds NumSequences contiguous blocks of SeqLen samples each.
type BatchRequest struct {
	Data         []float64 `json:"data" validate:"required"`
	NumSequences int       `json:"num_sequences" validate:"gte=0"`
	SeqLen       int       `json:"seq_len" validate:"gte=0"`
}

// BatchResult carries one action per input sample.
type BatchResult struct {
	JobID   string   `json:"job_id,omitempty"`
	Mode    string   `json:"mode"`
	Actions []Action `json:"actions,omitempty"`
	Error   string   `json:"error,omitempty"`
	Status  string   `json:"status"`
}

const (
	BatchStatusQueued = "queued"
	BatchStatusDone   = "done"
	BatchStatusFailed = "failed"
)
