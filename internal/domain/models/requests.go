package models

// ModeRequest switches the batch execution mode.
type ModeRequest struct {
	Mode string `json:"mode" validate:"required,oneof=cpu accelerated gpu CPU ACCELERATED GPU"`
}

// ModeResponse reports the effective mode after a switch.
type ModeResponse struct {
	Requested            string `json:"requested"`
	Mode                 string `json:"mode"`
	AcceleratorAvailable bool   `json:"accelerator_available"`
}

// PredictorStatus is the read-only view of the predictor.
type PredictorStatus struct {
	Alpha                float64 `json:"alpha"`
	Threshold            float64 `json:"threshold"`
	EWMA                 float64 `json:"ewma"`
	Mode                 string  `json:"mode"`
	AcceleratorAvailable bool    `json:"accelerator_available"`
}

// JobAccepted is returned when a batch is queued.
type JobAccepted struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}
