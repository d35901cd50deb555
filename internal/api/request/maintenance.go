package request

type EnableMaintenance struct {
	DurationMS int64  `json:"durationMs" validate:"omitempty,min=0"`
	Reason     string `json:"reason" validate:"omitempty,max=500"`
}
