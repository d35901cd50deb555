package request

type RestartApp struct {
	Service string `json:"service" validate:"omitempty,max=64"`
}
