package request

type RunSetup struct {
	Password string `json:"password"`
}
