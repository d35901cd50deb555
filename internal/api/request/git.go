package request

type PullCode struct {
	Branch string `json:"branch" validate:"omitempty,branchname,max=255"`
}
