package resp

type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

type DeleteResponse struct {
	Deleted int `json:"deleted"`
}

type NetworkResponse struct {
	Online bool `json:"online"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Online  bool   `json:"online"`
	Pending int64  `json:"pending"`
}
