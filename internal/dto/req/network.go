package req

type SetNetworkRequest struct {
	Online *bool `json:"online" binding:"required"`
}

type StreamQuery struct {
	LastSeq int64 `form:"last_seq"`
}
