package types

// MaxBatchSize caps the number of posts accepted by a single batch prediction.
const MaxBatchSize = 50

// BatchRequest is the payload for batch prediction.
type BatchRequest struct {
	Posts []PostSignal `json:"posts" binding:"required,min=1,max=50"`
}

// TimingWindowsRequest holds query parameters for optimal posting windows.
type TimingWindowsRequest struct {
	From     string `form:"from"`
	Hours    int    `form:"hours" binding:"omitempty,min=1,max=336"`
	Limit    int    `form:"limit" binding:"omitempty,min=1,max=24"`
	Timezone string `form:"timezone"`
}
