package enums

// RenderStatus tracks the external render job for a video. None means no
// render was ever requested.
type RenderStatus string

const (
	RenderStatusNone      RenderStatus = "none"
	RenderStatusPending   RenderStatus = "pending"
	RenderStatusSucceeded RenderStatus = "succeeded"
	RenderStatusFailed    RenderStatus = "failed"
)

var renderStatuses = []RenderStatus{RenderStatusNone, RenderStatusPending, RenderStatusSucceeded, RenderStatusFailed}

func (s RenderStatus) IsValid() bool { return member(renderStatuses, s) }

