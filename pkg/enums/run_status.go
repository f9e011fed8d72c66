package enums

// RunStatus maps to run_status_enum and is shared by videos and workflow runs.
type RunStatus string

const (
	RunStatusIdle      RunStatus = "idle"
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

var runStatuses = []RunStatus{RunStatusIdle, RunStatusRunning, RunStatusSucceeded, RunStatusFailed}

func (s RunStatus) IsValid() bool { return member(runStatuses, s) }

// IsTerminal reports whether no further work is expected.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusSucceeded || s == RunStatusFailed
}
