package enums

// OutboxAggregateType maps to aggregate_type_enum.
type OutboxAggregateType string

const (
	AggregateVideo       OutboxAggregateType = "video"
	AggregateWorkflowRun OutboxAggregateType = "workflow_run"
)

var aggregateTypes = []OutboxAggregateType{AggregateVideo, AggregateWorkflowRun}

func (a OutboxAggregateType) IsValid() bool { return member(aggregateTypes, a) }

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return parse("aggregate type", aggregateTypes, value)
}

// OutboxEventType maps to event_type_enum. Generation events go to the
// worker topic; finished and render events feed analytics.
type OutboxEventType string

const (
	EventGenerationRequested OutboxEventType = "generation_requested"
	EventGenerationResumed   OutboxEventType = "generation_resumed"
	EventGenerationFinished  OutboxEventType = "generation_finished"
	EventRenderCompleted     OutboxEventType = "render_completed"
)

var eventTypes = []OutboxEventType{
	EventGenerationRequested,
	EventGenerationResumed,
	EventGenerationFinished,
	EventRenderCompleted,
}

func (e OutboxEventType) IsValid() bool { return member(eventTypes, e) }

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return parse("event type", eventTypes, value)
}

// OutboxDLQErrorReason records why the publisher stopped retrying a row.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

func (r OutboxDLQErrorReason) IsValid() bool {
	return r == OutboxDLQReasonMaxAttempts || r == OutboxDLQReasonNonRetryable
}
