package eventmodels

type EventName string

const (
	OptionChainUpdatedEventName EventName = "OptionChainUpdatedEvent"
	StreamingStartedEventName   EventName = "StreamingStartedEvent"
	StreamingStoppedEventName   EventName = "StreamingStoppedEvent"
)
