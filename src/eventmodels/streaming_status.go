package eventmodels

type StreamingStatus struct {
	Streaming         bool     `json:"streaming"`
	Symbols           []string `json:"symbols"`
	SubscriptionCount int      `json:"subscription_count"`
	ConnectionUp      bool     `json:"connection_up"`
	ScheduledSymbols  []string `json:"scheduled_symbols"`
}
