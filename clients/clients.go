package clients

// BrokerMessageHandler is invoked for every message received on a subscribed
// queue. Handlers must not block - slow work belongs in the consumer.
type BrokerMessageHandler func(data []byte)

// BrokerSubscription is a live queue subscription that can be torn down.
type BrokerSubscription interface {
	Unsubscribe() error
}

// BrokerClient abstracts the message broker used for decoupled request/reply
// between services (auth_requests/auth_results, command_requests/command_results).
type BrokerClient interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, handler BrokerMessageHandler) (BrokerSubscription, error)
	Close()
}
