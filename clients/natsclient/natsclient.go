package natsclient

import (
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"

	"agentgateway/clients"
)

// NATSBrokerClient implements clients.BrokerClient on top of a NATS
// connection. Reconnects are handled by the NATS client itself; subscriptions
// survive reconnects.
type NATSBrokerClient struct {
	conn *nats.Conn
}

func NewNATSBrokerClient(url string) (*NATSBrokerClient, error) {
	conn, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("⚠️ NATS disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("✅ NATS reconnected to %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}

	log.Printf("✅ Connected to NATS at %s", url)
	return &NATSBrokerClient{conn: conn}, nil
}

func (c *NATSBrokerClient) Publish(subject string, data []byte) error {
	if err := c.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

func (c *NATSBrokerClient) Subscribe(subject string, handler clients.BrokerMessageHandler) (clients.BrokerSubscription, error) {
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}

	log.Printf("👂 Subscribed to broker queue %s", subject)
	return sub, nil
}

func (c *NATSBrokerClient) Close() {
	if err := c.conn.Drain(); err != nil {
		log.Printf("⚠️ Failed to drain NATS connection: %v", err)
	}
}
