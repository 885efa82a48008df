// Package mqtt mirrors device state changes onto an MQTT broker so physical
// devices can follow what the browser controls do.
package mqtt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

const connectTimeout = 10 * time.Second

var errConnectTimeout = errors.New("timed out")

// Connect dials brokerURL (e.g. "tcp://localhost:1883") and returns a client
// that reconnects on its own after the first successful connection.
func Connect(brokerURL, clientID string) (paho.Client, error) {
	opts := paho.NewClientOptions()
	opts.AddBroker(brokerURL)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetOnConnectHandler(func(paho.Client) {
		slog.Info("Connected to MQTT broker", "broker", brokerURL)
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		slog.Warn("MQTT connection lost", "broker", brokerURL, "error", err)
	})

	return awaitConnect(paho.NewClient(opts), brokerURL, connectTimeout)
}

// awaitConnect starts the connection and waits up to timeout for it. A client
// still dialing at the deadline is torn down, so a retry with the same client
// id never races an orphan for the broker session.
func awaitConnect(client paho.Client, brokerURL string, timeout time.Duration) (paho.Client, error) {
	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		client.Disconnect(0)
		return nil, fmt.Errorf("connect to MQTT broker %s: %w", brokerURL, errConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to MQTT broker %s: %w", brokerURL, err)
	}
	return client, nil
}

var errNotConnected = errors.New("mqtt client not connected")

// HealthCheck reports whether client currently holds an open broker connection.
func HealthCheck(client paho.Client) func(ctx context.Context) error {
	return func(context.Context) error {
		if !client.IsConnectionOpen() {
			return errNotConnected
		}
		return nil
	}
}
