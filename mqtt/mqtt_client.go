// Package mqtt publishes controller records to a broker. The client is
// publish only, a retained status topic with a last will tells subscribers
// whether the controller is alive.
package mqtt

import (
	"context"
	"net/url"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	"github.com/pkg/errors"
)

const connectionTimeoutSeconds = 5
const publishTimeoutSeconds = 4
const disconnectTimeoutSeconds = 2

const statusOnline = "online"
const statusOffline = "offline"

type Publisher interface {
	Publish(topic string, payload []byte) error
}

type MqttClient struct {
	config      autopaho.ClientConfig
	conn        *autopaho.ConnectionManager
	logger      *log.Logger
	statusTopic string
}

func NewMqttClient(broker string, clientId string) (mc *MqttClient, err error) {
	addr, err := url.Parse(broker)
	if err != nil {
		return
	}

	mc = &MqttClient{
		logger: log.NewWithOptions(os.Stderr, log.Options{
			Prefix: "MqttClient 🔥: ",
			Level:  log.GetLevel(),
		}),
		statusTopic: clientId + "/status",
	}

	mc.config = autopaho.ClientConfig{
		ServerUrls:            []*url.URL{addr},
		KeepAlive:             20,
		SessionExpiryInterval: 60,
		OnConnectionUp:        mc.onConnUp,
		OnConnectError:        mc.onConnError,
		WillMessage: &paho.WillMessage{
			Retain:  true,
			QoS:     1,
			Topic:   mc.statusTopic,
			Payload: []byte(statusOffline),
		},
		ClientConfig: paho.ClientConfig{
			ClientID:           clientId,
			OnClientError:      mc.onConnError,
			OnServerDisconnect: mc.onSrvDisconnect,
		},
	}

	return
}

// Connect starts the connection manager on ctx, which has to stay alive for
// as long as the client is in use.
func (mc *MqttClient) Connect(ctx context.Context) (err error) {
	mc.conn, err = autopaho.NewConnection(ctx, mc.config)
	if err != nil {
		return
	}

	waitCtx, cancel := context.WithTimeout(ctx, connectionTimeoutSeconds*time.Second)
	defer cancel()

	err = mc.conn.AwaitConnection(waitCtx)
	return
}

func (mc *MqttClient) Publish(topic string, payload []byte) (err error) {
	if mc.conn == nil {
		return errors.New("mqtt client not connected")
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeoutSeconds*time.Second)
	defer cancel()

	_, err = mc.conn.Publish(ctx, &paho.Publish{
		Topic:   topic,
		QoS:     1,
		Payload: payload,
	})
	return
}

func (mc *MqttClient) onConnUp(cm *autopaho.ConnectionManager, connAck *paho.Connack) {
	mc.logger.Info("Connected to MQTT broker")

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeoutSeconds*time.Second)
	defer cancel()

	_, err := cm.Publish(ctx, &paho.Publish{
		Topic:   mc.statusTopic,
		QoS:     1,
		Retain:  true,
		Payload: []byte(statusOnline),
	})
	if err != nil {
		mc.logger.Error("Failed to publish online status", "err", err)
	}
}

func (mc *MqttClient) onConnError(err error) {
	mc.logger.Error("Received Mqtt connection error", "err", err)
}

func (mc *MqttClient) onSrvDisconnect(d *paho.Disconnect) {
	mc.logger.Info("Disconnected from MQTT broker")
}

// Close publishes the offline status before disconnecting, so subscribers see
// a clean shutdown instead of the last will firing.
func (mc *MqttClient) Close() error {
	if mc.conn == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeoutSeconds*time.Second)
	defer cancel()

	_, err := mc.conn.Publish(ctx, &paho.Publish{
		Topic:   mc.statusTopic,
		QoS:     1,
		Retain:  true,
		Payload: []byte(statusOffline),
	})
	if err != nil {
		mc.logger.Warn("Failed to publish offline status", "err", err)
	}

	return mc.conn.Disconnect(ctx)
}
