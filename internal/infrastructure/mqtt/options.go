package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"net"
	"strconv"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/lcdcanvas/internal/infrastructure/config"
)

const (
	connectTimeout    = 10 * time.Second
	operationTimeout  = 5 * time.Second
	disconnectQuiesce = 1000 // ms
	keepAlive         = 60 * time.Second

	maxQoS = 2

	// MaxPayloadSize bounds payloads both ways. Frames pushed over MQTT
	// must fit.
	MaxPayloadSize = 1 << 20
)

// buildClientOptions maps the mqtt section of config.yaml onto paho. The
// will marks lcdcanvas offline when it dies without calling Close.
func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}
	addr := net.JoinHostPort(cfg.Broker.Host, strconv.Itoa(cfg.Broker.Port))

	opts := pahomqtt.NewClientOptions().
		AddBroker(scheme + "://" + addr).
		SetClientID(cfg.Broker.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second).
		SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second).
		SetConnectTimeout(connectTimeout).
		SetKeepAlive(keepAlive).
		SetWill(Topics{}.SystemStatus(),
			string(statusPayload(cfg.Broker.ClientID, "offline", "unexpected_disconnect")), 1, true)

	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username).SetPassword(cfg.Auth.Password)
	}
	return opts
}

// presence is the retained document on lcdcanvas/system/status.
type presence struct {
	Status   string    `json:"status"`
	ClientID string    `json:"client_id"`
	Reason   string    `json:"reason,omitempty"`
	Since    time.Time `json:"timestamp"`
}

func statusPayload(clientID, status, reason string) []byte {
	b, _ := json.Marshal(presence{ //nolint:errcheck // plain struct
		Status:   status,
		ClientID: clientID,
		Reason:   reason,
		Since:    time.Now().UTC().Truncate(time.Second),
	})
	return b
}
