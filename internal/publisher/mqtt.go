// Package publisher pushes monthly milk totals to an MQTT broker so home
// dashboards can show the running bill.
package publisher

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"milkbook/internal/core"
)

const (
	DefaultTopicPrefix = "milkbook"
	DefaultClientID    = "milkbook-worker"
	publishTimeout     = 10 * time.Second
)

// Config holds the broker settings. An empty Broker disables publishing.
type Config struct {
	Broker      string
	TopicPrefix string
	ClientID    string
	Username    string
	Password    string
}

// TotalsPayload is the retained message body for one month.
type TotalsPayload struct {
	Year      int     `json:"year"`
	Month     int     `json:"month"`
	Litres    float64 `json:"litres"`
	Amount    float64 `json:"amount"`
	UnitPrice float64 `json:"unit_price"`
	Days      int     `json:"days"`
}

func NewTotalsPayload(sel core.MonthSelection, t core.Totals) TotalsPayload {
	return TotalsPayload{
		Year:      sel.Year,
		Month:     sel.Month,
		Litres:    t.Litres,
		Amount:    t.Amount,
		UnitPrice: float64(t.UnitPrice),
		Days:      t.Days,
	}
}

// client is the part of mqtt.Client the publisher uses.
type client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	IsConnected() bool
	Disconnect(quiesce uint)
}

// Publisher handles publishing totals to MQTT
type Publisher struct {
	client      client
	topicPrefix string
}

// New connects to the broker.
func New(cfg Config) (*Publisher, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("MQTT broker address is required")
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = DefaultClientID
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL(cfg.Broker))
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(10 * time.Second)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	c := mqtt.NewClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connecting to MQTT broker: %w", token.Error())
	}
	return newPublisher(c, cfg.TopicPrefix), nil
}

func newPublisher(c client, prefix string) *Publisher {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return &Publisher{client: c, topicPrefix: prefix}
}

// brokerURL accepts host:port or a full URL.
func brokerURL(broker string) string {
	if strings.Contains(broker, "://") {
		return broker
	}
	return "tcp://" + broker
}

// Topic returns <prefix>/<yyyy>-<mm>/totals.
func (p *Publisher) Topic(sel core.MonthSelection) string {
	return fmt.Sprintf("%s/%s/totals", p.topicPrefix, sel.Key())
}

// PublishTotals sends the month totals as a retained QoS 1 message.
func (p *Publisher) PublishTotals(sel core.MonthSelection, t core.Totals) error {
	body, err := json.Marshal(NewTotalsPayload(sel, t))
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}

	token := p.client.Publish(p.Topic(sel), 1, true, body)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publishing %s: timed out", p.Topic(sel))
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publishing %s: %w", p.Topic(sel), err)
	}
	return nil
}

// Close disconnects from the MQTT broker
func (p *Publisher) Close() {
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(250)
	}
}
