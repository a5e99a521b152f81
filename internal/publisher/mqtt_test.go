package publisher

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"milkbook/internal/core"
)

type doneToken struct {
	err error
}

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t doneToken) Error() error { return t.err }

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeClient struct {
	sent         []published
	err          error
	disconnected bool
}

func (f *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	f.sent = append(f.sent, published{topic, qos, retained, payload.([]byte)})
	return doneToken{err: f.err}
}

func (f *fakeClient) IsConnected() bool { return !f.disconnected }

func (f *fakeClient) Disconnect(uint) { f.disconnected = true }

func TestPublishTotals(t *testing.T) {
	fc := &fakeClient{}
	p := newPublisher(fc, "/farm/")
	sel := core.MonthSelection{Month: 1, Year: 2025}
	totals := core.Total([]core.DailyRecord{{Date: "01/01/2025", Morning: 1000, Evening: 500}}, 45)

	require.NoError(t, p.PublishTotals(sel, totals))
	require.Len(t, fc.sent, 1)

	msg := fc.sent[0]
	assert.Equal(t, "farm/2025-01/totals", msg.topic)
	assert.Equal(t, byte(1), msg.qos)
	assert.True(t, msg.retained)

	var got TotalsPayload
	require.NoError(t, json.Unmarshal(msg.payload, &got))
	assert.Equal(t, TotalsPayload{Year: 2025, Month: 1, Litres: 1.5, Amount: 67.5, UnitPrice: 45, Days: 1}, got)
}

func TestPublishTotalsError(t *testing.T) {
	p := newPublisher(&fakeClient{err: errors.New("not connected")}, "")
	err := p.PublishTotals(core.MonthSelection{Month: 2, Year: 2024}, core.Totals{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "milkbook/2024-02/totals")
}

func TestBrokerURL(t *testing.T) {
	assert.Equal(t, "tcp://localhost:1883", brokerURL("localhost:1883"))
	assert.Equal(t, "ssl://mqtt.example.com:8883", brokerURL("ssl://mqtt.example.com:8883"))
}

func TestNewRequiresBroker(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestClose(t *testing.T) {
	fc := &fakeClient{}
	newPublisher(fc, "").Close()
	assert.True(t, fc.disconnected)
}
