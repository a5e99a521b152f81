package amqp

import (
	"encoding/json"
	"time"
)

// MonthSavedMessage announces that records of one month were written.
// Consumers re-read the month from the primary store rather than trusting
// values carried in the message.
type MonthSavedMessage struct {
	Year      int       `json:"year"`
	Month     int       `json:"month"`
	Updated   int       `json:"updated"`
	Appended  int       `json:"appended"`
	SessionID string    `json:"session_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewMonthSavedMessage(year, month, updated, appended int, sessionID string) *MonthSavedMessage {
	return &MonthSavedMessage{
		Year:      year,
		Month:     month,
		Updated:   updated,
		Appended:  appended,
		SessionID: sessionID,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *MonthSavedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// MonthSavedMessageFromJSON decodes a message body.
func MonthSavedMessageFromJSON(data []byte) (*MonthSavedMessage, error) {
	var msg MonthSavedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
