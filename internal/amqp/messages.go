package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"compteur/internal/core"
)

// HistoryAppendedMessage announces one history row written by the web process.
// It carries the full row so the mirror worker needs no database access.
type HistoryAppendedMessage struct {
	ID        string    `json:"id"`
	CounterID string    `json:"counter_id"`
	Name      string    `json:"person_name"`
	Count     int64     `json:"count"`
	WeekStart core.Date `json:"week_start"`
	CreatedAt time.Time `json:"created_at"`
	Timestamp time.Time `json:"timestamp"`
}

func NewHistoryAppendedMessage(rec core.HistoryRecord) *HistoryAppendedMessage {
	return &HistoryAppendedMessage{
		ID:        rec.ID,
		CounterID: rec.CounterID,
		Name:      rec.Name,
		Count:     rec.Count,
		WeekStart: rec.WeekStart,
		CreatedAt: rec.CreatedAt,
		Timestamp: time.Now(),
	}
}

// Record converts the message back into a history record.
func (m *HistoryAppendedMessage) Record() core.HistoryRecord {
	return core.HistoryRecord{
		ID:        m.ID,
		CounterID: m.CounterID,
		Name:      m.Name,
		Count:     m.Count,
		WeekStart: m.WeekStart,
		CreatedAt: m.CreatedAt,
	}
}

func (m *HistoryAppendedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// HistoryAppendedMessageFromJSON decodes a message and rejects rows without an id.
func HistoryAppendedMessageFromJSON(data []byte) (*HistoryAppendedMessage, error) {
	var msg HistoryAppendedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.ID == "" {
		return nil, errors.New("history message without id")
	}
	return &msg, nil
}
