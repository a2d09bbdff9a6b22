package amqp

import (
	"encoding/json"
	"time"
)

// ExecutionEventMessage notifies consumers that a recurring execution record
// changed state. It carries identifiers only; consumers fetch the full record
// from the database.
type ExecutionEventMessage struct {
	ExecutionID   int64     `json:"execution_id"`
	RuleID        int64     `json:"rule_id"`
	Date          string    `json:"date"`
	Status        string    `json:"status"`
	TransactionID string    `json:"transaction_id,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

func NewExecutionEventMessage(executionID, ruleID int64, date, status, transactionID string) *ExecutionEventMessage {
	return &ExecutionEventMessage{
		ExecutionID:   executionID,
		RuleID:        ruleID,
		Date:          date,
		Status:        status,
		TransactionID: transactionID,
		Timestamp:     time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ExecutionEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ExecutionEventMessageFromJSON creates a message from JSON bytes
func ExecutionEventMessageFromJSON(data []byte) (*ExecutionEventMessage, error) {
	var msg ExecutionEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
