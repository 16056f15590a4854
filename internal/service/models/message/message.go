package message

import (
	"encoding/json"
	"fmt"

	"github.com/corray333/backend-labs/bakery/internal/service/errs"
)

// OrderQueued is the body of a message on the orders queue.
type OrderQueued struct {
	OrderID int64 `json:"order_id"`
}

// Encode serializes the message body.
func (m OrderQueued) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// DecodeOrderQueued parses a message body.
// A body that is not valid JSON yields a plain decode error; a body that decodes
// but carries no positive order_id yields a MalformedMessageError.
func DecodeOrderQueued(body []byte) (OrderQueued, error) {
	var m OrderQueued
	if err := json.Unmarshal(body, &m); err != nil {
		return OrderQueued{}, fmt.Errorf("failed to decode order message: %w", err)
	}
	if m.OrderID <= 0 {
		return OrderQueued{}, errs.NewMalformedMessageError("missing order_id")
	}

	return m, nil
}
