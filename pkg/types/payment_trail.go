package types

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// PaymentAttemptError records one failed gateway attempt.
type PaymentAttemptError struct {
	Gateway   string    `json:"gateway"`
	Attempt   int       `json:"attempt"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// PaymentErrorTrail is the ordered list of failed attempts for one payment
// intent, stored as JSONB alongside the payment record.
type PaymentErrorTrail []PaymentAttemptError

// Value serializes the trail to JSON. The value receiver matters: trails are
// passed by value through map-based gorm updates and must still satisfy
// driver.Valuer there.
func (t PaymentErrorTrail) Value() (driver.Value, error) {
	if t == nil {
		return nil, nil
	}
	return json.Marshal(t)
}

// Scan decodes JSONB into the trail.
func (t *PaymentErrorTrail) Scan(value interface{}) error {
	if value == nil {
		*t = nil
		return nil
	}
	raw, err := asJSON(value)
	if err != nil {
		return err
	}
	var decoded []PaymentAttemptError
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return err
	}
	*t = decoded
	return nil
}

// Last returns the most recent attempt error, or nil when the trail is empty.
func (t PaymentErrorTrail) Last() *PaymentAttemptError {
	if len(t) == 0 {
		return nil
	}
	return &t[len(t)-1]
}
