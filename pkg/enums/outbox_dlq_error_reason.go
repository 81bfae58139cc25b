package enums

import "fmt"

// OutboxDLQErrorReason maps to the outbox_dlq_error_reason_enum in Postgres.
type OutboxDLQErrorReason string

const (
	DLQReasonPublishFailed OutboxDLQErrorReason = "publish_failed"
	DLQReasonDecodeFailed  OutboxDLQErrorReason = "decode_failed"
	DLQReasonMaxAttempts   OutboxDLQErrorReason = "max_attempts"
)

var validDLQErrorReasons = []OutboxDLQErrorReason{
	DLQReasonPublishFailed,
	DLQReasonDecodeFailed,
	DLQReasonMaxAttempts,
}

// IsValid reports whether the value matches the canonical enum.
func (r OutboxDLQErrorReason) IsValid() bool {
	for _, candidate := range validDLQErrorReasons {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseOutboxDLQErrorReason converts raw input into OutboxDLQErrorReason.
func ParseOutboxDLQErrorReason(value string) (OutboxDLQErrorReason, error) {
	for _, candidate := range validDLQErrorReasons {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid dlq error reason %q", value)
}
