package apperr

import (
	"encoding/json"
	"errors"
)

// Envelope is the body of every HTTP response in the system.
type Envelope struct {
	Success       bool            `json:"success"`
	Message       string          `json:"message,omitempty"`
	Data          json.RawMessage `json:"data,omitempty"`
	Pagination    any             `json:"pagination,omitempty"`
	Error         string          `json:"error,omitempty"`
	Code          string          `json:"code,omitempty"`
	Details       map[string]any  `json:"details,omitempty"`
	CorrelationID string          `json:"correlationId,omitempty"`
	FailedStep    string          `json:"failedStep,omitempty"`
	OrderID       int64           `json:"orderId,omitempty"`
}

// Success builds a success envelope around data.
func Success(msg string, data any, correlationID string) (Envelope, error) {
	env := Envelope{Success: true, Message: msg, CorrelationID: correlationID}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return Envelope{}, err
		}
		env.Data = raw
	}
	return env, nil
}

// Failure builds an error envelope. Internal errors never leak their cause.
func Failure(err error, correlationID string) Envelope {
	ae := From(err)
	return Envelope{
		Success:       false,
		Error:         ae.Message,
		Code:          ae.Code,
		Details:       ae.Details,
		CorrelationID: correlationID,
	}
}

// Err converts a failed envelope back into an *Error.
func (e Envelope) Err(status int) *Error {
	if e.Success {
		return nil
	}
	return Decode(status, e.Code, e.Error, e.Details)
}

// StepFailure is a failure that happened at a named step of a multi-call
// operation. OrderID is set once the order exists.
type StepFailure struct {
	Step    string
	OrderID int64
	Err     error
}

func (f *StepFailure) Error() string {
	return f.Step + ": " + f.Err.Error()
}

func (f *StepFailure) Unwrap() error { return f.Err }

// FailureEnvelope is Failure with step information filled in when present.
func FailureEnvelope(err error, correlationID string) Envelope {
	env := Failure(err, correlationID)
	var sf *StepFailure
	if errors.As(err, &sf) {
		env.FailedStep = sf.Step
		env.OrderID = sf.OrderID
	}
	return env
}
