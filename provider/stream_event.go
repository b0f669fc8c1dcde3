package provider

import (
	"errors"
	"fmt"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var (
	delimJSON    = []byte(`{"type":"delim"}`)
	chunkJSON    = []byte(`{"type":"chunk"}`)
	responseJSON = []byte(`{"type":"response"}`)
	errorJSON    = []byte(`{"type":"error"}`)
)

type StreamEvent interface {
	streamEvent()
}

type Delim struct {
	RunID uuid.UUID `json:"run_id"`
	Delim string    `json:"delim"`
}

func (Delim) streamEvent() {}

// Chunk is an incremental piece of assistant text.
type Chunk struct {
	RunID     uuid.UUID       `json:"run_id"`
	Content   string          `json:"content"`
	Timestamp strfmt.DateTime `json:"timestamp,omitempty"`
}

func (Chunk) streamEvent() {}

// Response is the complete assistant message of a completion.
type Response struct {
	RunID     uuid.UUID       `json:"run_id"`
	Model     string          `json:"model,omitempty"`
	Message   Message         `json:"message"`
	Timestamp strfmt.DateTime `json:"timestamp,omitempty"`
}

func (Response) streamEvent() {}

type Error struct {
	RunID     uuid.UUID       `json:"run_id"`
	Err       error           `json:"error"`
	Timestamp strfmt.DateTime `json:"timestamp,omitempty"`
}

func (Error) streamEvent() {}

func (e Error) Error() string {
	return fmt.Sprintf("run_id: %s, timestamp: %s, error: %v", e.RunID, e.Timestamp, e.Err)
}

func (e Error) Unwrap() error {
	return e.Err
}

// MarshalJSON implements custom JSON marshaling for Delim
func (d Delim) MarshalJSON() ([]byte, error) {
	result, err := sjson.SetBytes(delimJSON, "run_id", d.RunID.String())
	if err != nil {
		return nil, err
	}
	return sjson.SetBytes(result, "delim", d.Delim)
}

// UnmarshalJSON implements custom JSON unmarshaling for Delim
func (d *Delim) UnmarshalJSON(data []byte) error {
	if err := checkType(data, "delim"); err != nil {
		return err
	}
	if err := unmarshalRunID(data, &d.RunID); err != nil {
		return err
	}

	delim := gjson.GetBytes(data, "delim")
	if !delim.Exists() {
		return fmt.Errorf("missing required field 'delim'")
	}
	d.Delim = delim.String()
	return nil
}

// MarshalJSON implements custom JSON marshaling for Chunk
func (c Chunk) MarshalJSON() ([]byte, error) {
	result, err := sjson.SetBytes(chunkJSON, "run_id", c.RunID.String())
	if err != nil {
		return nil, err
	}
	result, err = sjson.SetBytes(result, "content", c.Content)
	if err != nil {
		return nil, err
	}
	return setTimestamp(result, c.Timestamp)
}

// UnmarshalJSON implements custom JSON unmarshaling for Chunk
func (c *Chunk) UnmarshalJSON(data []byte) error {
	if err := checkType(data, "chunk"); err != nil {
		return err
	}
	if err := unmarshalRunID(data, &c.RunID); err != nil {
		return err
	}

	content := gjson.GetBytes(data, "content")
	if !content.Exists() {
		return fmt.Errorf("missing required field 'content'")
	}
	c.Content = content.String()
	return unmarshalTimestamp(data, &c.Timestamp)
}

// MarshalJSON implements custom JSON marshaling for Response
func (r Response) MarshalJSON() ([]byte, error) {
	result, err := sjson.SetBytes(responseJSON, "run_id", r.RunID.String())
	if err != nil {
		return nil, err
	}
	if r.Model != "" {
		if result, err = sjson.SetBytes(result, "model", r.Model); err != nil {
			return nil, err
		}
	}
	if result, err = sjson.SetBytes(result, "message.role", string(r.Message.Role)); err != nil {
		return nil, err
	}
	if result, err = sjson.SetBytes(result, "message.content", r.Message.Content); err != nil {
		return nil, err
	}
	return setTimestamp(result, r.Timestamp)
}

// UnmarshalJSON implements custom JSON unmarshaling for Response
func (r *Response) UnmarshalJSON(data []byte) error {
	if err := checkType(data, "response"); err != nil {
		return err
	}
	if err := unmarshalRunID(data, &r.RunID); err != nil {
		return err
	}

	msg := gjson.GetBytes(data, "message")
	if !msg.Exists() {
		return fmt.Errorf("missing required field 'message'")
	}
	r.Message = Message{
		Role:    Role(msg.Get("role").String()),
		Content: msg.Get("content").String(),
	}
	r.Model = gjson.GetBytes(data, "model").String()
	return unmarshalTimestamp(data, &r.Timestamp)
}

// MarshalJSON implements custom JSON marshaling for Error
func (e Error) MarshalJSON() ([]byte, error) {
	result, err := sjson.SetBytes(errorJSON, "run_id", e.RunID.String())
	if err != nil {
		return nil, err
	}
	if e.Err != nil {
		if result, err = sjson.SetBytes(result, "error", e.Err.Error()); err != nil {
			return nil, err
		}
	}
	return setTimestamp(result, e.Timestamp)
}

// UnmarshalJSON implements custom JSON unmarshaling for Error
func (e *Error) UnmarshalJSON(data []byte) error {
	if err := checkType(data, "error"); err != nil {
		return err
	}
	if err := unmarshalRunID(data, &e.RunID); err != nil {
		return err
	}

	errMsg := gjson.GetBytes(data, "error")
	if !errMsg.Exists() {
		return errors.New("missing required field 'error'")
	}
	e.Err = errors.New(errMsg.String())
	return unmarshalTimestamp(data, &e.Timestamp)
}

// ParseStreamEvent decodes any of the stream events from its JSON form.
func ParseStreamEvent(data []byte) (StreamEvent, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("invalid json: %s", data)
	}
	var (
		event StreamEvent
		err   error
	)
	switch typ := gjson.GetBytes(data, "type").String(); typ {
	case "delim":
		var d Delim
		err = d.UnmarshalJSON(data)
		event = d
	case "chunk":
		var c Chunk
		err = c.UnmarshalJSON(data)
		event = c
	case "response":
		var r Response
		err = r.UnmarshalJSON(data)
		event = r
	case "error":
		var e Error
		err = e.UnmarshalJSON(data)
		event = e
	default:
		return nil, fmt.Errorf("unknown stream event type %q", typ)
	}
	if err != nil {
		return nil, err
	}
	return event, nil
}

func checkType(data []byte, want string) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("invalid json: %s", data)
	}
	msgType := gjson.GetBytes(data, "type")
	if !msgType.Exists() || msgType.String() != want {
		return fmt.Errorf("missing or invalid type, expected '%s'", want)
	}
	return nil
}

func unmarshalRunID(data []byte, dst *uuid.UUID) error {
	runID := gjson.GetBytes(data, "run_id")
	if !runID.Exists() {
		return fmt.Errorf("missing required field 'run_id'")
	}
	if err := dst.UnmarshalText([]byte(runID.String())); err != nil {
		return fmt.Errorf("invalid run_id: %w", err)
	}
	return nil
}

func setTimestamp(data []byte, ts strfmt.DateTime) ([]byte, error) {
	if ts.IsZero() {
		return data, nil
	}
	return sjson.SetBytes(data, "timestamp", ts.String())
}

func unmarshalTimestamp(data []byte, dst *strfmt.DateTime) error {
	timestamp := gjson.GetBytes(data, "timestamp")
	if !timestamp.Exists() {
		return nil
	}
	if err := dst.UnmarshalText([]byte(timestamp.String())); err != nil {
		return fmt.Errorf("invalid timestamp: %w", err)
	}
	return nil
}
