package envelope

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bytedance/sonic"
	"github.com/tidwall/gjson"

	"github.com/GriffinCanCode/AgentOS/windowbus/internal/shared/id"
)

// Validation limits
const (
	MaxTopicLength  = 200
	MaxPayloadKeys  = 100
	topicWildcards  = "*>"
	heartbeatPing   = "ping"
	heartbeatPong   = "pong"
	emptyPayloadRaw = "{}"
)

var (
	ErrInvalidTopic = errors.New("invalid topic")
	ErrTooManyKeys  = errors.New("payload has too many top-level keys")
	ErrMalformed    = errors.New("malformed frame")
)

var (
	pingFrame = []byte(`{"ping":true}`)
	pongFrame = []byte(`{"pong":true}`)
)

// Kind tags a decoded frame.
type Kind int

const (
	KindMalformed Kind = iota
	KindHeartbeat
	KindEnvelope
)

// String returns the string representation of the kind
func (k Kind) String() string {
	switch k {
	case KindHeartbeat:
		return "heartbeat"
	case KindEnvelope:
		return "envelope"
	default:
		return "malformed"
	}
}

// Heartbeat is a liveness frame.
type Heartbeat struct {
	Ping bool
	Pong bool
}

// Frame is the result of Decode. Exactly one of Envelope, Heartbeat or Err
// is meaningful, as selected by Kind.
type Frame struct {
	Kind      Kind
	Envelope  *Envelope
	Heartbeat Heartbeat
	Err       error
}

// Fields are the caller-controlled parts of an outbound envelope.
type Fields struct {
	Topic   string
	Payload any
	Context Context
	Source  Source
	User    *User
	ReplyTo *string
}

// Build assigns a fresh message id and the current time, and validates the
// result. The timestamp is fixed here, not when the frame hits the socket.
func Build(f Fields) (*Envelope, error) {
	if err := ValidateTopic(f.Topic); err != nil {
		return nil, err
	}

	payload, err := marshalPayload(f.Payload)
	if err != nil {
		return nil, err
	}
	if err := validatePayload(payload); err != nil {
		return nil, err
	}

	ctx := f.Context.Clone()
	src := f.Source
	return &Envelope{
		MessageID: id.NewMessageID(),
		Topic:     f.Topic,
		Payload:   payload,
		Context:   &ctx,
		Source:    &src,
		User:      f.User,
		ReplyTo:   f.ReplyTo,
		Timestamp: Now(),
	}, nil
}

// Marshal serializes an envelope to its wire form.
func Marshal(e *Envelope) ([]byte, error) {
	data, err := sonic.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope %s: %w", e.Topic, err)
	}
	return data, nil
}

// Encode is Build followed by Marshal.
func Encode(f Fields) ([]byte, error) {
	e, err := Build(f)
	if err != nil {
		return nil, err
	}
	return Marshal(e)
}

// Decode classifies and parses an inbound frame. Heartbeats are recognised
// before any envelope field is read.
func Decode(data []byte) Frame {
	if !gjson.ValidBytes(data) {
		return malformed(fmt.Errorf("%w: invalid json", ErrMalformed))
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return malformed(fmt.Errorf("%w: not an object", ErrMalformed))
	}

	if hb, ok := heartbeat(root); ok {
		return Frame{Kind: KindHeartbeat, Heartbeat: hb}
	}

	var e Envelope
	if err := sonic.Unmarshal(data, &e); err != nil {
		return malformed(fmt.Errorf("%w: %v", ErrMalformed, err))
	}
	if e.MessageID == "" {
		return malformed(fmt.Errorf("%w: missing message_id", ErrMalformed))
	}
	if err := ValidateTopic(e.Topic); err != nil {
		return malformed(fmt.Errorf("%w: %v", ErrMalformed, err))
	}
	if len(e.Payload) == 0 || string(e.Payload) == "null" {
		e.Payload = []byte(emptyPayloadRaw)
	}
	if err := validatePayload(e.Payload); err != nil {
		return malformed(fmt.Errorf("%w: %v", ErrMalformed, err))
	}
	return Frame{Kind: KindEnvelope, Envelope: &e}
}

// Ping returns the ping frame.
func Ping() []byte { return append([]byte(nil), pingFrame...) }

// Pong returns the pong frame.
func Pong() []byte { return append([]byte(nil), pongFrame...) }

// Now returns wall-clock seconds as used in envelope timestamps.
func Now() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}

// ValidateTopic enforces 1-200 characters and no wildcard characters.
func ValidateTopic(topic string) error {
	n := utf8.RuneCountInString(topic)
	if n == 0 || n > MaxTopicLength {
		return fmt.Errorf("%w: length %d not in 1-%d", ErrInvalidTopic, n, MaxTopicLength)
	}
	if strings.ContainsAny(topic, topicWildcards) {
		return fmt.Errorf("%w: %q contains a wildcard", ErrInvalidTopic, topic)
	}
	return nil
}

// heartbeat matches objects whose only keys are ping/pong, all boolean,
// with at least one set.
func heartbeat(root gjson.Result) (Heartbeat, bool) {
	var hb Heartbeat
	keys := 0
	ok := true
	root.ForEach(func(k, v gjson.Result) bool {
		keys++
		if !v.IsBool() {
			ok = false
			return false
		}
		switch k.String() {
		case heartbeatPing:
			hb.Ping = v.Bool()
		case heartbeatPong:
			hb.Pong = v.Bool()
		default:
			ok = false
			return false
		}
		return true
	})
	if !ok || keys == 0 || (!hb.Ping && !hb.Pong) {
		return Heartbeat{}, false
	}
	return hb, true
}

func marshalPayload(p any) ([]byte, error) {
	switch v := p.(type) {
	case nil:
		return []byte(emptyPayloadRaw), nil
	case []byte:
		if !gjson.ValidBytes(v) {
			return nil, fmt.Errorf("payload is not valid json")
		}
		return append([]byte(nil), v...), nil
	}
	data, err := sonic.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return data, nil
}

func validatePayload(raw []byte) error {
	r := gjson.ParseBytes(raw)
	if !r.IsObject() {
		return nil
	}
	keys := 0
	r.ForEach(func(_, _ gjson.Result) bool {
		keys++
		return keys <= MaxPayloadKeys
	})
	if keys > MaxPayloadKeys {
		return fmt.Errorf("%w: max %d", ErrTooManyKeys, MaxPayloadKeys)
	}
	return nil
}

func malformed(err error) Frame {
	return Frame{Kind: KindMalformed, Err: err}
}
