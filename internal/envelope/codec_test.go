package envelope

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleFields() Fields {
	return Fields{
		Topic:   "wm.window.open",
		Payload: map[string]any{"window_id": "win_1", "size": map[string]any{"width": 800}},
		Context: Context{Project: Str("A"), Entity: Str("B")},
		Source: Source{
			Addon:     "crm",
			SessionID: "sess_1",
			WindowID:  "win_1",
			User:      &User{ID: "u1", Name: "Ada"},
		},
		User:    &User{ID: "u1", Name: "Ada"},
		ReplyTo: Str("c69e55f3-6b50-4ed6-876d-93fcd6e7b5b4"),
	}
}

func TestRoundTrip(t *testing.T) {
	f := sampleFields()

	data, err := Encode(f)
	require.NoError(t, err)

	frame := Decode(data)
	require.Equal(t, KindEnvelope, frame.Kind, "err: %v", frame.Err)
	e := frame.Envelope

	assert.Equal(t, f.Topic, e.Topic)
	assert.Equal(t, "win_1", e.Get("window_id").String())
	assert.Equal(t, int64(800), e.Get("size.width").Int())
	require.NotNil(t, e.Context)
	assert.Equal(t, f.Context, *e.Context)
	require.NotNil(t, e.Source)
	assert.Equal(t, f.Source, *e.Source)
	assert.Equal(t, f.User, e.User)
	assert.Equal(t, *f.ReplyTo, *e.ReplyTo)
	assert.NotEmpty(t, e.MessageID)
	assert.NotZero(t, e.Timestamp)
}

func TestEncodeFreshIdentity(t *testing.T) {
	f := sampleFields()

	a, err := Build(f)
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	b, err := Build(f)
	require.NoError(t, err)

	assert.NotEqual(t, a.MessageID, b.MessageID)
	assert.NotEqual(t, a.Timestamp, b.Timestamp)
	assert.Greater(t, b.Timestamp, a.Timestamp)
}

func TestTimestampIsEncodeTime(t *testing.T) {
	before := time.Now()
	e, err := Build(Fields{Topic: "t"})
	require.NoError(t, err)
	after := time.Now()

	ts := e.Time()
	assert.False(t, ts.Before(before.Add(-time.Millisecond)))
	assert.False(t, ts.After(after.Add(time.Millisecond)))
}

func TestEncodeNullContextFields(t *testing.T) {
	data, err := Encode(Fields{Topic: "t", Context: Context{Project: Str("A")}})
	require.NoError(t, err)

	s := string(data)
	assert.Contains(t, s, `"entity":null`)
	assert.Contains(t, s, `"task":null`)
	assert.Contains(t, s, `"reply_to":null`)
	assert.Contains(t, s, `"payload":{}`)
}

func TestDecodeDefaultsPayload(t *testing.T) {
	for _, raw := range []string{
		`{"message_id":"m1","topic":"t"}`,
		`{"message_id":"m1","topic":"t","payload":null}`,
	} {
		frame := Decode([]byte(raw))
		require.Equal(t, KindEnvelope, frame.Kind)
		assert.JSONEq(t, `{}`, string(frame.Envelope.Payload))
		assert.Nil(t, frame.Envelope.Context)
		assert.Nil(t, frame.Envelope.ReplyTo)
	}
}

func TestDecodeHeartbeats(t *testing.T) {
	tests := []struct {
		raw  string
		want Heartbeat
	}{
		{`{"ping": true}`, Heartbeat{Ping: true}},
		{`{"pong":true}`, Heartbeat{Pong: true}},
		{`{"ping":true,"pong":false}`, Heartbeat{Ping: true}},
		{string(Ping()), Heartbeat{Ping: true}},
		{string(Pong()), Heartbeat{Pong: true}},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			frame := Decode([]byte(tt.raw))
			require.Equal(t, KindHeartbeat, frame.Kind)
			assert.Equal(t, tt.want, frame.Heartbeat)
			assert.Nil(t, frame.Envelope)
		})
	}
}

func TestHeartbeatLookalikesAreNotHeartbeats(t *testing.T) {
	for _, raw := range []string{
		`{"ping":false}`,
		`{"ping":"yes"}`,
		`{"ping":true,"topic":"x"}`,
		`{}`,
	} {
		frame := Decode([]byte(raw))
		assert.NotEqual(t, KindHeartbeat, frame.Kind, raw)
	}
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `{"topic":`},
		{"array", `[1,2]`},
		{"string", `"hello"`},
		{"missing message_id", `{"topic":"t"}`},
		{"missing topic", `{"message_id":"m"}`},
		{"wildcard topic", `{"message_id":"m","topic":"wm.*"}`},
		{"wrong type", `{"message_id":"m","topic":"t","timestamp":"noon"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := Decode([]byte(tt.raw))
			assert.Equal(t, KindMalformed, frame.Kind)
			assert.ErrorIs(t, frame.Err, ErrMalformed)
		})
	}
}

func TestValidateTopic(t *testing.T) {
	tests := []struct {
		topic   string
		wantErr bool
	}{
		{"wm.window.open", false},
		{strings.Repeat("a", 200), false},
		{"", true},
		{strings.Repeat("a", 201), true},
		{"wm.>", true},
		{"wm.*.open", true},
	}

	for _, tt := range tests {
		err := ValidateTopic(tt.topic)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrInvalidTopic, tt.topic)
		} else {
			assert.NoError(t, err, tt.topic)
		}
	}
}

func TestEncodeRejects(t *testing.T) {
	_, err := Encode(Fields{Topic: "bad*"})
	assert.ErrorIs(t, err, ErrInvalidTopic)

	big := make(map[string]int, MaxPayloadKeys+1)
	for i := 0; i <= MaxPayloadKeys; i++ {
		big[fmt.Sprintf("k%d", i)] = i
	}
	_, err = Encode(Fields{Topic: "t", Payload: big})
	assert.ErrorIs(t, err, ErrTooManyKeys)

	_, err = Encode(Fields{Topic: "t", Payload: make(chan int)})
	assert.Error(t, err)
}

func TestEncodeRawPayload(t *testing.T) {
	e, err := Build(Fields{Topic: "t", Payload: []byte(`{"a":1}`)})
	require.NoError(t, err)
	assert.Equal(t, int64(1), e.Get("a").Int())

	_, err = Build(Fields{Topic: "t", Payload: []byte(`{"a":`)})
	assert.Error(t, err)
}

func TestNonObjectPayload(t *testing.T) {
	data, err := Encode(Fields{Topic: "t", Payload: []int{1, 2, 3}})
	require.NoError(t, err)

	frame := Decode(data)
	require.Equal(t, KindEnvelope, frame.Kind)
	var got []int
	require.NoError(t, frame.Envelope.DecodePayload(&got))
	assert.Equal(t, []int{1, 2, 3}, got)
}
