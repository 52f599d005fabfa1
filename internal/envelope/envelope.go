// Package envelope defines the wire message unit and its codec.
//
// Every frame on a window socket is either a heartbeat ({"ping": true} /
// {"pong": true}) or an Envelope. Decode returns a Frame tagged with its
// kind so callers never inspect ad hoc fields to tell them apart.
package envelope

import (
	"encoding/json"
	"time"

	"github.com/bytedance/sonic"
	"github.com/tidwall/gjson"
)

// Context field names, in wire order.
const (
	FieldProject = "project"
	FieldEntity  = "entity"
	FieldTask    = "task"
)

// ContextFields lists every business context field.
var ContextFields = []string{FieldProject, FieldEntity, FieldTask}

// Context is the business context attached to every envelope. A nil field
// is sent as JSON null.
type Context struct {
	Project *string `json:"project"`
	Entity  *string `json:"entity"`
	Task    *string `json:"task"`
}

// ContextPatch overrides context fields by name. A present key wins even
// when its value is nil; an absent key keeps the current value.
type ContextPatch map[string]*string

// Get returns the named field, or nil for unknown names.
func (c Context) Get(field string) *string {
	switch field {
	case FieldProject:
		return c.Project
	case FieldEntity:
		return c.Entity
	case FieldTask:
		return c.Task
	}
	return nil
}

// With returns a copy of c with field set to v. Unknown names are ignored.
func (c Context) With(field string, v *string) Context {
	switch field {
	case FieldProject:
		c.Project = v
	case FieldEntity:
		c.Entity = v
	case FieldTask:
		c.Task = v
	}
	return c
}

// Apply returns c shallow-merged with patch.
func (c Context) Apply(patch ContextPatch) Context {
	for _, f := range ContextFields {
		if v, ok := patch[f]; ok {
			c = c.With(f, v)
		}
	}
	return c
}

// IsEmpty reports whether every field is nil.
func (c Context) IsEmpty() bool {
	return c.Project == nil && c.Entity == nil && c.Task == nil
}

// Clone returns a deep copy so callers cannot mutate shared strings.
func (c Context) Clone() Context {
	return Context{Project: cloneStr(c.Project), Entity: cloneStr(c.Entity), Task: cloneStr(c.Task)}
}

// Str is a convenience for building context literals.
func Str(s string) *string {
	return &s
}

func cloneStr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// User is the user record carried in envelopes.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// Source identifies the sender. It is advisory: the hub re-derives the
// authoritative source from connection metadata.
type Source struct {
	Addon     string `json:"addon"`
	SessionID string `json:"session_id"`
	WindowID  string `json:"window_id"`
	User      *User  `json:"user"`
}

// Envelope is the unit of wire communication.
type Envelope struct {
	MessageID string          `json:"message_id"`
	Topic     string          `json:"topic"`
	Payload   json.RawMessage `json:"payload"`
	Context   *Context        `json:"context"`
	Source    *Source         `json:"source"`
	User      *User           `json:"user"`
	ReplyTo   *string         `json:"reply_to"`
	Timestamp float64         `json:"timestamp"`
}

// Get reads a payload value by gjson path, e.g. "window_id" or "position.x".
func (e *Envelope) Get(path string) gjson.Result {
	return gjson.GetBytes(e.Payload, path)
}

// DecodePayload unmarshals the payload into v.
func (e *Envelope) DecodePayload(v any) error {
	return sonic.Unmarshal(e.Payload, v)
}

// Time returns the encode time.
func (e *Envelope) Time() time.Time {
	sec := int64(e.Timestamp)
	nsec := int64((e.Timestamp - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}

// IsReplyTo reports whether e answers the message with the given id.
func (e *Envelope) IsReplyTo(messageID string) bool {
	return e.ReplyTo != nil && *e.ReplyTo == messageID
}

// SourceWindow returns source.window_id, or "" without a source.
func (e *Envelope) SourceWindow() string {
	if e.Source == nil {
		return ""
	}
	return e.Source.WindowID
}
