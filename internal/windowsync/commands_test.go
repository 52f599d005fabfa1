package windowsync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/GriffinCanCode/AgentOS/windowbus/internal/emitter"
	"github.com/GriffinCanCode/AgentOS/windowbus/internal/shared/types"
)

func TestCommands(t *testing.T) {
	tests := []struct {
		name    string
		call    func(c Commands) string
		topic   string
		payload any
	}{
		{"open", func(c Commands) string { return c.Open("notes") }, types.TopicOpen, map[string]any{"addon": "notes"}},
		{"open default addon", func(c Commands) string { return c.Open("") }, types.TopicOpen, map[string]any{}},
		{"close", func(c Commands) string { return c.Close("w1") }, types.TopicClose, map[string]any{"window_id": "w1"}},
		{"minimize", func(c Commands) string { return c.Minimize("w1") }, types.TopicMinimize, map[string]any{"window_id": "w1"}},
		{"maximize", func(c Commands) string { return c.Maximize("w1") }, types.TopicMaximize, map[string]any{"window_id": "w1"}},
		{"restore", func(c Commands) string { return c.Restore("w1") }, types.TopicRestore, map[string]any{"window_id": "w1"}},
		{"hide", func(c Commands) string { return c.Hide("w1") }, types.TopicHide, map[string]any{"window_id": "w1"}},
		{"show", func(c Commands) string { return c.Show("w1") }, types.TopicShow, map[string]any{"window_id": "w1"}},
		{"move", func(c Commands) string { return c.Move("w1", 3, 4) }, types.TopicMove,
			map[string]any{"window_id": "w1", "position": types.WindowPosition{X: 3, Y: 4}}},
		{"resize", func(c Commands) string { return c.Resize("w1", 640, 480) }, types.TopicResize,
			map[string]any{"window_id": "w1", "size": types.WindowSize{Width: 640, Height: 480}}},
		{"get state", func(c Commands) string { return c.GetState("w1") }, types.TopicGetState, map[string]any{"window_id": "w1"}},
		{"list all", func(c Commands) string { return c.ListAll() }, types.TopicListAll, nil},
		{"list by session", func(c Commands) string { return c.ListBySession("sess_1") }, types.TopicListBySession,
			map[string]any{"session_id": "sess_1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			em := new(MockEmitter)
			em.On("Emit", tt.topic, emitter.Options{Payload: tt.payload}).Return("msg-1")

			assert.Equal(t, "msg-1", tt.call(NewCommands(em)))
			em.AssertExpectations(t)
		})
	}
}

func TestCommandsWithoutEmitter(t *testing.T) {
	c := NewCommands(nil)
	assert.Empty(t, c.Open("notes"))
	assert.Empty(t, c.ListAll())
}

func TestCommandsDropped(t *testing.T) {
	em := new(MockEmitter)
	em.On("Emit", mock.Anything, mock.Anything).Return("")

	assert.Empty(t, NewCommands(em).Close("w1"))
}
