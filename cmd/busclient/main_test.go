package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/GriffinCanCode/AgentOS/windowbus/internal/envelope"
)

func TestStatusURL(t *testing.T) {
	tests := []struct {
		host string
		want string
	}{
		{"localhost:8000", "http://localhost:8000"},
		{"ws://hub:9000", "http://hub:9000"},
		{"wss://hub.example", "https://hub.example"},
		{"http://hub:9000", "http://hub:9000"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusURL(tt.host), tt.host)
	}
}

func TestContextPatch(t *testing.T) {
	reset := func() {
		emitProject, emitEntity, emitTask, emitClearCtx = "", "", "", false
	}
	t.Cleanup(reset)

	reset()
	assert.Nil(t, contextPatch())

	emitProject = "P1"
	patch := contextPatch()
	assert.Len(t, patch, 1)
	assert.Equal(t, "P1", *patch[envelope.FieldProject])

	reset()
	emitClearCtx = true
	emitTask = "T1"
	patch = contextPatch()
	assert.Len(t, patch, 3)
	assert.Nil(t, patch[envelope.FieldProject])
	assert.Nil(t, patch[envelope.FieldEntity])
	assert.Equal(t, "T1", *patch[envelope.FieldTask])
}

func TestPair(t *testing.T) {
	x, y, err := pair("10", "-4")
	assert.NoError(t, err)
	assert.Equal(t, 10, x)
	assert.Equal(t, -4, y)

	_, _, err = pair("10", "abc")
	assert.Error(t, err)
}

func TestCommandTree(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"listen", "emit", "windows", "status"} {
		assert.True(t, names[want], want)
	}

	sub := map[string]bool{}
	for _, c := range windowsCmd.Commands() {
		sub[c.Name()] = true
	}
	for _, want := range []string{"open", "list", "state", "move", "resize", "close", "minimize", "maximize", "restore", "hide", "show"} {
		assert.True(t, sub[want], want)
	}
}
