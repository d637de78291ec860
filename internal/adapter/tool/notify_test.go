package tool

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wayfinder/internal/domain"
)

func TestNotifyPublishes(t *testing.T) {
	bus := &recordingBus{}
	n := NewNotifyTool(bus, discardLogger())

	out, err := n.Execute(context.Background(), json.RawMessage(`{"title":"Almost there","message":"Try the Settings menu"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"shown":true}`, string(out))

	require.Len(t, bus.events, 1)
	assert.Equal(t, domain.EventNotification, bus.events[0].Type)
	var got Notification
	require.NoError(t, json.Unmarshal(bus.events[0].Payload, &got))
	assert.Equal(t, Notification{Title: "Almost there", Message: "Try the Settings menu", Level: "info"}, got)
}

func TestNotifyWithoutBus(t *testing.T) {
	n := NewNotifyTool(nil, discardLogger())
	out, err := n.Execute(context.Background(), json.RawMessage(`{"message":"hi","level":"success"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"shown":false}`, string(out))
}

func TestNotifyValidation(t *testing.T) {
	n := NewNotifyTool(&recordingBus{}, discardLogger())
	assert.Equal(t, domain.CategoryCosmetic, n.Descriptor().Category)

	_, err := n.Execute(context.Background(), json.RawMessage(`{"title":"empty"}`))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	long, _ := json.Marshal(map[string]string{"message": strings.Repeat("x", maxNotificationLen+1)})
	_, err = n.Execute(context.Background(), long)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
