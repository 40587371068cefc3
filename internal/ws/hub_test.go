package ws

import (
	"encoding/json"
	"testing"

	"github.com/fathima-sithara/classroom-chat/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func receive(t *testing.T, c *Client) events.Event {
	t.Helper()
	select {
	case b := <-c.send:
		var ev events.Event
		require.NoError(t, json.Unmarshal(b, &ev))
		return ev
	default:
		t.Fatal("no event delivered")
		return events.Event{}
	}
}

func TestHubDeliversByTopic(t *testing.T) {
	hub := NewHub(zap.NewNop())
	teacher := newClient(nil, "teacher-1")
	parent := newClient(nil, "parent-1")
	hub.Subscribe("chat-1", teacher)
	hub.Subscribe("chat-1", parent)
	hub.Subscribe("teacher-1", teacher)

	hub.Deliver(events.Event{Type: events.NewMessage, Topic: "chat-1", ChatID: "chat-1", MessageID: "m-1"})
	assert.Equal(t, "m-1", receive(t, teacher).MessageID)
	assert.Equal(t, "m-1", receive(t, parent).MessageID)

	hub.Deliver(events.Event{Type: events.ChatCreated, Topic: "teacher-1", ChatID: "chat-2"})
	assert.Equal(t, events.ChatCreated, receive(t, teacher).Type)
	assert.Empty(t, parent.send)
}

func TestHubRemoveDropsAllTopics(t *testing.T) {
	hub := NewHub(zap.NewNop())
	c := newClient(nil, "u")
	hub.Subscribe("chat-1", c)
	hub.Subscribe("u", c)
	require.Equal(t, 1, hub.Subscribers("chat-1"))

	hub.Remove(c)
	assert.Zero(t, hub.Subscribers("chat-1"))
	assert.Zero(t, hub.Subscribers("u"))
	assert.Empty(t, c.topics)
}

func TestHubSkipsFullClients(t *testing.T) {
	hub := NewHub(zap.NewNop())
	c := newClient(nil, "u")
	hub.Subscribe("chat-1", c)
	for i := 0; i < sendBuffer+5; i++ {
		hub.Deliver(events.Event{Type: events.NewMessage, Topic: "chat-1"})
	}
	assert.Len(t, c.send, sendBuffer)
}
