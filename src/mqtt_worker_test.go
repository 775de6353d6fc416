package main

import (
	"context"
	"testing"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBrokerURL(t *testing.T) {
	assert.Equal(t, "tcp://homeassistant.lan:1883", brokerURL("homeassistant.lan"))
	assert.Equal(t, "tcp://10.0.0.2:1884", brokerURL("10.0.0.2:1884"))
	assert.Equal(t, "ssl://broker:8883", brokerURL("ssl://broker:8883"))
}

type fakeMessage struct {
	mqtt.Message
	topic    string
	payload  string
	retained bool
}

func (m fakeMessage) Topic() string { return m.topic }
func (m fakeMessage) Payload() []byte { return []byte(m.payload) }
func (m fakeMessage) Retained() bool { return m.retained }

func TestCommandHandler(t *testing.T) {
	msgChan := make(chan SensorMessage, 4)
	handle := commandHandler(context.Background(), msgChan)

	handle(nil, fakeMessage{topic: TopicEnabledSet, payload: " OFF\n"})
	handle(nil, fakeMessage{topic: TopicEnabledSet, payload: "OFF", retained: true})
	handle(nil, fakeMessage{topic: TopicRescanPress, payload: ""})
	handle(nil, fakeMessage{topic: TopicRescanPress, payload: "PRESS"})

	require.Len(t, msgChan, 2)
	assert.Equal(t, SensorMessage{Topic: TopicEnabledSet, Value: "OFF"}, <-msgChan)
	assert.Equal(t, SensorMessage{Topic: TopicRescanPress, Value: "PRESS"}, <-msgChan)
}

func TestCommandHandler_StopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Unbuffered and unread: only the cancelled context lets the handler return
	handle := commandHandler(ctx, make(chan SensorMessage))
	handle(nil, fakeMessage{topic: TopicRescanPress, payload: "PRESS"})
}

type subscribingClient struct {
	mqtt.Client
	filters map[string]byte
}

func (c *subscribingClient) SubscribeMultiple(filters map[string]byte, _ mqtt.MessageHandler) mqtt.Token {
	c.filters = filters
	return doneToken{}
}

func TestSubscribeCommands(t *testing.T) {
	client := &subscribingClient{}
	require.NoError(t, subscribeCommands(client, CommandTopics(), nil))

	assert.Len(t, client.filters, len(CommandTopics()))
	for _, topic := range CommandTopics() {
		assert.Equal(t, byte(commandQoS), client.filters[topic], topic)
	}
}
