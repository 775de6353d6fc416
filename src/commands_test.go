package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name   string
		msg    SensorMessage
		want   Command
		wantOK bool
	}{
		{"switch on", SensorMessage{Topic: TopicEnabledSet, Value: "ON"}, CommandEnable, true},
		{"switch off", SensorMessage{Topic: TopicEnabledSet, Value: "OFF"}, CommandDisable, true},
		{"lower case", SensorMessage{Topic: TopicEnabledSet, Value: " off\n"}, CommandDisable, true},
		{"rescan button", SensorMessage{Topic: TopicRescanPress, Value: "PRESS"}, CommandRescan, true},
		{"bad switch value", SensorMessage{Topic: TopicEnabledSet, Value: "toggle"}, 0, false},
		{"bad button value", SensorMessage{Topic: TopicRescanPress, Value: "ON"}, 0, false},
		{"unknown topic", SensorMessage{Topic: "homeassistant/switch/other/set", Value: "ON"}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseCommand(tt.msg)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestCommandWorker_ForwardsValidCommands(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgChan := make(chan SensorMessage, 3)
	cmdChan := make(chan Command, 3)
	go commandWorker(ctx, msgChan, cmdChan)

	msgChan <- SensorMessage{Topic: TopicEnabledSet, Value: "garbage"}
	msgChan <- SensorMessage{Topic: TopicEnabledSet, Value: "OFF"}
	msgChan <- SensorMessage{Topic: TopicRescanPress, Value: "PRESS"}

	for _, want := range []Command{CommandDisable, CommandRescan} {
		select {
		case got := <-cmdChan:
			assert.Equal(t, want, got)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

func TestCommand_String(t *testing.T) {
	assert.Equal(t, "enable", CommandEnable.String())
	assert.Equal(t, "disable", CommandDisable.String())
	assert.Equal(t, "rescan", CommandRescan.String())
	assert.Equal(t, "unknown", Command(42).String())
}
