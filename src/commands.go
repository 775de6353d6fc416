package main

import (
	"context"
	"log"
	"strings"
)

// Command changes what the control loop is doing
type Command int

const (
	CommandEnable Command = iota
	CommandDisable
	CommandRescan
)

func (c Command) String() string {
	switch c {
	case CommandEnable:
		return "enable"
	case CommandDisable:
		return "disable"
	case CommandRescan:
		return "rescan"
	default:
		return "unknown"
	}
}

// Home Assistant entities that control the tracker
const (
	TopicEnabledSet   = "homeassistant/switch/suntracker_enabled/set"
	TopicEnabledState = "homeassistant/switch/suntracker_enabled/state"
	TopicRescanPress  = "homeassistant/button/suntracker_rescan/press"
)

// CommandTopics lists the topics the MQTT worker subscribes to
func CommandTopics() []string {
	return []string{TopicEnabledSet, TopicRescanPress}
}

// parseCommand maps an incoming MQTT message to a command
func parseCommand(msg SensorMessage) (Command, bool) {
	value := strings.ToUpper(strings.TrimSpace(msg.Value))
	switch msg.Topic {
	case TopicEnabledSet:
		switch value {
		case "ON":
			return CommandEnable, true
		case "OFF":
			return CommandDisable, true
		}
	case TopicRescanPress:
		if value == "PRESS" {
			return CommandRescan, true
		}
	}
	return 0, false
}

// commandWorker turns MQTT messages into control loop commands
func commandWorker(ctx context.Context, msgChan <-chan SensorMessage, cmdChan chan<- Command) {
	for {
		select {
		case msg := <-msgChan:
			cmd, ok := parseCommand(msg)
			if !ok {
				log.Printf("Ignoring %q on %s\n", msg.Value, msg.Topic)
				continue
			}
			log.Printf("Command from MQTT: %s\n", cmd)
			select {
			case cmdChan <- cmd:
			case <-ctx.Done():
				return
			}

		case <-ctx.Done():
			return
		}
	}
}
