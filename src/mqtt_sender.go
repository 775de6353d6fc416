package main

import (
	"context"
	"encoding/json"
	"log"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTMessage represents an outgoing MQTT message
type MQTTMessage struct {
	Topic   string
	Payload []byte
	QoS     byte
	Retain  bool
}

// MQTTSender wraps a channel for sending MQTT messages with helper methods
type MQTTSender struct {
	ch chan<- MQTTMessage
}

// NewMQTTSender creates a new MQTTSender wrapping the given channel
func NewMQTTSender(ch chan<- MQTTMessage) *MQTTSender {
	return &MQTTSender{ch: ch}
}

// Send sends a raw MQTTMessage
func (s *MQTTSender) Send(msg MQTTMessage) {
	s.ch <- msg
}

// TopicTrackerState carries the JSON snapshot all tracker sensors read from
const TopicTrackerState = "homeassistant/sensor/suntracker/state"

const deviceID = "suntracker"

type haDeviceConfig struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Model        string   `json:"model,omitempty"`
}

func trackerDevice() haDeviceConfig {
	return haDeviceConfig{
		Identifiers:  []string{deviceID},
		Name:         "Sun Tracker",
		Manufacturer: "Custom",
		Model:        "Reflector controller",
	}
}

// TrackerEntity describes one sensor read out of the state snapshot
type TrackerEntity struct {
	Name        string
	Key         string // Field of the state JSON
	DeviceClass string
	Unit        string
	StateClass  string
	Precision   int
	Icon        string
	Optional    bool // Key is missing from some snapshots
}

// TrackerEntities lists the sensors created at startup
func TrackerEntities() []TrackerEntity {
	return []TrackerEntity{
		{Name: "Panel Power", Key: "value", DeviceClass: "power", Unit: "W", StateClass: "measurement", Precision: 1},
		{Name: "Reflector Gain", Key: "efficiency_pct", Unit: "%", StateClass: "measurement", Precision: 0, Icon: "mdi:mirror", Optional: true},
		{Name: "Reflector Position", Key: "pos", StateClass: "measurement", Precision: 2, Icon: "mdi:angle-acute"},
		{Name: "Mode", Key: "mode", Icon: "mdi:state-machine"},
	}
}

// valueTemplate renders the Home Assistant template for an entity key
func (e TrackerEntity) valueTemplate() string {
	if e.Optional {
		return "{{ value_json." + e.Key + " if value_json." + e.Key + " is defined else None }}"
	}
	return "{{ value_json." + e.Key + " }}"
}

// CreateTrackerEntity creates a Home Assistant sensor via MQTT discovery
func (s *MQTTSender) CreateTrackerEntity(e TrackerEntity) error {
	type haEntityConfig struct {
		Name             string         `json:"name,omitempty"`
		DeviceClass      string         `json:"device_class,omitempty"`
		StateTopic       string         `json:"state_topic"`
		UnitOfMeasure    string         `json:"unit_of_measurement,omitempty"`
		ValueTemplate    string         `json:"value_template"`
		UniqueId         string         `json:"unique_id"`
		ExpireAfter      uint           `json:"expire_after,omitempty"`
		StateClass       string         `json:"state_class,omitempty"`
		DisplayPrecision int            `json:"suggested_display_precision,omitempty"`
		Icon             string         `json:"icon,omitempty"`
		Device           haDeviceConfig `json:"device"`
	}

	config := haEntityConfig{
		Name:             e.Name,
		DeviceClass:      e.DeviceClass,
		StateTopic:       TopicTrackerState,
		UnitOfMeasure:    e.Unit,
		ValueTemplate:    e.valueTemplate(),
		UniqueId:         deviceID + "_" + e.Key,
		ExpireAfter:      60 * 5, // 5 minutes
		StateClass:       e.StateClass,
		DisplayPrecision: e.Precision,
		Icon:             e.Icon,
		Device:           trackerDevice(),
	}

	payload, err := json.Marshal(config)
	if err != nil {
		return err
	}

	s.Send(MQTTMessage{
		Topic:   "homeassistant/sensor/" + deviceID + "_" + e.Key + "/config",
		Payload: payload,
		QoS:     2,
		Retain:  true,
	})

	return nil
}

// CreateEnabledSwitch creates the suntracker_enabled switch via MQTT discovery
func (s *MQTTSender) CreateEnabledSwitch() error {
	type haSwitchConfig struct {
		Name         string         `json:"name"`
		StateTopic   string         `json:"state_topic"`
		CommandTopic string         `json:"command_topic"`
		UniqueId     string         `json:"unique_id"`
		Icon         string         `json:"icon,omitempty"`
		Optimistic   bool           `json:"optimistic"`
		Device       haDeviceConfig `json:"device"`
	}

	config := haSwitchConfig{
		Name:         "Enabled",
		StateTopic:   TopicEnabledState,
		CommandTopic: TopicEnabledSet,
		UniqueId:     deviceID + "_enabled",
		Icon:         "mdi:sun-compass",
		Optimistic:   false,
		Device:       trackerDevice(),
	}

	payload, err := json.Marshal(config)
	if err != nil {
		return err
	}

	s.Send(MQTTMessage{
		Topic:   "homeassistant/switch/" + deviceID + "_enabled/config",
		Payload: payload,
		QoS:     2,
		Retain:  true,
	})

	return nil
}

// CreateRescanButton creates the suntracker_rescan button via MQTT discovery
func (s *MQTTSender) CreateRescanButton() error {
	type haButtonConfig struct {
		Name         string         `json:"name"`
		CommandTopic string         `json:"command_topic"`
		PayloadPress string         `json:"payload_press"`
		UniqueId     string         `json:"unique_id"`
		Icon         string         `json:"icon,omitempty"`
		Device       haDeviceConfig `json:"device"`
	}

	config := haButtonConfig{
		Name:         "Rescan",
		CommandTopic: TopicRescanPress,
		PayloadPress: "PRESS",
		UniqueId:     deviceID + "_rescan",
		Icon:         "mdi:radar",
		Device:       trackerDevice(),
	}

	payload, err := json.Marshal(config)
	if err != nil {
		return err
	}

	s.Send(MQTTMessage{
		Topic:   "homeassistant/button/" + deviceID + "_rescan/config",
		Payload: payload,
		QoS:     2,
		Retain:  true,
	})

	return nil
}

// PublishEnabled reports the switch state back to Home Assistant
func (s *MQTTSender) PublishEnabled(enabled bool) {
	state := "OFF"
	if enabled {
		state = "ON"
	}
	s.Send(MQTTMessage{
		Topic:   TopicEnabledState,
		Payload: []byte(state),
		QoS:     1,
		Retain:  true,
	})
}

// PublishState sends the state snapshot JSON
func (s *MQTTSender) PublishState(payload map[string]any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	s.Send(MQTTMessage{
		Topic:   TopicTrackerState,
		Payload: data,
		QoS:     0,
		Retain:  false,
	})
	return nil
}

// isDiscoveryTopic checks if a topic is an MQTT discovery config topic
func isDiscoveryTopic(topic string) bool {
	return strings.HasSuffix(topic, "/config")
}

// maxQueuedMessages bounds the backlog kept while the broker is unreachable
const maxQueuedMessages = 100

// enqueue appends msg, evicting the oldest non-discovery message when the queue is full.
// Discovery configs are never evicted so entities still appear after a long outage.
func enqueue(queue []MQTTMessage, msg MQTTMessage) []MQTTMessage {
	queue = append(queue, msg)
	if len(queue) <= maxQueuedMessages {
		return queue
	}
	for i, m := range queue {
		if !isDiscoveryTopic(m.Topic) {
			return append(queue[:i], queue[i+1:]...)
		}
	}
	return queue
}

// mqttSenderWorker handles outgoing MQTT messages, queuing them until a client connects
func mqttSenderWorker(
	ctx context.Context,
	outgoingChan <-chan MQTTMessage,
	clientChan <-chan mqtt.Client,
) {
	log.Println("MQTT sender worker started")

	var client mqtt.Client
	var messageQueue []MQTTMessage

	for {
		select {
		case newClient := <-clientChan:
			log.Println("MQTT sender worker received new client")
			client = newClient

			// Process any queued messages now that we have a client
			if client != nil && client.IsConnected() {
				queuedCount := len(messageQueue)
				for _, msg := range messageQueue {
					token := client.Publish(msg.Topic, msg.QoS, msg.Retain, msg.Payload)
					token.Wait()
					if token.Error() != nil {
						log.Printf("Failed to publish queued message to %s: %v\n", msg.Topic, token.Error())
					}
				}
				messageQueue = nil // Clear the queue
				if queuedCount > 0 {
					log.Printf("MQTT sender worker processed %d queued messages\n", queuedCount)
				}
			}

		case msg := <-outgoingChan:
			if client != nil && client.IsConnected() {
				// We have a client, publish immediately
				token := client.Publish(msg.Topic, msg.QoS, msg.Retain, msg.Payload)
				token.Wait()
				if token.Error() != nil {
					log.Printf("Failed to publish to %s: %v\n", msg.Topic, token.Error())
				}
			} else {
				// No client yet, queue the message
				messageQueue = enqueue(messageQueue, msg)
			}

		case <-ctx.Done():
			log.Println("MQTT sender worker stopped")
			return
		}
	}
}
