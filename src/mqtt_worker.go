package main

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// commandQoS is used for the switch and button subscriptions so presses are not lost on a reconnect
const commandQoS = 1

// mqttWorker keeps the broker connection up. Every (re)connect hands the client to the
// sender worker and resubscribes to the command topics.
func mqttWorker(
	ctx context.Context,
	broker string,
	topics []string,
	username, password, clientID string,
	msgChan chan<- SensorMessage,
	clientChan chan<- mqtt.Client,
) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL(broker))
	opts.SetClientID(clientID)
	opts.SetUsername(username)
	opts.SetPassword(password)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetryInterval(5 * time.Second)

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Printf("MQTT connection lost, commands paused until reconnect: %v\n", err)
	})

	onCommand := commandHandler(ctx, msgChan)
	opts.SetOnConnectHandler(func(client mqtt.Client) {
		log.Printf("Connected to MQTT broker at %s\n", broker)

		select {
		case clientChan <- client:
		case <-ctx.Done():
			return
		}

		if err := subscribeCommands(client, topics, onCommand); err != nil {
			log.Printf("Failed to subscribe to command topics: %v\n", err)
			return
		}
		log.Printf("Listening for commands on %s\n", strings.Join(topics, ", "))
	})

	client := mqtt.NewClient(opts)

	log.Printf("Connecting to MQTT broker at %s...\n", broker)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		log.Printf("Failed to connect to MQTT broker: %v\n", token.Error())
		return
	}

	<-ctx.Done()

	if client.IsConnected() {
		client.Disconnect(250)
		log.Println("Disconnected from MQTT broker")
	}
}

// subscribeCommands subscribes to every command topic in one request
func subscribeCommands(client mqtt.Client, topics []string, handler mqtt.MessageHandler) error {
	filters := make(map[string]byte, len(topics))
	for _, topic := range topics {
		filters[topic] = commandQoS
	}
	token := client.SubscribeMultiple(filters, handler)
	token.Wait()
	return token.Error()
}

// commandHandler forwards switch and button payloads to the command worker. Retained
// messages are dropped: a command left on the broker from an earlier run must not
// replay at startup.
func commandHandler(ctx context.Context, msgChan chan<- SensorMessage) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		if msg.Retained() {
			log.Printf("Ignoring retained command on %s\n", msg.Topic())
			return
		}
		value := strings.TrimSpace(string(msg.Payload()))
		if value == "" {
			return
		}

		select {
		case msgChan <- SensorMessage{Topic: msg.Topic(), Value: value}:
		case <-ctx.Done():
		}
	}
}

// brokerURL accepts a bare host, host:port or a full URL
func brokerURL(broker string) string {
	if strings.Contains(broker, "://") {
		return broker
	}
	if strings.Contains(broker, ":") {
		return "tcp://" + broker
	}
	return fmt.Sprintf("tcp://%s:1883", broker)
}
