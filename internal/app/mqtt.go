package app

import (
	"encoding/json"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/viscotheque/spectackler/internal/config"
	"github.com/viscotheque/spectackler/internal/trace"
)

// connectMQTT connects to the configured broker with a per-tool client ID.
func connectMQTT(tool string) (mqtt.Client, error) {
	cfg := config.Get()
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientPrefix + "-" + tool)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	log.Printf("%s: connected to MQTT broker at %s", tool, cfg.MQTTBroker)
	return client, nil
}

// publishReading publishes one live reading under the topic root. Publish
// failures are logged and dropped; the on-disk trace log is the record, the
// MQTT stream is best-effort monitoring.
func publishReading(client mqtt.Client, source string, watch float64, values map[string]float64) {
	r := trace.Reading{
		Source: source,
		Clock:  time.Now().Format(trace.ClockLayout),
		Watch:  watch,
		Values: values,
	}
	payload, err := json.Marshal(r)
	if err != nil {
		log.Printf("%s: reading marshal error: %v", source, err)
		return
	}
	topic := config.Get().MQTTTopicRoot + "/" + source
	if token := client.Publish(topic, 0, true, payload); token.Wait() && token.Error() != nil {
		log.Printf("%s: MQTT publish error: %v", source, token.Error())
	}
}
