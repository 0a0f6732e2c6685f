package app

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/viscotheque/spectackler/internal/config"
	"github.com/viscotheque/spectackler/internal/trace"
)

// RunConsole subscribes to the reading topic tree and prints one formatted
// line per reading until interrupted.
func RunConsole() error {
	cfg := config.Get()

	client, err := connectMQTT("console")
	if err != nil {
		return err
	}

	topic := cfg.MQTTTopicRoot + "/#"
	token := client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var r trace.Reading
		if err := json.Unmarshal(msg.Payload(), &r); err != nil {
			log.Printf("console: payload unmarshal error on %s: %v", msg.Topic(), err)
			return
		}
		fmt.Println(formatReading(r))
	})
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}
	log.Printf("console: subscribed to %s", topic)

	// Wait for Ctrl+C
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("console: shutting down")
	client.Disconnect(250)
	return nil
}

// formatReading renders one reading as a fixed-prefix line with the sensor
// values in stable alphabetical order.
func formatReading(r trace.Reading) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%-11s] %s %9.1fs", strings.ToUpper(r.Source), r.Clock, r.Watch)

	names := make([]string, 0, len(r.Values))
	for name := range r.Values {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		fmt.Fprintf(&b, "  %s=%8.3f", name, r.Values[name])
	}
	return b.String()
}
