package mqtt_test

import (
	"context"
	"fmt"
	"time"

	"github.com/autopeer-io/groundpeer/pkg/log"
	"github.com/autopeer-io/groundpeer/pkg/mqtt"
	"github.com/autopeer-io/groundpeer/pkg/mqtt/topic"
)

// ExampleClient shows a remote panel sending an arm command to the station
// and listening for its acknowledgement.
func ExampleClient() {
	cfg := &mqtt.ClientConfig{
		BrokerURL:      "tcp://localhost:1883",
		ClientID:       "gpeer-panel-01",
		KeepAlive:      30,
		ConnectTimeout: 5 * time.Second,
		CleanStart:     true,
	}

	client, err := mqtt.NewClient(cfg)
	if err != nil {
		log.Error(err, "Failed to create MQTT client")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.Start(ctx); err != nil {
		log.Error(err, "Failed to start MQTT client")
		return
	}
	defer client.Disconnect(context.Background())

	if err := client.AwaitConnection(ctx); err != nil {
		log.Error(err, "Connection timed out")
		return
	}

	topics := topic.NewBuilder("gcs/v1")
	_ = client.Subscribe(ctx, topics.CommandAck("mother"), 1, func(_ context.Context, t string, payload []byte) {
		fmt.Printf("ack on %s: %s\n", t, payload)
	})

	_ = client.Publish(ctx, topics.Command("mother"), 1, false, []byte(`{"action":"arm"}`))
}
