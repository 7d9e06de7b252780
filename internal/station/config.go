package station

import (
	"fmt"
	"os"
	"time"

	"github.com/autopeer-io/groundpeer/internal/archive"
	"github.com/autopeer-io/groundpeer/internal/coordinator"
	"github.com/autopeer-io/groundpeer/internal/journal"
	"github.com/autopeer-io/groundpeer/internal/logsink"
	"github.com/autopeer-io/groundpeer/internal/pkg/metrics"
	"github.com/autopeer-io/groundpeer/internal/ports"
	"github.com/autopeer-io/groundpeer/internal/profile"
	stationmqtt "github.com/autopeer-io/groundpeer/internal/station/server/mqtt"
	"github.com/autopeer-io/groundpeer/internal/vehicle"
	"github.com/autopeer-io/groundpeer/internal/vehicle/mavlink"
	"github.com/autopeer-io/groundpeer/internal/vehicle/sim"
	"github.com/autopeer-io/groundpeer/pkg/mqtt"
	"github.com/autopeer-io/groundpeer/pkg/mqtt/topic"
	"github.com/autopeer-io/groundpeer/pkg/options"
)

// simDevices are offered when simulating without a fixed device list.
var simDevices = ports.StaticEnumerator{"sim0", "sim1", "sim2"}

type Config struct {
	StationID string

	HttpOptions    *options.HttpOptions
	MqttOptions    *options.MqttOptions
	S3Options      *options.S3Options
	JournalOptions *options.JournalOptions
	SerialOptions  *options.SerialOptions

	Profiles   profile.Set
	MissionDir string
	ModelFile  string

	// AutoConnect connects every role when the station starts.
	AutoConnect bool

	// StatusInterval is the period of the MQTT station status publish.
	StatusInterval time.Duration

	// SinkSize is the capacity of the status line buffer.
	SinkSize int
}

// NewStation wires the station from cfg.
func (cfg *Config) NewStation() (*Station, error) {
	if cfg.StationID == "" {
		hostname, _ := os.Hostname()
		cfg.StationID = "gpeer-" + hostname
	}

	state := ports.NewState()
	state.OnChange = func(n int) { metrics.ClaimedDevices.Set(float64(n)) }

	enum, dialer := Link(cfg.SerialOptions)
	sink := logsink.New(cfg.SinkSize)

	s := &Station{
		cfg:   cfg,
		state: state,
		enum:  enum,
		sink:  sink,
	}

	observers := []coordinator.Option{coordinator.WithObserver(metrics.Recorder{})}

	if cfg.JournalOptions.Path != "" {
		s.journal = journal.New(cfg.JournalOptions.Path)
		observers = append(observers, coordinator.WithObserver(s.journal))
	}

	if cfg.S3Options.Enabled() {
		a, err := archive.NewMinIO(cfg.S3Options)
		if err != nil {
			return nil, err
		}
		s.archive = a
		s.recorder = archive.NewRecorder(a, s.uploadedFile)
		observers = append(observers, coordinator.WithObserver(s.recorder))
	}

	s.coord = coordinator.New(coordinator.Config{
		Baud:           cfg.SerialOptions.Baud,
		ConnectTimeout: cfg.SerialOptions.ConnectTimeout,
		Profiles:       cfg.Profiles,
		MissionDir:     cfg.MissionDir,
		ModelFile:      cfg.ModelFile,
	}, dialer, enum, state, sink, observers...)

	if cfg.MqttOptions.Enabled() {
		client, err := cfg.newMQTTClient()
		if err != nil {
			return nil, fmt.Errorf("failed to init mqtt client: %w", err)
		}
		s.mqttClient = client
	}

	return s, nil
}

// Link picks the candidate devices and the dialer for opts: a fixed list or
// serial enumeration, simulated or MAVLink vehicles.
func Link(opts *options.SerialOptions) (ports.Enumerator, vehicle.Dialer) {
	var enum ports.Enumerator = ports.SerialEnumerator{}
	if len(opts.Devices) > 0 {
		enum = ports.StaticEnumerator(opts.Devices)
	}

	if opts.Simulate {
		if len(opts.Devices) == 0 {
			enum = simDevices
		}
		return enum, sim.NewDialer(sim.Options{TelemetryInterval: time.Second})
	}
	return enum, mavlink.NewDialer()
}

func (cfg *Config) newMQTTClient() (mqtt.Client, error) {
	mc := cfg.MqttOptions.ToClientConfig()
	if mc.ClientID == "" {
		mc.ClientID = cfg.StationID
	}

	mc.WillTopic = topic.NewBuilder(cfg.MqttOptions.TopicRoot).Status(cfg.StationID)
	mc.WillPayload = stationmqtt.OfflinePayload(cfg.StationID)
	mc.WillQoS = 1
	mc.WillRetain = true

	return mqtt.NewClient(mc)
}
