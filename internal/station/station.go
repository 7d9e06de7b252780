// Package station is the long-running ground station: the coordinator over
// every role plus its control API, MQTT bus, journal and mission archive.
package station

import (
	"context"
	"errors"
	"fmt"

	"github.com/autopeer-io/groundpeer/internal/archive"
	"github.com/autopeer-io/groundpeer/internal/coordinator"
	"github.com/autopeer-io/groundpeer/internal/journal"
	"github.com/autopeer-io/groundpeer/internal/logsink"
	"github.com/autopeer-io/groundpeer/internal/pkg/metrics"
	"github.com/autopeer-io/groundpeer/internal/ports"
	"github.com/autopeer-io/groundpeer/internal/station/server"
	stationhttp "github.com/autopeer-io/groundpeer/internal/station/server/http"
	stationmqtt "github.com/autopeer-io/groundpeer/internal/station/server/mqtt"
	"github.com/autopeer-io/groundpeer/pkg/log"
	"github.com/autopeer-io/groundpeer/pkg/mqtt"
	"github.com/autopeer-io/groundpeer/pkg/mqtt/topic"
)

type Station struct {
	cfg   *Config
	coord *coordinator.Coordinator
	state *ports.State
	enum  ports.Enumerator
	sink  *logsink.Sink

	journal    *journal.Journal
	archive    archive.Archive
	recorder   *archive.Recorder
	mqttClient mqtt.Client
}

// Coordinator returns the station's coordinator.
func (s *Station) Coordinator() *coordinator.Coordinator { return s.coord }

// Run serves until ctx ends, then disconnects every vehicle.
func (s *Station) Run(ctx context.Context) error {
	log.Info("Starting ground station", "station", s.cfg.StationID, "roles", s.coord.Roles())

	if s.archive != nil {
		if err := s.archive.CheckBucket(ctx); err != nil {
			return fmt.Errorf("failed to reach mission archive: %w", err)
		}
		log.Info("Mission archive connected")
	}

	var hub *stationmqtt.Server
	mgr := server.NewManager()
	if s.mqttClient != nil {
		hub = stationmqtt.NewServer(s.mqttClient, topic.NewBuilder(s.cfg.MqttOptions.TopicRoot),
			s.coord, s.cfg.StationID, s.cfg.StatusInterval)
		mgr.Add(hub)
	}
	if s.cfg.HttpOptions.Enabled {
		mgr.Add(stationhttp.NewServer(s.cfg.HttpOptions, &stationhttp.Backend{
			Coordinator: s.coord,
			State:       s.state,
			Enumerator:  s.enum,
			Sink:        s.sink,
			Journal:     s.journal,
			Ready:       s.ready,
		}))
	}
	mgr.Add(server.ServerFunc(func(ctx context.Context) error {
		s.pumpLines(ctx, hub)
		return nil
	}))

	if s.cfg.AutoConnect {
		go func() {
			if _, err := s.coord.ConnectAll(ctx, s.coord.Roles(), true); err != nil {
				log.Error(err, "Auto connect incomplete")
			}
		}()
	}

	err := mgr.Start(ctx)
	return errors.Join(err, s.shutdown())
}

func (s *Station) ready() bool {
	return s.mqttClient == nil || s.mqttClient.IsConnected()
}

// pumpLines drains the sink until ctx ends, forwarding lines to the hub when
// there is one.
func (s *Station) pumpLines(ctx context.Context, hub *stationmqtt.Server) {
	var reported uint64
	for {
		select {
		case <-ctx.Done():
			return
		case l := <-s.sink.Lines():
			if d := s.sink.Dropped(); d > reported {
				metrics.SinkDropped.Add(float64(d - reported))
				reported = d
			}
			if hub != nil {
				hub.PublishLine(ctx, l)
			}
		}
	}
}

func (s *Station) shutdown() error {
	log.Info("Shutting down ground station")

	var errs []error
	if err := s.coord.Close(); err != nil {
		errs = append(errs, err)
	}
	s.coord.Wait()
	if s.recorder != nil {
		s.recorder.Wait()
	}
	if s.journal != nil {
		if err := s.journal.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// uploadedFile resolves the mission file written by an upload action.
func (s *Station) uploadedFile(role, action string) string {
	switch coordinator.Action(action) {
	case coordinator.ActionUpload:
		return s.coord.MissionFile(coordinator.Role(role))
	case coordinator.ActionUploadModel:
		return s.coord.ModelPath()
	}
	return ""
}
