package options

import (
	"errors"
	"time"

	"github.com/spf13/pflag"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	cliflag "k8s.io/component-base/cli/flag"

	"github.com/autopeer-io/groundpeer/internal/profile"
	"github.com/autopeer-io/groundpeer/internal/station"
	"github.com/autopeer-io/groundpeer/pkg/app"
	"github.com/autopeer-io/groundpeer/pkg/log"
	"github.com/autopeer-io/groundpeer/pkg/options"
)

// GeneralOptions are the station's own settings.
type GeneralOptions struct {
	ID             string        `json:"id" mapstructure:"id"`
	MissionDir     string        `json:"mission-dir" mapstructure:"mission-dir"`
	ModelFile      string        `json:"model-file" mapstructure:"model-file"`
	ProfileFile    string        `json:"profile-file" mapstructure:"profile-file"`
	AutoConnect    bool          `json:"auto-connect" mapstructure:"auto-connect"`
	StatusInterval time.Duration `json:"status-interval" mapstructure:"status-interval"`
	SinkSize       int           `json:"sink-size" mapstructure:"sink-size"`
}

func (o *GeneralOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.ID, "station.id", o.ID, "Station id used in MQTT topics (defaults to gpeer-<hostname>).")
	fs.StringVar(&o.MissionDir, "station.mission-dir", o.MissionDir, "Directory that relative mission file names resolve against.")
	fs.StringVar(&o.ModelFile, "station.model-file", o.ModelFile, "Mission file uploaded by the upload-model action.")
	fs.StringVar(&o.ProfileFile, "station.profile-file", o.ProfileFile, "YAML file with per-role vehicle profiles.")
	fs.BoolVar(&o.AutoConnect, "station.auto-connect", o.AutoConnect, "Connect every role on start.")
	fs.DurationVar(&o.StatusInterval, "station.status-interval", o.StatusInterval, "Period of the MQTT station status publish.")
	fs.IntVar(&o.SinkSize, "station.sink-size", o.SinkSize, "Number of status lines buffered for the MQTT bus.")
}

func (o *GeneralOptions) Validate() []error {
	var errs []error
	if o.StatusInterval <= 0 {
		errs = append(errs, errors.New("station.status-interval must be positive"))
	}
	if o.SinkSize <= 0 {
		errs = append(errs, errors.New("station.sink-size must be positive"))
	}
	return errs
}

type StationOptions struct {
	Station        *GeneralOptions         `json:"station" mapstructure:"station"`
	HttpOptions    *options.HttpOptions    `json:"http" mapstructure:"http"`
	MqttOptions    *options.MqttOptions    `json:"mqtt" mapstructure:"mqtt"`
	S3Options      *options.S3Options      `json:"s3" mapstructure:"s3"`
	JournalOptions *options.JournalOptions `json:"journal" mapstructure:"journal"`
	SerialOptions  *options.SerialOptions  `json:"serial" mapstructure:"serial"`
	Log            *log.Options            `json:"log" mapstructure:"log"`
}

var (
	_ app.NamedFlagSetOptions = (*StationOptions)(nil)
	_ app.LogOptioner         = (*StationOptions)(nil)
)

func NewStationOptions() *StationOptions {
	return &StationOptions{
		Station: &GeneralOptions{
			ModelFile:      "model.waypoints",
			StatusInterval: time.Second,
			SinkSize:       256,
		},
		HttpOptions:    options.NewHttpOptions(),
		MqttOptions:    options.NewMqttOptions(),
		S3Options:      options.NewS3Options(),
		JournalOptions: options.NewJournalOptions(),
		SerialOptions:  options.NewSerialOptions(),
		Log:            log.NewOptions(),
	}
}

func (o *StationOptions) Flags() cliflag.NamedFlagSets {
	fss := cliflag.NamedFlagSets{}
	o.Station.AddFlags(fss.FlagSet("station"))
	o.SerialOptions.AddFlags(fss.FlagSet("serial"))
	o.HttpOptions.AddFlags(fss.FlagSet("http"))
	o.MqttOptions.AddFlags(fss.FlagSet("mqtt"))
	o.S3Options.AddFlags(fss.FlagSet("s3"))
	o.JournalOptions.AddFlags(fss.FlagSet("journal"))
	o.Log.AddFlags(fss.FlagSet("log"))
	return fss
}

func (o *StationOptions) Complete() error {
	return nil
}

func (o *StationOptions) Validate() error {
	errs := []error{}
	errs = append(errs, o.Station.Validate()...)
	errs = append(errs, o.SerialOptions.Validate()...)
	errs = append(errs, o.HttpOptions.Validate()...)
	errs = append(errs, o.MqttOptions.Validate()...)
	errs = append(errs, o.S3Options.Validate()...)
	errs = append(errs, o.JournalOptions.Validate()...)
	errs = append(errs, o.Log.Validate()...)
	return utilerrors.NewAggregate(errs)
}

func (o *StationOptions) LogOptions() *log.Options {
	return o.Log
}

func (o *StationOptions) Config() (*station.Config, error) {
	profiles := profile.Defaults()
	if o.Station.ProfileFile != "" {
		var err error
		if profiles, err = profile.Load(o.Station.ProfileFile); err != nil {
			return nil, err
		}
	}

	return &station.Config{
		StationID:      o.Station.ID,
		HttpOptions:    o.HttpOptions,
		MqttOptions:    o.MqttOptions,
		S3Options:      o.S3Options,
		JournalOptions: o.JournalOptions,
		SerialOptions:  o.SerialOptions,
		Profiles:       profiles,
		MissionDir:     o.Station.MissionDir,
		ModelFile:      o.Station.ModelFile,
		AutoConnect:    o.Station.AutoConnect,
		StatusInterval: o.Station.StatusInterval,
		SinkSize:       o.Station.SinkSize,
	}, nil
}
