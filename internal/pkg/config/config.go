/*
config.go Process configuration. Values come from the built-in defaults, then an
optional TOML file, then the environment, then command line flags applied by the
caller. Validate runs last.
*/

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ohowland/sestream/internal/lib/powerflow/gaussseidel"
	"github.com/ohowland/sestream/internal/pkg/database/mongodb"
	"github.com/ohowland/sestream/internal/pkg/datastreams/mqtt"
	"github.com/ohowland/sestream/internal/pkg/datastreams/natshandler"
	"github.com/ohowland/sestream/internal/pkg/datastreams/redispubsub"
	"github.com/ohowland/sestream/internal/pkg/loop"
	"github.com/ohowland/sestream/internal/pkg/measurement"
	"github.com/ohowland/sestream/internal/pkg/synth"
)

// DefaultPath is read when present; a missing file at this path is not an error.
const DefaultPath = "./config/sestream.toml"

// Transport names.
const (
	TransportMQTT  = "mqtt"
	TransportNATS  = "nats"
	TransportRedis = "redis"
	TransportMock  = "mock"
)

// Uncertainty is one [uncertainty.<kind>] table: either fixed or min/max.
type Uncertainty struct {
	Fixed *float64 `toml:"fixed"`
	Min   *float64 `toml:"min"`
	Max   *float64 `toml:"max"`
}

// Policy converts the table to a synth.Policy.
func (u Uncertainty) Policy() (synth.Policy, error) {
	switch {
	case u.Fixed != nil && (u.Min != nil || u.Max != nil):
		return nil, errors.New("fixed cannot be combined with min/max")
	case u.Fixed != nil:
		return synth.Fixed(*u.Fixed), nil
	case u.Min != nil && u.Max != nil:
		return synth.NewUniform(*u.Min, *u.Max)
	}
	return nil, errors.New("need fixed, or both min and max")
}

func uniform(min, max float64) Uncertainty {
	return Uncertainty{Min: &min, Max: &max}
}

// Config is the full process configuration.
type Config struct {
	Transport       string                 `toml:"transport"`
	Topic           string                 `toml:"topic"`
	Backoff         time.Duration          `toml:"backoff"`
	EstimateTimeout time.Duration          `toml:"estimate_timeout"`
	Grid            string                 `toml:"grid"`
	Kinds           []string               `toml:"kinds"`
	Seed            int64                  `toml:"seed"`
	HTTP            string                 `toml:"http"`
	Loop            loop.Config            `toml:"loop"`
	PowerFlow       gaussseidel.Config     `toml:"powerflow"`
	MQTT            mqtt.Config            `toml:"mqtt"`
	NATS            natshandler.Config     `toml:"nats"`
	Redis           redispubsub.Config     `toml:"redis"`
	Mongo           mongodb.Config         `toml:"mongo"`
	Uncertainty     map[string]Uncertainty `toml:"uncertainty"`
}

// Default returns the reference configuration.
func Default() Config {
	return Config{
		Transport:       TransportMQTT,
		Topic:           "state_estimation/results",
		Backoff:         5 * time.Second,
		EstimateTimeout: 0,
		Grid:            "./config/grid/cigre_mv.json",
		Kinds:           []string{measurement.PMUMagnitude.String(), measurement.PMUPhase.String()},
		HTTP:            ":8080",
		Loop:            loop.DefaultConfig(),
		PowerFlow:       gaussseidel.Config{MaxIterations: 5000, Tolerance: 1e-9, Acceleration: 1.6},
		MQTT:            mqtt.Config{Broker: "mosquitto", Port: 1883, Timeout: 5 * time.Second},
		NATS:            natshandler.Config{URL: "nats://localhost:4222", Name: "sestream", Timeout: 5 * time.Second},
		Redis:           redispubsub.Config{Addr: "localhost:6379", Timeout: 5 * time.Second},
		Mongo:           mongodb.DefaultConfig(),
		Uncertainty: map[string]Uncertainty{
			measurement.PMUMagnitude.String(): uniform(0.65, 0.75),
			measurement.PMUPhase.String():     uniform(-5, 5),
		},
	}
}

// Load reads path over the defaults and applies the environment. An empty path
// means DefaultPath.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultPath
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if !errors.Is(err, fs.ErrNotExist) || path != DefaultPath {
			return Config{}, fmt.Errorf("config %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables looked up with lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
		return nil
	}

	str("MQTT_BROKER", &c.MQTT.Broker)
	str("MQTT_TOPIC", &c.Topic)
	if v, ok := lookup("MQTT_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MQTT_PORT: %w", err)
		}
		c.MQTT.Port = port
	}
	str("SESTREAM_TRANSPORT", &c.Transport)
	str("NATS_URL", &c.NATS.URL)
	str("REDIS_ADDR", &c.Redis.Addr)
	str("SESTREAM_GRID", &c.Grid)
	str("SESTREAM_HTTP", &c.HTTP)
	str("MONGO_URL", &c.Mongo.URI)
	str("MONGO_DATABASE", &c.Mongo.Database)
	str("MONGO_COLLECTION", &c.Mongo.Collection)
	if v, ok := lookup("SESTREAM_KINDS"); ok && v != "" {
		c.Kinds = strings.Split(v, ",")
	}

	for key, dst := range map[string]*time.Duration{
		"SESTREAM_CADENCE":          &c.Loop.Cadence,
		"SESTREAM_RECOVERY":         &c.Loop.Recovery,
		"SESTREAM_BACKOFF":          &c.Backoff,
		"SESTREAM_ESTIMATE_TIMEOUT": &c.EstimateTimeout,
	} {
		if err := dur(key, dst); err != nil {
			return err
		}
	}
	return nil
}

// Validate rejects configurations the process cannot run with.
func (c Config) Validate() error {
	switch c.Transport {
	case TransportMQTT, TransportNATS, TransportRedis, TransportMock:
	default:
		return fmt.Errorf("unknown transport %q", c.Transport)
	}
	if c.Topic == "" {
		return errors.New("empty topic")
	}
	if c.Loop.Cadence <= 0 {
		return fmt.Errorf("cadence must be positive, got %v", c.Loop.Cadence)
	}
	if c.Loop.Recovery <= 0 {
		return fmt.Errorf("recovery must be positive, got %v", c.Loop.Recovery)
	}
	if c.Backoff <= 0 {
		return fmt.Errorf("backoff must be positive, got %v", c.Backoff)
	}
	if c.EstimateTimeout < 0 {
		return fmt.Errorf("estimate timeout must not be negative, got %v", c.EstimateTimeout)
	}
	if c.Transport == TransportMQTT && (c.MQTT.Port <= 0 || c.MQTT.Port > 65535) {
		return fmt.Errorf("invalid MQTT port %d", c.MQTT.Port)
	}
	if c.PowerFlow.Acceleration < 0 || c.PowerFlow.Acceleration >= 2 {
		return fmt.Errorf("power flow acceleration must be in [0, 2), got %g", c.PowerFlow.Acceleration)
	}
	if _, err := c.MeasurementKinds(); err != nil {
		return err
	}
	if _, err := c.Policies(); err != nil {
		return err
	}
	return nil
}

// MeasurementKinds parses Kinds.
func (c Config) MeasurementKinds() ([]measurement.Kind, error) {
	kinds, err := measurement.ParseKinds(strings.Join(c.Kinds, ","))
	if err != nil {
		return nil, err
	}
	if len(kinds) == 0 {
		return nil, errors.New("no measurement kinds configured")
	}
	return kinds, nil
}

// Policies builds the uncertainty policy of every configured table.
func (c Config) Policies() (map[measurement.Kind]synth.Policy, error) {
	policies := make(map[measurement.Kind]synth.Policy, len(c.Uncertainty))
	for name, u := range c.Uncertainty {
		k, err := measurement.ParseKind(name)
		if err != nil {
			return nil, fmt.Errorf("uncertainty table: %w", err)
		}
		p, err := u.Policy()
		if err != nil {
			return nil, fmt.Errorf("uncertainty.%s: %w", name, err)
		}
		policies[k] = p
	}
	return policies, nil
}
