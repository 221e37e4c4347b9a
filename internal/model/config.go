package model

import (
	"context"
	"io"
	"net/url"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/encoding/yaml"

	_ "embed"
)

const (
	ServiceModeManual = "manual"
	ServiceModeTimer  = "timer"

	FormatText = "text"
	FormatJSON = "json"

	DefaultServerURL    = "http://localhost:5001"
	DefaultPollInterval = 2000 * time.Millisecond
	DefaultTimeout      = 30 * time.Second
)

//go:embed config.cue
var cueSource []byte

var (
	cueCtx *cue.Context
	schema cue.Value
)

func init() {
	if len(cueSource) == 0 {
		panic("variable cueSource is empty")
	}
	cueCtx = cuecontext.New()
	compiled := cueCtx.CompileBytes(cueSource)
	if compiled.Err() != nil {
		panic(compiled.Err())
	}

	schema = compiled.LookupPath(cue.ParsePath("#Config"))
	if schema.Err() != nil {
		panic(schema.Err())
	}
}

type Config struct {
	Version int     `json:"version" yaml:"version"` // fixed 0 for now
	Server  Server  `json:"server" yaml:"server"`
	Poll    Poll    `json:"poll" yaml:"poll"`
	Service Service `json:"service" yaml:"service"`
}

// Server is the remote job service.
type Server struct {
	URL     URL       `json:"url" yaml:"url"`
	Timeout *Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"` // per request
	Filter  string    `json:"filter,omitempty" yaml:"filter,omitempty"`   // opaque, forwarded on submit
}

type Poll struct {
	Interval *Duration `json:"interval,omitempty" yaml:"interval,omitempty"`
}

type Service struct {
	Mode     string         `json:"mode" yaml:"mode"` // "manual" | "timer"
	Verbose  bool           `json:"verbose,omitempty" yaml:"verbose,omitempty"`
	Format   string         `json:"format,omitempty" yaml:"format,omitempty"`   // "text" | "json"
	Scale    float64        `json:"scale,omitempty" yaml:"scale,omitempty"`     // bar runes per unit
	Dir      string         `json:"dir,omitempty" yaml:"dir,omitempty"`         // xlsx + json reports
	History  string         `json:"history,omitempty" yaml:"history,omitempty"` // sqlite job ledger
	Schedule *TimerSchedule `json:"schedule,omitempty" yaml:"schedule,omitempty"`
}

// TimerSchedule triggers a new submission either by cron or every Duration.
type TimerSchedule struct {
	Cron     string    `json:"cron,omitempty" yaml:"cron,omitempty"`
	Duration *Duration `json:"duration,omitempty" yaml:"duration,omitempty"`
}

func (s Server) RequestTimeout() time.Duration {
	if s.Timeout == nil {
		return DefaultTimeout
	}
	return s.Timeout.Duration
}

func (p Poll) IntervalOrDefault() time.Duration {
	if p.Interval == nil || p.Interval.Duration <= 0 {
		return DefaultPollInterval
	}
	return p.Interval.Duration
}

func (s Service) FormatOrDefault() string {
	if s.Format == "" {
		return FormatText
	}
	return s.Format
}

func (s Service) ScaleOrDefault() float64 {
	if s.Scale <= 0 {
		return 1
	}
	return s.Scale
}

func DefaultConfig(_ context.Context) Config {
	u, _ := url.Parse(DefaultServerURL)
	return Config{
		Version: 0,
		Server: Server{
			URL:     URL{URL: u},
			Timeout: &Duration{Duration: DefaultTimeout},
		},
		Poll: Poll{
			Interval: &Duration{Duration: DefaultPollInterval},
		},
		Service: Service{
			Mode:   ServiceModeManual,
			Format: FormatText,
			Scale:  1,
		},
	}
}

// LoadConfig validates YAML from r against CUE schema and decodes to Config.
func LoadConfig(r io.Reader) (Config, error) {
	yamlFile, err := yaml.Extract("config.yaml", r)
	if err != nil {
		return Config{}, err
	}
	yamlValue := cueCtx.BuildFile(yamlFile)

	unified := schema.Unify(yamlValue)
	if err := unified.Validate(
		cue.All(),          // all constraints
		cue.Concrete(true), // no incomplete values
	); err != nil {
		return Config{}, err
	}

	var out Config
	if err := unified.Decode(&out); err != nil {
		return Config{}, err
	}

	return out, nil
}
