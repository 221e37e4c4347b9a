package service

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/CZERTAINLY/Prospect/internal/model"
)

const envPrefix = "prospect"

// Keys which can be overridden on top of the config file. Every key is
// read from PROSPECT_<KEY> with dots replaced by underscores, e.g.
// PROSPECT_SERVER_URL, and from the flag mapped to it in NewViper.
const (
	KeyServerURL     = "server.url"
	KeyServerTimeout = "server.timeout"
	KeyServerFilter  = "server.filter"
	KeyPollInterval  = "poll.interval"
	KeyFormat        = "service.format"
	KeyDir           = "service.dir"
	KeyHistory       = "service.history"
	KeyVerbose       = "service.verbose"
)

// NewViper returns a viper instance reading environment overrides and
// the given flags. flagKeys maps a flag name to its config key; flags
// missing in the set are skipped.
func NewViper(flags *pflag.FlagSet, flagKeys map[string]string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags == nil {
		return v, nil
	}
	for name, key := range flagKeys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return nil, fmt.Errorf("binding flag %s: %w", name, err)
		}
	}
	return v, nil
}

// ApplyOverrides copies every explicitly set key from v into cfg. Values
// are parsed the same way the config file is, durations are ISO-8601.
func ApplyOverrides(v *viper.Viper, cfg model.Config) (model.Config, error) {
	if v.IsSet(KeyServerURL) {
		var u model.URL
		if err := u.UnmarshalText([]byte(v.GetString(KeyServerURL))); err != nil {
			return cfg, fmt.Errorf("%s: %w", KeyServerURL, err)
		}
		cfg.Server.URL = u
	}
	if v.IsSet(KeyServerTimeout) {
		d, err := duration(v, KeyServerTimeout)
		if err != nil {
			return cfg, err
		}
		cfg.Server.Timeout = d
	}
	if v.IsSet(KeyServerFilter) {
		cfg.Server.Filter = v.GetString(KeyServerFilter)
	}
	if v.IsSet(KeyPollInterval) {
		d, err := duration(v, KeyPollInterval)
		if err != nil {
			return cfg, err
		}
		cfg.Poll.Interval = d
	}
	if v.IsSet(KeyFormat) {
		format := v.GetString(KeyFormat)
		switch format {
		case model.FormatText, model.FormatJSON:
			cfg.Service.Format = format
		default:
			return cfg, fmt.Errorf("%s: unsupported value %q: use text or json", KeyFormat, format)
		}
	}
	if v.IsSet(KeyDir) {
		cfg.Service.Dir = v.GetString(KeyDir)
	}
	if v.IsSet(KeyHistory) {
		cfg.Service.History = v.GetString(KeyHistory)
	}
	if v.IsSet(KeyVerbose) {
		cfg.Service.Verbose = v.GetBool(KeyVerbose)
	}
	return cfg, nil
}

func duration(v *viper.Viper, key string) (*model.Duration, error) {
	var d model.Duration
	if err := d.UnmarshalText([]byte(v.GetString(key))); err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	if d.Duration <= 0 {
		return nil, fmt.Errorf("%s: must be positive", key)
	}
	return &d, nil
}
