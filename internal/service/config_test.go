package service_test

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/CZERTAINLY/Prospect/internal/model"
	"github.com/CZERTAINLY/Prospect/internal/service"
)

var flagKeys = map[string]string{
	"server":   service.KeyServerURL,
	"interval": service.KeyPollInterval,
	"filter":   service.KeyServerFilter,
	"format":   service.KeyFormat,
}

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("server", "", "")
	flags.String("interval", "", "")
	flags.String("filter", "", "")
	flags.String("format", "text", "")
	require.NoError(t, flags.Parse(args))
	return flags
}

func TestApplyOverrides(t *testing.T) {
	// can't be parallel as it touches the environment
	t.Setenv("PROSPECT_SERVER_TIMEOUT", "PT5S")
	t.Setenv("PROSPECT_SERVICE_DIR", "/tmp/reports")
	t.Setenv("PROSPECT_SERVICE_HISTORY", "/tmp/prospect.db")

	flags := newFlags(t, "--server", "http://jobs.example.net:8080/api", "--interval", "PT0.5S")
	v, err := service.NewViper(flags, flagKeys)
	require.NoError(t, err)

	cfg, err := service.ApplyOverrides(v, model.DefaultConfig(t.Context()))
	require.NoError(t, err)

	require.Equal(t, "http://jobs.example.net:8080/api", cfg.Server.URL.String())
	require.Equal(t, 5*time.Second, cfg.Server.RequestTimeout())
	require.Equal(t, 500*time.Millisecond, cfg.Poll.IntervalOrDefault())
	require.Equal(t, "/tmp/reports", cfg.Service.Dir)
	require.Equal(t, "/tmp/prospect.db", cfg.Service.History)

	t.Run("unset flags keep file values", func(t *testing.T) {
		require.Equal(t, model.FormatText, cfg.Service.Format)
		require.Empty(t, cfg.Server.Filter)
	})
}

func TestApplyOverrides_Fail(t *testing.T) {
	var testCases = []struct {
		scenario string
		given    []string
		then     string
	}{
		{"interval not ISO", []string{"--interval", "2s"}, "poll.interval: invalid ISO8601 duration"},
		{"zero interval", []string{"--interval", "PT0S"}, "poll.interval: must be positive"},
		{"format", []string{"--format", "xml"}, `service.format: unsupported value "xml"`},
	}

	for _, tt := range testCases {
		t.Run(tt.scenario, func(t *testing.T) {
			v, err := service.NewViper(newFlags(t, tt.given...), flagKeys)
			require.NoError(t, err)
			_, err = service.ApplyOverrides(v, model.DefaultConfig(t.Context()))
			require.Error(t, err)
			require.ErrorContains(t, err, tt.then)
		})
	}
}
