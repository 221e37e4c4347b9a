package model_test

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/CZERTAINLY/Prospect/internal/model"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestLoadConfig(t *testing.T) {
	yml := `
version: 0
server:
  url: http://localhost:5001
  timeout: PT10S
  filter: acme
poll:
  interval: PT0.5S
service:
  mode: timer
  format: json
  scale: 3
  schedule:
    duration: PT5M
`
	cfg, err := model.LoadConfig(strings.NewReader(yml))
	require.NoError(t, err)
	require.Equal(t, "http://localhost:5001", cfg.Server.URL.String())
	require.Equal(t, 10*time.Second, cfg.Server.RequestTimeout())
	require.Equal(t, "acme", cfg.Server.Filter)
	require.Equal(t, 500*time.Millisecond, cfg.Poll.IntervalOrDefault())
	require.Equal(t, model.ServiceModeTimer, cfg.Service.Mode)
	require.Equal(t, model.FormatJSON, cfg.Service.FormatOrDefault())
	require.Equal(t, 3.0, cfg.Service.ScaleOrDefault())
	require.NotNil(t, cfg.Service.Schedule)
	require.NotNil(t, cfg.Service.Schedule.Duration)
	require.Equal(t, 5*time.Minute, cfg.Service.Schedule.Duration.Duration)
}

func TestLoadConfig_Defaults(t *testing.T) {
	yml := `
version: 0
server:
  url: http://localhost:5001
service: {}
`
	cfg, err := model.LoadConfig(strings.NewReader(yml))
	require.NoError(t, err)
	require.Equal(t, model.ServiceModeManual, cfg.Service.Mode)
	require.Equal(t, model.DefaultPollInterval, cfg.Poll.IntervalOrDefault())
	require.Equal(t, model.DefaultTimeout, cfg.Server.RequestTimeout())
	require.Equal(t, model.FormatText, cfg.Service.FormatOrDefault())
	require.Equal(t, 1.0, cfg.Service.ScaleOrDefault())
	require.Nil(t, cfg.Service.Schedule)
}

func TestLoadConfig_Fail(t *testing.T) {
	var testCases = []struct {
		scenario string
		given    string
		then     string
	}{
		{
			scenario: "missing url",
			given: `
version: 0
server: {}
service:
  mode: manual
`,
			then: "server.url",
		},
		{
			scenario: "unknown field",
			given: `
version: 0
server:
  url: http://localhost:5001
service:
  mode: manual
  bogus: true
`,
			then: "not allowed",
		},
		{
			scenario: "invalid format",
			given: `
version: 0
server:
  url: http://localhost:5001
service:
  format: xml
`,
			then: "service.format",
		},
		{
			scenario: "bad interval",
			given: `
version: 0
server:
  url: http://localhost:5001
poll:
  interval: 2s
service:
  mode: manual
`,
			then: "invalid ISO8601 duration",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.scenario, func(t *testing.T) {
			_, err := model.LoadConfig(strings.NewReader(tc.given))
			require.Error(t, err)
			require.ErrorContains(t, err, tc.then)
			require.NotEmpty(t, model.CueErrDetails(err))
		})
	}
}

func TestDefaultConfigRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	err := yaml.NewEncoder(&buf).Encode(model.DefaultConfig(t.Context()))
	require.NoError(t, err)
	require.Contains(t, buf.String(), "interval: PT2S")

	cfg, err := model.LoadConfig(&buf)
	require.NoError(t, err)
	require.Equal(t, model.DefaultServerURL, cfg.Server.URL.String())
	require.Equal(t, model.DefaultPollInterval, cfg.Poll.IntervalOrDefault())
	require.Equal(t, model.ServiceModeManual, cfg.Service.Mode)
}
