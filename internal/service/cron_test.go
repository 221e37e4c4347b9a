package service

import (
	"testing"
	"time"

	"github.com/CZERTAINLY/Prospect/internal/model"

	"github.com/stretchr/testify/require"
)

func TestNewScheduler(t *testing.T) {
	t.Parallel()

	var testCases = []struct {
		scenario string
		given    *model.TimerSchedule
		then     string
	}{
		{"nil", nil, "service.schedule is nil"},
		{"empty", &model.TimerSchedule{}, "both cron and duration are empty"},
		{"bad cron", &model.TimerSchedule{Cron: "* * 32 * *"}, "parsing service.schedule.cron"},
		{"zero duration", &model.TimerSchedule{Duration: &model.Duration{}}, "must be positive"},
		{"cron", &model.TimerSchedule{Cron: "*/15 * * * *"}, ""},
		{"macro", &model.TimerSchedule{Cron: "@hourly"}, ""},
		{"duration", &model.TimerSchedule{Duration: &model.Duration{Duration: time.Hour}}, ""},
	}

	for _, tt := range testCases {
		t.Run(tt.scenario, func(t *testing.T) {
			t.Parallel()
			s, err := newScheduler(t.Context(), tt.given, func() {})
			if tt.then != "" {
				require.Error(t, err)
				require.ErrorContains(t, err, tt.then)
				return
			}
			require.NoError(t, err)
			require.Len(t, s.Jobs(), 1)
			require.NoError(t, s.Shutdown())
		})
	}
}

func TestSchedulerTriggers(t *testing.T) {
	t.Parallel()

	fired := make(chan struct{}, 8)
	s, err := newScheduler(t.Context(),
		&model.TimerSchedule{Duration: &model.Duration{Duration: 50 * time.Millisecond}},
		func() {
			select {
			case fired <- struct{}{}:
			default:
			}
		})
	require.NoError(t, err)
	s.Start()
	t.Cleanup(func() {
		require.NoError(t, s.Shutdown())
	})

	for range 2 {
		select {
		case <-fired:
		case <-time.After(5 * time.Second):
			t.Fatal("scheduler did not trigger")
		}
	}
}
