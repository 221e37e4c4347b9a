package model

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ParseCron parses a 5 field cron expression or a @macro and returns
// the schedule together with the interval between its next two runs.
func ParseCron(expr string) (cron.Schedule, time.Duration, error) {
	e := strings.TrimSpace(expr)
	if e == "" {
		return nil, 0, errors.New("empty cron expression")
	}

	var schedule cron.Schedule
	var err error
	if strings.HasPrefix(e, "@") {
		schedule, err = cron.ParseStandard(e)
	} else {
		parser5 := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
		schedule, err = parser5.Parse(e)
	}
	if err != nil {
		return nil, 0, err
	}
	next1 := schedule.Next(time.Now())
	next2 := schedule.Next(next1)
	return schedule, next2.Sub(next1), nil
}

// P[nD][T[nH][nM][n[.f]S]], e.g. PT2S, PT0.5S, P1DT12H
var isoDurationRx = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+(?:[.,]\d{1,9})?)S)?)?$`)

var ErrISOFormat = errors.New("invalid ISO8601 duration")

// ParseISODuration parses the day and time part of an ISO-8601 duration.
// Years, months and weeks are rejected as their length is ambiguous.
func ParseISODuration(dur string) (time.Duration, error) {
	if dur == "" || dur == "P" || strings.HasSuffix(dur, "T") {
		return 0, ErrISOFormat
	}
	m := isoDurationRx.FindStringSubmatch(dur)
	if m == nil {
		return 0, ErrISOFormat
	}

	units := [...]time.Duration{24 * time.Hour, time.Hour, time.Minute}
	var ret time.Duration
	for i, unit := range units {
		if m[i+1] == "" {
			continue
		}
		n, err := strconv.ParseInt(m[i+1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parsing number: %w", err)
		}
		if n > math.MaxInt64/int64(unit) {
			return 0, fmt.Errorf("%w: overflow", ErrISOFormat)
		}
		ret += time.Duration(n) * unit
	}

	if secs := m[4]; secs != "" {
		f, err := strconv.ParseFloat(strings.Replace(secs, ",", ".", 1), 64)
		if err != nil {
			return 0, fmt.Errorf("parsing seconds: %w", err)
		}
		ret += time.Duration(f * float64(time.Second))
	}
	if ret < 0 {
		return 0, fmt.Errorf("%w: overflow", ErrISOFormat)
	}
	return ret, nil
}
