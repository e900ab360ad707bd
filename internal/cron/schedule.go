package cron

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ParseInterval accepts a positive number of seconds or a standard five
// field cron expression.
func ParseInterval(setting string) (cron.Schedule, error) {
	setting = strings.TrimSpace(setting)
	if setting == "" {
		return nil, fmt.Errorf("empty interval")
	}
	if v, err := strconv.Atoi(setting); err == nil {
		if v <= 0 {
			return nil, fmt.Errorf("interval must be positive: %d", v)
		}
		return cron.Every(time.Duration(v) * time.Second), nil
	}
	sched, err := cron.ParseStandard(setting)
	if err != nil {
		return nil, fmt.Errorf("invalid interval %q: %w", setting, err)
	}
	return sched, nil
}
