package gateway

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Check levels, ordered by severity for verdict calculation. Info checks
// never affect the verdict.
const (
	LevelPass = "pass"
	LevelWarn = "warn"
	LevelFail = "fail"
	LevelInfo = "info"
)

// Check is a single diagnostic finding.
type Check struct {
	Code       string `json:"code"`
	Level      string `json:"level"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
}

// Report is the result of a connectivity test run for one gateway.
type Report struct {
	ID       string  `json:"id"`
	Gateway  string  `json:"gateway"`
	TestedAt int64   `json:"tested_at"`
	Verdict  string  `json:"verdict"`
	Checks   []Check `json:"checks"`
}

// ConnectivityTester is implemented by adapters that can run platform
// diagnostics without disturbing a live connection.
type ConnectivityTester interface {
	TestConnectivity(ctx context.Context) Report
}

// NewReport starts an empty report for the named gateway.
func NewReport(gateway string) *Report {
	return &Report{
		ID:       uuid.NewString(),
		Gateway:  gateway,
		TestedAt: time.Now().UnixMilli(),
	}
}

func (r *Report) add(code, level, message, suggestion string) {
	r.Checks = append(r.Checks, Check{Code: code, Level: level, Message: message, Suggestion: suggestion})
}

func (r *Report) Pass(code, message string)             { r.add(code, LevelPass, message, "") }
func (r *Report) Warn(code, message, suggestion string) { r.add(code, LevelWarn, message, suggestion) }
func (r *Report) Fail(code, message, suggestion string) { r.add(code, LevelFail, message, suggestion) }
func (r *Report) Info(code, message, suggestion string) { r.add(code, LevelInfo, message, suggestion) }

// Finalize computes the verdict: any fail wins, else any warn, else pass.
func (r *Report) Finalize() {
	r.Verdict = LevelPass
	for _, c := range r.Checks {
		if c.Level == LevelFail {
			r.Verdict = LevelFail
			return
		}
		if c.Level == LevelWarn {
			r.Verdict = LevelWarn
		}
	}
}

// CheckEnabled appends the standard disabled-gateway failure when the
// adapter is off. Returns false when the test should stop here.
func (r *Report) CheckEnabled(enabled bool) bool {
	if !enabled {
		r.Fail("gateway_enabled", "gateway is not enabled", "enable the gateway in config")
		r.Finalize()
		return false
	}
	return true
}

// CheckCredentials appends the standard missing-credentials failure when
// any required fields are absent. missing names the absent fields.
// Returns false when the test should stop here.
func (r *Report) CheckCredentials(missing []string) bool {
	if len(missing) == 0 {
		return true
	}
	r.Fail("missing_credentials", "missing required config: "+strings.Join(missing, ", "),
		"fill in the config and re-run the test")
	r.Finalize()
	return false
}

// CheckRunning appends the standard connection-state check.
func (r *Report) CheckRunning(connected bool) {
	if connected {
		r.Pass("gateway_running", "gateway is enabled and running")
	} else {
		r.Warn("gateway_running", "gateway is enabled but not currently connected",
			"check the network, bot configuration and platform-side event settings")
	}
}
