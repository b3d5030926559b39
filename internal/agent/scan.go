package agent

import (
	"context"
	"time"

	"github.com/ihavespoons/agentrun/internal/tool"
)

// ScanAgent is the bundled repository hygiene scanner. It needs no
// completion provider: it walks the snapshot through the mediated
// tools and scores what it finds, which also makes it a full exercise
// of the tool hook path.
type ScanAgent struct {
	projectDir string
	model      string
}

// NewScanAgent creates a scan agent over the given project directory.
func NewScanAgent(projectDir, model string) *ScanAgent {
	if model == "" {
		model = "claude-sonnet-4"
	}
	return &ScanAgent{projectDir: projectDir, model: model}
}

func (a *ScanAgent) ID() string    { return "scan" }
func (a *ScanAgent) Model() string { return a.model }

func (a *ScanAgent) Tools() []tool.Tool {
	return tool.Builtins(a.projectDir)
}

// checks are the patterns the scanner grades a snapshot on. Weights
// feed the 0-100 score; higher score is worse.
var checks = []struct {
	name    string
	pattern string
	weight  float64
}{
	{"todo_markers", `TODO|FIXME|XXX`, 0.5},
	{"panics", `panic\(`, 2.0},
	{"skipped_tests", `t\.Skip\(`, 1.0},
	{"verbose_debug", `fmt\.Print(ln|f)?\(`, 0.25},
}

// matchCount reads a tool result's match count. Results that crossed a
// JSON boundary carry float64 where in-process ones carry int; both
// must count.
func matchCount(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	default:
		return 0
	}
}

func (a *ScanAgent) Execute(ctx context.Context, rc *Context) (*Result, error) {
	data := make(map[string]interface{})
	var score float64
	var blocked int

	for _, check := range checks {
		res := rc.Tools.Invoke(ctx, "grep", map[string]interface{}{
			"pattern": check.pattern,
			"path":    ".",
		})
		if !res.Success {
			blocked++
			data[check.name] = map[string]interface{}{"error": res.Error}
			continue
		}
		count := matchCount(res.Data["count"])
		data[check.name] = count
		score += float64(count) * check.weight
	}

	if score > 100 {
		score = 100
	}

	severity := "low"
	switch {
	case score >= 50:
		severity = "high"
	case score >= 20:
		severity = "medium"
	}

	status := StatusSuccess
	errMsg := ""
	if blocked == len(checks) {
		// Nothing could run; report the run as failed rather than
		// pretending the snapshot is clean.
		status = StatusFailure
		errMsg = "all scan checks were blocked or failed"
	}

	data["checks_blocked"] = blocked

	return &Result{
		AgentID:   a.ID(),
		Status:    status,
		Severity:  severity,
		Score:     score,
		Data:      data,
		Error:     errMsg,
		Timestamp: time.Now().UTC(),
	}, nil
}
