// Package doctor validates nexus-cli configuration beyond what loading checks:
// things that depend on the host, such as the prover binary and the journal
// filesystem.
package doctor

import (
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"sort"
	"strings"

	"github.com/wolfishy/nexus-cli/internal/config"
	"github.com/wolfishy/nexus-cli/internal/environment"
	"github.com/wolfishy/nexus-cli/internal/storage"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor validates a loaded configuration.
type Doctor struct {
	cfg *config.Config

	lookPath func(string) (string, error)
	fsCheck  func(string) error
}

// New creates a Doctor for cfg.
func New(cfg *config.Config) *Doctor {
	return &Doctor{
		cfg:      cfg,
		lookPath: exec.LookPath,
		fsCheck:  storage.CheckLocalFilesystem,
	}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	d.validateProver(r)
	d.validateEngine(r)
	d.validateState(r)
	d.validateAPI(r)
	d.warnMissingEnvVars(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) validateProver(r *Result) {
	p := d.cfg.Prover
	if strings.TrimSpace(p.ClientID) == "" {
		d.addWarning(r, "prover", "prover.client_id",
			"client_id is empty; failure reports will not identify this client (pass --client-id to prove)")
	}
	if _, err := environment.Parse(p.Environment); err != nil {
		d.addError(r, "prover", "prover.environment", err.Error())
	}
	switch {
	case p.Workers < 1:
		d.addError(r, "prover", "prover.workers", fmt.Sprintf("workers must be at least 1 (got %d)", p.Workers))
	case p.Workers > 4*runtime.NumCPU():
		d.addWarning(r, "prover", "prover.workers",
			fmt.Sprintf("workers=%d is far above the %d available CPUs", p.Workers, runtime.NumCPU()))
	}
}

func (d *Doctor) validateEngine(r *Result) {
	e := d.cfg.Engine
	switch e.Kind {
	case config.EngineTrace:
		if e.Command != "" {
			d.addWarning(r, "engine", "engine.command", "command is ignored by the trace engine")
		}
	case config.EngineExec:
		if e.Command == "" {
			d.addError(r, "engine", "engine.command", "command is required for the exec engine")
			return
		}
		if _, err := d.lookPath(e.Command); err != nil {
			d.addError(r, "engine", "engine.command", fmt.Sprintf("prover command %q not runnable: %v", e.Command, err))
		}
	default:
		d.addError(r, "engine", "engine.kind", fmt.Sprintf("unknown engine kind %q", e.Kind))
	}
}

func (d *Doctor) validateState(r *Result) {
	if !d.cfg.Reports.JournalEnabled() {
		d.addWarning(r, "reports", "reports.journal", "journal disabled; failure reports are only published as events")
		return
	}
	if d.cfg.State.Path == "" {
		d.addError(r, "state", "state.path", "state.path is required when the journal is enabled")
		return
	}
	if err := d.fsCheck(d.cfg.State.Path); err != nil {
		if errors.Is(err, storage.ErrFilesystemUnknown) {
			d.addWarning(r, "state", "state.path", err.Error())
			return
		}
		d.addError(r, "state", "state.path", err.Error())
	}
}

func (d *Doctor) validateAPI(r *Result) {
	if !d.cfg.API.Enabled {
		return
	}
	if d.cfg.API.Listen == "" {
		d.addError(r, "api", "api.listen", "api.listen is required when API is enabled")
	}
	if d.cfg.API.APIKey == "" {
		d.addWarning(r, "api", "api.api_key", "API enabled but no api_key configured; task submission is unauthenticated")
	}
}

// warnMissingEnvVars warns about ${VAR} references left unresolved after loading.
func (d *Doctor) warnMissingEnvVars(r *Result) {
	fields := map[string]string{
		"prover.client_id": d.cfg.Prover.ClientID,
		"engine.command":   d.cfg.Engine.Command,
		"api.api_key":      d.cfg.API.APIKey,
		"state.path":       d.cfg.State.Path,
	}
	for i, arg := range d.cfg.Engine.Args {
		fields[fmt.Sprintf("engine.args[%d]", i)] = arg
	}

	for _, field := range sortedKeys(fields) {
		if v := config.UnresolvedVar(fields[field]); v != "" {
			d.addWarning(r, "env_vars", field, fmt.Sprintf("environment variable ${%s} not set", v))
		}
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	switch {
	case r.Valid && len(r.Warnings) == 0:
		b.WriteString("Configuration valid.\n")
		return b.String()
	case r.Valid:
		fmt.Fprintf(&b, "Configuration valid (%d warning(s))\n", len(r.Warnings))
	default:
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		writeIssue(&b, "ERROR", e)
	}
	for _, w := range r.Warnings {
		writeIssue(&b, "WARN ", w)
	}
	return b.String()
}

func writeIssue(b *strings.Builder, label string, i Issue) {
	if i.Field != "" {
		fmt.Fprintf(b, "  %s [%s] %s: %s\n", label, i.Category, i.Field, i.Message)
		return
	}
	fmt.Fprintf(b, "  %s [%s] %s\n", label, i.Category, i.Message)
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
