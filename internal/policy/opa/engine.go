package opa

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
	"github.com/rs/zerolog"
)

// LaunchQuery is the rule evaluated for each launch request: a set of
// denial reasons.
const LaunchQuery = "data.tvwarden.launch.deny"

// Engine wraps OPA rego engine for launch policy evaluation
type Engine struct {
	policyDir string
	logger    zerolog.Logger

	mu          sync.RWMutex
	launchQuery rego.PreparedEvalQuery
	modules     map[string]string // file -> source
}

// NewEngine loads every .rego file in policyDir and prepares the launch query.
func NewEngine(policyDir string, logger zerolog.Logger) (*Engine, error) {
	e := &Engine{
		policyDir: policyDir,
		logger:    logger.With().Str("component", "opa").Logger(),
	}

	modules, err := e.loadPolicies()
	if err != nil {
		return nil, fmt.Errorf("failed to load policies: %w", err)
	}

	query, err := prepareLaunchQuery(modules)
	if err != nil {
		return nil, err
	}

	e.modules = modules
	e.launchQuery = query
	e.logger.Info().Str("policy_dir", policyDir).Int("modules", len(modules)).Msg("OPA engine initialized")

	return e, nil
}

// loadPolicies reads and parses all .rego files from the policy directory
func (e *Engine) loadPolicies() (map[string]string, error) {
	files, err := filepath.Glob(filepath.Join(e.policyDir, "*.rego"))
	if err != nil {
		return nil, fmt.Errorf("failed to glob policy files: %w", err)
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("no policy files found in %s", e.policyDir)
	}

	modules := make(map[string]string, len(files))
	for _, file := range files {
		content, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read policy file %s: %w", file, err)
		}

		module, err := ast.ParseModule(file, string(content))
		if err != nil {
			return nil, fmt.Errorf("failed to parse policy file %s: %w", file, err)
		}

		modules[file] = string(content)
		e.logger.Debug().Str("file", file).Str("package", module.Package.Path.String()).Msg("Loaded policy module")
	}

	return modules, nil
}

// prepareLaunchQuery compiles the modules and prepares the launch query
func prepareLaunchQuery(modules map[string]string) (rego.PreparedEvalQuery, error) {
	files := make([]string, 0, len(modules))
	for file := range modules {
		files = append(files, file)
	}
	sort.Strings(files)

	opts := []func(*rego.Rego){rego.Query(LaunchQuery)}
	for _, file := range files {
		opts = append(opts, rego.Module(file, modules[file]))
	}

	query, err := rego.New(opts...).PrepareForEval(context.Background())
	if err != nil {
		return rego.PreparedEvalQuery{}, fmt.Errorf("failed to prepare launch query: %w", err)
	}
	return query, nil
}

// EvaluateLaunch returns the sorted denial reasons for a launch request.
// An undefined deny set means the launch is allowed.
func (e *Engine) EvaluateLaunch(ctx context.Context, input map[string]any) ([]string, error) {
	startTime := time.Now()

	e.mu.RLock()
	query := e.launchQuery
	e.mu.RUnlock()

	results, err := query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("launch query evaluation failed: %w", err)
	}

	e.logger.Debug().Dur("duration", time.Since(startTime)).Msg("Launch query evaluated")

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return nil, nil
	}

	values, ok := results[0].Expressions[0].Value.([]any)
	if !ok {
		return nil, fmt.Errorf("launch deny is not a set: %T", results[0].Expressions[0].Value)
	}

	reasons := make([]string, 0, len(values))
	for _, v := range values {
		reason, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("launch deny reason is not a string: %T", v)
		}
		reasons = append(reasons, reason)
	}
	sort.Strings(reasons)
	return reasons, nil
}

// Reload reloads all policies from disk. On failure the previous policies
// stay in effect.
func (e *Engine) Reload() error {
	e.logger.Info().Msg("Reloading OPA policies")

	modules, err := e.loadPolicies()
	if err != nil {
		return fmt.Errorf("failed to reload policies: %w", err)
	}

	query, err := prepareLaunchQuery(modules)
	if err != nil {
		return fmt.Errorf("failed to re-prepare launch query: %w", err)
	}

	e.mu.Lock()
	e.modules = modules
	e.launchQuery = query
	e.mu.Unlock()

	e.logger.Info().Msg("OPA policies reloaded successfully")
	return nil
}
