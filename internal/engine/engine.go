// Package engine runs a recipe's step list end to end: it seeds the variable
// store, negotiates language and region, applies recipe headers and hands each
// step to the executor.
package engine

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"scout/internal/config"
	"scout/internal/executor"
	"scout/internal/fields"
	"scout/internal/page"
	"scout/internal/recipe"
	"scout/internal/variables"

	"github.com/google/uuid"
	"golang.org/x/text/language"
)

// Reserved variable names.
const (
	VarSystemLanguage = "SYSTEM_LANGUAGE"
	VarSystemRegion   = "SYSTEM_REGION"
	VarLanguage       = "LANGUAGE"
	VarRegion         = "REGION"
	VarInput          = "INPUT"
)

// StepFailure records a step that did not complete cleanly. The run carries on
// past it.
type StepFailure struct {
	Index   int            `json:"index"`
	Command recipe.Command `json:"command"`
	Error   string         `json:"error"`
}

// Result is the outcome of one ExecuteRecipe call.
type Result struct {
	RunID     string                     `json:"run_id"`
	Recipe    string                     `json:"recipe"`
	StepType  recipe.StepType            `json:"step_type"`
	Input     string                     `json:"input"`
	Variables map[string]variables.Value `json:"variables"`
	Report    fields.Report              `json:"report"`
	Failures  []StepFailure              `json:"failures,omitempty"`
}

// Engine interprets recipes against one page.Controller. It owns its store and
// controller exclusively; separate engines may run concurrently.
type Engine struct {
	cfg       config.Config
	ctrl      page.Controller
	store     *variables.Store
	exec      *executor.Executor
	validator *fields.Validator
	logger    *slog.Logger
	runID     string
}

type options struct {
	schema *fields.Schema
	client *http.Client
}

// Option customizes an Engine.
type Option func(*options)

// WithSchema sets the field schema outputs are validated against. Without it
// the built-in schema is used.
func WithSchema(schema *fields.Schema) Option {
	return func(o *options) {
		o.schema = schema
	}
}

// WithHTTPClient sets the client used by api_request steps.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		o.client = client
	}
}

// New creates an Engine with a fresh variable store.
func New(cfg config.Config, ctrl page.Controller, logger *slog.Logger, opts ...Option) *Engine {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.schema == nil {
		o.schema = fields.DefaultSchema()
	}

	runID := uuid.NewString()
	logger = logger.With("run_id", runID)

	store := variables.NewStore(cfg.Defaults)
	store.SetString(VarSystemLanguage, cfg.SystemLanguage)
	store.SetString(VarSystemRegion, cfg.SystemRegion)
	store.SetString(VarLanguage, primaryLanguage(cfg.SystemLanguage))
	store.SetString(VarRegion, cfg.SystemRegion)

	var execOpts []executor.Option
	if o.client != nil {
		execOpts = append(execOpts, executor.WithHTTPClient(o.client))
	}

	return &Engine{
		cfg:       cfg,
		ctrl:      ctrl,
		store:     store,
		exec:      executor.New(store, ctrl, cfg, logger, execOpts...),
		validator: fields.NewValidator(o.schema, logger),
		logger:    logger,
		runID:     runID,
	}
}

// RunID identifies this engine's run in logs and results.
func (e *Engine) RunID() string {
	return e.runID
}

// ExecuteRecipe runs the step list selected by stepType and returns every
// variable written. Step failures are logged and listed in the result; they
// never stop the run.
func (e *Engine) ExecuteRecipe(ctx context.Context, r *recipe.Recipe, stepType recipe.StepType, input string) Result {
	res := Result{
		RunID:     e.runID,
		Recipe:    r.Title,
		StepType:  stepType,
		Input:     input,
		Variables: map[string]variables.Value{},
	}

	if !stepType.Valid() {
		e.logger.Warn("rejecting run: unknown step type", "step_type", stepType)
		return res
	}
	steps := r.Steps(stepType)
	if len(steps) == 0 {
		e.logger.Warn("rejecting run: no steps", "recipe", r.Title, "step_type", stepType)
		return res
	}

	e.negotiateLocale(r)
	if len(r.Headers) > 0 {
		ua, _ := r.Header("User-Agent")
		acceptLanguage, _ := r.Header("Accept-Language")
		if err := e.ctrl.SetUserAgent(ctx, ua, acceptLanguage); err != nil {
			e.logger.Error("failed to apply recipe headers", "error", err)
		}
	}
	e.store.SetString(VarInput, strings.ReplaceAll(input, `\`, ""))

	e.logger.Info("executing recipe", "recipe", r.Title, "step_type", stepType, "steps", len(steps))
	for i, step := range steps {
		e.logger.Debug("executing step", "index", i, "command", step.Command, "description", step.Description)
		if err := e.exec.Execute(ctx, step); err != nil {
			res.Failures = append(res.Failures, StepFailure{Index: i, Command: step.Command, Error: err.Error()})
		}
	}

	res.Report = e.validator.ValidateRecipeFields(r, stepType)
	res.Variables = e.store.Snapshot()
	e.logger.Info("recipe finished",
		"variables", len(res.Variables),
		"failures", len(res.Failures),
		"ignored", len(res.Report.Ignored))
	return res
}

// Close releases the page controller.
func (e *Engine) Close() error {
	return e.ctrl.Close()
}

// negotiateLocale stores the recipe language and region that match the
// system settings, falling back to the recipe defaults.
func (e *Engine) negotiateLocale(r *recipe.Recipe) {
	if len(r.LanguagesAvailable) > 0 {
		lang := primaryLanguage(e.cfg.SystemLanguage)
		resolved, ok := matchFold(r.LanguagesAvailable, lang)
		if !ok {
			resolved = r.LanguageDefault
		}
		if resolved != "" {
			e.store.SetString(VarLanguage, resolved)
		}
		e.logger.Debug("language negotiated", "system", e.cfg.SystemLanguage, "language", resolved, "matched", ok)
	}

	if len(r.RegionsAvailable) > 0 {
		resolved, ok := matchFold(r.RegionsAvailable, e.cfg.SystemRegion)
		if !ok {
			resolved = r.RegionDefault
		}
		if resolved != "" {
			e.store.SetString(VarRegion, resolved)
		}
		e.logger.Debug("region negotiated", "system", e.cfg.SystemRegion, "region", resolved, "matched", ok)
	}
}

// primaryLanguage returns the primary subtag of a language tag: "pt-BR" and
// "pt_BR" both give "pt".
func primaryLanguage(tag string) string {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return ""
	}
	if t, err := language.Parse(strings.ReplaceAll(tag, "_", "-")); err == nil {
		if base, conf := t.Base(); conf != language.No {
			return base.String()
		}
	}
	primary, _, _ := strings.Cut(strings.ReplaceAll(tag, "_", "-"), "-")
	return strings.ToLower(primary)
}

func matchFold(candidates []string, want string) (string, bool) {
	if want == "" {
		return "", false
	}
	for _, c := range candidates {
		if strings.EqualFold(c, want) {
			return c, true
		}
	}
	return "", false
}
