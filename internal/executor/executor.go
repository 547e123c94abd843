// Package executor runs single recipe steps against a page.Controller and a
// variables.Store, including loop unrolling and array accumulation.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"

	"scout/internal/config"
	"scout/internal/page"
	"scout/internal/recipe"
	"scout/internal/variables"
)

var (
	// ErrMissingField means a step lacks a property its command requires.
	ErrMissingField = errors.New("missing required field")
	// ErrUnknownCommand means no handler exists for a step's command.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrInvalidLoop means a loop descriptor could not be evaluated.
	ErrInvalidLoop = errors.New("invalid loop")
)

// Executor executes steps. It is bound to one Store and one Controller and is
// not safe for concurrent use.
type Executor struct {
	store  *variables.Store
	ctrl   page.Controller
	cfg    config.Config
	client *http.Client
	logger *slog.Logger
}

// Option customizes an Executor.
type Option func(*Executor)

// WithHTTPClient sets the client used by api_request steps.
func WithHTTPClient(client *http.Client) Option {
	return func(e *Executor) {
		e.client = client
	}
}

// New creates an Executor.
func New(store *variables.Store, ctrl page.Controller, cfg config.Config, logger *slog.Logger, opts ...Option) *Executor {
	e := &Executor{
		store:  store,
		ctrl:   ctrl,
		cfg:    cfg,
		client: http.DefaultClient,
		logger: logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs one step, once or once per loop iteration, and writes its
// output. Failures are logged and returned for reporting; a failed step never
// prevents the caller from continuing with the next one.
func (e *Executor) Execute(ctx context.Context, step recipe.Step) error {
	if !step.Command.Known() {
		err := fmt.Errorf("%w: %q", ErrUnknownCommand, step.Command)
		e.logger.Error("skipping step", "command", step.Command, "error", err)
		return err
	}
	if step.Config.Loop != nil {
		return e.executeLoop(ctx, step)
	}
	return e.executeOnce(ctx, step)
}

func (e *Executor) executeOnce(ctx context.Context, step recipe.Step) error {
	value, err := e.dispatch(ctx, step)
	if err != nil {
		e.logger.Error("step failed", "command", step.Command, "error", err)
	}
	e.writeOutput(step, value)
	return err
}

// executeLoop runs the step for every index in [from, to], strictly in order.
func (e *Executor) executeLoop(ctx context.Context, step recipe.Step) error {
	loop := step.Config.Loop
	from, to, inc, err := e.loopRange(loop)
	if err != nil {
		e.logger.Error("skipping loop step", "command", step.Command, "error", err)
		return err
	}

	e.logger.Debug("executing loop", "command", step.Command, "index", loop.Index, "from", from, "to", to, "step", inc)

	var errs []error
	for i := from; i <= to; i += inc {
		e.store.SetString(loop.Index, strconv.Itoa(i))
		if err := e.executeOnce(ctx, step); err != nil {
			errs = append(errs, fmt.Errorf("%s=%d: %w", loop.Index, i, err))
		}
		// i+inc would wrap around near math.MaxInt.
		if i > to-inc {
			break
		}
	}
	return errors.Join(errs...)
}

func (e *Executor) loopRange(loop *recipe.Loop) (from, to, inc int, err error) {
	if loop.Index == "" {
		return 0, 0, 0, fmt.Errorf("%w: loop index is required", ErrMissingField)
	}
	if from, err = e.bound(loop.From, "from"); err != nil {
		return 0, 0, 0, err
	}
	if to, err = e.bound(loop.To, "to"); err != nil {
		return 0, 0, 0, err
	}
	inc = 1
	if loop.Step != "" {
		if inc, err = e.bound(loop.Step, "step"); err != nil {
			return 0, 0, 0, err
		}
		if inc == 0 {
			inc = 1
		}
	}
	if inc < 0 {
		return 0, 0, 0, fmt.Errorf("%w: step must be positive, got %d", ErrInvalidLoop, inc)
	}
	return from, to, inc, nil
}

var leadingInt = regexp.MustCompile(`^\s*([+-]?\d+)`)

// bound resolves a loop bound template and parses its leading integer.
func (e *Executor) bound(b recipe.Bound, name string) (int, error) {
	resolved := e.store.ReplaceVariablesInString(string(b))
	m := leadingInt.FindStringSubmatch(resolved)
	if m == nil {
		return 0, fmt.Errorf("%w: %s bound %q resolved to %q", ErrInvalidLoop, name, string(b), resolved)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, fmt.Errorf("%w: %s bound %q: %v", ErrInvalidLoop, name, resolved, err)
	}
	return n, nil
}

// writeOutput binds value to the resolved output name. Accumulating commands
// append non-empty results; all others overwrite.
func (e *Executor) writeOutput(step recipe.Step, value variables.Value) {
	if step.Output.Name == "" || !value.IsDefined() {
		return
	}
	key := e.store.ReplaceVariablesInString(step.Output.Name)
	if step.Command.Accumulates() {
		if text := value.Text(); text != "" {
			e.store.Push(key, text)
		}
		return
	}
	e.store.Set(key, value)
	e.logger.Debug("stored output", "name", key, "kind", value.Kind())
}

// dispatch routes a step to its handler. Every command has exactly one arm.
func (e *Executor) dispatch(ctx context.Context, step recipe.Step) (variables.Value, error) {
	switch step.Command {
	case recipe.CommandLoad:
		return variables.Undefined(), e.load(ctx, step)
	case recipe.CommandStoreAttribute:
		return e.storeAttribute(ctx, step)
	case recipe.CommandStoreText, recipe.CommandStoreArray:
		return e.storeText(ctx, step)
	case recipe.CommandStoreCount:
		return e.storeCount(ctx, step)
	case recipe.CommandRegex:
		return e.regex(step)
	case recipe.CommandStore:
		return e.storeInput(step)
	case recipe.CommandAPIRequest:
		return e.apiRequest(ctx, step)
	case recipe.CommandJSONStoreText:
		return e.jsonStoreText(step)
	case recipe.CommandURLEncode:
		return e.urlEncode(step)
	case recipe.CommandStoreURL:
		return e.storeURL(ctx)
	case recipe.CommandReplace:
		return e.replace(step)
	default:
		return variables.Undefined(), fmt.Errorf("%w: %q", ErrUnknownCommand, step.Command)
	}
}

func missing(command recipe.Command, fields ...string) error {
	return fmt.Errorf("%w: %s requires %v", ErrMissingField, command, fields)
}
