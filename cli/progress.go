package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/pterm/pterm"
)

type progressSpinner interface {
	Stop() error
	Success(...any)
	Fail(...any)
	UpdateText(string)
}

type progressSpinnerFactory func(w io.Writer, text string) (progressSpinner, error)

var defaultSpinnerFactory progressSpinnerFactory = func(w io.Writer, text string) (progressSpinner, error) {
	spinner, err := pterm.DefaultSpinner.
		WithWriter(w).
		WithRemoveWhenDone(false).
		WithText(text).
		Start()
	if err != nil {
		return nil, err
	}
	return spinner, nil
}

// StepStatus represents the state of a progress step.
type StepStatus int

const (
	// StepPending indicates a step has not yet started.
	StepPending StepStatus = iota
	// StepRunning indicates a step is currently in progress.
	StepRunning
	// StepCompleted indicates a step finished successfully.
	StepCompleted
	// StepFailed indicates a step encountered an error.
	StepFailed
)

// Step is a single progress step.
type Step struct {
	ID          string
	Message     string
	Status      StepStatus
	IndentLevel int // 0 = root, 1 = child (→)
	startTime   time.Time
	elapsed     time.Duration
}

// ProgressManager shows a sequence of steps, one spinner at a time.
type ProgressManager struct {
	out            io.Writer
	steps          []*Step
	stepMap        map[string]*Step
	currentSpinner progressSpinner
	spinnerFactory progressSpinnerFactory
	mu             sync.Mutex
	disabled       bool
}

// ProgressManagerOption customizes a ProgressManager at creation time.
type ProgressManagerOption func(*ProgressManager)

// WithProgressOutput enables or disables terminal output for a ProgressManager.
func WithProgressOutput(enabled bool) ProgressManagerOption {
	return func(pm *ProgressManager) {
		pm.disabled = !enabled
	}
}

func withProgressSpinnerFactory(factory progressSpinnerFactory) ProgressManagerOption {
	return func(pm *ProgressManager) {
		pm.spinnerFactory = factory
	}
}

// NewProgressManager creates a ProgressManager writing to out with all steps registered upfront.
func NewProgressManager(out io.Writer, steps []*Step, opts ...ProgressManagerOption) *ProgressManager {
	pm := &ProgressManager{
		out:            out,
		steps:          steps,
		stepMap:        make(map[string]*Step, len(steps)),
		spinnerFactory: defaultSpinnerFactory,
	}
	for _, step := range steps {
		pm.stepMap[step.ID] = step
	}
	for _, opt := range opts {
		opt(pm)
	}
	return pm
}

func getPrefix(step *Step) string {
	if step.IndentLevel == 0 {
		return ""
	}
	return strings.Repeat("  ", step.IndentLevel) + "→ "
}

func (pm *ProgressManager) step(stepID string) (*Step, error) {
	step, ok := pm.stepMap[stepID]
	if !ok {
		return nil, fmt.Errorf("step %q not found", stepID)
	}
	return step, nil
}

// Start begins animating the spinner for the given step.
func (pm *ProgressManager) Start(stepID string) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	step, err := pm.step(stepID)
	if err != nil {
		return err
	}
	step.Status = StepRunning
	step.startTime = time.Now()

	if pm.disabled {
		return nil
	}
	if pm.currentSpinner != nil {
		_ = pm.currentSpinner.Stop() //nolint:errcheck
	}
	spinner, err := pm.spinnerFactory(pm.out, getPrefix(step)+step.Message)
	if err != nil {
		return fmt.Errorf("failed to start spinner: %w", err)
	}
	pm.currentSpinner = spinner
	return nil
}

// Complete marks a step as completed, optionally replacing its message.
func (pm *ProgressManager) Complete(stepID string, message ...string) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	step, err := pm.step(stepID)
	if err != nil {
		return err
	}
	step.Status = StepCompleted
	if !step.startTime.IsZero() {
		step.elapsed = time.Since(step.startTime)
	}

	if pm.disabled {
		return nil
	}
	msg := step.Message
	if len(message) > 0 {
		msg = strings.Join(message, " ")
	}
	msg = fmt.Sprintf("%s%s (%s)", getPrefix(step), msg, step.elapsed.Round(time.Millisecond))
	if pm.currentSpinner != nil {
		pm.currentSpinner.Success(msg)
		pm.currentSpinner = nil
		return nil
	}
	pterm.Success.WithWriter(pm.out).Println(msg)
	return nil
}

// Fail marks a step as failed with err.
func (pm *ProgressManager) Fail(stepID string, err error) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	step, lookupErr := pm.step(stepID)
	if lookupErr != nil {
		return lookupErr
	}
	step.Status = StepFailed

	if pm.disabled {
		return nil
	}
	msg := fmt.Sprintf("%s%s: %v", getPrefix(step), step.Message, err)
	if pm.currentSpinner != nil {
		pm.currentSpinner.Fail(msg)
		pm.currentSpinner = nil
		return nil
	}
	pterm.Error.WithWriter(pm.out).Println(msg)
	return nil
}

// Run starts the step, runs fn and completes or fails the step with its result.
func (pm *ProgressManager) Run(stepID string, fn func() error) error {
	if err := pm.Start(stepID); err != nil {
		return err
	}
	if err := fn(); err != nil {
		if failErr := pm.Fail(stepID, err); failErr != nil {
			return failErr
		}
		return err
	}
	return pm.Complete(stepID)
}

// Elapsed returns how long a completed step took.
func (pm *ProgressManager) Elapsed(stepID string) time.Duration {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if step, ok := pm.stepMap[stepID]; ok {
		return step.elapsed
	}
	return 0
}

// UpdateText updates the text of the active spinner.
func (pm *ProgressManager) UpdateText(text string) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if pm.disabled || pm.currentSpinner == nil {
		return
	}
	pm.currentSpinner.UpdateText(text)
}

// Stop stops any active spinner.
func (pm *ProgressManager) Stop() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if pm.disabled || pm.currentSpinner == nil {
		return
	}
	_ = pm.currentSpinner.Stop() //nolint:errcheck
	pm.currentSpinner = nil
}
