// Package wizard drives the four-step campaign composition flow: template
// selection, custom variable binding, scheduling metadata and review. It owns
// the in-progress draft, gates every forward transition on step-local
// validation, and on submission hands an immutable creation payload to the
// campaign store.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fernmail/fern/internal/models"
	"github.com/fernmail/fern/internal/template"
)

// Step identifies a wizard state. Steps are ordered; forward movement is
// gated by validation and backward movement goes one step at a time.
type Step int

const (
	StepTemplateSelect Step = iota
	StepConstantsFill
	StepMetadata
	StepReview
)

func (s Step) String() string {
	switch s {
	case StepTemplateSelect:
		return "template_select"
	case StepConstantsFill:
		return "constants_fill"
	case StepMetadata:
		return "metadata"
	case StepReview:
		return "review"
	}
	return fmt.Sprintf("step(%d)", int(s))
}

// Transition tables. Keeping them as data makes the legal moves statically
// enumerable; any pair not listed here is unreachable.
var (
	nextStep = map[Step]Step{
		StepTemplateSelect: StepConstantsFill,
		StepConstantsFill:  StepMetadata,
		StepMetadata:       StepReview,
	}
	prevStep = map[Step]Step{
		StepConstantsFill: StepTemplateSelect,
		StepMetadata:      StepConstantsFill,
		StepReview:        StepMetadata,
	}
)

var (
	ErrCancelled      = errors.New("wizard: cancelled")
	ErrInvalidStep    = errors.New("wizard: operation not valid in current step")
	ErrBlocked        = errors.New("wizard: validation failed")
	ErrFirstStep      = errors.New("wizard: already at first step")
	ErrLastStep       = errors.New("wizard: already at last step, submit instead")
	ErrNoTemplate     = errors.New("wizard: template not found")
	ErrUnknownField   = errors.New("wizard: not a custom variable of the selected template")
	ErrSubmitInFlight = errors.New("wizard: submission already in progress")
)

// FieldError is a field-scoped, operator-recoverable validation problem.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Clock abstracts wall-clock time so the schedule gate is testable.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// TemplateSource is the read-only template collaborator.
type TemplateSource interface {
	List(ctx context.Context, filter models.TemplateListFilter) ([]models.Template, int, error)
	GetByID(ctx context.Context, id string) (*models.Template, error)
}

// CreateCampaignInput is the submission payload handed to the store.
type CreateCampaignInput struct {
	Name            string
	TemplateID      string
	ConstantsValues map[string]string
	ScheduledFor    time.Time
	SendTimezone    string
}

// CampaignCreator is the persistence collaborator for submission.
type CampaignCreator interface {
	CreateCampaign(ctx context.Context, in CreateCampaignInput) (*models.Campaign, error)
}

// Metadata carries the step-three fields.
type Metadata struct {
	Name         string
	ScheduledFor time.Time
	SendTimezone string
}

// Draft is a point-in-time snapshot of the in-progress campaign. Maps and
// slices are copies; mutating a Draft never touches the wizard.
type Draft struct {
	Step            Step              `json:"-"`
	StepName        string            `json:"step"`
	Template        *models.Template  `json:"template,omitempty"`
	SystemVariables []string          `json:"system_variables"`
	CustomVariables []string          `json:"custom_variables"`
	CustomValues    map[string]string `json:"custom_values"`
	Name            string            `json:"name"`
	ScheduledFor    *time.Time        `json:"scheduled_for,omitempty"`
	SendTimezone    string            `json:"send_timezone"`
	Errors          []FieldError      `json:"errors"`
	Submitting      bool              `json:"submitting"`
}

// Preview is the review-step rendering against sample data. Display only,
// never persisted.
type Preview struct {
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// Wizard is one operator's campaign composition session. A session owns its
// draft exclusively; the mutex only orders the host's own calls and the
// at-most-one-in-flight submit guard.
type Wizard struct {
	templates TemplateSource
	campaigns CampaignCreator
	clock     Clock

	mu           sync.Mutex
	step         Step
	template     *models.Template
	classified   template.Classification
	customValues map[string]string
	name         string
	scheduledFor time.Time
	timezone     string
	errs         []FieldError
	submitting   bool
	cancelled    bool
}

// Option configures a Wizard.
type Option func(*Wizard)

// WithClock replaces the wall clock, for deterministic schedule validation.
func WithClock(c Clock) Option {
	return func(w *Wizard) { w.clock = c }
}

// New creates a wizard at the template selection step.
func New(templates TemplateSource, campaigns CampaignCreator, opts ...Option) *Wizard {
	w := &Wizard{
		templates: templates,
		campaigns: campaigns,
		clock:     systemClock{},
	}
	w.resetLocked()
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// resetLocked returns the wizard to a fresh template-selection state.
func (w *Wizard) resetLocked() {
	w.step = StepTemplateSelect
	w.template = nil
	w.classified = template.Classification{System: []string{}, Custom: []string{}}
	w.customValues = map[string]string{}
	w.name = ""
	w.scheduledFor = time.Time{}
	w.timezone = "UTC"
	w.errs = nil
	w.submitting = false
}

// Step returns the current step.
func (w *Wizard) Step() Step {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.step
}

// Errors returns the validation errors from the most recent validation pass.
func (w *Wizard) Errors() []FieldError {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]FieldError(nil), w.errs...)
}

// Snapshot returns a copy of the current draft state.
func (w *Wizard) Snapshot() Draft {
	w.mu.Lock()
	defer w.mu.Unlock()

	d := Draft{
		Step:            w.step,
		StepName:        w.step.String(),
		SystemVariables: append([]string{}, w.classified.System...),
		CustomVariables: append([]string{}, w.classified.Custom...),
		CustomValues:    make(map[string]string, len(w.customValues)),
		Name:            w.name,
		SendTimezone:    w.timezone,
		Errors:          append([]FieldError{}, w.errs...),
		Submitting:      w.submitting,
	}
	for k, v := range w.customValues {
		d.CustomValues[k] = v
	}
	if w.template != nil {
		tmpl := *w.template
		tmpl.Variables = append([]string(nil), w.template.Variables...)
		d.Template = &tmpl
	}
	if !w.scheduledFor.IsZero() {
		t := w.scheduledFor
		d.ScheduledFor = &t
	}
	return d
}

// SelectTemplate binds the draft to a template and re-initializes every
// custom variable to an empty value. Selection always resets bindings, even
// when the same template is picked again after a detour through other steps;
// stale half-filled values must not survive a re-selection.
func (w *Wizard) SelectTemplate(ctx context.Context, id string) error {
	w.mu.Lock()
	if w.cancelled {
		w.mu.Unlock()
		return ErrCancelled
	}
	if w.step != StepTemplateSelect {
		w.mu.Unlock()
		return ErrInvalidStep
	}
	w.mu.Unlock()

	tmpl, err := w.templates.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("wizard: fetch template: %w", err)
	}
	if tmpl == nil {
		return ErrNoTemplate
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.template = tmpl
	w.classified = template.Classify(tmpl.Variables)
	w.customValues = make(map[string]string, len(w.classified.Custom))
	for _, name := range w.classified.Custom {
		w.customValues[name] = ""
	}
	w.errs = nil
	return nil
}

// SetCustomValue records an operator-entered binding for one custom variable
// of the selected template.
func (w *Wizard) SetCustomValue(name, value string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancelled {
		return ErrCancelled
	}
	if w.step != StepConstantsFill {
		return ErrInvalidStep
	}
	if _, ok := w.customValues[name]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	w.customValues[name] = value
	return nil
}

// SetMetadata records the campaign name, schedule instant and display
// timezone. Values are validated at Advance time, not here.
func (w *Wizard) SetMetadata(m Metadata) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancelled {
		return ErrCancelled
	}
	if w.step != StepMetadata {
		return ErrInvalidStep
	}
	w.name = m.Name
	w.scheduledFor = m.ScheduledFor
	if m.SendTimezone != "" {
		w.timezone = m.SendTimezone
	}
	return nil
}

// Advance runs the current step's validation gate and moves forward on
// success. On failure the step does not change and the full error list
// replaces any previous one, so the host can show every problem at once.
func (w *Wizard) Advance() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancelled {
		return ErrCancelled
	}
	if w.step == StepReview {
		return ErrLastStep
	}

	w.errs = w.validateLocked()
	if len(w.errs) > 0 {
		return ErrBlocked
	}
	w.step = nextStep[w.step]
	return nil
}

// Retreat moves back one step. Entered data is kept; custom values are only
// reset by a subsequent template selection.
func (w *Wizard) Retreat() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancelled {
		return ErrCancelled
	}
	prev, ok := prevStep[w.step]
	if !ok {
		return ErrFirstStep
	}
	w.step = prev
	w.errs = nil
	return nil
}

// Cancel discards the draft. The wizard is unusable afterwards.
func (w *Wizard) Cancel() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.resetLocked()
	w.cancelled = true
}

// validateLocked is the per-step gate. Engine functions are total, so the
// only failure mode is a populated field-error list.
func (w *Wizard) validateLocked() []FieldError {
	var errs []FieldError

	switch w.step {
	case StepTemplateSelect:
		if w.template == nil {
			errs = append(errs, FieldError{Field: "template", Message: "a template must be selected"})
		}
	case StepConstantsFill:
		for _, name := range w.classified.Custom {
			if strings.TrimSpace(w.customValues[name]) == "" {
				errs = append(errs, FieldError{Field: name, Message: name + " is required"})
			}
		}
	case StepMetadata:
		if strings.TrimSpace(w.name) == "" {
			errs = append(errs, FieldError{Field: "name", Message: "campaign name is required"})
		}
		if w.scheduledFor.IsZero() {
			errs = append(errs, FieldError{Field: "scheduled_for", Message: "scheduled time is required"})
		} else if !w.scheduledFor.After(w.clock.Now()) {
			errs = append(errs, FieldError{Field: "scheduled_for", Message: "scheduled time must be in the future"})
		}
	}

	return errs
}

// sample bindings for the review preview; real sends resolve system
// variables per recipient.
var previewSystemValues = map[string]string{
	template.VarCompanyName:        "Your Company",
	template.VarSubscriberEmail:    "jane@example.com",
	template.VarSubscriberUsername: "jane",
}

// Preview renders the selected template against sample system values plus the
// operator's custom bindings. Only available at the review step.
func (w *Wizard) Preview() (Preview, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancelled {
		return Preview{}, ErrCancelled
	}
	if w.step != StepReview || w.template == nil {
		return Preview{}, ErrInvalidStep
	}

	values := make(map[string]string, len(previewSystemValues)+len(w.customValues))
	for k, v := range previewSystemValues {
		values[k] = v
	}
	for k, v := range w.customValues {
		values[k] = v
	}

	return Preview{
		Subject: template.Render(w.template.Subject, values),
		HTML:    template.Render(w.template.HTML, values),
	}, nil
}

// Submit packages the draft and hands it to the campaign store. At most one
// submission may be in flight per draft; a second call while one is
// outstanding fails immediately without touching the draft. On collaborator
// failure the wizard stays at review with a single submit-scoped error and
// all entered data intact. On success the wizard resets to a fresh
// template-selection state and returns the persisted campaign.
func (w *Wizard) Submit(ctx context.Context) (*models.Campaign, error) {
	w.mu.Lock()
	if w.cancelled {
		w.mu.Unlock()
		return nil, ErrCancelled
	}
	if w.step != StepReview || w.template == nil {
		w.mu.Unlock()
		return nil, ErrInvalidStep
	}
	if w.submitting {
		w.mu.Unlock()
		return nil, ErrSubmitInFlight
	}
	w.submitting = true

	in := CreateCampaignInput{
		Name:            w.name,
		TemplateID:      w.template.ID,
		ConstantsValues: make(map[string]string, len(w.customValues)),
		ScheduledFor:    w.scheduledFor.UTC(),
		SendTimezone:    w.timezone,
	}
	for k, v := range w.customValues {
		in.ConstantsValues[k] = v
	}
	w.mu.Unlock()

	campaign, err := w.campaigns.CreateCampaign(ctx, in)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.submitting = false
	if err != nil {
		w.errs = []FieldError{{Field: "submit", Message: err.Error()}}
		return nil, fmt.Errorf("wizard: submit: %w", err)
	}

	w.resetLocked()
	return campaign, nil
}
