// Package templates provides the TemplateService implementation.
package templates

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	contaconmigo "github.com/contaconmigo/contaconmigo-go"
	"github.com/contaconmigo/contaconmigo-go/field"
)

// ErrInvalidTemplate is returned for template input that fails validation.
var ErrInvalidTemplate = errors.New("contaconmigo/templates: invalid template")

// Backend defines the contract for pluggable template backends (HTTP, in-memory).
// Values handed to SubmitEntry and UpdateEntry are already typed.
type Backend interface {
	ListTemplates(ctx context.Context) ([]contaconmigo.Template, error)
	CreateTemplate(ctx context.Context, in contaconmigo.TemplateInput) (string, error)
	GetTemplate(ctx context.Context, templateID string) (*contaconmigo.Template, error)
	UpdateTemplate(ctx context.Context, templateID string, in contaconmigo.TemplateInput) error
	DeleteTemplate(ctx context.Context, templateID string, force bool) error

	SubmitEntry(ctx context.Context, templateID string, values map[string]any) error
	ListEntries(ctx context.Context, templateID string) ([]contaconmigo.Entry, error)
	GetEntry(ctx context.Context, templateID, entryID string) (*contaconmigo.Entry, error)
	UpdateEntry(ctx context.Context, templateID, entryID string, values map[string]any) error
	DeleteEntry(ctx context.Context, templateID, entryID string) error
}

// Service implements contaconmigo.TemplateService with a configurable backend.
type Service struct {
	backend     Backend
	concurrency int
	logger      *slog.Logger
}

// compile-time check
var _ contaconmigo.TemplateService = (*Service)(nil)

// Option configures the Service.
type Option func(*Service)

// WithConcurrency bounds how many templates AllTotals loads at once.
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// New creates a new TemplateService with the given backend.
func New(backend Backend, opts ...Option) *Service {
	s := &Service{
		backend:     backend,
		concurrency: contaconmigo.DefaultTotalsConcurrency,
		logger:      slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// List returns the templates of the current user.
func (s *Service) List(ctx context.Context) ([]contaconmigo.Template, error) {
	list, err := s.backend.ListTemplates(ctx)
	if err != nil {
		return nil, fmt.Errorf("contaconmigo/templates: %w", err)
	}
	return list, nil
}

// Create validates in and creates a template, returning its ID.
func (s *Service) Create(ctx context.Context, in contaconmigo.TemplateInput) (string, error) {
	if err := Validate(in); err != nil {
		return "", err
	}
	id, err := s.backend.CreateTemplate(ctx, in)
	if err != nil {
		return "", fmt.Errorf("contaconmigo/templates: %w", err)
	}
	s.logger.Info("template created", "template_id", id, "fields", len(in.Fields))
	return id, nil
}

// Get returns a template by ID.
func (s *Service) Get(ctx context.Context, templateID string) (*contaconmigo.Template, error) {
	if templateID == "" {
		return nil, fmt.Errorf("contaconmigo/templates: %w", contaconmigo.ErrEmptyID)
	}
	t, err := s.backend.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, fmt.Errorf("contaconmigo/templates: %w", err)
	}
	return t, nil
}

// Update validates in and replaces the template's name and fields.
func (s *Service) Update(ctx context.Context, templateID string, in contaconmigo.TemplateInput) error {
	if templateID == "" {
		return fmt.Errorf("contaconmigo/templates: %w", contaconmigo.ErrEmptyID)
	}
	if err := Validate(in); err != nil {
		return err
	}
	if err := s.backend.UpdateTemplate(ctx, templateID, in); err != nil {
		return fmt.Errorf("contaconmigo/templates: %w", err)
	}
	return nil
}

// Delete removes a template. The backend refuses templates with entries
// unless force is set.
func (s *Service) Delete(ctx context.Context, templateID string, force bool) error {
	if templateID == "" {
		return fmt.Errorf("contaconmigo/templates: %w", contaconmigo.ErrEmptyID)
	}
	if err := s.backend.DeleteTemplate(ctx, templateID, force); err != nil {
		return fmt.Errorf("contaconmigo/templates: %w", err)
	}
	s.logger.Info("template deleted", "template_id", templateID, "force", force)
	return nil
}

// SubmitEntry parses raw against the template's fields and submits the
// typed values. Validation failures return *field.ValidationError without
// calling the backend.
func (s *Service) SubmitEntry(ctx context.Context, templateID string, raw map[string]string) error {
	values, err := s.parse(ctx, templateID, raw)
	if err != nil {
		return err
	}
	if err := s.backend.SubmitEntry(ctx, templateID, values); err != nil {
		return fmt.Errorf("contaconmigo/templates: %w", err)
	}
	return nil
}

// Entries returns the entries of a template.
func (s *Service) Entries(ctx context.Context, templateID string) ([]contaconmigo.Entry, error) {
	if templateID == "" {
		return nil, fmt.Errorf("contaconmigo/templates: %w", contaconmigo.ErrEmptyID)
	}
	entries, err := s.backend.ListEntries(ctx, templateID)
	if err != nil {
		return nil, fmt.Errorf("contaconmigo/templates: %w", err)
	}
	return entries, nil
}

// Entry returns one entry.
func (s *Service) Entry(ctx context.Context, templateID, entryID string) (*contaconmigo.Entry, error) {
	if templateID == "" || entryID == "" {
		return nil, fmt.Errorf("contaconmigo/templates: %w", contaconmigo.ErrEmptyID)
	}
	e, err := s.backend.GetEntry(ctx, templateID, entryID)
	if err != nil {
		return nil, fmt.Errorf("contaconmigo/templates: %w", err)
	}
	return e, nil
}

// UpdateEntry parses raw against the template's fields and replaces the
// entry's values.
func (s *Service) UpdateEntry(ctx context.Context, templateID, entryID string, raw map[string]string) error {
	if entryID == "" {
		return fmt.Errorf("contaconmigo/templates: %w", contaconmigo.ErrEmptyID)
	}
	values, err := s.parse(ctx, templateID, raw)
	if err != nil {
		return err
	}
	if err := s.backend.UpdateEntry(ctx, templateID, entryID, values); err != nil {
		return fmt.Errorf("contaconmigo/templates: %w", err)
	}
	return nil
}

// DeleteEntry removes one entry.
func (s *Service) DeleteEntry(ctx context.Context, templateID, entryID string) error {
	if templateID == "" || entryID == "" {
		return fmt.Errorf("contaconmigo/templates: %w", contaconmigo.ErrEmptyID)
	}
	if err := s.backend.DeleteEntry(ctx, templateID, entryID); err != nil {
		return fmt.Errorf("contaconmigo/templates: %w", err)
	}
	return nil
}

// Totals aggregates the entries of one template.
func (s *Service) Totals(ctx context.Context, templateID string) (*contaconmigo.Totals, error) {
	t, err := s.Get(ctx, templateID)
	if err != nil {
		return nil, err
	}
	entries, err := s.Entries(ctx, templateID)
	if err != nil {
		return nil, err
	}
	totals := Aggregate(*t, entries)
	return &totals, nil
}

// AllTotals aggregates every template of the user. Entries are loaded
// concurrently, bounded by the configured concurrency; results keep the
// template order. The first failure cancels the rest.
func (s *Service) AllTotals(ctx context.Context) ([]contaconmigo.Totals, error) {
	list, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]contaconmigo.Totals, len(list))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i := range list {
		i := i
		g.Go(func() error {
			entries, err := s.Entries(gctx, list[i].ID)
			if err != nil {
				return err
			}
			out[i] = Aggregate(list[i], entries)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) parse(ctx context.Context, templateID string, raw map[string]string) (map[string]any, error) {
	t, err := s.Get(ctx, templateID)
	if err != nil {
		return nil, err
	}
	values, err := field.ParseValues(t.Fields, raw)
	if err != nil {
		return nil, err
	}
	return values, nil
}
