package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Classifier is the durable settings record read by the broker on every
// classification request.
type Classifier struct {
	EndpointBaseURL string  `json:"apiBaseUrl" validate:"required,url"`
	Threshold       float64 `json:"threshold" validate:"gte=0,lte=1"`
	Credential      string  `json:"apiKey"`
	Provider        string  `json:"provider" validate:"oneof=remote anthropic"`
	Model           string  `json:"model"`
}

// DefaultClassifier returns the record used before anything is persisted
func DefaultClassifier() Classifier {
	return Classifier{
		EndpointBaseURL: "http://localhost:8000",
		Threshold:       0.5,
		Credential:      "",
		Provider:        ProviderRemote,
	}
}

// Patch is a partial Classifier. Nil fields are left untouched by Apply.
type Patch struct {
	EndpointBaseURL *string  `json:"apiBaseUrl,omitempty" toml:"endpoint_base_url"`
	Threshold       *float64 `json:"threshold,omitempty" toml:"threshold"`
	Credential      *string  `json:"apiKey,omitempty" toml:"credential"`
	Provider        *string  `json:"provider,omitempty" toml:"provider"`
	Model           *string  `json:"model,omitempty" toml:"model"`
}

// Apply overlays the non-nil fields of p onto c
func (c Classifier) Apply(p Patch) Classifier {
	if p.EndpointBaseURL != nil {
		c.EndpointBaseURL = *p.EndpointBaseURL
	}
	if p.Threshold != nil {
		c.Threshold = *p.Threshold
	}
	if p.Credential != nil {
		c.Credential = *p.Credential
	}
	if p.Provider != nil {
		c.Provider = *p.Provider
	}
	if p.Model != nil {
		c.Model = *p.Model
	}
	return c
}

// AsPatch returns a Patch with every field of c set
func (c Classifier) AsPatch() Patch {
	return Patch{
		EndpointBaseURL: &c.EndpointBaseURL,
		Threshold:       &c.Threshold,
		Credential:      &c.Credential,
		Provider:        &c.Provider,
		Model:           &c.Model,
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the record the same way the settings editor does
func (c Classifier) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("invalid classifier config: %s failed %q", verrs[0].Field(), verrs[0].Tag())
		}
		return fmt.Errorf("invalid classifier config: %w", err)
	}
	return nil
}

// Store is the durable Config Store. Get always returns defaults merged under
// whatever has been persisted; Set persists merge(current, patch).
type Store interface {
	Get(ctx context.Context) (Classifier, error)
	Set(ctx context.Context, p Patch) (Classifier, error)
}

// FileStore keeps the classifier record in the [classifier] table of the settings file
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a store backed by the settings file at path
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) load() (*Settings, error) {
	settings, err := LoadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	return settings, nil
}

// Get returns the current classifier record
func (s *FileStore) Get(ctx context.Context) (Classifier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings, err := s.load()
	if err != nil {
		return Classifier{}, err
	}
	return DefaultClassifier().Apply(settings.Classifier), nil
}

// Set merges p onto the current record and persists the result, leaving the
// other settings tables untouched
func (s *FileStore) Set(ctx context.Context, p Patch) (Classifier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings, err := s.load()
	if err != nil {
		return Classifier{}, err
	}

	merged := DefaultClassifier().Apply(settings.Classifier).Apply(p)
	if err := merged.Validate(); err != nil {
		return Classifier{}, err
	}

	settings.Classifier = merged.AsPatch()
	if err := settings.SaveFile(s.path); err != nil {
		return Classifier{}, fmt.Errorf("failed to save settings: %w", err)
	}
	return merged, nil
}

// MemoryStore is an in-process Store used by tests and one-shot CLI runs
type MemoryStore struct {
	mu        sync.Mutex
	persisted Patch
}

// NewMemoryStore creates a store seeded with the given overrides
func NewMemoryStore(seed Patch) *MemoryStore {
	return &MemoryStore{persisted: seed}
}

func (s *MemoryStore) Get(ctx context.Context) (Classifier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return DefaultClassifier().Apply(s.persisted), nil
}

func (s *MemoryStore) Set(ctx context.Context, p Patch) (Classifier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged := DefaultClassifier().Apply(s.persisted).Apply(p)
	if err := merged.Validate(); err != nil {
		return Classifier{}, err
	}
	s.persisted = merged.AsPatch()
	return merged, nil
}
