package scenario

import (
	"errors"
	"fmt"

	"github.com/arloliu/fuda"
)

var (
	errNoName     = errors.New("scenario name is required")
	errNoRootName = errors.New("scenario root run needs a name")
	errErrorRate  = errors.New("errorRate must be between 0 and 1")
)

// LoadFromFile reads a scenario from a YAML file and validates it.
func LoadFromFile(path string) (*Scenario, error) {
	var s Scenario
	if err := fuda.LoadFile(path, &s); err != nil {
		return nil, fmt.Errorf("read scenario %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}

	return &s, nil
}

// Validate checks the fields the engine relies on: a scenario name, a named
// root, known run types and error rates within [0, 1].
func (s *Scenario) Validate() error {
	if s.Name == "" {
		return errNoName
	}
	if s.Root.Name == "" {
		return errNoRootName
	}

	var errs []error
	s.Root.walk(func(r RunTemplate) {
		if r.RunType != "" && !r.RunType.Valid() {
			errs = append(errs, fmt.Errorf("run %q has unknown run type %q", r.Name, r.RunType))
		}
		if r.ErrorRate < 0 || r.ErrorRate > 1 {
			errs = append(errs, fmt.Errorf("run %q: %w", r.Name, errErrorRate))
		}
	})

	return errors.Join(errs...)
}
