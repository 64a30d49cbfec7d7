package usecase

import (
	"fmt"
	"sync"

	"github.com/kirillkom/devdocs-retriever/internal/core/domain"
	"github.com/kirillkom/devdocs-retriever/internal/core/ports"
)

// GeneratorFactory builds the generative client on first use.
type GeneratorFactory func() (ports.TextGenerator, error)

// GeneratorSource resolves the optional generative dependency at most once.
// A nil source, or one without a factory, is "not configured".
type GeneratorSource struct {
	factory GeneratorFactory

	once sync.Once
	gen  ports.TextGenerator
	err  error
}

func NewGeneratorSource(factory GeneratorFactory) *GeneratorSource {
	return &GeneratorSource{factory: factory}
}

func StaticGenerator(gen ports.TextGenerator) *GeneratorSource {
	if gen == nil {
		return &GeneratorSource{}
	}
	return NewGeneratorSource(func() (ports.TextGenerator, error) { return gen, nil })
}

func (s *GeneratorSource) Configured() bool {
	return s != nil && s.factory != nil
}

func (s *GeneratorSource) Resolve() (ports.TextGenerator, error) {
	if !s.Configured() {
		return nil, domain.ErrGeneratorNotConfigured
	}
	s.once.Do(func() {
		gen, err := s.factory()
		switch {
		case err != nil:
			s.err = domain.WrapError(domain.ErrExternalService, "init generator", err)
		case gen == nil:
			s.err = domain.ErrGeneratorNotConfigured
		default:
			s.gen = gen
		}
	})
	if s.err != nil {
		return nil, fmt.Errorf("resolve generator: %w", s.err)
	}
	return s.gen, nil
}
