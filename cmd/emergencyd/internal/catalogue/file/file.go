package file

import (
	"context"
	"fmt"
	"os"

	"github.com/hasirciogluhq/emergency-directory/cmd/emergencyd/internal/catalogue"
	"github.com/hasirciogluhq/emergency-directory/cmd/emergencyd/internal/core"
)

// Source reads a YAML catalogue document from disk.
type Source struct {
	Path string
}

func NewSource(path string) *Source {
	return &Source{Path: path}
}

func (s *Source) Load(ctx context.Context) ([]core.ServiceEntry, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalogue file %s: %w", s.Path, err)
	}
	return catalogue.Parse(data)
}
