package catalogue

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-yaml"
	"github.com/hasirciogluhq/emergency-directory/cmd/emergencyd/internal/core"
)

// ExitCommand is reserved and may not be used as a service name.
const ExitCommand = "exit"

// ErrUnknownService is returned by Lookup for names outside the catalogue.
var ErrUnknownService = errors.New("unknown service")

// Defaults is the built-in emergency catalogue.
var Defaults = []core.ServiceEntry{
	{Name: "Police", Response: "Police: 100"},
	{Name: "Ambulance", Response: "Ambulance: 102"},
	{Name: "Fire", Response: "Fire: 101"},
	{Name: "Vehicle Repair", Response: "Vehicle Repair: 1800-102-1111"},
	{Name: "Food Delivery", Response: "Food Delivery: 1800-210-0000"},
	{Name: "Blood Bank", Response: "Blood Bank: 1910"},
}

// Catalogue is an ordered, read-only mapping from service name to response.
type Catalogue struct {
	entries []core.ServiceEntry
	byName  map[string]string
}

// New validates entries and builds a catalogue. Names must be non-empty and
// unique, and "exit" is reserved.
func New(entries []core.ServiceEntry) (*Catalogue, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("catalogue is empty")
	}
	c := &Catalogue{
		entries: make([]core.ServiceEntry, 0, len(entries)),
		byName:  make(map[string]string, len(entries)),
	}
	for i, e := range entries {
		switch {
		case e.Name == "":
			return nil, fmt.Errorf("entry %d: empty service name", i)
		case e.Name == ExitCommand:
			return nil, fmt.Errorf("entry %d: %q is a reserved command", i, ExitCommand)
		case e.Response == "":
			return nil, fmt.Errorf("entry %d (%s): empty response", i, e.Name)
		}
		if _, dup := c.byName[e.Name]; dup {
			return nil, fmt.Errorf("entry %d: duplicate service name %q", i, e.Name)
		}
		c.byName[e.Name] = e.Response
		c.entries = append(c.entries, e)
	}
	return c, nil
}

// Lookup resolves an exact, case-sensitive service name.
func (c *Catalogue) Lookup(name string) (string, error) {
	resp, ok := c.byName[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownService, name)
	}
	return resp, nil
}

// Names lists the service names in catalogue order.
func (c *Catalogue) Names() []string {
	names := make([]string, len(c.entries))
	for i, e := range c.entries {
		names[i] = e.Name
	}
	return names
}

// Len reports the number of services.
func (c *Catalogue) Len() int { return len(c.entries) }

// Document is the YAML layout shared by the file and ConfigMap sources:
//
//	services:
//	  - name: Police
//	    response: "Police: 100"
type Document struct {
	Services []core.ServiceEntry `yaml:"services"`
}

// Parse decodes a YAML catalogue document.
func Parse(data []byte) ([]core.ServiceEntry, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse catalogue document: %w", err)
	}
	if len(doc.Services) == 0 {
		return nil, fmt.Errorf("catalogue document has no services")
	}
	return doc.Services, nil
}

// Static serves a fixed list of entries.
type Static struct {
	Entries []core.ServiceEntry
}

// NewStatic returns a source over the built-in entries.
func NewStatic() *Static {
	return &Static{Entries: Defaults}
}

func (s *Static) Load(ctx context.Context) ([]core.ServiceEntry, error) {
	out := make([]core.ServiceEntry, len(s.Entries))
	copy(out, s.Entries)
	return out, nil
}

// Load builds a catalogue from source.
func Load(ctx context.Context, source core.CatalogueSource) (*Catalogue, error) {
	entries, err := source.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalogue: %w", err)
	}
	return New(entries)
}
