// Package region maps named screen regions to rectangles for each game window.
package region

import (
	"errors"
	"fmt"
	"image"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/GriffinCanCode/dicepilot/internal/dice"
	apperrors "github.com/GriffinCanCode/dicepilot/internal/errors"
)

// Region names every window must provide.
const (
	Dice      = "dice"
	BetRed    = "bet_red"
	BetOrange = "bet_orange"
	Confirm   = "confirm"
)

// Chip returns the region name of a chip denomination.
func Chip(amount int) string { return fmt.Sprintf("chip_%d", amount) }

// Bet returns the region name of the stake area for side.
func Bet(side dice.Side) string {
	if side == dice.Orange {
		return BetOrange
	}
	return BetRed
}

// Locator resolves a named region in a window.
type Locator interface {
	RegionFor(w dice.Window, name string) (image.Rectangle, bool)
}

var validate = validator.New()

// Rect is the YAML form of a rectangle in logical screen coordinates.
type Rect struct {
	X int `yaml:"x" validate:"gte=0"`
	Y int `yaml:"y" validate:"gte=0"`
	W int `yaml:"w" validate:"gt=0"`
	H int `yaml:"h" validate:"gt=0"`
}

// Rectangle converts r to an image.Rectangle.
func (r Rect) Rectangle() image.Rectangle { return image.Rect(r.X, r.Y, r.X+r.W, r.Y+r.H) }

// Map is a static Locator loaded from configuration.
type Map struct {
	// Scale converts logical coordinates to captured pixels on scaled displays.
	Scale   float64                    `yaml:"scale" default:"1" validate:"gt=0"`
	Windows map[string]map[string]Rect `yaml:"windows" validate:"required,dive,keys,oneof=A B,endkeys,dive"`
}

// RegionFor implements Locator.
func (m *Map) RegionFor(w dice.Window, name string) (image.Rectangle, bool) {
	regions, ok := m.Windows[w.String()]
	if !ok {
		return image.Rectangle{}, false
	}
	r, ok := regions[name]
	if !ok || r.W <= 0 || r.H <= 0 {
		return image.Rectangle{}, false
	}
	if m.Scale <= 0 || m.Scale == 1 {
		return r.Rectangle(), true
	}
	return image.Rect(m.scaled(r.X), m.scaled(r.Y), m.scaled(r.X+r.W), m.scaled(r.Y+r.H)), true
}

func (m *Map) scaled(v int) int { return int(math.Round(float64(v) * m.Scale)) }

// Load reads a region map from a YAML file.
func Load(path string) (*Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read region file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML region map.
func Parse(data []byte) (*Map, error) {
	var m Map
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal region YAML: %w", err)
	}
	if err := defaults.Set(&m); err != nil {
		return nil, fmt.Errorf("failed to apply region defaults: %w", err)
	}
	if err := validate.Struct(&m); err != nil {
		return nil, invalid(err)
	}
	return &m, nil
}

func invalid(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperrors.Wrap(err, apperrors.Precondition, "invalid region map")
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Namespace()+":"+fe.Tag())
	}
	sort.Strings(fields)
	return apperrors.New(apperrors.Precondition, "invalid region map").
		WithMetadata("fields", strings.Join(fields, ","))
}

// Required lists the region names each window needs for the given chips.
func Required(chips []int) []string {
	names := []string{Dice, BetRed, BetOrange, Confirm}
	for _, c := range chips {
		names = append(names, Chip(c))
	}
	return names
}

// Validate checks that l resolves every required region in both windows.
func Validate(l Locator, chips []int) error {
	var missing []string
	for _, w := range dice.Windows {
		for _, name := range Required(chips) {
			if _, ok := l.RegionFor(w, name); !ok {
				missing = append(missing, w.String()+"/"+name)
			}
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return apperrors.New(apperrors.Precondition, "missing screen regions").
		WithMetadata("missing", strings.Join(missing, ","))
}
