// Package input places bets by tapping chip, stake and confirm regions.
package input

import (
	"context"
	"fmt"
	"image"
	"sort"
	"time"

	"github.com/GriffinCanCode/dicepilot/internal/clock"
	"github.com/GriffinCanCode/dicepilot/internal/dice"
	apperrors "github.com/GriffinCanCode/dicepilot/internal/errors"
	"github.com/GriffinCanCode/dicepilot/internal/region"
	"github.com/GriffinCanCode/dicepilot/internal/trace"
)

// DefaultTapDelay is the pause after each tap so the game UI can react.
const DefaultTapDelay = 120 * time.Millisecond

// Pointer taps a screen coordinate.
type Pointer interface {
	Tap(ctx context.Context, p image.Point) error
}

// Placer composes a bet from chips and taps it into a window.
type Placer struct {
	pointer Pointer
	locator region.Locator
	chips   []int // descending
	clock   clock.Clock
	delay   time.Duration
}

// NewPlacer creates a placer for the given chip denominations.
func NewPlacer(p Pointer, l region.Locator, chips []int, clk clock.Clock, delay time.Duration) *Placer {
	sorted := append([]int(nil), chips...)
	sort.Sort(sort.Reverse(sort.IntSlice(sorted)))
	if clk == nil {
		clk = clock.Real{}
	}
	if delay <= 0 {
		delay = DefaultTapDelay
	}
	return &Placer{pointer: p, locator: l, chips: sorted, clock: clk, delay: delay}
}

// Decompose splits amount into chips, largest first.
func Decompose(amount int, chipsDesc []int) ([]int, error) {
	var out []int
	rest := amount
	for _, c := range chipsDesc {
		for c > 0 && rest >= c {
			out = append(out, c)
			rest -= c
		}
	}
	if rest != 0 || amount <= 0 {
		return nil, fmt.Errorf("amount %d cannot be composed from chips %v", amount, chipsDesc)
	}
	return out, nil
}

// PlaceBet taps chip then stake area for every chip, then confirms. A failure
// after the first tap has landed is returned as a PLACEMENT_FAILED error so
// callers do not repeat the sequence and stake the chips twice.
func (p *Placer) PlaceBet(ctx context.Context, w dice.Window, side dice.Side, amount int) error {
	chips, err := Decompose(amount, p.chips)
	if err != nil {
		return err
	}
	stake, err := p.center(w, region.Bet(side))
	if err != nil {
		return err
	}
	confirm, err := p.center(w, region.Confirm)
	if err != nil {
		return err
	}
	seq := make([]image.Point, 0, 2*len(chips)+1)
	for _, c := range chips {
		chip, err := p.center(w, region.Chip(c))
		if err != nil {
			return err
		}
		seq = append(seq, chip, stake)
	}
	seq = append(seq, confirm)

	trace.Logger(ctx).Debug("placing bet", "window", w, "side", side, "amount", amount, "chips", chips)
	for i, pt := range seq {
		if err := p.tap(ctx, pt); err != nil {
			if i == 0 {
				return err
			}
			return apperrors.Wrapf(err, apperrors.PlacementFailed, "bet partially placed after %d of %d taps", i, len(seq)).
				WithMetadata("window", w.String())
		}
	}
	return nil
}

func (p *Placer) tap(ctx context.Context, pt image.Point) error {
	if err := p.pointer.Tap(ctx, pt); err != nil {
		return fmt.Errorf("tap %v: %w", pt, err)
	}
	return p.clock.Sleep(ctx, p.delay)
}

func (p *Placer) center(w dice.Window, name string) (image.Point, error) {
	r, ok := p.locator.RegionFor(w, name)
	if !ok {
		return image.Point{}, fmt.Errorf("region %s/%s not configured", w, name)
	}
	return image.Pt((r.Min.X+r.Max.X)/2, (r.Min.Y+r.Max.Y)/2), nil
}
