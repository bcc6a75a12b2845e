package perception

import (
	"context"
	"image"
	"image/color"
	"math"

	"github.com/GriffinCanCode/dicepilot/internal/dice"
)

// PipConfig tunes the pip counter.
type PipConfig struct {
	// LightPips counts bright spots on dark dice instead of dark on light.
	LightPips bool
	// Pip area bounds as a fraction of one die half's area.
	MinPipArea float64
	MaxPipArea float64
}

// DefaultPipConfig returns bounds suited to dice that fill most of their half.
func DefaultPipConfig() PipConfig {
	return PipConfig{MinPipArea: 0.002, MaxPipArea: 0.08}
}

// PipCounter is the local recognizer. It splits the dice region into a left
// and a right half and counts pip blobs in each.
type PipCounter struct {
	cfg PipConfig
}

// NewPipCounter creates a pip counter.
func NewPipCounter(cfg PipConfig) *PipCounter {
	if cfg.MinPipArea <= 0 {
		cfg.MinPipArea = DefaultPipConfig().MinPipArea
	}
	if cfg.MaxPipArea <= cfg.MinPipArea {
		cfg.MaxPipArea = DefaultPipConfig().MaxPipArea
	}
	return &PipCounter{cfg: cfg}
}

// Recognize implements Recognizer.
func (p *PipCounter) Recognize(ctx context.Context, img image.Image) (Reading, error) {
	if err := ctx.Err(); err != nil {
		return Reading{}, err
	}
	b := img.Bounds()
	mid := b.Min.X + b.Dx()/2
	left := p.count(img, image.Rect(b.Min.X, b.Min.Y, mid, b.Max.Y))
	right := p.count(img, image.Rect(mid, b.Min.Y, b.Max.X, b.Max.Y))

	pair := dice.Pair{Left: len(left), Right: len(right)}
	if !pair.InRange() {
		return Reading{Pair: pair}, nil
	}
	return Reading{Pair: pair, Confidence: min(uniformity(left), uniformity(right))}, nil
}

// count returns the areas of pip blobs inside r.
func (p *PipCounter) count(img image.Image, r image.Rectangle) []int {
	w, h := r.Dx(), r.Dy()
	if w <= 0 || h <= 0 {
		return nil
	}
	gray := make([]uint8, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			gray[y*w+x] = color.GrayModel.Convert(img.At(r.Min.X+x, r.Min.Y+y)).(color.Gray).Y
		}
	}
	t := otsu(gray)
	mask := make([]bool, len(gray))
	for i, v := range gray {
		if p.cfg.LightPips {
			mask[i] = v > t
		} else {
			mask[i] = v <= t
		}
	}

	total := float64(w * h)
	var areas []int
	seen := make([]bool, len(mask))
	stack := make([]int, 0, 64)
	for start := range mask {
		if !mask[start] || seen[start] {
			continue
		}
		area, touchesEdge := 0, false
		stack = append(stack[:0], start)
		seen[start] = true
		for len(stack) > 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			area++
			x, y := i%w, i/w
			if x == 0 || y == 0 || x == w-1 || y == h-1 {
				touchesEdge = true
			}
			for _, n := range [4]int{i - 1, i + 1, i - w, i + w} {
				if n < 0 || n >= len(mask) || seen[n] || !mask[n] {
					continue
				}
				// no wrap across rows
				if (n == i-1 && x == 0) || (n == i+1 && x == w-1) {
					continue
				}
				seen[n] = true
				stack = append(stack, n)
			}
		}
		frac := float64(area) / total
		if !touchesEdge && frac >= p.cfg.MinPipArea && frac <= p.cfg.MaxPipArea {
			areas = append(areas, area)
		}
	}
	return areas
}

// otsu picks the threshold maximizing between-class variance.
func otsu(gray []uint8) uint8 {
	var hist [256]int
	for _, v := range gray {
		hist[v]++
	}
	total := len(gray)
	var sum float64
	for i, c := range hist {
		sum += float64(i * c)
	}
	var sumB, best float64
	var wB int
	var t uint8
	for i, c := range hist {
		wB += c
		if wB == 0 {
			continue
		}
		wF := total - wB
		if wF == 0 {
			break
		}
		sumB += float64(i * c)
		mB := sumB / float64(wB)
		mF := (sum - sumB) / float64(wF)
		between := float64(wB) * float64(wF) * (mB - mF) * (mB - mF)
		if between > best {
			best = between
			t = uint8(i)
		}
	}
	return t
}

// uniformity is 1 minus the coefficient of variation of blob areas. Pips on
// one die face are the same size, so spread means noise.
func uniformity(areas []int) float64 {
	if len(areas) == 0 {
		return 0
	}
	var mean float64
	for _, a := range areas {
		mean += float64(a)
	}
	mean /= float64(len(areas))
	var variance float64
	for _, a := range areas {
		d := float64(a) - mean
		variance += d * d
	}
	cv := math.Sqrt(variance/float64(len(areas))) / mean
	return math.Max(0, 1-cv)
}
