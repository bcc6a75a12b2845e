package screen

import (
	"context"
	"fmt"
	"image"
	"image/draw"

	"github.com/corona10/goimagehash"
)

// Fingerprint is a 64-bit perceptual digest of a region. Two fingerprints are
// equal only when their digests are identical.
type Fingerprint uint64

// String renders the digest as hex.
func (f Fingerprint) String() string { return fmt.Sprintf("%016x", uint64(f)) }

// FingerprintOf computes the perceptual hash of img.
func FingerprintOf(img image.Image) (Fingerprint, error) {
	h, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return 0, fmt.Errorf("perception hash: %w", err)
	}
	return Fingerprint(h.GetHash()), nil
}

// Sample is one cropped region with its fingerprint.
type Sample struct {
	Image       image.Image
	Fingerprint Fingerprint
}

// Sampler crops a region out of provider frames and fingerprints it.
type Sampler struct {
	provider Provider
	hash     func(image.Image) (Fingerprint, error)
}

// NewSampler creates a sampler over p.
func NewSampler(p Provider) *Sampler {
	return &Sampler{provider: p, hash: FingerprintOf}
}

// Sample captures a frame and returns the fingerprinted crop of rect.
func (s *Sampler) Sample(ctx context.Context, rect image.Rectangle) (Sample, error) {
	frame, err := s.provider.CaptureFrame(ctx)
	if err != nil {
		return Sample{}, err
	}
	crop, err := Crop(frame, rect)
	if err != nil {
		return Sample{}, err
	}
	fp, err := s.hash(crop)
	if err != nil {
		return Sample{}, err
	}
	return Sample{Image: crop, Fingerprint: fp}, nil
}

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

// Crop returns the part of img inside rect. The result is a copy so later
// frames cannot alias it.
func Crop(img image.Image, rect image.Rectangle) (image.Image, error) {
	r := rect.Intersect(img.Bounds())
	if r.Empty() {
		return nil, fmt.Errorf("region %v outside frame %v", rect, img.Bounds())
	}
	var src image.Image = img
	if si, ok := img.(subImager); ok {
		src = si.SubImage(r)
	}
	out := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(out, out.Bounds(), src, r.Min, draw.Src)
	return out, nil
}
