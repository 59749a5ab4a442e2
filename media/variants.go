package media

import (
	"bytes"
	"context"
	"fmt"
	"image/jpeg"

	"github.com/disintegration/imaging"
)

// The three renditions every listing image gets: detail slider, slider
// thumbnail strip, and listing card. Each is center-cropped to the exact
// target aspect.
type variantSize struct {
	Name   string
	Width  int
	Height int
}

var variantSizes = []variantSize{
	{"detail-slider", 1200, 680},
	{"slider-thumb", 120, 68},
	{"listing", 488, 326},
}

func (p *Pipeline) generateVariants(ctx context.Context, data []byte, hash string) error {
	if p.variants == nil {
		return nil
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}

	for _, size := range variantSizes {
		cropped := imaging.Fill(img, size.Width, size.Height, imaging.Center, imaging.Lanczos)

		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, cropped, &jpeg.Options{Quality: 85}); err != nil {
			return fmt.Errorf("encode %s: %w", size.Name, err)
		}

		key := fmt.Sprintf("media/%s/%s_%s.jpg", hash[:2], hash, size.Name)
		if err := p.variants.Save(ctx, key, &buf, "image/jpeg"); err != nil {
			return fmt.Errorf("save %s: %w", size.Name, err)
		}
	}
	return nil
}
