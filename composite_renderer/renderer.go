package composite_renderer

import (
	"errors"
	"image"
	"image/draw"
	"math"
)

type rendererImpl struct{}

type Config struct{}

func New(cfg Config) (Renderer, error) {
	return &rendererImpl{}, nil
}

// GridShape returns the rows and columns used for n images: rows is the rounded
// square root, columns whatever is needed to fit the rest.
func GridShape(n int) (rows, cols int) {
	if n <= 0 {
		return 0, 0
	}

	rows = int(math.Round(math.Sqrt(float64(n))))
	if rows > n {
		rows = n
	}

	cols = (n + rows - 1) / rows

	return rows, cols
}

func (r *rendererImpl) TileImages(images []image.Image) (image.Image, error) {
	if len(images) == 0 {
		return nil, errors.New("invalid number of images")
	}

	firstBounds := images[0].Bounds()

	for _, img := range images {
		if img.Bounds().Size() != firstBounds.Size() {
			return nil, errors.New("images are not the same size")
		}
	}

	rows, cols := GridShape(len(images))
	width, height := firstBounds.Dx(), firstBounds.Dy()

	retImage := image.NewRGBA(image.Rect(0, 0, width*cols, height*rows))

	for i, img := range images {
		offset := image.Pt((i%cols)*width, (i/cols)*height)

		draw.Draw(retImage, image.Rect(0, 0, width, height).Add(offset), img, img.Bounds().Min, draw.Over)
	}

	return retImage, nil
}
