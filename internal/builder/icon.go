package builder

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"

	xdraw "golang.org/x/image/draw"

	_ "image/gif"
	_ "image/jpeg"
)

// densityBuckets lists the five standard screen-density classes and the
// launcher icon edge length each one expects.
var densityBuckets = []struct {
	density string
	size    int
}{
	{"mdpi", 48},
	{"hdpi", 72},
	{"xhdpi", 96},
	{"xxhdpi", 144},
	{"xxxhdpi", 192},
}

// renderIcons decodes the source icon, converts it to RGBA, and writes one
// resized ic_launcher.png into each density-specific mipmap directory,
// overwriting any existing icon.
func renderIcons(iconPath, decompiledDir string) error {
	f, err := os.Open(iconPath)
	if err != nil {
		return fmt.Errorf("open icon: %w", err)
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return fmt.Errorf("decode icon: %w", err)
	}
	rgba := toRGBA(src)

	for _, bucket := range densityBuckets {
		dir := filepath.Join(decompiledDir, "res", "mipmap-"+bucket.density)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}

		resized := image.NewRGBA(image.Rect(0, 0, bucket.size, bucket.size))
		xdraw.CatmullRom.Scale(resized, resized.Bounds(), rgba, rgba.Bounds(), xdraw.Src, nil)

		out, err := os.Create(filepath.Join(dir, "ic_launcher.png"))
		if err != nil {
			return fmt.Errorf("create icon file: %w", err)
		}
		if err := png.Encode(out, resized); err != nil {
			out.Close()
			return fmt.Errorf("encode icon: %w", err)
		}
		if err := out.Close(); err != nil {
			return fmt.Errorf("write icon: %w", err)
		}
	}

	return nil
}

func toRGBA(src image.Image) *image.RGBA {
	if rgba, ok := src.(*image.RGBA); ok {
		return rgba
	}
	bounds := src.Bounds()
	rgba := image.NewRGBA(bounds)
	xdraw.Draw(rgba, bounds, src, bounds.Min, xdraw.Src)
	return rgba
}
