package builder

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func writeTestIcon(t *testing.T, path string, size int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func TestRenderIcons(t *testing.T) {
	dir := t.TempDir()
	iconPath := filepath.Join(dir, "icon.png")
	writeTestIcon(t, iconPath, 512)

	decompiled := filepath.Join(dir, "decompiled")
	if err := renderIcons(iconPath, decompiled); err != nil {
		t.Fatalf("renderIcons() error = %v", err)
	}

	wantSizes := map[string]int{
		"mdpi":    48,
		"hdpi":    72,
		"xhdpi":   96,
		"xxhdpi":  144,
		"xxxhdpi": 192,
	}
	for density, size := range wantSizes {
		path := filepath.Join(decompiled, "res", "mipmap-"+density, "ic_launcher.png")
		f, err := os.Open(path)
		if err != nil {
			t.Errorf("icon for %s missing: %v", density, err)
			continue
		}
		img, err := png.Decode(f)
		f.Close()
		if err != nil {
			t.Errorf("icon for %s not decodable: %v", density, err)
			continue
		}
		bounds := img.Bounds()
		if bounds.Dx() != size || bounds.Dy() != size {
			t.Errorf("icon for %s is %dx%d, want %dx%d", density, bounds.Dx(), bounds.Dy(), size, size)
		}
	}
}

func TestRenderIcons_OverwritesExisting(t *testing.T) {
	dir := t.TempDir()
	iconPath := filepath.Join(dir, "icon.png")
	writeTestIcon(t, iconPath, 256)

	decompiled := filepath.Join(dir, "decompiled")
	existing := filepath.Join(decompiled, "res", "mipmap-mdpi", "ic_launcher.png")
	os.MkdirAll(filepath.Dir(existing), 0755)
	os.WriteFile(existing, []byte("old icon bytes"), 0644)

	if err := renderIcons(iconPath, decompiled); err != nil {
		t.Fatalf("renderIcons() error = %v", err)
	}

	f, err := os.Open(existing)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := png.Decode(f); err != nil {
		t.Errorf("existing icon was not overwritten with a valid png: %v", err)
	}
}

func TestRenderIcons_UndecodableIcon(t *testing.T) {
	dir := t.TempDir()
	iconPath := filepath.Join(dir, "icon.png")
	os.WriteFile(iconPath, []byte("this is not an image"), 0644)

	if err := renderIcons(iconPath, filepath.Join(dir, "decompiled")); err == nil {
		t.Error("renderIcons() should fail for an undecodable icon")
	}
}

func TestReplaceIcon_UnreadableAborts(t *testing.T) {
	p, _ := setupPipeline(t, fakeRunner(t))
	if err := p.Decompile(context.Background(), "base.apk"); err != nil {
		t.Fatal(err)
	}

	err := p.ReplaceIcon(filepath.Join(t.TempDir(), "missing.png"))
	var iconErr *IconError
	if !errors.As(err, &iconErr) {
		t.Errorf("ReplaceIcon(missing) error = %v, want *IconError", err)
	}
}

func TestReplaceIcon_EmptyPathSkips(t *testing.T) {
	p, _ := setupPipeline(t, fakeRunner(t))
	if err := p.Decompile(context.Background(), "base.apk"); err != nil {
		t.Fatal(err)
	}
	if err := p.ReplaceIcon(""); err != nil {
		t.Errorf("ReplaceIcon(\"\") error = %v, want nil", err)
	}
}
