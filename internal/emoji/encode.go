package emoji

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/gif"
	_ "image/jpeg"
	_ "image/png"
	"time"

	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/gen2brain/webp"
)

// targetLongestEdge is the longest output edge, in pixels, emoji are
// downscaled to before re-encoding.
const targetLongestEdge = 100

// webpQuality is the encode quality passed to the WebP encoder for both
// static and animated output.
const webpQuality = 80

// decoded holds a source image normalized into either one static frame or
// an ordered sequence of animation frames.
type decoded struct {
	animated bool
	frames   []*image.RGBA
	delays   []time.Duration // per-frame duration, animated only
	loop     int             // 0 means loop forever, matching image/gif's convention
}

// decodeSource sniffs and decodes raw image bytes. Animated GIFs decode to
// every frame; everything else (PNG, JPEG, static GIF, WebP) decodes to a
// single frame via the registered stdlib/x/image decoders.
func decodeSource(data []byte) (*decoded, error) {
	if g, err := gif.DecodeAll(bytes.NewReader(data)); err == nil && len(g.Image) > 1 {
		return decodedFromGIF(g), nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return &decoded{frames: []*image.RGBA{toRGBA(img)}}, nil
}

func decodedFromGIF(g *gif.GIF) *decoded {
	d := &decoded{
		animated: true,
		frames:   make([]*image.RGBA, len(g.Image)),
		delays:   make([]time.Duration, len(g.Image)),
		loop:     g.LoopCount,
	}

	// GIF frames may be partial, disposed relative to the previous frame;
	// compositing onto a running canvas gives each output frame the full
	// picture the way a GIF player would render it.
	bounds := g.Image[0].Bounds()
	canvas := image.NewRGBA(bounds)
	for i, frame := range g.Image {
		draw.Draw(canvas, frame.Bounds(), frame, frame.Bounds().Min, draw.Over)
		cp := image.NewRGBA(bounds)
		draw.Draw(cp, bounds, canvas, bounds.Min, draw.Src)
		d.frames[i] = cp
		d.delays[i] = time.Duration(g.Delay[i]) * 10 * time.Millisecond
	}
	return d
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	rgba := image.NewRGBA(b)
	draw.Draw(rgba, b, img, b.Min, draw.Src)
	return rgba
}

// downscale resizes img so its longest edge is at most targetLongestEdge,
// preserving aspect ratio. Images already within bounds pass through
// unchanged. Uses CatmullRom resampling for quality over speed.
func downscale(img *image.RGBA) *image.RGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	longest := w
	if h > longest {
		longest = h
	}
	if longest <= targetLongestEdge {
		return img
	}

	scale := float64(targetLongestEdge) / float64(longest)
	newW := int(float64(w)*scale + 0.5)
	newH := int(float64(h)*scale + 0.5)
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Over, nil)
	return dst
}

// normalize downscales every frame of d in place.
func normalize(d *decoded) {
	for i, f := range d.frames {
		d.frames[i] = downscale(f)
	}
}

// encode produces the final WebP bytes: a single still image, or an
// animated WebP preserving per-frame duration and loop count.
func encode(d *decoded) ([]byte, error) {
	var buf bytes.Buffer

	if !d.animated {
		if err := webp.Encode(&buf, d.frames[0], webp.Options{Quality: float32(webpQuality)}); err != nil {
			return nil, fmt.Errorf("encode static webp: %w", err)
		}
		return buf.Bytes(), nil
	}

	anim := webp.Animation{LoopCount: d.loop}
	for i, f := range d.frames {
		anim.Frames = append(anim.Frames, webp.AnimationFrame{
			Image:    f,
			Duration: d.delays[i],
		})
	}
	if err := webp.EncodeAnimation(&buf, anim, webp.Options{Quality: float32(webpQuality)}); err != nil {
		return nil, fmt.Errorf("encode animated webp: %w", err)
	}
	return buf.Bytes(), nil
}
