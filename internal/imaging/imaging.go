// Package imaging prepares reference images for video generation. A stored
// image is resized to an exact target frame by cropping, letterboxing or
// stretching, flattened onto an opaque background and re-encoded as PNG.
// Pixel work runs on the bounded worker pool; file access goes through the
// storage backend so remote stores get a real local path to work with.
package imaging

import (
	"context"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"math"
	"os"
	"path"
	"strconv"
	"strings"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"pkt.systems/mediad/api"
	"pkt.systems/mediad/internal/loggingutil"
	"pkt.systems/mediad/internal/storage"
	"pkt.systems/mediad/internal/workpool"
	"pkt.systems/pslog"
)

// Mode selects how a source image reaches the target aspect ratio.
type Mode string

const (
	// ModeCrop scales the image to cover the target and trims the overflow
	// around the center. No distortion, edges are lost.
	ModeCrop Mode = "crop"
	// ModePad scales the image to fit inside the target and letterboxes the
	// remainder with black. No distortion, nothing is lost.
	ModePad Mode = "pad"
	// ModeRescale stretches to the exact target dimensions.
	ModeRescale Mode = "rescale"
)

// ParseMode maps the user string to a Mode. Empty selects crop.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(ModeCrop):
		return ModeCrop, nil
	case string(ModePad):
		return ModePad, nil
	case string(ModeRescale):
		return ModeRescale, nil
	default:
		return "", fmt.Errorf("imaging: unknown resize mode %q (use crop, pad or rescale): %w", s, api.ErrInvalidParameter)
	}
}

// maxTargetDim bounds the parsed frame size so a hostile request cannot ask
// for a multi-gigabyte allocation.
const maxTargetDim = 8192

// ParseTargetSize parses "WxH" into positive pixel dimensions.
func ParseTargetSize(s string) (width, height int, err error) {
	w, h, ok := strings.Cut(strings.TrimSpace(s), "x")
	if ok {
		width, err = strconv.Atoi(w)
		if err == nil {
			height, err = strconv.Atoi(h)
		}
	}
	if !ok || err != nil || width < 1 || height < 1 || width > maxTargetDim || height > maxTargetDim {
		return 0, 0, fmt.Errorf("imaging: target size %q is not WxH within 1..%d: %w", s, maxTargetDim, api.ErrInvalidParameter)
	}
	return width, height, nil
}

// PrepareRequest names the source image and the frame to produce.
type PrepareRequest struct {
	// InputFilename is a flat name in the image namespace. Decodable types
	// are jpg, jpeg, png and webp.
	InputFilename string
	// TargetSize is "WxH".
	TargetSize string
	// OutputFilename overrides the generated "<stem>_<WxH>.png" name. The
	// output is PNG-encoded regardless of the extension given here.
	OutputFilename string
	// Mode is crop, pad or rescale. Empty means crop.
	Mode string
}

// PrepareResult reports where the prepared frame landed and what it was made
// from.
type PrepareResult struct {
	OutputFilename string
	DisplayPath    string
	OriginalWidth  int
	OriginalHeight int
	TargetWidth    int
	TargetHeight   int
	Mode           Mode
}

// PreparerConfig wires the preparer.
type PreparerConfig struct {
	Storage storage.Backend
	Pool    *workpool.Pool
	Logger  pslog.Logger
}

// Preparer turns stored images into video-sized reference frames. Safe for
// concurrent use.
type Preparer struct {
	store  storage.Backend
	pool   *workpool.Pool
	logger pslog.Logger
}

// NewPreparer validates the wiring and returns the preparer.
func NewPreparer(cfg PreparerConfig) (*Preparer, error) {
	if cfg.Storage == nil {
		return nil, fmt.Errorf("imaging: storage backend is required")
	}
	pool := cfg.Pool
	if pool == nil {
		pool = workpool.New(0)
	}
	return &Preparer{
		store:  cfg.Storage,
		pool:   pool,
		logger: loggingutil.WithSubsystem(cfg.Logger, "imaging"),
	}, nil
}

// decodableImageExts lists the input types image.Decode handles here (stdlib
// jpeg/png plus the x/image webp decoder).
var decodableImageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
}

// PrepareReference resizes the named image to the target frame and stores the
// result as PNG in the image namespace. The output name defaults to
// "<input stem>_<WxH>.png".
func (p *Preparer) PrepareReference(ctx context.Context, req PrepareRequest) (PrepareResult, error) {
	mode, err := ParseMode(req.Mode)
	if err != nil {
		return PrepareResult{}, err
	}
	width, height, err := ParseTargetSize(req.TargetSize)
	if err != nil {
		return PrepareResult{}, err
	}
	ext := strings.ToLower(path.Ext(req.InputFilename))
	if !decodableImageExts[ext] {
		return PrepareResult{}, fmt.Errorf("imaging: cannot decode %q (use jpg, jpeg, png or webp): %w", ext, api.ErrInvalidParameter)
	}

	var src image.Image
	err = p.store.ScopedLocal(ctx, api.PathTypeImage, req.InputFilename, false, func(localPath string) error {
		return p.pool.Do(ctx, func() error {
			f, err := os.Open(localPath)
			if err != nil {
				return fmt.Errorf("imaging: open %q: %w", req.InputFilename, err)
			}
			defer f.Close()
			img, _, err := image.Decode(f)
			if err != nil {
				return fmt.Errorf("imaging: decode %q: %v: %w", req.InputFilename, err, api.ErrInvalidParameter)
			}
			src = img
			return nil
		})
	})
	if err != nil {
		return PrepareResult{}, err
	}

	output := strings.TrimSpace(req.OutputFilename)
	if output == "" {
		stem := strings.TrimSuffix(req.InputFilename, path.Ext(req.InputFilename))
		output = fmt.Sprintf("%s_%dx%d.png", stem, width, height)
	}

	var frame *image.RGBA
	if err := p.pool.Do(ctx, func() error {
		frame = resizeToFrame(src, width, height, mode)
		return nil
	}); err != nil {
		return PrepareResult{}, err
	}

	err = p.store.ScopedLocal(ctx, api.PathTypeImage, output, true, func(localPath string) error {
		f, err := os.Create(localPath)
		if err != nil {
			return fmt.Errorf("imaging: create %q: %w", output, err)
		}
		if err := png.Encode(f, frame); err != nil {
			f.Close()
			return fmt.Errorf("imaging: encode %q: %w", output, err)
		}
		return f.Close()
	})
	if err != nil {
		return PrepareResult{}, err
	}

	display, err := p.store.DisplayPath(api.PathTypeImage, output)
	if err != nil {
		return PrepareResult{}, err
	}
	bounds := src.Bounds()
	p.logger.Info("reference prepared",
		"input", req.InputFilename, "output", output, "mode", string(mode),
		"original", fmt.Sprintf("%dx%d", bounds.Dx(), bounds.Dy()),
		"target", fmt.Sprintf("%dx%d", width, height))
	return PrepareResult{
		OutputFilename: output,
		DisplayPath:    display,
		OriginalWidth:  bounds.Dx(),
		OriginalHeight: bounds.Dy(),
		TargetWidth:    width,
		TargetHeight:   height,
		Mode:           mode,
	}, nil
}

// resizeToFrame renders src into an opaque width x height frame. The black
// fill doubles as the letterbox for pad and as the matte that flattens any
// source alpha.
func resizeToFrame(src image.Image, width, height int, mode Mode) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)

	sb := src.Bounds()
	sw, sh := float64(sb.Dx()), float64(sb.Dy())
	tw, th := float64(width), float64(height)

	switch mode {
	case ModeRescale:
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, sb, draw.Over, nil)
	case ModePad:
		scale := math.Min(tw/sw, th/sh)
		fw := max(1, int(math.Round(sw*scale)))
		fh := max(1, int(math.Round(sh*scale)))
		x0 := (width - fw) / 2
		y0 := (height - fh) / 2
		draw.CatmullRom.Scale(dst, image.Rect(x0, y0, x0+fw, y0+fh), src, sb, draw.Over, nil)
	default: // crop
		scale := math.Max(tw/sw, th/sh)
		cw := max(width, int(math.Round(sw*scale)))
		ch := max(height, int(math.Round(sh*scale)))
		cover := image.NewRGBA(image.Rect(0, 0, cw, ch))
		draw.CatmullRom.Scale(cover, cover.Bounds(), src, sb, draw.Src, nil)
		draw.Draw(dst, dst.Bounds(), cover, image.Pt((cw-width)/2, (ch-height)/2), draw.Over)
	}
	return dst
}
