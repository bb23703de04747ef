package jobs

import (
	"fmt"
	"path"
	"strings"

	"github.com/go-playground/validator/v10"

	"pkt.systems/mediad/api"
)

// Defaults applied when the caller leaves a field empty.
const (
	DefaultVideoModel = "sora-2"
	DefaultImageModel = "gpt-image-1.5"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Params is the tagged variant of generation parameters. Validation runs
// before any network traffic; a failing variant never reaches the remote API.
type Params interface {
	Kind() api.JobKind
	Validate() error
}

// VideoParams describes a video generation request.
type VideoParams struct {
	Prompt  string `validate:"required,max=32000"`
	Model   string `validate:"omitempty,oneof=sora-2 sora-2-pro"`
	Seconds string `validate:"omitempty,oneof=4 8 12"`
	Size    string `validate:"omitempty,oneof=720x1280 1280x720 1024x1792 1792x1024"`
	// ReferenceImage names a flat file in the image namespace used as the
	// first frame reference. Optional.
	ReferenceImage string
}

// Kind implements Params.
func (p VideoParams) Kind() api.JobKind { return api.JobKindVideo }

// EffectiveModel returns the model after defaulting.
func (p VideoParams) EffectiveModel() string {
	if p.Model == "" {
		return DefaultVideoModel
	}
	return p.Model
}

// referenceImageMimes is the extension allowlist for reference images.
var referenceImageMimes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
}

// Validate implements Params.
func (p VideoParams) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("jobs: video parameters: %v: %w", err, api.ErrInvalidParameter)
	}
	if (p.Size == "1024x1792" || p.Size == "1792x1024") && p.EffectiveModel() != "sora-2-pro" {
		return fmt.Errorf("jobs: size %s requires model sora-2-pro: %w", p.Size, api.ErrInvalidParameter)
	}
	if p.ReferenceImage != "" {
		if _, err := ReferenceImageMime(p.ReferenceImage); err != nil {
			return err
		}
	}
	return nil
}

// ValidVideoSize reports whether size is a frame size the video API accepts.
// The reference preparation tool shares this so prepared frames always match
// a legal video size.
func ValidVideoSize(size string) bool {
	switch size {
	case "720x1280", "1280x720", "1024x1792", "1792x1024":
		return true
	}
	return false
}

// ReferenceImageMime maps a reference image filename to its MIME type,
// enforcing the allowlist the generation API accepts.
func ReferenceImageMime(filename string) (string, error) {
	ext := strings.ToLower(path.Ext(filename))
	mime, ok := referenceImageMimes[ext]
	if !ok {
		return "", fmt.Errorf("jobs: unsupported reference image type %q (use jpg, jpeg, png or webp): %w", ext, api.ErrInvalidParameter)
	}
	return mime, nil
}

// ImageParams describes an image generation request.
type ImageParams struct {
	Prompt       string `validate:"required,max=32000"`
	Model        string `validate:"omitempty,oneof=gpt-image-1 gpt-image-1.5"`
	Size         string `validate:"omitempty,oneof=auto 1024x1024 1536x1024 1024x1536"`
	Quality      string `validate:"omitempty,oneof=auto low medium high"`
	Background   string `validate:"omitempty,oneof=auto transparent opaque"`
	OutputFormat string `validate:"omitempty,oneof=png jpeg webp"`
}

// Kind implements Params.
func (p ImageParams) Kind() api.JobKind { return api.JobKindImage }

// EffectiveModel returns the model after defaulting.
func (p ImageParams) EffectiveModel() string {
	if p.Model == "" {
		return DefaultImageModel
	}
	return p.Model
}

// Validate implements Params.
func (p ImageParams) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("jobs: image parameters: %v: %w", err, api.ErrInvalidParameter)
	}
	return nil
}
