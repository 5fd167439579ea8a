package display

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"time"

	"github.com/xkilldash9x/deskpilot/api/schemas"
)

// Capturer produces observations from a device. Capturing never sends input,
// so two captures with no action in between yield the same image.
type Capturer struct {
	device  schemas.Device
	encoder png.Encoder
	now     func() time.Time
}

var _ schemas.Capturer = (*Capturer)(nil)

// NewCapturer creates a capturer for device.
func NewCapturer(device schemas.Device) *Capturer {
	return &Capturer{
		device:  device,
		encoder: png.Encoder{CompressionLevel: png.BestSpeed},
		now:     time.Now,
	}
}

// Capture grabs the current frame and pointer position.
func (c *Capturer) Capture(ctx context.Context) (*schemas.Observation, error) {
	img, err := c.device.Capture(ctx)
	if err != nil {
		return nil, fmt.Errorf("display: capture failed: %w", err)
	}
	cursor, err := c.device.Cursor(ctx)
	if err != nil {
		return nil, fmt.Errorf("display: failed to read cursor: %w", err)
	}
	data, err := c.encode(img)
	if err != nil {
		return nil, err
	}

	return &schemas.Observation{
		Image:      data,
		MIMEType:   schemas.MIMETypePNG,
		Cursor:     cursor,
		Display:    c.device.Size(),
		CapturedAt: c.now().UTC(),
	}, nil
}

func (c *Capturer) encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := c.encoder.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("display: failed to encode frame: %w", err)
	}
	return buf.Bytes(), nil
}
