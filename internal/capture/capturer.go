// Package capture grabs, compresses, and uploads screenshots.
package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"log"
	"sync/atomic"
	"time"
)

// jpegQuality trades size for legibility; screenshots are evidence, not art.
const jpegQuality = 60

// Source produces a raw screen image.
type Source interface {
	Grab() (image.Image, error)
}

// Uploader ships a compressed screenshot; implemented by the sync engine.
type Uploader interface {
	UploadScreenshot(ctx context.Context, jpegData []byte, capturedAt time.Time) error
}

// Result records the outcome of one capture attempt.
type Result struct {
	CapturedAt time.Time
	Err        error
}

// Capturer runs grab-compress-upload cycles. A capture requested while one
// is already running is dropped, not queued: screenshots are point-in-time
// samples and a queued one would be stale by the time it ran.
type Capturer struct {
	source   Source
	uploader Uploader
	onResult func(Result)
	inFlight atomic.Bool
	now      func() time.Time
}

// New returns a Capturer. onResult may be nil; it receives every attempt's
// outcome. Nothing propagates to the scheduler.
func New(source Source, uploader Uploader, onResult func(Result)) *Capturer {
	return &Capturer{source: source, uploader: uploader, onResult: onResult, now: time.Now}
}

// Capture runs one cycle. It never returns an error: failures are logged and
// reported through the result callback only, so a broken capture path cannot
// take down the sampling timers.
func (c *Capturer) Capture(ctx context.Context) {
	if !c.inFlight.CompareAndSwap(false, true) {
		return
	}
	defer c.inFlight.Store(false)

	capturedAt := c.now().UTC()
	err := c.run(ctx, capturedAt)
	if err != nil {
		log.Printf("capture: %v", err)
	}
	if c.onResult != nil {
		c.onResult(Result{CapturedAt: capturedAt, Err: err})
	}
}

func (c *Capturer) run(ctx context.Context, capturedAt time.Time) error {
	img, err := c.source.Grab()
	if err != nil {
		return fmt.Errorf("grab screen: %w", err)
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return fmt.Errorf("encode jpeg: %w", err)
	}
	if err := c.uploader.UploadScreenshot(ctx, buf.Bytes(), capturedAt); err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	return nil
}
