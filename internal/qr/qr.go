// Package qr renders QR code images for short URLs.
package qr

import (
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// DefaultSize is the rendered PNG edge length in pixels.
const DefaultSize = 256

// MaxSize caps the rendered edge length; the endpoint is unauthenticated, so
// an unbounded size parameter would let anyone request arbitrarily large
// allocations.
const MaxSize = 1024

// PNG renders a QR code PNG for the given target URL.
func PNG(targetURL string, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultSize
	}
	if size > MaxSize {
		size = MaxSize
	}
	png, err := qrcode.Encode(targetURL, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("failed to render QR code: %w", err)
	}
	return png, nil
}
