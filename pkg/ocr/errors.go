package ocr

import "errors"

// ErrNoAmount is returned when no plausible rupiah amount can be read from a
// proof photo.
var ErrNoAmount = errors.New("no amount detected")
