package types

import "fmt"

// Mode selects how a batch schedules its items.
type Mode string

const (
	ModeConcurrent Mode = "concurrent"
	ModeSequential Mode = "sequential"
)

// ParseMode accepts "concurrent" or "sequential"; empty means concurrent.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeConcurrent:
		return ModeConcurrent, nil
	case ModeSequential:
		return ModeSequential, nil
	}
	return "", fmt.Errorf("unknown batch mode %q", s)
}

// OverwritePolicy decides whether an existing destination file is fetched again.
type OverwritePolicy string

const (
	// OverwriteAuto re-fetches videos and keeps existing images.
	OverwriteAuto   OverwritePolicy = "auto"
	OverwriteAlways OverwritePolicy = "always"
	OverwriteNever  OverwritePolicy = "never"
)

// ParseOverwritePolicy accepts auto, always or never; empty means auto.
func ParseOverwritePolicy(s string) (OverwritePolicy, error) {
	switch OverwritePolicy(s) {
	case "", OverwriteAuto:
		return OverwriteAuto, nil
	case OverwriteAlways:
		return OverwriteAlways, nil
	case OverwriteNever:
		return OverwriteNever, nil
	}
	return "", fmt.Errorf("unknown overwrite policy %q", s)
}

// Overwrite reports whether assets of kind replace an existing file.
func (p OverwritePolicy) Overwrite(kind Kind) bool {
	switch p {
	case OverwriteAlways:
		return true
	case OverwriteNever:
		return false
	default:
		return kind == KindVideo
	}
}
