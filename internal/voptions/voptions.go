// Package voptions builds the canonical TransformOptions value from origin defaults, a
// named derivative preset, explicit request parameters, and responsive sizing hints
// (SPEC_FULL.md §4.B).
package voptions

import (
	"fmt"
	"math"
	"net/url"
	"strconv"

	xerrors "github.com/livepeer/videogw/errors"
	"github.com/livepeer/videogw/internal/origin"
	"github.com/livepeer/videogw/internal/translate"
)

// Mode enumerates the kinds of output a request can ask for (§3 TransformOptions.mode).
type Mode string

const (
	ModeVideo       Mode = "video"
	ModeFrame       Mode = "frame"
	ModeSpritesheet Mode = "spritesheet"
)

const (
	minDimension = 10
	maxDimension = 2000
)

// TransformOptions is the canonical, validated set of transform parameters (§3).
type TransformOptions struct {
	Mode        Mode
	Width       int
	Height      int
	Fit         string
	Format      string
	Time        string
	Duration    string
	Audio       bool
	HasAudio    bool
	Quality     string
	Compression string
	Loop        bool
	Autoplay    bool
	Muted       bool
	Preload     string
	Derivative  string
	Version     int
}

// Breakpoint is one entry of a responsive-sizing table: a configured viewport width
// mapped to the derivative that best serves it. The table itself is configuration-driven
// (spec's Open Question on the breakpoint table is resolved by deriving it from the
// gateway-wide video derivative presets via handlers.BuildBreakpoints rather than a
// fixed, hardcoded table).
type Breakpoint struct {
	ViewWidth  int
	Derivative string
}

// Resolve builds a TransformOptions value per §4.B's four-stage overlay: origin
// defaults, named derivative preset, explicit request parameters, then a
// responsive-sizing heuristic when neither width nor height appears in the request
// parameters q and viewport hints are present.
func Resolve(o *origin.Origin, derivatives map[string]map[string]interface{}, breakpoints []Breakpoint, q url.Values, hints translate.ClientHints) (TransformOptions, error) {
	opts := TransformOptions{Mode: ModeVideo, Fit: "contain", Quality: "auto", Compression: "auto", Preload: "metadata", Version: 1}

	if o != nil {
		applyMap(&opts, o.TransformDefaults)
	}

	derivativeName := q.Get("derivative")
	if derivativeName != "" {
		if preset, ok := derivatives[derivativeName]; ok {
			applyMap(&opts, preset)
		}
		opts.Derivative = derivativeName
	}

	explicitWidth := q.Has("width")
	explicitHeight := q.Has("height")
	applyQuery(&opts, q)

	if !explicitWidth && !explicitHeight && len(breakpoints) > 0 {
		if bp, ok := nearestBreakpoint(breakpoints, hints); ok {
			if preset, ok := derivatives[bp.Derivative]; ok {
				applyMap(&opts, preset)
			}
			opts.Derivative = bp.Derivative
		}
	}

	if err := validate(opts); err != nil {
		return TransformOptions{}, err
	}
	return opts, nil
}

// nearestBreakpoint picks the breakpoint whose ViewWidth is closest (smallest positive
// percent-difference) to the effective viewport width (DPR multiplied in).
func nearestBreakpoint(breakpoints []Breakpoint, hints translate.ClientHints) (Breakpoint, bool) {
	viewWidth, err := strconv.ParseFloat(hints.ViewWidth, 64)
	if err != nil || viewWidth <= 0 {
		return Breakpoint{}, false
	}
	dpr := 1.0
	if hints.DPR != "" {
		if parsed, err := strconv.ParseFloat(hints.DPR, 64); err == nil && parsed > 0 {
			dpr = parsed
		}
	}
	effectiveWidth := viewWidth * dpr

	best := Breakpoint{}
	bestDiff := math.Inf(1)
	found := false
	for _, bp := range breakpoints {
		diff := math.Abs(float64(bp.ViewWidth)-effectiveWidth) / effectiveWidth
		if diff < bestDiff {
			bestDiff = diff
			best = bp
			found = true
		}
	}
	return best, found
}

func applyMap(opts *TransformOptions, m map[string]interface{}) {
	for k, v := range m {
		s := fmt.Sprintf("%v", v)
		applyField(opts, k, s)
	}
}

func applyQuery(opts *TransformOptions, q url.Values) {
	for k, vs := range q {
		if len(vs) == 0 {
			continue
		}
		applyField(opts, k, vs[0])
	}
}

func applyField(opts *TransformOptions, key, value string) {
	switch key {
	case "mode":
		opts.Mode = Mode(value)
	case "width":
		if n, err := strconv.Atoi(value); err == nil {
			opts.Width = n
		}
	case "height":
		if n, err := strconv.Atoi(value); err == nil {
			opts.Height = n
		}
	case "fit":
		opts.Fit = value
	case "format":
		opts.Format = value
	case "time":
		opts.Time = value
	case "duration":
		opts.Duration = value
	case "audio":
		opts.HasAudio = true
		opts.Audio = parseBool(value)
	case "quality":
		opts.Quality = value
	case "compression":
		opts.Compression = value
	case "loop":
		opts.Loop = parseBool(value)
	case "autoplay":
		opts.Autoplay = parseBool(value)
	case "muted":
		opts.Muted = parseBool(value)
	case "preload":
		opts.Preload = value
	case "version":
		if n, err := strconv.Atoi(value); err == nil {
			opts.Version = n
		}
	}
}

func parseBool(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b
}

// validate enforces §3's TransformOptions invariants.
func validate(opts TransformOptions) error {
	switch opts.Mode {
	case ModeVideo, ModeFrame, ModeSpritesheet:
	default:
		return xerrors.NewValidationError(xerrors.InvalidMode, "mode", fmt.Sprintf("unsupported mode %q", opts.Mode))
	}

	if opts.Mode == ModeFrame && opts.Time == "" {
		return xerrors.NewValidationError(xerrors.MissingRequiredParameter, "time", "mode=frame requires time")
	}

	if opts.Mode == ModeSpritesheet {
		if opts.Autoplay || opts.Loop || opts.HasAudio {
			return xerrors.NewValidationError(xerrors.InvalidOptionCombination, "mode", "spritesheet forbids playback options")
		}
		if opts.Quality != "" && opts.Quality != "auto" {
			return xerrors.NewValidationError(xerrors.InvalidOptionCombination, "quality", "spritesheet forbids quality")
		}
		if opts.Compression != "" && opts.Compression != "auto" {
			return xerrors.NewValidationError(xerrors.InvalidOptionCombination, "compression", "spritesheet forbids compression")
		}
		if opts.Format != "" {
			return xerrors.NewValidationError(xerrors.InvalidOptionCombination, "format", "spritesheet forbids format")
		}
	}

	if opts.Width != 0 && (opts.Width < minDimension || opts.Width > maxDimension) {
		return xerrors.NewValidationError(xerrors.InvalidDimension, "width", fmt.Sprintf("width %d outside [%d,%d]", opts.Width, minDimension, maxDimension))
	}
	if opts.Height != 0 && (opts.Height < minDimension || opts.Height > maxDimension) {
		return xerrors.NewValidationError(xerrors.InvalidDimension, "height", fmt.Sprintf("height %d outside [%d,%d]", opts.Height, minDimension, maxDimension))
	}
	if opts.Version < 1 {
		return xerrors.NewValidationError(xerrors.InvalidDimension, "version", "version must be >= 1")
	}

	return nil
}
