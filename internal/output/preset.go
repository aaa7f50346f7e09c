package output

import (
	"fmt"

	"github.com/aviciot/queryscope/internal/qerror"
)

// Preset controls how much of the analysis is included in the response.
type Preset int

const (
	PresetStandard Preset = iota
	PresetCompact
	PresetMinimal
)

// Auto-downgrade thresholds over the rendered standard-preset size.
const (
	CompactThresholdChars = 10_000
	MinimalThresholdChars = 50_000
)

func (p Preset) String() string {
	switch p {
	case PresetCompact:
		return "compact"
	case PresetMinimal:
		return "minimal"
	default:
		return "standard"
	}
}

func (p Preset) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func ParsePreset(s string) (Preset, error) {
	switch s {
	case "", "standard":
		return PresetStandard, nil
	case "compact":
		return PresetCompact, nil
	case "minimal":
		return PresetMinimal, nil
	default:
		return PresetStandard, qerror.Newf(qerror.UsageError,
			"valid presets are standard, compact, minimal",
			"unknown preset %q", s)
	}
}

// Depth is how far the pipeline goes: plan shape only, plan plus object
// statistics, or the full analysis with history.
type Depth int

const (
	DepthStandard Depth = iota
	DepthWithMetadata
	DepthPlanOnly
)

func (d Depth) String() string {
	switch d {
	case DepthPlanOnly:
		return "plan_only"
	case DepthWithMetadata:
		return "with_metadata"
	default:
		return "standard"
	}
}

func (d Depth) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func ParseDepth(s string) (Depth, error) {
	switch s {
	case "", "standard":
		return DepthStandard, nil
	case "with_metadata":
		return DepthWithMetadata, nil
	case "plan_only":
		return DepthPlanOnly, nil
	default:
		return DepthStandard, qerror.Newf(qerror.UsageError,
			"valid depths are standard, with_metadata, plan_only",
			"unknown depth %q", s)
	}
}

// SelectPreset downgrades the requested preset when the full rendering would
// be unreasonably large. Explicit requests for smaller presets are honored
// as-is; the function never upgrades.
func SelectPreset(requested Preset, standardSize int) (Preset, string) {
	if requested == PresetMinimal {
		return PresetMinimal, ""
	}
	if standardSize >= MinimalThresholdChars {
		return PresetMinimal, fmt.Sprintf(
			"output downgraded to minimal preset: full result is %d chars", standardSize)
	}
	if requested == PresetCompact {
		return PresetCompact, ""
	}
	if standardSize >= CompactThresholdChars {
		return PresetCompact, fmt.Sprintf(
			"output downgraded to compact preset: full result is %d chars", standardSize)
	}
	return requested, ""
}
