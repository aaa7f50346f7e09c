package analyzer

type Severity int

const (
	Low Severity = iota
	Medium
	High
	Critical
)

func (s Severity) String() string {
	switch s {
	case Low:
		return "LOW"
	case Medium:
		return "MEDIUM"
	case High:
		return "HIGH"
	case Critical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

func (s Severity) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Kind tags the anti-pattern a finding reports. One tagged variant per kind,
// validated at construction by the rule that emits it.
type Kind string

const (
	KindFullScan           Kind = "full_scan"
	KindCartesian          Kind = "cartesian"
	KindStaleStats         Kind = "stale_stats"
	KindPartitionPruneFail Kind = "partition_prune_fail"
	KindUnusedIndex        Kind = "unused_index"
)

// Finding is one ranked anti-pattern diagnostic.
type Finding struct {
	Kind     Kind     `json:"kind"`
	Severity Severity `json:"severity"`
	Owner    string   `json:"owner,omitempty"`
	Object   string   `json:"object,omitempty"`
	// Position is the pre-order index of the plan node that triggered the
	// finding; it is the tie-break after severity.
	Position int    `json:"position"`
	Evidence string `json:"evidence"`
	Fix      string `json:"fix"`
}
