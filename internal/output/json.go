package output

import (
	"bytes"
	"encoding/json"
	"io"
)

// RenderJSON writes v as indented JSON. Callers minimize the result to a
// preset before rendering; this layer never reshapes the payload.
func RenderJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// RenderedSize reports how many characters the standard JSON rendering of v
// would occupy. Used to pick a preset before writing anything.
func RenderedSize(v any) int {
	var buf bytes.Buffer
	if err := RenderJSON(&buf, v); err != nil {
		return 0
	}
	return buf.Len()
}
