package logs

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"splicer/internal/logging"
)

// record keys that Format prints in fixed positions.
var headerKeys = []string{"ts", "level", "msg", logging.FieldComponent}

// MatchesJob reports whether a JSON log line carries jobID.
func MatchesJob(line, jobID string) bool {
	var fields map[string]any
	if err := json.Unmarshal([]byte(line), &fields); err != nil {
		return false
	}
	value, _ := fields[logging.FieldJobID].(string)
	return value != "" && strings.HasPrefix(value, jobID)
}

// Format renders a JSON log line as "ts LEVEL [component] msg key=value ...".
// Lines that are not JSON objects are returned unchanged.
func Format(line string) string {
	var fields map[string]any
	if err := json.Unmarshal([]byte(line), &fields); err != nil {
		return line
	}

	var b strings.Builder
	if ts, ok := fields["ts"].(string); ok {
		b.WriteString(ts)
		b.WriteByte(' ')
	}
	level, _ := fields["level"].(string)
	fmt.Fprintf(&b, "%-5s ", strings.ToUpper(level))
	if component, ok := fields[logging.FieldComponent].(string); ok && component != "" {
		fmt.Fprintf(&b, "[%s] ", component)
	}
	msg, _ := fields["msg"].(string)
	b.WriteString(msg)

	keys := make([]string, 0, len(fields))
	for key := range fields {
		if !slices.Contains(headerKeys, key) {
			keys = append(keys, key)
		}
	}
	slices.Sort(keys)
	for _, key := range keys {
		fmt.Fprintf(&b, " %s=%v", key, fields[key])
	}
	return b.String()
}
