package serialmux

import "strings"

// LineKind is the coarse format of one line from a joint state device.
type LineKind int

const (
	LineEmpty LineKind = iota
	LineComment
	LineJSON
	LineCSV
	LineUnknown
)

func (k LineKind) String() string {
	switch k {
	case LineEmpty:
		return "empty"
	case LineComment:
		return "comment"
	case LineJSON:
		return "json"
	case LineCSV:
		return "csv"
	default:
		return "unknown"
	}
}

// ClassifyLine inspects a line and returns its format. JSON lines are
// objects; CSV lines are "name=position" pairs separated by commas; lines
// starting with '#' are device comments.
func ClassifyLine(line string) LineKind {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return LineEmpty
	case strings.HasPrefix(line, "#"):
		return LineComment
	case strings.HasPrefix(line, "{"):
		return LineJSON
	case strings.Contains(line, "="):
		return LineCSV
	default:
		return LineUnknown
	}
}
