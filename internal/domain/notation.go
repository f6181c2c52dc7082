package domain

import (
	"regexp"
	"strings"
)

var (
	coordinatePattern  = regexp.MustCompile(`^[a-h][1-8][a-h][1-8][qrbn]?$`)
	pawnCapturePattern = regexp.MustCompile(`^[a-h]x[a-h][1-8](=?[QRBN])?[+#]?$`)
)

// IsCoordinateNotation reports whether s looks like a coordinate (UCI) move
// such as e2e4 or e7e8q. All-lowercase strings of four or more characters
// that are not pawn captures are treated the same way.
func IsCoordinateNotation(s string) bool {
	s = strings.TrimSpace(s)
	if coordinatePattern.MatchString(strings.ToLower(s)) {
		return true
	}
	if len(s) >= 4 && s == strings.ToLower(s) && !pawnCapturePattern.MatchString(s) {
		return true
	}
	return false
}
