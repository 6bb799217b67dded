package mikrotik

import (
	"regexp"
	"strconv"
	"time"
)

// RouterOS reports uptimes as e.g. "2h30m" or "1d5h4m3s"; every component
// is optional.
var uptimePattern = regexp.MustCompile(`^(?:(\d+)d)?(?:(\d+)h)?(?:(\d+)m)?(?:(\d+)s)?$`)

// ParseUptime converts a RouterOS uptime string to a duration. Empty or
// unparsable input yields 0.
func ParseUptime(s string) time.Duration {
	m := uptimePattern.FindStringSubmatch(s)
	if m == nil {
		return 0
	}

	days := atoi(m[1])
	hours := atoi(m[2])
	minutes := atoi(m[3])
	seconds := atoi(m[4])

	total := days*24*3600 + hours*3600 + minutes*60 + seconds
	return time.Duration(total) * time.Second
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
