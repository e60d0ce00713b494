package davclient

import "strings"

const (
	beginCalendar = "BEGIN:VCALENDAR"
	endCalendar   = "END:VCALENDAR"
	crlf          = "\r\n"
)

// MergeFragments joins calendar-data fragments into a single VCALENDAR.
// Every line that is only a VCALENDAR wrapper is dropped, the remaining lines
// keep their order and terminators, and the result gets one outer wrapper.
func MergeFragments(fragments []string) string {
	var b strings.Builder
	b.WriteString(beginCalendar + crlf)

	for _, frag := range fragments {
		for _, line := range strings.SplitAfter(frag, "\n") {
			if line == "" {
				continue
			}
			switch strings.TrimSpace(line) {
			case beginCalendar, endCalendar:
				continue
			}
			b.WriteString(line)
			if !strings.HasSuffix(line, "\n") {
				b.WriteString(crlf)
			}
		}
	}

	b.WriteString(endCalendar + crlf)
	return b.String()
}
