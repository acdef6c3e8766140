package dates

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tradegazette/gsearch/internal/lookup"
)

// Turkish month names, accent-folded the same way lookup keys are.
var monthsTR = map[string]time.Month{
	"ocak": 1, "subat": 2, "mart": 3, "nisan": 4, "mayis": 5, "haziran": 6,
	"temmuz": 7, "agustos": 8, "eylul": 9, "ekim": 10, "kasim": 11, "aralik": 12,
}

var (
	reRangeDots = regexp.MustCompile(`^\s*(\d{4}-\d{2}-\d{2})\s*[.]{2}\s*(\d{4}-\d{2}-\d{2})\s*$`)
	reYearMonth = regexp.MustCompile(`^\s*(\d{4})-(\d{1,2})\s*$`)
	reYearOnly  = regexp.MustCompile(`^\s*(\d{4})\s*$`)
	reLastDays  = regexp.MustCompile(`(?i)^\s*son\s+(\d+)\s*g[uü]n\s*$`)
	reLastYears = regexp.MustCompile(`(?i)^\s*son\s+(\d+)\s*y[iı]l\s*$`)
)

// ParseRangeText maps a free-text date phrase to an inclusive ISO range.
// Supported forms: "son N gün", "son N yıl", "YYYY-MM-DD..YYYY-MM-DD",
// "YYYY-MM", "Ocak 2025", "2019". ok is false for anything else.
func ParseRangeText(text string) (fromISO, toISO string, ok bool) {
	return parseRangeAt(text, time.Now().UTC())
}

func parseRangeAt(text string, now time.Time) (string, string, bool) {
	s := strings.TrimSpace(text)
	if s == "" {
		return "", "", false
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	if m := reLastDays.FindStringSubmatch(strings.ToLower(s)); m != nil {
		n := clampInt(atoi(m[1]), 1, 3650)
		start := today.AddDate(0, 0, -n)
		return start.Format(isoLayout), today.Format(isoLayout), true
	}

	if m := reLastYears.FindStringSubmatch(strings.ToLower(s)); m != nil {
		n := clampInt(atoi(m[1]), 1, 200)
		start := today.AddDate(-n, 0, 0)
		return start.Format(isoLayout), today.Format(isoLayout), true
	}

	if m := reRangeDots.FindStringSubmatch(s); m != nil {
		a, b := m[1], m[2]
		if a > b {
			a, b = b, a
		}
		return a, b, true
	}

	if m := reYearMonth.FindStringSubmatch(s); m != nil {
		y, mth := atoi(m[1]), atoi(m[2])
		if mth >= 1 && mth <= 12 {
			return monthRange(y, time.Month(mth))
		}
		return "", "", false
	}

	// "Ocak 2025"
	if parts := strings.Fields(lookup.Normalize(s)); len(parts) == 2 {
		if mth, found := monthsTR[parts[0]]; found {
			if y, err := strconv.Atoi(parts[1]); err == nil {
				return monthRange(y, mth)
			}
		}
	}

	if m := reYearOnly.FindStringSubmatch(s); m != nil {
		y := atoi(m[1])
		start := time.Date(y, time.January, 1, 0, 0, 0, 0, time.UTC)
		end := time.Date(y, time.December, 31, 0, 0, 0, 0, time.UTC)
		return start.Format(isoLayout), end.Format(isoLayout), true
	}

	return "", "", false
}

func monthRange(y int, m time.Month) (string, string, bool) {
	start := time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, -1)
	return start.Format(isoLayout), end.Format(isoLayout), true
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func clampInt(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
