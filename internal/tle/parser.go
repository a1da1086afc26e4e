package tle

import (
	"bufio"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/madddiyarn/regulus/internal/errors"
)

// Parse reads element sets in NORAD two-line format from r. A title line
// before line 1 is optional. Malformed entries are skipped with a warning.
func Parse(r io.Reader, logger *slog.Logger) ([]ElementSet, error) {
	scanner := bufio.NewScanner(r)
	var lines []string
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading element sets")
	}

	var sets []ElementSet
	for i := 0; i+1 < len(lines); {
		name := ""
		if !strings.HasPrefix(lines[i], "1 ") {
			name = strings.TrimSpace(lines[i])
			i++
			if i+1 >= len(lines) {
				break
			}
		}
		line1, line2 := lines[i], lines[i+1]

		if !strings.HasPrefix(line1, "1 ") || !strings.HasPrefix(line2, "2 ") {
			logger.Warn("skipping malformed element set", "line_index", i, "name", name)
			i++
			continue
		}
		i += 2

		es, err := parseLines(name, line1, line2)
		if err != nil {
			logger.Warn("skipping element set", "name", name, "error", err)
			continue
		}
		sets = append(sets, es)
	}

	return sets, nil
}

func parseLines(name, line1, line2 string) (ElementSet, error) {
	if err := ValidateLines(line1, line2); err != nil {
		return ElementSet{}, err
	}

	// Catalog number: columns 3-7 on both lines.
	idStr := strings.TrimSpace(line1[2:7])
	objectID, err := strconv.Atoi(idStr)
	if err != nil {
		return ElementSet{}, errors.Newf("invalid catalog number %q", idStr)
	}
	if id2 := strings.TrimSpace(line2[2:7]); id2 != idStr {
		return ElementSet{}, errors.Newf("catalog number mismatch: line 1 %q, line 2 %q", idStr, id2)
	}

	// Epoch: columns 19-32 of line 1.
	epochStr := strings.TrimSpace(line1[18:32])
	epoch, err := parseEpoch(epochStr)
	if err != nil {
		return ElementSet{}, errors.Wrapf(err, "object %d", objectID)
	}

	if name == "" {
		name = strconv.Itoa(objectID)
	}
	return ElementSet{
		ObjectID: objectID,
		Name:     name,
		Epoch:    epoch,
		Line1:    line1,
		Line2:    line2,
	}, nil
}

// parseEpoch converts a TLE epoch string in YYDDD.DDDDDDDD format to time.Time.
// Year 00-56 → 2000s, 57-99 → 1900s.
func parseEpoch(s string) (time.Time, error) {
	if len(s) < 5 {
		return time.Time{}, errors.Newf("epoch string too short: %q", s)
	}

	year, err := strconv.Atoi(s[:2])
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "invalid epoch year %q", s[:2])
	}
	if year >= 57 {
		year += 1900
	} else {
		year += 2000
	}

	dayOfYear, err := strconv.ParseFloat(s[2:], 64)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "invalid epoch day %q", s[2:])
	}
	if dayOfYear < 1 || dayOfYear >= 367 {
		return time.Time{}, errors.Newf("epoch day %g out of range", dayOfYear)
	}

	// dayOfYear is 1-based: day 1.0 = Jan 1 00:00.
	start := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	return start.Add(time.Duration((dayOfYear - 1) * float64(24*time.Hour))), nil
}
