package adapter

import (
	"bufio"
	"bytes"
	"strconv"
	"strings"

	"bencher/internal/apierrors"
)

// MagnitudeAdapter parses the line-oriented "benchmark/measure value unit"
// fixture format used by seed data and tests: one measurement per line,
// whitespace-separated, blank lines and lines starting with "#" ignored.
// The benchmark and measure are split out of the first field on the last
// "/" (e.g. "encode/throughput 128.5 MB/s").
type MagnitudeAdapter struct{}

func (MagnitudeAdapter) Parse(iteration []byte) ([]Measurement, error) {
	var out []Measurement

	scanner := bufio.NewScanner(bytes.NewReader(iteration))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 2 {
			return nil, apierrors.BadRequest("magnitude adapter: line %d: expected \"name value [unit]\", got %q", lineNo, line)
		}

		name := fields[0]
		idx := strings.LastIndex(name, "/")
		if idx < 0 || idx == 0 || idx == len(name)-1 {
			return nil, apierrors.BadRequest("magnitude adapter: line %d: name %q must be \"benchmark/measure\"", lineNo, name)
		}
		benchmark, measure := name[:idx], name[idx+1:]

		value, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, apierrors.BadRequest("magnitude adapter: line %d: invalid value %q", lineNo, fields[1])
		}

		out = append(out, Measurement{Benchmark: benchmark, Measure: measure, Value: value})
	}
	if err := scanner.Err(); err != nil {
		return nil, apierrors.Wrap(apierrors.KindBadRequest, err, "reading magnitude adapter output")
	}

	return out, nil
}
