// Package waypoint reads and writes QGC WPL 110 mission files.
package waypoint

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/autopeer-io/groundpeer/pkg/errdefs"
)

// minFields is the number of tab-separated columns in a mission row.
const minFields = 12

// FormatError describes a malformed mission file.
type FormatError struct {
	Line   int
	Reason string
}

func (e *FormatError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
	}
	return e.Reason
}

func (e *FormatError) Unwrap() error { return errdefs.ErrFormat }

// Write overwrites path with the encoded mission.
func Write(path string, m Mission) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w: %w", path, errdefs.ErrIO, err)
	}

	if err := Encode(f, m); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w: %w", path, errdefs.ErrIO, err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w: %w", path, errdefs.ErrIO, err)
	}
	return nil
}

// Read parses the mission file at path.
func Read(path string) (Mission, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w: %w", path, errdefs.ErrIO, err)
	}
	defer f.Close()

	m, err := Decode(f)
	if err != nil {
		var fe *FormatError
		if errors.As(err, &fe) {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return nil, fmt.Errorf("read %s: %w: %w", path, errdefs.ErrIO, err)
	}
	return m, nil
}

// Encode writes the header and one row per command.
func Encode(w io.Writer, m Mission) error {
	bw := bufio.NewWriter(w)

	if _, err := bw.WriteString(Header + "\n"); err != nil {
		return err
	}

	for _, c := range m {
		if _, err := bw.WriteString(formatRow(c)); err != nil {
			return err
		}
	}

	return bw.Flush()
}

func formatRow(c Command) string {
	return fmt.Sprintf("%d\t%d\t%d\t%d\t%.8f\t%.8f\t%.8f\t%.8f\t%.8f\t%.8f\t%.6f\t%d\n",
		c.Seq, boolToInt(c.Current), c.Frame, c.Command,
		c.Params[0], c.Params[1], c.Params[2], c.Params[3],
		c.Lat, c.Lon, c.Alt, boolToInt(c.AutoContinue))
}

// Decode parses a mission stream. Blank lines are skipped.
func Decode(r io.Reader) (Mission, error) {
	sc := bufio.NewScanner(r)

	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, err
		}
		return nil, &FormatError{Reason: "missing header"}
	}
	if strings.TrimRight(sc.Text(), "\r") != Header {
		return nil, &FormatError{Line: 1, Reason: fmt.Sprintf("unexpected header %q", sc.Text())}
	}

	var (
		m    Mission
		line = 1
	)
	for sc.Scan() {
		line++
		text := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(text) == "" {
			continue
		}

		c, err := parseRow(text)
		if err != nil {
			return nil, &FormatError{Line: line, Reason: err.Error()}
		}
		m = append(m, c)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	return m, nil
}

func parseRow(text string) (Command, error) {
	fields := strings.Split(text, "\t")
	if len(fields) < minFields {
		return Command{}, fmt.Errorf("want %d fields, got %d", minFields, len(fields))
	}

	var (
		c   Command
		err error
	)

	seq, err := strconv.ParseUint(fields[0], 10, 32)
	if err != nil {
		return c, fmt.Errorf("seq: %w", err)
	}
	c.Seq = uint(seq)

	if c.Current, err = parseBool(fields[1]); err != nil {
		return c, fmt.Errorf("current: %w", err)
	}

	frame, err := strconv.ParseUint(fields[2], 10, 8)
	if err != nil {
		return c, fmt.Errorf("frame: %w", err)
	}
	c.Frame = Frame(frame)

	cmd, err := strconv.ParseUint(fields[3], 10, 16)
	if err != nil {
		return c, fmt.Errorf("command: %w", err)
	}
	c.Command = CommandType(cmd)

	for i := range c.Params {
		if c.Params[i], err = strconv.ParseFloat(fields[4+i], 64); err != nil {
			return c, fmt.Errorf("param%d: %w", i+1, err)
		}
	}

	if c.Lat, err = strconv.ParseFloat(fields[8], 64); err != nil {
		return c, fmt.Errorf("lat: %w", err)
	}
	if c.Lon, err = strconv.ParseFloat(fields[9], 64); err != nil {
		return c, fmt.Errorf("lon: %w", err)
	}
	if c.Alt, err = strconv.ParseFloat(fields[10], 64); err != nil {
		return c, fmt.Errorf("alt: %w", err)
	}
	if c.AutoContinue, err = parseBool(fields[11]); err != nil {
		return c, fmt.Errorf("autocontinue: %w", err)
	}

	return c, nil
}

func parseBool(s string) (bool, error) {
	switch strings.TrimSpace(s) {
	case "0":
		return false, nil
	case "1":
		return true, nil
	default:
		return false, fmt.Errorf("invalid flag %q", s)
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
