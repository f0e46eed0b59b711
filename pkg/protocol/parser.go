package protocol

import (
	"strconv"
	"strings"
)

// Parser turns a byte stream into records. Feed may be called with arbitrary
// chunks; bytes belonging to an incomplete record stay buffered until the
// terminating blank line arrives.
type Parser struct {
	partial []byte
}

// NewParser creates an empty parser.
func NewParser() *Parser {
	return &Parser{}
}

// Feed appends data to the parse buffer and returns every record completed by
// it, in arrival order. A malformed status line aborts the stream with
// ErrInvalidStatusLine.
func (p *Parser) Feed(data []byte) ([]*Message, error) {
	p.partial = append(p.partial, data...)

	var out []*Message
	for {
		end := findRecordEnd(p.partial)
		if end < 0 {
			return out, nil
		}
		raw := string(p.partial[:end])
		p.partial = p.partial[end:]
		for len(p.partial) > 0 && (p.partial[0] == '\n' || p.partial[0] == '\r') {
			p.partial = p.partial[1:]
		}
		if strings.TrimSpace(raw) == "" {
			continue
		}
		msg, err := parseRecord(raw)
		if err != nil {
			return out, err
		}
		out = append(out, msg)
	}
}

// Pending reports whether the parser holds bytes of an unfinished record.
func (p *Parser) Pending() bool {
	return len(strings.TrimSpace(string(p.partial))) > 0
}

// findRecordEnd locates the blank line terminating the first record, returning
// the offset just past the record body (before the blank line), or -1 when the
// record is still incomplete.
func findRecordEnd(buf []byte) int {
	for i := 0; i+1 < len(buf); i++ {
		if buf[i] != '\n' {
			continue
		}
		j := i + 1
		if buf[j] == '\r' && j+1 < len(buf) {
			j++
		}
		if buf[j] == '\n' {
			return i
		}
	}
	return -1
}

func parseRecord(raw string) (*Message, error) {
	lines := strings.Split(raw, "\n")
	status := strings.TrimRight(lines[0], "\r")

	codeEnd := 0
	for codeEnd < len(status) && status[codeEnd] >= '0' && status[codeEnd] <= '9' {
		codeEnd++
	}
	if codeEnd == 0 {
		return nil, WrapInvalidStatusLine(status)
	}
	code, err := strconv.Atoi(status[:codeEnd])
	if err != nil {
		return nil, WrapInvalidStatusLine(status)
	}
	msg := NewMessage(code, strings.TrimSpace(status[codeEnd:]))

	lastKey := ""
	for _, line := range lines[1:] {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		// continuation lines fold into the previous value
		if line[0] == ' ' || line[0] == '\t' {
			if lastKey != "" {
				msg.Set(lastKey, msg.Get(lastKey)+"\n"+strings.TrimLeft(line, " \t"))
			}
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		lastKey = strings.TrimSpace(key)
		msg.Set(lastKey, strings.TrimSpace(value))
	}
	return msg, nil
}
