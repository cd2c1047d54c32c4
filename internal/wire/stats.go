// Package wire speaks the small part of the memcached text protocol that the
// driver does not cover: the stats family of commands.
//
//	request:  "stats" [" " <report>] "\r\n"
//	response: *("STAT " <name> " " <value> "\r\n") ("END" | "RESET" | "OK") "\r\n"
//	failure:  ("ERROR" | "CLIENT_ERROR <msg>" | "SERVER_ERROR <msg>") "\r\n"
package wire

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	ErrMalformed = errors.New("wire: malformed stats reply")
	crlf         = "\r\n"
)

// ServerError is an error reply from the server.
type ServerError struct {
	Kind string // ERROR, CLIENT_ERROR or SERVER_ERROR
	Msg  string
}

func (e *ServerError) Error() string {
	if e.Msg == "" {
		return "wire: " + e.Kind
	}
	return fmt.Sprintf("wire: %s %s", e.Kind, e.Msg)
}

// StatsCommand renders the request line for report ("" = general stats).
func StatsCommand(report string) string {
	if report == "" {
		return "stats" + crlf
	}
	return "stats " + report + crlf
}

// WriteStats writes the request line for report.
func WriteStats(w io.Writer, report string) error {
	_, err := io.WriteString(w, StatsCommand(report))
	return err
}

// ReadStats reads one stats reply up to and including its terminator line.
// Values keep their inner spaces ("STAT version 1.6.21 extra" => "1.6.21 extra").
func ReadStats(r *bufio.Reader) (map[string]string, error) {
	out := make(map[string]string)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
		line = strings.TrimRight(line, crlf)

		switch {
		case line == "END", line == "RESET", line == "OK":
			return out, nil
		case line == "ERROR":
			return nil, &ServerError{Kind: "ERROR"}
		case strings.HasPrefix(line, "CLIENT_ERROR"):
			return nil, &ServerError{Kind: "CLIENT_ERROR", Msg: strings.TrimSpace(line[len("CLIENT_ERROR"):])}
		case strings.HasPrefix(line, "SERVER_ERROR"):
			return nil, &ServerError{Kind: "SERVER_ERROR", Msg: strings.TrimSpace(line[len("SERVER_ERROR"):])}
		}

		name, value, ok := parseStat(line)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrMalformed, line)
		}
		out[name] = value
	}
}

func parseStat(line string) (name, value string, ok bool) {
	rest, found := strings.CutPrefix(line, "STAT ")
	if !found {
		return "", "", false
	}
	name, value, _ = strings.Cut(rest, " ")
	if name == "" {
		return "", "", false
	}
	return name, value, true
}
