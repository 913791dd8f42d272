// Package sdp writes and reads the session descriptions RTP receivers use to
// join a stream, e.g. `ffplay stream.sdp`.
package sdp

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Implements the parts of RFC 4566 (https://tools.ietf.org/html/rfc4566)
// that describe a single unicast or multicast RTP stream.

type Session struct {
	Version    int
	Origin     Origin
	Name       string
	Info       string      // Optional
	Connection *Connection // Optional
	Time       []Time
	Attributes []Attribute
	Media      []Media
}

type Origin struct {
	Username       string
	SessionId      string
	SessionVersion uint64
	NetworkType    string
	AddressType    string
	Address        string
}

type Connection struct {
	NetworkType string
	AddressType string
	Address     string
}

type Time struct {
	Start *time.Time
	Stop  *time.Time // Optional
}

type Attribute struct {
	Key   string
	Value string
}

type Media struct {
	Type   string
	Port   int
	Proto  string
	Format []string

	Info       string      // Optional
	Connection *Connection // Optional
	Attributes []Attribute
}

type writer strings.Builder

func (w *writer) Write(fragments ...string) {
	for _, s := range fragments {
		(*strings.Builder)(w).WriteString(s)
	}
}

func (w *writer) Writef(format string, args ...interface{}) {
	fmt.Fprintf((*strings.Builder)(w), format, args...)
}

func (w *writer) String() string {
	return (*strings.Builder)(w).String()
}

type parseError struct {
	which string
	value string
	cause error
}

func (e *parseError) Error() string {
	msg := fmt.Sprintf("sdp: invalid %s description %q", e.which, e.value)
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

func (o *Origin) String() string {
	return fmt.Sprintf("%s %s %d %s %s %s",
		o.Username, o.SessionId, o.SessionVersion, o.NetworkType, o.AddressType, o.Address)
}

func parseOrigin(s string) (o Origin, err error) {
	_, err = fmt.Sscanf(s, "%s %s %d %s %s %s",
		&o.Username, &o.SessionId, &o.SessionVersion, &o.NetworkType, &o.AddressType, &o.Address)
	if err != nil {
		err = &parseError{"origin", s, err}
	}
	return
}

func (c *Connection) String() string {
	return fmt.Sprintf("%s %s %s", c.NetworkType, c.AddressType, c.Address)
}

func parseConnection(s string) (c Connection, err error) {
	_, err = fmt.Sscanf(s, "%s %s %s", &c.NetworkType, &c.AddressType, &c.Address)
	if err != nil {
		err = &parseError{"connection", s, err}
	}
	return
}

func (t Time) String() string {
	return fmt.Sprintf("%d %d", toNtp(t.Start), toNtp(t.Stop))
}

func parseTime(s string) (t Time, err error) {
	var start, stop int64
	_, err = fmt.Sscanf(s, "%d %d", &start, &stop)
	t.Start = fromNtp(start)
	t.Stop = fromNtp(stop)
	if err != nil {
		err = &parseError{"time", s, err}
	}
	return
}

// Difference between NTP timestamps (measured from 1900) and Unix timestamps
// (measured from 1970).
const ntpOffset = 2208988800

func toNtp(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return t.Unix() + ntpOffset
}

func fromNtp(ntp int64) *time.Time {
	if ntp == 0 {
		return nil
	}
	t := time.Unix(ntp-ntpOffset, 0)
	return &t
}

func (a Attribute) String() string {
	if a.Value == "" {
		return a.Key
	}
	return a.Key + ":" + a.Value
}

func parseAttribute(s string) Attribute {
	f := strings.SplitN(s, ":", 2)
	a := Attribute{Key: f[0]}
	if len(f) == 2 {
		a.Value = f[1]
	}
	return a
}

func getAttr(attrs []Attribute, key string) string {
	for _, a := range attrs {
		if a.Key == key {
			return a.Value
		}
	}
	return ""
}

func (s *Session) GetAttr(key string) string {
	return getAttr(s.Attributes, key)
}

func (m *Media) GetAttr(key string) string {
	return getAttr(m.Attributes, key)
}

// Format-specific attribute for one payload type, e.g. the value of
// "a=fmtp:96 ..." for key "fmtp" and payload type 96.
func (m *Media) PayloadAttr(key string, payloadType int) string {
	prefix := strconv.Itoa(payloadType) + " "
	for _, a := range m.Attributes {
		if a.Key == key && strings.HasPrefix(a.Value, prefix) {
			return a.Value[len(prefix):]
		}
	}
	return ""
}

func (m *Media) String() string {
	var w writer
	w.Writef("m=%s %d %s %s\r\n", m.Type, m.Port, m.Proto, strings.Join(m.Format, " "))
	if m.Info != "" {
		w.Write("i=", m.Info, "\r\n")
	}
	if m.Connection != nil {
		w.Write("c=", m.Connection.String(), "\r\n")
	}
	for _, a := range m.Attributes {
		w.Write("a=", a.String(), "\r\n")
	}
	return w.String()
}

// Returns the remaining unparsed SDP text as 'rtext'.
func parseMedia(text string) (m Media, rtext string, err error) {
	line, more := nextLine(text)
	fields := strings.Fields(strings.TrimPrefix(line, "m="))
	if !strings.HasPrefix(line, "m=") || len(fields) < 3 {
		return m, text, &parseError{"media", line, nil}
	}
	m.Type = fields[0]
	if m.Port, err = strconv.Atoi(fields[1]); err != nil {
		return m, text, &parseError{"media", line, err}
	}
	m.Proto = fields[2]
	m.Format = fields[3:]

	for text = more; text != ""; text = more {
		line, more = nextLine(text)
		typecode, value, err := splitTypeValue(line)
		if err != nil {
			return m, text, err
		}
		switch typecode {
		case 'm':
			return m, text, nil
		case 'i':
			m.Info = value
		case 'c':
			c, err := parseConnection(value)
			if err != nil {
				return m, text, err
			}
			m.Connection = &c
		case 'a':
			m.Attributes = append(m.Attributes, parseAttribute(value))
		}
	}
	return m, text, nil
}

func (s *Session) String() string {
	var w writer
	w.Writef("v=%d\r\n", s.Version)
	w.Write("o=", s.Origin.String(), "\r\n")
	w.Write("s=", s.Name, "\r\n")
	if s.Info != "" {
		w.Write("i=", s.Info, "\r\n")
	}
	if s.Connection != nil {
		w.Write("c=", s.Connection.String(), "\r\n")
	}
	for _, t := range s.Time {
		w.Write("t=", t.String(), "\r\n")
	}
	for _, a := range s.Attributes {
		w.Write("a=", a.String(), "\r\n")
	}
	for _, m := range s.Media {
		w.Write(m.String())
	}
	return w.String()
}

// ParseSession reads a description such as Session.String writes. The
// streamer itself only writes descriptions; this is the receiving side, used
// to check what was written.
func ParseSession(text string) (s Session, err error) {
	for text != "" {
		line, more := nextLine(text)
		if line == "" {
			text = more
			continue
		}
		typecode, value, err := splitTypeValue(line)
		if err != nil {
			return s, err
		}
		switch typecode {
		case 'v':
			s.Version, err = strconv.Atoi(value)
		case 'o':
			s.Origin, err = parseOrigin(value)
		case 's':
			s.Name = value
		case 'i':
			s.Info = value
		case 'c':
			var c Connection
			c, err = parseConnection(value)
			s.Connection = &c
		case 't':
			var t Time
			t, err = parseTime(value)
			s.Time = append(s.Time, t)
		case 'a':
			s.Attributes = append(s.Attributes, parseAttribute(value))
		case 'm':
			var m Media
			m, more, err = parseMedia(text)
			s.Media = append(s.Media, m)
		}
		if err != nil {
			return s, errors.Wrap(err, "parse session")
		}
		text = more
	}
	return s, nil
}

func nextLine(input string) (line string, remainder string) {
	n := strings.IndexByte(input, '\n')
	if n == -1 {
		return input, ""
	}
	line = input[:n]
	// Leave off the carriage return.
	line = strings.TrimSuffix(line, "\r")
	return line, input[n+1:]
}

func splitTypeValue(line string) (typecode byte, value string, err error) {
	if len(line) < 2 || line[1] != '=' {
		return 0, "", &parseError{"line", line, nil}
	}
	return line[0], line[2:], nil
}
