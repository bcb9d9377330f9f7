package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ncsaPattern matches one NCSA-combined access log line. The referrer and
// user agent group is optional so plain common-format lines parse too.
var ncsaPattern = regexp.MustCompile(
	`^(\S+) \S+ \S+ \[(\d+)/(\w+)/(\d+):(\d+):(\d+):(\d+) ([^\]]+)\] "([^"]*)" (\d\d\d) (\S+)(?: "([^"]*)" "([^"]*)")?`)

// controlPattern recognizes in-band control lines such as *FLUSH k=v.
var controlPattern = regexp.MustCompile(`^\*([A-Z]+)(?:\s+(.+))?$`)

// fileMarkPattern recognizes the tail provider's file-switch marker.
var fileMarkPattern = regexp.MustCompile(`^==> (.*) <==$`)

// months maps NCSA month names onto zero-padded numbers.
var months = map[string]string{
	"Jan": "01", "Feb": "02", "Mar": "03", "Apr": "04",
	"May": "05", "Jun": "06", "Jul": "07", "Aug": "08",
	"Sep": "09", "Oct": "10", "Nov": "11", "Dec": "12",
}

type (
	//Record is one parsed access log entry, immutable after parse
	Record struct {
		File      string // input file the line came from
		LogLine   string // the verbatim line
		Client    string // source address
		Date      string // YYYY-MM-DD
		Time      string // HH:MM:SS
		Sec       int    // seconds of day
		TZ        string
		Method    string
		URL       string
		Protocol  string
		Status    string // 3-digit string
		Bytes     string
		Referrer  string
		UserAgent string
	}

	//Control is one in-band *NAME control line with its k=v arguments
	Control struct {
		Name string
		Rest string // raw argument text, for positional arguments
		Args map[string]string
	}
)

// ParseRecord extracts a Record from one access log line. Lines that do not
// match the NCSA-combined pattern are silently dropped (ok is false).
func ParseRecord(file string, line string) (*Record, bool) {
	m := ncsaPattern.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}

	month, ok := months[m[3]]
	if !ok {
		return nil, false
	}

	day, _ := strconv.Atoi(m[2])
	hour, _ := strconv.Atoi(m[5])
	minute, _ := strconv.Atoi(m[6])
	second, _ := strconv.Atoi(m[7])

	rec := &Record{
		File:      file,
		LogLine:   line,
		Client:    m[1],
		Date:      fmt.Sprintf("%s-%s-%02d", m[4], month, day),
		Time:      fmt.Sprintf("%02d:%02d:%02d", hour, minute, second),
		Sec:       hour*3600 + minute*60 + second,
		TZ:        m[8],
		Status:    m[10],
		Bytes:     m[11],
		Referrer:  m[12],
		UserAgent: m[13],
	}

	// METHOD SP URL SP PROTOCOL; a request that does not split cleanly is
	// treated as a bare URL.
	request := m[9]
	parts := strings.SplitN(request, " ", 3)
	if len(parts) == 3 {
		rec.Method, rec.URL, rec.Protocol = parts[0], parts[1], parts[2]
	} else {
		rec.URL = request
	}
	return rec, true
}

// ParseControl recognizes a control line and splits its arguments into k=v
// pairs; bare words become keys with empty values.
func ParseControl(line string) (*Control, bool) {
	m := controlPattern.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}
	ctl := &Control{
		Name: m[1],
		Rest: m[2],
		Args: make(map[string]string),
	}
	if m[2] != "" {
		for _, field := range strings.Fields(m[2]) {
			if idx := strings.Index(field, "="); idx > 0 {
				ctl.Args[field[:idx]] = field[idx+1:]
			} else {
				ctl.Args[field] = ""
			}
		}
	}
	return ctl, true
}

// ParseFileMark recognizes the tail provider's "==> path <==" marker and
// returns the new file identity.
func ParseFileMark(line string) (string, bool) {
	m := fileMarkPattern.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Fields exposes the record as a variable map for trigger selection and
// message templating.
func (r *Record) Fields() map[string]string {
	return map[string]string{
		"file":       r.File,
		"logline":    r.LogLine,
		"client":     r.Client,
		"date":       r.Date,
		"time":       r.Time,
		"sec":        strconv.Itoa(r.Sec),
		"tz":         r.TZ,
		"method":     r.Method,
		"url":        r.URL,
		"protocol":   r.Protocol,
		"status":     r.Status,
		"bytes":      r.Bytes,
		"referrer":   r.Referrer,
		"user_agent": r.UserAgent,
	}
}
