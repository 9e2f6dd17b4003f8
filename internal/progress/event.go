// Package progress follows a video download from request to completion over
// a server-sent event feed.
package progress

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

type Status string

const (
	StatusStarting    Status = "starting"
	StatusStarted     Status = "started"
	StatusDownloading Status = "downloading"
	StatusFinished    Status = "finished"
	StatusComplete    Status = "complete"
	StatusError       Status = "error"
)

// Terminal reports whether no further events follow s.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusError
}

// Event is one message on the progress feed. Percent arrives either as a
// number or as text such as "42%".
type Event struct {
	Status     Status   `json:"status"`
	Percent    *Percent `json:"percent,omitempty"`
	Downloaded int64    `json:"downloaded,omitempty"`
	Total      int64    `json:"total,omitempty"`
	Speed      string   `json:"speed,omitempty"`
	ETA        string   `json:"eta,omitempty"`
	Duration   float64  `json:"duration,omitempty"`
	Title      string   `json:"title,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// Percent holds a percentage that was sent as a JSON number or string.
type Percent struct {
	Number *float64
	Text   string
}

func NumberPercent(v float64) *Percent {
	return &Percent{Number: &v}
}

func TextPercent(s string) *Percent {
	return &Percent{Text: s}
}

func (p *Percent) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*p = Percent{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*p = Percent{Text: s}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("percent must be a number or string: %w", err)
	}
	*p = Percent{Number: &v}
	return nil
}

func (p Percent) MarshalJSON() ([]byte, error) {
	if p.Number != nil {
		return json.Marshal(*p.Number)
	}
	return json.Marshal(p.Text)
}

// PercentOf resolves the display percentage of ev: a numeric percent wins,
// then downloaded/total, then the leading integer of a textual percent,
// else 0. The result is clamped to [0, 100].
func PercentOf(ev Event) int {
	var v float64
	switch {
	case ev.Percent != nil && ev.Percent.Number != nil:
		v = *ev.Percent.Number
	case ev.Total != 0 && ev.Downloaded != 0:
		v = float64(ev.Downloaded) / float64(ev.Total) * 100
	case ev.Percent != nil && ev.Percent.Text != "":
		v = float64(leadingInt(ev.Percent.Text))
	}
	if math.IsNaN(v) {
		return 0
	}
	return int(math.Max(0, math.Min(100, math.Round(v))))
}

// leadingInt parses an optionally signed run of digits at the start of s,
// ignoring leading whitespace. It returns 0 when there are no digits.
func leadingInt(s string) int {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}
	return n
}
