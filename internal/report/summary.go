package report

import (
	"strconv"
	"strings"
	"time"

	"github.com/gve-sw/gve-devnet-webex-calling-detailed-report/internal/webex"
)

// GroupSummary aggregates calls for one department or user.
type GroupSummary struct {
	TotalCalls       int `json:"total_calls"`
	ConnectedCalls   int `json:"connected_calls"`
	VoicemailCalls   int `json:"voicemail_calls"`
	TotalDurationSec int `json:"total_duration_sec"`
}

// Summary aggregates one run's CDR rows for quick inspection alongside
// the raw CSV.
type Summary struct {
	TotalCalls       int                      `json:"total_calls"`
	ConnectedCalls   int                      `json:"connected_calls"`
	VoicemailCalls   int                      `json:"voicemail_calls"`
	TotalDurationSec int                      `json:"total_duration_sec"`
	AvgAnswerSec     float64                  `json:"avg_answer_sec"`
	Outcomes         map[string]int           `json:"outcomes"`
	Departments      map[string]*GroupSummary `json:"departments"`
	Users            map[string]*GroupSummary `json:"users"`
}

// Summarize computes call metrics from raw CDR rows. Fields it does not
// recognize are ignored; rows are never modified.
func Summarize(rows []webex.CDRRecord) *Summary {
	s := &Summary{
		Outcomes:    make(map[string]int),
		Departments: make(map[string]*GroupSummary),
		Users:       make(map[string]*GroupSummary),
	}

	var answerTotal float64
	var answerCount int

	for _, row := range rows {
		duration := parseSeconds(row["Duration"])
		answered := strings.EqualFold(row["Answered"], "true")
		voicemail := strings.EqualFold(row["Call outcome reason"], "voicemail")

		s.TotalCalls++
		s.TotalDurationSec += duration
		if answered {
			s.ConnectedCalls++
		} else if voicemail {
			s.VoicemailCalls++
		}

		outcome := row["Call outcome"]
		if outcome == "" {
			outcome = "Unknown"
		}
		s.Outcomes[outcome]++

		if secs, ok := answerDelay(row["Start time"], row["Answer time"]); ok {
			answerTotal += secs
			answerCount++
		}

		tally(s.Departments, valueOr(row["Department ID"], "Unknown"), duration, answered, voicemail)
		tally(s.Users, valueOr(row["User"], "Unknown"), duration, answered, voicemail)
	}

	if answerCount > 0 {
		s.AvgAnswerSec = answerTotal / float64(answerCount)
	}
	return s
}

func tally(groups map[string]*GroupSummary, key string, duration int, answered, voicemail bool) {
	g, ok := groups[key]
	if !ok {
		g = &GroupSummary{}
		groups[key] = g
	}
	g.TotalCalls++
	g.TotalDurationSec += duration
	if answered {
		g.ConnectedCalls++
	} else if voicemail {
		g.VoicemailCalls++
	}
}

func parseSeconds(v string) int {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// answerDelay returns the seconds between call start and answer, when
// both timestamps parse.
func answerDelay(startStr, answerStr string) (float64, bool) {
	if startStr == "" || answerStr == "" {
		return 0, false
	}
	start, err := time.Parse(time.RFC3339, startStr)
	if err != nil {
		return 0, false
	}
	answer, err := time.Parse(time.RFC3339, answerStr)
	if err != nil {
		return 0, false
	}
	return answer.Sub(start).Seconds(), true
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
