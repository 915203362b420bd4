package orchestrator

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/Mkrolick/co-streamer/internal/model"
)

// Report summarizes one Run
type Report struct {
	RunID      string                `json:"run_id"`
	StartedAt  time.Time             `json:"started_at"`
	FinishedAt time.Time             `json:"finished_at"`
	Downloaded int                   `json:"downloaded"`
	Channels   []model.ChannelStatus `json:"channels"`
}

// Aborted returns the channels that terminated on an abort verdict
func (r Report) Aborted() []model.ChannelStatus {
	var aborted []model.ChannelStatus
	for _, s := range r.Channels {
		if s.Aborted() {
			aborted = append(aborted, s)
		}
	}
	return aborted
}

// AllAborted reports whether every channel aborted
func (r Report) AllAborted() bool {
	return len(r.Channels) > 0 && len(r.Aborted()) == len(r.Channels)
}

// ExitCode is non-zero only when no channel survived
func (r Report) ExitCode() int {
	if r.AllAborted() {
		return 1
	}
	return 0
}

var (
	activeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	waitingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	abortedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

// StatusLine renders one channel as "<label> <channel> <detail>"
func StatusLine(s model.ChannelStatus, now time.Time) string {
	label := fmt.Sprintf("%-8s", s.Label())
	switch s.Label() {
	case "active":
		label = activeStyle.Render(label)
	case "aborted":
		label = abortedStyle.Render(label)
	case "waiting":
		label = waitingStyle.Render(label)
	default:
		label = mutedStyle.Render(label)
	}

	var details []string
	switch {
	case s.Aborted():
		detail := string(s.Reason)
		if s.Cause != "" {
			detail += ": " + s.Cause
		}
		details = append(details, detail)
	case s.Phase == model.PhaseWaiting && !s.NextProbeAt.IsZero():
		wait := s.NextProbeAt.Sub(now).Round(time.Second)
		if wait < 0 {
			wait = 0
		}
		details = append(details, "next probe in "+wait.String())
	case s.Phase != "":
		details = append(details, string(s.Phase))
	}
	if s.ConsecutiveFailures > 0 && !s.Aborted() {
		details = append(details, fmt.Sprintf("failures=%d", s.ConsecutiveFailures))
	}
	details = append(details, fmt.Sprintf("downloaded=%d", s.Downloaded))

	return label + " " + s.Channel.String() + " " + mutedStyle.Render(strings.Join(details, " "))
}

// RenderStatus writes one status line per channel
func RenderStatus(w io.Writer, statuses []model.ChannelStatus, now time.Time) {
	for _, s := range statuses {
		fmt.Fprintln(w, StatusLine(s, now))
	}
}
