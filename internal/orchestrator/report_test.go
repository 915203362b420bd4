package orchestrator

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Mkrolick/co-streamer/internal/model"
)

func TestReport_ExitCode(t *testing.T) {
	aborted := model.ChannelStatus{Channel: "A", Phase: model.PhaseTerminated, Reason: model.ReasonAborted}
	stopped := model.ChannelStatus{Channel: "B", Phase: model.PhaseTerminated, Reason: model.ReasonShutdown}

	tests := []struct {
		name     string
		channels []model.ChannelStatus
		want     int
	}{
		{name: "no channels", want: 0},
		{name: "all shut down", channels: []model.ChannelStatus{stopped}, want: 0},
		{name: "some aborted", channels: []model.ChannelStatus{aborted, stopped}, want: 0},
		{name: "all aborted", channels: []model.ChannelStatus{aborted, aborted}, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Report{Channels: tt.channels}.ExitCode())
		})
	}
}

func TestStatusLine(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		status model.ChannelStatus
		want   []string
	}{
		{
			name:   "active",
			status: model.ChannelStatus{Channel: "@alpha", Phase: model.PhaseFetching, Downloaded: 3},
			want:   []string{"active", "@alpha", "fetching", "downloaded=3"},
		},
		{
			name: "waiting with failures",
			status: model.ChannelStatus{
				Channel:             "@beta",
				Phase:               model.PhaseWaiting,
				NextProbeAt:         now.Add(90 * time.Second),
				ConsecutiveFailures: 2,
			},
			want: []string{"waiting", "@beta", "next probe in 1m30s", "failures=2"},
		},
		{
			name: "aborted",
			status: model.ChannelStatus{
				Channel: "@gamma",
				Phase:   model.PhaseTerminated,
				Reason:  model.ReasonAborted,
				Cause:   "CHANNEL_UNAVAILABLE: channel terminated",
			},
			want: []string{"aborted", "@gamma", "aborted: CHANNEL_UNAVAILABLE: channel terminated"},
		},
		{
			name:   "stopped",
			status: model.ChannelStatus{Channel: "@delta", Phase: model.PhaseTerminated, Reason: model.ReasonShutdown},
			want:   []string{"stopped", "@delta", "terminated"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line := StatusLine(tt.status, now)
			for _, w := range tt.want {
				assert.Contains(t, line, w)
			}
		})
	}
}

func TestRenderStatus(t *testing.T) {
	var buf bytes.Buffer
	RenderStatus(&buf, []model.ChannelStatus{
		{Channel: "@a", Phase: model.PhaseProbing},
		{Channel: "@b", Phase: model.PhaseQueued},
	}, time.Now())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 2)
	assert.Contains(t, lines[0], "@a")
	assert.Contains(t, lines[1], "@b")
}
