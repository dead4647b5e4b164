package panel

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/makerspace/doorctl/pkg/serialport"
	"github.com/makerspace/doorctl/pkg/serialport/serialporttest"
	"github.com/makerspace/doorctl/pkg/types"
)

func newTestLink(respond func(string) string) (*Link, *serialporttest.Port) {
	port := &serialporttest.Port{Respond: respond}
	return New(serialport.NewConn("panel", port, 50*time.Millisecond)), port
}

func ack(line string) string {
	return "OK " + line[:1] + "\r\n"
}

func TestLayout(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
		want  [NumSlots]string
	}{
		{name: "none", lines: nil, want: [NumSlots]string{}},
		{name: "one", lines: []string{"a"}, want: [NumSlots]string{"", "", "a", "", ""}},
		{name: "two", lines: []string{"a", "b"}, want: [NumSlots]string{"", "a", "", "b", ""}},
		{name: "three", lines: []string{"a", "b", "c"}, want: [NumSlots]string{"", "a", "b", "c", ""}},
		{name: "four", lines: []string{"a", "b", "c", "d"}, want: [NumSlots]string{"a", "b", "c", "d", ""}},
		{name: "five", lines: []string{"a", "b", "c", "d", "e"}, want: [NumSlots]string{"a", "b", "c", "d", "e"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Layout(tt.lines)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWriteLinesRejectsTooMany(t *testing.T) {
	l, port := newTestLink(ack)
	err := l.WriteLines([]string{"1", "2", "3", "4", "5", "6"}, White)
	assert.True(t, errors.Is(err, ErrTooManyLines))
	assert.Empty(t, port.Written())
}

func TestWriteLines(t *testing.T) {
	l, port := newTestLink(ack)
	require.NoError(t, l.WriteLines([]string{"Locked"}, Orange))
	assert.Equal(t, []string{
		"T00131",
		"T01131",
		"T02131Locked",
		"T03131",
		"T04131",
	}, port.Written())
}

func TestFormatWrite(t *testing.T) {
	assert.Equal(t, "T02031FATAL", FormatWrite(2, "FATAL", Red, true, true))
	assert.Equal(t, "t05030reply", FormatWrite(5, "reply", Red, false, false))
	assert.Equal(t, "T00140x", FormatWrite(0, "x", Yellow, true, false))
}

func TestWriteLineBadSlot(t *testing.T) {
	l, port := newTestLink(ack)
	assert.True(t, errors.Is(l.WriteLine(NumSlots, "x", White, true, false), ErrBadSlot))
	require.NoError(t, l.WriteLine(NumSlots, "x", White, false, false))
	assert.Equal(t, []string{"t05000x"}, port.Written())
}

func TestAckMismatchIsDesync(t *testing.T) {
	l, _ := newTestLink(func(string) string { return "OK X\n" })
	err := l.Clear()
	assert.True(t, errors.Is(err, ErrProtocolDesync), "got %v", err)
}

func TestSilentPanelTimesOut(t *testing.T) {
	l, _ := newTestLink(nil)
	err := l.SetClock("12:34")
	assert.True(t, errors.Is(err, serialport.ErrCommsTimeout), "got %v", err)
}

func TestSetClock(t *testing.T) {
	l, port := newTestLink(ack)
	require.NoError(t, l.SetClock("07:05"))
	assert.Equal(t, []string{"c07:05"}, port.Written())
}

func TestPollButtons(t *testing.T) {
	tests := []struct {
		reply   string
		want    types.ButtonEdges
		wantErr bool
	}{
		{reply: "S0000", want: types.ButtonEdges{}},
		{reply: "S1000", want: types.ButtonEdges{Green: true}},
		{reply: "S0100", want: types.ButtonEdges{White: true}},
		{reply: "S0010", want: types.ButtonEdges{Red: true}},
		{reply: "S0001", want: types.ButtonEdges{Leave: true}},
		{reply: "S1111", want: types.ButtonEdges{Green: true, White: true, Red: true, Leave: true}},
		{reply: "OK S", wantErr: true},
		{reply: "S10", wantErr: true},
	}
	for _, tt := range tests {
		reply := tt.reply
		l, _ := newTestLink(func(string) string { return reply + "\n" })
		got, err := l.PollButtons()
		if tt.wantErr {
			assert.True(t, errors.Is(err, ErrProtocolDesync), tt.reply)
			continue
		}
		require.NoError(t, err, tt.reply)
		assert.Equal(t, tt.want, got, tt.reply)
	}
}
