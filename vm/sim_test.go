package vm

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// replies returns the lines the simulator has answered since the last call.
func replies(t *testing.T, s *Sim) []string {
	t.Helper()
	buf := make([]byte, 64*1024)
	n, err := s.Read(buf)
	require.NoError(t, err)
	return strings.Split(strings.TrimSuffix(string(buf[:n]), "\r\n"), "\r\n")
}

func send(t *testing.T, s *Sim, data string) []string {
	t.Helper()
	_, err := io.WriteString(s, data)
	require.NoError(t, err)
	return replies(t, s)
}

func TestSim_Banner(t *testing.T) {
	s := NewSim()
	assert.Equal(t, []string{"", Banner}, replies(t, s))
}

func TestSim_Lines(t *testing.T) {
	s := NewSim()
	replies(t, s)

	assert.Equal(t, []string{"ok"}, send(t, s, "G0X10Y5\n"))
	assert.Equal(t, []string{"<Idle|MPos:10.000,5.000,0.000|Bf:15,128|FS:0,0|WCO:0.000,0.000,0.000|Ov:100,100,100>"}, send(t, s, "?"))
	assert.Equal(t, []string{"error:20"}, send(t, s, "G81X1\n"))
	assert.Equal(t, []string{"error:3"}, send(t, s, "$Q\n"))

	res := send(t, s, "$I\n")
	assert.Equal(t, []string{"[VER:1.1h.20190825:]", "[OPT:V,15,128]", "ok"}, res)

	res = send(t, s, "$G\n")
	assert.Equal(t, []string{"[GC:G0 G54 G17 G21 G90 G94 M5 M9 T0 F0 S0]", "ok"}, res)

	res = send(t, s, "$$\n")
	assert.Len(t, res, len(DefaultSettings)+1)
	assert.Equal(t, "$0=10", res[0])
	assert.Equal(t, "$132=200.000", res[len(res)-2])
}

func TestSim_Pause(t *testing.T) {
	s := NewSim()
	replies(t, s)
	s.BufferSize = 12
	s.Pause()

	_, err := io.WriteString(s, "G0X1\nG0X2\n")
	require.NoError(t, err)
	assert.Equal(t, 2, s.Pending())
	assert.False(t, s.Overflow())

	_, err = io.WriteString(s, "G0X3\n")
	require.NoError(t, err)
	assert.True(t, s.Overflow())

	s.Resume()
	assert.Equal(t, []string{"ok", "ok", "ok"}, replies(t, s))
	assert.Equal(t, []string{"G0X1", "G0X2", "G0X3"}, s.Received())
}

func TestSim_AlarmAndUnlock(t *testing.T) {
	s := NewSim()
	replies(t, s)
	s.Pause()
	_, err := io.WriteString(s, "G0X1\n")
	require.NoError(t, err)

	s.Alarm(1)
	assert.Equal(t, 0, s.Pending())
	assert.Equal(t, []string{"ALARM:1"}, replies(t, s))
	s.Resume()

	assert.Equal(t, []string{"error:9"}, send(t, s, "G0X1\n"))
	assert.Equal(t, []string{"[MSG:Caution: Unlocked]", "ok"}, send(t, s, "$X\n"))
	assert.Equal(t, []string{"ok"}, send(t, s, "G0X1\n"))
}

func TestSim_HoldAndReset(t *testing.T) {
	s := NewSim()
	replies(t, s)

	res := send(t, s, "!?")
	require.Len(t, res, 1)
	assert.True(t, strings.HasPrefix(res[0], "<Hold:0|"))

	// held lines wait for cycle start
	_, err := io.WriteString(s, "G0X1\n")
	require.NoError(t, err)
	assert.Equal(t, 1, s.Pending())
	assert.Equal(t, []string{"ok"}, send(t, s, "~"))

	res = send(t, s, "\x18")
	assert.Equal(t, []string{"", Banner}, res)
}

func TestSim_ProbeReport(t *testing.T) {
	s := NewSim()
	replies(t, s)
	s.Machine().Surface = -1

	res := send(t, s, "G38.2Z-5F10\n")
	assert.Equal(t, []string{"[PRB:0.000,0.000,-1.000:1]", "ok"}, res)

	s.Machine().Surface = -10
	res = send(t, s, "G38.2Z-5F10\n")
	assert.Equal(t, []string{"ALARM:5"}, res)
	assert.True(t, strings.HasPrefix(send(t, s, "?")[0], "<Alarm|"))
}

func TestSim_Overrides(t *testing.T) {
	s := NewSim()
	replies(t, s)

	res := send(t, s, "\x91\x91\x96\x9b?")
	assert.Contains(t, res[0], "|Ov:120,50,90>")
}
