package core

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caseta/config"
	"caseta/internal/catalog"
	"caseta/internal/discovery"
	"caseta/internal/transport"
	"caseta/util"
)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.Parse([]byte(testReport))
	require.NoError(t, err)
	return cat
}

func buildSetMode(t *testing.T, cfg *config.Config) (*SetMode, *bytes.Buffer) {
	t.Helper()
	mode, err := Build(cfg, util.NewLogger(0), nil)
	require.NoError(t, err)
	set := mode.(*SetMode)
	var out bytes.Buffer
	set.Out = &out
	return set, &out
}

func TestSetMode_Run(t *testing.T) {
	tb := newTestBridge(t, nil)
	cfg := tb.testConfig(config.CmdSet)
	cfg.Level = 42.5
	cfg.Zones = []int{5, 27}
	cfg.ReportPath = writeReport(t)

	set, out := buildSetMode(t, cfg)
	require.NoError(t, set.Run(context.Background()))

	assert.ElementsMatch(t, []string{"#OUTPUT,5,1,42.50", "#OUTPUT,27,1,42.50"}, tb.received())
	text := out.String()
	assert.Contains(t, text, "zone 5 (Floor Lamp): ok 42.5%")
	assert.Contains(t, text, "zone 27 (Cans): ok 42.5%")
	assert.Contains(t, text, "2 zone(s) set in")
}

func TestSetMode_FailureReturnsError(t *testing.T) {
	tb := newTestBridge(t, nil)
	cfg := tb.testConfig(config.CmdOn)
	cfg.Zones = []int{5}
	tb.ln.Close()

	set, out := buildSetMode(t, cfg)
	err := set.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 1 zone(s) failed")
	assert.Contains(t, out.String(), "zone 5: FAILED:")
}

func TestSetMode_Caveat(t *testing.T) {
	tb := newTestBridge(t, map[string]string{"#OUTPUT,9,1,0.00": "~ERROR,6\r\n"})
	cfg := tb.testConfig(config.CmdOff)
	cfg.Zones = []int{9}

	set, out := buildSetMode(t, cfg)
	require.NoError(t, set.Run(context.Background()))
	assert.Contains(t, out.String(), "zone 9: ok 0% (bridge replied ~ERROR,6)")
}

func TestSetMode_DryRun(t *testing.T) {
	tb := newTestBridge(t, nil)
	cfg := tb.testConfig(config.CmdOn)
	cfg.Zones = []int{5, 10}
	cfg.DryRun = true

	set, out := buildSetMode(t, cfg)
	require.NoError(t, set.Run(context.Background()))

	assert.Equal(t, "zone 5: would send #OUTPUT,5,1,100.00\nzone 10: would send #OUTPUT,10,1,100.00\n", out.String())
	assert.Empty(t, tb.received())
}

func TestListMode_ByArea(t *testing.T) {
	var out bytes.Buffer
	m := &ListMode{Catalog: testCatalog(t), Out: &out}
	require.NoError(t, m.Run(context.Background()))

	want := "\nLutron Caseta Zones by Area:\n\n" +
		"Area: Kitchen\n-------------\n  Zone 27: Cans\n  Zone 30: Pendants\n\n" +
		"Area: Living Room\n-----------------\n  Zone  5: Floor Lamp\n\n"
	assert.Equal(t, want, out.String())
}

func TestListMode_AreaFilter(t *testing.T) {
	var out bytes.Buffer
	m := &ListMode{Catalog: testCatalog(t), Area: "living room", Out: &out}
	require.NoError(t, m.Run(context.Background()))
	assert.Contains(t, out.String(), "Area: Living Room")
	assert.NotContains(t, out.String(), "Kitchen")

	m.Area = "garage"
	err := m.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "known areas: Kitchen, Living Room")
}

func TestListMode_Groups(t *testing.T) {
	var out bytes.Buffer
	m := &ListMode{Groups: map[string][]int{"kitchen": {27, 30}, "bedroom": {5}}, Out: &out}
	require.NoError(t, m.Run(context.Background()))
	assert.Contains(t, out.String(), "  bedroom          5\n  kitchen          27, 30\n")

	m.Groups = nil
	assert.Error(t, m.Run(context.Background()))
}

func TestQueryMode_Areas(t *testing.T) {
	tb := newTestBridge(t, map[string]string{
		"?AREA": "~AREA,2,Kitchen\r\n~AREA,3,Living Room\r\n",
	})
	var out bytes.Buffer
	m := &QueryMode{Session: tb.session(), Dialer: &transport.TCPDialer{}, Target: QueryArea, Out: &out}

	require.NoError(t, m.Run(context.Background()))
	assert.Equal(t, "ID  NAME\n2   Kitchen\n3   Living Room\n", out.String())
}

func TestQueryMode_BridgeError(t *testing.T) {
	tb := newTestBridge(t, map[string]string{"?DEVICE": "~ERROR,1\r\n"})
	m := &QueryMode{Session: tb.session(), Dialer: &transport.TCPDialer{}, Target: QueryDevice, Out: io.Discard}

	err := m.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "~ERROR,1")
}

func TestQueryMode_Inventory(t *testing.T) {
	tb := newTestBridge(t, map[string]string{
		"?AREA":   "~AREA,2,Kitchen\r\n",
		"?ZONE":   "~ZONE,27,2,Cans\r\n",
		"?OUTPUT": "~OUTPUT,27,27,DIMMER\r\n",
		"?DEVICE": "~ERROR,1\r\n",
	})
	var out bytes.Buffer
	m := &QueryMode{Session: tb.session(), Dialer: &transport.TCPDialer{}, Target: QueryInventory, Out: &out}

	require.NoError(t, m.Run(context.Background()))
	text := out.String()
	assert.Contains(t, text, "27    Kitchen  Cans  27      DIMMER")
	assert.Contains(t, text, "warning: ?DEVICE: ~ERROR,1")
}

func TestMonitorMode_Duration(t *testing.T) {
	tb := newTestBridge(t, map[string]string{
		"#MONITORING,255,1": "GNET> ~OUTPUT,5,1,40.00\r\n~DEVICE,2,3,3\r\n",
	})
	tb.hold["#MONITORING,255,1"] = true

	var out bytes.Buffer
	m := &MonitorMode{
		Session:  tb.session(),
		Dialer:   &transport.TCPDialer{},
		Duration: 300 * time.Millisecond,
		Catalog:  testCatalog(t),
		Out:      &out,
	}

	start := time.Now()
	require.NoError(t, m.Run(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 250*time.Millisecond)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "zone 5 (Floor Lamp) -> 40.00%")
	assert.Contains(t, lines[1], "~DEVICE,2,3,3")
}

type lines []string

func (l *lines) Readline() (string, error) {
	if len(*l) == 0 {
		return "", io.EOF
	}
	line := (*l)[0]
	*l = (*l)[1:]
	return line, nil
}

func TestShellMode(t *testing.T) {
	tb := newTestBridge(t, map[string]string{"?OUTPUT,5,1": "~OUTPUT,5,1,40.00\r\n"})
	var out bytes.Buffer
	m := &ShellMode{
		Session: tb.session(),
		Dialer:  &transport.TCPDialer{},
		Out:     &out,
		Reader:  &lines{"get 5", "exit"},
	}

	require.NoError(t, m.Run(context.Background()))
	assert.Equal(t, []string{"?OUTPUT,5,1"}, tb.received())
	assert.Contains(t, out.String(), "~OUTPUT,5,1,40.00")
}

func TestDiscoverMode(t *testing.T) {
	var out bytes.Buffer
	m := &DiscoverMode{
		Options: discovery.Options{Timeout: time.Second},
		Browse: func(_ context.Context, opts discovery.Options, _ *util.Logger) ([]discovery.Bridge, error) {
			assert.Equal(t, time.Second, opts.Timeout)
			return []discovery.Bridge{{Instance: "Lutron-0123abcd", Addresses: []string{"192.168.49.91"}}}, nil
		},
		Out: &out,
	}

	require.NoError(t, m.Run(context.Background()))
	assert.Contains(t, out.String(), "Lutron-0123abcd  192.168.49.91:23")
}

func TestDiscoverMode_Error(t *testing.T) {
	boom := errors.New("no multicast")
	m := &DiscoverMode{
		Browse: func(context.Context, discovery.Options, *util.Logger) ([]discovery.Bridge, error) {
			return nil, boom
		},
		Out: io.Discard,
	}
	assert.ErrorIs(t, m.Run(context.Background()), boom)
}
