package statsd

import (
	"net"
	"strings"
	"testing"
	"time"

	"github.com/che-burashco/sorbet/internal/counters"
)

// testServer is a loopback UDP listener collecting whole datagrams.
type testServer struct {
	t    *testing.T
	conn net.PacketConn
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listening: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &testServer{t: t, conn: conn}
}

func (s *testServer) addr() string {
	return s.conn.LocalAddr().String()
}

// recv returns the next datagram as a string.
func (s *testServer) recv() string {
	s.t.Helper()
	buf := make([]byte, 64*1024)
	s.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	n, _, err := s.conn.ReadFrom(buf)
	if err != nil {
		s.t.Fatalf("reading datagram: %v", err)
	}
	return string(buf[:n])
}

func TestGaugeFormat(t *testing.T) {
	srv := newTestServer(t)
	c, err := Dial(srv.addr(), "sorbet.test", nil)
	if err != nil {
		t.Fatal(err)
	}
	c.Gauge("types.input.files", 42)
	c.Close()

	if got, want := srv.recv(), "sorbet.test.types.input.files:42|g"; got != want {
		t.Errorf("datagram = %q, want %q", got, want)
	}
}

func TestMetricNameCleaning(t *testing.T) {
	srv := newTestServer(t)
	c, err := Dial(srv.addr(), "ns:with|bad@chars", nil)
	if err != nil {
		t.Fatal(err)
	}
	c.Gauge("a:b|c@d", 1)
	c.Close()

	if got, want := srv.recv(), "ns_with_bad_chars.a_b_c_d:1|g"; got != want {
		t.Errorf("datagram = %q, want %q", got, want)
	}
}

func TestTimingFormat(t *testing.T) {
	srv := newTestServer(t)
	c, err := Dial(srv.addr(), "", nil)
	if err != nil {
		t.Fatal(err)
	}
	c.Timing("run.slow_path", 1500*time.Nanosecond)
	c.Close()

	if got, want := srv.recv(), "run.slow_path.duration_ns:1500|ms"; got != want {
		t.Errorf("datagram = %q, want %q", got, want)
	}
}

func TestMultiMetricBatching(t *testing.T) {
	srv := newTestServer(t)
	c, err := Dial(srv.addr(), "", nil)
	if err != nil {
		t.Fatal(err)
	}
	c.Gauge("a", 1)
	c.Gauge("b", 2)
	c.Gauge("c", 3)
	c.Close()

	got := srv.recv()
	want := "a:1|g\nb:2|g\nc:3|g"
	if got != want {
		t.Errorf("datagram = %q, want %q", got, want)
	}
}

func TestPacketSplitsBeforeMTUBound(t *testing.T) {
	srv := newTestServer(t)
	c, err := Dial(srv.addr(), "", nil)
	if err != nil {
		t.Fatal(err)
	}

	// Enough long-named metrics to overflow one 512-byte packet.
	name := strings.Repeat("x", 60)
	const metrics = 16
	for i := 0; i < metrics; i++ {
		c.Gauge(name, int64(i))
	}
	c.Close()

	var packets []string
	total := 0
	for total < metrics {
		p := srv.recv()
		if len(p) >= maxPacketLen {
			t.Errorf("packet of %d bytes exceeds the %d-byte bound", len(p), maxPacketLen)
		}
		packets = append(packets, p)
		total += strings.Count(p, "|g")
	}
	if len(packets) < 2 {
		t.Errorf("expected multiple packets, got %d", len(packets))
	}
}

func TestOversizedLineSentAlone(t *testing.T) {
	srv := newTestServer(t)
	c, err := Dial(srv.addr(), "", nil)
	if err != nil {
		t.Fatal(err)
	}

	huge := strings.Repeat("y", 600)
	c.Gauge("small", 1)
	c.Gauge(huge, 2)
	c.Close()

	first := srv.recv()
	if first != "small:1|g" {
		t.Errorf("first datagram = %q, want the flushed small packet", first)
	}
	second := srv.recv()
	if !strings.HasPrefix(second, huge) {
		t.Errorf("second datagram does not carry the oversized metric")
	}
}

func TestSubmitCounters(t *testing.T) {
	srv := newTestServer(t)

	state := counters.New()
	state.CategoryAdd("types.errors", "parse", 3)
	state.CategoryAdd("types.errors", "resolve", 4)
	state.Add("types.input.files", 7)
	state.Timing("run.fast_path", 2*time.Microsecond)

	if err := SubmitCounters(state.Snapshot(), srv.addr(), "sorbet", nil); err != nil {
		t.Fatal(err)
	}

	got := srv.recv()
	for _, want := range []string{
		"sorbet.types.errors.parse:3|g",
		"sorbet.types.errors.resolve:4|g",
		"sorbet.types.errors.total:7|g",
		"sorbet.types.input.files:7|g",
		"sorbet.run.fast_path.duration_ns:2000|ms",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("datagram %q missing %q", got, want)
		}
	}
}
