// Package statsd exports counter snapshots to a statsd daemon over UDP.
//
// Metric lines follow the statsd wire format, name:value|type, and are
// batched into multi-metric packets separated by newlines. A packet is
// flushed before it would exceed a conservative MTU bound, so a slow
// typecheck session's worth of counters goes out in a handful of
// datagrams rather than one per metric.
//
// Datagram delivery is fire-and-forget: send failures are logged at debug
// level and otherwise ignored, the same stance every statsd client takes.
package statsd

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/che-burashco/sorbet/internal/counters"
)

// maxPacketLen is a conservative bound for the path MTU. Staying under it
// keeps datagrams from fragmenting on common networks.
const maxPacketLen = 512

// metricNameCleaner strips the characters that are structural in the
// statsd line format out of metric names.
var metricNameCleaner = strings.NewReplacer(":", "_", "|", "_", "@", "_")

// Client batches metrics into UDP datagrams.
//
// Thread Safety: none. The exporter runs on one goroutine at the end of a
// session; wrap the client if concurrent export is ever needed.
type Client struct {
	conn   net.Conn
	prefix string
	packet []byte
	log    hclog.Logger
}

// Dial connects a client to addr (host:port). namespace, if non-empty, is
// cleaned and prepended to every metric name.
func Dial(addr, namespace string, log hclog.Logger) (*Client, error) {
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("statsd: dialing %s: %w", addr, err)
	}
	if log == nil {
		log = hclog.NewNullLogger()
	}
	prefix := ""
	if namespace != "" {
		prefix = cleanMetricName(namespace) + "."
	}
	return &Client{conn: conn, prefix: prefix, log: log}, nil
}

func cleanMetricName(name string) string {
	return metricNameCleaner.Replace(name)
}

// addMetric appends one line to the pending packet, flushing first when
// the line would push the packet past maxPacketLen. A single line larger
// than the bound is sent on its own; the receiver copes better with one
// fragmented datagram than we would by truncating the metric.
func (c *Client) addMetric(name string, value int64, typ string) {
	line := fmt.Sprintf("%s%s:%d|%s", c.prefix, cleanMetricName(name), value, typ)
	if len(c.packet)+len(line)+1 < maxPacketLen {
		if len(c.packet) > 0 {
			c.packet = append(c.packet, '\n')
		}
		c.packet = append(c.packet, line...)
		return
	}
	c.Flush()
	if len(line)+1 < maxPacketLen {
		c.packet = append(c.packet, line...)
		return
	}
	c.send([]byte(line))
}

// Gauge records an instantaneous value.
func (c *Client) Gauge(name string, value int64) {
	c.addMetric(name, value, "g")
}

// Timing records a duration sample, exported in nanoseconds under
// name.duration_ns.
func (c *Client) Timing(name string, d time.Duration) {
	c.addMetric(name+".duration_ns", d.Nanoseconds(), "ms")
}

// Flush sends the pending packet, if any.
func (c *Client) Flush() {
	if len(c.packet) == 0 {
		return
	}
	c.send(c.packet)
	c.packet = c.packet[:0]
}

func (c *Client) send(payload []byte) {
	if _, err := c.conn.Write(payload); err != nil {
		c.log.Debug("statsd send failed", "error", err, "bytes", len(payload))
	}
}

// Close flushes the pending packet and closes the socket.
func (c *Client) Close() error {
	c.Flush()
	return c.conn.Close()
}

// SubmitCounters exports a full counter snapshot: every category entry plus
// a per-category total, every flat counter, and every timing sample.
func SubmitCounters(snap counters.Snapshot, addr, namespace string, log hclog.Logger) error {
	c, err := Dial(addr, namespace, log)
	if err != nil {
		return err
	}
	defer c.Close()

	for category, entries := range snap.Categories {
		var sum int64
		for name, value := range entries {
			sum += value
			c.Gauge(category+"."+name, value)
		}
		c.Gauge(category+".total", sum)
	}
	for name, value := range snap.Counters {
		c.Gauge(name, value)
	}
	for name, samples := range snap.Timings {
		for _, d := range samples {
			c.Timing(name, d)
		}
	}
	return nil
}
