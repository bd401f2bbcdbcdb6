// Package hostmetrics samples host telemetry from procfs.
package hostmetrics

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"SOCPulse/internal/domain/models"
)

type cpuTimes struct {
	idle  uint64
	total uint64
}

type netTotals struct {
	sent uint64
	recv uint64
}

// ProcSource reads /proc/stat, /proc/meminfo and /proc/net/dev. CPU usage
// and network bytes are deltas against the previous sample; the first
// sample waits CPUWindow to get a CPU reading and reports zero traffic.
type ProcSource struct {
	root      string
	host      string
	cpuWindow time.Duration

	mu      sync.Mutex
	lastCPU *cpuTimes
	lastNet *netTotals
	now     func() time.Time
}

// Option configures ProcSource.
type Option func(*ProcSource)

// WithRoot points the source at another procfs mount.
func WithRoot(root string) Option {
	return func(p *ProcSource) { p.root = root }
}

// WithCPUWindow sets the first-sample CPU measurement window.
func WithCPUWindow(d time.Duration) Option {
	return func(p *ProcSource) { p.cpuWindow = d }
}

func NewProcSource(host string, opts ...Option) *ProcSource {
	if host == "" {
		host, _ = os.Hostname()
	}
	p := &ProcSource{
		root:      "/proc",
		host:      host,
		cpuWindow: time.Second,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Sample implements service.MetricsSource.
func (p *ProcSource) Sample(ctx context.Context) (models.MetricSample, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cpu, err := p.readCPU()
	if err != nil {
		return models.MetricSample{}, err
	}
	if p.lastCPU == nil {
		p.lastCPU = &cpu
		select {
		case <-ctx.Done():
			return models.MetricSample{}, ctx.Err()
		case <-time.After(p.cpuWindow):
		}
		if cpu, err = p.readCPU(); err != nil {
			return models.MetricSample{}, err
		}
	}
	cpuPct := cpuPercent(*p.lastCPU, cpu)
	p.lastCPU = &cpu

	total, avail, err := p.readMem()
	if err != nil {
		return models.MetricSample{}, err
	}

	net, err := p.readNet()
	if err != nil {
		return models.MetricSample{}, err
	}
	var sent, recv uint64
	if p.lastNet != nil {
		sent = delta(p.lastNet.sent, net.sent)
		recv = delta(p.lastNet.recv, net.recv)
	}
	p.lastNet = &net

	used := total - avail
	memPct := 0.0
	if total > 0 {
		memPct = float64(used) / float64(total) * 100
	}
	return models.MetricSample{
		Timestamp:     p.now(),
		Host:          p.host,
		CPUPercent:    cpuPct,
		MemoryPercent: memPct,
		MemoryUsed:    used,
		MemoryTotal:   total,
		NetBytesSent:  sent,
		NetBytesRecv:  recv,
	}, nil
}

// counters reset on interface restart
func delta(prev, cur uint64) uint64 {
	if cur < prev {
		return 0
	}
	return cur - prev
}

func cpuPercent(prev, cur cpuTimes) float64 {
	total := float64(delta(prev.total, cur.total))
	if total == 0 {
		return 0
	}
	idle := float64(delta(prev.idle, cur.idle))
	pct := (total - idle) / total * 100
	if pct < 0 {
		return 0
	}
	return pct
}

func (p *ProcSource) readCPU() (cpuTimes, error) {
	f, err := os.Open(filepath.Join(p.root, "stat"))
	if err != nil {
		return cpuTimes{}, fmt.Errorf("read cpu stats: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 5 || fields[0] != "cpu" {
			continue
		}
		var t cpuTimes
		for i, v := range fields[1:] {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return cpuTimes{}, fmt.Errorf("parse cpu stats: %w", err)
			}
			t.total += n
			// idle and iowait
			if i == 3 || i == 4 {
				t.idle += n
			}
		}
		return t, nil
	}
	if err := sc.Err(); err != nil {
		return cpuTimes{}, fmt.Errorf("scan cpu stats: %w", err)
	}
	return cpuTimes{}, fmt.Errorf("no aggregate cpu line in %s", filepath.Join(p.root, "stat"))
}

// readMem returns MemTotal and MemAvailable in bytes.
func (p *ProcSource) readMem() (uint64, uint64, error) {
	data, err := os.ReadFile(filepath.Join(p.root, "meminfo"))
	if err != nil {
		return 0, 0, fmt.Errorf("read meminfo: %w", err)
	}
	var total, avail uint64
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, "MemTotal:") {
			fmt.Sscanf(line, "MemTotal: %d kB", &total)
		} else if strings.HasPrefix(line, "MemAvailable:") {
			fmt.Sscanf(line, "MemAvailable: %d kB", &avail)
		}
	}
	if total == 0 {
		return 0, 0, fmt.Errorf("meminfo: MemTotal missing")
	}
	if avail > total {
		avail = total
	}
	return total * 1024, avail * 1024, nil
}

// readNet sums byte counters over every interface except loopback.
func (p *ProcSource) readNet() (netTotals, error) {
	data, err := os.ReadFile(filepath.Join(p.root, "net", "dev"))
	if err != nil {
		return netTotals{}, fmt.Errorf("read net dev: %w", err)
	}
	var out netTotals
	for _, line := range strings.Split(string(data), "\n") {
		name, rest, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		if strings.TrimSpace(name) == "lo" {
			continue
		}
		fields := strings.Fields(rest)
		if len(fields) < 9 {
			continue
		}
		recv, err1 := strconv.ParseUint(fields[0], 10, 64)
		sent, err2 := strconv.ParseUint(fields[8], 10, 64)
		if err1 != nil || err2 != nil {
			continue
		}
		out.recv += recv
		out.sent += sent
	}
	return out, nil
}
