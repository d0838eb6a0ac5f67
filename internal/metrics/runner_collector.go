package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// RunnerCollector samples CPU and memory of the live runner at scrape time.
type RunnerCollector struct {
	name string
	pid  func() int

	cpu     *prometheus.Desc
	rss     *prometheus.Desc
	vms     *prometheus.Desc
	threads *prometheus.Desc
}

// NewRunnerCollector returns a collector for the runner whose pid is reported
// by pid; a pid of 0 means not running and yields no samples.
func NewRunnerCollector(name string, pid func() int) *RunnerCollector {
	labels := prometheus.Labels{"name": name}
	fq := func(n string) string { return prometheus.BuildFQName(namespace, subsystem, n) }
	return &RunnerCollector{
		name:    name,
		pid:     pid,
		cpu:     prometheus.NewDesc(fq("cpu_percent"), "CPU usage of the runner process.", nil, labels),
		rss:     prometheus.NewDesc(fq("memory_rss_bytes"), "Resident memory of the runner process.", nil, labels),
		vms:     prometheus.NewDesc(fq("memory_vms_bytes"), "Virtual memory of the runner process.", nil, labels),
		threads: prometheus.NewDesc(fq("threads"), "Thread count of the runner process.", nil, labels),
	}
}

// RegisterRunner registers a RunnerCollector with r.
func RegisterRunner(r prometheus.Registerer, name string, pid func() int) error {
	return register(r, NewRunnerCollector(name, pid))
}

func (c *RunnerCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.cpu
	ch <- c.rss
	ch <- c.vms
	ch <- c.threads
}

func (c *RunnerCollector) Collect(ch chan<- prometheus.Metric) {
	pid := c.pid()
	if pid <= 0 {
		return
	}
	p, err := gopsproc.NewProcess(int32(pid))
	if err != nil {
		return
	}
	if cpu, err := p.CPUPercent(); err == nil {
		ch <- prometheus.MustNewConstMetric(c.cpu, prometheus.GaugeValue, cpu)
	}
	if mem, err := p.MemoryInfo(); err == nil && mem != nil {
		ch <- prometheus.MustNewConstMetric(c.rss, prometheus.GaugeValue, float64(mem.RSS))
		ch <- prometheus.MustNewConstMetric(c.vms, prometheus.GaugeValue, float64(mem.VMS))
	}
	if n, err := p.NumThreads(); err == nil {
		ch <- prometheus.MustNewConstMetric(c.threads, prometheus.GaugeValue, float64(n))
	}
}
