/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package engine

import (
	"os"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/eclesh/welford"
	"github.com/prometheus/client_golang/prometheus"
	gopsprocess "github.com/shirou/gopsutil/v3/process"
)

// StatsServer is the counters an Engine reports against, separated
// from Engine itself so a caller running many connections can fan
// them all into one process-wide exporter.
type StatsServer interface {
	IncPacketsDelivered()
	IncInfoRequests()
	IncReconnects()
	IncArchiveErrors()
	ObserveInterarrival(d time.Duration)
	CollectProcessStats() error
	Registry() *prometheus.Registry
}

// Stats is the default StatsServer: atomic counters for the fast path,
// a welford accumulator for the inter-record-arrival distribution
// (mean/variance without retaining every sample), and a registry of
// prometheus gauges/counters refreshed from both on demand.
type Stats struct {
	packetsDelivered int64
	infoRequests     int64
	reconnects       int64
	archiveErrors    int64

	interarrival *welford.Stats

	procStart time.Time
	proc      *gopsprocess.Process

	reg *prometheus.Registry

	gaugeRSS        prometheus.Gauge
	gaugeGoroutines prometheus.Gauge
	counterPackets  prometheus.Counter
	counterRecon    prometheus.Counter
}

// NewStats builds a Stats bound to the current process.
func NewStats() (*Stats, error) {
	proc, err := gopsprocess.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}
	s := &Stats{
		interarrival: welford.New(),
		procStart:    time.Now(),
		proc:         proc,
		reg:          prometheus.NewRegistry(),
	}
	s.gaugeRSS = prometheus.NewGauge(prometheus.GaugeOpts{Name: "slink_process_rss_bytes"})
	s.gaugeGoroutines = prometheus.NewGauge(prometheus.GaugeOpts{Name: "slink_goroutines"})
	s.counterPackets = prometheus.NewCounter(prometheus.CounterOpts{Name: "slink_packets_delivered_total"})
	s.counterRecon = prometheus.NewCounter(prometheus.CounterOpts{Name: "slink_reconnects_total"})
	s.reg.MustRegister(s.gaugeRSS, s.gaugeGoroutines, s.counterPackets, s.counterRecon)
	return s, nil
}

func (s *Stats) IncPacketsDelivered() {
	atomic.AddInt64(&s.packetsDelivered, 1)
	s.counterPackets.Inc()
}

func (s *Stats) IncInfoRequests() {
	atomic.AddInt64(&s.infoRequests, 1)
}

func (s *Stats) IncReconnects() {
	atomic.AddInt64(&s.reconnects, 1)
	s.counterRecon.Inc()
}

func (s *Stats) IncArchiveErrors() {
	atomic.AddInt64(&s.archiveErrors, 1)
}

// ObserveInterarrival feeds one inter-record gap into the running
// mean/variance estimate reported by Snapshot.
func (s *Stats) ObserveInterarrival(d time.Duration) {
	s.interarrival.Add(float64(d))
}

// CollectProcessStats refreshes the process-level gauges (RSS,
// goroutine count) from gopsutil. Call it on whatever cadence a
// caller's stats-export loop runs at; it is not called automatically.
func (s *Stats) CollectProcessStats() error {
	mem, err := s.proc.MemoryInfo()
	if err != nil {
		return err
	}
	s.gaugeRSS.Set(float64(mem.RSS))
	s.gaugeGoroutines.Set(float64(runtime.NumGoroutine()))
	return nil
}

// Registry exposes the underlying prometheus registry so a caller can
// wire it into an http.Handler (promhttp.HandlerFor) or a push
// gateway.
func (s *Stats) Registry() *prometheus.Registry {
	return s.reg
}

// Snapshot is a point-in-time read of every counter, for table/CSV
// rendering in the CLI.
type Snapshot struct {
	PacketsDelivered      int64
	InfoRequests          int64
	Reconnects            int64
	ArchiveErrors         int64
	InterarrivalMean      time.Duration
	InterarrivalStddev    time.Duration
	ProcessUptime         time.Duration
}

func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		PacketsDelivered:   atomic.LoadInt64(&s.packetsDelivered),
		InfoRequests:       atomic.LoadInt64(&s.infoRequests),
		Reconnects:         atomic.LoadInt64(&s.reconnects),
		ArchiveErrors:      atomic.LoadInt64(&s.archiveErrors),
		InterarrivalMean:   time.Duration(s.interarrival.Mean()),
		InterarrivalStddev: time.Duration(s.interarrival.Stddev()),
		ProcessUptime:      time.Since(s.procStart),
	}
}
