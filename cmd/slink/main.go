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

// Command slink is a SeedLink client: it connects to a server, streams
// (or dials up and drains) one or more station/selector subscriptions,
// and either prints a packet trace or routes records into an archive.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/araddon/dateparse"
	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/fatih/color"
	"github.com/gocarina/gocsv"
	"github.com/olekukonko/tablewriter"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/geoseis/slink/archive"
	"github.com/geoseis/slink/engine"
	"github.com/geoseis/slink/protocol"
	"github.com/geoseis/slink/registry"
	"github.com/geoseis/slink/statefile"
	"github.com/geoseis/slink/streamlist"
)

func main() {
	var (
		serverFlag    string
		listFlag      string
		uniFlag       string
		selectorsFlag string
		timeWinFlag   string
		stateFlag     string
		dialupFlag    bool
		batchFlag     bool
		keepaliveFlag time.Duration
		netTimeoutFlag time.Duration
		reconnectFlag time.Duration
		outTemplate   string
		sdsFlag       bool
		budFlag       bool
		pLevelFlag    int
		verboseFlag   bool
		dscpFlag      int
		configFlag    string
		reportFlag    string
		reportEvery   time.Duration
		pingFlag      bool
		catFlag       bool
	)

	flag.StringVar(&serverFlag, "S", "", "SeedLink server address, host:port")
	flag.StringVar(&listFlag, "l", "", "path to a stream list file (NET STA [selectors...] per line)")
	flag.StringVar(&uniFlag, "u", "", "uni-station mode: subscribe to every stream the server sends, with these selectors")
	flag.StringVar(&selectorsFlag, "s", "", "default selectors applied to streams from -l with none of their own")
	flag.StringVar(&timeWinFlag, "tw", "", "time window \"begin:end\" in YYYY,MM,DD,HH,MM,SS form")
	flag.StringVar(&stateFlag, "x", "", "state file for resuming sequence numbers across runs")
	flag.BoolVar(&dialupFlag, "d", false, "dial-up mode: fetch what's buffered and exit on END")
	flag.BoolVar(&batchFlag, "b", false, "request batch mode (suppressed acks) if the server supports it")
	flag.DurationVar(&keepaliveFlag, "k", 0, "keepalive interval, 0 disables")
	flag.DurationVar(&netTimeoutFlag, "nt", 600*time.Second, "network timeout")
	flag.DurationVar(&reconnectFlag, "nd", 30*time.Second, "reconnect delay")
	flag.StringVar(&outTemplate, "o", "", "archive path template; if empty, records are not archived")
	flag.BoolVar(&sdsFlag, "SDS", false, "use the legacy SDS archive template (overrides -o)")
	flag.BoolVar(&budFlag, "BUD", false, "use the legacy BUD archive template (overrides -o)")
	flag.IntVar(&pLevelFlag, "p", 0, "packet trace verbosity: 0 silent, 1 one-line summary per packet, 2 also prints INFO response bodies")
	flag.BoolVar(&verboseFlag, "v", false, "verbose (debug) logging")
	flag.IntVar(&dscpFlag, "dscp", 0, "DSCP codepoint to mark outgoing packets with")
	flag.StringVar(&configFlag, "config", "", "path to a YAML config overriding these flags' defaults")
	flag.StringVar(&reportFlag, "report", "", "periodic status report format: \"table\", \"csv\", or empty to disable")
	flag.DurationVar(&reportEvery, "report-interval", 30*time.Second, "interval between status reports")
	flag.BoolVar(&pingFlag, "Q", false, "ping the server (HELLO only), print its version, and exit")
	flag.BoolVar(&catFlag, "CAT", false, "request the server's stream catalog (CAT), print the response, and exit")
	flag.Parse()

	log.SetLevel(log.InfoLevel)
	if verboseFlag {
		log.SetLevel(log.DebugLevel)
	}
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		color.NoColor = true
	}

	cfg, err := buildConfig(configFlag, serverFlag, listFlag, uniFlag, selectorsFlag, timeWinFlag,
		dialupFlag, batchFlag, keepaliveFlag, netTimeoutFlag, reconnectFlag, dscpFlag)
	if err != nil {
		log.Fatal(err)
	}

	if sdsFlag {
		outTemplate = archive.TemplateSDS
	} else if budFlag {
		outTemplate = archive.TemplateBUD
	}

	var router *archive.Router
	if outTemplate != "" {
		router, err = archive.NewRouter(".", outTemplate, 0, 0)
		if err != nil {
			log.Fatalf("invalid archive template: %v", err)
		}
		defer router.Close()
	}

	e, err := engine.NewEngine(cfg, engine.NewTCPDialer(dscpFlag))
	if err != nil {
		log.Fatal(err)
	}

	if pingFlag {
		v, err := e.Ping(context.Background())
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("%s: server version %s\n", cfg.Address, v)
		return
	}
	if catFlag {
		body, err := e.ListStreams(context.Background())
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(body)
		return
	}

	stats, err := engine.NewStats()
	if err != nil {
		log.WithError(err).Warn("process stats unavailable")
	} else {
		e.SetStats(stats)
	}

	if stateFlag != "" {
		records, err := statefile.Load(stateFlag)
		if err != nil {
			log.Fatalf("loading state file: %v", err)
		}
		for _, r := range records {
			e.SeedResume(r.Net, r.Sta, r.Seqnum, r.Timestamp)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutting down")
		e.Terminate()
		cancel()
	}()

	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Debugf("systemd notify skipped: %v", err)
	}

	eg, egctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return run(egctx, e, router, stats, stateFlag, cfg.StateSaveInterval, pLevelFlag)
	})
	if reportFlag != "" && stats != nil {
		eg.Go(func() error {
			reportLoop(egctx, e, stats, reportFlag, reportEvery)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		os.Exit(1)
	}
}

// reportLoop renders a periodic stream-status report until ctx is
// done: a human table by default, or CSV for piping into another tool.
func reportLoop(ctx context.Context, e *engine.Engine, stats *engine.Stats, format string, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := stats.CollectProcessStats(); err != nil {
				log.WithError(err).Debug("collecting process stats failed")
			}
			rows := streamStatusRows(e.Streams(), stats.Snapshot())
			switch format {
			case "csv":
				if err := gocsv.Marshal(rows, os.Stdout); err != nil {
					log.WithError(err).Warn("csv report failed")
				}
			default:
				printStatusTable(rows)
			}
		}
	}
}

// streamStatus is one row of a status report: a stream's resume
// position alongside the process-wide counters, flattened so both the
// table and CSV renderers can share the same row type.
type streamStatus struct {
	Net                string `csv:"net"`
	Sta                string `csv:"sta"`
	Seqnum             string `csv:"seqnum"`
	Timestamp          string `csv:"timestamp"`
	PacketsDelivered   int64  `csv:"packets_delivered"`
	Reconnects         int64  `csv:"reconnects"`
	InterarrivalMeanMs int64  `csv:"interarrival_mean_ms"`
}

func streamStatusRows(entries []*registry.Entry, snap engine.Snapshot) []*streamStatus {
	rows := make([]*streamStatus, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, &streamStatus{
			Net:                e.Net,
			Sta:                e.Sta,
			Seqnum:             registry.FormatSeqnum(e.Seqnum),
			Timestamp:          e.Timestamp,
			PacketsDelivered:   snap.PacketsDelivered,
			Reconnects:         snap.Reconnects,
			InterarrivalMeanMs: snap.InterarrivalMean.Milliseconds(),
		})
	}
	return rows
}

func printStatusTable(rows []*streamStatus) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Net", "Sta", "Seqnum", "Timestamp", "Delivered", "Reconnects", "Mean gap (ms)"})
	for _, r := range rows {
		table.Append([]string{
			r.Net, r.Sta, r.Seqnum, r.Timestamp,
			fmt.Sprintf("%d", r.PacketsDelivered),
			fmt.Sprintf("%d", r.Reconnects),
			fmt.Sprintf("%d", r.InterarrivalMeanMs),
		})
	}
	table.Render()
}

// run drives the collect loop until the engine terminates or ctx is
// cancelled. It returns nil on clean termination (caller-requested
// shutdown, or a dial-up session's "END" sentinel) and the engine's
// terminal error on anything else, so main can choose its exit code.
// The state file is saved on return and, when saveEvery > 0, after
// every saveEvery delivered packets.
func run(ctx context.Context, e *engine.Engine, router *archive.Router, stats *engine.Stats, stateFlag string, saveEvery int, pLevel int) error {
	saveState := func() {
		if stateFlag == "" {
			return
		}
		if err := statefile.Save(stateFlag, statefile.FromStreams(e.Streams())); err != nil {
			log.WithError(err).Warn("failed to save state file")
		}
	}
	defer saveState()

	delivered := 0
	for {
		pkt, err := e.Collect(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, engine.ErrServerEnd) {
				return nil
			}
			log.WithError(err).Error("engine terminated")
			return err
		}
		if pkt == nil {
			continue
		}
		tracePacket(pkt, pLevel)
		if router != nil && !pkt.IsInfo {
			if err := router.Append(pkt.Raw, pkt.Fields); err != nil {
				log.WithError(err).Warn("archive write failed")
				if stats != nil {
					stats.IncArchiveErrors()
				}
			}
		}
		delivered++
		if saveEvery > 0 && delivered%saveEvery == 0 {
			saveState()
		}
	}
}

func tracePacket(pkt *engine.Packet, level int) {
	if level <= 0 {
		return
	}
	if pkt.IsInfo {
		fmt.Printf("%s INFO response, %d bytes\n", color.CyanString("[INFO]"), len(pkt.Raw))
		if level >= 2 {
			fmt.Println(string(pkt.Raw))
		}
		return
	}
	fmt.Printf("%s seq=%06X %s.%s.%s.%s %04d,%03d %d bytes\n",
		color.GreenString("[DATA]"), pkt.Seqnum, pkt.Fields.Net, pkt.Fields.Sta, pkt.Fields.Loc, pkt.Fields.Chan,
		pkt.Fields.Year, pkt.Fields.DayOfYear, len(pkt.Raw))
}

func buildConfig(configFlag, server, list, uni, selectors, timeWin string, dialup, batch bool,
	keepalive, netTimeout, reconnect time.Duration, dscp int) (*engine.Config, error) {

	ov := engine.Overrides{}
	if server != "" {
		ov.Address = &server
	}
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if set["d"] {
		ov.Dialup = &dialup
	}
	if set["b"] {
		ov.Batchmode = &batch
	}
	if set["nt"] {
		ov.NetworkTimeout = &netTimeout
	}
	if set["nd"] {
		ov.ReconnectDelay = &reconnect
	}
	if keepalive > 0 {
		ov.KeepaliveInterval = &keepalive
	}
	if dscp != 0 {
		ov.DSCP = &dscp
	}

	cfg, err := engine.PrepareConfig(configFlag, ov)
	if err != nil {
		return nil, err
	}

	if uni != "" {
		cfg.Streams = []engine.StreamConfig{{Net: registry.UniNet, Sta: registry.UniSta, Selectors: splitSelectors(uni)}}
	} else if list != "" {
		f, err := os.Open(list)
		if err != nil {
			return nil, fmt.Errorf("opening stream list %q: %w", list, err)
		}
		defer f.Close()
		entries, err := streamlist.Parse(f)
		if err != nil {
			return nil, err
		}
		def := splitSelectors(selectors)
		cfg.Streams = make([]engine.StreamConfig, 0, len(entries))
		for _, e := range entries {
			sels := e.Selectors
			if len(sels) == 0 {
				sels = def
			}
			cfg.Streams = append(cfg.Streams, engine.StreamConfig{Net: e.Net, Sta: e.Sta, Selectors: sels})
		}
	}

	if timeWin != "" {
		parts := strings.SplitN(timeWin, ":", 2)
		begin, err := normalizeTime(parts[0])
		if err != nil {
			return nil, fmt.Errorf("parsing -tw begin time %q: %w", parts[0], err)
		}
		cfg.BeginTime = begin
		if len(parts) > 1 {
			end, err := normalizeTime(parts[1])
			if err != nil {
				return nil, fmt.Errorf("parsing -tw end time %q: %w", parts[1], err)
			}
			cfg.EndTime = end
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// normalizeTime accepts either the wire YYYY,MM,DD,HH,MM,SS layout
// verbatim, or any format dateparse can recognize (e.g. RFC3339,
// "2026-07-29 12:00:00"), and returns the wire layout either way.
func normalizeTime(s string) (string, error) {
	if s == "" {
		return "", nil
	}
	if t, err := protocol.ParseTime(s); err == nil {
		return protocol.FormatTime(t), nil
	}
	t, err := dateparse.ParseAny(s)
	if err != nil {
		return "", err
	}
	return protocol.FormatTime(t), nil
}

func splitSelectors(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Fields(s)
}
