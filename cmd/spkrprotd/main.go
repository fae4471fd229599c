/*
DESCRIPTION
  spkrprotd is the speaker protection daemon. It calibrates the speakers of
  the platform once they have been idle long enough, and runs runtime
  protection while any monitored playback device is running.

LICENSE
  Copyright (C) 2026 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package spkrprotd is the speaker protection daemon. Platform configuration
// is read from a JSON file; speaker protection variables are taken from the
// same file and, when available, from the cloud through netsender.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/daemon"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ausocean/client/pi/netlogger"
	"github.com/ausocean/client/pi/netsender"
	"github.com/ausocean/spkrprot/protection"
	"github.com/ausocean/spkrprot/protection/config"
	"github.com/ausocean/utils/logging"
)

// Current software version.
const version = "v0.1.0"

const progName = "spkrprotd"

// Logging configuration.
const (
	logPath      = "/var/log/spkrprot/spkrprotd.log"
	logMaxSize   = 100 // MB
	logMaxBackup = 5
	logMaxAge    = 28 // days
	logVerbosity = logging.Info
	logSuppress  = true
)

// Misc constants.
const (
	defaultConfigPath = "/etc/spkrprot.json"
	monitorInterval   = 250 * time.Millisecond
	netSendRetryTime  = 5 * time.Second
	defaultSleepTime  = 60 // Seconds
	shutdownTime      = 5 * time.Second
)

// statePin reports the calibration state to the cloud.
const statePin = "X50"

func main() {
	showVersion := flag.Bool("version", false, "show version")
	cfgPath := flag.String("config", defaultConfigPath, "path of the configuration file")
	cloud := flag.Bool("cloud", true, "take variables from and send logs to the cloud")
	flag.Parse()
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	// Create lumberjack logger to handle logging to file.
	fileLog := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    logMaxSize,
		MaxBackups: logMaxBackup,
		MaxAge:     logMaxAge,
	}

	// Create netlogger to handle logging to cloud.
	netLog := netlogger.New()

	log := logging.New(logVerbosity, io.MultiWriter(fileLog, netLog), logSuppress)
	log.Info("starting "+progName, "version", version)

	fc, err := loadConfig(*cfgPath)
	if err != nil {
		log.Fatal("could not load config", "error", err)
	}
	cfg := config.Config{Logger: log}
	cfg.Update(fc.Vars)
	err = cfg.Validate()
	if err != nil {
		log.Fatal("invalid config", "error", err)
	}
	log.SetLevel(cfg.LogLevel)

	p, err := openPlatform(log, fc, &cfg)
	if err != nil {
		log.Fatal("could not open platform", "error", err)
	}
	defer p.close()

	temp, err := p.sensor(log, &cfg)
	if err != nil {
		log.Fatal("could not create temperature sensor", "error", err)
	}

	var opts []protection.Option
	if cfg.NATSURL != "" {
		nc, err := connectNATS(log, cfg.NATSURL)
		if err != nil {
			log.Error("events will not be published", "error", err)
		} else {
			defer nc.Drain()
			opts = append(opts, protection.WithEventSink(&natsSink{l: log, conn: nc, subject: cfg.NATSSubject}))
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	// Event dispatch must be running before the first calibration starts.
	g.Go(func() error { return p.rm.Run(ctx) })

	sp, err := protection.New(cfg, p.rm, temp, opts...)
	if err != nil {
		log.Fatal("could not initialise speaker protection", "error", err)
	}

	pb := &playback{sp: sp}
	g.Go(func() error {
		err := p.monitor.Run(ctx, pb.set)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		return watch(ctx, log, *cfgPath, func(vars map[string]string) {
			err := sp.Update(vars)
			if err != nil {
				log.Warning("could not apply config file vars", "error", err)
			}
		})
	})

	if cfg.MetricsAddress != "" {
		g.Go(func() error { return serveMetrics(ctx, log, cfg.MetricsAddress) })
	}

	if *cloud {
		ns, err := netsender.New(log, nil, readPin(sp), nil, netsender.WithVarTypes(createVarMap()))
		if err != nil {
			log.Warning("could not initialise netsender client, running without cloud", "error", err)
		} else {
			g.Go(func() error { return run(ctx, sp, ns, log, netLog) })
		}
	}

	g.Go(func() error { return watchdog(ctx) })

	_, err = daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		log.Warning("could not notify systemd", "error", err)
	}
	log.Info("speaker protection running", "state", sp.State().String())

	err = g.Wait()
	if err != nil {
		log.Error("exiting", "error", err)
	}
	daemon.SdNotify(false, daemon.SdNotifyStopping)
	pb.release()
	sp.Close()
	log.Info(progName + " stopped")
}

// run starts the cloud loop. This will run netsender on every pass of the loop
// (sleeping inbetween), check vars, and if changed, update speaker protection.
func run(ctx context.Context, sp *protection.SpeakerProtection, ns *netsender.Sender, l logging.Logger, nl *netlogger.Logger) error {
	var vs int
	for ctx.Err() == nil {
		l.Debug("running netsender")
		err := ns.Run()
		if err != nil {
			l.Warning("run failed, retrying", "error", err)
			wait(ctx, netSendRetryTime)
			continue
		}

		l.Debug("sending logs")
		err = nl.Send(ns)
		if err != nil {
			l.Warning("logs could not be sent", "error", err)
		}

		newVs := ns.VarSum()
		if vs == newVs {
			wait(ctx, monitorPeriod(ns, l))
			continue
		}
		vs = newVs
		l.Info("varsum changed", "vs", vs)

		vars, err := ns.Vars()
		if err != nil {
			l.Error("netsender failed to get vars", "error", err)
			wait(ctx, netSendRetryTime)
			continue
		}
		l.Debug("got new vars", "vars", vars)

		err = sp.Update(vars)
		if err != nil {
			l.Warning("could not update speaker protection", "error", err)
		} else {
			l.Info("speaker protection reconfigured")
		}
		wait(ctx, monitorPeriod(ns, l))
	}
	return nil
}

func createVarMap() map[string]string {
	m := make(map[string]string)
	for _, v := range config.Variables {
		m[v.Name] = v.Type
	}
	return m
}

// readPin provides a callback function of consistent signature for use by
// netsender to retrieve software defined pin values.
func readPin(sp *protection.SpeakerProtection) func(pin *netsender.Pin) error {
	return func(pin *netsender.Pin) error {
		if pin.Name == statePin {
			pin.Value = int(sp.State())
		}
		return nil
	}
}

// monitorPeriod returns the netsender monitoring period.
func monitorPeriod(ns *netsender.Sender, l logging.Logger) time.Duration {
	t, err := strconv.Atoi(ns.Param("mp"))
	if err != nil {
		l.Debug("could not get monitor period, using default", "error", err)
		t = defaultSleepTime
	}
	return time.Duration(t) * time.Second
}

func wait(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

func serveMetrics(ctx context.Context, l logging.Logger, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: shutdownTime}

	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTime)
		defer cancel()
		srv.Shutdown(sctx)
	}()

	l.Info("serving metrics", "address", addr)
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return fmt.Errorf("metrics server failed: %w", err)
}

// watchdog keeps the systemd watchdog fed if it is enabled.
func watchdog(ctx context.Context) error {
	d, err := daemon.SdWatchdogEnabled(false)
	if err != nil || d == 0 {
		return err
	}
	t := time.NewTicker(d / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			daemon.SdNotify(false, daemon.SdNotifyWatchdog)
		}
	}
}
