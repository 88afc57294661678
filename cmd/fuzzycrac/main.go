// v0
// cmd/fuzzycrac/main.go
package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nrgchamp/fuzzycrac/internal/alerts"
	"nrgchamp/fuzzycrac/internal/api"
	"nrgchamp/fuzzycrac/internal/circuitbreaker"
	"nrgchamp/fuzzycrac/internal/config"
	"nrgchamp/fuzzycrac/internal/controller"
	"nrgchamp/fuzzycrac/internal/fuzzy"
	"nrgchamp/fuzzycrac/internal/logging"
	"nrgchamp/fuzzycrac/internal/metrics"
	"nrgchamp/fuzzycrac/internal/simulation"
)

func main() {
	boot := slog.New(slog.NewTextHandler(os.Stdout, nil))
	cfg, err := config.LoadEnvAndFiles(boot)
	if err != nil {
		boot.Error("config error", "err", err)
		os.Exit(1)
	}
	log, logFile := logging.Init(cfg.LogPath, cfg.LogLevel)
	defer logFile.Close()
	log.Info("config loaded",
		"bind", cfg.HTTPBind,
		"properties", cfg.PropertiesPath,
		"setpoint", cfg.Setpoint,
		"samples", cfg.DefuzzSamples,
		"mqtt", cfg.MQTTBroker,
		"kafka", cfg.KafkaBrokers,
		"nats", cfg.NATSURL)

	m := metrics.New()
	engine, err := fuzzy.NewDefaultEngine(fuzzy.WithResolution(cfg.DefuzzSamples), fuzzy.WithObserver(m))
	if err != nil {
		log.Error("rule base rejected", "err", err)
		os.Exit(1)
	}
	log.Info("fuzzy engine ready", "rules", engine.RuleBase().Len(), "resolution", engine.Resolution())

	ctl, err := controller.New(engine, cfg.Setpoint)
	if err != nil {
		log.Error("controller init failed", "err", err)
		os.Exit(1)
	}
	sim := simulation.New(engine,
		simulation.WithModel(cfg.Model),
		simulation.WithEnvironment(cfg.Environment),
		simulation.WithLogger(log),
		simulation.WithRunObserver(m))

	sinks, closers, dialErrs := dialSinks(cfg, log, m)
	var monitor *alerts.Monitor
	bus := alerts.NewBus(sinks,
		alerts.WithBusLogger(log),
		alerts.WithPublishObserver(m),
		alerts.WithFailureReporter(func(msg string) { monitor.Communication(msg) }))
	monitor = alerts.NewMonitor(cfg.Alerts,
		alerts.WithLogger(log),
		alerts.WithPublisher(bus),
		alerts.WithAlertObserver(m))
	for _, err := range dialErrs {
		monitor.Communication(err.Error())
	}
	if st := bus.Status(); st.SimulationMode {
		log.Info("no broker configured; alerts kept locally (simulation mode)")
	}

	h := &api.Handlers{
		Log:         log,
		Engine:      engine,
		Controller:  ctl,
		Simulator:   sim,
		Monitor:     monitor,
		Bus:         bus,
		Setpoint:    cfg.Setpoint,
		InitialTemp: cfg.InitialTemp,
		Started:     time.Now(),
	}
	srv := api.NewServer(cfg.HTTPBind, log, api.Wrap(api.NewRouter(h, m), logFileWriter(logFile)))

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "err", err)
		}
	}()
	log.Info("fuzzycrac service started")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		log.Error("shutdown error", "err", err)
	}
	for _, c := range closers {
		if err := c.Close(); err != nil {
			log.Warn("sink close failed", "err", err)
		}
	}
	log.Info("fuzzycrac service stopped")
}

// dialSinks connects every configured broker. Brokers that cannot be
// reached are skipped and reported; the local sink is always present.
func dialSinks(cfg *config.AppConfig, log *slog.Logger, m *metrics.Metrics) ([]alerts.Sink, []io.Closer, []error) {
	var (
		sinks   []alerts.Sink
		closers []io.Closer
		errs    []error
	)
	guard := func(s alerts.Sink) alerts.Sink {
		b := circuitbreaker.New(s.Name(), cfg.Circuit,
			circuitbreaker.WithLogger(log),
			circuitbreaker.OnStateChange(m.BreakerHook()))
		m.SetCircuitBreakerState(s.Name(), circuitbreaker.Closed)
		return alerts.Guard(s, b)
	}

	if cfg.MQTTBroker != "" {
		s, err := alerts.DialMQTT(cfg.MQTTBroker, cfg.MQTTClientID, cfg.DialTimeout)
		if err != nil {
			log.Warn("mqtt unavailable", "broker", cfg.MQTTBroker, "err", err)
			errs = append(errs, err)
		} else {
			log.Info("mqtt connected", "broker", cfg.MQTTBroker)
			sinks = append(sinks, guard(s))
			closers = append(closers, s)
		}
	}
	if len(cfg.KafkaBrokers) > 0 {
		s := alerts.DialKafka(cfg.KafkaBrokers)
		log.Info("kafka writer ready", "brokers", cfg.KafkaBrokers)
		sinks = append(sinks, guard(s))
		closers = append(closers, s)
	}
	if cfg.NATSURL != "" {
		s, err := alerts.DialNATS(cfg.NATSURL, cfg.DialTimeout)
		if err != nil {
			log.Warn("nats unavailable", "url", cfg.NATSURL, "err", err)
			errs = append(errs, err)
		} else {
			log.Info("nats connected", "url", cfg.NATSURL)
			sinks = append(sinks, guard(s))
			closers = append(closers, s)
		}
	}
	sinks = append(sinks, alerts.NewMemorySink(cfg.LocalHistory))
	return sinks, closers, errs
}

// logFileWriter sends the access log to stdout plus the service log file
// when one is open.
func logFileWriter(c io.Closer) io.Writer {
	if f, ok := c.(*os.File); ok {
		return io.MultiWriter(os.Stdout, f)
	}
	return os.Stdout
}
