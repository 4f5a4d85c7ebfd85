// Command lanepilot runs the lane-keeping and obstacle-avoidance agent
// against the kinematic simulator, with detections either simulated or
// read from a serial-attached ranging sensor.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/lanepilot/internal/agent"
	"github.com/banshee-data/lanepilot/internal/config"
	"github.com/banshee-data/lanepilot/internal/monitor"
	"github.com/banshee-data/lanepilot/internal/monitoring"
	"github.com/banshee-data/lanepilot/internal/radar"
	"github.com/banshee-data/lanepilot/internal/runner"
	"github.com/banshee-data/lanepilot/internal/sensorfeed"
	"github.com/banshee-data/lanepilot/internal/sim"
	"github.com/banshee-data/lanepilot/internal/telemetry"
	"github.com/banshee-data/lanepilot/internal/timeutil"
	"github.com/banshee-data/lanepilot/internal/version"
)

var (
	configPath  = flag.String("config", "", "Path to a control config JSON file (defaults are built in)")
	devMode     = flag.Bool("dev", false, "Simulate the ranging sensor instead of reading the serial port")
	radarPort   = flag.String("radar-port", "/dev/ttyUSB0", "Serial port of the ranging sensor (ignored in dev mode)")
	radarBaud   = flag.Int("radar-baud", sensorfeed.DefaultBaudRate, "Baud rate of the ranging sensor")
	dbPath      = flag.String("db", "", "Telemetry database path (empty disables recording)")
	listen      = flag.String("listen", ":8080", "Listen address for the status API and debug pages (empty disables)")
	duration    = flag.Duration("duration", 0, "Stop after this much simulated time (0 runs until interrupted)")
	fast        = flag.Bool("fast", false, "Step the clock as fast as possible instead of in real time")
	debug       = flag.Bool("debug", false, "Enable per-tick debug logging")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

// options is everything run needs from the command line.
type options struct {
	ConfigPath string
	Dev        bool
	RadarPort  string
	RadarBaud  int
	DBPath     string
	Listen     string
	Duration   time.Duration
	Fast       bool
}

func optionsFromFlags() options {
	return options{
		ConfigPath: *configPath,
		Dev:        *devMode,
		RadarPort:  *radarPort,
		RadarBaud:  *radarBaud,
		DBPath:     *dbPath,
		Listen:     *listen,
		Duration:   *duration,
		Fast:       *fast,
	}
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	monitoring.SetDebug(*debug)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sum, err := run(ctx, optionsFromFlags())
	if err != nil {
		log.Fatalf("lanepilot: %v", err)
	}
	log.Printf("run complete: %d ticks in %s, %d obstacles spawned, %d removed, %d transitions, final state %s",
		sum.Ticks, sum.Elapsed, sum.Spawned, sum.Removed, sum.Transitions, sum.Final)
}

func loadConfig(path string) (*config.ControlConfig, error) {
	if path == "" {
		return config.DefaultControlConfig(), nil
	}
	return config.LoadControlConfig(path)
}

func run(ctx context.Context, opts options) (runner.Summary, error) {
	ctl, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return runner.Summary{}, err
	}

	var clock timeutil.Clock = &timeutil.RealClock{}
	if opts.Fast {
		clock = timeutil.NewStepClock(time.Now(), ctl.GetFixedDelta())
	}

	world := sim.NewWorld(sim.DefaultWorldConfig(), sim.TwoLaneRoad(), sim.DefaultVehicleConfig(), 1, 0, 0)
	slot := sensorfeed.NewSlot[radar.Batch]()

	mode := "dev"
	var feed *sensorfeed.Feed[sensorPort]
	if !opts.Dev {
		mode = "serial"
		if opts.RadarPort == "" {
			return runner.Summary{}, errors.New("a radar port is required outside dev mode")
		}
		port, err := openSensor(opts.RadarPort, sensorfeed.PortOptions{BaudRate: opts.RadarBaud})
		if err != nil {
			return runner.Summary{}, fmt.Errorf("failed to open radar port: %w", err)
		}
		feed = sensorfeed.NewFeed[sensorPort](port, slot)
		defer feed.Close()
	}

	history := monitor.NewHistory(900)
	observers := agent.MultiObserver{history}

	var (
		store    *telemetry.Store
		recorder *telemetry.Recorder
	)
	if opts.DBPath != "" {
		store, err = telemetry.Open(opts.DBPath)
		if err != nil {
			return runner.Summary{}, fmt.Errorf("failed to open telemetry db: %w", err)
		}
		defer store.Close()

		cfgJSON, err := json.Marshal(ctl.Resolved())
		if err != nil {
			return runner.Summary{}, fmt.Errorf("failed to encode control config: %w", err)
		}
		runID, err := store.StartRun(ctx, clock.Now(), mode, string(cfgJSON))
		if err != nil {
			return runner.Summary{}, err
		}
		log.Printf("recording run %s to %s", runID, opts.DBPath)
		recorder = telemetry.NewRecorder(store, runID, telemetry.DefaultRecorderOptions())
		observers = append(observers, recorder)
	}

	a := agent.New(agent.ConfigFromControl(ctl), agent.Deps{
		Vehicle:  world.Ego,
		Road:     world.Map(),
		Sensor:   slot,
		Clock:    clock,
		Observer: observers,
	})

	var mux *http.ServeMux
	if opts.Listen != "" {
		mux = http.NewServeMux()
		srv := monitor.NewServer(a, history, ctl, mode)
		srv.AttachAdminRoutes(mux)
		if store != nil {
			if err := store.AttachAdminRoutes(mux); err != nil {
				return runner.Summary{}, err
			}
		}
		if feed != nil {
			feed.AttachAdminRoutes(mux)
		}
		mux.Handle("/api/", http.StripPrefix("/api", srv.ServeMux()))
	}

	rcfg := runner.ConfigFromControl(ctl)
	rcfg.Duration = opts.Duration
	deps := runner.Deps{World: world, Agent: a, Clock: clock}
	if opts.Dev {
		deps.Detections = slot
	}
	r, err := newRunner(rcfg, deps)
	if err != nil {
		return runner.Summary{}, err
	}

	// Setup is complete; nothing below returns before the goroutines are
	// waited for.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var wg sync.WaitGroup

	if feed != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := feed.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("sensor feed stopped: %v", err)
			}
		}()
	}

	// The recorder outlives the control loop so the final ticks are
	// flushed after the loop stops.
	recCtx, stopRecorder := context.WithCancel(context.Background())
	defer stopRecorder()
	var recWG sync.WaitGroup
	if recorder != nil {
		recWG.Add(1)
		go func() {
			defer recWG.Done()
			recorder.Run(recCtx)
		}()
	}

	if mux != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := monitor.Serve(ctx, opts.Listen, mux); err != nil {
				log.Printf("HTTP server error: %v", err)
			}
		}()
	}

	sum, err := r.Run(ctx)

	cancel()
	wg.Wait()

	if recorder != nil {
		stopRecorder()
		recWG.Wait()
		if ferr := recorder.Finish(context.Background(), clock.Now()); ferr != nil {
			log.Printf("failed to finish run: %v", ferr)
		}
		stats := recorder.Stats()
		log.Printf("telemetry: %d ticks written, %d dropped, %d write errors", stats.Written, stats.Dropped, stats.Errors)
	}
	return sum, err
}

// sensorPort is the port type the binary opens; tests swap openSensor for
// an in-memory port.
type sensorPort = sensorfeed.Porter

// newRunner is swapped by tests to fail late in setup.
var newRunner = runner.New

var openSensor = func(path string, opts sensorfeed.PortOptions) (sensorPort, error) {
	p, err := sensorfeed.OpenPort(path, opts)
	if err != nil {
		return nil, err
	}
	return p, nil
}
