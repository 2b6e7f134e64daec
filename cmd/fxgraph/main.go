// Command fxgraph runs a live effects pipeline on a synthetic test tone.
//
// Usage:
//
//	fxgraph [flags]
//
// The pipeline holds a compressor and a limiter between two identity
// boundaries, followed by a spectrum analyzer. Metering notifications are
// logged, or written to stdout as JSON lines with -json. Configuration comes
// from FXGRAPH_* environment variables (a .env file is read when present)
// and the flags below.
//
// Examples:
//
//	fxgraph -duration 3s
//	fxgraph -order limiter,compressor -json
//	fxgraph -settings effects.yaml -save effects.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/bytedance/sonic"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/cwbudde/algo-fxgraph/dsp/core"
	"github.com/cwbudde/algo-fxgraph/dsp/effectchain"
	tone "github.com/cwbudde/algo-fxgraph/dsp/signal"
	"github.com/cwbudde/algo-fxgraph/host/graph"
	"github.com/cwbudde/algo-fxgraph/internal/config"
	"github.com/cwbudde/algo-fxgraph/internal/logging"
	"github.com/cwbudde/algo-fxgraph/internal/settings/redisstore"
	"github.com/cwbudde/algo-fxgraph/plugin/lsp"
)

type options struct {
	settingsFile string
	saveFile     string
	duration     time.Duration
	order        string
	json         bool
	freq         float64
	level        float64
}

type event struct {
	Time        time.Time          `json:"time"`
	Node        string             `json:"node"`
	InputLevel  [2]float64         `json:"input_level_db"`
	OutputLevel [2]float64         `json:"output_level_db"`
	Meters      map[string]float64 `json:"meters"`
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "fxgraph: loading .env: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "fxgraph: %v\n", err)
		os.Exit(1)
	}

	opts := options{}
	flag.StringVar(&opts.settingsFile, "settings", cfg.SettingsFile, "YAML settings file to load")
	flag.StringVar(&opts.saveFile, "save", "", "write the final settings to this YAML file")
	flag.DurationVar(&opts.duration, "duration", cfg.Duration, "run time, 0 runs until interrupted")
	flag.StringVar(&opts.order, "order", "", "comma separated plugin order applied while running")
	flag.BoolVar(&opts.json, "json", false, "write notifications to stdout as JSON lines")
	flag.Float64Var(&opts.freq, "freq", 220, "test tone frequency in Hz")
	flag.Float64Var(&opts.level, "level", -6, "test tone level in dBFS")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: fxgraph [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Runs a live compressor/limiter pipeline on a test tone.\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	log, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		fmt.Fprintf(os.Stderr, "fxgraph: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, opts, log); err != nil {
		log.Error().Err(err).Msg("fxgraph failed")
		os.Exit(1)
	}
}

func run(cfg config.Config, opts options, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	src, err := tone.NewSource(opts.freq, core.DBToLinear(opts.level),
		[]core.ProcessorOption{core.WithSampleRate(cfg.SampleRate), core.WithBlockSize(cfg.BlockSize)},
		tone.WithNoise(0.01), tone.WithSeed(1))
	if err != nil {
		return err
	}

	var (
		peakMu  sync.Mutex
		outPeak float64
	)

	mgr, err := effectchain.NewManager(effectchain.ManagerConfig{
		SampleRate:         cfg.SampleRate,
		BlockSize:          cfg.BlockSize,
		Quantum:            cfg.Quantum(),
		NotificationWindow: cfg.NotificationWindow,
		PostMessages:       cfg.PostMessages,
		Plugins:            lsp.NewRegistry(),
		Source:             func(out *graph.Buffer) { src.Fill(out.Left, out.Right) },
		Sink: func(in *graph.Buffer) {
			p := max(core.Peak(in.Left), core.Peak(in.Right))

			peakMu.Lock()
			outPeak = max(outPeak, p)
			peakMu.Unlock()
		},
		Logger: log,
	})
	if err != nil {
		return err
	}

	fx, err := effectchain.NewEffects(mgr, effectchain.EffectsConfig{
		Name: "output",
		Nodes: []effectchain.NodeConfig{
			{Name: effectchain.KindCompressor, Kind: effectchain.KindCompressor},
			{Name: effectchain.KindLimiter, Kind: effectchain.KindLimiter},
		},
		Spectrum: true,
	})
	if err != nil {
		return err
	}

	if opts.settingsFile != "" {
		if err := mgr.Group().LoadFile(opts.settingsFile); err != nil {
			log.Warn().Err(err).Str("file", opts.settingsFile).Msg("settings partially applied")
		}
	}

	if cfg.RedisURL != "" {
		mirror, err := startMirror(ctx, cfg, mgr, log)
		if err != nil {
			return err
		}

		defer mirror.Detach()
	}

	notes := newPrinter(opts.json, log)

	for _, name := range fx.NodeNames() {
		node, err := fx.Node(name)
		if err != nil {
			return err
		}

		node.Notifications().Connect(notes.notification)
	}

	if err := mgr.Start(); err != nil {
		return err
	}

	if opts.order != "" {
		go func() {
			select {
			case <-ctx.Done():
				return
			case <-time.After(opts.duration / 3):
			}

			order := strings.Split(opts.order, ",")
			if err := fx.SetOrder(order); err != nil {
				log.Error().Err(err).Strs("order", order).Msg("cannot apply order")
			}
		}()
	}

	if opts.duration > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(opts.duration):
		}
	} else {
		<-ctx.Done()
	}

	blocks := mgr.Stream().Blocks()
	closeErr := mgr.Close()

	peakMu.Lock()
	log.Info().
		Uint64("blocks", blocks).
		Strs("order", fx.Watcher().Wired()).
		Float64("out_peak_db", core.LevelDB(outPeak)).
		Msg("done")
	peakMu.Unlock()

	if opts.saveFile != "" {
		if err := mgr.Group().SaveFile(opts.saveFile); err != nil {
			return errors.Join(closeErr, err)
		}
	}

	return closeErr
}

func startMirror(ctx context.Context, cfg config.Config, mgr *effectchain.Manager, log zerolog.Logger) (*redisstore.Mirror, error) {
	client, err := redisstore.Connect(ctx, cfg.RedisURL, cfg.RedisWait)
	if err != nil {
		return nil, err
	}

	mirror := redisstore.New(client, cfg.RedisPrefix, mgr.Group(), logging.Tagged(log, "redis"))

	// Remote state wins at startup; missing keys keep their local value.
	if err := mirror.Pull(ctx); err != nil {
		log.Warn().Err(err).Msg("redis pull incomplete")
	}

	mirror.Attach()

	go func() {
		if err := mirror.Watch(ctx); err != nil {
			log.Error().Err(err).Msg("redis watch stopped")
		}
	}()

	return mirror, nil
}

type printer struct {
	json bool
	log  zerolog.Logger
	mu   sync.Mutex
}

func newPrinter(json bool, log zerolog.Logger) *printer {
	return &printer{json: json, log: log}
}

func (p *printer) notification(n effectchain.Notification) {
	meters := make(map[string]float64, len(n.Meters))
	for _, m := range n.Meters {
		meters[m.Name] = m.Value
	}

	if !p.json {
		ev := p.log.Info().Str("node", n.Node).
			Floats64("in_db", n.InputLevel[:]).
			Floats64("out_db", n.OutputLevel[:])
		for name, v := range meters {
			ev = ev.Float64(name, v)
		}

		ev.Msg("meters")

		return
	}

	out, err := sonic.Marshal(event{
		Time:        time.Now(),
		Node:        n.Node,
		InputLevel:  n.InputLevel,
		OutputLevel: n.OutputLevel,
		Meters:      meters,
	})
	if err != nil {
		p.log.Error().Err(err).Msg("encode notification")
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	_, _ = os.Stdout.Write(append(out, '\n'))
}
