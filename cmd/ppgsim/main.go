// Command ppgsim runs a full capture session against a synthetic camera and
// feeds the result through the screening workflow. Live view updates can be
// mirrored to NATS and to websocket viewers.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"ppg-screening/internal/analysis"
	"ppg-screening/internal/bp"
	"ppg-screening/internal/capture"
	"ppg-screening/internal/config"
	"ppg-screening/internal/database"
	"ppg-screening/internal/handler"
	"ppg-screening/internal/i18n"
	"ppg-screening/internal/logging"
	"ppg-screening/internal/models"
	"ppg-screening/internal/profiler"
	"ppg-screening/internal/report"
	"ppg-screening/internal/stream"

	"go.uber.org/zap"
)

func main() {
	var (
		hr        = flag.Float64("hr", 72, "simulated heart rate in bpm")
		noise     = flag.Float64("noise", 0.5, "brightness noise amplitude")
		irregular = flag.Bool("irregular", false, "simulate an irregular beat pattern")
		duration  = flag.Duration("duration", 30*time.Second, "measurement duration")
		countdown = flag.Int("countdown", 5, "countdown seconds, -1 to skip")
		practice  = flag.Bool("practice", false, "practice run, nothing is stored")
		userID    = flag.String("user", "sim-user", "user id for stored readings")
		locale    = flag.String("locale", "", "message locale")
		device    = flag.String("device", "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36", "device signature")
		persist   = flag.Bool("persist", false, "store the result in the configured database")
		natsURL   = flag.String("nats", "", "NATS url for live updates (defaults to NATS_URL)")
		wsAddr    = flag.String("ws", "", "serve live updates to websocket viewers on this address")
		rateLimit = flag.Float64("rate", 10, "max live updates per second within a phase")
	)
	flag.Parse()

	cfg := config.LoadConfig()
	if *locale == "" {
		*locale = cfg.DefaultLocale
	}
	if *natsURL == "" {
		*natsURL = cfg.NATSURL
	}

	logger, logCloser, err := logging.NewLogger(logging.Options{
		Level:       cfg.LogLevel,
		Format:      "console",
		ServiceName: "ppgsim",
		ToConsole:   true,
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logCloser.Close()
	defer logger.Sync()

	var catalog i18n.Translator = i18n.Default()
	if cfg.CatalogPath != "" {
		c, err := i18n.Load(cfg.CatalogPath)
		if err != nil {
			logger.Fatal("failed to load message catalog", zap.Error(err))
		}
		catalog = c
	}

	info := profiler.New(catalog, *locale).Profile(*device)
	logger.Info("device profiled",
		zap.String("model", info.Model),
		zap.String("camera_position", info.CameraPosition),
		zap.Bool("old_device", info.IsOldDevice),
	)

	cam := capture.NewSyntheticCamera(*hr)
	cam.Noise = *noise
	cam.HasTorch = info.HasTorch
	if *irregular {
		cam.RRPatternMs = []float64{820, 610, 1040, 700, 930, 560, 1100}
	}

	analyzer := analysis.New(cfg.Thresholds())
	ctrl := capture.NewController(cam, info, capture.Options{
		CountdownSeconds: *countdown,
		Duration:         *duration,
		Locale:           *locale,
		Clock:            capture.SystemClock{},
		Analyzer:         analyzer,
		Translator:       catalog,
	}, logger)
	defer ctrl.Close()

	var pubs []stream.Publisher
	if *natsURL != "" {
		nc, err := stream.Connect(*natsURL, "ppgsim")
		if err != nil {
			logger.Warn("live updates over NATS disabled", zap.String("url", *natsURL), zap.Error(err))
		} else {
			defer nc.Drain()
			pubs = append(pubs, stream.NewNATSPublisher(nc))
		}
	}
	if *wsAddr != "" {
		hub := stream.NewHub(logger)
		mux := http.NewServeMux()
		mux.Handle("/ws", hub)
		server := &http.Server{Addr: *wsAddr, Handler: mux}
		go func() {
			logger.Info("live view server running", zap.String("addr", *wsAddr))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("live view server failed", zap.Error(err))
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			server.Shutdown(ctx)
		}()
		pubs = append(pubs, hub)
	}
	live := stream.NewLivePublisher(cfg.LiveSubject, *rateLimit, logger, pubs...)

	var phaseMu sync.Mutex
	var lastPhase capture.Phase
	ctrl.OnUpdate(func(v capture.ViewModel) {
		live.Update(v)
		phaseMu.Lock()
		changed := v.Phase != lastPhase
		lastPhase = v.Phase
		phaseMu.Unlock()
		if changed {
			fmt.Printf("[%s] %s\n", v.Phase, v.Message)
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("cancelling capture")
		cancel()
		ctrl.Cancel()
	}()

	var store handler.ReadingStore = discardStore{}
	if *persist {
		repo, err := database.NewRepository(cfg.DBDriver, cfg.DSN(), logger)
		if err != nil {
			logger.Fatal("failed to initialize database", zap.Error(err))
		}
		defer repo.Close()
		store = repo
	}
	assembler := report.NewAssembler(bp.NewEstimator(cfg.BPSeed, cfg.BPJitter))
	processor := handler.NewScreeningProcessor(store, assembler, handler.ProcessorOptions{
		Analyzer:    analyzer,
		Translator:  catalog,
		WorkflowTTL: cfg.WorkflowTTL,
	}, logger)

	_, err = repeatUntilStored(ctx, func(ctx context.Context) (*models.ReportPayload, error) {
		res, err := ctrl.Run(ctx, *practice)
		if err != nil {
			return nil, err
		}
		sent, dropped := live.Stats()
		logger.Info("capture finished",
			zap.String("result", res.String()),
			zap.Int("samples", len(res.Samples)),
			zap.Float64("fps", res.FPS),
			zap.Int("live_sent", sent),
			zap.Int("live_throttled", dropped),
		)
		if res.Practice {
			fmt.Printf("practice signal quality: %s\n", res.Quality)
		}

		payload, err := processor.ProcessCapture(ctx, handler.CaptureOutcome{
			UserID:    *userID,
			Locale:    *locale,
			Practice:  res.Practice,
			Analysis:  res.Analysis,
			Amplitude: res.Amplitude,
			Device:    res.Device.Model,
			Camera:    string(res.Facing),
			FPS:       res.FPS,
			At:        res.FinishedAt,
		})
		if err != nil {
			return nil, fmt.Errorf("process capture: %w", err)
		}
		out, _ := json.MarshalIndent(payload, "", "  ")
		fmt.Println(string(out))
		return payload, nil
	}, func(p *models.ReportPayload) {
		fmt.Println(p.Message)
	})
	switch {
	case err == nil:
	case errors.Is(err, capture.ErrCancelled) || ctx.Err() != nil:
		fmt.Println("capture cancelled")
	default:
		logger.Fatal("capture failed", zap.Bool("camera_error", capture.IsCameraError(err)), zap.Error(err))
	}
}

// needsRepeat reports whether the series behind p still wants another capture.
func needsRepeat(p *models.ReportPayload) bool {
	return !p.Persisted && !p.Practice && p.Repeat.Count < p.Repeat.Total
}

// repeatUntilStored runs captures until one closes its series. onRepeat is
// called between captures with the payload that asked for another one.
func repeatUntilStored(ctx context.Context, run func(context.Context) (*models.ReportPayload, error), onRepeat func(*models.ReportPayload)) (*models.ReportPayload, error) {
	for {
		p, err := run(ctx)
		if err != nil {
			return nil, err
		}
		if !needsRepeat(p) {
			return p, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if onRepeat != nil {
			onRepeat(p)
		}
	}
}

// discardStore accepts readings without keeping them.
type discardStore struct{}

func (discardStore) CreateReading(context.Context, models.BPReading) (string, error) {
	return "", nil
}

func (discardStore) ListReadings(context.Context, string, int) ([]models.BPReading, error) {
	return nil, nil
}
