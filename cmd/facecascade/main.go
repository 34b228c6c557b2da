package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/ayusman/facecascade/internal/boost"
	"github.com/ayusman/facecascade/internal/classifier"
	"github.com/ayusman/facecascade/internal/config"
	"github.com/ayusman/facecascade/internal/feature"
	"github.com/ayusman/facecascade/internal/featurestore"
	"github.com/ayusman/facecascade/internal/logger"
	"github.com/ayusman/facecascade/internal/patch"
	"github.com/ayusman/facecascade/internal/patch/gocvloader"
	"github.com/ayusman/facecascade/internal/publish"
	"github.com/ayusman/facecascade/internal/rediscache"
	"github.com/ayusman/facecascade/internal/server"
	"github.com/ayusman/facecascade/internal/store"
)

const usage = `usage: facecascade <command> [flags]

commands:
  train  -train DIR -test DIR [-rounds N]
  test   -dir DIR [-run ID] [-layers N]
  serve`

func main() {
	logger.SetupLogging()
	log := logger.NewLogger("facecascade")

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	training, err := config.LoadTraining(cfg.ProfilePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid training profile")
	}

	st, err := store.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DatabasePath).Msg("Failed to initialize store")
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, cleanup := newClassifier(cfg, training, st, log)
	defer cleanup()

	switch os.Args[1] {
	case "train":
		err = runTrain(ctx, c, os.Args[2:])
	case "test":
		err = runTest(ctx, c, os.Args[2:])
	case "serve":
		srv := server.New(server.Config{StaticDir: cfg.StaticDir, Store: st, Classifier: c})
		log.Info().Str("addr", cfg.ServerAddr).Msg("Starting server")
		err = srv.ListenAndServe(cfg.ServerAddr)
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	if err != nil {
		var inv *boost.InvariantError
		if errors.As(err, &inv) {
			log.Fatal().Err(err).
				Int("round", inv.Round).
				Int("member", inv.Member).
				Int64("feature", inv.FeatureIndex).
				Float64("weighted_error", inv.WeightedError).
				Msg("Training invariant violated")
		}
		log.Fatal().Err(err).Str("command", os.Args[1]).Msg("Command failed")
	}
}

// newClassifier wires the optional broker, bucket and cache integrations that
// are configured in the environment. cleanup releases their connections.
func newClassifier(cfg *config.Config, training config.Training, st *store.Store, log zerolog.Logger) (*classifier.Classifier, func()) {
	var closers []func() error

	var loader patch.Loader = patch.NewImagingLoader(cfg.Width, cfg.Height)
	if cfg.Loader == "gocv" {
		loader = gocvloader.New(cfg.Width, cfg.Height)
	}

	c := classifier.New(st, feature.NewCatalog(cfg.Width, cfg.Height), loader, training, log)
	c.Workers = cfg.Workers

	notifiers := publish.Multi{publish.LogNotifier{Log: log}}
	if amqpCfg, err := publish.ReadAMQPConfig(); err != nil {
		log.Warn().Err(err).Msg("Could not read AMQP configuration")
	} else if amqpCfg.URL != "" {
		n, err := publish.NewAMQPNotifier(amqpCfg)
		if err != nil {
			log.Warn().Err(err).Msg("Could not connect to AMQP broker, events are only logged")
		} else {
			notifiers = append(notifiers, n)
			closers = append(closers, n.Close)
		}
	}
	c.Notifier = notifiers

	if s3Cfg, err := publish.ReadS3Config(); err != nil {
		log.Warn().Err(err).Msg("Could not read S3 configuration")
	} else if s3Cfg.Bucket != "" {
		e, err := publish.NewS3Exporter(s3Cfg, log)
		if err != nil {
			log.Warn().Err(err).Msg("Could not create S3 exporter")
		} else {
			c.Exporter = e
		}
	}

	if redisCfg, err := rediscache.ReadConfig(); err != nil {
		log.Warn().Err(err).Msg("Could not read Redis configuration")
	} else if redisCfg.Enabled() {
		client := rediscache.NewClient(redisCfg)
		c.Wrap = func(src featurestore.Source, pool *store.Pool) featurestore.Source {
			return rediscache.New(client, src, pool.ID, redisCfg, log)
		}
		closers = append(closers, client.Close)
	}

	return c, func() {
		for _, closeFn := range closers {
			if err := closeFn(); err != nil {
				log.Warn().Err(err).Msg("Could not close connection")
			}
		}
	}
}

func runTrain(ctx context.Context, c *classifier.Classifier, args []string) error {
	fs := flag.NewFlagSet("train", flag.ExitOnError)
	trainDir := fs.String("train", "", "training dataset directory")
	testDir := fs.String("test", "", "validation dataset directory")
	rounds := fs.Int("rounds", 0, "maximum number of layers (0 estimates it)")
	fs.Parse(args)

	if *trainDir == "" || *testDir == "" {
		return errors.New("train: -train and -test are required")
	}

	res, err := c.Train(ctx, classifier.TrainRequest{TrainDir: *trainDir, TestDir: *testDir, Rounds: *rounds})
	if err != nil {
		return err
	}

	return printJSON(struct {
		RunID         string    `json:"run_id"`
		Layers        []int     `json:"committees"`
		Tweaks        []float64 `json:"tweaks"`
		AccumulatedFP float64   `json:"accumulated_fp"`
		GoalReached   bool      `json:"goal_reached"`
		ExportedTo    string    `json:"exported_to,omitempty"`
	}{
		RunID:         res.RunID,
		Layers:        res.Cascade.CommitteeSizes(),
		Tweaks:        res.Cascade.Tweaks(),
		AccumulatedFP: res.AccumulatedFP,
		GoalReached:   res.GoalReached,
		ExportedTo:    res.ExportedTo,
	})
}

func runTest(ctx context.Context, c *classifier.Classifier, args []string) error {
	fs := flag.NewFlagSet("test", flag.ExitOnError)
	dir := fs.String("dir", "", "test dataset directory")
	runID := fs.String("run", "", "run to evaluate (default: latest completed)")
	layers := fs.Int("layers", -1, "evaluate only the first N layers")
	fs.Parse(args)

	if *dir == "" {
		return errors.New("test: -dir is required")
	}

	res, err := c.Test(ctx, classifier.TestRequest{Dir: *dir, RunID: *runID, LayerLimit: *layers})
	if err != nil {
		return err
	}
	return printJSON(res)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
