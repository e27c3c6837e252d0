package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/pprof"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"lobsim/config"
	"lobsim/engine"
	"lobsim/export"
	"lobsim/logging"
	"lobsim/sim"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	csvPath := flag.String("csv", "", "replay rows from this CSV instead of a random walk")
	writeCSV := flag.String("write-csv", "", "write the generated rows to this CSV")
	rows := flag.Int("rows", 0, "random-walk rows to generate")
	levels := flag.Int("levels", 0, "depth levels per random-walk row")
	basePrice := flag.Float64("base-price", 0, "starting mid of the random walk")
	batchSize := flag.Int("batch-size", 0, "rows per batch")
	workers := flag.Int("workers", 0, "concurrent batches; 1 keeps one continuous book")
	seed := flag.Int64("seed", 0, "seed for the random walk and the engine")
	kafkaBrokers := flag.String("kafka-brokers", "", "comma separated brokers; enables trade export")
	kafkaTopic := flag.String("kafka-topic", "", "trade export topic")
	cpuProfile := flag.String("cpuprofile", "", "write cpu profile to file")
	memProfile := flag.String("memprofile", "", "write heap profile to file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "csv":
			cfg.Sim.CSV = *csvPath
		case "rows":
			cfg.Sim.Rows = *rows
		case "levels":
			cfg.Sim.Levels = *levels
		case "base-price":
			cfg.Sim.BasePrice = *basePrice
		case "batch-size":
			cfg.Sim.BatchSize = *batchSize
		case "workers":
			cfg.Sim.Workers = *workers
		case "seed":
			cfg.Engine.Seed = *seed
		case "kafka-brokers":
			cfg.Kafka.Enabled = true
			cfg.Kafka.Brokers = strings.Split(*kafkaBrokers, ",")
		case "kafka-topic":
			cfg.Kafka.Topic = *kafkaTopic
		}
	})
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			logger.Fatal("create cpu profile", zap.Error(err))
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			logger.Fatal("start cpu profile", zap.Error(err))
		}
		defer pprof.StopCPUProfile()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	input, err := loadRows(cfg)
	if err != nil {
		logger.Error("load rows", zap.Error(err))
		return
	}
	if *writeCSV != "" {
		if err := saveRows(*writeCSV, input); err != nil {
			logger.Error("write rows", zap.Error(err))
			return
		}
	}

	simCfg := sim.Config{
		BatchSize:       cfg.Sim.BatchSize,
		Workers:         cfg.Sim.Workers,
		Engine:          cfg.EngineConfig(logger.Named("engine"), nil),
		InjectLiquidity: cfg.Sim.InjectLiquidity,
		RunID:           uuid.NewString(),
	}
	if cfg.Kafka.Enabled {
		sink, err := export.NewKafkaSink(export.KafkaConfig{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.Topic,
			BatchTimeout: cfg.Kafka.BatchTimeout,
			RunID:        simCfg.RunID,
		}, logger.Named("export"))
		if err != nil {
			logger.Error("kafka sink", zap.Error(err))
			return
		}
		defer func() { _ = sink.Close() }()
		simCfg.Sink = sink
	}

	start := time.Now()
	res, err := sim.New(simCfg, logger).Run(ctx, input)
	if res == nil {
		logger.Error("simulation failed", zap.Error(err))
		return
	}
	if err != nil {
		logger.Warn("simulation interrupted", zap.Error(err))
	}
	report(os.Stdout, res, len(input), time.Since(start))

	if *memProfile != "" {
		f, err := os.Create(*memProfile)
		if err == nil {
			defer f.Close()
			_ = pprof.WriteHeapProfile(f)
		}
	}
}

func loadRows(cfg *config.Config) ([]sim.Row, error) {
	if cfg.Sim.CSV == "" {
		return sim.RandomWalk(cfg.Engine.Seed, cfg.Sim.Rows, cfg.Sim.Levels, cfg.Sim.BasePrice), nil
	}
	f, err := os.Open(cfg.Sim.CSV)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return sim.ReadCSV(f)
}

func saveRows(path string, rows []sim.Row) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := sim.WriteCSV(f, rows); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func report(w io.Writer, res *sim.Result, rows int, elapsed time.Duration) {
	s := res.Stats
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "run\t%s\n", res.RunID)
	fmt.Fprintf(tw, "rows\t%d in %d batches (%d failed)\n", rows, len(res.Batches), res.Failed)
	fmt.Fprintf(tw, "elapsed\t%s (%.0f rows/s)\n", elapsed.Truncate(time.Millisecond), float64(rows)/elapsed.Seconds())
	fmt.Fprintf(tw, "trades\t%d (buy %d, sell %d)\n", s.TotalTrades, s.BuyTrades, s.SellTrades)
	fmt.Fprintf(tw, "volume\t%s\n", engine.FormatQty(s.TotalVolume))
	fmt.Fprintf(tw, "price min/mean/max\t%s / %s / %s\n",
		engine.FormatPrice(s.MinPrice), engine.FormatPrice(s.MeanPrice), engine.FormatPrice(s.MaxPrice))
	fmt.Fprintf(tw, "avg slippage\t%s\n", engine.FormatPrice(s.AvgSlippage))
	fmt.Fprintf(tw, "cumulative cost\t%s\n", engine.FormatPrice(s.CumulativeCost))
	fmt.Fprintf(tw, "resting bid/ask\t%s / %s\n", engine.FormatQty(s.BidVolume), engine.FormatQty(s.AskVolume))
	fmt.Fprintf(tw, "cancelled/discarded/runaway\t%d / %d / %d\n", s.Cancellations, s.Discarded, s.RunawayMatches)
	_ = tw.Flush()
}
