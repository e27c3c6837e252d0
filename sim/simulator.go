package sim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"lobsim/engine"
)

// ErrNoRows is returned by Run when there is nothing to simulate.
var ErrNoRows = errors.New("sim: no rows")

// TradeSink receives the trades of every successful batch.
type TradeSink interface {
	Publish(ctx context.Context, batchID string, trades []engine.Trade) error
}

// Config controls how rows are batched and replayed.
type Config struct {
	// BatchSize is the number of rows per batch; <= 0 means one batch.
	BatchSize int
	// Workers > 1 replays batches concurrently, each on its own book.
	Workers int
	Engine  engine.Config
	// InjectLiquidity calls the book's liquidity provider once per row
	// timestamp.
	InjectLiquidity bool
	Sink            TradeSink
	// RunID names the run in logs and exports; empty generates one.
	RunID string
}

// BatchResult is the outcome of one batch. A failed batch has Err set and
// contributes no trades to the merged log.
type BatchResult struct {
	ID        string
	Index     int
	Rows      int
	Submitted int
	Rejected  int
	Injected  int
	Trades    []engine.Trade
	// Stats covers this batch's executions only; resting volumes are the
	// book's at the end of the batch.
	Stats     engine.Stats
	Elapsed   time.Duration
	Err       error
}

// Result is the outcome of a run. Trades is the successful batch trade logs
// concatenated in batch order, and Stats summarizes exactly those trades.
type Result struct {
	RunID   string
	Batches []BatchResult
	Trades  []engine.Trade
	Stats   engine.Stats
	Failed  int
	Elapsed time.Duration
}

// Simulator replays synthetic rows through matching engines.
type Simulator struct {
	cfg Config
	log *zap.Logger
}

// New builds a simulator. A nil logger discards output.
func New(cfg Config, logger *zap.Logger) *Simulator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Engine.Logger == nil {
		cfg.Engine.Logger = logger.Named("engine")
	}
	return &Simulator{cfg: cfg, log: logger}
}

// Run replays rows and returns per-batch and merged results. With one
// worker a single book carries state across batches. With more, batch i
// runs on a fresh book seeded Seed+i so the merged log does not depend on
// scheduling. Cancelling ctx fails every batch that has not started; Run
// then returns ctx.Err() alongside the partial result.
func (s *Simulator) Run(ctx context.Context, rows []Row) (*Result, error) {
	if len(rows) == 0 {
		return nil, ErrNoRows
	}
	start := time.Now()
	res := &Result{RunID: s.cfg.RunID}
	if res.RunID == "" {
		res.RunID = uuid.NewString()
	}
	log := s.log.With(zap.String("run_id", res.RunID))
	batches := Partition(rows, s.cfg.BatchSize)
	res.Batches = make([]BatchResult, len(batches))
	log.Info("simulation started",
		zap.Int("rows", len(rows)), zap.Int("batches", len(batches)), zap.Int("workers", s.cfg.Workers))

	var final *engine.OrderBook
	if s.cfg.Workers <= 1 {
		final = s.runSequential(ctx, log, batches, res.Batches)
	} else {
		s.runParallel(ctx, log, batches, res.Batches)
	}

	var stats []engine.Stats
	for i := range res.Batches {
		b := &res.Batches[i]
		if b.Err != nil {
			res.Failed++
			continue
		}
		res.Trades = append(res.Trades, b.Trades...)
		stats = append(stats, b.Stats)
	}
	res.Stats = MergeStats(stats...)
	if final != nil {
		if res.Failed == 0 {
			// one book saw every batch
			res.Stats = final.NumericalOutput()
		} else {
			res.Stats.BidVolume = final.Bids().Volume()
			res.Stats.AskVolume = final.Asks().Volume()
		}
	}
	res.Elapsed = time.Since(start)

	log.Info("simulation finished",
		zap.Int("trades", len(res.Trades)), zap.Int("failed_batches", res.Failed), zap.Duration("elapsed", res.Elapsed))
	return res, ctx.Err()
}

// runSequential replays every batch on one book and returns the book left
// at the end. A batch that panics leaves the book in an unknown state, so
// the next batch starts on a fresh one.
func (s *Simulator) runSequential(ctx context.Context, log *zap.Logger, batches [][]Row, out []BatchResult) *engine.OrderBook {
	ob := engine.New(s.cfg.Engine)
	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			out[i] = skipped(i, batch, err)
			continue
		}
		out[i] = s.runBatch(ctx, log, ob, i, batch)
		if out[i].Err != nil && !errors.Is(out[i].Err, errPublish) {
			cfg := s.cfg.Engine
			cfg.Seed += int64(i + 1)
			ob = engine.New(cfg)
		}
	}
	return ob
}

func (s *Simulator) runParallel(ctx context.Context, log *zap.Logger, batches [][]Row, out []BatchResult) {
	var g errgroup.Group
	g.SetLimit(s.cfg.Workers)
	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			out[i] = skipped(i, batch, err)
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				out[i] = skipped(i, batch, err)
				return nil
			}
			cfg := s.cfg.Engine
			cfg.Seed += int64(i)
			out[i] = s.runBatch(ctx, log, engine.New(cfg), i, batch)
			return nil
		})
	}
	_ = g.Wait()
}

var errPublish = errors.New("publish trades")

func skipped(idx int, batch []Row, err error) BatchResult {
	return BatchResult{ID: uuid.NewString(), Index: idx, Rows: len(batch), Err: err}
}

func (s *Simulator) runBatch(ctx context.Context, log *zap.Logger, ob *engine.OrderBook, idx int, batch []Row) (res BatchResult) {
	res = BatchResult{ID: uuid.NewString(), Index: idx, Rows: len(batch)}
	log = log.With(zap.String("batch_id", res.ID), zap.Int("batch", idx))
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			if err, ok := r.(error); ok {
				res.Err = fmt.Errorf("batch %d: %w", idx, err)
			} else {
				res.Err = fmt.Errorf("batch %d: panic: %v", idx, r)
			}
			res.Trades = nil
		}
		res.Elapsed = time.Since(start)
		if res.Err != nil {
			log.Error("batch failed", zap.Error(res.Err))
		}
	}()

	mark := ob.Mark()
	minQty := ob.Config().MinOrderSize
	lastTS := int64(math.MinInt64)
	for _, row := range batch {
		for _, tick := range row.Submissions(minQty) {
			res.Submitted++
			trades, err := ob.Submit(tick)
			if err != nil {
				res.Rejected++
				log.Debug("submission rejected", zap.String("id", tick.ID), zap.Error(err))
				continue
			}
			res.Trades = append(res.Trades, trades...)
		}
		if s.cfg.InjectLiquidity && row.Timestamp != lastTS {
			res.Injected += ob.InjectLiquidity(row.Timestamp)
		}
		lastTS = row.Timestamp
	}
	res.Stats = ob.StatsSince(mark)

	if s.cfg.Sink != nil && len(res.Trades) > 0 {
		if err := s.cfg.Sink.Publish(ctx, res.ID, res.Trades); err != nil {
			res.Err = fmt.Errorf("batch %d: %w: %w", idx, errPublish, err)
			return res
		}
	}
	log.Debug("batch done", zap.Int("submitted", res.Submitted), zap.Int("trades", len(res.Trades)))
	return res
}

// MergeStats combines the summaries of independent books. Counts and
// volumes add; the price range widens; averages are weighted by trade
// count.
func MergeStats(stats ...engine.Stats) engine.Stats {
	if len(stats) == 1 {
		return stats[0]
	}
	var out engine.Stats
	var slipSum, priceSum float64
	for _, s := range stats {
		if s.TotalTrades > 0 {
			if out.TotalTrades == 0 {
				out.MinPrice, out.MaxPrice = s.MinPrice, s.MaxPrice
			} else {
				out.MinPrice = math.Min(out.MinPrice, s.MinPrice)
				out.MaxPrice = math.Max(out.MaxPrice, s.MaxPrice)
			}
			slipSum += s.AvgSlippage * float64(s.TotalTrades)
			priceSum += s.MeanPrice * float64(s.TotalTrades)
		}
		out.CumulativeCost += s.CumulativeCost
		out.BuyTrades += s.BuyTrades
		out.SellTrades += s.SellTrades
		out.TotalVolume += s.TotalVolume
		out.BidVolume += s.BidVolume
		out.AskVolume += s.AskVolume
		out.TotalTrades += s.TotalTrades
		out.Cancellations += s.Cancellations
		out.Discarded += s.Discarded
		out.RunawayMatches += s.RunawayMatches
	}
	if out.TotalTrades > 0 {
		out.AvgSlippage = slipSum / float64(out.TotalTrades)
		out.MeanPrice = priceSum / float64(out.TotalTrades)
	}
	return out
}
