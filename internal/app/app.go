package app

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"costsim/internal/bench"
	"costsim/internal/book"
	"costsim/internal/config"
	"costsim/internal/feed"
	"costsim/internal/model"
	"costsim/internal/monitor"
	"costsim/internal/pipeline"
	"costsim/internal/sim"
	"costsim/internal/store"
)

// App 聚合核心依赖并驱动系统生命周期。
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *store.Store

	latest atomic.Pointer[book.Snapshot]
}

// New 创建 App 实例。
func New(cfg *config.Config, logger *zap.Logger, store *store.Store) *App {
	return &App{
		cfg:    cfg,
		logger: logger,
		store:  store,
	}
}

// Run 组装行情→摄取→模拟管道并阻塞运行至退出信号。
// 退出顺序：行情与摄取先停（不再产生新快照），模拟端排空
// 队列中的在途快照后结束，不发布不完整的结果。
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("交易成本模拟器已初始化",
		zap.String("environment", a.cfg.App.Environment),
		zap.String("symbol", a.cfg.Feed.Symbol),
		zap.String("fee_tier", a.cfg.Fees.DefaultTier),
	)

	feeSchedule, err := model.NewFeeSchedule(a.cfg.Fees)
	if err != nil {
		return fmt.Errorf("初始化费率表失败: %w", err)
	}

	slippage := model.NewSlippageModel(a.cfg.Models, a.logger)
	makerTaker := model.NewMakerTakerModel(a.cfg.Models, a.logger)
	collector := bench.NewCollector(a.cfg.Benchmark, a.logger)

	engine, err := sim.NewEngine(slippage, makerTaker, feeSchedule, collector, a.logger)
	if err != nil {
		return fmt.Errorf("初始化模拟引擎失败: %w", err)
	}

	monitorSvc, err := monitor.NewService(a.store, a.logger)
	if err != nil {
		return fmt.Errorf("初始化监控服务失败: %w", err)
	}

	orderBook := book.New(a.cfg.Feed.Symbol, a.cfg.Book, a.logger)
	feedClient := feed.NewClient(a.cfg.Feed, a.logger)
	ingestion := pipeline.New(orderBook, feedClient.Updates(), a.cfg.Pipeline.SnapshotQueueSize, collector, a.logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return feedClient.Run(gctx) })
	g.Go(func() error { return ingestion.Run(gctx) })
	g.Go(func() error { return slippage.Trainable().Run(gctx) })
	g.Go(func() error { return makerTaker.Trainable().Run(gctx) })
	if a.cfg.Benchmark.Enabled {
		g.Go(func() error { return collector.Run(gctx) })
	}

	g.Go(func() error {
		return a.simulationLoop(gctx, ingestion, engine, monitorSvc)
	})

	if a.cfg.Monitor.Enabled {
		deps := serverDeps{
			monitor:   monitorSvc,
			collector: collector,
			engine:    engine,
			latest:    &a.latest,
		}
		if err := startMonitorServer(gctx, deps, a.cfg.Monitor.Port, a.logger); err != nil {
			return err
		}
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("系统异常退出: %w", err)
	}

	a.logger.Info("系统收到退出信号，已停止")
	return nil
}

// simulationLoop 消费快照队列：保存最新快照并按默认请求重算成本。
// 队列关闭后排空剩余快照自然退出。
func (a *App) simulationLoop(ctx context.Context, ingestion *pipeline.Ingestion, engine *sim.Engine, monitorSvc *monitor.Service) error {
	request := sim.Request{
		OrderType:  sim.OrderType(a.cfg.Simulation.OrderType),
		Side:       sim.OrderSide(a.cfg.Simulation.Side),
		Quantity:   a.cfg.Simulation.Quantity,
		LimitPrice: a.cfg.Simulation.LimitPrice,
		Volatility: a.cfg.Simulation.Volatility,
		FeeTier:    a.cfg.Simulation.FeeTier,
	}

	processed := 0
	for snapshot := range ingestion.Snapshots() {
		snap := snapshot
		a.latest.Store(&snap)

		result, err := engine.Simulate(snapshot, request)
		if err != nil {
			monitorSvc.RecordError(ctx, "默认模拟请求失败", err, nil)
			continue
		}
		monitorSvc.RecordResult(ctx, result)

		processed++
		if processed%100 == 0 {
			a.logger.Debug("模拟进度",
				zap.Int("snapshots", processed),
				zap.Int64("sequence", result.SnapshotSequence),
				zap.Duration("latency", result.ProcessingLatency),
			)
		}
	}

	return nil
}
