package pipeline

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"costsim/internal/book"
)

// LatencySink 接收单条更新的处理耗时样本。
type LatencySink interface {
	ObserveUpdate(d time.Duration)
}

// Ingestion 独占持有订单簿：唯一的写入者按序应用更新，
// 并把每个合法快照作为不可变值发布到有界队列。
// 下游消费不及时时丢弃最旧快照，模拟只关心最新盘口状态。
type Ingestion struct {
	orderBook *book.OrderBook
	updates   <-chan book.Update
	snapshots chan book.Snapshot
	latency   LatencySink
	logger    *zap.Logger
}

// New 创建摄取管道。latency 可为 nil。
func New(orderBook *book.OrderBook, updates <-chan book.Update, queueSize int, latency LatencySink, logger *zap.Logger) *Ingestion {
	if logger == nil {
		logger = zap.NewNop()
	}
	if queueSize <= 0 {
		queueSize = 64
	}

	return &Ingestion{
		orderBook: orderBook,
		updates:   updates,
		snapshots: make(chan book.Snapshot, queueSize),
		latency:   latency,
		logger:    logger,
	}
}

// Snapshots 返回快照队列。管道停止时关闭，下游可安全排空。
func (p *Ingestion) Snapshots() <-chan book.Snapshot {
	return p.snapshots
}

// Run 驱动摄取循环直至 ctx 结束或更新源关闭。
// 退出前关闭快照队列，保证下游能排空在途快照后停止。
func (p *Ingestion) Run(ctx context.Context) error {
	defer close(p.snapshots)

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-p.updates:
			if !ok {
				p.logger.Info("更新源已关闭，摄取管道停止")
				return nil
			}
			p.apply(update)
		}
	}
}

func (p *Ingestion) apply(update book.Update) {
	start := time.Now()

	snapshot, err := p.orderBook.Apply(update)
	switch {
	case err == nil:
		p.publish(snapshot)
	case errors.Is(err, book.ErrStaleUpdate):
		// 重复或乱序更新，静默丢弃。
	case errors.Is(err, book.ErrCrossedBook):
		p.logger.Warn("更新导致盘口交叉，已拒绝",
			zap.Int64("sequence", update.Sequence),
			zap.String("side", string(update.Side)),
			zap.Float64("price", update.Price),
		)
	case errors.Is(err, book.ErrMalformedUpdate):
		p.logger.Warn("更新未通过结构校验，已丢弃", zap.Error(err))
	default:
		p.logger.Error("应用更新失败", zap.Error(err))
	}

	if p.latency != nil {
		p.latency.ObserveUpdate(time.Since(start))
	}
}

// publish 非阻塞入队；队列满时丢弃最旧快照，新快照始终胜出。
func (p *Ingestion) publish(snapshot book.Snapshot) {
	for {
		select {
		case p.snapshots <- snapshot:
			return
		default:
			select {
			case <-p.snapshots:
			default:
			}
		}
	}
}
