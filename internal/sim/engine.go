package sim

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"costsim/internal/book"
	"costsim/internal/model"
)

// 等待成交回报的预测缓存上限，防止无人上报时无限增长。
const maxPendingOutcomes = 4096

// LatencySink 接收模拟耗时样本，由外部基准采集方实现。
type LatencySink interface {
	ObserveSimulation(d time.Duration)
}

// Engine 编排四个成本模型：校验请求、基于最新快照计算各分项、
// 汇总 Result，并把事后观察到的成交结果路由回可训练模型。
type Engine struct {
	slippage   *model.SlippageModel
	makerTaker *model.MakerTakerModel
	fees       *model.FeeSchedule
	latency    LatencySink
	logger     *zap.Logger

	mu           sync.Mutex
	pending      map[string]pendingPrediction
	pendingOrder []string
}

type pendingPrediction struct {
	slippageIn   model.SlippageInputs
	makerTakerIn model.MakerTakerInputs
}

// NewEngine 创建模拟引擎。latency 可为 nil。
func NewEngine(slippage *model.SlippageModel, makerTaker *model.MakerTakerModel, fees *model.FeeSchedule, latency LatencySink, logger *zap.Logger) (*Engine, error) {
	if slippage == nil {
		return nil, fmt.Errorf("sim: slippage model 不能为空")
	}
	if makerTaker == nil {
		return nil, fmt.Errorf("sim: maker/taker model 不能为空")
	}
	if fees == nil {
		return nil, fmt.Errorf("sim: fee schedule 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Engine{
		slippage:   slippage,
		makerTaker: makerTaker,
		fees:       fees,
		latency:    latency,
		logger:     logger,
		pending:    make(map[string]pendingPrediction),
	}, nil
}

// Simulate 基于给定快照估算请求的执行成本。
// 请求级错误只在结构校验失败时返回；盘口为空等数据性缺失
// 体现在 Result 的 Unavailable 标记上，不作为错误传播。
func (e *Engine) Simulate(snapshot book.Snapshot, req Request) (Result, error) {
	start := time.Now()

	if err := validateRequest(req); err != nil {
		return Result{}, err
	}

	result := Result{
		ID:                uuid.NewString(),
		Symbol:            snapshot.Symbol,
		SnapshotSequence:  snapshot.Sequence,
		SnapshotTimestamp: snapshot.Timestamp,
	}

	if len(snapshot.Bids) == 0 || len(snapshot.Asks) == 0 {
		result.Unavailable = true
		e.finish(&result, start)
		return result, nil
	}

	stats := snapshot.Stats
	sigma := req.Volatility
	if sigma <= 0 {
		sigma = stats.Volatility
	}

	slippageIn := model.SlippageInputs{
		Quantity:   req.Quantity,
		SpreadPct:  stats.SpreadPct,
		Imbalance:  stats.Imbalance,
		DepthRatio: stats.DepthRatio,
		Volatility: sigma,
	}
	makerTakerIn := model.MakerTakerInputs{
		IsMarket:   req.OrderType == OrderTypeMarket,
		Quantity:   req.Quantity,
		SpreadPct:  stats.SpreadPct,
		Imbalance:  stats.Imbalance,
		DepthRatio: stats.DepthRatio,
		Volatility: sigma,
	}

	result.SlippagePct = e.slippage.Predict(slippageIn)
	result.MakerProportion = e.makerTaker.Predict(makerTakerIn)

	rates := e.fees.Rates(req.FeeTier)
	fee, err := model.Fee(req.Quantity, result.MakerProportion, rates)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	result.FeeAmount = fee

	impact, err := model.MarketImpact(model.ImpactInputs{
		Quantity:  req.Quantity,
		Sigma:     sigma,
		SpreadPct: stats.SpreadPct,
		BidDepth:  stats.BidDepth,
		AskDepth:  stats.AskDepth,
	})
	if err != nil {
		result.Unavailable = true
		e.finish(&result, start)
		return result, nil
	}
	result.MarketImpactPct = impact

	result.TotalCost = result.SlippagePct/100*req.Quantity + result.FeeAmount + result.MarketImpactPct/100*req.Quantity
	result.LowConfidence = e.isDepthInsufficient(snapshot, req)

	e.rememberPrediction(result.ID, slippageIn, makerTakerIn)
	e.finish(&result, start)
	return result, nil
}

// ReportOutcome 把观察到的真实结果路由到滑点与 maker/taker 模型。
func (e *Engine) ReportOutcome(outcome Outcome) error {
	e.mu.Lock()
	prediction, ok := e.pending[outcome.ResultID]
	if ok {
		delete(e.pending, outcome.ResultID)
	}
	e.mu.Unlock()

	if !ok {
		return fmt.Errorf("sim: 未知的模拟结果 %q", outcome.ResultID)
	}

	e.slippage.Observe(prediction.slippageIn, outcome.ObservedSlippage)
	e.makerTaker.Observe(prediction.makerTakerIn, outcome.ObservedMakerRatio)
	return nil
}

func (e *Engine) finish(result *Result, start time.Time) {
	result.ProcessingLatency = time.Since(start)
	if e.latency != nil {
		e.latency.ObserveSimulation(result.ProcessingLatency)
	}
}

// isDepthInsufficient 判断请求数量是否超过吃单侧可见深度。
// 名义金额按中间价折算为基础币数量后沿盘口试走。
func (e *Engine) isDepthInsufficient(snapshot book.Snapshot, req Request) bool {
	mid := snapshot.Stats.MidPrice
	if mid <= 0 {
		return true
	}
	baseQty := req.Quantity / mid

	takerSide := book.SideAsk
	if req.Side == OrderSideSell {
		takerSide = book.SideBid
	}

	_, filled := snapshot.VWAP(takerSide, baseQty)
	return filled < baseQty
}

func (e *Engine) rememberPrediction(id string, slippageIn model.SlippageInputs, makerTakerIn model.MakerTakerInputs) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.pendingOrder) >= maxPendingOutcomes {
		oldest := e.pendingOrder[0]
		e.pendingOrder = e.pendingOrder[1:]
		delete(e.pending, oldest)
	}
	e.pending[id] = pendingPrediction{slippageIn: slippageIn, makerTakerIn: makerTakerIn}
	e.pendingOrder = append(e.pendingOrder, id)
}

func validateRequest(req Request) error {
	if req.OrderType != OrderTypeMarket && req.OrderType != OrderTypeLimit {
		return fmt.Errorf("%w: 非法订单类型 %q", ErrInvalidRequest, req.OrderType)
	}
	if req.Side != OrderSideBuy && req.Side != OrderSideSell {
		return fmt.Errorf("%w: 非法方向 %q", ErrInvalidRequest, req.Side)
	}
	if req.Quantity <= 0 {
		return fmt.Errorf("%w: 数量必须大于0", ErrInvalidRequest)
	}
	if req.OrderType == OrderTypeLimit && req.LimitPrice <= 0 {
		return fmt.Errorf("%w: 限价单必须提供限价", ErrInvalidRequest)
	}
	return nil
}
