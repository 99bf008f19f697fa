package book

import (
	"errors"
	"math"
	"testing"

	"costsim/internal/config"
)

func newTestBook() *OrderBook {
	return New("BTC-USDT-SWAP", config.BookConfig{
		DepthLevels:      10,
		ImbalanceLevels:  5,
		VolatilityWindow: 50,
	}, nil)
}

func seedBook(t *testing.T, b *OrderBook) Snapshot {
	t.Helper()

	updates := []Update{
		{Side: SideBid, Price: 100, Quantity: 2, Sequence: 1},
		{Side: SideBid, Price: 99, Quantity: 3, Sequence: 2},
		{Side: SideBid, Price: 98, Quantity: 5, Sequence: 3},
		{Side: SideAsk, Price: 101, Quantity: 1, Sequence: 4},
		{Side: SideAsk, Price: 102, Quantity: 4, Sequence: 5},
		{Side: SideAsk, Price: 103, Quantity: 6, Sequence: 6},
	}

	var snapshot Snapshot
	var err error
	for _, u := range updates {
		snapshot, err = b.Apply(u)
		if err != nil {
			t.Fatalf("seed update failed: %v", err)
		}
	}
	return snapshot
}

func TestApplyMaintainsPriceOrdering(t *testing.T) {
	b := newTestBook()
	snapshot := seedBook(t, b)

	for i := 1; i < len(snapshot.Bids); i++ {
		if snapshot.Bids[i].Price >= snapshot.Bids[i-1].Price {
			t.Errorf("bids not strictly descending at %d: %v", i, snapshot.Bids)
		}
	}
	for i := 1; i < len(snapshot.Asks); i++ {
		if snapshot.Asks[i].Price <= snapshot.Asks[i-1].Price {
			t.Errorf("asks not strictly ascending at %d: %v", i, snapshot.Asks)
		}
	}

	best, ok := snapshot.BestBid()
	if !ok || best.Price != 100 {
		t.Errorf("unexpected best bid: %v", best)
	}
	bestAsk, ok := snapshot.BestAsk()
	if !ok || bestAsk.Price != 101 {
		t.Errorf("unexpected best ask: %v", bestAsk)
	}
}

func TestApplyOverwritesExistingLevel(t *testing.T) {
	b := newTestBook()
	seedBook(t, b)

	snapshot, err := b.Apply(Update{Side: SideBid, Price: 99, Quantity: 7, Sequence: 7})
	if err != nil {
		t.Fatalf("apply returned error: %v", err)
	}
	if len(snapshot.Bids) != 3 {
		t.Fatalf("expected 3 bid levels, got %d", len(snapshot.Bids))
	}
	if snapshot.Bids[1].Quantity != 7 {
		t.Errorf("expected overwritten quantity 7, got %v", snapshot.Bids[1].Quantity)
	}
}

func TestApplyZeroQuantityRemovesLevel(t *testing.T) {
	b := newTestBook()
	seedBook(t, b)

	snapshot, err := b.Apply(Update{Side: SideAsk, Price: 102, Quantity: 0, Sequence: 7})
	if err != nil {
		t.Fatalf("apply returned error: %v", err)
	}
	if len(snapshot.Asks) != 2 {
		t.Fatalf("expected 2 ask levels, got %d", len(snapshot.Asks))
	}
	for _, lvl := range snapshot.Asks {
		if lvl.Price == 102 {
			t.Errorf("level 102 should have been removed")
		}
	}
}

func TestApplyZeroQuantityAbsentPriceIsNoop(t *testing.T) {
	b := newTestBook()
	before := seedBook(t, b)

	after, err := b.Apply(Update{Side: SideBid, Price: 97.5, Quantity: 0, Sequence: 7})
	if err != nil {
		t.Fatalf("apply returned error: %v", err)
	}
	if len(after.Bids) != len(before.Bids) || len(after.Asks) != len(before.Asks) {
		t.Fatalf("levels changed by removing absent price")
	}
	for i := range before.Bids {
		if after.Bids[i] != before.Bids[i] {
			t.Errorf("bid level %d changed: %v vs %v", i, after.Bids[i], before.Bids[i])
		}
	}
}

func TestApplyRejectsCrossedBook(t *testing.T) {
	b := newTestBook()
	seedBook(t, b)

	_, err := b.Apply(Update{Side: SideBid, Price: 101.5, Quantity: 1, Sequence: 7})
	if !errors.Is(err, ErrCrossedBook) {
		t.Fatalf("expected ErrCrossedBook, got %v", err)
	}
	if b.LastSequence() != 6 {
		t.Errorf("sequence advanced on rejected update: %d", b.LastSequence())
	}

	// 回滚后继续应用合法更新，盘口应保持原有状态。
	snapshot, err := b.Apply(Update{Side: SideBid, Price: 97, Quantity: 1, Sequence: 8})
	if err != nil {
		t.Fatalf("apply after rejection failed: %v", err)
	}
	best, _ := snapshot.BestBid()
	if best.Price != 100 {
		t.Errorf("rejected update leaked into book, best bid %v", best.Price)
	}
	if len(snapshot.Bids) != 4 {
		t.Errorf("expected 4 bid levels, got %d", len(snapshot.Bids))
	}
}

func TestApplyRejectsStaleSequence(t *testing.T) {
	b := newTestBook()
	seedBook(t, b)

	// 重放同序号更新视为重复，直接丢弃。
	if _, err := b.Apply(Update{Side: SideBid, Price: 100, Quantity: 2, Sequence: 6}); !errors.Is(err, ErrStaleUpdate) {
		t.Fatalf("expected ErrStaleUpdate, got %v", err)
	}
	if _, err := b.Apply(Update{Side: SideBid, Price: 100, Quantity: 9, Sequence: 3}); !errors.Is(err, ErrStaleUpdate) {
		t.Fatalf("expected ErrStaleUpdate for older sequence, got %v", err)
	}
}

func TestApplyRejectsMalformedUpdate(t *testing.T) {
	b := newTestBook()

	cases := []Update{
		{Side: "middle", Price: 100, Quantity: 1, Sequence: 1},
		{Side: SideBid, Price: 0, Quantity: 1, Sequence: 1},
		{Side: SideBid, Price: -5, Quantity: 1, Sequence: 1},
		{Side: SideAsk, Price: 100, Quantity: -1, Sequence: 1},
		{Side: SideAsk, Price: math.NaN(), Quantity: 1, Sequence: 1},
	}
	for _, u := range cases {
		if _, err := b.Apply(u); !errors.Is(err, ErrMalformedUpdate) {
			t.Errorf("update %+v: expected ErrMalformedUpdate, got %v", u, err)
		}
	}
}

func TestSnapshotNeverCrossed(t *testing.T) {
	b := newTestBook()

	updates := []Update{
		{Side: SideBid, Price: 100, Quantity: 1, Sequence: 1},
		{Side: SideAsk, Price: 101, Quantity: 1, Sequence: 2},
		{Side: SideBid, Price: 100.5, Quantity: 2, Sequence: 3},
		{Side: SideAsk, Price: 100.4, Quantity: 2, Sequence: 4}, // 会交叉，应被拒绝
		{Side: SideAsk, Price: 100.7, Quantity: 2, Sequence: 5},
		{Side: SideBid, Price: 100.5, Quantity: 0, Sequence: 6},
		{Side: SideBid, Price: 100.6, Quantity: 3, Sequence: 7},
	}

	for _, u := range updates {
		snapshot, err := b.Apply(u)
		if err != nil {
			continue
		}
		bid, okBid := snapshot.BestBid()
		ask, okAsk := snapshot.BestAsk()
		if okBid && okAsk && bid.Price >= ask.Price {
			t.Fatalf("published crossed snapshot: bid %v >= ask %v", bid.Price, ask.Price)
		}
	}
}

func TestStatistics(t *testing.T) {
	b := newTestBook()
	snapshot := seedBook(t, b)
	stats := snapshot.Stats

	if got, want := stats.MidPrice, 100.5; !closeTo(got, want) {
		t.Errorf("mid price: got %v want %v", got, want)
	}
	if got, want := stats.Spread, 1.0; !closeTo(got, want) {
		t.Errorf("spread: got %v want %v", got, want)
	}
	if got, want := stats.SpreadPct, 1.0/100.5*100; !closeTo(got, want) {
		t.Errorf("spread pct: got %v want %v", got, want)
	}
	// 买侧 2+3+5=10，卖侧 1+4+6=11
	if got, want := stats.Imbalance, 10.0/21.0; !closeTo(got, want) {
		t.Errorf("imbalance: got %v want %v", got, want)
	}
	if got, want := stats.DepthRatio, 10.0/11.0; !closeTo(got, want) {
		t.Errorf("depth ratio: got %v want %v", got, want)
	}
	if stats.BidDepth != 10 || stats.AskDepth != 11 {
		t.Errorf("depth totals: bid %v ask %v", stats.BidDepth, stats.AskDepth)
	}
}

func TestStatisticsEmptySideDefaults(t *testing.T) {
	b := newTestBook()

	snapshot, err := b.Apply(Update{Side: SideBid, Price: 100, Quantity: 1, Sequence: 1})
	if err != nil {
		t.Fatalf("apply returned error: %v", err)
	}

	stats := snapshot.Stats
	if stats.MidPrice != 0 || stats.Spread != 0 {
		t.Errorf("single-sided book should have zero mid/spread, got %+v", stats)
	}
	if stats.DepthRatio != 1.0 {
		t.Errorf("depth ratio should default to 1.0, got %v", stats.DepthRatio)
	}
	if stats.Imbalance != 1.0 {
		t.Errorf("bid-only imbalance should be 1.0, got %v", stats.Imbalance)
	}
}

func TestVolatilityStableMidIsZero(t *testing.T) {
	b := newTestBook()
	seedBook(t, b)

	var snapshot Snapshot
	var err error
	for i := 0; i < 20; i++ {
		// 只改非顶档数量，中间价保持不变。
		snapshot, err = b.Apply(Update{Side: SideBid, Price: 98, Quantity: float64(i + 1), Sequence: int64(7 + i)})
		if err != nil {
			t.Fatalf("apply returned error: %v", err)
		}
	}
	if snapshot.Stats.Volatility > 1e-4 {
		t.Errorf("constant mid price should give near-zero volatility, got %v", snapshot.Stats.Volatility)
	}
}

func TestVolatilityRespondsToMidMoves(t *testing.T) {
	b := newTestBook()

	if _, err := b.Apply(Update{Side: SideBid, Price: 100, Quantity: 1, Sequence: 1}); err != nil {
		t.Fatalf("seed bid failed: %v", err)
	}
	if _, err := b.Apply(Update{Side: SideAsk, Price: 104, Quantity: 1, Sequence: 2}); err != nil {
		t.Fatalf("seed ask failed: %v", err)
	}

	// 买一在 100 与 101 之间来回切换，中间价随之振荡。
	var snapshot Snapshot
	var err error
	seq := int64(3)
	for i := 0; i < 15; i++ {
		snapshot, err = b.Apply(Update{Side: SideBid, Price: 101, Quantity: 1, Sequence: seq})
		if err != nil {
			t.Fatalf("apply bid failed: %v", err)
		}
		seq++
		snapshot, err = b.Apply(Update{Side: SideBid, Price: 101, Quantity: 0, Sequence: seq})
		if err != nil {
			t.Fatalf("remove bid failed: %v", err)
		}
		seq++
	}

	vol := snapshot.Stats.Volatility
	if vol <= 1e-4 || math.IsNaN(vol) || math.IsInf(vol, 0) {
		t.Errorf("oscillating mid should give positive finite volatility, got %v", vol)
	}
}

func TestVWAPWalksLevels(t *testing.T) {
	b := newTestBook()
	snapshot := seedBook(t, b)

	// 买入3：吃 ask 101×1 + 102×2 = 305
	vwap, filled := snapshot.VWAP(SideAsk, 3)
	if filled != 3 {
		t.Fatalf("expected full fill, got %v", filled)
	}
	if want := 305.0 / 3; !closeTo(vwap, want) {
		t.Errorf("vwap: got %v want %v", vwap, want)
	}

	// 超过可见深度：部分成交
	_, filled = snapshot.VWAP(SideAsk, 100)
	if filled != 11 {
		t.Errorf("expected partial fill of 11, got %v", filled)
	}
}

func closeTo(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}
