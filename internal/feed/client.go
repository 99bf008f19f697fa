package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"costsim/internal/book"
	"costsim/internal/config"
)

// wireMessage 为 L2 增量消息：bids/asks 为 [价格, 数量] 字符串对，
// 数量为 "0" 表示删除档位。
type wireMessage struct {
	Sequence  int64       `json:"sequence"`
	Timestamp string      `json:"timestamp"`
	Symbol    string      `json:"symbol"`
	Bids      [][2]string `json:"bids"`
	Asks      [][2]string `json:"asks"`
}

// Client 维护与行情源的 WebSocket 连接，把批量档位消息
// 展开为逐档更新推给摄取管道，断线后按退避策略重连。
type Client struct {
	cfg     config.FeedConfig
	updates chan book.Update
	logger  *zap.Logger

	lastWireSeq  int64
	emittedSeq   int64
	messageCount int64
}

// NewClient 创建行情客户端。
func NewClient(cfg config.FeedConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:     cfg,
		updates: make(chan book.Update, 256),
		logger:  logger,
	}
}

// Updates 返回逐档更新流。客户端停止时关闭。
func (c *Client) Updates() <-chan book.Update {
	return c.updates
}

// Run 驱动连接与重连，直至 ctx 结束或连续失败超过上限。
func (c *Client) Run(ctx context.Context) error {
	defer close(c.updates)

	attempts := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		err := c.readLoop(ctx)
		if err == nil {
			return nil
		}

		attempts++
		if attempts >= c.cfg.Retry.MaxAttempts {
			return fmt.Errorf("行情连接连续失败 %d 次: %w", attempts, err)
		}

		delay := c.cfg.Retry.MinDelay << (attempts - 1)
		if delay > c.cfg.Retry.MaxDelay || delay <= 0 {
			delay = c.cfg.Retry.MaxDelay
		}
		c.logger.Warn("行情连接中断，准备重连",
			zap.Error(err),
			zap.Int("attempt", attempts),
			zap.Duration("delay", delay),
		)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

func (c *Client) readLoop(ctx context.Context) error {
	url := c.cfg.URL + c.cfg.Symbol
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("连接行情源失败: %w", err)
	}
	defer conn.Close()

	c.logger.Info("行情源已连接", zap.String("url", url))

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("读取行情消息失败: %w", err)
		}

		var msg wireMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			c.logger.Warn("行情消息解析失败，已丢弃", zap.Error(err))
			continue
		}

		if msg.Sequence != 0 && msg.Sequence <= c.lastWireSeq {
			continue // 传输层重复或乱序消息
		}
		if msg.Sequence != 0 {
			c.lastWireSeq = msg.Sequence
		}

		if err := c.emit(ctx, msg); err != nil {
			return nil
		}

		c.messageCount++
		if c.messageCount%100 == 0 {
			c.logger.Debug("行情消息统计", zap.Int64("messages", c.messageCount))
		}
	}
}

// emit 把一条批量消息展开为逐档更新，序号由客户端单调分配。
func (c *Client) emit(ctx context.Context, msg wireMessage) error {
	for _, pair := range msg.Bids {
		if err := c.emitLevel(ctx, book.SideBid, pair); err != nil {
			return err
		}
	}
	for _, pair := range msg.Asks {
		if err := c.emitLevel(ctx, book.SideAsk, pair); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) emitLevel(ctx context.Context, side book.Side, pair [2]string) error {
	price, err := strconv.ParseFloat(pair[0], 64)
	if err != nil {
		c.logger.Warn("档位价格解析失败", zap.String("price", pair[0]))
		return nil
	}
	quantity, err := strconv.ParseFloat(pair[1], 64)
	if err != nil {
		c.logger.Warn("档位数量解析失败", zap.String("quantity", pair[1]))
		return nil
	}

	c.emittedSeq++
	update := book.Update{
		Side:     side,
		Price:    price,
		Quantity: quantity,
		Sequence: c.emittedSeq,
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case c.updates <- update:
		return nil
	}
}
