// internal/service/flashdeal/application/saga/compensation.go
package saga

import (
	"context"
	"sync"

	"github.com/Noman836/flesh-deal-api/internal/pkg/logger"
)

// Compensations 维护一次批量预约的补偿动作表。
//
// 底层计数器存储没有跨任意多个 key 的事务原语，批量预约只能表达为
// 一串独立的单品预约；每成功一步就登记一个逆操作，任何一步失败时
// 按后进先出的顺序回滚，已成功的兄弟全部释放。对调用方来说，
// 结果要么是"全部预约成功"，要么是"一个都不保留"。
type Compensations struct {
	mu    sync.Mutex
	batch string
	comps []func(ctx context.Context)
}

// New 创建一张空的补偿表。batchID 仅用于日志。
func New(batchID string) *Compensations {
	return &Compensations{batch: batchID}
}

// Add 登记一个补偿动作。新动作排在表头，保证回滚按逆序执行。
func (c *Compensations) Add(comp func(ctx context.Context)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.comps = append([]func(context.Context){comp}, c.comps...)
}

// Trigger 逆序执行所有已登记的补偿动作。
// 补偿本身是同步的、会阻塞的 I/O；单个补偿失败只记日志，不中断其余补偿。
func (c *Compensations) Trigger(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	logger.Ctx(ctx).Info().
		Str("batch_id", c.batch).
		Int("count", len(c.comps)).
		Msg("Executing compensation functions for failed batch reservation.")
	for _, comp := range c.comps {
		comp(ctx)
	}
	c.comps = nil
}
