// Gói shutdown cung cấp tín hiệu hủy dùng chung cho toàn process.
// Coordinator được truyền tường minh vào limiter và collector thay vì
// dùng biến global; mọi sleep dài đều phải đi qua Sleep để có thể bị
// đánh thức ngay khi operator hủy.

package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/thep200/mastery-crawler/pkg/log"
)

type Coordinator struct {
	once sync.Once
	flag atomic.Bool
	done chan struct{}
}

func NewCoordinator() *Coordinator {
	return &Coordinator{
		done: make(chan struct{}),
	}
}

// Trigger đặt cờ hủy. Gọi nhiều lần vẫn an toàn.
func (c *Coordinator) Trigger() {
	c.once.Do(func() {
		c.flag.Store(true)
		close(c.done)
	})
}

func (c *Coordinator) Triggered() bool {
	return c.flag.Load()
}

// Done trả về channel đóng lại khi có tín hiệu hủy.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Sleep chờ hết d hoặc đến khi bị hủy. Trả về false nếu bị đánh thức
// bởi tín hiệu hủy trước khi hết thời gian.
func (c *Coordinator) Sleep(d time.Duration) bool {
	if d <= 0 {
		return !c.Triggered()
	}
	if c.Triggered() {
		return false
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-c.done:
		return false
	}
}

// InstallSignalHandler bắt SIGINT/SIGTERM và chuyển thành Trigger.
// Đơn vị công việc đang chạy dở vẫn được phép chạy xong, chỉ không
// nhận thêm việc mới.
func (c *Coordinator) InstallSignalHandler(ctx context.Context, logger log.Logger) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ch
		logger.Info(ctx, "Shutdown requested, finishing current task...")
		c.Trigger()
	}()
}
