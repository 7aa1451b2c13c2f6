// Gói limiter cài đặt rate limiter hai cửa sổ trượt (1 giây và 2 phút)
// cho từng cặp (endpoint class, region) của Riot API. Mỗi limiter tự
// khóa riêng; phần sleep luôn nằm ngoài lock để các goroutine khác
// không bị chặn bởi một goroutine đang chờ.

package limiter

import (
	"sync"
	"time"

	"github.com/thep200/mastery-crawler/cfg"
)

const (
	// Đệm 100ms chống lệch đồng hồ giữa client và server
	waitBuffer = 100 * time.Millisecond

	windowSecond = time.Second
	window2Min   = 2 * time.Minute

	// Giữ lại 5% quota 2 phút làm biên an toàn
	per2MinMargin = 0.95
)

// Sleeper là primitive sleep có thể bị đánh thức khi process bị hủy.
// shutdown.Coordinator thỏa interface này.
type Sleeper interface {
	Sleep(d time.Duration) bool
}

type RateLimiter struct {
	class  string
	region string

	perSecondLimit int
	per2MinLimit   int

	// Hai hàng đợi FIFO timestamp, phần tử cũ nhất ở đầu
	perSecond []time.Time
	per2Min   []time.Time

	mu      sync.Mutex
	sleeper Sleeper
	now     func() time.Time
}

func NewRateLimiter(class, region string, limits cfg.RateLimit, sleeper Sleeper) *RateLimiter {
	per2Min := int(float64(limits.Per2Min) * per2MinMargin)
	if per2Min < 1 {
		per2Min = 1
	}
	return &RateLimiter{
		class:          class,
		region:         region,
		perSecondLimit: limits.PerSecond,
		per2MinLimit:   per2Min,
		perSecond:      make([]time.Time, 0, limits.PerSecond),
		per2Min:        make([]time.Time, 0, per2Min),
		sleeper:        sleeper,
		now:            time.Now,
	}
}

// Loại bỏ các timestamp đã rơi ra ngoài cửa sổ
func (r *RateLimiter) prune(now time.Time) {
	cutSecond := now.Add(-windowSecond)
	for len(r.perSecond) > 0 && r.perSecond[0].Before(cutSecond) {
		r.perSecond = r.perSecond[1:]
	}
	cut2Min := now.Add(-window2Min)
	for len(r.per2Min) > 0 && r.per2Min[0].Before(cut2Min) {
		r.per2Min = r.per2Min[1:]
	}
}

// WaitIfNeeded chặn cho tới khi còn chỗ trong cả hai cửa sổ rồi ghi
// nhận một request. Slot được đặt trước NGAY TRONG LOCK bằng timestamp
// hoàn thành ước tính, nên nhiều goroutine không thể cùng tính ra wait
// bằng 0 và vượt quota sau khi thả lock. Trả về thời gian đã chờ.
func (r *RateLimiter) WaitIfNeeded() time.Duration {
	var wait time.Duration

	r.mu.Lock()
	now := r.now()
	r.prune(now)

	if len(r.perSecond) >= r.perSecondLimit {
		until := r.perSecond[0].Add(windowSecond)
		if d := until.Sub(now) + waitBuffer; d > wait {
			wait = d
		}
	}
	if len(r.per2Min) >= r.per2MinLimit {
		until := r.per2Min[0].Add(window2Min)
		if d := until.Sub(now) + waitBuffer; d > wait {
			wait = d
		}
	}

	// Đặt trước slot với thời điểm hoàn thành ước tính
	estimated := now.Add(wait)
	r.perSecond = append(r.perSecond, estimated)
	r.per2Min = append(r.per2Min, estimated)
	r.mu.Unlock()

	// Sleep ngoài lock
	if wait > 0 {
		r.sleeper.Sleep(wait)
	}
	return wait
}

// Reset xóa hai cửa sổ và lấp đầy lại bằng thời điểm hiện tại, gọi sau
// khi server trả 429. Mọi caller sau đó buộc phải chờ trọn một cửa sổ
// thay vì burst ngay khi hết thời gian cool-down của server.
func (r *RateLimiter) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.perSecond = r.perSecond[:0]
	r.per2Min = r.per2Min[:0]
	for i := 0; i < r.perSecondLimit; i++ {
		r.perSecond = append(r.perSecond, now)
	}
	for i := 0; i < r.per2MinLimit; i++ {
		r.per2Min = append(r.per2Min, now)
	}
}
