package limiter

import (
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thep200/mastery-crawler/cfg"
)

// fakeSleeper ghi lại các lần sleep và tua đồng hồ giả tương ứng.
type fakeSleeper struct {
	slept []time.Duration
	clock *time.Time
}

func (s *fakeSleeper) Sleep(d time.Duration) bool {
	s.slept = append(s.slept, d)
	*s.clock = s.clock.Add(d)
	return true
}

func newFakeLimiter(limits cfg.RateLimit) (*RateLimiter, *fakeSleeper, *time.Time) {
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	sleeper := &fakeSleeper{clock: &clock}
	lim := NewRateLimiter("match-v5", "NA", limits, sleeper)
	lim.now = func() time.Time { return clock }
	return lim, sleeper, &clock
}

func TestWaitIfNeededUnderLimit(t *testing.T) {
	lim, sleeper, _ := newFakeLimiter(cfg.RateLimit{PerSecond: 2, Per2Min: 100})

	assert.Equal(t, time.Duration(0), lim.WaitIfNeeded())
	assert.Equal(t, time.Duration(0), lim.WaitIfNeeded())
	assert.Empty(t, sleeper.slept)
}

func TestWaitIfNeededBlocksOnSecondWindow(t *testing.T) {
	lim, sleeper, _ := newFakeLimiter(cfg.RateLimit{PerSecond: 2, Per2Min: 100})

	lim.WaitIfNeeded()
	lim.WaitIfNeeded()

	// Cửa sổ 1 giây đầy: phải chờ hết cửa sổ cộng buffer
	wait := lim.WaitIfNeeded()
	assert.Equal(t, time.Second+waitBuffer, wait)
	require.Len(t, sleeper.slept, 1)
	assert.Equal(t, time.Second+waitBuffer, sleeper.slept[0])

	// Sau khi chờ, hai timestamp cũ đã rơi khỏi cửa sổ
	assert.Equal(t, time.Duration(0), lim.WaitIfNeeded())
}

func TestReserveBeforeSleep(t *testing.T) {
	lim, _, _ := newFakeLimiter(cfg.RateLimit{PerSecond: 1, Per2Min: 100})

	lim.WaitIfNeeded()

	// Slot được đặt trước bằng timestamp hoàn thành ước tính nên hai
	// lần gọi kế tiếp phải chờ lâu dần, không cùng tính ra một mốc.
	w1 := lim.WaitIfNeeded()
	w2 := lim.WaitIfNeeded()
	assert.Greater(t, w1, time.Duration(0))
	assert.Greater(t, w2, time.Duration(0))
}

func TestPer2MinMarginApplied(t *testing.T) {
	lim, _, _ := newFakeLimiter(cfg.RateLimit{PerSecond: 20, Per2Min: 100})
	assert.Equal(t, 95, lim.per2MinLimit)
}

func TestResetForcesFullWindowWait(t *testing.T) {
	lim, _, _ := newFakeLimiter(cfg.RateLimit{PerSecond: 2, Per2Min: 100})

	lim.WaitIfNeeded()
	lim.Reset()

	// Cả hai cửa sổ bị lấp đầy tại thời điểm reset: caller kế tiếp phải
	// chờ trọn cửa sổ 2 phút
	wait := lim.WaitIfNeeded()
	assert.Equal(t, 2*time.Minute+waitBuffer, wait)
}

// realSleeper ngủ thật, cho test burst đồng thời với đồng hồ thật.
type realSleeper struct{}

func (realSleeper) Sleep(d time.Duration) bool {
	time.Sleep(d)
	return true
}

// Burst nhiều goroutine cùng lúc vượt quota 1 giây: nhờ slot được đặt
// trước trong lock, không một cửa sổ trượt 1 giây nào trong chuỗi mốc
// dispatch được phép chứa quá perSecond request.
func TestConcurrentBurstNeverExceedsSecondWindow(t *testing.T) {
	const perSecond = 5
	const requests = 13

	lim := NewRateLimiter("match-v5", "NA", cfg.RateLimit{PerSecond: perSecond, Per2Min: 1000}, realSleeper{})

	var mu sync.Mutex
	times := make([]time.Time, 0, requests)
	var wg sync.WaitGroup
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lim.WaitIfNeeded()
			mu.Lock()
			times = append(times, time.Now())
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, times, requests)
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })

	// Mốc thứ i+perSecond cách mốc thứ i chưa đủ 1 giây nghĩa là có một
	// cửa sổ trượt chứa perSecond+1 request
	for i := 0; i+perSecond < len(times); i++ {
		assert.GreaterOrEqual(t, times[i+perSecond].Sub(times[i]), windowSecond,
			"dispatches %d..%d landed inside one second", i, i+perSecond)
	}
}

func TestRegistryReusesLimiters(t *testing.T) {
	clock := time.Now()
	sleeper := &fakeSleeper{clock: &clock}
	registry := NewRegistry(map[string]cfg.RateLimit{
		"match-v5": {PerSecond: 20, Per2Min: 100},
	}, sleeper)

	a := registry.Get("match-v5", "NA")
	b := registry.Get("match-v5", "NA")
	c := registry.Get("match-v5", "EUW")
	assert.Same(t, a, b)
	assert.NotSame(t, a, c)

	// Class không có trong bảng quota dùng mức mặc định
	d := registry.Get("unknown-v1", "NA")
	assert.Equal(t, 20, d.perSecondLimit)
}
