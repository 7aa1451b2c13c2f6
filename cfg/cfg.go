package cfg

type (
	App struct {
		Name    string
		Version string
	}

	Sqlite struct {
		Path                  string
		BusyTimeoutMs         int
		MaxIdleConnection     int
		MaxOpenConnection     int
		MaxLifeTimeConnection int
	}

	// RateLimit là cặp quota cho một endpoint class: số request mỗi giây
	// và mỗi 2 phút.
	RateLimit struct {
		PerSecond int
		Per2Min   int
	}

	// Region chứa hai host routing của Riot: platform cho league/summoner/
	// mastery, routing cho match-v5.
	Region struct {
		Platform string
		Routing  string
	}

	RiotApi struct {
		ApiKey            string
		Preset            string // "standard" hoặc "restricted"
		BaseUrl           string // override cho test, để trống khi chạy thật
		RequestTimeoutSec int
		MaxRetries        int
		QueueType         string // queue cho league-v4, ví dụ RANKED_SOLO_5x5
		QueueId           int    // queue id cho match-v5 và bước validate
		Regions           map[string]Region
		Standard          map[string]RateLimit
		Restricted        map[string]RateLimit
	}

	Collector struct {
		Workers          int
		BatchSize        int
		MatchTarget      int // tổng số match trên tất cả các region
		MatchesPerPlayer int
		MinGameDuration  int // giây, loại bỏ remake
		TierAllocation   map[string]float64
		RetryPasses      int
		RetryCooldownSec int
		StartTime        int64 // epoch giây, 0 = không lọc
		EndTime          int64
	}

	Kafka struct {
		Brokers      []string
		TopicMatches string
	}

	Ui struct {
		Port int
	}
)

type Config struct {
	App       App
	Sqlite    Sqlite
	RiotApi   RiotApi
	Collector Collector
	Kafka     Kafka
	Ui        Ui
}

const (
	defaultQueueType = "RANKED_SOLO_5x5"
	defaultQueueID   = 420
)

// QueueName trả về queue type cho các endpoint league-v4, mặc định
// ranked solo.
func (c *Config) QueueName() string {
	if c.RiotApi.QueueType != "" {
		return c.RiotApi.QueueType
	}
	return defaultQueueType
}

// QueueID trả về queue id dùng cho match-v5 và bước validate match.
// Hai phía request và validate luôn cùng một giá trị cấu hình.
func (c *Config) QueueID() int {
	if c.RiotApi.QueueId > 0 {
		return c.RiotApi.QueueId
	}
	return defaultQueueID
}

// KeepRegions thu hẹp bảng region về đúng các region được chọn cho
// lượt chạy. Target tổng được chia theo bảng này nên một lượt chạy
// đơn-region nhận trọn target thay vì phần chia theo config đầy đủ.
func (c *Config) KeepRegions(names []string) {
	kept := make(map[string]Region, len(names))
	for _, name := range names {
		if region, ok := c.RiotApi.Regions[name]; ok {
			kept[name] = region
		}
	}
	c.RiotApi.Regions = kept
}

// RateLimits trả về bảng quota theo preset đang cấu hình.
func (c *Config) RateLimits() map[string]RateLimit {
	if c.RiotApi.Preset == "restricted" {
		return c.RiotApi.Restricted
	}
	return c.RiotApi.Standard
}

// RegionNames trả về danh sách region theo thứ tự ổn định.
func (c *Config) RegionNames() []string {
	names := make([]string, 0, len(c.RiotApi.Regions))
	for _, name := range []string{"NA", "EUW", "KR"} {
		if _, ok := c.RiotApi.Regions[name]; ok {
			names = append(names, name)
		}
	}
	for name := range c.RiotApi.Regions {
		switch name {
		case "NA", "EUW", "KR":
		default:
			names = append(names, name)
		}
	}
	return names
}
