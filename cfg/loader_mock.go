package cfg

type MockLoader struct{}

func NewMockLoader() (*MockLoader, error) {
	return &MockLoader{}, nil
}

func (yl *MockLoader) Load() (*Config, error) {
	return &Config{
		// App
		App: App{
			Name:    "mastery-crawler",
			Version: "0.0.1",
		},

		// Sqlite
		Sqlite: Sqlite{
			Path:                  "data/mastery_analysis.db",
			BusyTimeoutMs:         60000,
			MaxIdleConnection:     4,
			MaxOpenConnection:     8,
			MaxLifeTimeConnection: 3600,
		},

		// RiotApi
		RiotApi: RiotApi{
			ApiKey:            "RGAPI-00000000-mock-key",
			Preset:            "standard",
			RequestTimeoutSec: 10,
			MaxRetries:        3,
			QueueType:         "RANKED_SOLO_5x5",
			QueueId:           420,
			Regions: map[string]Region{
				"NA":  {Platform: "na1", Routing: "americas"},
				"EUW": {Platform: "euw1", Routing: "europe"},
				"KR":  {Platform: "kr", Routing: "asia"},
			},
			Standard: map[string]RateLimit{
				"league-v4":           {PerSecond: 10, Per2Min: 600},
				"match-v5":            {PerSecond: 20, Per2Min: 100},
				"champion-mastery-v4": {PerSecond: 20, Per2Min: 100},
				"summoner-v4":         {PerSecond: 20, Per2Min: 100},
			},
			Restricted: map[string]RateLimit{
				"league-v4":           {PerSecond: 20, Per2Min: 100},
				"match-v5":            {PerSecond: 20, Per2Min: 100},
				"champion-mastery-v4": {PerSecond: 20, Per2Min: 100},
				"summoner-v4":         {PerSecond: 20, Per2Min: 100},
			},
		},

		// Collector
		Collector: Collector{
			Workers:          5,
			BatchSize:        500,
			MatchTarget:      1_000_000,
			MatchesPerPlayer: 100,
			MinGameDuration:  300,
			TierAllocation: map[string]float64{
				"apex":    0.30,
				"diamond": 0.45,
				"emerald": 0.25,
			},
			RetryPasses:      1,
			RetryCooldownSec: 60,
		},

		// Kafka (egress tắt mặc định)
		Kafka: Kafka{
			Brokers:      nil,
			TopicMatches: "mastery-crawler.matches",
		},

		// Ui
		Ui: Ui{
			Port: 8080,
		},
	}, nil
}
