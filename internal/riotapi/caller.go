// Gói riotapi bọc HTTP client gọi Riot API: xếp hàng qua rate limiter
// trước mỗi request, phân loại response và tự retry theo từng loại lỗi.
// Caller không bao giờ panic vì lỗi mạng; lỗi được phân thành skip
// (trả về not-found), transient (trả TransientError) hoặc retry tại chỗ.

package riotapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/thep200/mastery-crawler/cfg"
	"github.com/thep200/mastery-crawler/internal/limiter"
	"github.com/thep200/mastery-crawler/internal/shutdown"
	"github.com/thep200/mastery-crawler/pkg/log"
)

// Endpoint class, mỗi class có quota riêng theo region
const (
	ClassLeague   = "league-v4"
	ClassSummoner = "summoner-v4"
	ClassMatch    = "match-v5"
	ClassMastery  = "champion-mastery-v4"
)

const (
	// Retry-After mặc định khi server trả 429 mà không kèm header
	defaultRetryAfter = 10 * time.Second

	// Trần backoff cho lỗi 5xx và lỗi mạng
	backoffCeiling = 60 * time.Second
)

// TransientError báo hiệu endpoint đang lỗi phía server sau khi đã hết
// số lần retry. Collector bắt lỗi này để đưa đơn vị vào hàng retry trễ
// thay vì bỏ hẳn.
type TransientError struct {
	Endpoint string
	Status   int
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient api error: %s returned %d after retries", e.Endpoint, e.Status)
}

func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

type Caller struct {
	Config   *cfg.Config
	Logger   log.Logger
	Limiters *limiter.Registry
	Shutdown *shutdown.Coordinator

	client *http.Client

	// Log quota header một lần cho mỗi endpoint class
	quotaMu     sync.Mutex
	quotaLogged map[string]bool
}

func NewCaller(config *cfg.Config, logger log.Logger, limiters *limiter.Registry, coordinator *shutdown.Coordinator) (*Caller, error) {
	timeout := time.Duration(config.RiotApi.RequestTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Caller{
		Config:      config,
		Logger:      logger,
		Limiters:    limiters,
		Shutdown:    coordinator,
		client:      &http.Client{Timeout: timeout},
		quotaLogged: make(map[string]bool),
	}, nil
}

// baseURL trả về host cho một endpoint class của region. Match-v5 đi
// qua routing host, các class còn lại đi qua platform host. BaseUrl
// trong config (nếu có) override tất cả, phục vụ test.
func (c *Caller) baseURL(class, region string) string {
	if c.Config.RiotApi.BaseUrl != "" {
		return c.Config.RiotApi.BaseUrl
	}
	reg := c.Config.RiotApi.Regions[region]
	host := reg.Platform
	if class == ClassMatch {
		host = reg.Routing
	}
	return fmt.Sprintf("https://%s.api.riotgames.com", host)
}

func (c *Caller) logQuotaOnce(ctx context.Context, class string, resp *http.Response) {
	c.quotaMu.Lock()
	defer c.quotaMu.Unlock()
	if c.quotaLogged[class] {
		return
	}
	if quota := resp.Header.Get("X-App-Rate-Limit"); quota != "" {
		c.Logger.Info(ctx, "Server quota for %s: app=%s method=%s",
			class, quota, resp.Header.Get("X-Method-Rate-Limit"))
		c.quotaLogged[class] = true
	}
}

func retryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultRetryAfter
}

func isTimeoutOrConn(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

// get gọi một endpoint và decode JSON vào out. Trả về (true, nil) khi
// có dữ liệu, (false, nil) khi đơn vị nên bị bỏ qua (404, 400, lỗi
// mạng đã hết retry, hoặc bị hủy giữa chừng), và lỗi khi hết retry
// trên 5xx.
//
// Mỗi loại status xử lý một kiểu:
//   - 429: reset limiter, chờ Retry-After rồi gọi lại, KHÔNG tính vào
//     số lần retry vì đây là lỗi điều phối chứ không phải lỗi endpoint.
//   - 404: dữ liệu không tồn tại, là kết quả hợp lệ.
//   - 400: request sai vĩnh viễn, retry vô ích.
//   - 502/503 và 5xx khác: backoff lũy thừa tới trần, hết lượt thì trả
//     TransientError.
func (c *Caller) get(ctx context.Context, class, region, path string, out interface{}) (bool, error) {
	fullURL := c.baseURL(class, region) + path
	lim := c.Limiters.Get(class, region)
	maxRetries := c.Config.RiotApi.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	attempt := 0
	for {
		if c.Shutdown.Triggered() {
			return false, nil
		}
		lim.WaitIfNeeded()
		// Shutdown có thể đánh thức sleep của limiter sớm; kiểm tra lại
		// để không bắn thêm request khi chưa chờ đủ cửa sổ
		if c.Shutdown.Triggered() {
			return false, nil
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return false, err
		}
		req.Header.Set("X-Riot-Token", c.Config.RiotApi.ApiKey)

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return false, nil
			}
			if !isTimeoutOrConn(err) {
				return false, err
			}
			attempt++
			if attempt > maxRetries {
				c.Logger.Warn(ctx, "Giving up on %s after %d network errors: %v", path, maxRetries, err)
				return false, nil
			}
			wait := backoff(attempt)
			c.Logger.Warn(ctx, "Network error on %s (attempt %d/%d), retrying in %v: %v",
				path, attempt, maxRetries, wait, err)
			if !c.Shutdown.Sleep(wait) {
				return false, nil
			}
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			c.logQuotaOnce(ctx, class, resp)
			if readErr != nil {
				return false, readErr
			}
			if err := json.Unmarshal(body, out); err != nil {
				return false, fmt.Errorf("decode %s: %w", path, err)
			}
			return true, nil

		case resp.StatusCode == http.StatusTooManyRequests:
			wait := retryAfter(resp)
			c.Logger.Warn(ctx, "Rate limited on %s %s, waiting %v", class, region, wait)
			lim.Reset()
			if !c.Shutdown.Sleep(wait) {
				return false, nil
			}
			continue

		case resp.StatusCode == http.StatusNotFound:
			return false, nil

		case resp.StatusCode == http.StatusBadRequest:
			c.Logger.Warn(ctx, "Bad request on %s, skipping permanently", path)
			return false, nil

		case resp.StatusCode >= 500:
			attempt++
			if attempt > maxRetries {
				return false, &TransientError{Endpoint: path, Status: resp.StatusCode}
			}
			wait := backoff(attempt)
			c.Logger.Warn(ctx, "Server error %d on %s (attempt %d/%d), retrying in %v",
				resp.StatusCode, path, attempt, maxRetries, wait)
			if !c.Shutdown.Sleep(wait) {
				return false, nil
			}
			continue

		default:
			return false, fmt.Errorf("unexpected status %d on %s", resp.StatusCode, path)
		}
	}
}

func backoff(attempt int) time.Duration {
	wait := time.Duration(1<<attempt) * time.Second
	if wait > backoffCeiling {
		wait = backoffCeiling
	}
	return wait
}

// LeagueEntries trả về một trang bảng xếp hạng của tier/division,
// trang rỗng nghĩa là đã hết dữ liệu.
func (c *Caller) LeagueEntries(ctx context.Context, region, tier, division string, page int) ([]LeagueEntry, error) {
	path := fmt.Sprintf("/lol/league/v4/entries/%s/%s/%s?page=%d", c.Config.QueueName(), tier, division, page)
	var entries []LeagueEntry
	ok, err := c.get(ctx, ClassLeague, region, path, &entries)
	if err != nil || !ok {
		return nil, err
	}
	return entries, nil
}

func (c *Caller) ChallengerLeague(ctx context.Context, region string) (*LeagueList, error) {
	return c.apexLeague(ctx, region, "challengerleagues")
}

func (c *Caller) GrandmasterLeague(ctx context.Context, region string) (*LeagueList, error) {
	return c.apexLeague(ctx, region, "grandmasterleagues")
}

func (c *Caller) MasterLeague(ctx context.Context, region string) (*LeagueList, error) {
	return c.apexLeague(ctx, region, "masterleagues")
}

func (c *Caller) apexLeague(ctx context.Context, region, kind string) (*LeagueList, error) {
	path := fmt.Sprintf("/lol/league/v4/%s/by-queue/%s", kind, c.Config.QueueName())
	var list LeagueList
	ok, err := c.get(ctx, ClassLeague, region, path, &list)
	if err != nil || !ok {
		return nil, err
	}
	return &list, nil
}

func (c *Caller) SummonerByID(ctx context.Context, region, summonerID string) (*SummonerDTO, error) {
	path := fmt.Sprintf("/lol/summoner/v4/summoners/%s", summonerID)
	var dto SummonerDTO
	ok, err := c.get(ctx, ClassSummoner, region, path, &dto)
	if err != nil || !ok {
		return nil, err
	}
	return &dto, nil
}

// MatchIDsByPUUID trả về tối đa count match id gần nhất của một player
// trong queue đang cấu hình, có thể lọc theo khoảng thời gian config.
func (c *Caller) MatchIDsByPUUID(ctx context.Context, region, puuid string, count int) ([]string, error) {
	path := fmt.Sprintf("/lol/match/v5/matches/by-puuid/%s/ids?queue=%d&count=%d", puuid, c.Config.QueueID(), count)
	if c.Config.Collector.StartTime > 0 {
		path += fmt.Sprintf("&startTime=%d", c.Config.Collector.StartTime)
	}
	if c.Config.Collector.EndTime > 0 {
		path += fmt.Sprintf("&endTime=%d", c.Config.Collector.EndTime)
	}
	var ids []string
	ok, err := c.get(ctx, ClassMatch, region, path, &ids)
	if err != nil || !ok {
		return nil, err
	}
	return ids, nil
}

func (c *Caller) Match(ctx context.Context, region, matchID string) (*MatchDTO, error) {
	path := fmt.Sprintf("/lol/match/v5/matches/%s", matchID)
	var dto MatchDTO
	ok, err := c.get(ctx, ClassMatch, region, path, &dto)
	if err != nil || !ok {
		return nil, err
	}
	return &dto, nil
}

// AllChampionMastery trả về toàn bộ mastery của một player.
func (c *Caller) AllChampionMastery(ctx context.Context, region, puuid string) ([]MasteryDTO, error) {
	path := fmt.Sprintf("/lol/champion-mastery/v4/champion-masteries/by-puuid/%s", puuid)
	var dtos []MasteryDTO
	ok, err := c.get(ctx, ClassMastery, region, path, &dtos)
	if err != nil || !ok {
		return nil, err
	}
	return dtos, nil
}

// ChampionMastery trả về mastery của một player với một champion,
// nil khi player chưa từng chơi champion đó.
func (c *Caller) ChampionMastery(ctx context.Context, region, puuid string, championID int) (*MasteryDTO, error) {
	path := fmt.Sprintf("/lol/champion-mastery/v4/champion-masteries/by-puuid/%s/by-champion/%d", puuid, championID)
	var dto MasteryDTO
	ok, err := c.get(ctx, ClassMastery, region, path, &dto)
	if err != nil || !ok {
		return nil, err
	}
	return &dto, nil
}
