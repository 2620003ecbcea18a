package redisstore

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// counterRetention is how long per-day counters are kept.
const counterRetention = 90 * 24 * time.Hour

func statsKey(day time.Time) string {
	return "stats:" + day.UTC().Format("2006-01-02")
}

// IncrCounter bumps today's counter for name.
func (s *Store) IncrCounter(ctx context.Context, name string) error {
	key := statsKey(s.now())
	pipe := s.client.Pipeline()
	pipe.HIncrBy(ctx, key, name, 1)
	pipe.Expire(ctx, key, counterRetention)
	_, err := pipe.Exec(ctx)
	return err
}

// Counters returns every counter recorded on day. Days without activity give
// an empty map.
func (s *Store) Counters(ctx context.Context, day time.Time) (map[string]int64, error) {
	raw, err := s.client.HGetAll(ctx, statsKey(day)).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(raw))
	for name, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		out[name] = n
	}
	return out, nil
}

// DayCounters is one day of counters.
type DayCounters struct {
	Day      string           `json:"day"`
	Counters map[string]int64 `json:"counters"`
}

// RecentCounters returns the last days days of counters, today first.
func (s *Store) RecentCounters(ctx context.Context, days int) ([]DayCounters, error) {
	if days <= 0 {
		days = 1
	}
	today := s.now().UTC()

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, days)
	for i := 0; i < days; i++ {
		cmds[i] = pipe.HGetAll(ctx, statsKey(today.AddDate(0, 0, -i)))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	out := make([]DayCounters, days)
	for i, cmd := range cmds {
		raw, _ := cmd.Result()
		counters := make(map[string]int64, len(raw))
		for name, v := range raw {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				counters[name] = n
			}
		}
		out[i] = DayCounters{Day: today.AddDate(0, 0, -i).Format("2006-01-02"), Counters: counters}
	}
	return out, nil
}
