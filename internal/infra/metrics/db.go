package metrics

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(dbPoolStats) }

var dbPoolStats = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "db_pool_stats",
		Help: "Current state of the database connection pool.",
	},
	[]string{"state"}, // total|idle|in_use|max
)

func SetDBPoolStats(total, idle, inUse, max int32) {
	dbPoolStats.WithLabelValues("total").Set(float64(total))
	dbPoolStats.WithLabelValues("idle").Set(float64(idle))
	dbPoolStats.WithLabelValues("in_use").Set(float64(inUse))
	dbPoolStats.WithLabelValues("max").Set(float64(max))
}

// WatchPool samples pool statistics every interval until ctx is done.
func WatchPool(ctx context.Context, pool *pgxpool.Pool, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		s := pool.Stat()
		SetDBPoolStats(s.TotalConns(), s.IdleConns(), s.AcquiredConns(), s.MaxConns())
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}
