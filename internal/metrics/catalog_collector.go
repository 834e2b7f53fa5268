package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"eufy-bridge/internal/catalog"
	"eufy-bridge/internal/logging"
)

var log = logging.MustGetLogger("metrics")

// StatsSource is implemented by the recording catalog.
type StatsSource interface {
	Stats(ctx context.Context) (catalog.Stats, error)
}

var (
	catalogUpDesc = prometheus.NewDesc(
		namespace+"_catalog_up", "Was the last catalog read successful.", nil, nil,
	)
	catalogRecordingsDesc = prometheus.NewDesc(
		namespace+"_catalog_recordings", "Recordings stored in the catalog, by end reason.", []string{"reason"}, nil,
	)
	catalogBytesDesc = prometheus.NewDesc(
		namespace+"_catalog_bytes", "Total bytes of catalogued recordings.", nil, nil,
	)
	catalogScrapeDesc = prometheus.NewDesc(
		namespace+"_catalog_scrape_duration_seconds", "Time taken to read catalog stats.", nil, nil,
	)
)

// CatalogCollector queries the catalog on every scrape.
type CatalogCollector struct {
	Source  StatsSource
	Timeout time.Duration
	Mutex   sync.Mutex
}

// Describe implements prometheus.Collector.
func (c *CatalogCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- catalogUpDesc
	ch <- catalogRecordingsDesc
	ch <- catalogBytesDesc
	ch <- catalogScrapeDesc
}

// Collect implements prometheus.Collector.
func (c *CatalogCollector) Collect(ch chan<- prometheus.Metric) {
	c.Mutex.Lock()
	defer c.Mutex.Unlock()
	start := time.Now()

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	up := 1.0
	stats, err := c.Source.Stats(ctx)
	if err != nil {
		up = 0.0
		log.Warningf("catalog scrape: %v", err)
	} else {
		for reason, n := range stats.ByReason {
			ch <- prometheus.MustNewConstMetric(catalogRecordingsDesc, prometheus.GaugeValue, float64(n), reason)
		}
		ch <- prometheus.MustNewConstMetric(catalogBytesDesc, prometheus.GaugeValue, float64(stats.Bytes))
	}

	ch <- prometheus.MustNewConstMetric(catalogUpDesc, prometheus.GaugeValue, up)
	ch <- prometheus.MustNewConstMetric(catalogScrapeDesc, prometheus.GaugeValue, time.Since(start).Seconds())
}
