package parking

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector exposes slot occupancy as Prometheus gauges, read from a status
// snapshot at scrape time.
type Collector struct {
	lot *ParkingLot

	totalDesc     *prometheus.Desc
	occupiedDesc  *prometheus.Desc
	availableDesc *prometheus.Desc
	expiredDesc   *prometheus.Desc
	passesDesc    *prometheus.Desc
}

func NewCollector(lot *ParkingLot) *Collector {
	return &Collector{
		lot: lot,
		totalDesc: prometheus.NewDesc("parking_slots_total",
			"Total number of slots in the pool.", nil, nil),
		occupiedDesc: prometheus.NewDesc("parking_slots_occupied",
			"Number of slots currently bound to a ticket.", nil, nil),
		availableDesc: prometheus.NewDesc("parking_slots_available",
			"Number of free slots by vehicle size and section.", []string{"size", "section"}, nil),
		expiredDesc: prometheus.NewDesc("parking_slots_expired",
			"Number of occupied slots past their time limit.", nil, nil),
		passesDesc: prometheus.NewDesc("parking_membership_passes_active",
			"Number of membership passes that have not expired.", nil, nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.totalDesc
	ch <- c.occupiedDesc
	ch <- c.availableDesc
	ch <- c.expiredDesc
	ch <- c.passesDesc
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	status := c.lot.Status()

	ch <- prometheus.MustNewConstMetric(c.totalDesc, prometheus.GaugeValue, float64(status.TotalSlots))
	ch <- prometheus.MustNewConstMetric(c.occupiedDesc, prometheus.GaugeValue, float64(status.Occupied))
	ch <- prometheus.MustNewConstMetric(c.expiredDesc, prometheus.GaugeValue, float64(status.Expired))
	ch <- prometheus.MustNewConstMetric(c.passesDesc, prometheus.GaugeValue, float64(status.ActivePasses))

	for _, size := range Sizes {
		for _, section := range Sections {
			ch <- prometheus.MustNewConstMetric(c.availableDesc, prometheus.GaugeValue,
				float64(status.Availability[size][section]), size.String(), section.String())
		}
	}
}
