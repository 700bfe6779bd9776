package core

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector exports the configured devices' readings as
// Prometheus gauges, labeled by device address and model.
type MetricsCollector struct {
	registry *Registry
	store    *Store

	info           *prometheus.GaugeVec
	refreshSuccess *prometheus.GaugeVec
	lastSuccess    *prometheus.GaugeVec
	massPercent    *prometheus.GaugeVec
	massKg         *prometheus.GaugeVec
	predictionMin  *prometheus.GaugeVec
	batteryPercent *prometheus.GaugeVec
	rssiDbm        *prometheus.GaugeVec
	warningActive  *prometheus.GaugeVec
	statusInfo     *prometheus.GaugeVec
	capacityKg     *prometheus.GaugeVec
	weightKg       *prometheus.GaugeVec
	setupTime      *prometheus.GaugeVec
}

func NewMetricsCollector(registry *Registry, store *Store) *MetricsCollector {
	labels := []string{"address", "model"}
	return &MetricsCollector{
		registry: registry,
		store:    store,
		info: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "senso4s_device_info",
			Help: "Configured Senso4s device info",
		}, []string{"address", "model", "name", "area"}),
		refreshSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "senso4s_refresh_success",
			Help: "Last refresh success (1=ok, 0=error)",
		}, labels),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "senso4s_last_success_timestamp_seconds",
			Help: "Last successful update timestamp (epoch seconds)",
		}, labels),
		massPercent: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "senso4s_mass_percent",
			Help: "Remaining gas (%)",
		}, labels),
		massKg: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "senso4s_mass_kilograms",
			Help: "Remaining gas (kg)",
		}, labels),
		predictionMin: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "senso4s_prediction_minutes",
			Help: "Predicted time until the cylinder runs out (minutes)",
		}, labels),
		batteryPercent: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "senso4s_battery_percent",
			Help: "Battery level (%)",
		}, labels),
		rssiDbm: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "senso4s_rssi_dbm",
			Help: "Bluetooth signal strength (dBm)",
		}, labels),
		warningActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "senso4s_warning_active",
			Help: "PLUS model warning flags (1=active)",
		}, []string{"address", "model", "warning"}),
		statusInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "senso4s_status",
			Help: "Device status (1 for the active status)",
		}, []string{"address", "model", "status"}),
		capacityKg: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "senso4s_cylinder_capacity_kilograms",
			Help: "Total gas capacity of the cylinder (kg)",
		}, labels),
		weightKg: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "senso4s_cylinder_weight_kilograms",
			Help: "Empty cylinder weight (kg)",
		}, labels),
		setupTime: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "senso4s_setup_timestamp_seconds",
			Help: "Measuring cycle setup time (epoch seconds)",
		}, labels),
	}
}

func (c *MetricsCollector) vecs() []*prometheus.GaugeVec {
	return []*prometheus.GaugeVec{
		c.info, c.refreshSuccess, c.lastSuccess,
		c.massPercent, c.massKg, c.predictionMin, c.batteryPercent,
		c.rssiDbm, c.warningActive, c.statusInfo,
		c.capacityKg, c.weightKg, c.setupTime,
	}
}

func (c *MetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, vec := range c.vecs() {
		vec.Describe(ch)
	}
}

func (c *MetricsCollector) Collect(ch chan<- prometheus.Metric) {
	for _, vec := range c.vecs() {
		vec.Reset()
	}

	for _, entry := range c.registry.List() {
		snap, ok := c.store.Get(entry.Address)
		if !ok || snap.Device == nil {
			c.refreshSuccess.WithLabelValues(entry.Address, entry.Model).Set(0)
			continue
		}

		dev := snap.Device
		labels := prometheus.Labels{"address": entry.Address, "model": string(dev.Model)}

		c.info.With(prometheus.Labels{
			"address": entry.Address,
			"model":   string(dev.Model),
			"name":    entry.Name,
			"area":    entry.Area,
		}).Set(1)

		if snap.LastError == "" {
			c.refreshSuccess.With(labels).Set(1)
		} else {
			c.refreshSuccess.With(labels).Set(0)
		}
		if !snap.UpdatedAt.IsZero() {
			c.lastSuccess.With(labels).Set(float64(snap.UpdatedAt.Unix()))
		}

		r := dev.Reading
		setGauge(c.massPercent, labels, r.MassPercent)
		setGauge(c.massKg, labels, r.MassKg)
		setGauge(c.predictionMin, labels, r.PredictionMinutes)
		setGauge(c.batteryPercent, labels, r.BatteryPercent)
		setGauge(c.rssiDbm, labels, r.RSSIDbm)
		setGauge(c.capacityKg, labels, r.CylinderCapacityKg)
		setGauge(c.weightKg, labels, r.CylinderWeightKg)
		if r.SetupTime != nil {
			c.setupTime.With(labels).Set(float64(r.SetupTime.Unix()))
		}

		if r.Status != "" {
			c.statusInfo.With(prometheus.Labels{
				"address": entry.Address,
				"model":   string(dev.Model),
				"status":  string(r.Status),
			}).Set(1)
		}
		for _, warning := range r.Warnings {
			c.warningActive.With(prometheus.Labels{
				"address": entry.Address,
				"model":   string(dev.Model),
				"warning": string(warning),
			}).Set(1)
		}
	}

	for _, vec := range c.vecs() {
		vec.Collect(ch)
	}
}

func setGauge(vec *prometheus.GaugeVec, labels prometheus.Labels, value *float64) {
	if value == nil {
		return
	}
	vec.With(labels).Set(*value)
}

var _ prometheus.Collector = (*MetricsCollector)(nil)

// MetricsRegistry builds the daemon's Prometheus registry.
func MetricsRegistry(collectors ...prometheus.Collector) *prometheus.Registry {
	registry := prometheus.NewRegistry()
	for _, collector := range collectors {
		registry.MustRegister(collector)
	}
	registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "senso4s_build_info",
		Help: "Build information",
	}, func() float64 { return 1 }))
	return registry
}
