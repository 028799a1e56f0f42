package domain

import "time"

// MetricType tags the union-typed value carried by a Metric.
type MetricType string

const (
	MetricNumeric      MetricType = "NUMERIC"
	MetricString       MetricType = "STRING"
	MetricDistribution MetricType = "DISTRIBUTION"
	MetricTimeSeries   MetricType = "TIME_SERIES"
	MetricHistogram    MetricType = "HISTOGRAM"
	MetricStatistics   MetricType = "STATISTICS"
)

// TimePoint is one sample of a time-series metric.
type TimePoint struct {
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
	Value     float64   `json:"value" bson:"value"`
}

// MetricValue is the union of the supported metric payloads; exactly the
// field matching the metric type is populated.
type MetricValue struct {
	Numeric      *float64           `json:"numeric,omitempty" bson:"numeric,omitempty"`
	Str          string             `json:"string,omitempty" bson:"string,omitempty"`
	Distribution map[string]float64 `json:"distribution,omitempty" bson:"distribution,omitempty"`
	TimeSeries   []TimePoint        `json:"time_series,omitempty" bson:"time_series,omitempty"`
	Histogram    map[string]int     `json:"histogram,omitempty" bson:"histogram,omitempty"`
	Statistics   map[string]float64 `json:"statistics,omitempty" bson:"statistics,omitempty"`
}

// Metric is a measurement produced by an analytics plugin. Its root is the
// Trace or TraceGroup whose lifecycle owns it.
type Metric struct {
	ElementHeader `bson:",inline"`

	MetricType MetricType  `json:"metric_type" bson:"metric_type"`
	Value      MetricValue `json:"value" bson:"value"`
	Timestamp  time.Time   `json:"timestamp,omitempty" bson:"timestamp,omitempty"`
}

// NewNumericMetric builds a NUMERIC metric owned by rootID.
func NewNumericMetric(rootID, name string, value float64) *Metric {
	m := &Metric{
		ElementHeader: ElementHeader{Type: KindMetric, RootID: rootID, Name: name},
		MetricType:    MetricNumeric,
		Value:         MetricValue{Numeric: &value},
	}
	m.EnsureID()
	return m
}

// NewDistributionMetric builds a DISTRIBUTION metric owned by rootID.
func NewDistributionMetric(rootID, name string, dist map[string]float64) *Metric {
	m := &Metric{
		ElementHeader: ElementHeader{Type: KindMetric, RootID: rootID, Name: name},
		MetricType:    MetricDistribution,
		Value:         MetricValue{Distribution: dist},
	}
	m.EnsureID()
	return m
}
