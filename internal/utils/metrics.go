// internal/utils/metrics.go
package utils

import (
	"sync"
	"sync/atomic"
	"time"
)

// MetricsCollector collects application metrics
type MetricsCollector struct {
	counters   map[string]*Counter
	gauges     map[string]*Gauge
	histograms map[string]*Histogram

	mu sync.RWMutex
}

// Counter metric - using atomic operations for thread-safe value updates
type Counter struct {
	name  string
	value int64
}

// Gauge metric - using atomic operations for thread-safe value updates
type Gauge struct {
	name  string
	value int64
}

// Histogram metric (simple implementation tracking count, sum, min, max)
type Histogram struct {
	name  string
	count int64
	sum   int64
	min   int64
	max   int64
	mu    sync.Mutex
}

var (
	globalMetrics *MetricsCollector
	metricsOnce   sync.Once
)

// GetMetricsCollector returns the global metrics collector
func GetMetricsCollector() *MetricsCollector {
	metricsOnce.Do(func() {
		globalMetrics = &MetricsCollector{
			counters:   make(map[string]*Counter),
			gauges:     make(map[string]*Gauge),
			histograms: make(map[string]*Histogram),
		}
	})
	return globalMetrics
}

// IncrementCounter increments a counter metric
func (m *MetricsCollector) IncrementCounter(name string) {
	m.AddCounter(name, 1)
}

// AddCounter adds a value to a counter metric using atomic operations
func (m *MetricsCollector) AddCounter(name string, value int64) {
	// Fast path for existing counters
	m.mu.RLock()
	counter, exists := m.counters[name]
	m.mu.RUnlock()

	if !exists {
		m.mu.Lock()
		counter, exists = m.counters[name]
		if !exists {
			counter = &Counter{name: name}
			m.counters[name] = counter
		}
		m.mu.Unlock()
	}

	atomic.AddInt64(&counter.value, value)
}

// SetGauge sets a gauge metric
func (m *MetricsCollector) SetGauge(name string, value int64) {
	m.mu.RLock()
	gauge, exists := m.gauges[name]
	m.mu.RUnlock()

	if !exists {
		m.mu.Lock()
		gauge, exists = m.gauges[name]
		if !exists {
			gauge = &Gauge{name: name}
			m.gauges[name] = gauge
		}
		m.mu.Unlock()
	}

	atomic.StoreInt64(&gauge.value, value)
}

// GetGauge gets the current value of a gauge
func (m *MetricsCollector) GetGauge(name string) int64 {
	m.mu.RLock()
	gauge, exists := m.gauges[name]
	m.mu.RUnlock()

	if !exists {
		return 0
	}
	return atomic.LoadInt64(&gauge.value)
}

// RecordHistogram records a value in a histogram
func (m *MetricsCollector) RecordHistogram(name string, value int64) {
	m.mu.RLock()
	histogram, exists := m.histograms[name]
	m.mu.RUnlock()

	if !exists {
		m.mu.Lock()
		histogram, exists = m.histograms[name]
		if !exists {
			histogram = &Histogram{
				name: name,
				min:  value,
				max:  value,
			}
			m.histograms[name] = histogram
		}
		m.mu.Unlock()
	}

	histogram.mu.Lock()
	defer histogram.mu.Unlock()

	histogram.count++
	histogram.sum += value
	if value < histogram.min {
		histogram.min = value
	}
	if value > histogram.max {
		histogram.max = value
	}
}

// GetMetrics returns a snapshot of all metrics
func (m *MetricsCollector) GetMetrics() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	metrics := make(map[string]interface{})

	counters := make(map[string]int64)
	for name, counter := range m.counters {
		counters[name] = atomic.LoadInt64(&counter.value)
	}
	metrics["counters"] = counters

	gauges := make(map[string]int64)
	for name, gauge := range m.gauges {
		gauges[name] = atomic.LoadInt64(&gauge.value)
	}
	metrics["gauges"] = gauges

	histograms := make(map[string]map[string]int64)
	for name, histogram := range m.histograms {
		histogram.mu.Lock()
		histograms[name] = map[string]int64{
			"count": histogram.count,
			"sum":   histogram.sum,
			"min":   histogram.min,
			"max":   histogram.max,
		}
		histogram.mu.Unlock()
	}
	metrics["histograms"] = histograms

	return metrics
}

// GetCounterValue gets the current value of a counter
func (m *MetricsCollector) GetCounterValue(name string) int64 {
	m.mu.RLock()
	counter, exists := m.counters[name]
	m.mu.RUnlock()

	if !exists {
		return 0
	}
	return atomic.LoadInt64(&counter.value)
}

// LoopMetrics 改进循环相关的指标采集
type LoopMetrics struct {
	metrics *MetricsCollector
	logger  *Logger
}

// NewLoopMetrics 创建循环指标采集实例
func NewLoopMetrics() *LoopMetrics {
	return &LoopMetrics{
		metrics: GetMetricsCollector(),
		logger:  GetLogger(),
	}
}

// RecordIteration 记录一次生成+评估迭代
func (lm *LoopMetrics) RecordIteration(artifactType string, score float64, passed bool) {
	lm.metrics.IncrementCounter("loop_iterations_total")
	lm.metrics.IncrementCounter("loop_iterations_" + artifactType)
	lm.metrics.RecordHistogram("loop_iteration_score_x100", int64(score*100))
	if passed {
		lm.metrics.IncrementCounter("loop_iterations_passed")
	}
}

// RecordOracleCall 记录一次评分预言机调用
func (lm *LoopMetrics) RecordOracleCall(provider string, tokensUsed int, duration time.Duration) {
	lm.metrics.IncrementCounter("oracle_calls_total")
	lm.metrics.AddCounter("oracle_tokens_total", int64(tokensUsed))
	lm.metrics.RecordHistogram("oracle_latency_ms", duration.Milliseconds())

	lm.logger.Debug("oracle call completed", map[string]interface{}{
		"provider": provider,
		"tokens":   tokensUsed,
		"duration": duration.Milliseconds(),
	})
}

// RecordLoopOutcome 记录一次循环的终止原因与迭代数
func (lm *LoopMetrics) RecordLoopOutcome(artifactType, reason string, iterations int) {
	lm.metrics.IncrementCounter("loops_total")
	lm.metrics.IncrementCounter("loops_" + reason)
	lm.metrics.RecordHistogram("loop_iterations_per_run", int64(iterations))

	lm.logger.Info("generation loop finished", map[string]interface{}{
		"artifact_type": artifactType,
		"reason":        reason,
		"iterations":    iterations,
	})
}

// RecordError records an error metric by type and component
func (lm *LoopMetrics) RecordError(errorType, component string) {
	lm.metrics.IncrementCounter("errors_total")
	lm.metrics.IncrementCounter("errors_" + component + "_" + errorType)
}
