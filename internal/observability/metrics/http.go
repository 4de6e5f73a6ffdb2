// Package metrics keeps service counters and exposes them in the Prometheus
// text exposition format. It is deliberately dependency-free on the wire
// side: scraping /metrics is the only integration surface.
package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

type requestKey struct {
	handler string
	method  string
	code    string
}

type routeKey struct {
	handler string
	method  string
}

type runKey struct {
	status string
}

type executionKey struct {
	status  string
	batched string
}

var durationBounds = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

type histogram struct {
	counts []uint64
	sum    float64
	count  uint64
}

func (h *histogram) observe(value float64) {
	h.count++
	h.sum += value
	for i, bound := range durationBounds {
		if value <= bound {
			for ; i < len(h.counts); i++ {
				h.counts[i]++
			}
			break
		}
	}
	// Values past the last bound only show up in the +Inf bucket via h.count.
}

type collector struct {
	mu         sync.Mutex
	requests   map[requestKey]uint64
	errors     map[routeKey]uint64
	latency    map[routeKey]*histogram
	runs       map[runKey]uint64
	executions map[executionKey]uint64
}

var serviceCollector = &collector{
	requests:   make(map[requestKey]uint64),
	errors:     make(map[routeKey]uint64),
	latency:    make(map[routeKey]*histogram),
	runs:       make(map[runKey]uint64),
	executions: make(map[executionKey]uint64),
}

// ObserveHTTPRequest records metrics about an HTTP request lifecycle.
func ObserveHTTPRequest(handler, method string, status int, duration time.Duration) {
	c := serviceCollector
	c.mu.Lock()
	defer c.mu.Unlock()

	c.requests[requestKey{handler: handler, method: method, code: strconv.Itoa(status)}]++
	route := routeKey{handler: handler, method: method}
	if status >= 500 {
		c.errors[route]++
	}
	hist := c.latency[route]
	if hist == nil {
		hist = &histogram{counts: make([]uint64, len(durationBounds))}
		c.latency[route] = hist
	}
	hist.observe(duration.Seconds())
}

// ObserveRun records the terminal queue status of a run.
func ObserveRun(status string) {
	serviceCollector.mu.Lock()
	serviceCollector.runs[runKey{status: status}]++
	serviceCollector.mu.Unlock()
}

// ObserveExecution records the settlement outcome of an execution attempt.
func ObserveExecution(status string, batched bool) {
	serviceCollector.mu.Lock()
	serviceCollector.executions[executionKey{status: status, batched: strconv.FormatBool(batched)}]++
	serviceCollector.mu.Unlock()
}

// Handler exposes the metrics in Prometheus text exposition format.
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = fmt.Fprint(w, serviceCollector.render())
	})
}

func sortedKeys[K comparable, V any](m map[K]V, less func(a, b K) bool) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return less(keys[i], keys[j]) })
	return keys
}

func routeLess(a, b routeKey) bool {
	if a.handler != b.handler {
		return a.handler < b.handler
	}
	return a.method < b.method
}

// render writes every family in sorted label order. Label values go through
// %q, whose escaping matches the text exposition format.
func (c *collector) render() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var b strings.Builder
	b.Grow(1024)

	b.WriteString("# HELP stratflow_http_requests_total Total number of HTTP requests processed.\n")
	b.WriteString("# TYPE stratflow_http_requests_total counter\n")
	for _, k := range sortedKeys(c.requests, func(a, b requestKey) bool {
		if a.handler != b.handler {
			return a.handler < b.handler
		}
		if a.method != b.method {
			return a.method < b.method
		}
		return a.code < b.code
	}) {
		fmt.Fprintf(&b, "stratflow_http_requests_total{handler=%q,method=%q,code=%q} %d\n",
			k.handler, k.method, k.code, c.requests[k])
	}

	b.WriteString("# HELP stratflow_http_request_errors_total Total number of HTTP requests that resulted in a server error.\n")
	b.WriteString("# TYPE stratflow_http_request_errors_total counter\n")
	for _, k := range sortedKeys(c.errors, routeLess) {
		fmt.Fprintf(&b, "stratflow_http_request_errors_total{handler=%q,method=%q} %d\n",
			k.handler, k.method, c.errors[k])
	}

	b.WriteString("# HELP stratflow_http_request_duration_seconds HTTP request duration in seconds.\n")
	b.WriteString("# TYPE stratflow_http_request_duration_seconds histogram\n")
	for _, k := range sortedKeys(c.latency, routeLess) {
		hist := c.latency[k]
		h, m := k.handler, k.method
		for i, bound := range durationBounds {
			fmt.Fprintf(&b, "stratflow_http_request_duration_seconds_bucket{handler=%q,method=%q,le=%q} %d\n",
				h, m, formatFloat(bound), hist.counts[i])
		}
		fmt.Fprintf(&b, "stratflow_http_request_duration_seconds_bucket{handler=%q,method=%q,le=\"+Inf\"} %d\n", h, m, hist.count)
		fmt.Fprintf(&b, "stratflow_http_request_duration_seconds_sum{handler=%q,method=%q} %s\n", h, m, formatFloat(hist.sum))
		fmt.Fprintf(&b, "stratflow_http_request_duration_seconds_count{handler=%q,method=%q} %d\n", h, m, hist.count)
	}

	b.WriteString("# HELP stratflow_runs_total Terminal run outcomes by queue status.\n")
	b.WriteString("# TYPE stratflow_runs_total counter\n")
	for _, k := range sortedKeys(c.runs, func(a, b runKey) bool { return a.status < b.status }) {
		fmt.Fprintf(&b, "stratflow_runs_total{status=%q} %d\n", k.status, c.runs[k])
	}

	b.WriteString("# HELP stratflow_executions_total Execution attempts by settlement status.\n")
	b.WriteString("# TYPE stratflow_executions_total counter\n")
	for _, k := range sortedKeys(c.executions, func(a, b executionKey) bool {
		if a.status != b.status {
			return a.status < b.status
		}
		return a.batched < b.batched
	}) {
		fmt.Fprintf(&b, "stratflow_executions_total{status=%q,batched=%q} %d\n",
			k.status, k.batched, c.executions[k])
	}

	return b.String()
}


func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
