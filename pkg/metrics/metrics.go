// Package metrics 导出看门狗的 prometheus 指标
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const namespace = "watchdogd"

// reboot 尝试的结果标签
const (
	ResultOK     = "ok"
	ResultFailed = "failed"
)

// Metrics 持有独立的 Registry，测试里可以创建多份
type Metrics struct {
	Registry *prometheus.Registry

	Pets              prometheus.Counter
	PetFailures       prometheus.Counter
	ComponentTimeouts *prometheus.CounterVec
	RebootAttempts    *prometheus.CounterVec
	Registered        prometheus.Gauge
	Armed             prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Pets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pets_total",
			Help:      "Total number of keep-alive writes to the watchdog device.",
		}),
		PetFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pet_failures_total",
			Help:      "Total number of failed keep-alive writes.",
		}),
		ComponentTimeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "component_timeouts_total",
			Help:      "Critical components detected as timed out.",
		}, []string{"component"}),
		RebootAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reboot_attempts_total",
			Help:      "Graceful reboot attempts by result.",
		}, []string{"result"}),
		Registered: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "registered_components",
			Help:      "Number of registered critical components.",
		}),
		Armed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "armed",
			Help:      "1 while the hardware watchdog is armed.",
		}),
	}

	m.Registry.MustRegister(
		m.Pets,
		m.PetFailures,
		m.ComponentTimeouts,
		m.RebootAttempts,
		m.Registered,
		m.Armed,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Server 是 /metrics 的 HTTP 服务
type Server struct {
	srv    *http.Server
	ln     net.Listener
	logger *zap.SugaredLogger
}

// Serve 在 listen 地址上启动 /metrics 和 /healthz
func Serve(listen string, m *Metrics, logger *zap.SugaredLogger) (*Server, error) {
	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	s := &Server{
		srv: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		ln:     ln,
		logger: logger,
	}

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("Metrics server error: %v", err)
		}
	}()

	logger.Infof("Metrics listening on %s", ln.Addr())

	return s, nil
}

func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
