package routes

import (
	"net/http"
	"time"

	"github.com/justinas/alice"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/i3visio/simplectf/handler"
	"github.com/i3visio/simplectf/internal"
	"github.com/i3visio/simplectf/service"
)

var (
	requests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "simplectf_http_requests_total",
		Help: "HTTP requests served, by status code and method",
	}, []string{"code", "method"})

	inFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "simplectf_http_requests_in_flight",
		Help: "HTTP requests currently being served",
	})
)

// SetupRoutes wires every public endpoint. Metrics are served elsewhere.
func SetupRoutes(svc *service.Service) http.Handler {
	srv := handler.New(svc)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", srv.Home)
	mux.HandleFunc("GET /info", srv.Info)
	mux.HandleFunc("GET /list", srv.List)
	mux.HandleFunc("GET /rank", srv.Rank)
	mux.HandleFunc("GET /u/{username}", srv.User)
	mux.HandleFunc("GET /c/{challenge}", srv.Challenge)
	mux.HandleFunc("GET /c/{challenge}/{username}", srv.Submit)
	mux.HandleFunc("GET /c/{challenge}/{username}/{answer...}", srv.Submit)

	mux.HandleFunc("GET /healthz", srv.Healthz)

	mux.HandleFunc("/", srv.NotFound)

	chain := alice.New(
		internal.WithRequestID,
		logRequest,
		func(next http.Handler) http.Handler {
			return promhttp.InstrumentHandlerInFlight(inFlight, promhttp.InstrumentHandlerCounter(requests, next))
		},
	)
	return chain.Then(mux)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// logRequest writes one access log line per request.
func logRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sr, r)

		internal.GetRequestLogger(r).Info("request",
			"status", sr.status,
			"duration", time.Since(start),
		)
	})
}
