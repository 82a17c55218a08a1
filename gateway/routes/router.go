package routes

import (
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"benevault/gateway/middleware"
)

// ScopeVaultWrite gates the state-changing REST routes.
const ScopeVaultWrite = "vault:write"

type Config struct {
	Upstream      *url.URL
	UpstreamToken string
	Timeout       time.Duration
	Authenticator *middleware.Authenticator
	RateLimiter   *middleware.RateLimiter
	Observability *middleware.Observability
	CORS          middleware.CORSConfig
	Logger        *slog.Logger
}

// New assembles the gateway handler: REST bridge under /v1, a raw JSON-RPC
// passthrough at /rpc, health and metrics.
func New(cfg Config) (http.Handler, error) {
	client, err := newRPCClient(cfg.Upstream, cfg.UpstreamToken, cfg.Timeout, cfg.Logger)
	if err != nil {
		return nil, err
	}
	vault := newVaultRoutes(client)
	market := newMarketRoutes(client)

	r := chi.NewRouter()
	r.Use(middleware.CORS(cfg.CORS))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Handle("/rpc", NewProxy(cfg.Upstream, cfg.Logger))

	r.Route("/v1", func(v1 chi.Router) {
		if cfg.RateLimiter != nil {
			v1.Use(cfg.RateLimiter.Middleware())
		}
		v1.Route("/vault", func(vr chi.Router) {
			vr.Group(func(reads chi.Router) {
				if cfg.Authenticator != nil {
					reads.Use(cfg.Authenticator.Middleware())
				}
				if cfg.Observability != nil {
					reads.Use(cfg.Observability.Middleware("vault_read"))
				}
				vault.mountReads(reads)
			})
			vr.Group(func(writes chi.Router) {
				if cfg.Authenticator != nil {
					writes.Use(cfg.Authenticator.Middleware(ScopeVaultWrite))
				}
				if cfg.Observability != nil {
					writes.Use(cfg.Observability.Middleware("vault_write"))
				}
				vault.mountWrites(writes)
			})
		})
		v1.Route("/market", func(mr chi.Router) {
			if cfg.Authenticator != nil {
				mr.Use(cfg.Authenticator.Middleware())
			}
			if cfg.Observability != nil {
				mr.Use(cfg.Observability.Middleware("market"))
			}
			market.mount(mr)
		})
	})

	return r, nil
}
