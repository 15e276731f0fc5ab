package transporthttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/swaggo/swag"

	"github.com/MrKriegler/go-parametric/internal/http/handlers"
	"github.com/MrKriegler/go-parametric/internal/middleware"
)

// APIPrefix is where every feature router is mounted.
const APIPrefix = "/api/v1"

// Deps bundles feature handlers that implement handlers.Mountable.
type Deps struct {
	Mounts  []handlers.Mountable // JSON endpoints, capped at middleware.MaxBodySize
	Uploads []handlers.Mountable // multipart endpoints that enforce their own cap
	Health  http.Handler

	APIKey         string
	AllowedOrigins []string
	RateLimiter    *middleware.RateLimiter // nil disables rate limiting
	RequestTimeout time.Duration
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	if d.RequestTimeout > 0 {
		r.Use(chimw.Timeout(d.RequestTimeout))
	}
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(d.AllowedOrigins))
	if d.RateLimiter != nil {
		r.Use(d.RateLimiter.Middleware)
	}
	r.Use(middleware.SimpleAPIKey(d.APIKey))

	if d.Health != nil {
		r.Get("/health", d.Health.ServeHTTP)
		r.Get("/readyz", d.Health.ServeHTTP)
	}

	r.Get("/swagger/doc.json", func(w http.ResponseWriter, _ *http.Request) {
		doc, err := swag.ReadDoc()
		if err != nil {
			http.Error(w, "swagger unavailable", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(doc))
	})

	r.Route(APIPrefix, func(api chi.Router) {
		api.Use(middleware.SetJSONContentType)

		// Mount each feature's routes into this router.
		api.Group(func(g chi.Router) {
			g.Use(middleware.LimitRequestBody(middleware.MaxBodySize))
			for _, m := range d.Mounts {
				m.Mount(g)
			}
		})
		api.Group(func(g chi.Router) {
			for _, m := range d.Uploads {
				m.Mount(g)
			}
		})
	})

	return r
}
