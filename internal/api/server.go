package api

import (
	"encoding/json"
	"net/http"
	"path"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/rikiramadhan1028/NEW-ART/internal/auth"
	"github.com/rikiramadhan1028/NEW-ART/internal/metadata"
	"github.com/rikiramadhan1028/NEW-ART/internal/metrics"
	"github.com/rikiramadhan1028/NEW-ART/internal/model"
	"github.com/rikiramadhan1028/NEW-ART/internal/store"
)

// maxMemory is the part of a multipart form kept in memory; the rest spills to disk.
const maxMemory int64 = 32 << 20

// ResultSource serves cached results of completed jobs.
type ResultSource interface {
	Result(id string) (model.JobResult, bool)
}

// Options configures the API server.
type Options struct {
	// DataDir holds one directory per job and is served under /api/download/.
	DataDir string
	// UploadsDir receives uploaded archives while a request is handled.
	UploadsDir string

	MaxItems       int
	MaxUploadBytes int64
	// MaxExtractBytes bounds the uncompressed size of an upload. Zero means
	// four times MaxUploadBytes.
	MaxExtractBytes int64

	// CORSOrigin is the allowed CORS origin. Empty means "*".
	CORSOrigin string

	Authorizer auth.Authorizer
	Results    ResultSource
	Rewriter   *metadata.Rewriter
	// GenerateLimiter throttles job submissions; nil disables throttling.
	GenerateLimiter *rate.Limiter

	Gatherer    prometheus.Gatherer
	HTTPMetrics *metrics.HTTPMetrics
}

// Server holds the HTTP handlers and dependencies.
type Server struct {
	store store.JobRepository
	opts  Options
	mux   *http.ServeMux
}

// New creates a new API server.
func New(s store.JobRepository, opts Options) *Server {
	if opts.Authorizer == nil {
		opts.Authorizer = auth.AllowAll{}
	}
	if opts.Rewriter == nil {
		opts.Rewriter = &metadata.Rewriter{}
	}
	if opts.MaxExtractBytes == 0 {
		opts.MaxExtractBytes = 4 * opts.MaxUploadBytes
	}
	if opts.CORSOrigin == "" {
		opts.CORSOrigin = "*"
	}
	srv := &Server{store: s, opts: opts, mux: http.NewServeMux()}
	srv.routes()
	return srv
}

// Handler returns the root http.Handler with middleware applied.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	if s.opts.HTTPMetrics != nil {
		h = s.opts.HTTPMetrics.Middleware(h)
	}
	return corsMiddleware(s.opts.CORSOrigin, h)
}

func (s *Server) routes() {
	upload := func(h http.HandlerFunc) http.Handler {
		return limitBody(s.opts.MaxUploadBytes, jsonContent(h))
	}
	s.mux.Handle("POST /api/generate", upload(s.handleGenerate))
	s.mux.Handle("POST /api/update-metadata", upload(s.handleUpdateMetadata))
	s.mux.Handle("GET /api/job-status/{id}", jsonContent(http.HandlerFunc(s.handleJobStatus)))
	s.mux.Handle("GET /api/jobs", jsonContent(http.HandlerFunc(s.handleListJobs)))
	s.mux.Handle("GET /api/download/", http.StripPrefix("/api/download/", noListing(http.FileServer(http.Dir(s.opts.DataDir)))))
	if s.opts.Gatherer != nil {
		s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	}
}

// ---------------------------------------------------------------------------
// Middleware
// ---------------------------------------------------------------------------

// corsMiddleware sets CORS headers for the configured origin.
func corsMiddleware(origin string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// limitBody restricts the request body to n bytes.
func limitBody(n int64, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if n > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, n)
		}
		next.ServeHTTP(w, r)
	})
}

func jsonContent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// noListing serves files only; directory paths get a 404.
func noListing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") || path.Ext(r.URL.Path) == "" {
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ---------------------------------------------------------------------------
// Response helpers
// ---------------------------------------------------------------------------

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func splitComma(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
