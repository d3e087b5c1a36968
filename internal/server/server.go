// Package server implements the HTTP server and routing for nxt-shelf.
package server

import (
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/banux/nxt-shelf/internal/intake"
	"github.com/banux/nxt-shelf/internal/isbn"
	"github.com/banux/nxt-shelf/internal/library"
	"github.com/banux/nxt-shelf/internal/logger"
	"github.com/banux/nxt-shelf/internal/scan"
)

// Options tunes a Server. The zero value serves the API only, without auth.
type Options struct {
	// Password gates every route except /health and /login. Empty turns auth off.
	Password string

	// StaticFS holds the single-page UI served at /.
	StaticFS fs.FS

	// Logger receives request and error logs. Nil means no logging.
	Logger logger.Logger

	// ScanQuietPeriod is the barcode batching window. Zero selects scan.DefaultQuietPeriod.
	ScanQuietPeriod time.Duration

	// MaxBodyBytes caps request bodies. Zero means 10 MiB.
	MaxBodyBytes int64
}

// Server exposes a Library over HTTP.
type Server struct {
	router   *mux.Router
	lib      *library.Library
	lookup   isbn.Lookuper // nil disables lookup and intake
	intake   *intake.Workflow
	scanner  *scanner
	sessions *sessionStore
	log      logger.Logger
	opts     Options
}

// New wires the routes for lib. A nil lookup makes the lookup and intake
// endpoints answer 501.
func New(lib *library.Library, lookup isbn.Lookuper, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 10 << 20
	}
	s := &Server{
		lib:      lib,
		router:   mux.NewRouter(),
		lookup:   lookup,
		intake:   intake.NewWorkflow(lib, lookup, opts.Logger),
		log:      opts.Logger,
		sessions: newSessionStore(),
		opts:     opts,
	}
	s.scanner = newScanner(opts.ScanQuietPeriod, opts.Logger)
	s.registerRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close stops any running scan session.
func (s *Server) Close() {
	s.scanner.session.Stop()
}

func (s *Server) registerRoutes() {
	root := s.router
	root.Use(requestID, recovery(s.log), requestLogger(s.log), bodySizeLimit(s.opts.MaxBodyBytes))

	root.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	root.HandleFunc("/login", s.handleLoginPage).Methods(http.MethodGet)
	root.HandleFunc("/login", s.handleLoginPost).Methods(http.MethodPost)
	root.HandleFunc("/logout", s.handleLogout).Methods(http.MethodGet, http.MethodPost)

	protected := root.NewRoute().Subrouter()
	protected.Use(authMiddleware(s.opts.Password, s.sessions))

	// Books
	protected.HandleFunc("/api/books", s.handleListBooks).Methods(http.MethodGet)
	protected.HandleFunc("/api/books", s.handleCreateBook).Methods(http.MethodPost)
	protected.HandleFunc("/api/books/{id}", s.handleGetBook).Methods(http.MethodGet)
	protected.HandleFunc("/api/books/{id}", s.handleUpdateBook).Methods(http.MethodPut)
	protected.HandleFunc("/api/books/{id}", s.handleDeleteBook).Methods(http.MethodDelete)

	// Import / export of the whole collection
	protected.HandleFunc("/api/import", s.handleImport).Methods(http.MethodPost)
	protected.HandleFunc("/api/export", s.handleExport).Methods(http.MethodGet)

	// ISBN lookup and duplicate-aware intake
	protected.HandleFunc("/api/lookup", s.handleLookup).Methods(http.MethodGet)
	protected.HandleFunc("/api/intake", s.handleIntake).Methods(http.MethodPost)
	protected.HandleFunc("/api/intake/resolve", s.handleIntakeResolve).Methods(http.MethodPost)

	// Barcode capture session fed by the browser's decoder
	protected.HandleFunc("/api/scan", s.handleScanState).Methods(http.MethodGet)
	protected.HandleFunc("/api/scan/start", s.handleScanStart).Methods(http.MethodPost)
	protected.HandleFunc("/api/scan/detect", s.handleScanDetect).Methods(http.MethodPost)
	protected.HandleFunc("/api/scan/stop", s.handleScanStop).Methods(http.MethodPost)
	protected.HandleFunc("/api/scan/batch", s.handleScanBatch).Methods(http.MethodGet)

	// Enumerations for the frontend forms
	protected.HandleFunc("/api/meta", s.handleMeta).Methods(http.MethodGet)

	// The catch-all stays behind auth even without a UI so unknown paths
	// still prompt for credentials.
	var ui http.Handler = http.NotFoundHandler()
	if s.opts.StaticFS != nil {
		ui = http.FileServer(http.FS(s.opts.StaticFS))
	}
	protected.PathPrefix("/").Handler(ui)
}

// scanner couples the capture session with the browser-fed decoder and
// holds the last finished batch until a client collects it.
type scanner struct {
	feed    *scan.Feed
	session *scan.Session

	mu    sync.Mutex
	batch []string
	ready bool
}

func newScanner(quiet time.Duration, log logger.Logger) *scanner {
	feed := scan.NewFeed()
	return &scanner{
		feed:    feed,
		session: scan.NewSession(feed, quiet, log),
	}
}

func (sc *scanner) sink(codes []string) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.batch = codes
	sc.ready = true
}

// take returns and clears the last batch.
func (sc *scanner) take() ([]string, bool) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	batch, ready := sc.batch, sc.ready
	sc.batch, sc.ready = nil, false
	return batch, ready
}
