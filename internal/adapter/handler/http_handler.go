package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/rl1809/easy-inventory/internal/core/domain"
	"github.com/rl1809/easy-inventory/internal/core/service"
	"github.com/rl1809/easy-inventory/internal/port"
)

const tracerName = "github.com/rl1809/easy-inventory/internal/adapter/handler"

type HTTPConfig struct {
	CookieName    string
	CookieSecure  bool
	CORSOrigins   []string
	MaxPhotoBytes int64
}

type HTTPHandler struct {
	auth      *service.AuthService
	inventory *service.InventoryService
	reports   *service.ReportService
	blobs     port.BlobStore
	cfg       HTTPConfig
}

// Response is the envelope of every JSON reply.
type Response struct {
	Success bool             `json:"success"`
	Message string           `json:"message"`
	State   domain.AuthState `json:"state,omitempty"`
	Data    any              `json:"data,omitempty"`
}

func NewHTTPHandler(
	auth *service.AuthService,
	inventory *service.InventoryService,
	reports *service.ReportService,
	blobs port.BlobStore,
	cfg HTTPConfig,
) *HTTPHandler {
	if cfg.CookieName == "" {
		cfg.CookieName = "inventory_session"
	}
	return &HTTPHandler{
		auth:      auth,
		inventory: inventory,
		reports:   reports,
		blobs:     blobs,
		cfg:       cfg,
	}
}

// NewServer wraps Routes in an http.Server. Shutdown cancels the context of
// every in-flight request so open event streams end instead of holding the
// server past its deadline.
func (h *HTTPHandler) NewServer(addr string) *http.Server {
	baseCtx, endRequests := context.WithCancel(context.Background())
	srv := &http.Server{
		Addr:              addr,
		Handler:           h.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}
	srv.RegisterOnShutdown(endRequests)
	return srv
}

// Routes builds the chi router for the public API.
func (h *HTTPHandler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(h.cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: h.cfg.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
			ExposedHeaders: []string{"Content-Disposition"},
			// Cookies are only sent cross-origin to origins named explicitly.
			AllowCredentials: !slices.Contains(h.cfg.CORSOrigins, "*"),
			MaxAge:           300,
		}))
	}
	r.Use(tracing)

	r.Get("/health", h.HealthCheck)
	r.Get("/photos/*", h.Photo)

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/sign-in", h.SignIn)
		r.Post("/password-reset", h.RequestPasswordReset)
		r.Post("/password-reset/confirm", h.ConfirmPasswordReset)
		r.With(h.requireAccount).Post("/sign-out", h.SignOut)
		r.With(h.requireAccount).Get("/me", h.Me)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.requireAccount)

		r.Get("/api/inventory", h.ListRecords)
		r.Post("/api/inventory", h.CreateRecord)
		r.Get("/api/inventory/stream", h.Stream)
		r.Get("/api/inventory/{id}", h.GetRecord)
		r.Put("/api/inventory/{id}", h.UpdateRecord)
		r.Delete("/api/inventory/{id}", h.DeleteRecord)

		r.Get("/api/report", h.ReportSummary)
		r.Post("/api/report/pdf", h.ReportPDF)
	})

	return r
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type ctxKey int

const (
	accountKey ctxKey = iota
	tokenKey
)

// requireAccount resolves the bearer token or session cookie to an account.
func (h *HTTPHandler) requireAccount(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := h.sessionToken(r)
		if token == "" {
			writeJSON(w, http.StatusUnauthorized, Response{Message: "please sign in", State: domain.AuthStateIdle})
			return
		}

		account, err := h.auth.Authenticate(r.Context(), token)
		if err != nil {
			writeError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), accountKey, account)
		ctx = context.WithValue(ctx, tokenKey, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *HTTPHandler) sessionToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if c, err := r.Cookie(h.cfg.CookieName); err == nil {
		return c.Value
	}
	return ""
}

func accountFrom(ctx context.Context) domain.Account {
	a, _ := ctx.Value(accountKey).(domain.Account)
	return a
}

func tokenFrom(ctx context.Context) string {
	t, _ := ctx.Value(tokenKey).(string)
	return t
}

// tracing starts a server span per request, named after the matched route.
func tracing(next http.Handler) http.Handler {
	tracer := otel.Tracer(tracerName)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := tracer.Start(ctx, r.Method, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		span.SetName(r.Method + " " + route)
		span.SetAttributes(
			attribute.String("http.request.method", r.Method),
			attribute.String("http.route", route),
			attribute.Int("http.response.status_code", ww.Status()),
		)
		if ww.Status() >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(ww.Status()))
		}
	})
}

// errorStatus maps service and domain errors to a status code and a message
// that is safe to show to the user.
func errorStatus(err error) (int, string) {
	switch {
	case domain.IsValidation(err):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrUsernameTaken),
		errors.Is(err, service.ErrEmailInUse),
		errors.Is(err, service.ErrRegistrationBusy),
		errors.Is(err, service.ErrConflict):
		return http.StatusConflict, err.Error()
	case errors.Is(err, service.ErrDuplicateRequest):
		return http.StatusConflict, "duplicate request"
	case errors.Is(err, service.ErrUsernameNotFound),
		errors.Is(err, service.ErrIncorrectPassword):
		return http.StatusUnauthorized, err.Error()
	case errors.Is(err, service.ErrInvalidToken),
		errors.Is(err, service.ErrSessionRevoked):
		return http.StatusUnauthorized, "please sign in again"
	case errors.Is(err, service.ErrNoAccountForEmail),
		errors.Is(err, service.ErrRecordNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, service.ErrResetTokenInvalid),
		errors.Is(err, service.ErrInvalidPhoto):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrPhotoTooLarge):
		return http.StatusRequestEntityTooLarge, err.Error()
	}
	return http.StatusInternalServerError, "internal error"
}

func writeError(w http.ResponseWriter, err error) {
	writeErrorState(w, err, "")
}

// writeErrorState is writeError for auth flows, which report the failed state.
func writeErrorState(w http.ResponseWriter, err error, state domain.AuthState) {
	status, message := errorStatus(err)
	if status == http.StatusInternalServerError {
		log.Printf("http: %v", err)
	}
	writeJSON(w, status, Response{Success: false, Message: message, State: state})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

type recordDTO struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Quantity  int       `json:"quantity"`
	Price     string    `json:"price"`
	Photo     string    `json:"photo,omitempty"`
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toRecordDTO(r domain.InventoryRecord) recordDTO {
	return recordDTO{
		ID:        r.ID,
		Name:      r.Name,
		Quantity:  r.Quantity,
		Price:     r.Price.StringFixed(2),
		Photo:     r.Photo,
		Version:   r.Version,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

type accountDTO struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

func toAccountDTO(a domain.Account) accountDTO {
	return accountDTO{ID: a.ID, Username: a.Username, Email: a.Email}
}
