package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/unrolled/secure"

	"pdv/backend/internal/domain"
	"pdv/backend/internal/service"
	"pdv/backend/internal/store"
)

const (
	maxJSONBody      = 1 << 20
	loginAttempts    = 5
	loginWindow      = time.Minute
	defaultSaleLimit = 50
	maxSaleLimit     = 200
	defaultMoveLimit = 50
	maxMoveLimit     = 500
	dateOnlyLayout   = "2006-01-02"
	allowedHeaders   = "Content-Type, Authorization, X-Request-Id"
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	logger        *slog.Logger
	validate      *validator.Validate
	allowedOrigin string
	secure        *secure.Secure
	loginLimiter  func(http.Handler) http.Handler
}

type Options struct {
	AllowedOrigin string
	Production    bool
	Logger        *slog.Logger
}

func New(svc *service.Service, auth *AuthManager, opts Options) *API {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	allowedOrigin := strings.TrimSpace(opts.AllowedOrigin)
	if allowedOrigin == "" {
		allowedOrigin = "*"
	}

	api := &API{
		service:       svc,
		auth:          auth,
		logger:        logger,
		validate:      validator.New(validator.WithRequiredStructEnabled()),
		allowedOrigin: allowedOrigin,
		secure: secure.New(secure.Options{
			FrameDeny:          true,
			ContentTypeNosniff: true,
			BrowserXssFilter:   true,
			ReferrerPolicy:     "strict-origin-when-cross-origin",
			SSLProxyHeaders:    map[string]string{"X-Forwarded-Proto": "https"},
			STSSeconds:         31536000,
			IsDevelopment:      !opts.Production,
		}),
	}
	api.loginLimiter = httprate.Limit(loginAttempts, loginWindow,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		}),
	)
	return api
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		a.requestLogger,
		middleware.Recoverer,
		a.secure.Handler,
		a.cors,
		limitJSONBody,
	)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, errors.New("route not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeMethodNotAllowed(w)
	})

	r.Get("/healthz", a.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/healthz", a.handleHealth)
		r.With(a.loginLimiter).Post("/auth/login", a.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(a.requireAuth)

			r.Get("/pdv/cart", a.handleGetCart)
			r.Post("/pdv/cart/items", a.handleAddCartItem)
			r.Post("/pdv/cart/update", a.handleUpdateCart)
			r.Post("/pdv/checkout", a.handleCheckout)

			r.Get("/sales", a.handleListSales)
			r.Get("/sales/summary", a.handleSalesSummary)
			r.Get("/sales/{id}", a.handleGetSale)

			r.Get("/stock/movements", a.handleListMovements)
			r.Get("/stock/alerts", a.handleStockAlerts)
			r.Get("/stock/valuation", a.handleStockValuation)
			r.Get("/stock/movement-counts", a.handleMovementCounts)
			r.Get("/stock/report", a.handleStockReport)

			r.Group(func(r chi.Router) {
				r.Use(requireRole(domain.RoleAdmin))
				r.Post("/sales/{id}/cancel", a.handleCancelSale)
				r.Post("/stock/movements", a.handleRecordMovement)
				r.Post("/stock/entry", a.handleStockEntry)
				r.Post("/stock/adjustment", a.handleStockAdjustment)
				r.Get("/users/cashiers", a.handleListCashiers)
				r.Post("/users/cashiers", a.handleCreateCashier)
			})
		})
	})

	return r
}

func (a *API) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}
		actor, err := a.auth.ParseToken(strings.TrimSpace(strings.TrimPrefix(header, "Bearer ")))
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(service.WithActor(r.Context(), actor)))
	})
}

func requireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := service.ActorFromContext(r.Context())
			if !ok || !isRoleAllowed(actor.Role, roles) {
				writeError(w, http.StatusForbidden, errors.New("forbidden role"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, candidate := range allowed {
		if role == candidate {
			return true
		}
	}
	return false
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if errors.Is(err, errInvalidCredentials) || errors.Is(err, errAccountInactive) {
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleGetCart(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.service.GetCart(r.Context()))
}

func (a *API) handleAddCartItem(w http.ResponseWriter, r *http.Request) {
	var req domain.BarcodeInput
	if !a.decodeAndValidate(w, r, &req) {
		return
	}

	resp, err := a.service.AddByBarcode(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleUpdateCart(w http.ResponseWriter, r *http.Request) {
	var req domain.CartOperation
	if !a.decodeAndValidate(w, r, &req) {
		return
	}

	updated, err := a.service.UpdateCart(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (a *API) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req domain.PaymentRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}

	resp, err := a.service.Checkout(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleListSales(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	from, to, err := parseRange(query.Get("from"), query.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	filter := domain.SaleFilter{
		From:       from,
		To:         to,
		OperatorID: strings.TrimSpace(query.Get("operator_id")),
		Status:     domain.SaleStatus(strings.TrimSpace(query.Get("status"))),
		Offset:     parseOffset(query.Get("offset")),
		Limit:      parsePositiveLimit(query.Get("limit"), defaultSaleLimit, maxSaleLimit),
	}

	sales, err := a.service.ListSales(r.Context(), filter)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sales":  sales,
		"offset": filter.Offset,
		"limit":  filter.Limit,
	})
}

func (a *API) handleSalesSummary(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseRange(r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	summary, err := a.service.SalesSummary(r.Context(), from, to)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (a *API) handleGetSale(w http.ResponseWriter, r *http.Request) {
	sale, err := a.service.GetSale(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sale)
}

func (a *API) handleCancelSale(w http.ResponseWriter, r *http.Request) {
	resp, err := a.service.CancelSale(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleRecordMovement(w http.ResponseWriter, r *http.Request) {
	var req domain.MovementRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}

	movement, err := a.service.RecordMovement(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, movement)
}

func (a *API) handleListMovements(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	from, to, err := parseRange(query.Get("from"), query.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.service.ListMovements(r.Context(), domain.MovementFilter{
		ProductID: strings.TrimSpace(query.Get("product_id")),
		Type:      domain.MovementType(strings.TrimSpace(query.Get("type"))),
		From:      from,
		To:        to,
		Offset:    parseOffset(query.Get("offset")),
		Limit:     parsePositiveLimit(query.Get("limit"), defaultMoveLimit, maxMoveLimit),
	})
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleStockEntry(w http.ResponseWriter, r *http.Request) {
	var req domain.StockEntryRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}

	movement, err := a.service.StockEntry(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, movement)
}

func (a *API) handleStockAdjustment(w http.ResponseWriter, r *http.Request) {
	var req domain.StockAdjustmentRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}

	movement, err := a.service.StockAdjustment(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, movement)
}

func (a *API) handleStockAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := a.service.LowStockAlerts(r.Context())
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": alerts,
		"total":  len(alerts),
	})
}

func (a *API) handleStockValuation(w http.ResponseWriter, r *http.Request) {
	valuation, err := a.service.Valuation(r.Context())
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, valuation)
}

func (a *API) handleMovementCounts(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseRange(r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var fromAt, toAt time.Time
	if from != nil {
		fromAt = *from
	}
	if to != nil {
		toAt = *to
	}

	counts, err := a.service.MovementCounts(r.Context(), fromAt, toAt)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func (a *API) handleStockReport(w http.ResponseWriter, r *http.Request) {
	report, err := a.service.StockReport(r.Context())
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *API) handleListCashiers(w http.ResponseWriter, r *http.Request) {
	cashiers, err := a.auth.ListCashiers(r.Context())
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cashiers": cashiers})
}

func (a *API) handleCreateCashier(w http.ResponseWriter, r *http.Request) {
	var req domain.CashierCreateRequest
	if !a.decodeAndValidate(w, r, &req) {
		return
	}

	user, err := a.auth.CreateCashier(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (a *API) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", allowedHeaders)
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func limitJSONBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		startedAt := time.Now()
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		a.logger.LogAttrs(r.Context(), slog.LevelInfo, "http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.Int("bytes", ww.BytesWritten()),
			slog.Duration("duration", time.Since(startedAt)),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (a *API) decodeAndValidate(w http.ResponseWriter, r *http.Request, dest any) bool {
	if err := decodeJSON(r, dest); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return false
	}
	if err := a.validate.Struct(dest); err != nil {
		writeError(w, http.StatusBadRequest, validationError(err))
		return false
	}
	return true
}

func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return err
	}
	messages := make([]string, 0, len(fieldErrs))
	for _, fieldErr := range fieldErrs {
		messages = append(messages, fmt.Sprintf("%s failed %s", strings.ToLower(fieldErr.Field()), fieldErr.Tag()))
	}
	return errors.New(strings.Join(messages, "; "))
}

// statusFor maps service and store errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrInactive):
		return http.StatusUnprocessableEntity
	case errors.Is(err, store.ErrInsufficientStock):
		return http.StatusConflict
	case errors.Is(err, store.ErrInsufficientPayment):
		return http.StatusPaymentRequired
	case errors.Is(err, store.ErrEmptyCart):
		return http.StatusUnprocessableEntity
	case errors.Is(err, store.ErrInvalidQuantity):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrInvalidTransaction):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		a.logger.ErrorContext(r.Context(), "request failed",
			slog.String("path", r.URL.Path),
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.Any("error", err),
		)
	}
	writeError(w, status, err)
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

// parseRange reads the from/to query pair. A plain-date upper bound covers
// that whole day, since stores treat "to" as exclusive.
func parseRange(rawFrom string, rawTo string) (*time.Time, *time.Time, error) {
	from, _, err := parseTimeParam(rawFrom)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid from: %w", err)
	}
	to, dateOnly, err := parseTimeParam(rawTo)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid to: %w", err)
	}
	if to != nil && dateOnly {
		end := to.AddDate(0, 0, 1)
		to = &end
	}
	return from, to, nil
}

// parseTimeParam accepts RFC 3339 timestamps or plain dates, read as UTC
// midnight. dateOnly reports which form matched.
func parseTimeParam(raw string) (at *time.Time, dateOnly bool, err error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, false, nil
	}
	if parsed, err := time.Parse(time.RFC3339, trimmed); err == nil {
		parsed = parsed.UTC()
		return &parsed, false, nil
	}
	parsed, err := time.Parse(dateOnlyLayout, trimmed)
	if err != nil {
		return nil, false, fmt.Errorf("expected RFC3339 or YYYY-MM-DD, got %q", trimmed)
	}
	return &parsed, true, nil
}

func parseOffset(raw string) int {
	offset, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || offset < 0 {
		return 0
	}
	return offset
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx bodies never carry the underlying error.
	message := "internal server error"
	if status < http.StatusInternalServerError && err != nil {
		message = err.Error()
	}
	writeJSON(w, status, map[string]any{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
