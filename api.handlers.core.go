package main

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
)

// Statistics holds app stats for ops.
type Statistics struct {
	version   string
	container bool
	runtime   string
	platform  string
	called    uint64
	started   time.Time
	status    map[int]uint64
	mu        *sync.RWMutex
}

// Maintenance holds app maintenance mode infos.
type Maintenance struct {
	enabled atomic.Bool
	mu      sync.RWMutex
	message string
	started time.Time
}

// APIHandler defines the API handler.
type APIHandler struct {
	logger      *zap.Logger
	config      *Config
	clock       Clocker
	idsHandler  UIDHandler
	stats       *Statistics
	mode        *Maintenance
	accounts    *Accounts
	policy      *AccessPolicy
	bookService BookServiceProvider
	archive     BookArchive
}

// NewAPIHandler provides a new instance of APIHandler. The archive is
// optional and only set when the change feed is enabled.
func NewAPIHandler(
	logger *zap.Logger,
	config *Config,
	stats *Statistics,
	clock Clocker,
	idsHandler UIDHandler,
	accounts *Accounts,
	policy *AccessPolicy,
	bs BookServiceProvider,
	archive BookArchive,
) *APIHandler {
	stats.status = make(map[int]uint64)
	stats.mu = &sync.RWMutex{}
	return &APIHandler{
		logger:      logger,
		config:      config,
		clock:       clock,
		idsHandler:  idsHandler,
		stats:       stats,
		mode:        &Maintenance{},
		accounts:    accounts,
		policy:      policy,
		bookService: bs,
		archive:     archive,
	}
}

// Index provides same details like `Status` handler by redirecting the request.
func (api *APIHandler) Index(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	http.Redirect(w, r, "/status", http.StatusSeeOther)
}

// Status provides basics details about the application to the public users.
func (api *APIHandler) Status(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	requestID := GetValueFromContext(r.Context(), ContextRequestID)
	resp := StatusResponse{
		RequestID: requestID,
		Status:    "up & running since " + Uptime(api.clock, api.stats.started),
		Message:   "Hello. Library catalog api is available.",
	}
	if err := WriteResponse(r.Context(), w, http.StatusOK, resp); err != nil {
		api.logger.Error("failed to send status response", zap.String("request.id", requestID), zap.Error(err))
	}
}

// NotFound replies to unknown routes with the error envelope.
func (api *APIHandler) NotFound() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := api.idsHandler.Generate(RequestIDPrefix)
		api.logger.Info("route not found",
			zap.String("request.id", requestID),
			zap.String("request.method", r.Method),
			zap.String("request.path", r.URL.Path),
		)
		errResp := NewAPIError(requestID, http.StatusNotFound, "the requested resource does not exist", EmptyData)
		if err := WriteErrorResponse(r.Context(), w, errResp); err != nil {
			api.logger.Error("failed to send error response", zap.String("request.id", requestID), zap.Error(err))
		}
	})
}

// Maintenance handles request to enable or disable the maintenance mode of the service and responds
// to client requests with the predefined message while the service is in maintenance mode.
// Enable the maintenance mode : /ops/maintenance?status=enable&msg=message-to-be-displayed-to-users
// Disable the maintenance mode: /ops/maintenance?status=disable
func (api *APIHandler) Maintenance(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	requestID := GetValueFromContext(r.Context(), ContextRequestID)
	logger := api.GetLoggerFromContext(r.Context())
	q := r.URL.Query()
	mstatus := ps.ByName("status")
	if mstatus == "" {
		mstatus = q.Get("status")
	}

	var response map[string]interface{}
	status := http.StatusOK
	switch mstatus {
	case "enable":
		started := api.clock.Now().UTC()
		api.mode.mu.Lock()
		api.mode.message = q.Get("msg")
		api.mode.started = started
		api.mode.mu.Unlock()
		api.mode.enabled.Store(true)
		logger.Warn("maintenance mode enabled", zap.String("maintenance.message", q.Get("msg")))
		response = map[string]interface{}{
			"requestid":           requestID,
			"maintenance.started": started.Format(time.RFC1123),
			"maintenance.message": q.Get("msg"),
			"message":             "Maintenance mode enabled successfully.",
		}

	case "disable":
		api.mode.enabled.Store(false)
		api.mode.mu.Lock()
		api.mode.started = time.Time{}
		api.mode.message = ""
		api.mode.mu.Unlock()
		logger.Warn("maintenance mode disabled")
		response = map[string]interface{}{
			"requestid": requestID,
			"message":   "Maintenance mode disabled successfully.",
		}

	case "show":
		api.mode.mu.RLock()
		response = map[string]interface{}{
			"requestid": requestID,
			"message":   "service currently unavailable.",
			"reason":    api.mode.message,
			"since":     api.mode.started.Format(time.RFC1123),
		}
		api.mode.mu.RUnlock()
		status = http.StatusServiceUnavailable

	default:
		errResp := NewAPIError(requestID, http.StatusBadRequest, "status must be enable or disable", EmptyData)
		if err := WriteErrorResponse(r.Context(), w, errResp); err != nil {
			logger.Error("failed to send error response", zap.Error(err))
		}
		return
	}

	if err := WriteResponse(r.Context(), w, status, response); err != nil {
		logger.Error("failed to send maintenance response", zap.String("request.maintenance", mstatus), zap.Error(err))
	}
}

// statusSnapshot copies the per status counters under the read lock.
func (api *APIHandler) statusSnapshot() map[int]uint64 {
	api.stats.mu.RLock()
	defer api.stats.mu.RUnlock()
	snapshot := make(map[int]uint64, len(api.stats.status))
	for code, count := range api.stats.status {
		snapshot[code] = count
	}
	return snapshot
}
