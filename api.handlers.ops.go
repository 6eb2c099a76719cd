package main

import (
	"expvar"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
)

// export goroutines to be used by expvar handler.
var goroutines = expvar.NewInt("goroutines")

// GetMemStats returns memory statistics with number of goroutines in json.
func GetMemStats(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	goroutines.Set(int64(runtime.NumGoroutine()))
	expvar.Handler().ServeHTTP(w, r)
}

// OpsHandlerWrapper adapts standard handlers like the profiler ones to the router.
func (api *APIHandler) OpsHandlerWrapper(h http.Handler) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		h.ServeHTTP(w, r)
	}
}

// GetStatistics provides useful details about the application to the internal ops users.
// The ops request which triggered it is not yet counted in the status stats, so it is
// removed from the called field as well.
func (api *APIHandler) GetStatistics(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	requestID := GetValueFromContext(r.Context(), ContextRequestID)

	api.mode.mu.RLock()
	maintenance := map[string]interface{}{
		"enabled": api.mode.enabled.Load(),
		"started": "",
		"message": api.mode.message,
	}
	if !api.mode.started.IsZero() {
		maintenance["started"] = api.mode.started.Format(time.RFC1123)
	}
	api.mode.mu.RUnlock()

	stats := map[string]interface{}{
		"requestid":     requestID,
		"app.version":   api.stats.version,
		"app.container": api.stats.container,
		"app.platform":  api.stats.platform,
		"go.version":    api.stats.runtime,
		"called":        atomic.LoadUint64(&api.stats.called) - 1,
		"started":       api.stats.started.Format(time.RFC1123),
		"uptime":        Uptime(api.clock, api.stats.started),
		"maintenance":   maintenance,
		"status":        api.statusSnapshot(),
		"events":        api.config.Events.Enable,
	}
	if err := WriteResponse(r.Context(), w, http.StatusOK, stats); err != nil {
		api.logger.Error("failed to send statistics response", zap.String("request.id", requestID), zap.Error(err))
	}
}

// GetConfigs serves current in-use configurations with secrets masked.
func (api *APIHandler) GetConfigs(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	requestID := GetValueFromContext(r.Context(), ContextRequestID)
	resp := map[string]interface{}{
		"requestid": requestID,
		"configs":   api.config.Redacted(),
	}
	if err := WriteResponse(r.Context(), w, http.StatusOK, resp); err != nil {
		api.logger.Error("failed to send settings response", zap.String("request.id", requestID), zap.Error(err))
	}
}

// GetArchivedBooks lists the last known state of books kept by the archive consumer.
func (api *APIHandler) GetArchivedBooks(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	requestID := GetValueFromContext(r.Context(), ContextRequestID)
	logger := api.GetLoggerFromContext(r.Context())
	if api.archive == nil {
		errResp := NewAPIError(requestID, http.StatusServiceUnavailable, "books archive is not enabled", EmptyData)
		if err := WriteErrorResponse(r.Context(), w, errResp); err != nil {
			logger.Error("failed to send error response", zap.Error(err))
		}
		return
	}

	books, err := api.archive.GetAll(r.Context())
	if err != nil {
		logger.Error("failed to list archived books", zap.Error(err))
		errResp := NewAPIError(requestID, http.StatusInternalServerError, "failed to list archived books", EmptyData)
		if err = WriteErrorResponse(r.Context(), w, errResp); err != nil {
			logger.Error("failed to send error response", zap.Error(err))
		}
		return
	}
	if err = WriteResponse(r.Context(), w, http.StatusOK, books); err != nil {
		logger.Error("failed to send response", zap.Error(err))
	}
}
