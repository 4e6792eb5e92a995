package history

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"
)

// NewHandler 暴露只读的历史查询接口：
//
//	GET /runs?limit=N
//	GET /runs/{id}
//	GET /runs/{id}/trades
func NewHandler(svc *Service, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &handler{svc: svc, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /runs", h.listRuns)
	mux.HandleFunc("GET /runs/{id}", h.getRun)
	mux.HandleFunc("GET /runs/{id}/trades", h.trades)
	return mux
}

type handler struct {
	svc    *Service
	logger *zap.Logger
}

func (h *handler) listRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if qs := r.URL.Query().Get("limit"); qs != "" {
		v, err := strconv.Atoi(qs)
		if err != nil || v <= 0 {
			h.writeError(w, http.StatusBadRequest, errors.New("limit 必须为正整数"))
			return
		}
		limit = v
	}

	runs, err := h.svc.ListRuns(r.Context(), limit)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, runs)
}

func (h *handler) getRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.svc.GetRun(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, statusFor(err), err)
		return
	}
	h.writeJSON(w, run)
}

func (h *handler) trades(w http.ResponseWriter, r *http.Request) {
	trades, err := h.svc.Trades(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, statusFor(err), err)
		return
	}
	h.writeJSON(w, trades)
}

func (h *handler) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("写入历史响应失败", zap.Error(err))
	}
}

func (h *handler) writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encErr := json.NewEncoder(w).Encode(map[string]string{"error": err.Error()}); encErr != nil {
		h.logger.Warn("写入历史响应失败", zap.Error(encErr))
	}
}

func statusFor(err error) int {
	if errors.Is(err, ErrRunNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
