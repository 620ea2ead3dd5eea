package httpserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	distributionservice "merkledrop/contexts/token-distribution/distribution-service"
	"merkledrop/contexts/token-distribution/distribution-service/domain/allocation"
	domainerrors "merkledrop/contexts/token-distribution/distribution-service/domain/errors"
	distributionhttp "merkledrop/contexts/token-distribution/distribution-service/transport/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
	_ "merkledrop/internal/platform/httpserver/docs"
)

type Server struct {
	mux          *http.ServeMux
	logger       *slog.Logger
	addr         string
	distribution distributionservice.Module
}

func New(distribution distributionservice.Module, logger *slog.Logger, addr string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if addr == "" {
		addr = ":8080"
	}

	s := &Server{
		mux:          http.NewServeMux(),
		logger:       logger,
		addr:         addr,
		distribution: distribution,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Start() error {
	s.logger.Info("http server starting",
		"event", "http_server_starting",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"addr", s.addr,
	)
	return http.ListenAndServe(s.addr, s.mux)
}

func (s *Server) registerRoutes() {
	s.mux.Handle("/swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)

	s.mux.HandleFunc("POST /api/distributions", s.handleCreateDistribution)
	s.mux.HandleFunc("GET /api/distributions", s.handleListDistributions)
	s.mux.HandleFunc("GET /api/distributions/stats", s.handleStats)
	s.mux.HandleFunc("GET /api/distributions/{distribution_id}", s.handleGetDistribution)
	s.mux.HandleFunc("GET /api/distributions/{distribution_id}/proof/{address}", s.handleGetProof)
	s.mux.HandleFunc("GET /api/distributions/{distribution_id}/claimable/{address}", s.handleGetClaimable)
	s.mux.HandleFunc("POST /api/distributions/{distribution_id}/sync", s.handleSync)
	s.mux.HandleFunc("POST /api/distributions/{distribution_id}/finalize", s.handleFinalize)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateDistribution(w http.ResponseWriter, r *http.Request) {
	var req distributionhttp.CreateDistributionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	resp, err := s.distribution.Handler.CreateDistributionHandler(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleListDistributions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	limit := 0
	if limitRaw := query.Get("limit"); limitRaw != "" {
		parsed, err := strconv.Atoi(limitRaw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be an integer")
			return
		}
		limit = parsed
	}
	offset := 0
	if offsetRaw := query.Get("offset"); offsetRaw != "" {
		parsed, err := strconv.Atoi(offsetRaw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_offset", "offset must be an integer")
			return
		}
		offset = parsed
	}

	resp, err := s.distribution.Handler.ListDistributionsHandler(
		r.Context(),
		query.Get("vault_type"),
		query.Get("status"),
		limit,
		offset,
	)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	resp, err := s.distribution.Handler.GetStatsHandler(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetDistribution(w http.ResponseWriter, r *http.Request) {
	distributionID, ok := parseDistributionID(w, r)
	if !ok {
		return
	}
	resp, err := s.distribution.Handler.GetDistributionHandler(r.Context(), distributionID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetProof(w http.ResponseWriter, r *http.Request) {
	distributionID, ok := parseDistributionID(w, r)
	if !ok {
		return
	}
	resp, err := s.distribution.Handler.GetProofHandler(r.Context(), distributionID, r.PathValue("address"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetClaimable(w http.ResponseWriter, r *http.Request) {
	distributionID, ok := parseDistributionID(w, r)
	if !ok {
		return
	}
	resp, err := s.distribution.Handler.GetClaimableHandler(r.Context(), distributionID, r.PathValue("address"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	distributionID, ok := parseDistributionID(w, r)
	if !ok {
		return
	}
	resp, err := s.distribution.Handler.SyncHandler(r.Context(), distributionID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request) {
	distributionID, ok := parseDistributionID(w, r)
	if !ok {
		return
	}
	resp, err := s.distribution.Handler.FinalizeHandler(r.Context(), distributionID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func parseDistributionID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	raw := r.PathValue("distribution_id")
	distributionID, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || distributionID == 0 {
		writeError(w, http.StatusBadRequest, "invalid_distribution_id", "distribution_id must be a positive integer")
		return 0, false
	}
	return distributionID, true
}

func writeDomainError(w http.ResponseWriter, err error) {
	var validationErr *allocation.ValidationError
	if errors.As(err, &validationErr) {
		issues := make([]distributionhttp.AllocationIssue, 0, len(validationErr.Issues))
		for _, issue := range validationErr.Issues {
			issues = append(issues, distributionhttp.AllocationIssue{
				Index:   issue.Index,
				Address: issue.Address,
				Reason:  issue.Reason,
			})
		}
		writeJSON(w, http.StatusBadRequest, distributionhttp.ValidationErrorResponse{
			Code:    "invalid_allocations",
			Message: validationErr.Error(),
			Issues:  issues,
		})
		return
	}

	switch {
	case errors.Is(err, domainerrors.ErrDistributionNotFound),
		errors.Is(err, domainerrors.ErrAttemptNotFound):
		writeError(w, http.StatusNotFound, "distribution_not_found", err.Error())
	case errors.Is(err, domainerrors.ErrInvalidVaultType),
		errors.Is(err, domainerrors.ErrInvalidDuration),
		errors.Is(err, domainerrors.ErrInvalidAddress),
		errors.Is(err, domainerrors.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, domainerrors.ErrNotExpired):
		writeError(w, http.StatusConflict, "distribution_not_expired", err.Error())
	case errors.Is(err, domainerrors.ErrAlreadyFinalized):
		writeError(w, http.StatusConflict, "already_finalized", err.Error())
	case errors.Is(err, domainerrors.ErrInsufficientVaultBalance):
		writeError(w, http.StatusConflict, "insufficient_vault_balance", err.Error())
	case errors.Is(err, domainerrors.ErrDistributionExists):
		writeError(w, http.StatusConflict, "distribution_exists", err.Error())
	case errors.Is(err, domainerrors.ErrRootMismatch):
		writeError(w, http.StatusConflict, "root_mismatch", err.Error())
	case errors.Is(err, domainerrors.ErrLedgerSubmission):
		writeError(w, http.StatusBadGateway, "ledger_unavailable", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writeError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, distributionhttp.ErrorResponse{
		Code:    code,
		Message: message,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
