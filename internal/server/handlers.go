package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/docparse/internal/failure"
	"github.com/sells-group/docparse/internal/model"
	"github.com/sells-group/docparse/internal/pipeline"
	"github.com/sells-group/docparse/internal/store"
)

type processResponse struct {
	TransactionID string `json:"transactionId"`
	NumPages      int    `json:"numPages"`
	NumCharacters int    `json:"numCharacters"`
	DurationMS    int64  `json:"durationMs"`
	ParsedText    string `json:"parsedText"`
}

type errorResponse struct {
	Error         string `json:"error"`
	TransactionID string `json:"transactionId,omitempty"`
}

type runSummary struct {
	ID            string          `json:"transaction_id"`
	Status        model.RunStatus `json:"status"`
	StartTime     time.Time       `json:"start_time"`
	EndTime       *time.Time      `json:"end_time"`
	DurationMS    *int64          `json:"duration_ms"`
	NumPages      *int            `json:"num_pages"`
	NumCharacters *int            `json:"num_characters"`
}

type listResponse struct {
	Transactions []runSummary `json:"transactions"`
	Limit        int          `json:"limit"`
	Offset       int          `json:"offset"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) processDocument(w http.ResponseWriter, r *http.Request) {
	var req pipeline.Request
	body := http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}

	res, err := s.proc.Process(r.Context(), req)
	if err != nil {
		kind := failure.KindOf(err)
		runID := ""
		if res != nil {
			runID = res.RunID
		}
		writeError(w, failure.HTTPStatus(kind), err.Error(), runID)
		return
	}

	writeJSON(w, http.StatusOK, processResponse{
		TransactionID: res.RunID,
		NumPages:      res.NumPages,
		NumCharacters: res.NumCharacters,
		DurationMS:    res.DurationMS,
		ParsedText:    res.Text,
	})
}

func (s *Server) getTransaction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusNotFound, "Transaction not found", "")
		return
	}

	run, err := s.runs.GetRun(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Transaction not found", "")
		return
	}
	if err != nil {
		zap.L().Error("server: get transaction", zap.String("run_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error", "")
		return
	}
	if run.Stages == nil {
		run.Stages = []model.Stage{}
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) listTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var filter store.RunFilter
	if v := q.Get("status"); v != "" {
		st := model.RunStatus(v)
		switch st {
		case model.RunStatusPending, model.RunStatusSuccess, model.RunStatusFailure:
			filter.Status = st
		default:
			writeError(w, http.StatusBadRequest, "invalid status "+strconv.Quote(v), "")
			return
		}
	}

	var ok bool
	if filter.Limit, ok = intParam(w, q.Get("limit"), "limit"); !ok {
		return
	}
	if filter.Offset, ok = intParam(w, q.Get("offset"), "offset"); !ok {
		return
	}

	runs, err := s.runs.ListRuns(r.Context(), filter)
	if err != nil {
		zap.L().Error("server: list transactions", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error", "")
		return
	}

	resp := listResponse{
		Transactions: make([]runSummary, 0, len(runs)),
		Limit:        filter.EffectiveLimit(),
		Offset:       filter.Offset,
	}
	for _, run := range runs {
		resp.Transactions = append(resp.Transactions, runSummary{
			ID:            run.ID,
			Status:        run.Status,
			StartTime:     run.StartTime,
			EndTime:       run.EndTime,
			DurationMS:    run.DurationMS,
			NumPages:      run.NumPages,
			NumCharacters: run.NumCharacters,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// intParam parses an optional non-negative query parameter, writing a 400 on error.
func intParam(w http.ResponseWriter, raw, name string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, "invalid "+name+" "+strconv.Quote(raw), "")
		return 0, false
	}
	return n, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg, runID string) {
	writeJSON(w, status, errorResponse{Error: msg, TransactionID: runID})
}
