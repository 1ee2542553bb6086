package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/arthmitra/arthmitra/internal/errs"
	"github.com/arthmitra/arthmitra/internal/store"
)

type chatRequest struct {
	Prompt string `json:"prompt"`
}

type chatResponse struct {
	Response string `json:"response"`
}

type profileRequest struct {
	Budget    *float64 `json:"budget,omitempty"`
	Income    *float64 `json:"income,omitempty"`
	Goal      *string  `json:"goal,omitempty"`
	RiskLevel *string  `json:"risk_level,omitempty"`
}

type dashboardResponse struct {
	WindowDays int                `json:"window_days"`
	Income     float64            `json:"income"`
	Expense    float64            `json:"expense"`
	ByCategory map[string]float64 `json:"expense_by_category"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// dashboardWindowDays is the trailing window summarized by GET /dashboard.
const dashboardWindowDays = 30

func (g *Gateway) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat", g.handleChat)
	mux.HandleFunc("GET /profile", g.handleGetProfile)
	mux.HandleFunc("PUT /profile", g.handlePutProfile)
	mux.HandleFunc("GET /dashboard", g.handleDashboard)
	mux.HandleFunc("GET /healthz", g.handleHealthz)
	return mux
}

func (g *Gateway) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.Markf(errs.ErrValidation, "malformed request body"))
		return
	}

	reply, err := g.orch.HandleMessage(r.Context(), bearerToken(r), req.Prompt)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{Response: reply})
}

func (g *Gateway) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	uid, err := g.verifier.Verify(r.Context(), bearerToken(r))
	if err != nil {
		writeError(w, err)
		return
	}

	doc, found, err := g.store.GetDocument(r.Context(), "users", uid)
	if err != nil {
		writeError(w, err)
		return
	}
	if !found {
		doc = store.Document{}
	}
	writeJSON(w, http.StatusOK, doc)
}

func (g *Gateway) handlePutProfile(w http.ResponseWriter, r *http.Request) {
	uid, err := g.verifier.Verify(r.Context(), bearerToken(r))
	if err != nil {
		writeError(w, err)
		return
	}

	var req profileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.Markf(errs.ErrValidation, "malformed request body"))
		return
	}

	fields := store.Document{}
	if req.Budget != nil {
		if *req.Budget < 0 {
			writeError(w, errs.Markf(errs.ErrValidation, "budget must not be negative"))
			return
		}
		fields["budget"] = *req.Budget
	}
	if req.Income != nil {
		if *req.Income < 0 {
			writeError(w, errs.Markf(errs.ErrValidation, "income must not be negative"))
			return
		}
		fields["income"] = *req.Income
	}
	if req.Goal != nil {
		fields["goal"] = strings.TrimSpace(*req.Goal)
	}
	if req.RiskLevel != nil {
		fields["risk_level"] = strings.TrimSpace(*req.RiskLevel)
	}
	if len(fields) == 0 {
		writeError(w, errs.Markf(errs.ErrValidation, "no profile fields to update"))
		return
	}

	if err := g.store.MergeDocument(r.Context(), "users", uid, fields); err != nil {
		writeError(w, err)
		return
	}

	doc, _, err := g.store.GetDocument(r.Context(), "users", uid)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (g *Gateway) handleDashboard(w http.ResponseWriter, r *http.Request) {
	uid, err := g.verifier.Verify(r.Context(), bearerToken(r))
	if err != nil {
		writeError(w, err)
		return
	}

	since := time.Now().AddDate(0, 0, -dashboardWindowDays)
	records, err := g.store.Transactions(r.Context(), uid, store.TxQuery{Since: &since})
	if err != nil {
		writeError(w, err)
		return
	}

	resp := dashboardResponse{
		WindowDays: dashboardWindowDays,
		ByCategory: map[string]float64{},
	}
	for _, tx := range records {
		switch tx.Type {
		case store.TxIncome:
			resp.Income += tx.Amount
		case store.TxExpense:
			resp.Expense += tx.Amount
			resp.ByCategory[tx.Category] += tx.Amount
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (g *Gateway) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if rest, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(rest)
	}
	return ""
}

// writeError translates the error taxonomy into HTTP statuses: validation
// 400, auth 401, provider 502, everything else 500.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errs.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, errs.ErrAuth):
		status = http.StatusUnauthorized
	case errors.Is(err, errs.ErrProvider):
		status = http.StatusBadGateway
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
