package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"diapredict/db"
	"diapredict/inference"
	"diapredict/logging"
	"diapredict/ml"
	"diapredict/monitoring"
)

// PredictionEngine is the slice of the inference engine the handlers need.
// Tests swap in a fake.
type PredictionEngine interface {
	Predict(ctx context.Context, features ml.Features) (inference.Prediction, error)
	Describe(ctx context.Context) (inference.Status, error)
	State() inference.State
	Invalidate()
}

var (
	engine PredictionEngine
	feed   *monitoring.Feed
	logger *zap.SugaredLogger
)

// SetEngine installs the inference engine the handlers serve from.
func SetEngine(e PredictionEngine) {
	engine = e
}

// SetFeed installs the live report feed. A nil feed disables broadcasting.
func SetFeed(f *monitoring.Feed) {
	feed = f
}

// SetLogger installs the package logger used outside request scope.
func SetLogger(l *zap.SugaredLogger) {
	logger = l
}

func pkgLogger() *zap.SugaredLogger {
	if logger != nil {
		return logger
	}
	return logging.DefaultLogger()
}

// RegisterHandlers mounts the prediction and report routes.
func RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", handleHealth)
	mux.HandleFunc("GET /api/model", handleModel)
	mux.HandleFunc("POST /api/predict", handlePredict)
	mux.HandleFunc("GET /api/reports", handleListReports)
	mux.HandleFunc("GET /api/reports/all", handleListAllReports)
	mux.HandleFunc("GET /api/reports/stats", handleReportStats)
	mux.HandleFunc("GET /api/reports/{id}", handleGetReport)
	mux.HandleFunc("DELETE /api/reports/{id}", handleDeleteReport)
	mux.HandleFunc("DELETE /api/reports/owner/{ownerId}", handleDeleteOwnerReports)
	mux.HandleFunc("GET /api/training/runs", handleTrainingRuns)
	mux.HandleFunc("GET /api/ws/feed", handleFeed)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	state := "unconfigured"
	if engine != nil {
		state = engine.State().String()
	}
	respondJSON(w, map[string]string{
		"status": "ok",
		"model":  state,
	})
}

func handleModel(w http.ResponseWriter, r *http.Request) {
	if engine == nil {
		respondError(w, http.StatusServiceUnavailable, "inference engine not configured")
		return
	}

	status, err := engine.Describe(r.Context())
	if err != nil {
		if errors.Is(err, inference.ErrModelUnavailable) {
			respondJSONStatus(w, http.StatusServiceUnavailable, map[string]any{
				"state": status.State,
				"error": err.Error(),
			})
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, status)
}

// predictRequest decodes the eight measurements with pointer fields so a
// missing key is distinguishable from an explicit zero.
type predictRequest struct {
	Pregnancies   *float64 `json:"pregnancies"`
	Glucose       *float64 `json:"glucose"`
	BloodPressure *float64 `json:"blood_pressure"`
	SkinThickness *float64 `json:"skin_thickness"`
	Insulin       *float64 `json:"insulin"`
	BMI           *float64 `json:"bmi"`
	Pedigree      *float64 `json:"pedigree"`
	Age           *float64 `json:"age"`
}

func (req *predictRequest) features() (ml.Features, error) {
	fields := []struct {
		name  string
		value *float64
	}{
		{"pregnancies", req.Pregnancies},
		{"glucose", req.Glucose},
		{"blood_pressure", req.BloodPressure},
		{"skin_thickness", req.SkinThickness},
		{"insulin", req.Insulin},
		{"bmi", req.BMI},
		{"pedigree", req.Pedigree},
		{"age", req.Age},
	}

	var missing []string
	vector := make([]float64, 0, ml.NumFeatures)
	for _, field := range fields {
		if field.value == nil {
			missing = append(missing, field.name)
			continue
		}
		vector = append(vector, *field.value)
	}
	if len(missing) > 0 {
		return ml.Features{}, errors.New("missing fields: " + strings.Join(missing, ", "))
	}
	return ml.FeaturesFromVector(vector)
}

type predictResponse struct {
	ReportID             string  `json:"report_id"`
	Label                string  `json:"label"`
	Outcome              int     `json:"outcome"`
	Probability          float64 `json:"probability"`
	ConfidencePercentage int     `json:"confidence_percentage"`
	Variant              string  `json:"variant"`
	RunID                string  `json:"run_id"`
}

func handlePredict(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if engine == nil {
		respondError(w, http.StatusServiceUnavailable, "inference engine not configured")
		return
	}

	var req predictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	features, err := req.features()
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	prediction, err := engine.Predict(r.Context(), features)
	if err != nil {
		switch {
		case errors.Is(err, ml.ErrSchemaMismatch):
			respondError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, inference.ErrModelUnavailable):
			respondError(w, http.StatusServiceUnavailable, err.Error())
		default:
			respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	report := db.Report{
		ID:                   uuid.NewString(),
		OwnerID:              identity.ID,
		OwnerName:            identity.Name,
		CreatedAt:            time.Now().UTC(),
		Features:             features,
		Outcome:              prediction.Outcome,
		Probability:          prediction.Probability,
		ConfidencePercentage: prediction.ConfidencePercentage,
		Variant:              prediction.Variant,
		RunID:                prediction.RunID,
	}
	if err := db.SaveReport(report); err != nil {
		logging.FromContext(r.Context()).Errorw("report save failed", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to store report")
		return
	}

	if feed != nil {
		if err := feed.PublishReport(monitoring.ReportEvent{
			ReportID:    report.ID,
			OwnerID:     report.OwnerID,
			Outcome:     report.Outcome,
			Probability: report.Probability,
			Confidence:  report.ConfidencePercentage,
			Variant:     report.Variant,
			RunID:       report.RunID,
			CreatedAt:   report.CreatedAt,
		}); err != nil {
			logging.FromContext(r.Context()).Warnw("feed publish failed", "error", err)
		}
	}

	respondJSON(w, predictResponse{
		ReportID:             report.ID,
		Label:                outcomeLabel(prediction.Outcome),
		Outcome:              prediction.Outcome,
		Probability:          prediction.Probability,
		ConfidencePercentage: prediction.ConfidencePercentage,
		Variant:              prediction.Variant,
		RunID:                prediction.RunID,
	})
}

func handleGetReport(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	id := r.PathValue("id")
	report, err := db.GetReport(id, identity.ID, identity.Privileged())
	if err != nil {
		switch {
		case errors.Is(err, db.ErrNotFound):
			respondError(w, http.StatusNotFound, "report not found")
		case errors.Is(err, db.ErrForbidden):
			respondError(w, http.StatusForbidden, "report belongs to another owner")
		default:
			respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	respondJSON(w, report)
}

func handleListReports(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	reports, err := db.ListReports(identity.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, map[string]any{
		"reports": reports,
		"count":   len(reports),
	})
}

func handleListAllReports(w http.ResponseWriter, r *http.Request) {
	if _, ok := requirePrivileged(w, r); !ok {
		return
	}

	reports, err := db.ListAllReports()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, map[string]any{
		"reports": reports,
		"count":   len(reports),
	})
}

func handleReportStats(w http.ResponseWriter, r *http.Request) {
	if _, ok := requirePrivileged(w, r); !ok {
		return
	}

	stats, err := db.ReportStats()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, stats)
}

func handleDeleteReport(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	id := r.PathValue("id")
	if err := db.DeleteReport(id, identity.ID, identity.Privileged()); err != nil {
		switch {
		case errors.Is(err, db.ErrNotFound):
			respondError(w, http.StatusNotFound, "report not found")
		case errors.Is(err, db.ErrForbidden):
			respondError(w, http.StatusForbidden, "report belongs to another owner")
		default:
			respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	respondJSON(w, map[string]string{"status": "deleted", "id": id})
}

func handleDeleteOwnerReports(w http.ResponseWriter, r *http.Request) {
	if _, ok := requirePrivileged(w, r); !ok {
		return
	}

	ownerID := r.PathValue("ownerId")
	deleted, err := db.DeleteReportsByOwner(ownerID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, map[string]any{
		"owner_id": ownerID,
		"deleted":  deleted,
	})
}

func handleTrainingRuns(w http.ResponseWriter, r *http.Request) {
	if _, ok := requirePrivileged(w, r); !ok {
		return
	}

	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil {
			limit = v
		}
	}

	runs, err := db.ListTrainingRuns(limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, map[string]any{
		"runs":  runs,
		"count": len(runs),
	})
}

func handleFeed(w http.ResponseWriter, r *http.Request) {
	if _, ok := requirePrivileged(w, r); !ok {
		return
	}
	if feed == nil {
		respondError(w, http.StatusServiceUnavailable, "live feed not configured")
		return
	}

	feed.HandleWebSocket(w, r)
}

func outcomeLabel(outcome int) string {
	if outcome == 1 {
		return "positive"
	}
	return "negative"
}

// respondJSON writes a 200 JSON response.
func respondJSON(w http.ResponseWriter, data any) {
	respondJSONStatus(w, http.StatusOK, data)
}

func respondJSONStatus(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		pkgLogger().Errorw("response encode failed", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSONStatus(w, status, map[string]string{"error": message})
}
