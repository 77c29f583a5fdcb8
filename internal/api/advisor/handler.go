package advisor

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"irrigation/internal/domain/irrigation"
	chrepo "irrigation/internal/repository/clickhouse"
	"irrigation/pkg/auth"
	"irrigation/internal/services/prediction"
	"irrigation/internal/services/training"
	"irrigation/pkg/errors"
	"irrigation/pkg/logger"
)

const maxPredictBody = 64 << 10

// Predictor serves predictions from the active bundle
type Predictor interface {
	Predict(ctx context.Context, in irrigation.RawInput) (*irrigation.PredictionResult, error)
	ModelInfo() (*prediction.ModelInfo, error)
}

// Trainer retrains from uploaded datasets
type Trainer interface {
	RetrainCSV(ctx context.Context, r io.Reader) (*training.Outcome, error)
	History(ctx context.Context, limit int) ([]irrigation.TrainingRun, error)
}

// PredictionSummarizer aggregates the prediction audit log
type PredictionSummarizer interface {
	Summary(ctx context.Context, since time.Time) ([]chrepo.RecommendationCount, error)
}

// TokenValidator checks operator bearer tokens
type TokenValidator interface {
	ValidateToken(token, scope string) (*auth.Claims, error)
}

// Config wires the handler. Summaries, RetrainLimiter and Tokens are optional;
// without Tokens the retrain endpoint is open.
type Config struct {
	Predictor      Predictor
	Trainer        Trainer
	Summaries      PredictionSummarizer
	RetrainLimiter *rate.Limiter
	Tokens         TokenValidator
	MaxUploadBytes int64
}

// Handler exposes the prediction, model and retrain endpoints
type Handler struct {
	predictor Predictor
	trainer   Trainer
	summaries PredictionSummarizer
	limiter   *rate.Limiter
	tokens    TokenValidator
	maxUpload int64
	log       *logger.Logger
}

// NewHandler creates the handler
func NewHandler(cfg Config, log *logger.Logger) *Handler {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 20 << 20
	}
	return &Handler{
		predictor: cfg.Predictor,
		trainer:   cfg.Trainer,
		summaries: cfg.Summaries,
		limiter:   cfg.RetrainLimiter,
		tokens:    cfg.Tokens,
		maxUpload: cfg.MaxUploadBytes,
		log:       log.Component("http_advisor"),
	}
}

// Register mounts the routes on mux
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /predict", h.HandlePredict)
	mux.HandleFunc("GET /model-info", h.HandleModelInfo)
	mux.HandleFunc("POST /retrain", h.HandleRetrain)
	mux.HandleFunc("GET /training-runs", h.HandleTrainingRuns)
	mux.HandleFunc("GET /predictions/summary", h.HandlePredictionSummary)
}

// HandlePredict scores one set of field conditions
func (h *Handler) HandlePredict(w http.ResponseWriter, r *http.Request) {
	var req predictRequest
	body := http.MaxBytesReader(w, r.Body, maxPredictBody)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		h.writeError(w, r, decodeError(err))
		return
	}

	in, err := req.toRawInput()
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	result, err := h.predictor.Predict(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// HandleModelInfo describes the active bundle
func (h *Handler) HandleModelInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.predictor.ModelInfo()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// HandleRetrain accepts a CSV as multipart field "file" or as a raw text/csv body
func (h *Handler) HandleRetrain(w http.ResponseWriter, r *http.Request) {
	if err := h.authorize(r, auth.ScopeRetrain); err != nil {
		w.Header().Set("WWW-Authenticate", `Bearer realm="retrain"`)
		h.writeError(w, r, err)
		return
	}

	if h.limiter != nil {
		if res := h.limiter.Reserve(); !res.OK() || res.Delay() > 0 {
			retryAfter := res.Delay()
			res.Cancel()
			w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())+1))
			h.writeError(w, r, errors.Wrap(errors.ErrRateLimitExceeded, "too many retrain requests"))
			return
		}
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)

	dataset, closeFn, err := h.datasetReader(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer closeFn()

	out, err := h.trainer.RetrainCSV(r.Context(), dataset)
	if err != nil {
		h.writeError(w, r, uploadError(err))
		return
	}

	resp := retrainResponse{
		Message:  "Model retrained successfully",
		ModelID:  out.BundleID.String(),
		Features: out.Features,
		Run:      out.Run,
		History: retrainHistory{
			Accuracy:    []float64{out.Run.TrainAccuracy},
			ValAccuracy: []float64{out.Run.ValidationAccuracy},
		},
	}
	if out.Report != nil {
		resp.Report = out.Report
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) authorize(r *http.Request, scope string) error {
	if h.tokens == nil {
		return nil
	}

	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return errors.Wrap(errors.ErrUnauthorized, "missing bearer token")
	}

	claims, err := h.tokens.ValidateToken(strings.TrimSpace(token), scope)
	if err != nil {
		h.log.Warnw("Rejected retrain token", "path", r.URL.Path, "error", err)
		return err
	}

	h.log.Infow("Retrain authorized", "subject", claims.Subject)
	return nil
}

func (h *Handler) datasetReader(r *http.Request) (io.Reader, func(), error) {
	noop := func() {}

	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil && r.Header.Get("Content-Type") != "" {
		return nil, noop, errors.NewValidationError("Content-Type", "malformed media type", r.Header.Get("Content-Type"))
	}

	switch mediaType {
	case "multipart/form-data":
		if err := r.ParseMultipartForm(8 << 20); err != nil {
			return nil, noop, uploadError(errors.Wrap(errors.ErrInvalidInput, err.Error()))
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			return nil, noop, errors.NewValidationError("file", "multipart field is required", nil)
		}
		return file, func() {
			_ = file.Close()
			_ = r.MultipartForm.RemoveAll()
		}, nil

	case "", "text/csv", "text/plain", "application/csv", "application/octet-stream":
		return r.Body, noop, nil

	default:
		return nil, noop, errors.NewValidationError("Content-Type", "expected multipart/form-data or text/csv", mediaType)
	}
}

// HandleTrainingRuns lists recent retrains, newest first
func (h *Handler) HandleTrainingRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 100 {
			h.writeError(w, r, errors.NewValidationError("limit", "must be an integer between 1 and 100", raw))
			return
		}
		limit = n
	}

	runs, err := h.trainer.History(r.Context(), limit)
	if errors.Is(err, errors.ErrUnavailable) {
		runs, err = []irrigation.TrainingRun{}, nil
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if runs == nil {
		runs = []irrigation.TrainingRun{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"runs": runs})
}

// HandlePredictionSummary aggregates served predictions over the last N hours
func (h *Handler) HandlePredictionSummary(w http.ResponseWriter, r *http.Request) {
	if h.summaries == nil {
		h.writeError(w, r, errors.Wrap(errors.ErrUnavailable, "prediction audit log is not configured"))
		return
	}

	hours := 24
	if raw := r.URL.Query().Get("hours"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 24*90 {
			h.writeError(w, r, errors.NewValidationError("hours", "must be an integer between 1 and 2160", raw))
			return
		}
		hours = n
	}

	since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
	rows, err := h.summaries.Summary(r.Context(), since)
	if err != nil {
		h.log.Warnw("Prediction summary failed", "error", err)
		h.writeError(w, r, errors.Wrap(errors.ErrUnavailable, "prediction audit log unavailable"))
		return
	}
	if rows == nil {
		rows = []chrepo.RecommendationCount{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"since":           since,
		"recommendations": rows,
	})
}
