package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/RishiKendai/overlap/internal/config"
	"github.com/RishiKendai/overlap/internal/metrics"
	"github.com/RishiKendai/overlap/internal/models"
	"github.com/RishiKendai/overlap/internal/overlap"
	"github.com/RishiKendai/overlap/internal/repository"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	defaultPairsLimit = 100
	maxPairsLimit     = 1000
)

// permanentError never succeeds on retry
type permanentError string

func (e permanentError) Error() string { return string(e) }

func (permanentError) Permanent() bool { return true }

var (
	// ErrCorpusNotFound means no fingerprints were ingested for the corpus
	ErrCorpusNotFound error = permanentError("no fingerprints found for corpus")
	// ErrRunsBusy means every run slot is taken
	ErrRunsBusy = errors.New("all run slots are busy")
)

// CorpusStore reads the ingested fingerprints of a corpus
type CorpusStore interface {
	overlap.FingerprintSource
	CountFilesByCorpusID(ctx context.Context, corpusID string) (int64, error)
}

// RunStore persists run reports and ranked pairs
type RunStore interface {
	overlap.ResultSink
	InsertRunReport(ctx context.Context, report *models.RunReport) error
	GetLatestRunByCorpusID(ctx context.Context, corpusID string) (*models.RunReport, error)
	GetTopPairs(ctx context.Context, runID string, minScore int, limit int64) ([]models.PairResult, error)
}

// StatusStore tracks the live step of a corpus' run
type StatusStore interface {
	SetStep(ctx context.Context, corpusID string, step models.Step) error
	GetStep(ctx context.Context, corpusID string) (models.Step, error)
}

// Handler holds dependencies for handlers
type Handler struct {
	cfg            *config.Config
	corpus         CorpusStore
	runs           RunStore
	status         StatusStore
	workerPool     *overlap.WorkerPool
	computeSem     chan struct{} // Semaphore for bounded concurrency
	computeTimeout time.Duration
	inflight       sync.WaitGroup
}

// NewHandler creates a new handler. A nil worker pool runs detection sequentially.
func NewHandler(
	cfg *config.Config,
	corpus CorpusStore,
	runs RunStore,
	status StatusStore,
	workerPool *overlap.WorkerPool,
) *Handler {
	sem := make(chan struct{}, cfg.MaxConcurrentRuns)

	return &Handler{
		cfg:            cfg,
		corpus:         corpus,
		runs:           runs,
		status:         status,
		workerPool:     workerPool,
		computeSem:     sem,
		computeTimeout: cfg.ComputationTimeout,
	}
}

// Wait blocks until every background run has finished
func (h *Handler) Wait() {
	h.inflight.Wait()
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
	})
}

// StartRun accepts a corpus and runs detection over it in the background
func (h *Handler) StartRun(c *gin.Context) {
	var req models.RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	report, err := h.enqueueRun(c.Request.Context(), req.CorpusID, true)
	switch {
	case errors.Is(err, ErrCorpusNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "No fingerprints found for corpusId",
			Code:  "CORPUS_NOT_FOUND",
		})
		return
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusRequestTimeout, ErrorResponse{
			Error: "Request cancelled",
			Code:  "REQUEST_TIMEOUT",
		})
		return
	case err != nil:
		log.Error().Err(err).Str("corpusId", req.CorpusID).Msg("Failed to start run")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Failed to create run",
			Code:  "INTERNAL_ERROR",
		})
		return
	}

	c.JSON(http.StatusAccepted, models.RunResponse{
		RunID:    report.RunID,
		CorpusID: report.CorpusID,
		Step:     models.StepInitiated,
	})
}

// TriggerRun starts a run for a corpus whose ingestion settled. It does not
// wait for a free run slot and returns ErrRunsBusy instead.
func (h *Handler) TriggerRun(ctx context.Context, corpusID string) error {
	_, err := h.enqueueRun(ctx, corpusID, false)
	return err
}

// enqueueRun records a pending run and starts detection in the background.
// With wait set it blocks for a run slot until ctx is done.
func (h *Handler) enqueueRun(ctx context.Context, corpusID string, wait bool) (*models.RunReport, error) {
	count, err := h.corpus.CountFilesByCorpusID(ctx, corpusID)
	if err != nil {
		return nil, fmt.Errorf("failed to count corpus files: %w", err)
	}
	if count == 0 {
		return nil, ErrCorpusNotFound
	}

	if wait {
		select {
		case h.computeSem <- struct{}{}:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	} else {
		select {
		case h.computeSem <- struct{}{}:
		default:
			return nil, ErrRunsBusy
		}
	}

	report := &models.RunReport{
		RunID:     uuid.New().String(),
		CorpusID:  corpusID,
		Status:    models.RunStatusPending,
		CreatedAt: time.Now(),
	}
	if err := h.runs.InsertRunReport(ctx, report); err != nil {
		<-h.computeSem
		return nil, fmt.Errorf("failed to create pending report: %w", err)
	}

	h.setStep(ctx, corpusID, models.StepInitiated)

	h.inflight.Add(1)
	go h.processRun(report)
	return report, nil
}

func (h *Handler) processRun(report *models.RunReport) {
	defer h.inflight.Done()
	defer func() { <-h.computeSem }()

	ctx, cancel := context.WithTimeout(context.Background(), h.computeTimeout)
	defer cancel()

	detector := overlap.NewDetector(h.cfg.DetectorOptions(), h.workerPool).
		WithStepFunc(func(step models.Step) {
			h.setStep(ctx, report.CorpusID, step)
		})

	if err := runDetection(ctx, report, h.corpus, h.runs, detector); err != nil {
		log.Error().Err(err).
			Str("runId", report.RunID).
			Str("corpusId", report.CorpusID).
			Msg("Computation failed")
		h.markFailed(report, err)
		metrics.RunCount.WithLabelValues(models.RunStatusFailed).Inc()
		return
	}

	metrics.RunCount.WithLabelValues(models.RunStatusCompleted).Inc()
}

// runDetection turns a panic inside the engine into a failed run
func runDetection(
	ctx context.Context,
	report *models.RunReport,
	source overlap.FingerprintSource,
	sink overlap.ResultSink,
	detector *overlap.Detector,
) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = fmt.Errorf("detection aborted: %w", e)
				return
			}
			err = fmt.Errorf("detection aborted: %v", r)
		}
	}()

	return overlap.ComputeOverlap(ctx, report, source, sink, detector)
}

func (h *Handler) markFailed(report *models.RunReport, cause error) {
	// the run context may already be past its deadline
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	report.Status = models.RunStatusFailed
	report.Error = cause.Error()
	report.CompletedAt = time.Now()

	if err := h.runs.UpdateRunReport(ctx, report); err != nil {
		log.Error().Err(err).Str("runId", report.RunID).Msg("Failed to update failed report")
	}
	h.setStep(ctx, report.CorpusID, models.StepFailed)
}

func (h *Handler) setStep(ctx context.Context, corpusID string, step models.Step) {
	if err := h.status.SetStep(ctx, corpusID, step); err != nil {
		log.Warn().Err(err).Str("corpusId", corpusID).Str("step", string(step)).Msg("Failed to update status")
	}
}

// GetLatestRun returns the newest run report of a corpus and its live step
func (h *Handler) GetLatestRun(c *gin.Context) {
	corpusID := c.Param("corpusId")
	ctx := c.Request.Context()

	report, ok := h.latestRun(c, corpusID)
	if !ok {
		return
	}

	step, err := h.status.GetStep(ctx, corpusID)
	if err != nil {
		log.Warn().Err(err).Str("corpusId", corpusID).Msg("Failed to read status")
		step = models.StepIdle
	}

	c.JSON(http.StatusOK, models.RunStatusResponse{
		Step: step,
		Run:  report,
	})
}

// GetPairs returns the ranked pairs of the latest completed run in ascending order
func (h *Handler) GetPairs(c *gin.Context) {
	corpusID := c.Param("corpusId")

	minScore, err := queryInt(c, "min", 0)
	if err != nil || minScore < 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "min must be a non-negative integer",
			Code:  "INVALID_QUERY",
		})
		return
	}

	limit, err := queryInt(c, "limit", defaultPairsLimit)
	if err != nil || limit <= 0 || limit > maxPairsLimit {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: fmt.Sprintf("limit must be between 1 and %d", maxPairsLimit),
			Code:  "INVALID_QUERY",
		})
		return
	}

	report, ok := h.latestRun(c, corpusID)
	if !ok {
		return
	}

	if report.Status != models.RunStatusCompleted {
		c.JSON(http.StatusConflict, ErrorResponse{
			Error: fmt.Sprintf("Latest run is %s", report.Status),
			Code:  "RUN_NOT_COMPLETED",
		})
		return
	}

	pairs, err := h.runs.GetTopPairs(c.Request.Context(), report.RunID, minScore, int64(limit))
	if err != nil {
		log.Error().Err(err).Str("runId", report.RunID).Msg("Failed to load pairs")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Failed to load pairs",
			Code:  "INTERNAL_ERROR",
		})
		return
	}

	// stored highest rank first, served ascending
	for i, j := 0, len(pairs)-1; i < j; i, j = i+1, j-1 {
		pairs[i], pairs[j] = pairs[j], pairs[i]
	}

	c.JSON(http.StatusOK, models.PairsResponse{
		RunID:    report.RunID,
		CorpusID: report.CorpusID,
		Total:    report.Pairs,
		Pairs:    pairs,
	})
}

func (h *Handler) latestRun(c *gin.Context, corpusID string) (*models.RunReport, bool) {
	report, err := h.runs.GetLatestRunByCorpusID(c.Request.Context(), corpusID)
	if errors.Is(err, repository.ErrRunNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "No run found for corpusId",
			Code:  "RUN_NOT_FOUND",
		})
		return nil, false
	}
	if err != nil {
		log.Error().Err(err).Str("corpusId", corpusID).Msg("Failed to get latest run")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Failed to get run",
			Code:  "INTERNAL_ERROR",
		})
		return nil, false
	}
	return report, true
}

func queryInt(c *gin.Context, key string, fallback int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}
