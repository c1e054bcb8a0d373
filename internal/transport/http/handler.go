// Package httptransport is the thin HTTP layer over the ledger services. It
// decodes wire forms, delegates, and translates coded errors; no business
// logic lives here.
package httptransport

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/timewave-computer/causality-sub004/internal/domain"
	"github.com/timewave-computer/causality-sub004/internal/epoch"
	"github.com/timewave-computer/causality-sub004/internal/validator"
	"github.com/timewave-computer/causality-sub004/pkg/httputil"
	"github.com/timewave-computer/causality-sub004/pkg/ledgererrors"
	"github.com/timewave-computer/causality-sub004/pkg/sentinel"
)

// Admitter validates operations and issues admission tokens.
type Admitter interface {
	Admit(ctx context.Context, op domain.Operation) (*validator.AdmissionToken, error)
}

// Applier commits admitted operations.
type Applier interface {
	Apply(ctx context.Context, token *validator.AdmissionToken) (*domain.Receipt, error)
}

// RegisterReader is the read-only slice of the register store served here.
type RegisterReader interface {
	Get(ctx context.Context, id domain.RegisterID) (*domain.Register, error)
	Stub(ctx context.Context, id domain.RegisterID) (domain.RegisterStub, bool, error)
	ByClass(ctx context.Context, class domain.ResourceClass) ([]domain.RegisterID, error)
}

// TimeMapService tracks ledger time and commits snapshots.
type TimeMapService interface {
	Observe(positions ...domain.TimePosition) domain.TimeMap
	Current() domain.TimeMap
}

// Committer persists time maps as proven commitments.
type Committer interface {
	Commit(ctx context.Context, tm domain.TimeMap) (domain.TimeMapCommitment, error)
}

// LogReader serves causal log entries.
type LogReader interface {
	Entries(ctx context.Context, from, limit int) ([]domain.CausalEntry, error)
	Len(ctx context.Context) (int, error)
}

// Collector runs garbage collection passes.
type Collector interface {
	Collect(ctx context.Context, target domain.EpochID) (*epoch.Result, error)
}

// EpochSource exposes epoch progression.
type EpochSource interface {
	Current() domain.EpochID
	Advance(boundaryHeight uint64) domain.EpochID
}

// Handler wires ledger endpoints to the services behind them.
type Handler struct {
	admitter  Admitter
	applier   Applier
	registers RegisterReader
	timemaps  TimeMapService
	committer Committer
	log       LogReader
	collector Collector
	epochs    EpochSource
	logger    *slog.Logger
}

// NewHandler constructs the HTTP handler with its dependencies.
func NewHandler(
	admitter Admitter,
	applier Applier,
	registers RegisterReader,
	timemaps TimeMapService,
	committer Committer,
	log LogReader,
	collector Collector,
	epochs EpochSource,
	logger *slog.Logger,
) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		admitter:  admitter,
		applier:   applier,
		registers: registers,
		timemaps:  timemaps,
		committer: committer,
		log:       log,
		collector: collector,
		epochs:    epochs,
		logger:    logger,
	}
}

// Register mounts ledger endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/operations", h.HandleSubmitOperation)
	r.Get("/v1/registers/{id}", h.HandleGetRegister)
	r.Get("/v1/classes/{class}", h.HandleGetClass)
	r.Get("/v1/timemap", h.HandleGetTimeMap)
	r.Post("/v1/timemap/observe", h.HandleObserve)
	r.Post("/v1/timemap/commit", h.HandleCommitTimeMap)
	r.Get("/v1/log", h.HandleGetLog)
	r.Post("/v1/epochs/advance", h.HandleAdvanceEpoch)
	r.Post("/v1/gc/{epoch}", h.HandleCollect)
}

// HandleSubmitOperation handles POST /v1/operations: the full admit-then-apply
// pipeline for one operation.
func (h *Handler) HandleSubmitOperation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	req, ok := httputil.Decode[OperationRequest](w, r, h.logger)
	if !ok {
		return
	}
	op, err := req.ToOperation()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	token, err := h.admitter.Admit(ctx, op)
	if err != nil {
		h.logger.InfoContext(ctx, "operation rejected",
			"type", string(op.Type),
			"caller", op.Caller,
			"code", string(ledgererrors.CodeOf(err)),
		)
		httputil.WriteError(w, err)
		return
	}

	receipt, err := h.applier.Apply(ctx, token)
	if err != nil {
		h.logger.InfoContext(ctx, "operation failed at apply",
			"type", string(op.Type),
			"caller", op.Caller,
			"code", string(ledgererrors.CodeOf(err)),
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "operation committed",
		"type", string(op.Type),
		"transaction_id", string(receipt.TransactionID),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, FromReceipt(receipt))
}

// HandleGetRegister handles GET /v1/registers/{id}. Archived registers are
// served as their verification stub.
func (h *Handler) HandleGetRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := domain.RegisterID(chi.URLParam(r, "id"))

	reg, err := h.registers.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			httputil.WriteError(w, ledgererrors.Newf(ledgererrors.CodeNotFound, "register %s not found", id))
			return
		}
		httputil.WriteError(w, err)
		return
	}

	var stub *domain.RegisterStub
	if reg.State.Status == domain.StatusArchived {
		if s, ok, err := h.registers.Stub(ctx, id); err == nil && ok {
			stub = &s
		}
	}
	httputil.WriteJSON(w, http.StatusOK, FromRegister(reg, stub))
}

// HandleGetClass handles GET /v1/classes/{class}: the register ids (or
// post-GC summary ids) indexed under a resource class.
func (h *Handler) HandleGetClass(w http.ResponseWriter, r *http.Request) {
	class := domain.ResourceClass(chi.URLParam(r, "class"))

	ids, err := h.registers.ByClass(r.Context(), class)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"class":     class,
		"registers": ids,
	})
}

// HandleGetTimeMap handles GET /v1/timemap.
func (h *Handler) HandleGetTimeMap(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, FromTimeMap(h.timemaps.Current()))
}

// HandleObserve handles POST /v1/timemap/observe: domain adapters deliver
// newly observed positions.
func (h *Handler) HandleObserve(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[ObserveRequest](w, r, h.logger)
	if !ok {
		return
	}
	if len(req.Positions) == 0 {
		httputil.WriteError(w, ledgererrors.New(ledgererrors.CodeBadRequest, "no positions supplied"))
		return
	}

	positions := make([]domain.TimePosition, 0, len(req.Positions))
	for _, p := range req.Positions {
		positions = append(positions, p.ToPosition())
	}
	httputil.WriteJSON(w, http.StatusOK, FromTimeMap(h.timemaps.Observe(positions...)))
}

// HandleCommitTimeMap handles POST /v1/timemap/commit: stores the current map
// as a proven commitment register.
func (h *Handler) HandleCommitTimeMap(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	c, err := h.committer.Commit(ctx, h.timemaps.Current())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, CommitmentResponse{
		RegisterID:        c.RegisterID,
		Hash:              c.TimeMap.ContentHash(),
		ProofID:           c.Proof.ID,
		LastUpdatedHeight: c.LastUpdatedHeight,
	})
}

// HandleGetLog handles GET /v1/log?from=N&limit=M.
func (h *Handler) HandleGetLog(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	from, _ := strconv.Atoi(r.URL.Query().Get("from"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	entries, err := h.log.Entries(ctx, from, limit)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	total, err := h.log.Len(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"total":   total,
	})
}

// HandleAdvanceEpoch handles POST /v1/epochs/advance.
func (h *Handler) HandleAdvanceEpoch(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[struct {
		BoundaryHeight uint64 `json:"boundary_height"`
	}](w, r, h.logger)
	if !ok {
		return
	}

	opened := h.epochs.Advance(req.BoundaryHeight)
	h.logger.InfoContext(r.Context(), "epoch advanced", "epoch", uint64(opened))
	httputil.WriteJSON(w, http.StatusOK, map[string]uint64{"epoch": uint64(opened)})
}

// HandleCollect handles POST /v1/gc/{epoch}.
func (h *Handler) HandleCollect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	raw := chi.URLParam(r, "epoch")
	target, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		httputil.WriteError(w, ledgererrors.Newf(ledgererrors.CodeBadRequest, "invalid epoch %q", raw))
		return
	}

	result, err := h.collector.Collect(ctx, domain.EpochID(target))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "gc requested",
		"epoch", target, "archived", result.Archived,
		"failed", result.Failed, "tombstoned", result.Tombstoned)
	httputil.WriteJSON(w, http.StatusOK, GCResponse{
		Epoch:      result.Epoch,
		Archived:   result.Archived,
		Failed:     result.Failed,
		Tombstoned: result.Tombstoned,
		Summaries:  result.Summaries,
	})
}
