package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/bradeyre/platinum-repairs-sub001/internal/api/dto"
	"github.com/bradeyre/platinum-repairs-sub001/internal/domain"
	"github.com/bradeyre/platinum-repairs-sub001/internal/orchestrator"
	"github.com/bradeyre/platinum-repairs-sub001/internal/repository"
	"github.com/bradeyre/platinum-repairs-sub001/pkg/util"
)

// syncRunner is the trigger surface of the orchestrator.
type syncRunner interface {
	Trigger(ctx context.Context, req orchestrator.RunRequest) (orchestrator.RunResult, error)
}

// SyncHandler exposes the manual sync trigger and the operation audit log.
type SyncHandler struct {
	orch syncRunner
	ops  repository.SyncOperationRepository
}

// NewSyncHandler constructs handler.
func NewSyncHandler(orch syncRunner, ops repository.SyncOperationRepository) *SyncHandler {
	return &SyncHandler{orch: orch, ops: ops}
}

// RunSync POST /sync/run. Accepted passes run in the background; 409 means
// another pass holds the claim.
func (h *SyncHandler) RunSync(c *fiber.Ctx) error {
	var req dto.RunSyncRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return util.NewValidationError("invalid payload", nil)
		}
	}

	kind := domain.SyncKind(req.Kind)
	switch kind {
	case "", domain.SyncKindFull, domain.SyncKindIncremental:
	default:
		return util.NewValidationError("kind must be full or incremental", map[string]any{"kind": req.Kind})
	}
	if req.From != nil && req.To != nil && req.To.Before(*req.From) {
		return util.NewValidationError("to must not precede from", nil)
	}

	result, err := h.orch.Trigger(c.UserContext(), orchestrator.RunRequest{
		Kind:        kind,
		From:        req.From,
		To:          req.To,
		MaxPriority: req.MaxPriority,
	})
	if err != nil {
		return util.MapError(err)
	}
	if !result.Accepted {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"data": result})
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"data": result})
}

// ListOperations GET /sync/operations.
func (h *SyncHandler) ListOperations(c *fiber.Ctx) error {
	limit := parseInt(c.Query("limit"), 20)
	ops, err := h.ops.ListRecent(c.UserContext(), limit)
	if err != nil {
		return util.MapError(err)
	}
	items := make([]dto.SyncOperationResponse, 0, len(ops))
	for i := range ops {
		items = append(items, syncOperationResponse(&ops[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetOperation GET /sync/operations/:id.
func (h *SyncHandler) GetOperation(c *fiber.Ctx) error {
	op, err := h.ops.GetByID(c.UserContext(), c.Params("id"))
	if err != nil {
		return util.MapError(err)
	}
	return c.JSON(fiber.Map{"data": syncOperationResponse(op)})
}

func syncOperationResponse(op *domain.SyncOperation) dto.SyncOperationResponse {
	return dto.SyncOperationResponse{
		ID:          op.ID,
		Kind:        op.Kind,
		Status:      op.Status,
		StartedAt:   op.StartedAt,
		CompletedAt: op.CompletedAt,
		Counters:    op.Counters,
		ErrorLog:    op.ErrorLog,
	}
}
