// internal/handlers/sweep/sweep_handler.go
package sweep

import (
	"context"
	"net/http"
	"time"

	"sokoni-service/internal/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Runner runs one expiry sweep and reports per-phase counts. Counts are
// returned even when some phases fail.
type Runner interface {
	RunExpirySweep(ctx context.Context) (map[string]int64, error)
}

type SweepHandler struct {
	sweepService Runner
	logger       *zap.Logger
}

func NewSweepHandler(sweepService Runner, logger *zap.Logger) *SweepHandler {
	return &SweepHandler{
		sweepService: sweepService,
		logger:       logger,
	}
}

// RunSweep triggers an expiry sweep on demand. The sweep is idempotent, so an
// operator can safely fire it alongside the scheduler. A phase failure is an
// operational condition, not a request failure: the handler still responds
// 200 with the counts the surviving phases produced, plus the failures.
func (h *SweepHandler) RunSweep(c *gin.Context) {
	start := time.Now()

	counts, err := h.sweepService.RunExpirySweep(c.Request.Context())
	data := gin.H{
		"expired":     counts,
		"duration_ms": time.Since(start).Milliseconds(),
	}

	if err != nil {
		h.logger.Error("manual expiry sweep finished with phase failures", zap.Error(err))
		data["failed_phases"] = err.Error()
		response.Success(c, http.StatusOK, "expiry sweep completed with phase failures", data)
		return
	}

	response.Success(c, http.StatusOK, "expiry sweep completed", data)
}
