package server

import (
	"bytes"
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/creatorpay/internal/history/csvstore"
	historydomain "github.com/smallbiznis/creatorpay/internal/history/domain"
	"github.com/smallbiznis/creatorpay/internal/observability/logger"
	rewarddomain "github.com/smallbiznis/creatorpay/internal/reward/domain"
	rewardservice "github.com/smallbiznis/creatorpay/internal/reward/service"
	"go.uber.org/zap"
)

const historyExportName = "creatorpay-history.csv"

func (s *Server) ListHistory(c *gin.Context) {
	entries, err := s.history.Load(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": historydomain.NewSnapshot(entries...).Entries()})
}

func (s *Server) GetHistoryEntry(c *gin.Context) {
	entry, err := s.history.Find(c.Request.Context(), c.Param("key"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if entry == nil {
		AbortWithError(c, historydomain.ErrEntryNotFound)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": entry})
}

// ExportHistory downloads the history in the legacy CSV layout.
func (s *Server) ExportHistory(c *gin.Context) {
	entries, err := s.history.Load(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var buf bytes.Buffer
	if err := csvstore.Encode(&buf, historydomain.NewSnapshot(entries...).Entries()); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", attachment(historyExportName))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

// ImportHistory merges an uploaded history CSV into the store. It takes the
// same lock as committed runs so the two never interleave.
func (s *Server) ImportHistory(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		AbortWithError(c, newValidationError("file", "required", "file is required"))
		return
	}
	f, err := header.Open()
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	defer f.Close()

	entries, err := csvstore.Decode(f)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	release, err := s.lockHistory(ctx)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	defer release()

	now := s.clock.Now()
	for i := range entries {
		if entries[i].UpdatedAt.IsZero() {
			entries[i].UpdatedAt = now
		}
	}
	if len(entries) > 0 {
		if err := s.history.Save(ctx, entries); err != nil {
			AbortWithError(c, err)
			return
		}
	}

	logger.FromContext(ctx).Info("history imported",
		zap.String("file", header.Filename),
		zap.Int("entries", len(entries)),
	)
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"imported": len(entries)}})
}

func (s *Server) lockHistory(ctx context.Context) (func(), error) {
	token, ok, err := s.locker.TryLock(ctx, rewardservice.HistoryLockKey, s.lockTTL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, rewarddomain.ErrRunLocked
	}
	return func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), rewardservice.HistoryLockKey, token); err != nil {
			s.log.Warn("failed to release history lock", zap.Error(err))
		}
	}, nil
}
