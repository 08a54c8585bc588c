package server

import (
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/creatorpay/internal/export"
	"github.com/smallbiznis/creatorpay/internal/importer"
	rewarddomain "github.com/smallbiznis/creatorpay/internal/reward/domain"
	rewardservice "github.com/smallbiznis/creatorpay/internal/reward/service"
)

const maxImportMemory = 32 << 20

type runRecordRequest struct {
	Period       string   `json:"period"`
	CreatorID    string   `json:"creator_id"`
	Username     string   `json:"username"`
	Group        string   `json:"group"`
	Agent        string   `json:"agent"`
	RelationDate string   `json:"relation_date"`
	Diamonds     *float64 `json:"diamonds"`
	LiveHours    *float64 `json:"live_hours"`
	LiveDays     *float64 `json:"live_days"`
	Status       string   `json:"status"`
}

type createRunRequest struct {
	DryRun    bool               `json:"dry_run"`
	PeriodEnd string             `json:"period_end"`
	Records   []runRecordRequest `json:"records"`
}

type runDetail struct {
	rewarddomain.RewardRun
	Tables rewarddomain.Tables          `json:"tables"`
	Deltas []rewarddomain.HistoryDelta `json:"deltas"`
}

func (s *Server) CreateRewardRun(c *gin.Context) {
	var req createRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	periodEnd, err := parseOptionalDate(req.PeriodEnd)
	if err != nil {
		AbortWithError(c, newValidationError("period_end", "invalid_period_end", "invalid period_end"))
		return
	}

	records := make([]rewarddomain.RawRecord, 0, len(req.Records))
	for i, r := range req.Records {
		relation, err := parseOptionalDate(r.RelationDate)
		if err != nil {
			AbortWithError(c, newValidationError(
				fmt.Sprintf("records[%d].relation_date", i),
				"invalid_relation_date",
				"invalid relation_date",
			))
			return
		}
		records = append(records, rewarddomain.RawRecord{
			Period:       strings.TrimSpace(r.Period),
			CreatorID:    strings.TrimSpace(r.CreatorID),
			Username:     strings.TrimSpace(r.Username),
			Group:        strings.TrimSpace(r.Group),
			Agent:        strings.TrimSpace(r.Agent),
			RelationDate: relation,
			Diamonds:     r.Diamonds,
			LiveHours:    r.LiveHours,
			LiveDays:     r.LiveDays,
			Status:       strings.TrimSpace(r.Status),
		})
	}

	result, err := s.rewardSvc.Run(c.Request.Context(), rewarddomain.RunRequest{
		Records:   records,
		PeriodEnd: periodEnd,
		DryRun:    req.DryRun,
		Source:    rewardservice.SourceAPI,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondRun(c, result)
}

// ImportRewardRun runs a batch built from uploaded CSV or XLSX extracts.
func (s *Server) ImportRewardRun(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	defer func() { _ = form.RemoveAll() }()

	dryRun, err := parseOptionalBool(c.PostForm("dry_run"))
	if err != nil {
		AbortWithError(c, newValidationError("dry_run", "invalid_dry_run", "invalid dry_run"))
		return
	}
	periodEnd, err := parseOptionalDate(c.PostForm("period_end"))
	if err != nil {
		AbortWithError(c, newValidationError("period_end", "invalid_period_end", "invalid period_end"))
		return
	}

	headers := form.File["files"]
	files := make([]importer.File, 0, len(headers))
	opened := make([]multipart.File, 0, len(headers))
	defer func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}()
	for _, h := range headers {
		f, err := h.Open()
		if err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
		opened = append(opened, f)
		files = append(files, importer.File{Name: h.Filename, Body: f})
	}

	ctx := c.Request.Context()
	imported, err := s.importer.Import(ctx, files)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	result, err := s.rewardSvc.Run(ctx, rewarddomain.RunRequest{
		Records:   imported.Records,
		PeriodEnd: periodEnd,
		DryRun:    dryRun != nil && *dryRun,
		Source:    rewardservice.SourceImport,
		Coercions: imported.Coercions,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondRun(c, result)
}

func respondRun(c *gin.Context, result *rewarddomain.RunResult) {
	c.Set("run_id", result.Run.ID.String())
	status := http.StatusCreated
	if result.Run.DryRun {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{"data": result})
}

func (s *Server) ListRewardRuns(c *gin.Context) {
	limit, err := parseLimit(c.Query("limit"))
	if err != nil {
		AbortWithError(c, newValidationError("limit", "invalid_limit", "invalid limit"))
		return
	}

	runs, err := s.rewardSvc.ListRuns(c.Request.Context(), limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": runs})
}

func (s *Server) GetRewardRun(c *gin.Context) {
	run, err := s.rewardSvc.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	tables, err := run.DecodeTables()
	if err != nil {
		AbortWithError(c, err)
		return
	}
	deltas, err := run.DecodeDeltas()
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Set("run_id", run.ID.String())
	c.JSON(http.StatusOK, gin.H{"data": runDetail{RewardRun: *run, Tables: tables, Deltas: deltas}})
}

// ExportRewardRun downloads one table of a stored run.
func (s *Server) ExportRewardRun(c *gin.Context) {
	table, err := export.ParseTable(c.Query("table"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	format, err := export.ParseFormat(c.Query("format"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	run, err := s.rewardSvc.GetRun(ctx, c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	tables, err := run.DecodeTables()
	if err != nil {
		AbortWithError(c, err)
		return
	}

	body, err := s.exporter.Render(ctx, format, export.Document{
		Title:  "Creator rewards",
		Label:  run.Periods,
		Table:  table,
		Tables: tables,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Set("run_id", run.ID.String())
	c.DataFromReader(http.StatusOK, -1, format.ContentType(), body, map[string]string{
		"Content-Disposition": attachment(export.Filename(run.Periods, table, format)),
	})
}

func attachment(filename string) string {
	return fmt.Sprintf("attachment; filename=%q", filename)
}
