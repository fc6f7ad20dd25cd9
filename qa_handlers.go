package main

import (
	"encoding/json"
	"net/http"
	"strconv"

	"bitbucket.org/mmdatafocus/hvacops_backend/config"
	"bitbucket.org/mmdatafocus/hvacops_backend/models"
	"bitbucket.org/mmdatafocus/hvacops_backend/models/reports"
	"bitbucket.org/mmdatafocus/hvacops_backend/utils"
	"bitbucket.org/mmdatafocus/hvacops_backend/workflow"
	"github.com/gin-gonic/gin"
)

// httpStatusForError maps the error taxonomy onto HTTP codes. A blocked gate
// never lands here; it is a normal verdict, not an error.
func httpStatusForError(err error) int {
	switch {
	case utils.IsValidationError(err):
		return http.StatusBadRequest
	case utils.IsNotFound(err):
		return http.StatusNotFound
	case utils.IsInvalidState(err):
		return http.StatusConflict
	case utils.IsUnavailable(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, funcName string, err error) {
	status := httpStatusForError(err)
	if status == http.StatusInternalServerError {
		config.LogError(config.GetLogger(), "qa_handlers.go", funcName, "", nil, err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func loginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
			return
		}
		info, err := models.Login(c.Request.Context(), req.Username, req.Password)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": info})
	}
}

func listJobsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

		var statusFilter *models.QAStatus
		if s := c.Query("status"); s != "" {
			status := models.QAStatus(s)
			if status != models.QAStatusPassed && status != models.QAStatusPending && status != models.QAStatusBlocked {
				c.JSON(http.StatusBadRequest, gin.H{"error": "status must be passed, pending or blocked"})
				return
			}
			statusFilter = &status
		}

		statuses, err := workflow.ListJobs(c.Request.Context(), limit, offset, statusFilter)
		if err != nil {
			abortWithError(c, "listJobsHandler", err)
			return
		}
		// The console renders the tiles and the table from one fetch.
		stats, err := reports.GetQAStats(c.Request.Context())
		if err != nil {
			abortWithError(c, "listJobsHandler", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": statuses, "stats": stats})
	}
}

func createJobHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewJobSignoff
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
			return
		}
		status, err := workflow.CompleteJob(c.Request.Context(), &input)
		if err != nil {
			abortWithError(c, "createJobHandler", err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"data": status})
	}
}

func getJobHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		status, err := workflow.GetJobStatus(c.Request.Context(), c.Param("id"))
		if err != nil {
			abortWithError(c, "getJobHandler", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": status})
	}
}

func updateSignoffHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Unknown fields are malformed input, not silently dropped facts.
		decoder := json.NewDecoder(c.Request.Body)
		decoder.DisallowUnknownFields()
		var update models.SignoffUpdate
		if err := decoder.Decode(&update); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if update.IsEmpty() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "no facts supplied"})
			return
		}

		status, err := workflow.UpdateSignoff(c.Request.Context(), c.Param("id"), &update)
		if err != nil {
			abortWithError(c, "updateSignoffHandler", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": status})
	}
}

type overrideRequest struct {
	Reason string `json:"reason" binding:"required"`
}

func listOverridesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		businessId, ok := utils.GetBusinessIdFromContext(ctx)
		if !ok || businessId == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		jobId := c.Param("id")
		if err := utils.ValidateResourceId[models.JobSignoff](ctx, businessId, "job_id", jobId); err != nil {
			abortWithError(c, "listOverridesHandler", err)
			return
		}
		records, err := models.ListOverrideRecords(ctx, businessId, jobId)
		if err != nil {
			abortWithError(c, "listOverridesHandler", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": records})
	}
}

func overrideGateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req overrideRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "reason is required"})
			return
		}
		status, err := workflow.OverrideGate(c.Request.Context(), c.Param("id"), req.Reason)
		if err != nil {
			abortWithError(c, "overrideGateHandler", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": status})
	}
}

func forceReleaseHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req overrideRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "reason is required"})
			return
		}
		status, err := workflow.ForceReleaseHoldback(c.Request.Context(), c.Param("id"), req.Reason)
		if err != nil {
			abortWithError(c, "forceReleaseHandler", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": status})
	}
}

func getSettingsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId, ok := utils.GetBusinessIdFromContext(c.Request.Context())
		if !ok || businessId == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		policy, err := models.GetQAPolicy(c.Request.Context(), businessId)
		if err != nil {
			abortWithError(c, "getSettingsHandler", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": policy})
	}
}

func updateSettingsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		decoder := json.NewDecoder(c.Request.Body)
		decoder.DisallowUnknownFields()
		var update models.QAPolicyUpdate
		if err := decoder.Decode(&update); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		policy, err := models.UpdateQAPolicy(c.Request.Context(), &update)
		if err != nil {
			abortWithError(c, "updateSettingsHandler", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": policy})
	}
}

func statsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := reports.GetQAStats(c.Request.Context())
		if err != nil {
			abortWithError(c, "statsHandler", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": stats})
	}
}

func exportHoldbackLedgerHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		f, err := reports.ExportHoldbackLedgerExcel(c.Request.Context())
		if err != nil {
			abortWithError(c, "exportHoldbackLedgerHandler", err)
			return
		}
		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Header("Content-Disposition", "attachment; filename=holdback-ledger.xlsx")
		if err := f.Write(c.Writer); err != nil {
			config.LogError(config.GetLogger(), "qa_handlers.go", "exportHoldbackLedgerHandler", "write workbook", nil, err)
		}
	}
}

func historiesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var refId, refType *string
		if v := c.Query("reference_id"); v != "" {
			refId = &v
		}
		if v := c.Query("reference_type"); v != "" {
			refType = &v
		}
		histories, err := models.GetHistories(c.Request.Context(), refId, refType)
		if err != nil {
			abortWithError(c, "historiesHandler", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": histories})
	}
}
