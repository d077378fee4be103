package server

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/finflow/expense-approval/internal/approval"
	"github.com/finflow/expense-approval/internal/categorization"
	"github.com/finflow/expense-approval/internal/excelimport"
	"github.com/finflow/expense-approval/internal/importer"
	"github.com/finflow/expense-approval/internal/models"
	"github.com/finflow/expense-approval/internal/repository"
)

// Handlers translates HTTP requests into service calls.
type Handlers struct {
	importService *importer.Service
	approval      *approval.Service
	categorizer   *categorization.Service
	parser        *excelimport.Parser
	imports       *repository.ImportRepository
	requests      *repository.RequestRepository
	notifications *repository.NotificationRepository
	validateRows  int
	validateTotal float64
	logger        *zap.Logger
}

// NewHandlers creates the handler set.
func NewHandlers(
	importService *importer.Service,
	approvalService *approval.Service,
	categorizer *categorization.Service,
	parser *excelimport.Parser,
	imports *repository.ImportRepository,
	requests *repository.RequestRepository,
	notifications *repository.NotificationRepository,
	validateRows int,
	validateTotal float64,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		importService: importService,
		approval:      approvalService,
		categorizer:   categorizer,
		parser:        parser,
		imports:       imports,
		requests:      requests,
		notifications: notifications,
		validateRows:  validateRows,
		validateTotal: validateTotal,
		logger:        logger,
	}
}

// HealthCheck reports service liveness.
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "expense-approval",
		"time":    time.Now().Format(time.RFC3339),
	})
}

// ImportExcel accepts a multipart upload and runs the import pipeline.
func (h *Handlers) ImportExcel(c *gin.Context) {
	user := currentUser(c)

	paymentDate, err := time.Parse("2006-01-02", c.PostForm("payment_date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "payment_date must be YYYY-MM-DD"})
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form"})
		return
	}

	var files []importer.FileUpload
	for _, fh := range form.File["files"] {
		f, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read uploaded file " + fh.Filename})
			return
		}
		content, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read uploaded file " + fh.Filename})
			return
		}
		files = append(files, importer.FileUpload{
			Name:    fh.Filename,
			Size:    fh.Size,
			Content: content,
		})
	}

	imp, err := h.importService.ImportExcel(user, paymentDate, c.PostForm("import_type"), c.PostForm("comment"), files)
	if err != nil {
		if excelimport.IsValidationError(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		status := http.StatusInternalServerError
		body := gin.H{"error": err.Error()}
		if imp != nil {
			body["import"] = imp
		}
		c.JSON(status, body)
		return
	}

	c.JSON(http.StatusOK, imp)
}

// ValidateExcel runs the pre-import check on a single file.
func (h *Handlers) ValidateExcel(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}

	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read uploaded file"})
		return
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read uploaded file"})
		return
	}

	summary, err := h.parser.Validate(content, h.validateRows, h.validateTotal)
	if err != nil {
		if excelimport.IsValidationError(err) {
			c.JSON(http.StatusBadRequest, gin.H{"valid": false, "error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"valid":        true,
		"filename":     fh.Filename,
		"row_count":    summary.RowCount,
		"total_amount": summary.TotalAmount,
	})
}

// ListImports returns the caller's import history.
func (h *Handlers) ListImports(c *gin.Context) {
	user := currentUser(c)
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "skip", 0)

	imports, err := h.imports.ListByUser(user.ID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, imports)
}

// GetImport returns one import record owned by the caller, with the total
// amount of the requests it created.
func (h *Handlers) GetImport(c *gin.Context) {
	user := currentUser(c)

	imp, err := h.imports.GetByID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if imp == nil || imp.UserID != user.ID {
		c.JSON(http.StatusNotFound, gin.H{"error": "import not found"})
		return
	}

	total, err := h.requests.SumAmountByImportID(imp.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"import": imp, "total_amount": total})
}

// CreateRequest stores a direct submission.
func (h *Handlers) CreateRequest(c *gin.Context) {
	user := currentUser(c)

	var input approval.CreateRequestInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	request, err := h.approval.CreateRequest(user, input)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, request)
}

// ListRequests returns requests visible to the caller.
func (h *Handlers) ListRequests(c *gin.Context) {
	user := currentUser(c)

	filter := repository.RequestFilter{
		Status:   c.Query("status"),
		Category: c.Query("category"),
		Limit:    intQuery(c, "limit", 100),
		Offset:   intQuery(c, "skip", 0),
	}
	if v := c.Query("start_date"); v != "" {
		if t, err := time.Parse("2006-01-02", v); err == nil {
			filter.StartDate = &t
		}
	}
	if v := c.Query("end_date"); v != "" {
		if t, err := time.Parse("2006-01-02", v); err == nil {
			filter.EndDate = &t
		}
	}

	requests, err := h.approval.ListRequests(user, filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, requests)
}

type bulkStatusInput struct {
	RequestIDs []string `json:"request_ids" binding:"required"`
	Status     string   `json:"status" binding:"required"`
}

// BulkUpdateStatus moves a batch of requests into a new status.
func (h *Handlers) BulkUpdateStatus(c *gin.Context) {
	user := currentUser(c)

	var input bulkStatusInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updated, err := h.approval.BulkUpdateStatus(user, input.RequestIDs, input.Status)
	if err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error(), "updated_count": updated})
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated_count": updated})
}

type bulkDeleteInput struct {
	RequestIDs []string `json:"request_ids" binding:"required"`
}

// BulkDelete removes draft requests owned by the caller.
func (h *Handlers) BulkDelete(c *gin.Context) {
	user := currentUser(c)

	var input bulkDeleteInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	deleted, err := h.approval.BulkDelete(user, input.RequestIDs)
	if err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error(), "deleted_count": deleted})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted_count": deleted})
}

// MarkPaid records a payment against one request.
func (h *Handlers) MarkPaid(c *gin.Context) {
	user := currentUser(c)

	if err := h.approval.MarkPaid(user, c.Param("id"), time.Now()); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": models.RequestStatusForPayment})
}

// Recategorize re-runs classification over all stored requests.
func (h *Handlers) Recategorize(c *gin.Context) {
	user := currentUser(c)
	if user.Role != models.RoleDeputyDirector && user.Role != models.RoleTreasury {
		c.JSON(http.StatusForbidden, gin.H{"error": "insufficient role for recategorization"})
		return
	}

	stats, err := h.categorizer.RecategorizeAll()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// ListNotifications returns the caller's notifications.
func (h *Handlers) ListNotifications(c *gin.Context) {
	user := currentUser(c)

	notifications, err := h.notifications.ListByUser(user.ID, intQuery(c, "limit", 50), intQuery(c, "skip", 0))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, notifications)
}

// UnreadCount returns the badge counter.
func (h *Handlers) UnreadCount(c *gin.Context) {
	user := currentUser(c)

	count, err := h.notifications.CountUnread(user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread_count": count})
}

// MarkNotificationRead flags one notification as read.
func (h *Handlers) MarkNotificationRead(c *gin.Context) {
	user := currentUser(c)

	if err := h.notifications.MarkRead(c.Param("id"), user.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"read": true})
}

func intQuery(c *gin.Context, name string, fallback int) int {
	v := c.Query(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
