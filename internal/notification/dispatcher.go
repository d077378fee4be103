package notification

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/finflow/expense-approval/internal/models"
	"github.com/finflow/expense-approval/pkg/utils"
)

// NotificationStore persists batch notification rows.
type NotificationStore interface {
	Create(n *models.BatchNotification) error
}

// DeputyDirectory lists the approvers a batch event fans out to.
type DeputyDirectory interface {
	ListActiveByRole(role models.Role) ([]*models.User, error)
}

// PendingWindow queries recently created pending requests for the
// single-submission batching window.
type PendingWindow interface {
	ListRecentPendingByCategory(category string, since time.Time) ([]*models.Request, error)
}

// Dispatcher aggregates newly created or imported requests and emits one
// summarized notification per approver instead of one per request.
//
// Delivery is best-effort: a failed notification write is logged and
// swallowed so the triggering action (the import, the submission) still
// succeeds.
type Dispatcher struct {
	notifications NotificationStore
	deputies      DeputyDirectory
	window        PendingWindow
	batchWindow   time.Duration
	logger        *zap.Logger
}

// NewDispatcher creates a dispatcher. batchWindow is the trailing look-back
// used to group near-simultaneous single submissions; one hour by default.
func NewDispatcher(
	notifications NotificationStore,
	deputies DeputyDirectory,
	window PendingWindow,
	batchWindow time.Duration,
	logger *zap.Logger,
) *Dispatcher {
	if batchWindow <= 0 {
		batchWindow = time.Hour
	}
	return &Dispatcher{
		notifications: notifications,
		deputies:      deputies,
		window:        window,
		batchWindow:   batchWindow,
		logger:        logger,
	}
}

// NotifyBatchForApproval persists one batch notification for one deputy.
func (d *Dispatcher) NotifyBatchForApproval(
	deputyID string,
	requestCount int,
	categories []string,
	totalAmount float64,
	importID string,
	initiator *models.User,
) (*models.BatchNotification, error) {
	n := &models.BatchNotification{
		ID:           uuid.NewString(),
		UserID:       deputyID,
		Type:         models.NotificationTypeBatchApproval,
		Title:        "Новые заявки на согласование",
		Message:      buildBatchMessage(requestCount, totalAmount, initiator),
		RequestCount: requestCount,
		Categories:   categories,
		TotalAmount:  totalAmount,
		ImportID:     importID,
	}

	if err := d.notifications.Create(n); err != nil {
		return nil, fmt.Errorf("create batch notification: %w", err)
	}

	return n, nil
}

// NotifyImportCompleted fans out one notification per active deputy director
// summarizing a finished import. Notification failures never fail the
// import; they are logged and swallowed here.
func (d *Dispatcher) NotifyImportCompleted(imp *models.Import, requests []*models.Request, initiator *models.User) {
	if len(requests) == 0 {
		return
	}

	deputies, err := d.deputies.ListActiveByRole(models.RoleDeputyDirector)
	if err != nil {
		d.logger.Error("Failed to list deputy directors for import notification",
			zap.String("import_id", imp.ID),
			zap.Error(err))
		return
	}

	var total float64
	for _, req := range requests {
		total += req.Amount
	}
	categories := uniqueCategories(requests)

	for _, deputy := range deputies {
		if _, err := d.NotifyBatchForApproval(deputy.ID, len(requests), categories, total, imp.ID, initiator); err != nil {
			d.logger.Error("Failed to notify deputy about import",
				zap.String("deputy_id", deputy.ID),
				zap.String("import_id", imp.ID),
				zap.Error(err))
		}
	}

	d.logger.Info("Import notification fan-out finished",
		zap.String("import_id", imp.ID),
		zap.Int("deputies", len(deputies)),
		zap.Int("requests", len(requests)))
}

// NotifySubmission handles the direct single-request path. All pending
// requests in the submitted category created within the trailing batch
// window are summarized into one notification per active deputy, so a burst
// of submissions produces a single notification instead of one each.
//
// Two near-simultaneous submissions racing on the window query may produce
// duplicate or skipped notifications; that is accepted, the path is not
// correctness-critical.
func (d *Dispatcher) NotifySubmission(req *models.Request, initiator *models.User) {
	since := time.Now().Add(-d.batchWindow)
	recent, err := d.window.ListRecentPendingByCategory(req.Category, since)
	if err != nil {
		d.logger.Error("Failed to query notification window",
			zap.String("category", req.Category),
			zap.Error(err))
		return
	}
	if len(recent) == 0 {
		return
	}

	deputies, err := d.deputies.ListActiveByRole(models.RoleDeputyDirector)
	if err != nil {
		d.logger.Error("Failed to list deputy directors for submission notification", zap.Error(err))
		return
	}

	var total float64
	for _, r := range recent {
		total += r.Amount
	}

	for _, deputy := range deputies {
		if _, err := d.NotifyBatchForApproval(deputy.ID, len(recent), []string{req.Category}, total, "", initiator); err != nil {
			d.logger.Error("Failed to notify deputy about submission",
				zap.String("deputy_id", deputy.ID),
				zap.String("category", req.Category),
				zap.Error(err))
		}
	}
}

func buildBatchMessage(requestCount int, totalAmount float64, initiator *models.User) string {
	name := ""
	if initiator != nil {
		name = initiator.FullName
	}
	if name == "" {
		name = "Сотрудник"
	}
	return fmt.Sprintf("%s отправил(а) на согласование %d заявок на общую сумму %s руб.",
		name, requestCount, utils.FormatAmount(totalAmount))
}

func uniqueCategories(requests []*models.Request) []string {
	seen := make(map[string]struct{})
	for _, req := range requests {
		seen[req.Category] = struct{}{}
	}
	categories := make([]string, 0, len(seen))
	for c := range seen {
		categories = append(categories, c)
	}
	sort.Strings(categories)
	return categories
}
