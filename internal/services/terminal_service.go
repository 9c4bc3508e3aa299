package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"

	"gorm.io/gorm"

	"sumup_pos_app/internal/models"
)

var (
	ErrInvalidPairingCode = errors.New("pairing code must be 8 or 9 letters or digits")
	ErrTerminalLinked     = errors.New("terminal is linked to a pos profile")
	ErrDebugModeRequired  = errors.New("debug logging must be enabled for this operation")
	ErrRecoveryModeOff    = errors.New("recovery mode is disabled in the sumup settings")
	ErrTerminalNotFound   = errors.New("terminal not found")
)

var (
	pairingCodePattern = regexp.MustCompile(`^[A-Z0-9]{8,9}$`)
	pairingSeparators  = regexp.MustCompile(`[\s-]+`)
)

// normalizePairingCode strips whitespace and dashes and upper-cases the rest,
// so codes the operator copies from the reader screen survive formatting.
func normalizePairingCode(raw string) (string, error) {
	code := strings.ToUpper(pairingSeparators.ReplaceAllString(raw, ""))
	if !pairingCodePattern.MatchString(code) {
		return "", ErrInvalidPairingCode
	}
	return code, nil
}

// FieldError is a per-field failure inside a batch entry.
type FieldError struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

// FailureEntry is one terminal that a batch operation could not process.
type FailureEntry struct {
	Name   string       `json:"name"`
	Error  string       `json:"error,omitempty"`
	Errors []FieldError `json:"errors,omitempty"`
}

// DebugDetail is one per-terminal diagnostic collected during a batch
// operation. Batch reports carry these only while debug logging is on; a
// terminal that partially refreshed still gets its field errors recorded
// here even though it does not count as failed.
type DebugDetail struct {
	Name   string       `json:"name"`
	Detail string       `json:"detail,omitempty"`
	Errors []FieldError `json:"errors,omitempty"`
}

// PairResult is the outcome of pairing a reader.
type PairResult struct {
	Terminal *models.Terminal `json:"terminal"`
	Existing bool             `json:"existing"`
	Message  string           `json:"message"`
}

// RefreshReport summarises a status refresh across terminals.
type RefreshReport struct {
	Updated      int            `json:"updated"`
	Failed       []FailureEntry `json:"failed,omitempty"`
	Message      string         `json:"message"`
	Indicator    string         `json:"indicator"`
	DebugEnabled bool           `json:"debug_enabled"`
	DebugDetails []DebugDetail  `json:"debug_details,omitempty"`
}

// RemoveReport is the outcome of unpairing a terminal.
type RemoveReport struct {
	RemoteDeleted bool   `json:"remote_deleted"`
	Message       string `json:"message"`
}

// RecoverReport summarises a registry recovery against the gateway.
type RecoverReport struct {
	Created      []string       `json:"created"`
	Updated      []string       `json:"updated"`
	Skipped      []string       `json:"skipped"`
	Failed       []FailureEntry `json:"failed,omitempty"`
	Message      string         `json:"message"`
	DebugEnabled bool           `json:"debug_enabled"`
	DebugDetails []DebugDetail  `json:"debug_details,omitempty"`
}

// TerminalService reconciles the local terminal registry with the readers
// known to the sumup merchant account.
type TerminalService struct {
	db     *gorm.DB
	client SumUpClient
}

func NewTerminalService(db *gorm.DB, client SumUpClient) *TerminalService {
	return &TerminalService{db: db, client: client}
}

// Pair registers a reader with the merchant account using the code shown on
// its screen. Pairing a reader that already has a local row updates that
// row instead of duplicating it.
func (s *TerminalService) Pair(ctx context.Context, name, rawCode, merchantOverride string) (*PairResult, error) {
	code, err := normalizePairingCode(rawCode)
	if err != nil {
		return nil, err
	}

	merchantCode, settings, err := requireMerchantContext(s.db)
	if err != nil {
		return nil, err
	}
	if merchantOverride != "" {
		// Pairing against a different merchant account is a diagnostic
		// escape hatch, only honoured with debug logging on.
		if !settings.EnableDebugLogging {
			return nil, ErrDebugModeRequired
		}
		merchantCode = merchantOverride
	}

	reader, err := s.client.CreateReader(ctx, merchantCode, code, name)
	if err != nil {
		return nil, fmt.Errorf("sumup pairing failed: %w", err)
	}
	if reader.ID == "" {
		return nil, errors.New("sumup did not return a reader id")
	}

	status := models.NormalizeConnectionStatus(reader.Status)

	var existing models.Terminal
	err = s.db.Where("terminal_id = ?", reader.ID).First(&existing).Error
	if err == nil {
		updates := map[string]interface{}{
			"terminal_name":     name,
			"merchant_code":     merchantCode,
			"connection_status": status,
		}
		if err := s.db.Model(&existing).Updates(updates).Error; err != nil {
			return nil, err
		}
		return &PairResult{
			Terminal: &existing,
			Existing: true,
			Message:  fmt.Sprintf("Reader %s was already paired; terminal updated.", reader.ID),
		}, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	terminal := models.Terminal{
		TerminalID:       reader.ID,
		TerminalName:     name,
		Enabled:          true,
		MerchantCode:     merchantCode,
		ConnectionStatus: status,
		OnlineStatus:     models.OnlineStatusUnknown,
		ActivityStatus:   models.ActivityStatusUnknown,
	}
	if err := s.db.Create(&terminal).Error; err != nil {
		return nil, err
	}
	return &PairResult{
		Terminal: &terminal,
		Message:  fmt.Sprintf("Terminal %s paired.", name),
	}, nil
}

// List returns all registered terminals.
func (s *TerminalService) List() ([]models.Terminal, error) {
	var terminals []models.Terminal
	if err := s.db.Order("terminal_name").Find(&terminals).Error; err != nil {
		return nil, err
	}
	return terminals, nil
}

// RefreshStatuses re-reads connection, online and activity status for the
// named terminals (all of them when names is empty). Each terminal is
// processed independently: one entry failing never stops the batch. With
// throwOnMissing false, terminals without a local row are skipped, which is
// how the scheduled refresh runs.
func (s *TerminalService) RefreshStatuses(ctx context.Context, names []string, throwOnMissing bool) (*RefreshReport, error) {
	merchantCode, settings, err := requireMerchantContext(s.db)
	if err != nil {
		return nil, err
	}

	var terminals []models.Terminal
	query := s.db
	if len(names) > 0 {
		query = query.Where("terminal_name IN ?", names)
	}
	if err := query.Find(&terminals).Error; err != nil {
		return nil, err
	}
	if throwOnMissing && len(names) > 0 && len(terminals) < len(names) {
		found := make(map[string]bool, len(terminals))
		for _, t := range terminals {
			found[t.TerminalName] = true
		}
		for _, name := range names {
			if !found[name] {
				return nil, fmt.Errorf("%w: %s", ErrTerminalNotFound, name)
			}
		}
	}

	// One list call answers connection status for the whole batch.
	readersByID := map[string]Reader{}
	readers, listErr := s.client.ListReaders(ctx, merchantCode)
	if listErr == nil {
		for _, r := range readers {
			readersByID[r.ID] = r
		}
	}

	report := &RefreshReport{DebugEnabled: settings.EnableDebugLogging}
	for _, terminal := range terminals {
		var fieldErrors []FieldError
		updates := map[string]interface{}{
			"connection_status": models.ConnectionStatusUnknown,
			"online_status":     models.OnlineStatusUnknown,
			"activity_status":   models.ActivityStatusUnknown,
		}

		if listErr != nil {
			fieldErrors = append(fieldErrors, FieldError{Field: "connection_status", Error: listErr.Error()})
		} else if reader, ok := readersByID[terminal.TerminalID]; ok {
			updates["connection_status"] = models.NormalizeConnectionStatus(reader.Status)
		} else {
			fieldErrors = append(fieldErrors, FieldError{Field: "connection_status", Error: "reader not found at sumup"})
		}

		device, err := s.client.GetReaderStatus(ctx, merchantCode, terminal.TerminalID)
		if err != nil {
			fieldErrors = append(fieldErrors,
				FieldError{Field: "online_status", Error: err.Error()},
				FieldError{Field: "activity_status", Error: err.Error()})
		} else {
			updates["online_status"] = models.NormalizeOnlineStatus(device.Status)
			updates["activity_status"] = models.NormalizeActivityStatus(device.ScreenState)
		}

		if report.DebugEnabled && len(fieldErrors) > 0 {
			report.DebugDetails = append(report.DebugDetails, DebugDetail{
				Name:   terminal.TerminalName,
				Errors: fieldErrors,
			})
		}

		allUnknown := updates["connection_status"] == models.ConnectionStatusUnknown &&
			updates["online_status"] == models.OnlineStatusUnknown &&
			updates["activity_status"] == models.ActivityStatusUnknown
		if allUnknown && len(fieldErrors) > 0 {
			report.Failed = append(report.Failed, FailureEntry{
				Name:   terminal.TerminalName,
				Errors: fieldErrors,
			})
			continue
		}

		if err := s.db.Model(&models.Terminal{}).Where("id = ?", terminal.ID).Updates(updates).Error; err != nil {
			report.Failed = append(report.Failed, FailureEntry{Name: terminal.TerminalName, Error: err.Error()})
			if report.DebugEnabled {
				report.DebugDetails = append(report.DebugDetails, DebugDetail{Name: terminal.TerminalName, Detail: err.Error()})
			}
			continue
		}
		report.Updated++
	}

	report.Message = fmt.Sprintf("Updated %d terminal(s), %d failed.", report.Updated, len(report.Failed))
	report.Indicator = "success"
	if len(report.Failed) > 0 {
		report.Indicator = "warning"
	}
	return report, nil
}

// assertUnlinked rejects deleting a terminal a pos profile still points at.
func (s *TerminalService) assertUnlinked(terminal *models.Terminal) error {
	var linked int64
	if err := s.db.Model(&models.POSProfile{}).Where("terminal_id = ?", terminal.ID).Count(&linked).Error; err != nil {
		return err
	}
	if linked > 0 {
		return ErrTerminalLinked
	}
	return nil
}

// removeTerminal unpairs one terminal: the reader is deleted at sumup first
// and the local row only when that succeeded.
func (s *TerminalService) removeTerminal(ctx context.Context, merchantCode string, terminal *models.Terminal) error {
	if err := s.assertUnlinked(terminal); err != nil {
		return err
	}
	if err := s.client.DeleteReader(ctx, merchantCode, terminal.TerminalID); err != nil {
		return fmt.Errorf("sumup reader deletion failed: %w", err)
	}
	return s.db.Delete(terminal).Error
}

// Remove unpairs a single terminal by its local id.
func (s *TerminalService) Remove(ctx context.Context, terminalID uint) (*RemoveReport, error) {
	var terminal models.Terminal
	if err := s.db.First(&terminal, terminalID).Error; err != nil {
		return nil, ErrTerminalNotFound
	}
	merchantCode, _, err := requireMerchantContext(s.db)
	if err != nil {
		return nil, err
	}
	if err := s.removeTerminal(ctx, merchantCode, &terminal); err != nil {
		return nil, err
	}
	return &RemoveReport{
		RemoteDeleted: true,
		Message:       fmt.Sprintf("Terminal %s removed.", terminal.TerminalName),
	}, nil
}

// RemoveBatchReport summarises a batch removal. One terminal failing leaves
// its row intact while the rest proceed.
type RemoveBatchReport struct {
	Removed      []string       `json:"removed"`
	Failed       []FailureEntry `json:"failed,omitempty"`
	Message      string         `json:"message"`
	DebugEnabled bool           `json:"debug_enabled"`
	DebugDetails []DebugDetail  `json:"debug_details,omitempty"`
}

func (r *RemoveBatchReport) fail(name string, err error) {
	r.Failed = append(r.Failed, FailureEntry{Name: name, Error: err.Error()})
	if r.DebugEnabled {
		r.DebugDetails = append(r.DebugDetails, DebugDetail{Name: name, Detail: err.Error()})
	}
}

// RemoveMany unpairs the named terminals independently of each other.
func (s *TerminalService) RemoveMany(ctx context.Context, names []string) (*RemoveBatchReport, error) {
	merchantCode, settings, err := requireMerchantContext(s.db)
	if err != nil {
		return nil, err
	}

	report := &RemoveBatchReport{Removed: []string{}, DebugEnabled: settings.EnableDebugLogging}
	for _, name := range names {
		var terminal models.Terminal
		if err := s.db.Where("terminal_name = ?", name).First(&terminal).Error; err != nil {
			report.fail(name, ErrTerminalNotFound)
			continue
		}
		if err := s.removeTerminal(ctx, merchantCode, &terminal); err != nil {
			report.fail(name, err)
			continue
		}
		report.Removed = append(report.Removed, name)
	}
	report.Message = fmt.Sprintf("Removed %d terminal(s), %d failed.", len(report.Removed), len(report.Failed))
	return report, nil
}

// ForceRemoveMany deletes the named rows locally without touching the
// merchant account. Debug-gated like ForceRemove.
func (s *TerminalService) ForceRemoveMany(names []string) (*RemoveBatchReport, error) {
	settings, err := GetSettings(s.db)
	if err != nil {
		return nil, err
	}
	if !settings.EnableDebugLogging {
		return nil, ErrDebugModeRequired
	}

	// ForceRemoveMany only runs with debug logging on, so its report always
	// carries the details.
	report := &RemoveBatchReport{Removed: []string{}, DebugEnabled: true}
	for _, name := range names {
		var terminal models.Terminal
		if err := s.db.Where("terminal_name = ?", name).First(&terminal).Error; err != nil {
			report.fail(name, ErrTerminalNotFound)
			continue
		}
		if err := s.assertUnlinked(&terminal); err != nil {
			report.fail(name, err)
			continue
		}
		if err := s.db.Delete(&terminal).Error; err != nil {
			report.fail(name, err)
			continue
		}
		report.Removed = append(report.Removed, name)
	}
	report.Message = fmt.Sprintf("Removed %d terminal(s) locally, %d failed. SumUp readers were not touched.",
		len(report.Removed), len(report.Failed))
	return report, nil
}

// ForceRemove deletes the local row without touching the merchant account.
// Meant for rows whose reader is already gone at sumup; gated behind debug
// logging so it cannot be reached accidentally.
func (s *TerminalService) ForceRemove(terminalID uint) (*RemoveReport, error) {
	settings, err := GetSettings(s.db)
	if err != nil {
		return nil, err
	}
	if !settings.EnableDebugLogging {
		return nil, ErrDebugModeRequired
	}

	var terminal models.Terminal
	if err := s.db.First(&terminal, terminalID).Error; err != nil {
		return nil, ErrTerminalNotFound
	}
	if err := s.assertUnlinked(&terminal); err != nil {
		return nil, err
	}
	if err := s.db.Delete(&terminal).Error; err != nil {
		return nil, err
	}
	return &RemoveReport{
		RemoteDeleted: false,
		Message:       fmt.Sprintf("Terminal %s removed locally; the sumup reader was not touched.", terminal.TerminalName),
	}, nil
}

// Recover rebuilds the local registry from the readers registered at the
// merchant account: missing rows are created, renamed readers are updated,
// rows that match are skipped. Gated behind recovery mode in the settings.
func (s *TerminalService) Recover(ctx context.Context) (*RecoverReport, error) {
	merchantCode, settings, err := requireMerchantContext(s.db)
	if err != nil {
		return nil, err
	}
	if !settings.EnableRecoveryMode {
		return nil, ErrRecoveryModeOff
	}

	readers, err := s.client.ListReaders(ctx, merchantCode)
	if err != nil {
		return nil, fmt.Errorf("sumup reader listing failed: %w", err)
	}

	report := &RecoverReport{
		Created:      []string{},
		Updated:      []string{},
		Skipped:      []string{},
		DebugEnabled: settings.EnableDebugLogging,
	}
	recordFailure := func(name string, err error) {
		report.Failed = append(report.Failed, FailureEntry{Name: name, Error: err.Error()})
		if report.DebugEnabled {
			report.DebugDetails = append(report.DebugDetails, DebugDetail{Name: name, Detail: err.Error()})
		}
	}
	for _, reader := range readers {
		if reader.ID == "" {
			continue
		}
		name := reader.Name
		if name == "" {
			name = reader.ID
		}

		var existing models.Terminal
		err := s.db.Where("terminal_id = ?", reader.ID).First(&existing).Error
		switch {
		case err == nil:
			if existing.TerminalName == name {
				report.Skipped = append(report.Skipped, name)
				continue
			}
			if uerr := s.db.Model(&existing).Update("terminal_name", name).Error; uerr != nil {
				recordFailure(name, uerr)
				continue
			}
			report.Updated = append(report.Updated, name)
		case errors.Is(err, gorm.ErrRecordNotFound):
			terminal := models.Terminal{
				TerminalID:       reader.ID,
				TerminalName:     name,
				Enabled:          true,
				MerchantCode:     merchantCode,
				ConnectionStatus: models.NormalizeConnectionStatus(reader.Status),
				OnlineStatus:     models.OnlineStatusUnknown,
				ActivityStatus:   models.ActivityStatusUnknown,
			}
			if cerr := s.db.Create(&terminal).Error; cerr != nil {
				recordFailure(name, cerr)
				continue
			}
			report.Created = append(report.Created, name)
		default:
			recordFailure(name, err)
		}
	}

	report.Message = fmt.Sprintf("Recovered terminals: %d created, %d updated, %d skipped, %d failed.",
		len(report.Created), len(report.Updated), len(report.Skipped), len(report.Failed))
	log.Printf("terminal recovery: %s", report.Message)
	return report, nil
}
