package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/freelancehub/backend/internal/models"
	"github.com/freelancehub/backend/pkg/logger"
	"github.com/freelancehub/backend/pkg/metrics"
	"github.com/freelancehub/backend/pkg/response"
	"gorm.io/gorm"
)

type CreateContractRequest struct {
	ProjectID           string  `json:"project_id"`
	FreelancerID        string  `json:"freelancer_id"`
	ClientID            string  `json:"client_id"`
	Title               string  `json:"title"`
	Scope               string  `json:"scope"`
	Deliverables        string  `json:"deliverables"`
	PaymentTerms        string  `json:"payment_terms"`
	HourlyRate          float64 `json:"hourly_rate"`
	FixedPrice          float64 `json:"fixed_price"`
	RevisionPolicy      string  `json:"revision_policy"`
	EnableBillableHours bool    `json:"enable_billable_hours"`
	MaxBillableHours    float64 `json:"max_billable_hours"`
	PaymentPolicy       string  `json:"payment_policy"`
	FreelancerSignature string  `json:"freelancer_signature"`
}

type SignContractResult struct {
	Contract       *models.Contract `json:"contract"`
	FullySigned    bool             `json:"fully_signed"`
	PendingParties []string         `json:"pending_parties"`
	Invoice        *models.Invoice  `json:"invoice,omitempty"`
	Warnings       []string         `json:"warnings,omitempty"`
}

// ContractService drives a contract through pending, active and its
// terminal states.
type ContractService struct {
	db      *gorm.DB
	effects EffectSink
	now     func() time.Time
}

func NewContractService(db *gorm.DB, effects EffectSink) *ContractService {
	return &ContractService{db: db, effects: effects, now: time.Now}
}

func (s *ContractService) Create(ctx context.Context, req *CreateContractRequest, callerID string) (*models.Contract, []string, error) {
	var missing []string
	for _, f := range []struct{ name, value string }{
		{"project_id", req.ProjectID},
		{"freelancer_id", req.FreelancerID},
		{"client_id", req.ClientID},
		{"title", req.Title},
		{"scope", req.Scope},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return nil, nil, response.NewValidation("missing required fields: " + strings.Join(missing, ", "))
	}
	if req.MaxBillableHours < 0 || req.FixedPrice < 0 || req.HourlyRate < 0 {
		return nil, nil, response.NewValidation("amounts must be >= 0")
	}

	now := s.now()
	var contract *models.Contract
	var effects []Effect

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		project, err := loadProject(tx, req.ProjectID)
		if err != nil {
			return err
		}
		if project.FreelancerID != callerID || req.FreelancerID != callerID {
			return response.NewForbidden("only the project freelancer can create its contract")
		}
		if project.ClientID != "" && project.ClientID != req.ClientID {
			return response.NewValidation("client_id does not match the project client")
		}
		if project.ContractID != nil {
			if existing, err := loadContract(tx, *project.ContractID); err == nil && !existing.IsTerminal() {
				return response.NewConflict("project already has an open contract")
			}
		}

		client := loadUser(tx, req.ClientID)
		if client == nil {
			return response.NewNotFound("client not found")
		}
		if project.ClientEmail != "" && !strings.EqualFold(project.ClientEmail, client.Email) {
			return response.NewValidation("client does not match the invited client email")
		}

		policy := req.PaymentPolicy
		if policy == "" {
			policy = project.PaymentPolicy
		}
		if policy == "" {
			policy = models.PaymentPolicyMilestone
		}
		if policy != models.PaymentPolicyMilestone && policy != models.PaymentPolicyEnd {
			return response.NewValidation("payment_policy must be milestone or end")
		}

		signature := strings.TrimSpace(req.FreelancerSignature)
		if signature == "" {
			if freelancer := loadUser(tx, callerID); freelancer != nil {
				signature = freelancer.Name
			}
		}

		var milestones []models.Milestone
		if err := tx.Where("project_id = ?", project.ID).Order("position ASC").Find(&milestones).Error; err != nil {
			return err
		}
		snapshot := make([]models.ContractMilestone, 0, len(milestones))
		for _, m := range milestones {
			snapshot = append(snapshot, models.ContractMilestone{
				ID:          m.ID,
				Title:       m.Title,
				Description: m.Description,
				Amount:      m.Amount,
				Percentage:  m.Percentage,
				DueDate:     m.DueDate,
			})
		}

		hourlyRate := req.HourlyRate
		if hourlyRate == 0 {
			hourlyRate = project.HourlyRate
		}

		contract = &models.Contract{
			ProjectID:           project.ID,
			FreelancerID:        callerID,
			ClientID:            req.ClientID,
			Title:               strings.TrimSpace(req.Title),
			Scope:               req.Scope,
			Deliverables:        req.Deliverables,
			PaymentTerms:        req.PaymentTerms,
			HourlyRate:          hourlyRate,
			FixedPrice:          req.FixedPrice,
			Milestones:          snapshot,
			RevisionPolicy:      req.RevisionPolicy,
			EnableBillableHours: req.EnableBillableHours,
			MaxBillableHours:    req.MaxBillableHours,
			PaymentPolicy:       policy,
			Status:              models.ContractPending,
			FreelancerSignature: signature,
			FreelancerSignedAt:  &now,
		}
		if err := tx.Create(contract).Error; err != nil {
			return fmt.Errorf("create contract: %w", err)
		}

		updates := map[string]interface{}{
			"contract_id":     contract.ID,
			"contract_status": models.ContractPending,
			"status":          models.ProjectPendingApproval,
			"payment_policy":  policy,
		}
		if project.ClientID == "" {
			updates["client_id"] = client.ID
		}
		if project.ClientEmail == "" {
			updates["client_email"] = client.Email
		}
		if err := tx.Model(project).Updates(updates).Error; err != nil {
			return err
		}

		effects = []Effect{
			auditEffect(AuditEntry{
				EventType:  "contract_created",
				ActorID:    callerID,
				EntityType: "contract",
				EntityID:   contract.ID,
				Message:    "Contract " + contract.Title + " created",
				Details:    map[string]interface{}{"project_id": project.ID},
			}),
			notifyEffect(NotifyInput{
				UserID:    client.ID,
				Type:      models.NotifyContractCreated,
				Title:     "Contract ready for signature",
				Message:   fmt.Sprintf("%q is waiting for your signature.", contract.Title),
				ProjectID: &project.ID,
			}),
			emailEffect(simpleEmail(client.Email, "Contract ready for signature: "+contract.Title,
				"Contract ready for signature",
				fmt.Sprintf("A contract for project %q has been signed by the freelancer and is waiting for your signature.", project.Title))),
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return contract, s.effects.Dispatch(ctx, effects), nil
}

func (s *ContractService) Sign(ctx context.Context, contractID, userID, userType, signature string) (*SignContractResult, error) {
	if userType != models.RoleFreelancer && userType != models.RoleClient {
		return nil, response.NewValidation("user_type must be freelancer or client")
	}

	contract, err := loadContract(s.db.WithContext(ctx), contractID)
	if err != nil {
		return nil, err
	}
	if (userType == models.RoleFreelancer && contract.FreelancerID != userID) ||
		(userType == models.RoleClient && contract.ClientID != userID) {
		return nil, response.NewForbidden("you are not the " + userType + " on this contract")
	}
	if contract.IsTerminal() {
		return nil, response.NewValidation("contract is " + contract.Status)
	}
	if alreadySigned(contract, userType) {
		return signResult(contract, nil, nil), nil
	}
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return nil, response.NewValidation("signature is required")
	}

	now := s.now()
	var invoice *models.Invoice
	var effects []Effect
	var warnings []string

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sigCol, atCol := "freelancer_signature", "freelancer_signed_at"
		if userType == models.RoleClient {
			sigCol, atCol = "client_signature", "client_signed_at"
		}
		res := tx.Model(&models.Contract{}).
			Where("id = ? AND status = ? AND "+atCol+" IS NULL", contract.ID, models.ContractPending).
			Updates(map[string]interface{}{sigCol: signature, atCol: now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errSignatureRaced
		}

		fresh, err := loadContract(tx, contract.ID)
		if err != nil {
			return err
		}
		contract = fresh

		effects = append(effects, auditEffect(AuditEntry{
			EventType:  "contract_signed",
			ActorID:    userID,
			EntityType: "contract",
			EntityID:   contract.ID,
			Message:    "Contract signed by " + userType,
		}))

		if !contract.IsFullySigned() {
			other := contract.ClientID
			if userType == models.RoleClient {
				other = contract.FreelancerID
			}
			effects = append(effects, notifyEffect(NotifyInput{
				UserID:    other,
				Type:      models.NotifyContractSigned,
				Title:     "Contract signed",
				Message:   fmt.Sprintf("The %s signed %q. Your signature is still pending.", userType, contract.Title),
				ProjectID: &contract.ProjectID,
			}))
			return nil
		}

		activated, err := s.activate(tx, contract, now)
		if err != nil {
			return err
		}
		invoice = activated.invoice
		warnings = append(warnings, activated.warnings...)
		effects = append(effects, activated.effects...)
		return nil
	})
	if errors.Is(err, errSignatureRaced) {
		// another request signed for this party first
		current, loadErr := loadContract(s.db.WithContext(ctx), contract.ID)
		if loadErr != nil {
			return nil, loadErr
		}
		if alreadySigned(current, userType) {
			return signResult(current, nil, nil), nil
		}
		return nil, response.NewConflict("contract was modified concurrently, please retry")
	}
	if err != nil {
		return nil, err
	}

	if invoice != nil {
		metrics.IncInvoiceCreated(invoice.Source)
	}
	warnings = append(warnings, s.effects.Dispatch(ctx, effects)...)
	return signResult(contract, invoice, warnings), nil
}

var errSignatureRaced = errors.New("signature slot already taken")

func alreadySigned(c *models.Contract, userType string) bool {
	if userType == models.RoleFreelancer {
		return c.FreelancerSignedAt != nil
	}
	return c.ClientSignedAt != nil
}

func signResult(c *models.Contract, inv *models.Invoice, warnings []string) *SignContractResult {
	return &SignContractResult{
		Contract:       c,
		FullySigned:    c.IsFullySigned(),
		PendingParties: c.PendingParties(),
		Invoice:        inv,
		Warnings:       warnings,
	}
}

type activation struct {
	invoice  *models.Invoice
	effects  []Effect
	warnings []string
}

// activate moves a fully signed contract and its project to active and
// raises the signing-time invoice, if the payment policy calls for one.
func (s *ContractService) activate(tx *gorm.DB, contract *models.Contract, now time.Time) (*activation, error) {
	res := tx.Model(&models.Contract{}).
		Where("id = ? AND status = ?", contract.ID, models.ContractPending).
		Update("status", models.ContractActive)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, response.NewConflict("contract is no longer pending")
	}
	contract.Status = models.ContractActive

	project, err := loadProject(tx, contract.ProjectID)
	if err != nil {
		return nil, err
	}
	if err := tx.Model(project).Updates(map[string]interface{}{
		"status":          models.ProjectActive,
		"contract_status": models.ContractActive,
		"contract_id":     contract.ID,
	}).Error; err != nil {
		return nil, err
	}

	out := &activation{}
	out.effects = append(out.effects,
		Effect{Kind: EffectContractPDF, ContractID: contract.ID},
		auditEffect(AuditEntry{
			EventType:  "contract_activated",
			EntityType: "contract",
			EntityID:   contract.ID,
			Message:    "Contract fully signed and active",
		}),
	)
	for _, uid := range []string{contract.FreelancerID, contract.ClientID} {
		out.effects = append(out.effects, notifyEffect(NotifyInput{
			UserID:    uid,
			Type:      models.NotifyContractSigned,
			Title:     "Contract active",
			Message:   fmt.Sprintf("%q has been signed by both parties. Work can begin.", contract.Title),
			ProjectID: &project.ID,
		}))
	}

	req, milestone, err := s.signingInvoiceRequest(tx, contract, project, now)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return out, nil
	}

	// The invoice is created under a savepoint so that a failure leaves the
	// contract active.
	err = tx.Transaction(func(sp *gorm.DB) error {
		inv, invEffects, err := createInvoiceTx(sp, req, now)
		if err != nil {
			return err
		}
		if milestone != nil {
			res := sp.Model(&models.Milestone{}).
				Where("id = ? AND version = ?", milestone.ID, milestone.Version).
				Updates(map[string]interface{}{
					"status":     models.MilestoneInvoiced,
					"invoice_id": inv.ID,
					"version":    milestone.Version + 1,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return response.NewConflict("milestone was modified concurrently")
			}
		}
		out.invoice = inv
		out.effects = append(out.effects, invEffects...)
		return nil
	})
	if err != nil {
		logger.Warn().Err(err).Str("contract_id", contract.ID).Msg("signing invoice generation failed")
		out.warnings = append(out.warnings, "invoice generation failed: "+err.Error())
	}
	return out, nil
}

// signingInvoiceRequest decides what is billed the moment a contract becomes
// active. A nil request means nothing is billed yet.
func (s *ContractService) signingInvoiceRequest(tx *gorm.DB, contract *models.Contract, project *models.Project, now time.Time) (*CreateInvoiceRequest, *models.Milestone, error) {
	var milestones []models.Milestone
	if err := tx.Where("project_id = ?", project.ID).Find(&milestones).Error; err != nil {
		return nil, nil, err
	}
	sort.SliceStable(milestones, func(i, j int) bool { return milestones[i].Position < milestones[j].Position })

	clientEmail := project.ClientEmail
	if clientEmail == "" {
		if client := loadUser(tx, contract.ClientID); client != nil {
			clientEmail = client.Email
		}
	}
	due := defaultDueDate(project, now)
	base := CreateInvoiceRequest{
		ProjectID:    &project.ID,
		FreelancerID: project.FreelancerID,
		ClientID:     contract.ClientID,
		ClientEmail:  clientEmail,
		TaxRate:      project.TaxRate,
		IssueDate:    &now,
		DueDate:      &due,
	}

	if len(milestones) == 0 {
		if contract.FixedPrice <= 0 {
			return nil, nil, nil
		}
		base.LineItems = []LineItemInput{{Description: contract.Title, Quantity: 1, Rate: contract.FixedPrice}}
		base.Source = models.InvoiceSourceContract
		return &base, nil, nil
	}

	policy := contract.PaymentPolicy
	if policy == "" {
		policy = project.PaymentPolicy
	}
	if policy != models.PaymentPolicyMilestone {
		// end policy bills everything in the completion invoice
		return nil, nil, nil
	}

	first := milestones[0]
	if first.InvoiceID != nil {
		return nil, nil, nil
	}
	base.MilestoneID = &first.ID
	base.LineItems = []LineItemInput{milestoneLine(&first)}
	base.Source = models.InvoiceSourceContract
	return &base, &first, nil
}

func milestoneLine(m *models.Milestone) LineItemInput {
	desc := m.Title
	if d := strings.TrimSpace(m.Description); d != "" {
		desc += " - " + d
	}
	return LineItemInput{Description: desc, Quantity: 1, Rate: m.Amount}
}

type RejectContractRequest struct {
	Reasons  []string `json:"reasons"`
	Comments string   `json:"comments"`
}

func (s *ContractService) Reject(ctx context.Context, contractID, userID string, req *RejectContractRequest) (*models.Contract, []string, error) {
	contract, err := loadContract(s.db.WithContext(ctx), contractID)
	if err != nil {
		return nil, nil, err
	}
	if contract.ClientID != userID || contract.ClientSignedAt != nil || contract.Status != models.ContractPending {
		return nil, nil, response.NewForbidden("only the client can reject a contract awaiting their signature")
	}

	now := s.now()
	var freelancer *models.User
	var project *models.Project

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Contract{}).
			Where("id = ? AND status = ? AND client_signed_at IS NULL", contract.ID, models.ContractPending).
			Select("status", "rejection_reasons", "rejection_comments", "rejected_at").
			Updates(&models.Contract{
				Status:            models.ContractRejected,
				RejectionReasons:  req.Reasons,
				RejectionComments: req.Comments,
				RejectedAt:        &now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return response.NewConflict("contract was modified concurrently, please retry")
		}

		var err error
		project, err = loadProject(tx, contract.ProjectID)
		if err != nil {
			return err
		}
		if err := tx.Model(project).Updates(map[string]interface{}{
			"status":          models.ProjectContractRejected,
			"contract_status": models.ContractRejected,
		}).Error; err != nil {
			return err
		}
		if err := tx.Where("project_id = ?", project.ID).Delete(&models.Invitation{}).Error; err != nil {
			return err
		}
		freelancer = loadUser(tx, contract.FreelancerID)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	contract.Status = models.ContractRejected
	contract.RejectionReasons = req.Reasons
	contract.RejectionComments = req.Comments
	contract.RejectedAt = &now

	reasonText := strings.Join(req.Reasons, ", ")
	effects := []Effect{
		notifyEffect(NotifyInput{
			UserID:    contract.FreelancerID,
			Type:      models.NotifyContractRejected,
			Title:     "Contract rejected",
			Message:   fmt.Sprintf("The client rejected %q. %s", contract.Title, reasonText),
			ProjectID: &contract.ProjectID,
		}),
		auditEffect(AuditEntry{
			EventType:  "contract_rejected",
			ActorID:    userID,
			EntityType: "contract",
			EntityID:   contract.ID,
			Message:    "Contract rejected by client",
			Details:    map[string]interface{}{"reasons": req.Reasons, "comments": req.Comments},
		}),
	}
	if freelancer != nil {
		effects = append(effects, emailEffect(simpleEmail(freelancer.Email, "Contract rejected: "+contract.Title,
			"Contract rejected",
			fmt.Sprintf("The client rejected the contract for project %q.", project.Title),
			"Reasons: "+reasonText,
			req.Comments)))
	}

	return contract, s.effects.Dispatch(ctx, effects), nil
}

// UpdateStatus closes an active contract.
func (s *ContractService) UpdateStatus(ctx context.Context, contractID string, v Viewer, status string) (*models.Contract, []string, error) {
	if status != models.ContractCompleted && status != models.ContractTerminated {
		return nil, nil, response.NewValidation("status must be completed or terminated")
	}
	contract, err := loadContract(s.db.WithContext(ctx), contractID)
	if err != nil {
		return nil, nil, err
	}
	if !v.IsAdmin() && contract.FreelancerID != v.ID && contract.ClientID != v.ID {
		return nil, nil, response.NewForbidden("you are not a party to this contract")
	}
	if contract.Status != models.ContractActive {
		return nil, nil, response.NewValidation("only active contracts can be " + status)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Contract{}).
			Where("id = ? AND status = ?", contract.ID, models.ContractActive).
			Update("status", status)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return response.NewConflict("contract was modified concurrently, please retry")
		}
		updates := map[string]interface{}{"contract_status": status}
		if status == models.ContractTerminated {
			updates["status"] = models.ProjectCancelled
		}
		return tx.Model(&models.Project{}).Where("id = ?", contract.ProjectID).Updates(updates).Error
	})
	if err != nil {
		return nil, nil, err
	}
	contract.Status = status

	warnings := s.effects.Dispatch(ctx, []Effect{auditEffect(AuditEntry{
		EventType:  "contract_" + status,
		ActorID:    v.ID,
		EntityType: "contract",
		EntityID:   contract.ID,
		Message:    "Contract " + status,
	})})
	return contract, warnings, nil
}

func (s *ContractService) Get(ctx context.Context, contractID string, v Viewer) (*models.Contract, error) {
	contract, err := loadContract(s.db.WithContext(ctx), contractID)
	if err != nil {
		return nil, err
	}
	if !v.IsAdmin() && contract.FreelancerID != v.ID && contract.ClientID != v.ID {
		return nil, response.NewForbidden("you are not a party to this contract")
	}
	return contract, nil
}

func (s *ContractService) Delete(ctx context.Context, contractID string, v Viewer) error {
	if !v.IsAdmin() {
		return response.NewForbidden("only admins can delete contracts")
	}
	contract, err := loadContract(s.db.WithContext(ctx), contractID)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Project{}).Where("contract_id = ?", contract.ID).
			Updates(map[string]interface{}{"contract_id": nil, "contract_status": ""}).Error; err != nil {
			return err
		}
		return tx.Delete(contract).Error
	})
	if err != nil {
		return err
	}

	s.effects.Dispatch(ctx, []Effect{auditEffect(AuditEntry{
		EventType:  "contract_deleted",
		ActorID:    v.ID,
		EntityType: "contract",
		EntityID:   contract.ID,
		Message:    "Contract " + contract.Title + " deleted",
	})})
	return nil
}
