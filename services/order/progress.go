package order

import (
	"context"
	"fmt"
	"time"

	"washflow/models"
	"washflow/utils"

	"go.uber.org/zap"
)

func (s *DefaultOrderService) AcceptOrder(ctx context.Context, by models.Caller, orderID string) (*models.Order, error) {
	return s.advance(ctx, by, orderID, models.StatusProviderAccepted, nil)
}

func (s *DefaultOrderService) MarkEnRoute(ctx context.Context, by models.Caller, orderID string) (*models.Order, error) {
	return s.advance(ctx, by, orderID, models.StatusEnRoute, func(o *models.Order) error {
		if o.Schedule.Mode != models.ModeMobile {
			return utils.NewValidationError("en_route_mobile_only", "only mobile orders go en route")
		}
		return nil
	})
}

// CheckIn stamps the actual start time. Mobile orders must be en route first.
func (s *DefaultOrderService) CheckIn(ctx context.Context, by models.Caller, orderID string) (*models.Order, error) {
	o, err := s.advance(ctx, by, orderID, models.StatusCheckIn, func(o *models.Order) error {
		if o.Schedule.Mode == models.ModeMobile && o.Status != models.StatusEnRoute {
			return utils.NewPreconditionError("en_route_required", "mobile orders check in after going en route")
		}
		now := s.Clock.Now()
		o.ActualStartTime = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.markSlot(ctx, o, models.SlotInProgress)
	return o, nil
}

// StartWork opens the first work step.
func (s *DefaultOrderService) StartWork(ctx context.Context, by models.Caller, orderID string) (*models.Order, error) {
	return s.advance(ctx, by, orderID, models.StatusInProgress, func(o *models.Order) error {
		if len(o.Steps) == 0 {
			return utils.NewInconsistentError("no_work_steps", "order has no work steps")
		}
		now := s.Clock.Now()
		o.Steps[0].Status = models.StepInProgress
		o.Steps[0].StartedAt = &now
		return nil
	})
}

// UpdateWorkStep attaches photos or notes to the current step and, on
// complete or skip, starts the next pending one.
func (s *DefaultOrderService) UpdateWorkStep(ctx context.Context, by models.Caller, orderID string, index int, update StepUpdate) (*models.Order, error) {
	return s.withOrder(ctx, orderID, func(o *models.Order) error {
		if err := authorize(o, by, models.RoleProvider); err != nil {
			return err
		}
		if o.Status != models.StatusInProgress {
			return utils.NewPreconditionError("not_in_progress", "work steps change only while the order is in progress")
		}
		if index < 0 || index >= len(o.Steps) {
			return utils.NewValidationError("step_invalid", fmt.Sprintf("order has no step %d", index))
		}
		step := &o.Steps[index]
		if step.Status != models.StepInProgress {
			return utils.NewPreconditionError("step_not_current", fmt.Sprintf("step %d is %s", index, step.Status))
		}

		step.Photos = append(step.Photos, update.Photos...)
		if update.Notes != "" {
			step.Notes = update.Notes
		}
		now := s.Clock.Now()
		switch update.Action {
		case StepAttach:
		case StepComplete:
			if step.RequiresPhoto && len(step.Photos) == 0 {
				return utils.NewValidationError("step_photo_required", fmt.Sprintf("step %q needs a photo", step.Name))
			}
			if step.RequiresNotes && step.Notes == "" {
				return utils.NewValidationError("step_notes_required", fmt.Sprintf("step %q needs notes", step.Name))
			}
			step.Status = models.StepCompleted
			step.CompletedAt = &now
		case StepSkip:
			if !step.Optional {
				return utils.NewValidationError("step_not_optional", fmt.Sprintf("step %q cannot be skipped", step.Name))
			}
			step.Status = models.StepSkipped
			step.CompletedAt = &now
		default:
			return utils.NewValidationError("step_action_invalid", "action must be attach, complete or skip")
		}

		if step.Done() {
			startNextStep(o, index, now)
		}
		o.UpdatedAt = now
		return s.save(ctx, o)
	})
}

func startNextStep(o *models.Order, after int, now time.Time) {
	for i := after + 1; i < len(o.Steps); i++ {
		if o.Steps[i].Status == models.StepPending {
			o.Steps[i].Status = models.StepInProgress
			o.Steps[i].StartedAt = &now
			return
		}
	}
}

// SubmitQA closes the work and starts the driver's review window.
func (s *DefaultOrderService) SubmitQA(ctx context.Context, by models.Caller, orderID string, sub QASubmission) (*models.Order, error) {
	o, err := s.advance(ctx, by, orderID, models.StatusQAPending, func(o *models.Order) error {
		if o.Status != models.StatusInProgress {
			return utils.NewPreconditionError("invalid_transition", fmt.Sprintf("cannot submit QA from %s", o.Status))
		}
		if !o.AllStepsDone() {
			return utils.NewPreconditionError("steps_incomplete", "every work step must be completed before QA")
		}
		if len(sub.Photos) < o.QA.RequiredPhotos {
			return utils.NewValidationError("qa_photos_missing",
				fmt.Sprintf("QA needs %d photos, got %d", o.QA.RequiredPhotos, len(sub.Photos)))
		}
		if missing := missingChecklist(o.Package.QAChecklist, sub.Checklist); missing != "" {
			return utils.NewValidationError("qa_checklist_incomplete", "checklist item missing: "+missing)
		}

		now := s.Clock.Now()
		deadline := now.Add(s.Policy.QAWindow)
		o.QA.SubmittedPhotos = sub.Photos
		o.QA.Checklist = sub.Checklist
		o.QA.Approval = models.QAPendingAppr
		o.QA.SubmittedAt = &now
		o.QA.AutoApproveAt = &deadline
		o.QA.ApprovedAt = nil
		o.ActualEndTime = &now
		if o.ActualStartTime != nil {
			o.ActualDuration = int(now.Sub(*o.ActualStartTime).Minutes())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.markSlot(ctx, o, models.SlotCompleted)
	if s.Scheduler != nil {
		if err := s.Scheduler.ScheduleAutoApproval(ctx, o.ID, *o.QA.AutoApproveAt); err != nil {
			// The recovery sweep picks the order up from its persisted deadline.
			s.Logger.Warn("failed to schedule auto-approval", zap.String("orderId", o.ID), zap.Error(err))
		}
	}
	return o, nil
}

func missingChecklist(required []string, got []models.ChecklistItem) string {
	seen := make(map[string]bool, len(got))
	for _, item := range got {
		seen[item.Item] = true
	}
	for _, r := range required {
		if !seen[r] {
			return r
		}
	}
	return ""
}

// markSlot mirrors work progress onto the lane slot. The slot status is
// informational, so failures are logged only.
func (s *DefaultOrderService) markSlot(ctx context.Context, o *models.Order, status models.SlotStatus) {
	if o.Schedule.Mode != models.ModeShop {
		return
	}
	if err := s.Slots.MarkSlot(ctx, o.Schedule.LaneID, o.Schedule.Date, o.Schedule.StartMinute, o.ID, status); err != nil {
		s.Logger.Warn("failed to mark slot", zap.String("orderId", o.ID), zap.String("status", string(status)), zap.Error(err))
	}
}
