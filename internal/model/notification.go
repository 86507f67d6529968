package model

import "time"

type NotificationType string

const (
	NotificationBookingRequest   NotificationType = "booking_request"
	NotificationBookingApproved  NotificationType = "booking_approved"
	NotificationBookingRejected  NotificationType = "booking_rejected"
	NotificationBookingCancelled NotificationType = "booking_cancelled"
	NotificationTrainingDone     NotificationType = "training_completed"
	NotificationNoShow           NotificationType = "no_show"
	NotificationProposal         NotificationType = "proposal"
	NotificationProposalAnswer   NotificationType = "proposal_answer"
	NotificationProposalExpired  NotificationType = "proposal_expired"
	NotificationReminder         NotificationType = "reminder"
	NotificationUrgentReminder   NotificationType = "urgent_reminder"
)

type Notification struct {
	ID            int64            `json:"id"`
	UserID        int64            `json:"user_id"`
	Title         string           `json:"title"`
	Message       string           `json:"message"`
	Type          NotificationType `json:"type"`
	RelatedSlotID *int64           `json:"related_slot_id"`
	IsRead        bool             `json:"is_read"`
	CreatedAt     time.Time        `json:"created_at"`
}
