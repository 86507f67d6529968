package model

import "time"

// TrainingSlot is a half-open interval [StartTime, EndTime) on the trainer's calendar.
type TrainingSlot struct {
	ID          int64     `json:"id"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	Notes       *string   `json:"notes"`
	IsAvailable bool      `json:"is_available"` // флаг для календаря, истина - в активных бронированиях
	CreatedAt   time.Time `json:"created_at"`
}

// Overlaps checks whether the slot intersects [from, to)
func (s *TrainingSlot) Overlaps(from, to time.Time) bool {
	return s.StartTime.Before(to) && from.Before(s.EndTime)
}

// SlotWithBooking is a calendar row: the slot plus the booking that currently occupies it
// (or the latest historical one when nothing is active).
type SlotWithBooking struct {
	Slot       *TrainingSlot  `json:"slot"`
	BookingID  *int64         `json:"booking_id,omitempty"`
	Status     *BookingStatus `json:"booking_status,omitempty"`
	ClientID   *int64         `json:"client_id,omitempty"`
	ClientName *string        `json:"client_name,omitempty"`
}
