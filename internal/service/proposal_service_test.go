package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Freeeeeet/trainer_booking/internal/model"
	"github.com/Freeeeeet/trainer_booking/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingBookings роняет создание бронирования с заданным номером вызова
type failingBookings struct {
	service.BookingRepository
	failOn int
	calls  int
}

func (f *failingBookings) Create(ctx context.Context, b *model.Booking) error {
	f.calls++
	if f.calls == f.failOn {
		return errors.New("connection reset")
	}
	return f.BookingRepository.Create(ctx, b)
}

func TestExpandSelections(t *testing.T) {
	// понедельник 09:00: сегодняшние 08:00 уже прошли
	selections := []service.WeeklySelection{
		{Weekday: time.Monday, Hour: 8, Minute: 0},
		{Weekday: time.Monday, Hour: 18, Minute: 30},
		{Weekday: time.Monday, Hour: 18, Minute: 30},
		{Weekday: time.Wednesday, Hour: 7, Minute: 15},
	}

	got := service.ExpandSelections(selections, 1, testNow)
	want := []time.Time{
		time.Date(2024, time.June, 3, 18, 30, 0, 0, time.UTC),
		time.Date(2024, time.June, 5, 7, 15, 0, 0, time.UTC),
	}
	assert.Equal(t, want, got)

	twoWeeks := service.ExpandSelections(selections, 2, testNow)
	assert.Len(t, twoWeeks, 5)
	assert.Equal(t, time.Date(2024, time.June, 12, 7, 15, 0, 0, time.UTC), twoWeeks[4])
}

func TestProposeBatch_TwoPerWeekNoConflicts(t *testing.T) {
	// GIVEN: no bookings
	// WHEN: admin proposes Tue 18:00 and Thu 18:00 for one week
	// THEN: 2 slots and 2 bookings, each deadline one hour before start

	env := newTestEnv(t)

	result, err := env.svc.Proposals.ProposeBatch(env.ctx, service.ProposalRequest{
		AdminID:  env.admin.ID,
		ClientID: env.client.ID,
		Selections: []service.WeeklySelection{
			{Weekday: time.Tuesday, Hour: 18},
			{Weekday: time.Thursday, Hour: 18},
		},
		Weeks: 1,
	})
	require.NoError(t, err)
	require.NotNil(t, result.BatchID)
	require.Len(t, result.Created, 2)
	assert.Empty(t, result.Conflicts)
	assert.Empty(t, result.Failed)

	for _, b := range result.Created {
		assert.Equal(t, model.BookingStatusAwaitingConfirmation, b.Status)
		require.NotNil(t, b.SlotStart)
		require.NotNil(t, b.ConfirmationDeadline)
		assert.Equal(t, b.SlotStart.Add(-time.Hour), *b.ConfirmationDeadline)
		assert.Equal(t, *result.BatchID, *b.BatchID)
	}

	slots, err := env.svc.Slots.SlotsInRange(env.ctx, testNow, testNow.Add(7*24*time.Hour))
	require.NoError(t, err)
	require.Len(t, slots, 2)
	for _, s := range slots {
		assert.False(t, s.Slot.IsAvailable)
	}

	sent := env.notifier.ofType(model.NotificationProposal)
	require.Len(t, sent, 1, "one summary notification")
	assert.Contains(t, sent[0].Message, "2 new")
}

func TestProposeBatch_DeadlineAtLeastThirtyMinutesAhead(t *testing.T) {
	env := newTestEnv(t)

	// тренировка через 70 минут: дедлайн за час был бы через 10 минут
	result, err := env.svc.Proposals.ProposeBatch(env.ctx, service.ProposalRequest{
		AdminID:    env.admin.ID,
		ClientID:   env.client.ID,
		Selections: []service.WeeklySelection{{Weekday: time.Monday, Hour: 10, Minute: 10}},
		Weeks:      1,
	})
	require.NoError(t, err)
	require.Len(t, result.Created, 1)
	assert.Equal(t, testNow.Add(30*time.Minute), *result.Created[0].ConfirmationDeadline)
}

func TestProposeBatch_ClientConflict(t *testing.T) {
	// GIVEN: the client has a booked training on 2024-06-10 18:00-19:00
	// WHEN: a proposal for Monday 18:30 is made for two weeks
	// THEN: 2024-06-10 18:30 is a client conflict; with skip it is excluded

	env := newTestEnv(t)
	env.bookedTraining(t, env.client.ID, time.Date(2024, time.June, 10, 18, 0, 0, 0, time.UTC))

	req := service.ProposalRequest{
		AdminID:    env.admin.ID,
		ClientID:   env.client.ID,
		Selections: []service.WeeklySelection{{Weekday: time.Monday, Hour: 18, Minute: 30}},
		Weeks:      2,
	}

	result, err := env.svc.Proposals.ProposeBatch(env.ctx, req)
	require.NoError(t, err)
	assert.Empty(t, result.Created)
	assert.Nil(t, result.BatchID)
	require.Len(t, result.Conflicts, 1)
	assert.Equal(t, service.ConflictClient, result.Conflicts[0].Reason)
	assert.Equal(t, "client already has a training", result.Conflicts[0].Message)
	assert.Equal(t, time.Date(2024, time.June, 10, 18, 30, 0, 0, time.UTC), result.Conflicts[0].Start)
	assert.Empty(t, env.notifier.ofType(model.NotificationProposal))

	req.SkipConflicts = true
	result, err = env.svc.Proposals.ProposeBatch(env.ctx, req)
	require.NoError(t, err)
	require.Len(t, result.Created, 1)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, time.Date(2024, time.June, 3, 18, 30, 0, 0, time.UTC), *result.Created[0].SlotStart)
}

func TestProposeBatch_OverlappingSelectionsInOneBatch(t *testing.T) {
	// GIVEN: no bookings, one hour trainings
	// WHEN: admin proposes Tue 18:00 and Tue 18:30 in one batch
	// THEN: 18:30 overlaps 18:00 and is reported as a client conflict

	env := newTestEnv(t)
	req := service.ProposalRequest{
		AdminID:  env.admin.ID,
		ClientID: env.client.ID,
		Selections: []service.WeeklySelection{
			{Weekday: time.Tuesday, Hour: 18, Minute: 0},
			{Weekday: time.Tuesday, Hour: 18, Minute: 30},
		},
		Weeks: 1,
	}

	result, err := env.svc.Proposals.ProposeBatch(env.ctx, req)
	require.NoError(t, err)
	assert.Empty(t, result.Created)
	require.Len(t, result.Conflicts, 1)
	assert.Equal(t, service.ConflictClient, result.Conflicts[0].Reason)
	assert.Equal(t, time.Date(2024, time.June, 4, 18, 30, 0, 0, time.UTC), result.Conflicts[0].Start)

	req.SkipConflicts = true
	result, err = env.svc.Proposals.ProposeBatch(env.ctx, req)
	require.NoError(t, err)
	require.Len(t, result.Created, 1)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, time.Date(2024, time.June, 4, 18, 0, 0, 0, time.UTC), *result.Created[0].SlotStart)

	// Соседние тренировки без пересечения допустимы
	adjacent, err := env.svc.Proposals.ProposeBatch(env.ctx, service.ProposalRequest{
		AdminID:  env.admin.ID,
		ClientID: env.client.ID,
		Selections: []service.WeeklySelection{
			{Weekday: time.Thursday, Hour: 10, Minute: 0},
			{Weekday: time.Thursday, Hour: 11, Minute: 0},
		},
		Weeks: 1,
	})
	require.NoError(t, err)
	assert.Len(t, adjacent.Created, 2)
	assert.Empty(t, adjacent.Conflicts)
}

func TestProposeBatch_TrainerConflict(t *testing.T) {
	env := newTestEnv(t)
	other := env.newApprovedClient(t, "Boris")
	env.bookedTraining(t, other.ID, time.Date(2024, time.June, 4, 18, 0, 0, 0, time.UTC))

	result, err := env.svc.Proposals.ProposeBatch(env.ctx, service.ProposalRequest{
		AdminID:    env.admin.ID,
		ClientID:   env.client.ID,
		Selections: []service.WeeklySelection{{Weekday: time.Tuesday, Hour: 18, Minute: 45}},
		Weeks:      1,
	})
	require.NoError(t, err)
	require.Len(t, result.Conflicts, 1)
	assert.Equal(t, service.ConflictTrainer, result.Conflicts[0].Reason)
	assert.Equal(t, "trainer already has a training", result.Conflicts[0].Message)
}

func TestProposeBatch_PartialFailureReported(t *testing.T) {
	// GIVEN: storage fails on the second booking insert
	// WHEN: three proposals are created
	// THEN: two created, one failed, the failed candidate leaves no slot behind

	var failing *failingBookings
	env := newTestEnvWith(t, func(r *service.Repositories) {
		failing = &failingBookings{BookingRepository: r.Bookings, failOn: 2}
		r.Bookings = failing
	})

	result, err := env.svc.Proposals.ProposeBatch(env.ctx, service.ProposalRequest{
		AdminID:  env.admin.ID,
		ClientID: env.client.ID,
		Selections: []service.WeeklySelection{
			{Weekday: time.Tuesday, Hour: 18},
			{Weekday: time.Wednesday, Hour: 18},
			{Weekday: time.Thursday, Hour: 18},
		},
		Weeks: 1,
	})
	require.NoError(t, err)
	assert.Len(t, result.Created, 2)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, time.Date(2024, time.June, 5, 18, 0, 0, 0, time.UTC), result.Failed[0].Start)
	assert.Contains(t, result.Failed[0].Error, "connection reset")

	slots, err := env.svc.Slots.SlotsInRange(env.ctx, testNow, testNow.Add(7*24*time.Hour))
	require.NoError(t, err)
	assert.Len(t, slots, 2)

	sent := env.notifier.ofType(model.NotificationProposal)
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Message, "2 new")
}

func TestProposeBatch_Validation(t *testing.T) {
	env := newTestEnv(t)
	valid := []service.WeeklySelection{{Weekday: time.Tuesday, Hour: 18}}

	cases := []service.ProposalRequest{
		{AdminID: env.admin.ID, ClientID: env.client.ID, Selections: valid, Weeks: 3},
		{AdminID: env.admin.ID, ClientID: env.client.ID, Selections: nil, Weeks: 1},
		{AdminID: env.admin.ID, ClientID: env.client.ID, Selections: []service.WeeklySelection{{Weekday: 7, Hour: 1}}, Weeks: 1},
		{AdminID: env.admin.ID, ClientID: env.client.ID, Selections: []service.WeeklySelection{{Weekday: 1, Hour: 24}}, Weeks: 1},
		{AdminID: env.admin.ID, ClientID: env.client.ID, Selections: []service.WeeklySelection{{Weekday: 1, Hour: 1, Minute: 60}}, Weeks: 1},
	}
	for i, req := range cases {
		_, err := env.svc.Proposals.ProposeBatch(env.ctx, req)
		assert.ErrorIs(t, err, service.ErrInvalidInput, "case %d", i)
	}

	_, err := env.svc.Proposals.ProposeBatch(env.ctx, service.ProposalRequest{
		AdminID: env.client.ID, ClientID: env.client.ID, Selections: valid, Weeks: 1,
	})
	assert.ErrorIs(t, err, service.ErrNotAdmin)

	_, err = env.svc.Proposals.ProposeBatch(env.ctx, service.ProposalRequest{
		AdminID: env.admin.ID, ClientID: 9999, Selections: valid, Weeks: 1,
	})
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func TestConfirmProposal_BeforeDeadline(t *testing.T) {
	env := newTestEnv(t)
	slot := env.newSlot(t, testNow.Add(5*time.Hour))
	proposal, err := env.svc.Bookings.AssignBooking(env.ctx, env.admin.ID, env.client.ID, slot.ID)
	require.NoError(t, err)

	confirmed, err := env.svc.Proposals.ConfirmProposal(env.ctx, env.client.ID, proposal.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusBooked, confirmed.Status)

	answers := env.notifier.ofType(model.NotificationProposalAnswer)
	require.Len(t, answers, 1)
	assert.Equal(t, env.admin.ID, answers[0].UserID)

	_, err = env.svc.Proposals.ConfirmProposal(env.ctx, env.client.ID, proposal.ID)
	assert.ErrorIs(t, err, service.ErrConflict)
}

func TestConfirmProposal_AfterDeadlineExpired(t *testing.T) {
	// GIVEN: a proposal whose deadline has passed, not yet swept
	// WHEN: the client confirms
	// THEN: Expired; and still Expired after the sweeper ran

	env := newTestEnv(t)
	slot := env.newSlot(t, testNow.Add(3*time.Hour))
	proposal, err := env.svc.Bookings.AssignBooking(env.ctx, env.admin.ID, env.client.ID, slot.ID)
	require.NoError(t, err)

	env.clock.Set(proposal.ConfirmationDeadline.Add(time.Minute))

	_, err = env.svc.Proposals.ConfirmProposal(env.ctx, env.client.ID, proposal.ID)
	assert.ErrorIs(t, err, service.ErrExpired)

	_, err = env.svc.Proposals.RejectProposal(env.ctx, env.client.ID, proposal.ID)
	assert.ErrorIs(t, err, service.ErrExpired)

	_, err = env.svc.Sweeper.Sweep(env.ctx)
	require.NoError(t, err)

	_, err = env.svc.Proposals.ConfirmProposal(env.ctx, env.client.ID, proposal.ID)
	assert.ErrorIs(t, err, service.ErrExpired)
}

func TestConfirmProposal_DeadlineExactlyNowExpired(t *testing.T) {
	env := newTestEnv(t)
	slot := env.newSlot(t, testNow.Add(3*time.Hour))
	proposal, err := env.svc.Bookings.AssignBooking(env.ctx, env.admin.ID, env.client.ID, slot.ID)
	require.NoError(t, err)

	env.clock.Set(*proposal.ConfirmationDeadline)

	_, err = env.svc.Proposals.ConfirmProposal(env.ctx, env.client.ID, proposal.ID)
	assert.ErrorIs(t, err, service.ErrDeadlineExpired)
}

func TestRejectProposal_DeletesSlotKeepsRecord(t *testing.T) {
	env := newTestEnv(t)
	slot := env.newSlot(t, testNow.Add(5*time.Hour))
	proposal, err := env.svc.Bookings.AssignBooking(env.ctx, env.admin.ID, env.client.ID, slot.ID)
	require.NoError(t, err)

	other := env.newApprovedClient(t, "Boris")
	_, err = env.svc.Proposals.RejectProposal(env.ctx, other.ID, proposal.ID)
	assert.ErrorIs(t, err, service.ErrNotBookingOwner)

	rejected, err := env.svc.Proposals.RejectProposal(env.ctx, env.client.ID, proposal.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusCancelled, rejected.Status)
	assert.Nil(t, rejected.SlotID, "returned booking no longer points at the deleted slot")

	gone, err := env.store.Slots().GetByID(env.ctx, slot.ID)
	require.NoError(t, err)
	assert.Nil(t, gone, "proposal rejection removes the slot")

	record, err := env.svc.Bookings.GetBooking(env.ctx, proposal.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusCancelled, record.Status)
	assert.Nil(t, record.SlotID)

	answers := env.notifier.ofType(model.NotificationProposalAnswer)
	require.Len(t, answers, 1)
	assert.Nil(t, answers[0].RelatedSlotID)
}

func TestConfirmAll_PerIDOutcome(t *testing.T) {
	env := newTestEnv(t)

	result, err := env.svc.Proposals.ProposeBatch(env.ctx, service.ProposalRequest{
		AdminID:  env.admin.ID,
		ClientID: env.client.ID,
		Selections: []service.WeeklySelection{
			{Weekday: time.Tuesday, Hour: 18},
			{Weekday: time.Thursday, Hour: 18},
		},
		Weeks: 1,
	})
	require.NoError(t, err)
	require.Len(t, result.Created, 2)

	ids := []int64{result.Created[0].ID, 9999, result.Created[1].ID}
	outcomes := env.svc.Proposals.ConfirmAll(env.ctx, env.client.ID, ids)
	require.Len(t, outcomes, 3)

	assert.Empty(t, outcomes[0].Error)
	assert.Equal(t, model.BookingStatusBooked, outcomes[0].Booking.Status)
	assert.NotEmpty(t, outcomes[1].Error)
	assert.Nil(t, outcomes[1].Booking)
	assert.Empty(t, outcomes[2].Error)
}
