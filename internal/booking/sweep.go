package booking

import (
	"context"
	"errors"
)

// NoShowSweep applies the time-triggered attendance rules in one pass:
// booked/confirmed appointments whose start is at least the no-show grace in
// the past become one of the no-show statuses derived from the presence
// flags, and ongoing appointments past their end with both sides present
// become completed. Re-running with the same now is a no-op: every write is a
// conditional update from the status the row was read in, and rows already
// moved no longer match the queries. A single row's failure is logged and the
// sweep continues.
func (s *Service) NoShowSweep(ctx context.Context) (int, error) {
	now := s.now()
	changed := 0

	stale, err := s.repo.ListStaleStarts(ctx, []Status{StatusBooked, StatusConfirmed}, now.Add(-s.cfg.NoShowGrace))
	if err != nil {
		return 0, err
	}

	for _, appt := range stale {
		if appt.BothPresent() {
			// Both showed up; the attendance path or auto-start owns this one.
			continue
		}

		to := noShowStatus(&appt)
		updated, err := s.repo.UpdateStatus(ctx, appt.ID, appt.Status, to)
		if err != nil {
			if errors.Is(err, ErrAppointmentNotFound) {
				continue // moved concurrently, nothing to do
			}
			s.log.Error().Err(err).
				Str("appointment_id", appt.ID.String()).
				Msg("no-show sweep: update failed")
			continue
		}

		changed++
		s.logEvent(ctx, updated.ID, EventAppointmentNoShow, map[string]any{
			"status": string(updated.Status),
		})
	}

	ended, err := s.repo.ListOngoingEnded(ctx, now)
	if err != nil {
		return changed, err
	}

	for _, appt := range ended {
		if !appt.BothPresent() {
			continue
		}

		updated, err := s.repo.UpdateStatus(ctx, appt.ID, StatusOngoing, StatusCompleted)
		if err != nil {
			if errors.Is(err, ErrAppointmentNotFound) {
				continue
			}
			s.log.Error().Err(err).
				Str("appointment_id", appt.ID.String()).
				Msg("no-show sweep: completion failed")
			continue
		}

		changed++
		s.logEvent(ctx, updated.ID, EventAppointmentCompleted, map[string]any{
			"trigger": "sweep",
		})
	}

	return changed, nil
}

func noShowStatus(appt *Appointment) Status {
	switch {
	case !appt.PatientPresent && !appt.ProviderPresent():
		return StatusNoShowBoth
	case !appt.PatientPresent:
		return StatusNoShowPatient
	default:
		return StatusNoShowDoctor
	}
}

// AutoStartSweep promotes confirmed appointments whose start has arrived to
// ongoing and attaches the deterministic communication channel for the pair.
// Appointments already ongoing or beyond never match the query, so the sweep
// is idempotent.
func (s *Service) AutoStartSweep(ctx context.Context) (int, error) {
	now := s.now()

	due, err := s.repo.ListConfirmedDue(ctx, now)
	if err != nil {
		return 0, err
	}

	started := 0
	for _, appt := range due {
		channel := ChannelID(appt.Provider().ID, appt.PatientID)

		updated, err := s.repo.PromoteToOngoing(ctx, appt.ID, StatusConfirmed, channel)
		if err != nil {
			if errors.Is(err, ErrAppointmentNotFound) {
				continue
			}
			s.log.Error().Err(err).
				Str("appointment_id", appt.ID.String()).
				Msg("auto-start sweep: update failed")
			continue
		}

		started++
		s.logEvent(ctx, updated.ID, EventAppointmentAutoStart, map[string]any{
			"channel_id": channel,
		})
	}

	return started, nil
}
