package jobs

import "context"

// ExpireReservations expires pending reservations whose hold window has passed
func (jr *JobRunner) ExpireReservations() {
	_, _ = jr.Run(context.Background(), JobExpireReservations)
}
