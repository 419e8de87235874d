package jobs

import "context"

// MarkOverdueLoans moves past-due loans to OVERDUE and issues their fines
func (jr *JobRunner) MarkOverdueLoans() {
	_, _ = jr.Run(context.Background(), JobMarkOverdueLoans)
}

// SendDueReminders notifies borrowers whose loans fall due soon
func (jr *JobRunner) SendDueReminders() {
	_, _ = jr.Run(context.Background(), JobSendDueReminders)
}
