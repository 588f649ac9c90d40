package usecase

import "fmt"

// BatchResult counts the per-record outcomes of one fan-out. Failed records are logged
// and skipped; they never change whether the inbound message is acknowledged.
type BatchResult struct {
	Attempted int
	Succeeded int
	Failed    int
	Skipped   int
}

func (r *BatchResult) record(err error) {
	r.Attempted++
	if err != nil {
		r.Failed++
		return
	}
	r.Succeeded++
}

// Add accumulates other into r.
func (r *BatchResult) Add(other BatchResult) {
	r.Attempted += other.Attempted
	r.Succeeded += other.Succeeded
	r.Failed += other.Failed
	r.Skipped += other.Skipped
}

// Complete reports whether every attempted record was written.
func (r BatchResult) Complete() bool { return r.Failed == 0 }

func (r BatchResult) String() string {
	return fmt.Sprintf("attempted=%d succeeded=%d failed=%d skipped=%d", r.Attempted, r.Succeeded, r.Failed, r.Skipped)
}
