package domain

// JobRepository defines the interface for job history persistence
type JobRepository interface {
	// Create stores a new job record
	Create(record *JobRecord) error

	// Update updates an existing job record
	Update(record *JobRecord) error

	// Delete deletes a job record by ID
	Delete(id string) error

	// FindByID finds a job record by ID
	FindByID(id string) (*JobRecord, error)

	// FindByState finds job records in the given state
	FindByState(state JobState) ([]*JobRecord, error)

	// FindAll finds all job records with optional filters, newest first
	FindAll(filters map[string]interface{}) ([]*JobRecord, error)

	// Count returns the total number of job records
	Count() (int64, error)

	// GetStats returns job statistics
	GetStats() (*JobStats, error)
}

// JobStats represents job statistics
type JobStats struct {
	Total     int64 `json:"total"`
	Pending   int64 `json:"pending"`
	Running   int64 `json:"running"`
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
}
