package mysql

// Repository aggregates all MySQL repositories
type Repository struct {
	ds *Datastore

	Worker      *WorkerRepository
	Zone        *ZoneRepository
	TimeLog     *TimeLogRepository
	Session     *SessionRepository
	IndexRecord *IndexRecordRepository
	Anomaly     *AnomalyRepository
	Alert       *AlertRepository
}

// NewRepository creates a new MySQL repository with all sub-repositories
func NewRepository(dsn string) (*Repository, error) {
	ds, err := NewDatastore(dsn)
	if err != nil {
		return nil, err
	}

	return &Repository{
		ds:          ds,
		Worker:      NewWorkerRepository(ds),
		Zone:        NewZoneRepository(ds),
		TimeLog:     NewTimeLogRepository(ds),
		Session:     NewSessionRepository(ds),
		IndexRecord: NewIndexRecordRepository(ds),
		Anomaly:     NewAnomalyRepository(ds),
		Alert:       NewAlertRepository(ds),
	}, nil
}

// GetDatastore returns the underlying datastore for transaction support
func (r *Repository) GetDatastore() *Datastore {
	return r.ds
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.ds.Close()
}
