package usecase

// JobSummary is returned by the resolver and the delivery worker.
type JobSummary struct {
	Processed int `json:"processed"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
	// Retried counts failures that were rescheduled rather than made terminal.
	Retried int `json:"retried,omitempty"`
	Skipped int `json:"skipped,omitempty"`
	// Reclaimed counts stuck messages reset to pending by this run.
	Reclaimed int64 `json:"reclaimed,omitempty"`
}

type ReconcileSummary struct {
	OrphansChecked int `json:"orphansChecked"`
	Registered     int `json:"registered"`
}

// LeadCreatedInput is the payload of a lead.created event.
type LeadCreatedInput struct {
	LeadType string `json:"lead_type"`
	LeadID   string `json:"lead_id"`
}
