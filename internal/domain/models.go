package domain

type Product struct {
	ID          string  `db:"id" json:"id"`
	Category    string  `db:"category" json:"category"`
	Title       string  `db:"title" json:"title"`
	Description string  `db:"description" json:"description"`
	Features    string  `db:"features" json:"features"`
	Price       float64 `db:"price" json:"price"`
	ArtifactRef string  `db:"artifact_ref" json:"artifact_ref"`
	Active      bool    `db:"active" json:"active"`
	CreatedAt   string  `db:"created_at" json:"created_at"`
}

type Order struct {
	ID              string     `db:"id" json:"id"`
	BuyerID         int64      `db:"buyer_id" json:"buyer_id"`
	ProductID       string     `db:"product_id" json:"product_id"`
	State           OrderState `db:"state" json:"state"`
	PaymentRef      string     `db:"payment_ref" json:"payment_ref"`
	EvidenceRef     string     `db:"evidence_ref" json:"evidence_ref,omitempty"`
	Reason          string     `db:"reason" json:"reason,omitempty"`
	DecidedBy       string     `db:"decided_by" json:"decided_by,omitempty"`
	DecidedAt       string     `db:"decided_at" json:"decided_at,omitempty"`
	FulfillAttempts int        `db:"fulfill_attempts" json:"fulfill_attempts"`
	CreatedAt       string     `db:"created_at" json:"created_at"`
	UpdatedAt       string     `db:"updated_at" json:"updated_at,omitempty"`
}

type Recipient struct {
	UserID    int64  `db:"user_id" json:"user_id"`
	Username  string `db:"username" json:"username,omitempty"`
	FirstName string `db:"first_name" json:"first_name,omitempty"`
	Blocked   bool   `db:"blocked" json:"blocked"`
	JoinedAt  string `db:"joined_at" json:"joined_at"`
	LastSeen  string `db:"last_seen" json:"last_seen,omitempty"`
}

// Owner is one of the two administrators allowed to decide orders and
// trigger broadcasts. TokenHash is a bcrypt hash of the owner's API token
// and never leaves the process.
type Owner struct {
	ID        string `db:"id" json:"id"`
	UserID    int64  `db:"user_id" json:"user_id"`
	Name      string `db:"name" json:"name"`
	TokenHash string `db:"token_hash" json:"-"`
}

type BroadcastJob struct {
	ID         string `db:"id" json:"id"`
	Payload    string `db:"payload" json:"payload"`
	CreatedBy  string `db:"created_by" json:"created_by"`
	Total      int    `db:"total" json:"total"`
	Completed  bool   `db:"completed" json:"completed"`
	Cancelled  bool   `db:"cancelled" json:"cancelled"`
	CreatedAt  string `db:"created_at" json:"created_at"`
	FinishedAt string `db:"finished_at" json:"finished_at,omitempty"`
}

type BroadcastTarget struct {
	JobID     string       `db:"job_id" json:"job_id"`
	UserID    int64        `db:"user_id" json:"user_id"`
	Status    TargetStatus `db:"status" json:"status"`
	Attempts  int          `db:"attempts" json:"attempts"`
	LastError string       `db:"last_error" json:"last_error,omitempty"`
	UpdatedAt string       `db:"updated_at" json:"updated_at,omitempty"`
}

// BroadcastSummary reports per-outcome counts for one job.
type BroadcastSummary struct {
	JobID     string `json:"job_id"`
	Total     int    `json:"total"`
	Pending   int    `json:"pending"`
	Delivered int    `json:"delivered"`
	Failed    int    `json:"failed"`
	Blocked   int    `json:"blocked"`
	Skipped   int    `json:"skipped"`
	Completed bool   `json:"completed"`
	Cancelled bool   `json:"cancelled"`
}
