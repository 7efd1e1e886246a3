// Package model defines domain entities shared by the client services and view controllers.
package model

import "time"

// Known roles. The backend decides visibility; the client never filters by role.
const (
	RoleHR      = "HR"
	RoleFinance = "Finance"
	RoleLegal   = "Legal"
	RoleAdmin   = "Admin"
)

// Roles lists the roles offered at registration.
var Roles = []string{RoleHR, RoleFinance, RoleLegal, RoleAdmin}

// UserProfile is the authenticated identity returned by /users/me.
type UserProfile struct {
	Username string
	Role     string
	UUID     string
}

// Session is an immutable snapshot of the client's authentication state.
type Session struct {
	Token     string       // empty when unauthenticated
	User      *UserProfile // nil until /users/me succeeds for Token
	ExpiresAt time.Time    // zero when unknown
	Epoch     uint64       // bumped on every login/logout/expiry
}

// Authenticated reports whether a token is held.
func (s Session) Authenticated() bool { return s.Token != "" }

// Document is a read-only cached copy of a backend document.
type Document struct {
	ID             string
	Filename       string
	Category       string
	Author         *string
	UploadDate     time.Time
	Summary        *string
	ContentPreview *string
	OwnerUUID      string
	Relevance      *float64 // set on search results only
}

// DateRange is a fixed-window upload date constraint.
type DateRange string

const (
	RangeAll   DateRange = "all"
	RangeToday DateRange = "today"
	RangeWeek  DateRange = "week"
	RangeMonth DateRange = "month"
)

// DateRanges lists the ranges in cycling order.
var DateRanges = []DateRange{RangeAll, RangeToday, RangeWeek, RangeMonth}

// Filter narrows the loaded collection. Empty fields mean "no constraint".
type Filter struct {
	Category string
	Author   string
	Range    DateRange
}

// UploadState is the lifecycle of a single upload task.
type UploadState string

const (
	UploadPending  UploadState = "pending"
	UploadInFlight UploadState = "in-flight"
	UploadDone     UploadState = "done"
	UploadFailed   UploadState = "failed"
)

// Terminal reports whether no further transitions happen.
func (s UploadState) Terminal() bool { return s == UploadDone || s == UploadFailed }

// UploadTask tracks one file of an upload batch.
type UploadTask struct {
	Name        string
	ContentType string
	Size        int64
	Progress    int // 0..100, cosmetic
	State       UploadState
	Err         error
	Visible     bool // false once the terminal state has been shown long enough
}

// AccessLog is an audit record served by /logs/.
type AccessLog struct {
	LogID     int64
	UserUUID  string
	DocUUID   *string
	Action    string
	Timestamp time.Time
}

// Health is the backend liveness payload.
type Health struct {
	Status           string
	Timestamp        time.Time
	IndexedDocuments int
	TotalMappings    int
}

// Registration is a new-account request.
type Registration struct {
	Username string
	Password string
	Confirm  string
	Role     string
}
