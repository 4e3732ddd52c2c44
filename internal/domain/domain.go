package domain

// Status is the conversation workflow state.
type Status string

const (
	StatusNew            Status = "NEW"
	StatusWorking        Status = "WORKING"
	StatusPending        Status = "PENDING"
	StatusResolved       Status = "RESOLVED"
	StatusClosed         Status = "CLOSED"
	StatusNoActionNeeded Status = "NO_ACTION_NEEDED"
)

// Statuses lists every workflow state in declaration order.
func Statuses() []Status {
	return []Status{StatusNew, StatusWorking, StatusPending, StatusResolved, StatusClosed, StatusNoActionNeeded}
}

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusWorking, StatusPending, StatusResolved, StatusClosed, StatusNoActionNeeded:
		return true
	}
	return false
}

// Priority is ordered LOW < MEDIUM < HIGH.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
)

// Rank returns the total order used for escalation comparisons.
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 0
	case PriorityMedium:
		return 1
	case PriorityHigh:
		return 2
	}
	return -1
}

func (p Priority) Valid() bool { return p.Rank() >= 0 }

// Urgency is ordered ANYTIME < THIS_WEEK < TODAY < NOW.
type Urgency string

const (
	UrgencyAnytime  Urgency = "ANYTIME"
	UrgencyThisWeek Urgency = "THIS_WEEK"
	UrgencyToday    Urgency = "TODAY"
	UrgencyNow      Urgency = "NOW"
)

// Rank returns the total order used for escalation comparisons.
func (u Urgency) Rank() int {
	switch u {
	case UrgencyAnytime:
		return 0
	case UrgencyThisWeek:
		return 1
	case UrgencyToday:
		return 2
	case UrgencyNow:
		return 3
	}
	return -1
}

func (u Urgency) Valid() bool { return u.Rank() >= 0 }

// ComplaintType categorizes a complaint conversation.
type ComplaintType string

const (
	ComplaintBilling  ComplaintType = "BILLING"
	ComplaintQuality  ComplaintType = "QUALITY"
	ComplaintDelay    ComplaintType = "DELAY"
	ComplaintAttitude ComplaintType = "ATTITUDE"
	ComplaintOther    ComplaintType = "OTHER"
)

// ComplaintTypes lists categories in classification order. The classifier
// assigns the first matching category, so the order is load-bearing.
func ComplaintTypes() []ComplaintType {
	return []ComplaintType{ComplaintBilling, ComplaintQuality, ComplaintDelay, ComplaintAttitude, ComplaintOther}
}

func (c ComplaintType) Valid() bool {
	switch c {
	case ComplaintBilling, ComplaintQuality, ComplaintDelay, ComplaintAttitude, ComplaintOther:
		return true
	}
	return false
}

// Direction marks a message as received from or sent to the contact.
type Direction string

const (
	DirectionInbound  Direction = "INBOUND"
	DirectionOutbound Direction = "OUTBOUND"
)

// Role is a dashboard user's access level.
type Role string

const (
	RoleAdmin  Role = "ADMIN"
	RoleAgent  Role = "AGENT"
	RoleViewer Role = "VIEWER"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleAgent, RoleViewer:
		return true
	}
	return false
}

// Conversation is the mutable workflow entity of the inbox.
type Conversation struct {
	ID                 string         `json:"id"`
	ContactID          string         `json:"contact_id"`
	Status             Status         `json:"status" enum:"NEW,WORKING,PENDING,RESOLVED,CLOSED,NO_ACTION_NEEDED"`
	Priority           Priority       `json:"priority" enum:"LOW,MEDIUM,HIGH"`
	Urgency            Urgency        `json:"urgency" enum:"ANYTIME,THIS_WEEK,TODAY,NOW"`
	IsComplaint        bool           `json:"is_complaint"`
	ComplaintType      *ComplaintType `json:"complaint_type,omitempty"`
	AssignedUserID     *string        `json:"assigned_user_id,omitempty"`
	Version            int64          `json:"version"`
	LastInboundAt      *string        `json:"last_inbound_at,omitempty" format:"date-time"`
	LastOutboundAt     *string        `json:"last_outbound_at,omitempty" format:"date-time"`
	LastMessagePreview string         `json:"last_message_preview,omitempty"`
	CreatedAt          string         `json:"created_at" format:"date-time"`
	UpdatedAt          string         `json:"updated_at" format:"date-time"`
}

// Contact is an end user on the messaging platform.
type Contact struct {
	ID          string  `json:"id"`
	PlatformID  string  `json:"platform_id"`
	DisplayName string  `json:"display_name,omitempty"`
	PictureURL  *string `json:"picture_url,omitempty"`
	IsBlocked   bool    `json:"is_blocked"`
	FollowedAt  string  `json:"followed_at" format:"date-time"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
}

// Message is one inbound or outbound message within a conversation.
type Message struct {
	ID                string    `json:"id"`
	ConversationID    string    `json:"conversation_id"`
	Direction         Direction `json:"direction" enum:"INBOUND,OUTBOUND"`
	Text              string    `json:"text"`
	PlatformMessageID *string   `json:"platform_message_id,omitempty"`
	Timestamp         string    `json:"timestamp" format:"date-time"`
	RawPayload        *string   `json:"raw_payload,omitempty"`
}

// User is a dashboard operator.
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name,omitempty"`
	Role      Role   `json:"role" enum:"ADMIN,AGENT,VIEWER"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// Tag is a label from the tag catalog.
type Tag struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Color     string `json:"color,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// AuditLog is one append-only audit row. Changes holds the JSON encoding of
// an events.Change variant keyed by Action.
type AuditLog struct {
	ID             int64   `json:"id"`
	ConversationID *string `json:"conversation_id,omitempty"`
	UserID         string  `json:"user_id"`
	Action         string  `json:"action"`
	Changes        string  `json:"changes"`
	IPAddress      *string `json:"ip_address,omitempty"`
	UserAgent      *string `json:"user_agent,omitempty"`
	CreatedAt      string  `json:"created_at" format:"date-time"`
}

// APIKey authenticates service callers (e.g. the webhook relay).
type APIKey struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// NeedsAction reports whether the conversation is waiting on an agent:
// an inbound message exists with no later outbound reply, and the status
// is not terminal for action purposes.
func (c Conversation) NeedsAction() bool {
	if c.Status == StatusNoActionNeeded || c.Status == StatusClosed {
		return false
	}
	if c.LastInboundAt == nil {
		return false
	}
	if c.LastOutboundAt == nil {
		return true
	}
	return *c.LastInboundAt > *c.LastOutboundAt
}
