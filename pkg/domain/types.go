package domain

import "time"

type Role string

const (
	RoleManufacturer Role = "manufacturer"
	RolePharmacist   Role = "pharmacist"
	RolePatient      Role = "patient"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleManufacturer, RolePharmacist, RolePatient:
		return true
	default:
		return false
	}
}

type UserProfile struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Role        Role   `json:"role"`
	CompanyName string `json:"companyName,omitempty"`
	LicenseID   string `json:"licenseId,omitempty"`
	FactoryID   string `json:"factoryId,omitempty"`
}

// AccountRecord is the mock persisted account. Password is reversibly encoded.
type AccountRecord struct {
	Profile  UserProfile `json:"profile"`
	Password string      `json:"password"`
}

type Source struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}

type Creation struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	HTML          string    `json:"html"`
	OriginalImage string    `json:"originalImage,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
	Sources       []Source  `json:"sources"`
	DocumentTitle string    `json:"documentTitle,omitempty"`
	SourceKey     string    `json:"sourceKey,omitempty"`
}

type Sender string

const (
	SenderUser    Sender = "user"
	SenderSystem  Sender = "system"
	SenderPartner Sender = "partner"
)

type Channel string

const (
	ChannelUpstream   Channel = "upstream"
	ChannelDownstream Channel = "downstream"
)

// ParseChannel maps a raw string onto a known channel.
func ParseChannel(s string) (Channel, bool) {
	switch Channel(s) {
	case ChannelUpstream:
		return ChannelUpstream, true
	case ChannelDownstream:
		return ChannelDownstream, true
	default:
		return "", false
	}
}

type ChatMessage struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Sender    Sender    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
}
