// Package users exposes the platform accounts together with their
// derived role and capability booleans. Accounts are provisioned by
// the delegated auth provider; the platform only manages access
// levels.
package users

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/onconova/onconova/internal/platform/auth"
)

var ErrNotFound = errors.New("not found")

// EntityKind for history events.
const EntityKind = "user"

// User is a platform account. Role, ActiveGrant and Capabilities are
// derived on read.
type User struct {
	ID          uuid.UUID `json:"id"`
	Username    string    `json:"username"`
	FullName    *string   `json:"fullName,omitempty"`
	Email       *string   `json:"email,omitempty"`
	AccessLevel int       `json:"accessLevel"`
	Superuser   bool      `json:"isSuperuser"`
	External    bool      `json:"isExternal"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`

	Role         string          `json:"role,omitempty"`
	ActiveGrant  bool            `json:"hasActiveGrant"`
	Capabilities map[string]bool `json:"capabilities,omitempty"`
}

func (u *User) Validate() error {
	if u.Username == "" {
		return fmt.Errorf("username is required")
	}
	if u.AccessLevel < auth.LevelMember || u.AccessLevel > auth.LevelSystemAdmin {
		return fmt.Errorf("access level must be between %d and %d",
			auth.LevelMember, auth.LevelSystemAdmin)
	}
	return nil
}

// derivedCapabilities lists the booleans exposed per user.
var derivedCapabilities = []auth.Capability{
	auth.CapViewCases,
	auth.CapViewCohorts,
	auth.CapViewProjects,
	auth.CapViewDatasets,
	auth.CapViewUsers,
	auth.CapManageCohorts,
	auth.CapManageDatasets,
	auth.CapAnalyzeData,
	auth.CapExportData,
	auth.CapManageProjects,
	auth.CapAccessSensitiveData,
	auth.CapDeleteProjects,
	auth.CapAuditLogs,
	auth.CapManageUsers,
	auth.CapSystemAdmin,
	auth.CapManageCases,
}

// Decorate fills the derived fields from the access level, superuser
// flag and grant status.
func (u *User) Decorate(hasActiveGrant bool) {
	u.Role = auth.RoleName(u.AccessLevel)
	u.ActiveGrant = hasActiveGrant
	id := auth.Identity{
		Username:       u.Username,
		AccessLevel:    u.AccessLevel,
		Superuser:      u.Superuser,
		HasActiveGrant: hasActiveGrant,
	}
	u.Capabilities = make(map[string]bool, len(derivedCapabilities))
	for _, cap := range derivedCapabilities {
		u.Capabilities[string(cap)] = id.Can(cap)
	}
}
