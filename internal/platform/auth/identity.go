package auth

import (
	"context"
)

// AccessLevel thresholds map to the platform roles.
const (
	LevelMember          = 0
	LevelProjectManager  = 1
	LevelDataAnalyst     = 2
	LevelPlatformManager = 3
	LevelSystemAdmin     = 4
)

var roleNames = map[int]string{
	LevelMember:          "Member",
	LevelProjectManager:  "Project Manager",
	LevelDataAnalyst:     "Data Analyst",
	LevelPlatformManager: "Platform Manager",
	LevelSystemAdmin:     "System Administrator",
}

// RoleName returns the display role for an access level.
func RoleName(level int) string {
	if level < LevelMember {
		level = LevelMember
	}
	if level > LevelSystemAdmin {
		level = LevelSystemAdmin
	}
	return roleNames[level]
}

// Identity is the authenticated principal attached to each request.
type Identity struct {
	Username       string
	AccessLevel    int
	Superuser      bool
	HasActiveGrant bool
}

type Capability string

const (
	CapViewCases           Capability = "viewCases"
	CapViewCohorts         Capability = "viewCohorts"
	CapViewProjects        Capability = "viewProjects"
	CapViewDatasets        Capability = "viewDatasets"
	CapViewUsers           Capability = "viewUsers"
	CapManageCohorts       Capability = "manageCohorts"
	CapManageDatasets      Capability = "manageDatasets"
	CapAnalyzeData         Capability = "analyzeData"
	CapExportData          Capability = "exportData"
	CapManageProjects      Capability = "manageProjects"
	CapAccessSensitiveData Capability = "accessSensitiveData"
	CapDeleteProjects      Capability = "deleteProjects"
	CapAuditLogs           Capability = "auditLogs"
	CapManageUsers         Capability = "manageUsers"
	CapSystemAdmin         Capability = "systemAdmin"
	CapManageCases         Capability = "manageCases"
)

var capabilityThresholds = map[Capability]int{
	CapViewCases:           1,
	CapViewCohorts:         1,
	CapViewProjects:        1,
	CapViewDatasets:        1,
	CapViewUsers:           1,
	CapManageCohorts:       2,
	CapManageDatasets:      2,
	CapAnalyzeData:         3,
	CapExportData:          3,
	CapManageProjects:      3,
	CapAccessSensitiveData: 3,
	CapDeleteProjects:      3,
	CapAuditLogs:           3,
	CapManageUsers:         3,
	CapSystemAdmin:         4,
}

// Can reports whether the identity holds a capability. manageCases is
// special: it is granted by level, superuser status, or an active
// project data-manager grant.
func (id Identity) Can(cap Capability) bool {
	if id.Superuser {
		return true
	}
	if cap == CapManageCases {
		return id.AccessLevel >= 3 || id.HasActiveGrant
	}
	threshold, ok := capabilityThresholds[cap]
	if !ok {
		return false
	}
	return id.AccessLevel >= threshold
}

type identityKey struct{}

// WithIdentity binds an identity to the context.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the request identity, or the zero value.
func IdentityFromContext(ctx context.Context) Identity {
	id, _ := ctx.Value(identityKey{}).(Identity)
	return id
}

// UsernameFromContext returns the authenticated username, or "".
func UsernameFromContext(ctx context.Context) string {
	return IdentityFromContext(ctx).Username
}
