// Package security turns the operator's permissions into explicit
// capabilities handed to the composers. The composers never read ambient
// authentication state; whoever builds them decides what they may do.
package security

import (
	"fmt"
	"slices"

	"github.com/golang-jwt/jwt/v5"

	"dentalstock/internal/core/apperror"
)

// Permission names as issued by the clinic's auth service.
const (
	PermissionImportCreate = "warehouse.import.create"
	PermissionExportCreate = "warehouse.export.create"
	PermissionLinesEdit    = "warehouse.lines.edit"
	PermissionAdmin        = "admin"
)

// Capabilities gate the actions a composer offers.
type Capabilities struct {
	// CanImport allows composing and submitting import documents.
	CanImport bool
	// CanExport allows composing and submitting export documents.
	CanExport bool
	// CanEditLines allows adding, editing and removing lines.
	CanEditLines bool
}

// Full grants everything. Callers without a token get the zero value, which
// grants nothing.
func Full() Capabilities {
	return Capabilities{CanImport: true, CanExport: true, CanEditLines: true}
}

// FromPermissions maps permission names to capabilities.
func FromPermissions(perms []string, isAdmin bool) Capabilities {
	if isAdmin || slices.Contains(perms, PermissionAdmin) {
		return Full()
	}
	return Capabilities{
		CanImport:    slices.Contains(perms, PermissionImportCreate),
		CanExport:    slices.Contains(perms, PermissionExportCreate),
		CanEditLines: slices.Contains(perms, PermissionLinesEdit),
	}
}

// RequireImport returns a forbidden error unless imports are allowed.
func (c Capabilities) RequireImport() error {
	if !c.CanImport {
		return apperror.NewForbidden("import documents are not permitted")
	}
	return nil
}

// RequireExport returns a forbidden error unless exports are allowed.
func (c Capabilities) RequireExport() error {
	if !c.CanExport {
		return apperror.NewForbidden("export documents are not permitted")
	}
	return nil
}

// RequireEditLines returns a forbidden error unless line edits are allowed.
func (c Capabilities) RequireEditLines() error {
	if !c.CanEditLines {
		return apperror.NewForbidden("editing document lines is not permitted")
	}
	return nil
}

// Claims is the subset of the access token this client reads.
type Claims struct {
	jwt.RegisteredClaims
	UserID      string   `json:"uid"`
	Email       string   `json:"email"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"perms,omitempty"`
	IsAdmin     bool     `json:"adm,omitempty"`
}

// ParseToken reads the claims of an access token without verifying its
// signature. The client has no signing key; the inventory service verifies
// the same token on every request.
func ParseToken(token string) (*Claims, error) {
	claims := &Claims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("parse access token: %w", err)
	}
	return claims, nil
}

// FromToken derives capabilities from an access token's claims.
func FromToken(token string) (Capabilities, *Claims, error) {
	claims, err := ParseToken(token)
	if err != nil {
		return Capabilities{}, nil, err
	}
	return FromPermissions(claims.Permissions, claims.IsAdmin), claims, nil
}
