package rbac

import (
	"context"
	"sort"
	"strings"

	"golang.org/x/text/cases"

	"github.com/odyssey-erp/odyssey-wms/internal/shared"
)

// Service resolves permissions for identities from a static grant table.
type Service struct {
	grants map[string][]string
}

// NewService constructs a Service. A nil grants map uses DefaultGrants.
func NewService(grants map[Role][]string) *Service {
	if grants == nil {
		grants = DefaultGrants()
	}
	normalized := make(map[string][]string, len(grants))
	for role, perms := range grants {
		key := foldRole(string(role))
		normalized[key] = append(normalized[key], normalizePermissions(perms)...)
	}
	return &Service{grants: normalized}
}

// EffectivePermissions returns the sorted union of permissions granted to the identity's roles.
func (s *Service) EffectivePermissions(ctx context.Context, id shared.Identity) ([]string, error) {
	if s == nil {
		return nil, nil
	}
	set := map[string]struct{}{}
	for _, role := range id.Roles {
		for _, p := range s.grants[foldRole(role)] {
			set[p] = struct{}{}
		}
	}
	perms := make([]string, 0, len(set))
	for p := range set {
		perms = append(perms, p)
	}
	sort.Strings(perms)
	return perms, nil
}

// Can reports whether the identity in ctx holds perm.
func (s *Service) Can(ctx context.Context, perm string) bool {
	id, ok := shared.IdentityFromContext(ctx)
	if !ok {
		return false
	}
	granted, err := s.EffectivePermissions(ctx, id)
	if err != nil {
		return false
	}
	return hasAnyPermission(granted, normalizePermissions([]string{perm}))
}

// foldRole case-folds a role name. Casers are stateful so one is built per call.
func foldRole(role string) string {
	return cases.Fold().String(strings.TrimSpace(role))
}
