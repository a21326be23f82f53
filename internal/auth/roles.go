package auth

import (
	"github.com/gofiber/fiber/v2"

	apperrors "github.com/spec-kit/sla-engine/pkg/util"
)

// Role grades ops API access. Viewers read status and execution history;
// operators can also trigger rule runs.
type Role string

const (
	RoleOperator Role = "OPERATOR"
	RoleViewer   Role = "VIEWER"
)

// RequireRole ensures the principal holds one of the allowed roles.
// Operators implicitly satisfy a viewer requirement.
func RequireRole(allowed ...Role) fiber.Handler {
	allowedSet := make(map[Role]struct{}, len(allowed))
	for _, role := range allowed {
		allowedSet[role] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if len(allowedSet) == 0 {
			return c.Next()
		}
		if _, exists := allowedSet[principal.Role]; exists {
			return c.Next()
		}
		if principal.Role == RoleOperator {
			return c.Next()
		}
		return apperrors.NewForbidden("insufficient role")
	}
}
