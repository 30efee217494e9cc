package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/turtacn/toda-franchise/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/toda-franchise/pkg/errors"
	"github.com/turtacn/toda-franchise/pkg/types/common"
)

const (
	HeaderMemberID   = "X-Member-ID"
	HeaderMemberRole = "X-Member-Role"
)

// Role is the caller's function in the franchising office.
type Role string

const (
	RoleMember    Role = "member"
	RoleAdmin     Role = "admin"
	RoleTreasurer Role = "treasurer"
)

func (r Role) valid() bool {
	return r == RoleMember || r == RoleAdmin || r == RoleTreasurer
}

// Member is the caller identity asserted by the upstream gateway.
type Member struct {
	ID   int64
	Role Role
}

// IsStaff reports whether the caller acts for the office rather than as an
// applicant. Staff see every member's records.
func (m *Member) IsStaff() bool {
	return m != nil && (m.Role == RoleAdmin || m.Role == RoleTreasurer)
}

type memberContextKey struct{}

// memberSlot lets an outer middleware see the member resolved further down
// the chain.
type memberSlot struct{ m *Member }

type memberSlotKey struct{}

func withMemberSlot(ctx context.Context) (context.Context, *memberSlot) {
	slot := &memberSlot{}
	return context.WithValue(ctx, memberSlotKey{}, slot), slot
}

// WithMember stores m in ctx.
func WithMember(ctx context.Context, m *Member) context.Context {
	if slot, ok := ctx.Value(memberSlotKey{}).(*memberSlot); ok {
		slot.m = m
	}
	return context.WithValue(ctx, memberContextKey{}, m)
}

// MemberFromContext returns the member stored by RequireMember.
func MemberFromContext(ctx context.Context) (*Member, bool) {
	m, ok := ctx.Value(memberContextKey{}).(*Member)
	return m, ok && m != nil
}

// RequireMember reads the member headers. A missing or malformed id is a 401;
// an unknown role is a 403. The role defaults to member.
func RequireMember(logger logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get(HeaderMemberID))
			id, err := strconv.ParseInt(raw, 10, 64)
			if raw == "" || err != nil || id <= 0 {
				logger.Debug("rejected request without member id", logging.String("path", r.URL.Path))
				writeMemberError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "member id header is required")
				return
			}

			role := Role(strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderMemberRole))))
			if role == "" {
				role = RoleMember
			}
			if !role.valid() {
				writeMemberError(w, http.StatusForbidden, errors.ErrCodeForbidden, "unknown member role")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithMember(r.Context(), &Member{ID: id, Role: role})))
		})
	}
}

// RequireRole admits only callers holding one of roles.
func RequireRole(roles ...Role) func(http.Handler) http.Handler {
	allowed := make(map[Role]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m, ok := MemberFromContext(r.Context())
			if !ok || !allowed[m.Role] {
				writeMemberError(w, http.StatusForbidden, errors.ErrCodeForbidden, "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeMemberError(w http.ResponseWriter, status int, code errors.ErrorCode, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(common.ErrorDetail{Code: string(code), Message: msg})
}
