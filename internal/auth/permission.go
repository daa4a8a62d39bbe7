package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"sync"

	"github.com/BradenHooton/posgate/internal/models"
	pkghttp "github.com/BradenHooton/posgate/pkg/http"
	"golang.org/x/sync/errgroup"
)

// PermissionStore loads module grants and role state
type PermissionStore interface {
	GetEffectivePermissions(ctx context.Context, userID string, roleID int) ([]models.ModulePermission, error)
	GetRole(ctx context.Context, roleID int) (*models.Role, error)
}

// Decision is the outcome of a permission check. Code and Message are set
// when Allowed is false.
type Decision struct {
	Allowed    bool
	Code       string
	Message    string
	Module     string
	Capability models.Capability
}

func deny(code, message string) Decision {
	return Decision{Code: code, Message: message}
}

// PermissionResolver decides whether an authenticated user may call a
// method on a path, based on module endpoint patterns and CRUD grants
type PermissionResolver struct {
	users  UserLookup
	store  PermissionStore
	logger *slog.Logger

	mu       sync.RWMutex
	patterns map[string]*regexp.Regexp
}

func NewPermissionResolver(users UserLookup, store PermissionStore, logger *slog.Logger) *PermissionResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &PermissionResolver{
		users:    users,
		store:    store,
		logger:   logger,
		patterns: make(map[string]*regexp.Regexp),
	}
}

// Resolve returns the access decision. Errors are storage failures only.
func (pr *PermissionResolver) Resolve(ctx context.Context, user *models.AuthenticatedUser, method, path string) (Decision, error) {
	if user.RoleID == models.SuperAdminRoleID {
		return Decision{Allowed: true}, nil
	}

	var (
		userValid bool
		roleValid bool
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		u, err := pr.users.GetByID(gctx, user.ID)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return nil
			}
			return fmt.Errorf("failed to check user: %w", err)
		}
		userValid = u != nil && u.IsActive
		return nil
	})
	g.Go(func() error {
		role, err := pr.store.GetRole(gctx, user.RoleID)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return nil
			}
			return fmt.Errorf("failed to check role: %w", err)
		}
		roleValid = role != nil && role.IsActive
		return nil
	})
	if err := g.Wait(); err != nil {
		return Decision{}, err
	}

	if !userValid {
		return deny(models.CodeInvalidUser, "User is invalid or inactive"), nil
	}
	if !roleValid {
		return deny(models.CodeInvalidRole, "User role is invalid or inactive"), nil
	}

	grants, err := pr.store.GetEffectivePermissions(ctx, user.ID, user.RoleID)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to load permissions: %w", err)
	}

	var module *models.ModulePermission
	for i := range grants {
		if pr.Match(grants[i].EndpointPattern, path) {
			module = &grants[i]
			break
		}
	}
	if module == nil {
		return deny(models.CodeAccessDenied, "You do not have access to this resource"), nil
	}

	capability, ok := models.CapabilityForMethod(method)
	if !ok {
		return deny(models.CodeAccessDenied, "Unsupported HTTP method: "+method), nil
	}

	if !module.Allows(capability) {
		d := deny(models.CodeAccessDenied, fmt.Sprintf("You do not have %s permission for %s", capability, module.ModuleName))
		d.Module = module.ModuleName
		d.Capability = capability
		return d, nil
	}

	return Decision{Allowed: true, Module: module.ModuleName, Capability: capability}, nil
}

// Match reports whether path matches an endpoint pattern. A trailing "/*"
// matches the base path and everything below it; elsewhere "*" matches any
// run of characters and ":name" a single segment.
func (pr *PermissionResolver) Match(pattern, path string) bool {
	if pattern == "" {
		return false
	}

	if base, ok := strings.CutSuffix(pattern, "/*"); ok {
		return path == base || strings.HasPrefix(path, base+"/")
	}

	re, err := pr.compile(pattern)
	if err != nil {
		pr.logger.Warn("invalid endpoint pattern", slog.String("pattern", pattern), slog.Any("error", err))
		return false
	}
	return re.MatchString(path)
}

func (pr *PermissionResolver) compile(pattern string) (*regexp.Regexp, error) {
	pr.mu.RLock()
	re, ok := pr.patterns[pattern]
	pr.mu.RUnlock()
	if ok {
		return re, nil
	}

	re, err := regexp.Compile(PatternToRegexp(pattern))
	if err != nil {
		return nil, err
	}

	pr.mu.Lock()
	pr.patterns[pattern] = re
	pr.mu.Unlock()
	return re, nil
}

// PatternToRegexp converts an endpoint pattern to an anchored expression.
// Literal text is quoted.
func PatternToRegexp(pattern string) string {
	var b strings.Builder
	b.WriteByte('^')

	for i := 0; i < len(pattern); {
		switch c := pattern[i]; {
		case c == '*':
			b.WriteString(".*")
			i++
		case c == ':' && i+1 < len(pattern) && isWordByte(pattern[i+1]):
			j := i + 1
			for j < len(pattern) && isWordByte(pattern[j]) {
				j++
			}
			b.WriteString("[^/]+")
			i = j
		default:
			j := i + 1
			for j < len(pattern) && pattern[j] != '*' && pattern[j] != ':' {
				j++
			}
			b.WriteString(regexp.QuoteMeta(pattern[i:j]))
			i = j
		}
	}

	b.WriteByte('$')
	return b.String()
}

func isWordByte(c byte) bool {
	return c == '_' || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}

// RequirePermission enforces the resolver on the full request path. It must
// run after RequireAuth.
func (pr *PermissionResolver) RequirePermission() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := GetUserFromContext(r)
			if user == nil {
				pkghttp.WriteUnauthorized(w, models.CodeAuthorizationRequired, "User authentication is required for this operation")
				return
			}

			decision, err := pr.Resolve(r.Context(), user, r.Method, r.URL.Path)
			if err != nil {
				pr.logger.Error("permission check failed",
					slog.String("user_id", user.ID),
					slog.String("path", r.URL.Path),
					slog.Any("error", err),
				)
				pkghttp.WriteInternalError(w, "An error occurred while validating permissions")
				return
			}

			if !decision.Allowed {
				pr.logger.Warn("access denied",
					slog.String("user_id", user.ID),
					slog.Int("role_id", user.RoleID),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("code", decision.Code),
					slog.String("module", decision.Module),
				)
				pkghttp.WriteForbidden(w, decision.Code, decision.Message)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
