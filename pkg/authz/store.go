package authz

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PolicyStore is the database-backed Enforcer.
type PolicyStore struct {
	db *gorm.DB
}

// NewPolicyStore creates a PolicyStore on the given database handle.
func NewPolicyStore(db *gorm.DB) *PolicyStore {
	return &PolicyStore{db: db}
}

// Migrate creates the policies table.
func (s *PolicyStore) Migrate() error {
	if err := s.db.AutoMigrate(&Policy{}); err != nil {
		return fmt.Errorf("migrate policies: %w", err)
	}
	return nil
}

// CheckAccess reports whether any stored policy grants subject the
// method on path. Policy paths match exactly or by "*" suffix
// wildcard; a policy method of "*" matches any method.
func (s *PolicyStore) CheckAccess(ctx context.Context, subject, path, method string) (bool, error) {
	var policies []Policy
	err := s.db.WithContext(ctx).Where("subject = ?", subject).Find(&policies).Error
	if err != nil {
		return false, fmt.Errorf("load policies: %w", err)
	}
	for _, policy := range policies {
		if matchPath(policy.Path, path) && matchMethod(policy.Method, method) {
			return true, nil
		}
	}
	return false, nil
}

// AddPolicy stores a grant. Adding an existing triple is a no-op.
func (s *PolicyStore) AddPolicy(ctx context.Context, subject, path, method string) error {
	var count int64
	err := s.db.WithContext(ctx).Model(&Policy{}).
		Where("subject = ? AND path = ? AND method = ?", subject, path, method).
		Count(&count).Error
	if err != nil {
		return fmt.Errorf("check policy: %w", err)
	}
	if count > 0 {
		return nil
	}
	policy := &Policy{ID: uuid.NewString(), Subject: subject, Path: path, Method: method}
	if err := s.db.WithContext(ctx).Create(policy).Error; err != nil {
		return fmt.Errorf("create policy: %w", err)
	}
	return nil
}

// DeletePolicies removes every policy matching the non-empty filter
// fields.
func (s *PolicyStore) DeletePolicies(ctx context.Context, subject, path, method string) error {
	query := s.filtered(ctx, subject, path, method)
	if err := query.Delete(&Policy{}).Error; err != nil {
		return fmt.Errorf("delete policies: %w", err)
	}
	return nil
}

// GetPolicies returns every policy matching the non-empty filter
// fields, ordered by subject.
func (s *PolicyStore) GetPolicies(ctx context.Context, subject, path, method string) ([]Policy, error) {
	var policies []Policy
	err := s.filtered(ctx, subject, path, method).
		Order("subject ASC, path ASC, method ASC").
		Find(&policies).Error
	if err != nil {
		return nil, fmt.Errorf("list policies: %w", err)
	}
	return policies, nil
}

func (s *PolicyStore) filtered(ctx context.Context, subject, path, method string) *gorm.DB {
	query := s.db.WithContext(ctx).Model(&Policy{})
	if subject != "" {
		query = query.Where("subject = ?", subject)
	}
	if path != "" {
		query = query.Where("path = ?", path)
	}
	if method != "" {
		query = query.Where("method = ?", method)
	}
	return query
}

// matchPath matches a policy path pattern against a request path.
// "/run/3" matches itself; "/run/3*" matches "/run/3" and any subpath
// "/run/3/...". The wildcard respects path boundaries, so "/run/3*"
// never matches "/run/30".
func matchPath(pattern, path string) bool {
	if pattern == path {
		return true
	}
	if !strings.HasSuffix(pattern, "*") {
		return false
	}
	prefix := strings.TrimSuffix(pattern, "*")
	if path == strings.TrimSuffix(prefix, "/") {
		return true
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return strings.HasPrefix(path, prefix)
}

func matchMethod(pattern, method string) bool {
	return pattern == "*" || strings.EqualFold(pattern, method)
}
