// Package authz provides per-resource access control for the registry
// server. Policies are (subject, path, method) grants held in the
// database; the enforcer is injected into the API layer, never a
// package-level singleton, so handlers stay testable against an
// in-memory store.
package authz

import "context"

// Policy is one access grant: subject may invoke method on resources
// matching path. A trailing "*" in path matches any suffix.
type Policy struct {
	ID      string `gorm:"column:id;primaryKey" json:"-"`
	Subject string `gorm:"column:subject;index:idx_policy_subject" json:"user"`
	Path    string `gorm:"column:path" json:"path"`
	Method  string `gorm:"column:method" json:"method"`
}

// TableName returns the table name for Policy.
func (Policy) TableName() string {
	return "policies"
}

// Enforcer checks and manages access policies. Empty filter fields in
// DeletePolicies and GetPolicies match everything.
type Enforcer interface {
	CheckAccess(ctx context.Context, subject, path, method string) (bool, error)
	AddPolicy(ctx context.Context, subject, path, method string) error
	DeletePolicies(ctx context.Context, subject, path, method string) error
	GetPolicies(ctx context.Context, subject, path, method string) ([]Policy, error)
}

// AllowAll is an Enforcer that grants every check. It backs development
// deployments where no policy store is configured; policy mutations
// are dropped.
type AllowAll struct{}

// CheckAccess always grants.
func (AllowAll) CheckAccess(ctx context.Context, subject, path, method string) (bool, error) {
	return true, nil
}

// AddPolicy is a no-op.
func (AllowAll) AddPolicy(ctx context.Context, subject, path, method string) error {
	return nil
}

// DeletePolicies is a no-op.
func (AllowAll) DeletePolicies(ctx context.Context, subject, path, method string) error {
	return nil
}

// GetPolicies returns no policies.
func (AllowAll) GetPolicies(ctx context.Context, subject, path, method string) ([]Policy, error) {
	return nil, nil
}
