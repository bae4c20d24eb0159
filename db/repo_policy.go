package db

import (
	"context"
	"errors"

	"Gin_postgres_redis_lending_engine/models"
	"Gin_postgres_redis_lending_engine/policy"
	"Gin_postgres_redis_lending_engine/tenant"
)

// FindPolicy prefers the instance row and falls back to the org row.
// (nil, nil) means neither exists.
func (r *Repo) FindPolicy(ctx context.Context, t tenant.Tenant) (*policy.Policy, error) {
	candidates := []string{t.InstanceID}
	if t.InstanceID != "" {
		candidates = append(candidates, "")
	}
	for _, instanceID := range candidates {
		var tp models.TenantPolicy
		err := r.DB.WithContext(ctx).
			Where("org_id = ? AND instance_id = ?", t.OrgID, instanceID).
			First(&tp).Error
		if err == nil {
			p := tp.Policy()
			return &p, nil
		}
		if err = translateErr(err); !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return nil, nil
}
