package auth

import (
	_ "embed"
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	stringadapter "github.com/casbin/casbin/v2/persist/string-adapter"
)

//go:embed model.conf
var modelConf string

//go:embed policy.csv
var policyCSV string

// Authorizer decides whether a role may perform a method on a path.
type Authorizer struct {
	enforcer *casbin.Enforcer
}

func NewAuthorizer() (*Authorizer, error) {
	m, err := model.NewModelFromString(modelConf)
	if err != nil {
		return nil, fmt.Errorf("auth model: %w", err)
	}
	e, err := casbin.NewEnforcer(m, stringadapter.NewAdapter(policyCSV))
	if err != nil {
		return nil, fmt.Errorf("auth policy: %w", err)
	}
	return &Authorizer{enforcer: e}, nil
}

func (a *Authorizer) Allow(role, path, method string) (bool, error) {
	if a == nil || a.enforcer == nil {
		return false, nil
	}
	return a.enforcer.Enforce(role, path, method)
}
