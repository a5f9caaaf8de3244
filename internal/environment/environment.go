// Package environment names the deployment the client talks to.
package environment

import (
	"fmt"
	"strings"
)

// Environment identifies an orchestrator deployment.
type Environment string

const (
	Production Environment = "production"
	Staging    Environment = "staging"
	Beta       Environment = "beta"
	Local      Environment = "local"
)

// All lists every recognized environment in a stable order.
func All() []Environment {
	return []Environment{Production, Staging, Beta, Local}
}

// Parse resolves a case-insensitive environment name. An empty name is Production.
func Parse(name string) (Environment, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", string(Production):
		return Production, nil
	case string(Staging):
		return Staging, nil
	case string(Beta):
		return Beta, nil
	case string(Local):
		return Local, nil
	default:
		return "", fmt.Errorf("unknown environment %q", name)
	}
}

func (e Environment) String() string { return string(e) }
