// Package authz implements the Authorizer: a pure decision function over
// caller metadata and configuration, structurally grounded on the
// teacher's chain-of-gates compliance checks (suppression/DND/business
// hours, each producing a named rejection reason) but adapted from a
// Mongo-backed lookup to an in-memory allow/deny table.
package authz

import (
	"strings"

	"github.com/vocalbridge/bridge/internal/wire"
	"github.com/vocalbridge/bridge/pkg/config"
)

// Strategy is the machine-readable token every decision carries.
type Strategy string

const (
	StrategyDisabled         Strategy = "disabled"
	StrategyOpen             Strategy = "open"
	StrategyAllowlist        Strategy = "allowlist"
	StrategyTenantOnly       Strategy = "tenant-only"
	StrategyPSTNBlocked      Strategy = "pstn-blocked"
	StrategyValidationFailed Strategy = "validation-failed"
)

// Decision is the result of evaluating an auth_request's metadata.
type Decision struct {
	Authorized bool
	Strategy   Strategy
	Reason     string
}

// Evaluate applies the mode table from spec §4.13 to metadata.
func Evaluate(cfg config.AuthorizationConfig, metadata wire.Metadata) Decision {
	if strings.TrimSpace(metadata.TenantID) == "" || strings.TrimSpace(metadata.UserID) == "" {
		return Decision{Authorized: false, Strategy: StrategyValidationFailed, Reason: "missing tenantId or userId"}
	}

	mode := cfg.Mode
	if mode == "" {
		mode = "disabled"
	}

	if mode == "disabled" {
		return Decision{Authorized: false, Strategy: StrategyDisabled, Reason: "authorization disabled"}
	}

	if metadata.PhoneNumber != "" && !cfg.AllowPSTN {
		return Decision{Authorized: false, Strategy: StrategyPSTNBlocked, Reason: "PSTN calls are not allowed"}
	}

	switch mode {
	case "open":
		return Decision{Authorized: true, Strategy: StrategyOpen}

	case "allowlist":
		user := strings.ToLower(metadata.UserID)
		upn := strings.ToLower(metadata.UserPrincipalName)
		for _, allowed := range cfg.AllowFrom {
			a := strings.ToLower(allowed)
			if a == user || (upn != "" && a == upn) {
				return Decision{Authorized: true, Strategy: StrategyAllowlist}
			}
		}
		return Decision{Authorized: false, Strategy: StrategyAllowlist, Reason: "caller not in allow-from"}

	case "tenant-only":
		for _, tenant := range cfg.AllowedTenants {
			if tenant == metadata.TenantID {
				return Decision{Authorized: true, Strategy: StrategyTenantOnly}
			}
		}
		return Decision{Authorized: false, Strategy: StrategyTenantOnly, Reason: "tenant not in allowed-tenants"}

	default:
		return Decision{Authorized: false, Strategy: StrategyDisabled, Reason: "unrecognized authorization mode"}
	}
}
