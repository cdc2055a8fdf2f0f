package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	goutils "github.com/jkaninda/go-utils"

	"github.com/quillhq/quill/internal/audit"
	"github.com/quillhq/quill/internal/config"
	"github.com/quillhq/quill/internal/domain"
)

var (
	grantConfigPath    string
	grantPrincipalID   string
	grantPrincipalType string
	grantRole          string
	grantOrgID         string
	grantGlobal        bool
)

// grantCmd writes a role assignment directly to the store, bypassing the
// HTTP authorization path. This is the bootstrap mechanism: the first global
// admin has to come from somewhere.
var grantCmd = &cobra.Command{
	Use:   "grant",
	Short: "Grant a role to a principal (operator bootstrap)",
	RunE:  runGrant,
}

func init() {
	grantCmd.Flags().StringVar(&grantConfigPath, "config", config.DefaultConfigPath(), "path to config file")
	grantCmd.Flags().StringVar(&grantPrincipalID, "principal", "", "principal ID (UUID, required)")
	grantCmd.Flags().StringVar(&grantPrincipalType, "type", string(domain.PrincipalAccount), "principal type: account or api_key")
	grantCmd.Flags().StringVar(&grantRole, "role", "", "role name (required)")
	grantCmd.Flags().StringVar(&grantOrgID, "org", "", "organization ID (UUID, required unless --global)")
	grantCmd.Flags().BoolVar(&grantGlobal, "global", false, "grant a global role instead of an organization role")
	_ = grantCmd.MarkFlagRequired("principal")
	_ = grantCmd.MarkFlagRequired("role")
}

func runGrant(_ *cobra.Command, _ []string) error {
	logger := buildLogger(config.LoggingConfig{})

	cfg, err := loadConfig(goutils.Env("QUILL_CONFIG", grantConfigPath), logger)
	if err != nil {
		return err
	}

	principalID, err := uuid.Parse(grantPrincipalID)
	if err != nil {
		return fmt.Errorf("--principal must be a UUID: %w", err)
	}
	pt := domain.PrincipalType(grantPrincipalType)
	if pt != domain.PrincipalAccount && pt != domain.PrincipalAPIKey {
		return fmt.Errorf("--type must be %q or %q", domain.PrincipalAccount, domain.PrincipalAPIKey)
	}

	role := &domain.Role{
		PrincipalID:   principalID,
		PrincipalType: pt,
		Role:          domain.RoleName(grantRole),
	}
	if grantGlobal {
		role.Type = domain.RoleTypeGlobal
	} else {
		orgID, err := uuid.Parse(grantOrgID)
		if err != nil {
			return fmt.Errorf("--org must be a UUID (or pass --global): %w", err)
		}
		role.Type = domain.RoleTypeOrganization
		role.OrganizationID = &orgID
	}
	if err := role.Validate(); err != nil {
		return err
	}

	store, err := initStore(cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}
	defer store.Close()

	ctx := context.Background()
	actx := audit.BySystem("cli.grant").WithMessage(fmt.Sprintf("operator grant of %s", grantRole))
	if err := store.Roles().Grant(ctx, nil, role, actx); err != nil {
		return fmt.Errorf("granting role: %w", err)
	}

	fmt.Printf("granted %s (%s) to %s %s\n", role.Role, role.Type, pt, principalID)
	return nil
}
