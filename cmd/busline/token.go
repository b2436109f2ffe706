package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/pkordes/busline/internal/config"
	"github.com/pkordes/busline/internal/domain"
	"github.com/pkordes/busline/internal/middleware"
)

var (
	flagActorID   string
	flagCompanyID string
	flagRole      string
	flagStaffRole string
	flagTTL       time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Print a signed bearer token for local development",
	Long: `Signs a token with JWT_SECRET for the given actor. Production tokens are
issued by the identity provider; this command exists so the API can be
exercised with curl against a local server.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		secret, err := config.LoadJWTSecret(configFile)
		if err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}
		actorID, err := uuid.Parse(flagActorID)
		if err != nil {
			return fmt.Errorf("--actor: %w", err)
		}
		companyID, err := uuid.Parse(flagCompanyID)
		if err != nil {
			return fmt.Errorf("--company: %w", err)
		}
		role := domain.Role(flagRole)
		if role != domain.RoleCompanyAdmin && role != domain.RoleStaff {
			return fmt.Errorf("--role must be %s or %s", domain.RoleCompanyAdmin, domain.RoleStaff)
		}

		token, err := middleware.IssueToken([]byte(secret), domain.Actor{
			ID:        actorID,
			CompanyID: companyID,
			Role:      role,
			StaffRole: domain.StaffRole(flagStaffRole),
		}, flagTTL, time.Now())
		if err != nil {
			return fmt.Errorf("sign token: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&flagActorID, "actor", "", "actor id (uuid)")
	tokenCmd.Flags().StringVar(&flagCompanyID, "company", "", "company id (uuid)")
	tokenCmd.Flags().StringVar(&flagRole, "role", string(domain.RoleCompanyAdmin), "COMPANY_ADMIN or STAFF")
	tokenCmd.Flags().StringVar(&flagStaffRole, "staff-role", "", "optional staff sub-role, e.g. DRIVER")
	tokenCmd.Flags().DurationVar(&flagTTL, "ttl", 12*time.Hour, "token lifetime")
	_ = tokenCmd.MarkFlagRequired("actor")
	_ = tokenCmd.MarkFlagRequired("company")
}
