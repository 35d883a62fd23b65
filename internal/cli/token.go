package cli

import (
	"fmt"

	"github.com/ogulcanaydogan/LLM-Route-Guardian/pkg/auth"
	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage gateway access tokens",
}

var tokenIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue a signed bearer token for the gateway",
	RunE:  runTokenIssue,
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.AddCommand(tokenIssueCmd)

	tokenIssueCmd.Flags().String("subject", "", "Token subject (team or service name)")
	tokenIssueCmd.Flags().String("project", "", "Project usage is attributed to")
	tokenIssueCmd.Flags().Bool("operator-keys", false, "Allow the bearer to use operator keys")
	tokenIssueCmd.Flags().Duration("ttl", auth.DefaultTTL, "Token lifetime")
	_ = tokenIssueCmd.MarkFlagRequired("subject")
}

func runTokenIssue(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	subject, _ := cmd.Flags().GetString("subject")
	project, _ := cmd.Flags().GetString("project")
	operatorKeys, _ := cmd.Flags().GetBool("operator-keys")
	ttl, _ := cmd.Flags().GetDuration("ttl")

	issuer, err := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	if err != nil {
		return fmt.Errorf("auth.jwt_secret: %w", err)
	}

	token, err := issuer.Issue(subject, project, operatorKeys, ttl)
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}

	fmt.Println(token)
	return nil
}
