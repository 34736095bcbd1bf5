package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fern/pkg/matching"
)

func newMatchCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "match",
		Short: "Rank canonical records against a partial identity",
	}

	var company matching.CompanyProbe
	companyCmd := &cobra.Command{
		Use:   "company",
		Short: "Find companies matching a name, domain, website or social URL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), flags, func(ctx context.Context, a *app) error {
				result, err := a.matcher.FindCompanyMatches(ctx, company)
				if err != nil {
					return err
				}
				return writeJSON(cmd, result)
			})
		},
	}
	companyCmd.Flags().StringVar(&company.Name, "name", "", "Company name")
	companyCmd.Flags().StringVar(&company.Domain, "domain", "", "Company domain")
	companyCmd.Flags().StringVar(&company.Website, "website", "", "Company website")
	companyCmd.Flags().StringVar(&company.SocialURL, "social-url", "", "Company social profile URL")
	companyCmd.Flags().StringSliceVar(&company.ExcludeIDs, "exclude", nil, "Record ids never returned")

	var person matching.PersonProbe
	personCmd := &cobra.Command{
		Use:   "person",
		Short: "Find people matching a name, email or social URL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), flags, func(ctx context.Context, a *app) error {
				result, err := a.matcher.FindPersonMatches(ctx, person)
				if err != nil {
					return err
				}
				return writeJSON(cmd, result)
			})
		},
	}
	personCmd.Flags().StringVar(&person.FirstName, "first-name", "", "First name")
	personCmd.Flags().StringVar(&person.LastName, "last-name", "", "Last name")
	personCmd.Flags().StringVar(&person.FullName, "full-name", "", "Full name, used instead of first and last")
	personCmd.Flags().StringVar(&person.Email, "email", "", "Email address")
	personCmd.Flags().StringVar(&person.SocialURL, "social-url", "", "Social profile URL")
	personCmd.Flags().StringVar(&person.EmployerName, "employer", "", "Employer name")
	personCmd.Flags().StringVar(&person.EmployerID, "employer-id", "", "Employer company id")
	personCmd.Flags().StringVar(&person.Title, "title", "", "Job title")
	personCmd.Flags().StringSliceVar(&person.ExcludeIDs, "exclude", nil, "Record ids never returned")

	cmd.AddCommand(companyCmd, personCmd)
	return cmd
}
