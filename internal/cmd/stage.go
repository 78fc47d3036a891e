package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/harrison/collabgen/internal/models"
	"github.com/harrison/collabgen/internal/stage"
)

// NewStageCommand creates the stage command
func NewStageCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stage <research|product|marketing|quality>",
		Short: "Run a single generation stage",
		Long: `Run one stage outside the pipeline and print its output.

Product needs a research report; marketing needs research and product
reports. Prior reports are read from files.

Examples:
  collabgen stage research --company Acme --partner Globex --domain AI
  collabgen stage product --company Acme --domain AI --research research.md
  collabgen stage quality --content draft.md --content-type "marketing plan"`,
		Args: cobra.ExactArgs(1),
		RunE: runStage,
	}

	cmd.Flags().String("company", "", "Company name")
	cmd.Flags().String("partner", "", "Partner company name")
	cmd.Flags().String("domain", "", "Industry domain")
	cmd.Flags().String("research", "", "File holding the research report")
	cmd.Flags().String("product", "", "File holding the product report")
	cmd.Flags().String("content", "", "File holding content for the quality stage")
	cmd.Flags().String("content-type", "report", "Content type label for the quality stage")

	return cmd
}

func runStage(cmd *cobra.Command, args []string) error {
	name, err := models.ParseStageName(args[0])
	if err != nil {
		return err
	}

	in := stage.Input{}
	in.CompanyName, _ = cmd.Flags().GetString("company")
	in.PartnerCompany, _ = cmd.Flags().GetString("partner")
	in.Domain, _ = cmd.Flags().GetString("domain")
	in.ContentType, _ = cmd.Flags().GetString("content-type")

	files := []struct {
		flag string
		dst  *string
	}{
		{"research", &in.Research},
		{"product", &in.Product},
		{"content", &in.Content},
	}
	for _, f := range files {
		path, _ := cmd.Flags().GetString(f.flag)
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read --%s file: %w", f.flag, err)
		}
		*f.dst = string(data)
	}

	a, err := newApp(cmd, appOptions{generation: true})
	if err != nil {
		return err
	}
	defer a.Close()

	text, err := a.orch.RunStage(cmd.Context(), name, in)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), text)
	return nil
}
