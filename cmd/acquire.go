package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mrmoe28/permitscout/internal/permits"
	"github.com/mrmoe28/permitscout/internal/pipeline"
)

// acquireFlags collects the jurisdiction and address inputs for a one-shot
// acquisition.
type acquireFlags struct {
	name      string
	jType     string
	website   string
	permitURL string

	street string
	city   string
	state  string
	zip    string

	maxDocuments int
	maxFlows     int
	bypassCache  bool
}

// newAcquireCmd creates the 'acquire' subcommand: run one acquisition and
// print the scored result as JSON.
func newAcquireCmd() *cobra.Command {
	var flags acquireFlags
	cmd := &cobra.Command{
		Use:   "acquire",
		Short: "Run one acquisition and print the result as JSON",
		Long: `Runs the full acquisition pipeline for a single jurisdiction. Provide
at least a name or a website; with only a name, discovery guesses and
validates candidate government domains first.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAcquire(cmd, flags)
		},
	}

	cmd.Flags().StringVar(&flags.name, "name", "", "jurisdiction name, e.g. \"Springfield\"")
	cmd.Flags().StringVar(&flags.jType, "type", "city", "jurisdiction type: city, county, or state")
	cmd.Flags().StringVar(&flags.website, "website", "", "known website URL (skips discovery)")
	cmd.Flags().StringVar(&flags.permitURL, "permit-url", "", "known permit page URL")
	cmd.Flags().StringVar(&flags.street, "street", "", "street address for geocoding")
	cmd.Flags().StringVar(&flags.city, "city", "", "address city")
	cmd.Flags().StringVar(&flags.state, "state", "", "address state")
	cmd.Flags().StringVar(&flags.zip, "zip", "", "address zip code")
	cmd.Flags().IntVar(&flags.maxDocuments, "max-documents", 0, "override the document analysis bound")
	cmd.Flags().IntVar(&flags.maxFlows, "max-flows", 0, "override the flow mapping bound")
	cmd.Flags().BoolVar(&flags.bypassCache, "bypass-cache", false, "skip cache reads for this run")

	return cmd
}

func runAcquire(cmd *cobra.Command, flags acquireFlags) error {
	runner, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	j := &permits.Jurisdiction{
		Name:      flags.name,
		Type:      permits.JurisdictionType(strings.ToLower(flags.jType)),
		Website:   flags.website,
		PermitURL: flags.permitURL,
	}
	var addr *permits.Address
	if flags.street != "" || flags.city != "" || flags.state != "" || flags.zip != "" {
		addr = &permits.Address{
			Street: flags.street,
			City:   flags.city,
			State:  flags.state,
			Zip:    flags.zip,
		}
	}
	opts := pipeline.Options{
		MaxDocuments: flags.maxDocuments,
		MaxFlows:     flags.maxFlows,
		BypassCache:  flags.bypassCache,
	}

	res, err := runner.Acquire(cmd.Context(), j, addr, opts)
	if err != nil {
		return fmt.Errorf("acquire: %w", err)
	}

	out, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	cmd.Println(string(out))
	runner.Logger().Info("acquisition complete",
		zap.String("acquisition_id", res.ID),
		zap.Float64("confidence", res.Confidence))
	return nil
}
