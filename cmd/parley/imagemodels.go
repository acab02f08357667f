package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrock"
	"github.com/spf13/cobra"
)

// newImageModelsCmd lists image-capable Bedrock foundation models, a
// quick diagnostic when wiring up the bedrock image backend.
func newImageModelsCmd() *cobra.Command {
	var region string
	cmd := &cobra.Command{
		Use:   "image-models",
		Short: "List image generation models available on Bedrock",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
			if err != nil {
				return fmt.Errorf("loading aws config: %w", err)
			}

			client := bedrock.NewFromConfig(awsCfg)
			out, err := client.ListFoundationModels(ctx, &bedrock.ListFoundationModelsInput{})
			if err != nil {
				return fmt.Errorf("listing foundation models: %w", err)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "MODEL ID\tPROVIDER\tNAME")
			for _, m := range out.ModelSummaries {
				if !hasImageOutput(m.OutputModalities) {
					continue
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n",
					deref(m.ModelId), deref(m.ProviderName), deref(m.ModelName))
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&region, "region", envOr("AWS_REGION", "us-west-2"), "AWS region")
	return cmd
}

func hasImageOutput[T ~string](modalities []T) bool {
	for _, m := range modalities {
		if string(m) == "IMAGE" {
			return true
		}
	}
	return false
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
