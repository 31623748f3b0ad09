package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/phone-enrich/internal/phone"
)

var validateCmd = &cobra.Command{
	Use:   "validate <phone>...",
	Short: "Validate and normalize Singapore phone numbers",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := initValidator(cfg.Phone)
		if err != nil {
			return err
		}
		formatValidations(os.Stdout, validatePhones(v, args))
		return nil
	},
}

// phoneValidation is the outcome of validating one raw value.
type phoneValidation struct {
	Input string `json:"input"`
	Phone string `json:"phone,omitempty"`
	Valid bool   `json:"valid"`
}

func validatePhones(v *phone.Validator, raws []string) []phoneValidation {
	out := make([]phoneValidation, len(raws))
	for i, raw := range raws {
		p, ok := v.Validate(raw)
		out[i] = phoneValidation{Input: raw, Phone: p, Valid: ok}
	}
	return out
}

func formatValidations(out io.Writer, results []phoneValidation) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "INPUT\tVALID\tPHONE")
	for _, r := range results {
		_, _ = fmt.Fprintf(w, "%s\t%t\t%s\n", r.Input, r.Valid, r.Phone)
	}
	_ = w.Flush()
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
