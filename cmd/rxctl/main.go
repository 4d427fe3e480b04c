// Command rxctl is the operator CLI for the prescription exchange: key
// generation, payload inspection, and a self-contained demo of the full
// issue/scan/dispense loop.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	root := &cobra.Command{
		Use:           "rxctl",
		Short:         "Prescription exchange toolbox",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("issuer-did", "did:web:clinic.example:dev-issuer", "issuer DID for locally minted credentials")
	cobra.CheckErr(viper.BindPFlag("issuer_did", root.PersistentFlags().Lookup("issuer-did")))
	viper.SetEnvPrefix("RXCHANGE")
	viper.AutomaticEnv()

	root.AddCommand(newKeygenCmd(), newDecodeCmd(), newDemoCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
