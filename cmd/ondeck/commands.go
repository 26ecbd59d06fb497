package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ondeck-protocol/ondeck"
	"github.com/ondeck-protocol/ondeck/artifact"
	"github.com/ondeck-protocol/ondeck/contract"
	"github.com/ondeck-protocol/ondeck/setup"
)

func newRunCmd(root *rootConf) *cobra.Command {
	var (
		account   string
		caller    string
		bundleOut string
		adopt     bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the whole bootstrap pipeline against the sandbox chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := root.logger()
			chain, err := root.chain(log)
			if err != nil {
				return err
			}
			defer chain.Close()
			code := contract.Code()
			chain.Register(code, contract.New())

			conf := ondeck.Config{
				Account:    account,
				Caller:     caller,
				Builder:    artifact.Static(code),
				Host:       chain,
				BundleFile: bundleOut,
				Logger:     log,
			}
			if adopt {
				conf.Policy = ondeck.AdoptExisting
			}
			pipeline, err := ondeck.New(conf)
			if err != nil {
				return err
			}
			res, err := pipeline.Run(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "account %s bound to fingerprint %x\n",
				res.Account, res.Fingerprint)
			if res.Adopted {
				fmt.Fprintln(cmd.OutOrStdout(), "adopted parameters already bound to the account")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&account, "account", "cards.sandbox", "destination account")
	cmd.Flags().StringVar(&caller, "caller", "deployer.sandbox", "calling account")
	cmd.Flags().StringVar(&bundleOut, "bundle-out", "", "also write the serialized bundle to this file")
	cmd.Flags().BoolVar(&adopt, "adopt", false, "adopt an account that is already deployed or initialized")
	return cmd
}

func newCeremonyCmd(root *rootConf) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "ceremony",
		Short: "Run the trusted setup ceremony and write the parameter bundle",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := root.logger()
			bundle, err := setup.Run(setup.Conf{})
			if err != nil {
				return fmt.Errorf("ceremony failed: %v", err)
			}
			if err := bundle.WriteFile(out); err != nil {
				return err
			}
			log.Info().Str("file", out).Msg("bundle written")
			fmt.Fprintln(cmd.OutOrStdout(), bundle.FingerprintHex())
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "params.cbor", "output file for the parameter bundle")
	return cmd
}

func newDeployCmd(root *rootConf) *cobra.Command {
	var (
		params  string
		account string
		caller  string
	)
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy the contract and bind a ceremony file's parameters to it",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := root.logger()

			// full validation before anything touches the chain
			bundle, err := setup.ReadBundleFile(params)
			if err != nil {
				return err
			}
			encoded, err := bundle.Encode()
			if err != nil {
				return err
			}

			chain, err := root.chain(log)
			if err != nil {
				return err
			}
			defer chain.Close()
			code := contract.Code()
			chain.Register(code, contract.New())
			art, err := artifact.New(code)
			if err != nil {
				return err
			}

			info, err := chain.AccountInfo(ctx, account)
			if err != nil {
				return err
			}
			switch {
			case !info.Exists:
				if _, err := chain.Deploy(ctx, account, art.Code); err != nil {
					return fmt.Errorf("failed to deploy to %s: %v", account, err)
				}
			case info.CodeHash != art.Hash:
				return fmt.Errorf("account %s holds different code", account)
			}

			if _, err := chain.Call(ctx, caller, account, contract.MethodInit, encoded); err != nil {
				return fmt.Errorf("failed to bind parameters: %v", err)
			}
			log.Info().Str("account", account).Str("fingerprint", bundle.FingerprintHex()).
				Msg("parameters bound")
			fmt.Fprintf(cmd.OutOrStdout(), "account %s bound to fingerprint %s\n",
				account, bundle.FingerprintHex())
			return nil
		},
	}
	cmd.Flags().StringVarP(&params, "params", "p", "params.cbor", "parameter bundle file to bind")
	cmd.Flags().StringVar(&account, "account", "cards.sandbox", "destination account")
	cmd.Flags().StringVar(&caller, "caller", "deployer.sandbox", "calling account")
	return cmd
}

func newInspectCmd(root *rootConf) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <bundle-file>",
		Short: "Decode a parameter bundle file and check its fingerprint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bundle, err := setup.ReadBundleFile(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "scheme:      %s\n", bundle.Scheme)
			fmt.Fprintf(out, "deck:        %d x %d (%d cards)\n",
				bundle.Params.M, bundle.Params.N, bundle.Params.NumCards())
			fmt.Fprintf(out, "commit key:  %d points\n", len(bundle.Params.CommitKey))
			fmt.Fprintf(out, "fingerprint: %s\n", bundle.FingerprintHex())
			return nil
		},
	}
	return cmd
}
