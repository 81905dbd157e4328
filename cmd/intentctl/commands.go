package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/layer-3/paygate/adapters/signer"
	"github.com/layer-3/paygate/codec"
	"github.com/layer-3/paygate/core"
	"github.com/spf13/cobra"
)

// NewRootCmd builds the intentctl command tree
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "intentctl",
		Short:        "Create, sign and inspect payment intents",
		SilenceUsage: true,
	}
	root.PersistentFlags().String("network", "solana:devnet", "Network identifier, e.g. solana:devnet or eip155:8453")

	root.AddCommand(CmdKeygen(), CmdSign(), CmdDecode())
	return root
}

func CmdKeygen() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a payer key for the network",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			network, err := cmd.Flags().GetString("network")
			if err != nil {
				return err
			}

			key, err := signer.NewKey(network)
			if err != nil {
				return err
			}

			return writeJSON(cmd.OutOrStdout(), map[string]string{
				"network": network,
				"address": key.Address(),
				"secret":  key.Secret(),
			})
		},
	}
}

func CmdSign() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sign [recipient] [token] [amount]",
		Short: "Sign a payment intent and print its encoded payload",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			network, err := flags.GetString("network")
			if err != nil {
				return err
			}
			secret, err := flags.GetString("key")
			if err != nil {
				return err
			}
			validFor, err := flags.GetDuration("valid-for")
			if err != nil {
				return err
			}
			nonce, err := flags.GetString("nonce")
			if err != nil {
				return err
			}
			memo, err := flags.GetString("memo")
			if err != nil {
				return err
			}

			if secret == "" {
				return fmt.Errorf("--key is required")
			}
			if !codec.ValidAmount(args[2]) {
				return fmt.Errorf("amount must be a non-negative integer of smallest units, got %q", args[2])
			}
			if nonce == "" {
				nonce = uuid.New().String()
			}

			key, err := signer.LoadKey(network, secret)
			if err != nil {
				return err
			}

			intent := &core.PaymentIntent{
				Version:    "1",
				Network:    network,
				Payer:      key.Address(),
				Recipient:  args[0],
				Token:      args[1],
				Amount:     args[2],
				ValidUntil: time.Now().Add(validFor).UnixMilli(),
				Nonce:      nonce,
				Memo:       memo,
			}
			if intent.Signature, err = key.Sign(codec.SigningBytes(intent)); err != nil {
				return err
			}

			encoded, err := codec.Encode(intent)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), encoded)
			return err
		},
	}
	cmd.Flags().String("key", "", "Payer private key (base58 for Solana, hex for EVM)")
	cmd.Flags().Duration("valid-for", 5*time.Minute, "How long the intent stays valid")
	cmd.Flags().String("nonce", "", "Uniqueness token, random when empty")
	cmd.Flags().String("memo", "", "Purpose, e.g. rent:<id>:<days>days or wager:<matchId>")
	return cmd
}

func CmdDecode() *cobra.Command {
	return &cobra.Command{
		Use:   "decode [payload]",
		Short: "Decode a payload and check its signature",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			intent := codec.Decode(strings.TrimSpace(args[0]))
			if intent == nil {
				return fmt.Errorf("%s", core.CodeInvalidPayload)
			}

			signatureValid := false
			if scheme, err := signer.NewRegistry().ForNetwork(intent.Network); err == nil {
				signatureValid = scheme.Verify(intent.Payer, codec.SigningBytes(intent), intent.Signature)
			}

			return writeJSON(cmd.OutOrStdout(), map[string]any{
				"version":        intent.Version,
				"network":        intent.Network,
				"payer":          intent.Payer,
				"recipient":      intent.Recipient,
				"token":          intent.Token,
				"amount":         intent.Amount,
				"validUntil":     intent.ValidUntil,
				"expired":        !time.Now().Before(intent.ExpiresAt()),
				"nonce":          intent.Nonce,
				"memo":           intent.Memo,
				"type":           core.ClassifyMemo(intent.Memo),
				"signature":      intent.Signature,
				"signatureValid": signatureValid,
			})
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
