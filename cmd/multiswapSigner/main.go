package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/Layr-Labs/multiswap-go/pkg/config"
	"github.com/Layr-Labs/multiswap-go/pkg/fiberrouter"
	"github.com/Layr-Labs/multiswap-go/pkg/host"
	"github.com/Layr-Labs/multiswap-go/pkg/logger"
	"github.com/Layr-Labs/multiswap-go/pkg/multiswap"
	"github.com/Layr-Labs/multiswap-go/pkg/multiswap/sigverify"
	"github.com/Layr-Labs/multiswap-go/pkg/node"
	"github.com/Layr-Labs/multiswap-go/pkg/signer"
	"github.com/Layr-Labs/multiswap-go/pkg/transport"
	"github.com/Layr-Labs/multiswap-go/pkg/types"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:    "multiswapSigner",
		Usage:   "Produce and check withdrawal approvals for the multiswap contract",
		Version: "1.0.0",
		Commands: []*cli.Command{
			{
				Name:  "keygen",
				Usage: "Generate a new signing key",
				Action: func(c *cli.Context) error {
					s, err := signer.Generate()
					if err != nil {
						return err
					}
					return printJSON(map[string]string{
						"address":     s.Address(),
						"private_key": s.PrivateKeyHex(),
					})
				},
			},
			{
				Name:  "sign",
				Usage: "Sign a withdrawal and print the withdraw_signed message",
				Flags: append(messageFlags(), &cli.StringFlag{
					Name:     "private-key",
					Usage:    "Hex encoded secp256k1 private key",
					EnvVars:  []string{config.EnvSignerPrivateKey},
					Required: true,
				}),
				Action: runSign,
			},
			{
				Name:  "submit",
				Usage: "Sign a withdrawal and submit it to a node through the router",
				Flags: append(messageFlags(),
					&cli.StringFlag{
						Name:     "private-key",
						Usage:    "Hex encoded secp256k1 private key",
						EnvVars:  []string{config.EnvSignerPrivateKey},
						Required: true,
					},
					&cli.StringFlag{
						Name:  "node-url",
						Usage: "Base URL of the multiswapd node",
						Value: "http://localhost:8000",
					},
					&cli.StringFlag{
						Name:  "sender-key",
						Usage: "Hex encoded key of the account submitting the withdrawal. Defaults to --private-key",
					},
					&cli.StringFlag{
						Name:  "contract",
						Usage: "Router label or address",
						Value: node.LabelRouter,
					},
					&cli.BoolFlag{
						Name:  "verbose",
						Usage: "Enable debug logging",
					},
				),
				Action: runSubmit,
			},
			{
				Name:  "recover",
				Usage: "Recover the signer address of a withdrawal signature",
				Flags: append(messageFlags(), &cli.StringFlag{
					Name:     "signature",
					Usage:    "Hex encoded 65 byte signature",
					Required: true,
				}),
				Action: runRecover,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func messageFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "chain-id", Usage: "Chain id of the settlement node", EnvVars: []string{config.EnvMultiswapChainID}, Required: true},
		&cli.StringFlag{Name: "payee", Usage: "Recipient address", Required: true},
		&cli.StringFlag{Name: "token", Usage: "Token denomination", Required: true},
		&cli.StringFlag{Name: "amount", Usage: "Amount as a decimal string", Required: true},
		&cli.StringFlag{Name: "salt", Usage: "One-time salt", Required: true},
	}
}

func parseMessage(c *cli.Context) (sigverify.WithdrawSignMessage, error) {
	amount, err := types.ParseUint128(c.String("amount"))
	if err != nil {
		return sigverify.WithdrawSignMessage{}, fmt.Errorf("invalid amount: %w", err)
	}
	return sigverify.WithdrawSignMessage{
		ChainID: c.String("chain-id"),
		Payee:   c.String("payee"),
		Token:   c.String("token"),
		Amount:  amount,
		Salt:    c.String("salt"),
	}, nil
}

func runSign(c *cli.Context) error {
	msg, err := parseMessage(c)
	if err != nil {
		return err
	}
	s, err := signer.New(c.String("private-key"))
	if err != nil {
		return err
	}
	sig, err := s.SignWithdrawal(msg)
	if err != nil {
		return err
	}

	return printJSON(multiswap.ExecuteMsg{WithdrawSigned: &multiswap.WithdrawSignedMsg{
		Payee:     msg.Payee,
		Token:     msg.Token,
		Amount:    msg.Amount,
		Salt:      msg.Salt,
		Signature: sig,
	}})
}

func runSubmit(c *cli.Context) error {
	msg, err := parseMessage(c)
	if err != nil {
		return err
	}
	s, err := signer.New(c.String("private-key"))
	if err != nil {
		return err
	}
	sig, err := s.SignWithdrawal(msg)
	if err != nil {
		return err
	}

	sender := s
	if key := c.String("sender-key"); key != "" {
		if sender, err = signer.New(key); err != nil {
			return fmt.Errorf("invalid sender key: %w", err)
		}
	}

	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: c.Bool("verbose")})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	client, err := transport.NewClient(&transport.ClientConfig{
		BaseURL: c.String("node-url"),
		Signer:  sender,
		Logger:  l,
	})
	if err != nil {
		return err
	}

	execMsg := fiberrouter.ExecuteMsg{WithdrawSigned: &multiswap.WithdrawSignedMsg{
		Payee:     msg.Payee,
		Token:     msg.Token,
		Amount:    msg.Amount,
		Salt:      msg.Salt,
		Signature: sig,
	}}
	res, err := client.Execute(c.Context, node.ExecuteRequest{
		ChainID:  msg.ChainID,
		Contract: c.String("contract"),
		Msg:      host.MustJSON(execMsg),
	})
	if err != nil {
		return fmt.Errorf("failed to submit withdrawal: %w", err)
	}
	return printJSON(res)
}

func runRecover(c *cli.Context) error {
	msg, err := parseMessage(c)
	if err != nil {
		return err
	}
	addr, err := sigverify.RecoverSigner(sigverify.Secp256k1{}, msg, c.String("signature"))
	if err != nil {
		return err
	}
	return printJSON(map[string]string{
		"signer":  addr,
		"message": string(msg.CanonicalJSON()),
	})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
