package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/harunnryd/warden/internal/auth"
	"github.com/harunnryd/warden/internal/skill/formatter"

	"github.com/spf13/cobra"
)

var signCmd = &cobra.Command{
	Use:   "sign [method] [path]",
	Short: "Print signature headers for a request",
	Long: `Signs one request as the configured service and prints the headers, ready for curl -H.
The path must include the query string exactly as it will be sent. Each run uses a fresh nonce.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		signer, err := signerFor(cfg)
		if err != nil {
			return err
		}
		bodyPath, _ := cmd.Flags().GetString("body")
		body, err := readBody(bodyPath, cmd.InOrStdin())
		if err != nil {
			return err
		}

		headers := signer.Sign(strings.ToUpper(args[0]), args[1], body)
		format, err := outputFormat(cmd)
		if err != nil {
			return err
		}
		if format != formatter.OutputFormatTable {
			out, err := render(format, headerMap(headers), nil)
			if err != nil {
				return err
			}
			return writeLine(cmd.OutOrStdout(), out)
		}
		return writeLine(cmd.OutOrStdout(), headerLines(headers))
	},
}

// readBody reads the request body from a file, or stdin when path is "-".
func readBody(path string, stdin io.Reader) ([]byte, error) {
	switch path {
	case "":
		return nil, nil
	case "-":
		return io.ReadAll(stdin)
	default:
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read body: %w", err)
		}
		return data, nil
	}
}

func headerMap(h auth.Headers) map[string]string {
	return map[string]string{
		auth.HeaderServiceID: h.ServiceID,
		auth.HeaderTimestamp: h.Timestamp,
		auth.HeaderNonce:     h.Nonce,
		auth.HeaderSignature: h.Signature,
	}
}

func headerLines(h auth.Headers) string {
	return strings.Join([]string{
		auth.HeaderServiceID + ": " + h.ServiceID,
		auth.HeaderTimestamp + ": " + h.Timestamp,
		auth.HeaderNonce + ": " + h.Nonce,
		auth.HeaderSignature + ": " + h.Signature,
	}, "\n")
}

func init() {
	signCmd.Flags().String("body", "", "file holding the request body, - for stdin")
	rootCmd.AddCommand(signCmd)
}
