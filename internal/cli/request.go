package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/MrEthical07/printdesk"
	"github.com/spf13/cobra"
)

func newRequestCommand(e *env) *cobra.Command {
	var data string
	var headers []string

	cmd := &cobra.Command{
		Use:   "request METHOD PATH",
		Short: "Send one authenticated request",
		Long: `Send one request with the stored access token and print the response body.

PATH is resolved against base_url unless it is an absolute URL.`,
		Example: `  printdesk request GET /api/orders/
  printdesk request POST /api/orders/ --data '{"design":"poster-a2","copies":40}'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var body []byte
			if data != "" {
				if !json.Valid([]byte(data)) {
					return fmt.Errorf("--data is not valid JSON")
				}
				body = []byte(data)
			}

			req := printdesk.NewRequest(strings.ToUpper(args[0]), args[1], body)
			req.Header.Set("Accept", "application/json")
			if body != nil {
				req.Header.Set("Content-Type", "application/json")
			}
			for _, h := range headers {
				k, v, ok := strings.Cut(h, ":")
				if !ok {
					return fmt.Errorf("invalid header %q, want Name: value", h)
				}
				req.Header.Add(strings.TrimSpace(k), strings.TrimSpace(v))
			}

			resp, err := e.client.Do(cmd.Context(), req)
			if err != nil {
				if apiErr, ok := printdesk.AsAPIError(err); ok && !apiErr.IsUnauthorized() {
					_ = writeBody(cmd.ErrOrStderr(), apiErr.Body)
				}
				return err
			}
			if resp.StatusCode != http.StatusOK {
				fmt.Fprintf(cmd.ErrOrStderr(), "%d %s\n", resp.StatusCode, http.StatusText(resp.StatusCode))
			}
			return writeBody(cmd.OutOrStdout(), resp.Body)
		},
	}
	cmd.Flags().StringVarP(&data, "data", "d", "", "JSON request body")
	cmd.Flags().StringArrayVarP(&headers, "header", "H", nil, "extra header, repeatable")
	return cmd
}
