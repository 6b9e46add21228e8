// Package main implements the devaudit CLI: matrix precomputation and
// manual operations against the devauditd HTTP server.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	httpapi "github.com/fyrsmithlabs/devaudit/internal/http"
)

var (
	// serverURL is the base URL for the devauditd HTTP server
	serverURL string
	// owner identifies the auditor on every request
	owner string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "devaudit",
	Short: "CLI for the devaudit deviation analysis service",
	Long: `devaudit precomputes the taxonomy embedding matrices and talks to the
devauditd HTTP server: authorization, deviation records, report builds,
section editing and export.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("DEVAUDIT_SERVER", "http://127.0.0.1:8085"), "devauditd server URL")
	rootCmd.PersistentFlags().StringVar(&owner, "owner", envOr("DEVAUDIT_OWNER", os.Getenv("USER")), "auditor id sent as "+httpapi.HeaderOwner)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(authCmd)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// apiError is a non-2xx reply of the server.
type apiError struct {
	Status int
	Body   httpapi.ErrorResponse
}

func (e *apiError) Error() string {
	msg := fmt.Sprintf("server returned status %d: %s", e.Status, e.Body.Error)
	if e.Body.Stage != "" {
		msg += fmt.Sprintf(" (stage %s)", e.Body.Stage)
	}
	if e.Body.Hint != "" {
		msg += "; " + e.Body.Hint
	}
	return msg
}

// client calls the devauditd API on behalf of one owner.
type client struct {
	base  string
	owner string
	http  *http.Client
}

func newClient() *client {
	return &client{
		base:  strings.TrimRight(serverURL, "/"),
		owner: owner,
		http:  &http.Client{Timeout: 10 * time.Minute},
	}
}

// do sends in as JSON (if non-nil) and decodes a JSON reply into out (if
// non-nil). Replies that are not JSON are copied into out when it is a
// *bytes.Buffer.
func (c *client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	url := c.base + path
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.owner != "" {
		req.Header.Set(httpapi.HeaderOwner, c.owner)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &apiError{Status: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr.Body); err != nil {
			apiErr.Body.Error = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	switch dst := out.(type) {
	case nil:
		return nil
	case *bytes.Buffer:
		_, err := io.Copy(dst, resp.Body)
		return err
	default:
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		return nil
	}
}

// printJSON writes v indented to the command output.
func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check devauditd server health",
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp httpapi.HealthResponse
		if err := newClient().do(cmd.Context(), http.MethodGet, "/health", nil, &resp); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Server Status: %s\n", resp.Status)
		fmt.Fprintf(cmd.OutOrStdout(), "Active builds: %d\n", resp.ActiveJobs)
		fmt.Fprintf(cmd.OutOrStdout(), "Server URL: %s\n", serverURL)
		return nil
	},
}

var authPassword string

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authorize for today with the shared password",
	Long: `Authorize the owner for the current calendar day.

The password is read from --password, DEVAUDIT_PASSWORD, or the first line of
stdin, in that order.

Examples:
  devaudit auth --owner auditor@example.com --password "$PW"
  echo "$PW" | devaudit auth`,
	RunE: func(cmd *cobra.Command, args []string) error {
		pw := authPassword
		if pw == "" {
			pw = os.Getenv("DEVAUDIT_PASSWORD")
		}
		if pw == "" {
			line, err := readLine(cmd.InOrStdin())
			if err != nil {
				return err
			}
			pw = line
		}
		err := newClient().do(cmd.Context(), http.MethodPost, "/api/v1/auth", httpapi.AuthRequest{Password: pw}, nil)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Authorized %s for today\n", owner)
		return nil
	},
}

func init() {
	authCmd.Flags().StringVar(&authPassword, "password", "", "shared daily password")
}

func readLine(r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil {
		return "", fmt.Errorf("failed to read from stdin: %w", err)
	}
	line, _, _ := strings.Cut(string(data), "\n")
	return strings.TrimSpace(line), nil
}
