package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

// domainStatus mirrors control.DomainStatus for decoding the control
// plane's JSON response without importing the server-side package into
// this client-side command.
type domainStatus struct {
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	ID        uint64 `json:"id"`
	Active    bool   `json:"active"`
	Crashes   int64  `json:"crashes"`
	Restarts  int64  `json:"restarts"`
}

func domainsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "domains",
		Short: "Inspect and control domains on a running kernel core",
	}
	cmd.AddCommand(domainsListCmd(), domainsRestartCmd())
	return cmd
}

func domainsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every domain known to the control plane",
		RunE: func(cmd *cobra.Command, args []string) error {
			var statuses []domainStatus
			if err := controlGet("/domains", &statuses); err != nil {
				return err
			}
			return printDomainTable(statuses)
		},
	}
}

func domainsRestartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restart <name>",
		Short: "Restart a single domain in place",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result map[string]string
			if err := controlPost("/domains/"+args[0]+"/restart", &result); err != nil {
				return err
			}
			fmt.Printf("restarted %s (request %s)\n", result["domain"], result["request_id"])
			return nil
		},
	}
}

func printDomainTable(statuses []domainStatus) error {
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tKIND\tID\tACTIVE\tCRASHES\tRESTARTS")
	for _, s := range statuses {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%t\t%d\t%d\n", s.Name, s.Kind, s.ID, s.Active, s.Crashes, s.Restarts)
	}
	return tw.Flush()
}

func controlGet(path string, out any) error {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(controlAddr + path)
	if err != nil {
		return fmt.Errorf("control plane request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("control plane returned %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func controlPost(path string, out any) error {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post(controlAddr+path, "application/json", nil)
	if err != nil {
		return fmt.Errorf("control plane request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		var errBody map[string]string
		json.NewDecoder(resp.Body).Decode(&errBody)
		return fmt.Errorf("control plane returned %s: %s", resp.Status, errBody["error"])
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
