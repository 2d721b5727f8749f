package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var snapshotCmd = &cobra.Command{
	Use:     "snapshot",
	Aliases: []string{"snapshots", "snap"},
	Short:   "Manage evidence snapshots",
	Long:    `Create, lock, verify, and package evidence snapshots.`,
}

var snapshotListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List snapshots",
	Long:    `List the organization's snapshots, newest first.`,
	RunE:    runSnapshotList,
}

var snapshotGetCmd = &cobra.Command{
	Use:     "get <snapshot-id>",
	Aliases: []string{"show"},
	Short:   "Get a snapshot by ID",
	Args:    cobra.ExactArgs(1),
	RunE:    runSnapshotGet,
}

var snapshotCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new open snapshot",
	Long: `Create a new evidence snapshot in the open state.

Examples:
  snapseal-cli snapshot create --name "SOC 2 Q3 evidence"`,
	RunE: runSnapshotCreate,
}

var snapshotLockCmd = &cobra.Command{
	Use:   "lock <snapshot-id>",
	Short: "Lock a snapshot and print its signed manifest",
	Long: `Freeze a snapshot. Locking builds the manifest over the snapshot's
evidence files, signs it, persists it to storage, and flips the snapshot to
locked. A locked snapshot can never be reopened.`,
	Args: cobra.ExactArgs(1),
	RunE: runSnapshotLock,
}

var snapshotManifestCmd = &cobra.Command{
	Use:   "manifest <snapshot-id>",
	Short: "Fetch the signed manifest of a locked snapshot",
	Args:  cobra.ExactArgs(1),
	RunE:  runSnapshotManifest,
}

var snapshotVerifyCmd = &cobra.Command{
	Use:   "verify <snapshot-id>",
	Short: "Verify a locked snapshot against storage",
	Long: `Re-verify a locked snapshot: recompute the manifest hash, check the
integrity envelope, and compare every recorded file hash against the bytes
currently in storage. Drift is reported in the result, not as an error.`,
	Args: cobra.ExactArgs(1),
	RunE: runSnapshotVerify,
}

var snapshotPackageCmd = &cobra.Command{
	Use:     "package <snapshot-id>",
	Aliases: []string{"pack", "export"},
	Short:   "Export an evidence package for a locked snapshot",
	Args:    cobra.ExactArgs(1),
	RunE:    runSnapshotPackage,
}

// Flags
var (
	snapshotName         string
	snapshotLimit        int
	snapshotOffset       int
	snapshotIncludeFiles bool
)

func init() {
	// List flags
	snapshotListCmd.Flags().IntVar(&snapshotLimit, "limit", 50, "Maximum number of snapshots to return")
	snapshotListCmd.Flags().IntVar(&snapshotOffset, "offset", 0, "Offset for pagination")

	// Create flags
	snapshotCreateCmd.Flags().StringVar(&snapshotName, "name", "", "Snapshot name")

	// Package flags
	snapshotPackageCmd.Flags().BoolVar(&snapshotIncludeFiles, "include-files", false, "Bundle the evidence files themselves into the archive")

	// Add subcommands
	snapshotCmd.AddCommand(snapshotListCmd)
	snapshotCmd.AddCommand(snapshotGetCmd)
	snapshotCmd.AddCommand(snapshotCreateCmd)
	snapshotCmd.AddCommand(snapshotLockCmd)
	snapshotCmd.AddCommand(snapshotManifestCmd)
	snapshotCmd.AddCommand(snapshotVerifyCmd)
	snapshotCmd.AddCommand(snapshotPackageCmd)
}

func requireOrganization() error {
	if organizationID == "" {
		return fmt.Errorf("organization ID is required: set --org or SNAPSEAL_ORG_ID")
	}
	return nil
}

func runSnapshotList(cmd *cobra.Command, args []string) error {
	if err := requireOrganization(); err != nil {
		return err
	}
	client := NewAPIClient(serverURL, organizationID)

	path := fmt.Sprintf("/api/v1/snapshots?limit=%d&offset=%d", snapshotLimit, snapshotOffset)

	resp, err := client.Get(path)
	if err != nil {
		return err
	}

	if err := CheckResponse(resp); err != nil {
		return err
	}

	body, err := ReadResponseBody(resp)
	if err != nil {
		return err
	}

	var result map[string]interface{}
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	// Extract snapshots list
	if snapshots, ok := result["snapshots"].([]interface{}); ok {
		if len(snapshots) == 0 {
			fmt.Println("No snapshots found.")
			return nil
		}
		if output == "table" {
			return OutputData(snapshots)
		}
	}

	return OutputData(result)
}

func runSnapshotGet(cmd *cobra.Command, args []string) error {
	if err := requireOrganization(); err != nil {
		return err
	}
	client := NewAPIClient(serverURL, organizationID)

	resp, err := client.Get(fmt.Sprintf("/api/v1/snapshots/%s", args[0]))
	if err != nil {
		return err
	}

	if err := CheckResponse(resp); err != nil {
		return err
	}

	body, err := ReadResponseBody(resp)
	if err != nil {
		return err
	}

	var result map[string]interface{}
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	return OutputData(result)
}

func runSnapshotCreate(cmd *cobra.Command, args []string) error {
	if err := requireOrganization(); err != nil {
		return err
	}
	if snapshotName == "" {
		return fmt.Errorf("--name is required")
	}
	client := NewAPIClient(serverURL, organizationID)

	resp, err := client.Post("/api/v1/snapshots", map[string]interface{}{
		"name": snapshotName,
	})
	if err != nil {
		return err
	}

	if err := CheckResponse(resp); err != nil {
		return err
	}

	body, err := ReadResponseBody(resp)
	if err != nil {
		return err
	}

	var result map[string]interface{}
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	PrintSuccess(fmt.Sprintf("Snapshot created: %v", result["id"]))
	return OutputData(result)
}

func runSnapshotLock(cmd *cobra.Command, args []string) error {
	if err := requireOrganization(); err != nil {
		return err
	}
	client := NewAPIClient(serverURL, organizationID)

	resp, err := client.Post(fmt.Sprintf("/api/v1/snapshots/%s/lock", args[0]), nil)
	if err != nil {
		return err
	}

	if err := CheckResponse(resp); err != nil {
		return err
	}

	body, err := ReadResponseBody(resp)
	if err != nil {
		return err
	}

	var result map[string]interface{}
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	PrintSuccess(fmt.Sprintf("Snapshot %s locked", args[0]))
	return OutputData(result)
}

func runSnapshotManifest(cmd *cobra.Command, args []string) error {
	if err := requireOrganization(); err != nil {
		return err
	}
	client := NewAPIClient(serverURL, organizationID)

	resp, err := client.Get(fmt.Sprintf("/api/v1/snapshots/%s/manifest", args[0]))
	if err != nil {
		return err
	}

	if err := CheckResponse(resp); err != nil {
		return err
	}

	body, err := ReadResponseBody(resp)
	if err != nil {
		return err
	}

	var result map[string]interface{}
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	return OutputData(result)
}

func runSnapshotVerify(cmd *cobra.Command, args []string) error {
	if err := requireOrganization(); err != nil {
		return err
	}
	client := NewAPIClient(serverURL, organizationID)

	resp, err := client.Post(fmt.Sprintf("/api/v1/snapshots/%s/verify", args[0]), nil)
	if err != nil {
		return err
	}

	if err := CheckResponse(resp); err != nil {
		return err
	}

	body, err := ReadResponseBody(resp)
	if err != nil {
		return err
	}

	var result map[string]interface{}
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if valid, ok := result["valid"].(bool); ok {
		if valid {
			PrintSuccess("Snapshot verified: no drift detected")
		} else {
			PrintWarning("Snapshot verification FAILED")
		}
	}

	return OutputData(result)
}

func runSnapshotPackage(cmd *cobra.Command, args []string) error {
	if err := requireOrganization(); err != nil {
		return err
	}
	client := NewAPIClient(serverURL, organizationID)

	resp, err := client.Post(fmt.Sprintf("/api/v1/snapshots/%s/package?include_files=%t", args[0], snapshotIncludeFiles), nil)
	if err != nil {
		return err
	}

	if err := CheckResponse(resp); err != nil {
		return err
	}

	body, err := ReadResponseBody(resp)
	if err != nil {
		return err
	}

	var result map[string]interface{}
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	PrintSuccess(fmt.Sprintf("Evidence package written to %v", result["storage_path"]))
	return OutputData(result)
}
