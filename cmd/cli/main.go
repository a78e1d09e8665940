package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	serverURL string
	rootCmd   = &cobra.Command{
		Use:   "khytool",
		Short: "KHyTool CLI - Video downloader for YouTube, TikTok and Facebook",
		Long:  `A command-line interface for extracting metadata and managing video downloads from YouTube, TikTok and Facebook.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")

	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(retryCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(registryCmd)
	rootCmd.AddCommand(removeCmd)
}

var addCmd = &cobra.Command{
	Use:   "add [url]",
	Short: "Add a download to the queue",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		url := args[0]
		formatID, _ := cmd.Flags().GetString("format")
		platform, _ := cmd.Flags().GetString("platform")

		payload := map[string]string{
			"url": url,
		}
		if formatID != "" {
			payload["format_id"] = formatID
		}
		if platform != "" {
			payload["platform"] = platform
		}

		data, _ := json.Marshal(payload)
		resp, err := http.Post(serverURL+"/api/v1/downloads", "application/json", bytes.NewBuffer(data))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusCreated {
			fmt.Fprintf(os.Stderr, "Error: %s\n", string(body))
			os.Exit(1)
		}

		var result map[string]interface{}
		json.Unmarshal(body, &result)
		fmt.Printf("Download added successfully!\n")
		fmt.Printf("ID: %s\n", result["id"])
		fmt.Printf("Status: %s\n", result["status"])
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all download jobs",
	Run: func(cmd *cobra.Command, args []string) {
		status, _ := cmd.Flags().GetString("status")

		url := serverURL + "/api/v1/downloads"
		if status != "" {
			url += "?status=" + status
		}

		resp, err := http.Get(url)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		var jobs []map[string]interface{}
		json.Unmarshal(body, &jobs)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tURL\tPLATFORM\tSTATUS\tCREATED")
		for _, j := range jobs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				truncate(stringField(j, "id"), 8),
				truncate(stringField(j, "url"), 40),
				j["platform"],
				colorStatus(stringField(j, "status")),
				j["created_at"])
		}
		w.Flush()
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show queue statistics",
	Run: func(cmd *cobra.Command, args []string) {
		resp, err := http.Get(serverURL + "/api/v1/downloads/stats")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		var stats map[string]interface{}
		json.Unmarshal(body, &stats)

		fmt.Println("Queue Statistics:")
		fmt.Printf("  Total:      %v\n", stats["total"])
		fmt.Printf("  Queued:     %v\n", stats["queued"])
		fmt.Printf("  Processing: %v\n", stats["processing"])
		fmt.Printf("  Completed:  %v\n", stats["completed"])
		fmt.Printf("  Failed:     %v\n", stats["failed"])
		fmt.Printf("  Cancelled:  %v\n", stats["cancelled"])
	},
}

var getCmd = &cobra.Command{
	Use:   "get [id]",
	Short: "Get job details",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		resp, err := http.Get(serverURL + "/api/v1/downloads/" + args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusOK {
			fmt.Fprintf(os.Stderr, "Error: %s\n", string(body))
			os.Exit(1)
		}

		var job map[string]interface{}
		json.Unmarshal(body, &job)

		fmt.Printf("Job Details:\n")
		fmt.Printf("  ID:       %s\n", job["id"])
		fmt.Printf("  URL:      %s\n", job["url"])
		fmt.Printf("  Platform: %s\n", job["platform"])
		fmt.Printf("  Status:   %s\n", colorStatus(stringField(job, "status")))
		fmt.Printf("  Format:   %s\n", job["format_id"])
		fmt.Printf("  Created:  %s\n", job["created_at"])
		if job["file_path"] != nil && job["file_path"] != "" {
			fmt.Printf("  File:     %s\n", job["file_path"])
		}
		if job["error_message"] != nil && job["error_message"] != "" {
			fmt.Printf("  Error:    %s\n", job["error_message"])
		}
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel [id]",
	Short: "Cancel a download job",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		resp, err := http.Post(serverURL+"/api/v1/downloads/"+args[0]+"/cancel", "application/json", nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			fmt.Fprintf(os.Stderr, "Error: %s\n", string(body))
			os.Exit(1)
		}
		fmt.Println("Job cancelled successfully")
	},
}

var retryCmd = &cobra.Command{
	Use:   "retry [id]",
	Short: "Retry a failed job",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		resp, err := http.Post(serverURL+"/api/v1/downloads/"+args[0]+"/retry", "application/json", nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			fmt.Fprintf(os.Stderr, "Error: %s\n", string(body))
			os.Exit(1)
		}
		fmt.Println("Job queued for retry")
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete a job from the queue",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		req, _ := http.NewRequest(http.MethodDelete, serverURL+"/api/v1/downloads/"+args[0], nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			fmt.Fprintf(os.Stderr, "Error: %s\n", string(body))
			os.Exit(1)
		}
		fmt.Println("Job deleted")
	},
}

var extractCmd = &cobra.Command{
	Use:   "extract [url]",
	Short: "Extract video metadata without downloading",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		payload, _ := json.Marshal(map[string]string{"url": args[0]})
		resp, err := http.Post(serverURL+"/api/v1/extract", "application/json", bytes.NewBuffer(payload))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusOK {
			fmt.Fprintf(os.Stderr, "Error: %s\n", string(body))
			os.Exit(1)
		}

		var result struct {
			Platform     string `json:"platform"`
			ContentID    string `json:"content_id"`
			CanonicalURL string `json:"canonical_url"`
			Metadata     struct {
				Title           string `json:"title"`
				Author          string `json:"author"`
				DurationSeconds int    `json:"duration_seconds"`
				Formats         []struct {
					FormatID     string `json:"format_id"`
					Ext          string `json:"ext"`
					DisplayLabel string `json:"display_label"`
				} `json:"formats"`
			} `json:"metadata"`
		}
		json.Unmarshal(body, &result)

		fmt.Printf("Platform:  %s\n", result.Platform)
		fmt.Printf("ID:        %s\n", result.ContentID)
		fmt.Printf("URL:       %s\n", result.CanonicalURL)
		fmt.Printf("Title:     %s\n", result.Metadata.Title)
		fmt.Printf("Author:    %s\n", result.Metadata.Author)
		fmt.Printf("Duration:  %ds\n", result.Metadata.DurationSeconds)

		fmt.Println("\nAvailable formats:")
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "FORMAT\tEXT\tLABEL")
		for _, f := range result.Metadata.Formats {
			fmt.Fprintf(w, "%s\t%s\t%s\n", f.FormatID, f.Ext, f.DisplayLabel)
		}
		w.Flush()
	},
}

var registryCmd = &cobra.Command{
	Use:   "registry",
	Short: "List the download history",
	Run: func(cmd *cobra.Command, args []string) {
		status, _ := cmd.Flags().GetString("status")

		url := serverURL + "/api/v1/registry"
		if status != "" {
			url += "?status=" + status
		}

		resp, err := http.Get(url)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		var records []map[string]interface{}
		json.Unmarshal(body, &records)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTITLE\tSOURCE\tSTATUS\tPROGRESS\tFILE")
		for _, r := range records {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%v%%\t%s\n",
				truncate(stringField(r, "id"), 8),
				truncate(stringField(r, "title"), 35),
				r["source"],
				colorStatus(stringField(r, "status")),
				r["progress"],
				stringField(r, "output_file"))
		}
		w.Flush()
	},
}

var removeCmd = &cobra.Command{
	Use:   "remove [id]",
	Short: "Remove an entry from the download history",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		req, _ := http.NewRequest(http.MethodDelete, serverURL+"/api/v1/registry/"+args[0], nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			fmt.Fprintf(os.Stderr, "Error: %s\n", string(body))
			os.Exit(1)
		}
		fmt.Println("Record removed")
	},
}

func init() {
	addCmd.Flags().StringP("format", "f", "", "Format ID (best, bestaudio, or a numeric format)")
	addCmd.Flags().StringP("platform", "p", "", "Platform (youtube, tiktok, facebook)")
	listCmd.Flags().StringP("status", "s", "", "Filter by status")
	registryCmd.Flags().StringP("status", "s", "", "Filter by status (active, completed)")
}

func colorStatus(status string) string {
	switch status {
	case "completed":
		return color.GreenString(status)
	case "failed", "error":
		return color.RedString(status)
	case "processing", "running":
		return color.CyanString(status)
	case "cancelled", "paused":
		return color.YellowString(status)
	}
	return status
}

func stringField(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
