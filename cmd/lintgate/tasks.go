package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/hochfrequenz/lintgate/internal/domain"
)

var (
	tasksServer string
	tasksStatus string
	tasksLimit  int
	tasksReason string
)

func init() {
	tasksCmd := &cobra.Command{
		Use:   "tasks",
		Short: "Inspect async validation tasks on a running server",
	}
	tasksCmd.PersistentFlags().StringVar(&tasksServer, "server", "", "server address (default from config)")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks, newest first",
		RunE:  runTasksList,
	}
	listCmd.Flags().StringVar(&tasksStatus, "status", "", "filter by status")
	listCmd.Flags().IntVar(&tasksLimit, "limit", 20, "maximum number of tasks")

	getCmd := &cobra.Command{
		Use:   "get TASK_ID",
		Short: "Show one task",
		Args:  cobra.ExactArgs(1),
		RunE:  runTasksGet,
	}

	cancelCmd := &cobra.Command{
		Use:   "cancel TASK_ID",
		Short: "Mark a task cancelled",
		Args:  cobra.ExactArgs(1),
		RunE:  runTasksCancel,
	}
	cancelCmd.Flags().StringVar(&tasksReason, "reason", "", "cancellation reason")

	tasksCmd.AddCommand(listCmd, getCmd, cancelCmd)
	rootCmd.AddCommand(tasksCmd)
}

// apiClient talks to a lintgate serve instance
type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient() (*apiClient, error) {
	addr := tasksServer
	if addr == "" {
		cfg, err := loadConfig()
		if err != nil {
			return nil, err
		}
		addr = fmt.Sprintf("%s:%d", cfg.Serve.Host, cfg.Serve.Port)
	}
	return &apiClient{base: "http://" + addr, http: &http.Client{Timeout: 10 * time.Second}}, nil
}

func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("contacting server (is 'lintgate serve' running?): %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server: %s", apiErr.Error)
		}
		return fmt.Errorf("server: %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func runTasksList(cmd *cobra.Command, args []string) error {
	c, err := newAPIClient()
	if err != nil {
		return err
	}
	q := url.Values{}
	if tasksStatus != "" {
		q.Set("status", tasksStatus)
	}
	q.Set("limit", strconv.Itoa(tasksLimit))

	var tasks []domain.AsyncTask
	if err := c.do(cmd.Context(), http.MethodGet, "/api/tasks?"+q.Encode(), nil, &tasks); err != nil {
		return err
	}
	if len(tasks) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No tasks")
		return nil
	}

	now := time.Now()
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tPROGRESS\tSTARTED\tMESSAGE")
	for _, t := range tasks {
		fmt.Fprintf(tw, "%s\t%s\t%d/%d\t%s\t%s\n",
			t.TaskID, t.Status, t.Progress, t.Total,
			humanize.RelTime(t.Started, now, "ago", "from now"), t.Message)
	}
	return tw.Flush()
}

func runTasksGet(cmd *cobra.Command, args []string) error {
	c, err := newAPIClient()
	if err != nil {
		return err
	}
	var task domain.AsyncTask
	if err := c.do(cmd.Context(), http.MethodGet, "/api/tasks/"+url.PathEscape(args[0]), nil, &task); err != nil {
		return err
	}
	printTask(cmd.OutOrStdout(), &task)
	return nil
}

func runTasksCancel(cmd *cobra.Command, args []string) error {
	c, err := newAPIClient()
	if err != nil {
		return err
	}
	var task domain.AsyncTask
	body := map[string]string{"reason": tasksReason}
	if err := c.do(cmd.Context(), http.MethodPost, "/api/tasks/"+url.PathEscape(args[0])+"/cancel", body, &task); err != nil {
		return err
	}
	printTask(cmd.OutOrStdout(), &task)
	return nil
}

func printTask(w io.Writer, t *domain.AsyncTask) {
	fmt.Fprintf(w, "Task:     %s\n", t.TaskID)
	fmt.Fprintf(w, "Status:   %s\n", t.Status)
	fmt.Fprintf(w, "Progress: %d/%d (%.0f%%)\n", t.Progress, t.Total, t.Percent())
	fmt.Fprintf(w, "Message:  %s\n", t.Message)
	fmt.Fprintf(w, "Started:  %s\n", t.Started.Format(time.RFC3339))
	if t.Completed != nil {
		fmt.Fprintf(w, "Finished: %s\n", t.Completed.Format(time.RFC3339))
	}
	if t.Error != "" {
		fmt.Fprintf(w, "Error:    %s\n", t.Error)
	}
	if t.Result != nil {
		data, _ := json.MarshalIndent(t.Result, "", "  ")
		fmt.Fprintf(w, "Result:\n%s\n", data)
	}
}
