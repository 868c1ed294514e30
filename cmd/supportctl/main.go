// ABOUTME: Operator CLI for the supportd coordination server
// ABOUTME: Talks to the REST API for listing, assignment, messaging, and quick replies

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
)

const banner = `
                                    _       _   _
 ___ _   _ _ __  _ __   ___  _ __| |_ ___| |_| |
/ __| | | | '_ \| '_ \ / _ \| '__| __/ __| __| |
\__ \ |_| | |_) | |_) | (_) | |  | || (__| |_| |
|___/\__,_| .__/| .__/ \___/|_|   \__\___|\__|_|
          |_|   |_|
`

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	baseURL := os.Getenv("SUPPORTD_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	operatorID := os.Getenv("SUPPORTD_OPERATOR")

	c := &client{baseURL: strings.TrimRight(baseURL, "/"), operatorID: operatorID}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "list":
		err = cmdList(c, args)
	case "show":
		err = cmdShow(c, args)
	case "assign":
		err = cmdTransition(c, args, "assign")
	case "release":
		err = cmdTransition(c, args, "release")
	case "resolve":
		err = cmdTransition(c, args, "resolve")
	case "close":
		err = cmdTransition(c, args, "close")
	case "reopen":
		err = cmdTransition(c, args, "reopen")
	case "send":
		err = cmdSend(c, args)
	case "batch":
		err = cmdBatch(c, args)
	case "replies":
		err = cmdReplies(c, args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()
	fmt.Println("Usage: supportctl <command> [args]")
	fmt.Println()
	yellow.Println("Commands:")
	fmt.Println("  list [status]                List conversations, optionally by status")
	fmt.Println("  show <conv-id>               Show one conversation")
	fmt.Println("  assign <conv-id>             Take a conversation")
	fmt.Println("  release <conv-id>            Return a conversation to the pending pool")
	fmt.Println("  resolve <conv-id>            Mark an owned conversation processed")
	fmt.Println("  close <conv-id>              Close an owned conversation")
	fmt.Println("  reopen <conv-id>             Reopen a finished conversation")
	fmt.Println("  send <conv-id> <message>     Send a reply to an owned conversation")
	fmt.Println("  batch <message> <id>...      Send one message to several conversations")
	fmt.Println("  replies [add|rm] [args]      Manage quick replies")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Println("  SUPPORTD_URL        Server base URL (default: http://localhost:8080)")
	fmt.Println("  SUPPORTD_OPERATOR   Operator ID sent with every request (required)")
	fmt.Println()
}

// client is a minimal REST client for the supportd API.
type client struct {
	baseURL    string
	operatorID string
}

func (c *client) do(method, path string, body, out any) error {
	if c.operatorID == "" {
		return fmt.Errorf("SUPPORTD_OPERATOR is not set")
	}

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("X-Operator-ID", c.operatorID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
			Owner string `json:"owner"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			if apiErr.Owner != "" {
				return fmt.Errorf("%s (owner: %s)", apiErr.Error, apiErr.Owner)
			}
			return fmt.Errorf("%s", apiErr.Error)
		}
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

// apiConversation mirrors the server's conversation JSON.
type apiConversation struct {
	ID                 string  `json:"id"`
	UserID             string  `json:"user_id"`
	Status             string  `json:"status"`
	AssignedOperator   *string `json:"assigned_operator"`
	LastMessagePreview string  `json:"last_message_preview"`
	UnreadCount        int     `json:"unread_count"`
}

func cmdList(c *client, args []string) error {
	path := "/api/v1/conversations?page_size=50"
	if len(args) > 0 {
		path += "&status=" + url.QueryEscape(args[0])
	}

	var resp struct {
		Conversations []apiConversation `json:"conversations"`
		Total         int               `json:"total"`
	}
	if err := c.do(http.MethodGet, path, nil, &resp); err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUSER\tSTATUS\tOPERATOR\tUNREAD\tLAST MESSAGE")
	for _, conv := range resp.Conversations {
		operator := "-"
		if conv.AssignedOperator != nil {
			operator = *conv.AssignedOperator
		}
		preview := conv.LastMessagePreview
		if len(preview) > 40 {
			preview = preview[:37] + "..."
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			conv.ID, conv.UserID, conv.Status, operator, conv.UnreadCount, preview)
	}
	w.Flush()

	fmt.Printf("\n%d conversation(s)\n", resp.Total)
	return nil
}

func cmdShow(c *client, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: supportctl show <conv-id>")
	}

	var conv map[string]any
	if err := c.do(http.MethodGet, "/api/v1/conversations/"+url.PathEscape(args[0]), nil, &conv); err != nil {
		return err
	}

	data, err := json.MarshalIndent(conv, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func cmdTransition(c *client, args []string, action string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: supportctl %s <conv-id>", action)
	}

	var conv apiConversation
	path := "/api/v1/conversations/" + url.PathEscape(args[0]) + "/" + action
	if err := c.do(http.MethodPost, path, nil, &conv); err != nil {
		return err
	}

	color.Green("✓ %s: %s is now %s", action, conv.ID, conv.Status)
	return nil
}

func cmdSend(c *client, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: supportctl send <conv-id> <message>")
	}

	body := map[string]any{
		"content":      strings.Join(args[1:], " "),
		"content_type": 101,
	}
	var out struct {
		ID    string `json:"id"`
		State string `json:"state"`
	}
	path := "/api/v1/conversations/" + url.PathEscape(args[0]) + "/messages"
	if err := c.do(http.MethodPost, path, body, &out); err != nil {
		return err
	}

	color.Green("✓ sent %s (%s)", out.ID, out.State)
	return nil
}

func cmdBatch(c *client, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: supportctl batch <message> <conv-id>...")
	}

	body := map[string]any{
		"content":          args[0],
		"content_type":     101,
		"conversation_ids": args[1:],
	}
	var resp struct {
		Results []struct {
			ConversationID string `json:"conversation_id"`
			MessageID      string `json:"message_id"`
			Error          string `json:"error"`
		} `json:"results"`
	}
	if err := c.do(http.MethodPost, "/api/v1/messages/batch", body, &resp); err != nil {
		return err
	}

	for _, res := range resp.Results {
		if res.Error != "" {
			color.Red("✗ %s: %s", res.ConversationID, res.Error)
		} else {
			color.Green("✓ %s: %s", res.ConversationID, res.MessageID)
		}
	}
	return nil
}

func cmdReplies(c *client, args []string) error {
	if len(args) == 0 || args[0] == "list" {
		var resp struct {
			QuickReplies []struct {
				ID         int64  `json:"id"`
				Title      string `json:"title"`
				Content    string `json:"content"`
				IsShared   bool   `json:"is_shared"`
				UsageCount int    `json:"usage_count"`
			} `json:"quick_replies"`
		}
		if err := c.do(http.MethodGet, "/api/v1/quick-replies", nil, &resp); err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTITLE\tSHARED\tUSES\tCONTENT")
		for _, qr := range resp.QuickReplies {
			content := qr.Content
			if len(content) > 50 {
				content = content[:47] + "..."
			}
			fmt.Fprintf(w, "%d\t%s\t%t\t%d\t%s\n",
				qr.ID, qr.Title, qr.IsShared, qr.UsageCount, content)
		}
		return w.Flush()
	}

	switch args[0] {
	case "add":
		if len(args) < 3 {
			return fmt.Errorf("usage: supportctl replies add <title> <content>")
		}
		body := map[string]any{"title": args[1], "content": strings.Join(args[2:], " ")}
		var out struct {
			ID int64 `json:"id"`
		}
		if err := c.do(http.MethodPost, "/api/v1/quick-replies", body, &out); err != nil {
			return err
		}
		color.Green("✓ created quick reply %d", out.ID)
		return nil
	case "rm":
		if len(args) < 2 {
			return fmt.Errorf("usage: supportctl replies rm <id>")
		}
		if err := c.do(http.MethodDelete, "/api/v1/quick-replies/"+url.PathEscape(args[1]), nil, nil); err != nil {
			return err
		}
		color.Green("✓ deleted quick reply %s", args[1])
		return nil
	default:
		return fmt.Errorf("unknown replies subcommand: %s", args[0])
	}
}
