package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Ghazalehdelfi/secretary-agent/internal/config"
	"github.com/Ghazalehdelfi/secretary-agent/pkg/protocol"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}

	switch os.Args[1] {
	case "ask":
		cmdAsk(os.Args[2:])
	case "task":
		if len(os.Args) < 3 || os.Args[2] != "show" {
			fmt.Fprintln(os.Stderr, "usage: secretaryctl task show <id>")
			os.Exit(1)
		}
		if len(os.Args) < 4 {
			fmt.Fprintln(os.Stderr, "usage: secretaryctl task show <id>")
			os.Exit(1)
		}
		cmdTaskShow(os.Args[3])
	case "health":
		cmdHealth()
	case "agents":
		cmdAgents()
	case "contacts":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: secretaryctl contacts <list|add|remove>")
			os.Exit(1)
		}
		switch os.Args[2] {
		case "list":
			cmdContactsList()
		case "add":
			cmdContactsAdd(os.Args[3:])
		case "remove":
			if len(os.Args) < 4 {
				fmt.Fprintln(os.Stderr, "usage: secretaryctl contacts remove <id>")
				os.Exit(1)
			}
			cmdContactsRemove(os.Args[3])
		default:
			fmt.Fprintf(os.Stderr, "unknown contacts subcommand: %s\n", os.Args[2])
			os.Exit(1)
		}
	case "config":
		if len(os.Args) < 4 || os.Args[2] != "validate" {
			fmt.Fprintln(os.Stderr, "usage: secretaryctl config validate <path>")
			os.Exit(1)
		}
		cmdConfigValidate(os.Args[3])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// --- ask command ---

func cmdAsk(args []string) {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	sessionID := fs.String("session", "", "Session id to continue (default: new)")
	fs.Parse(args)

	message := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if message == "" {
		fmt.Fprintln(os.Stderr, "usage: secretaryctl ask [--session <id>] <message>")
		os.Exit(1)
	}

	taskID := uuid.NewString()
	sid := *sessionID
	if sid == "" {
		sid = taskID
	}

	params, _ := json.Marshal(protocol.TaskSendParams{
		ID:        taskID,
		SessionID: sid,
		Message: protocol.Message{
			Role:  "user",
			Parts: []protocol.TextPart{protocol.NewTextPart(message)},
		},
	})
	resp, err := apiTask(protocol.Request{ID: uuid.NewString(), Method: protocol.MethodSendTask, Params: params})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(resp.LastReply())
	fmt.Fprintf(os.Stderr, "(session %s, task %s)\n", sid, taskID)
}

func cmdTaskShow(id string) {
	params, _ := json.Marshal(protocol.TaskQueryParams{ID: id})
	task, err := apiTask(protocol.Request{ID: uuid.NewString(), Method: protocol.MethodGetTask, Params: params})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	out, _ := json.MarshalIndent(task, "", "  ")
	fmt.Println(string(out))
}

// --- API client commands ---

func cmdHealth() {
	body, err := apiGet("/api/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(body))
}

func cmdAgents() {
	body, err := apiGet("/api/agents")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	var cards []protocol.AgentCard
	json.Unmarshal(body, &cards)
	if len(cards) == 0 {
		fmt.Println("no peer agents reachable")
		return
	}
	for _, c := range cards {
		fmt.Printf("%-20s %-35s %s\n", c.Name, c.URL, c.Description)
	}
}

func cmdContactsList() {
	body, err := apiGet("/api/contacts")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	var contacts []map[string]any
	json.Unmarshal(body, &contacts)
	for _, c := range contacts {
		reach := c["Email"]
		if url, ok := c["AgentURL"].(string); ok && url != "" {
			reach = url
		}
		fmt.Printf("%-14s %-12s %-12s %v\n", c["ID"], c["FirstName"], c["LastName"], reach)
	}
}

func cmdContactsAdd(args []string) {
	fs := flag.NewFlagSet("contacts add", flag.ExitOnError)
	first := fs.String("first", "", "First name")
	last := fs.String("last", "", "Last name")
	email := fs.String("email", "", "Email address")
	agentName := fs.String("agent-name", "", "Peer agent name")
	agentURL := fs.String("agent-url", "", "Peer agent base URL")
	fs.Parse(args)

	if *first == "" && *last == "" {
		fmt.Fprintln(os.Stderr, "error: --first or --last is required")
		os.Exit(1)
	}

	payload, _ := json.Marshal(map[string]string{
		"first_name": *first,
		"last_name":  *last,
		"email":      *email,
		"agent_name": *agentName,
		"agent_url":  *agentURL,
	})
	body, err := apiPost("/api/contacts", payload)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(body))
}

func cmdContactsRemove(id string) {
	body, err := apiDo(http.MethodDelete, "/api/contacts/"+id, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(body))
}

func cmdConfigValidate(path string) {
	_, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("config is valid")
}

// --- Helpers ---

func apiTask(req protocol.Request) (*protocol.Task, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	body, err := apiPost("/a2a", payload)
	if err != nil {
		return nil, err
	}
	var resp protocol.Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("%s", resp.Error.Message)
	}
	if resp.Result == nil {
		return nil, fmt.Errorf("empty result")
	}
	return resp.Result, nil
}

func apiGet(path string) ([]byte, error) {
	return apiDo(http.MethodGet, path, nil)
}

func apiPost(path string, payload []byte) ([]byte, error) {
	return apiDo(http.MethodPost, path, payload)
}

func apiDo(method, path string, payload []byte) ([]byte, error) {
	base := envOr("SECRETARY_API_URL", "http://localhost:8080")

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, base+path, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if key := os.Getenv("SECRETARY_API_KEY"); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	// Negotiations can take several engine round-trips.
	client := &http.Client{Timeout: 120 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(out))
	}
	return out, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func printUsage() {
	fmt.Println("secretaryctl — scheduling agent CLI")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  ask <message>        Send a scheduling request to the daemon")
	fmt.Println("  task show <id>       Show a task and its history")
	fmt.Println("  health               Check daemon health")
	fmt.Println("  agents               List reachable peer agents")
	fmt.Println("  contacts list        List contacts")
	fmt.Println("  contacts add         Add a contact (--first, --last, --email, --agent-name, --agent-url)")
	fmt.Println("  contacts remove <id> Remove a contact")
	fmt.Println("  config validate <p>  Validate config file")
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Println("  SECRETARY_API_URL  Daemon URL (default: http://localhost:8080)")
	fmt.Println("  SECRETARY_API_KEY  API key for authentication")
}
