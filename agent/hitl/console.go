package hitl

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/BaSui01/stageflow/types"
)

// ConsoleHandler asks for decisions on a terminal.
type ConsoleHandler struct {
	mu  sync.Mutex
	in  *bufio.Reader
	out io.Writer
}

var (
	_ Handler  = (*ConsoleHandler)(nil)
	_ Notifier = (*ConsoleHandler)(nil)
)

// NewConsoleHandler reads answers from in and writes prompts to out.
func NewConsoleHandler(in io.Reader, out io.Writer) *ConsoleHandler {
	return &ConsoleHandler{in: bufio.NewReader(in), out: out}
}

func (c *ConsoleHandler) question(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	fmt.Fprint(c.out, prompt)
	line, err := c.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("read answer: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// HandleApproval prints the request and reads yes / no / edit.
func (c *ConsoleHandler) HandleApproval(ctx context.Context, id string, req types.ApprovalRequest) (types.HumanResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rule := strings.Repeat("=", 60)
	fmt.Fprintf(c.out, "\n%s\nAPPROVAL REQUIRED: %s\n%s\n", rule, req.Summary, rule)
	fmt.Fprintf(c.out, "Request: %s\nAgent: %s\nStage: %s\nType: %s\n", id, req.AgentID, req.Stage, req.Type)
	if req.Content != nil {
		content, err := json.MarshalIndent(req.Content, "", "  ")
		if err != nil {
			content = []byte(fmt.Sprintf("%v", req.Content))
		}
		fmt.Fprintf(c.out, "\nContent:\n%s\n", content)
	}
	if len(req.Options) > 0 {
		fmt.Fprintln(c.out, "\nOptions:")
		for i, opt := range req.Options {
			fmt.Fprintf(c.out, "  %d. %s: %s\n", i+1, opt.Label, opt.Description)
		}
	}

	answer, err := c.question(ctx, "\nApprove? (yes/no/edit): ")
	if err != nil {
		return types.HumanResponse{}, err
	}

	switch strings.ToLower(answer) {
	case "yes", "y":
		return types.HumanResponse{Approved: true}, nil
	case "edit", "e":
		feedback, err := c.question(ctx, "Enter modifications (JSON): ")
		if err != nil {
			return types.HumanResponse{}, err
		}
		var mods map[string]any
		if err := json.Unmarshal([]byte(feedback), &mods); err != nil {
			return types.HumanResponse{Approved: true, Feedback: feedback}, nil
		}
		return types.HumanResponse{Approved: true, Feedback: feedback, Modifications: mods}, nil
	}

	reason, err := c.question(ctx, "Rejection reason: ")
	if err != nil {
		return types.HumanResponse{}, err
	}
	return types.HumanResponse{Approved: false, Feedback: reason}, nil
}

// CollectFeedback prints the prompt and reads one line.
func (c *ConsoleHandler) CollectFeedback(ctx context.Context, prompt string, fc types.FeedbackContext) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rule := strings.Repeat("-", 40)
	fmt.Fprintf(c.out, "\n%s\nFeedback requested from %s\n%s\n", rule, fc.AgentID, rule)
	return c.question(ctx, prompt+": ")
}

var notifyIcons = map[types.NotificationType]string{
	types.NotifyInfo:    "i",
	types.NotifyWarning: "!",
	types.NotifyError:   "x",
	types.NotifySuccess: "+",
}

// Notify prints a one-line notification.
func (c *ConsoleHandler) Notify(ctx context.Context, n types.Notification) error {
	icon, ok := notifyIcons[n.Type]
	if !ok {
		icon = "i"
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintf(c.out, "\n[%s] %s: %s\n", icon, n.Title, n.Message)
	return err
}
