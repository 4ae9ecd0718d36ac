package gate

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"recast/pkg/logx"
	"recast/pkg/templates"
)

// ConsoleReviewer prompts for a decision on an interactive terminal.
// Reads block between prompts, so cancellation takes effect at the next
// prompt boundary.
type ConsoleReviewer struct {
	in          io.Reader
	out         io.Writer
	interactive func() bool
	renderer    *templates.Renderer
	log         *logx.Logger
}

func NewConsoleReviewer(renderer *templates.Renderer) *ConsoleReviewer {
	return &ConsoleReviewer{
		in:  os.Stdin,
		out: os.Stdout,
		interactive: func() bool {
			return term.IsTerminal(int(os.Stdin.Fd()))
		},
		renderer: renderer,
		log:      logx.NewLogger("gate"),
	}
}

func (c *ConsoleReviewer) AwaitReview(ctx context.Context, req ReviewRequest) (ReviewDecision, error) {
	if !c.interactive() {
		return ReviewDecision{}, errors.New("console review needs an interactive terminal; disable the gate or resume over the API")
	}

	rendered, err := c.renderer.Render(templates.ReviewTemplate, &templates.TemplateData{
		FilePath:         req.FilePath,
		Goal:             req.Goal,
		Summary:          req.Summary,
		Diff:             req.Diff,
		ValidationReport: req.ValidationReport,
		Iteration:        req.Iteration,
		MaxIterations:    req.MaxIterations,
	})
	if err != nil {
		return ReviewDecision{}, fmt.Errorf("render review request: %w", err)
	}
	fmt.Fprintln(c.out, rendered)

	scanner := bufio.NewScanner(c.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		if err := ctx.Err(); err != nil {
			return ReviewDecision{}, err
		}
		fmt.Fprint(c.out, "Decision [a]pprove / [r]eject / [m]odify: ")
		line, err := readLine(scanner)
		if err != nil {
			return ReviewDecision{}, err
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "a", "approve":
			return ReviewDecision{Action: ActionApprove}, nil
		case "r", "reject":
			fmt.Fprint(c.out, "Reason (optional): ")
			reason, err := readLine(scanner)
			if err != nil {
				return ReviewDecision{}, err
			}
			return ReviewDecision{Action: ActionReject, Feedback: strings.TrimSpace(reason)}, nil
		case "m", "modify":
			feedback, err := c.readFeedback(scanner)
			if err != nil {
				return ReviewDecision{}, err
			}
			return ReviewDecision{Action: ActionModify, Feedback: feedback}, nil
		default:
			fmt.Fprintln(c.out, "Unrecognized answer.")
		}
	}
}

// readFeedback insists on a non-empty instruction: MODIFY without feedback
// gives the generator nothing to act on.
func (c *ConsoleReviewer) readFeedback(scanner *bufio.Scanner) (string, error) {
	for {
		fmt.Fprint(c.out, "Feedback for the next attempt: ")
		line, err := readLine(scanner)
		if err != nil {
			return "", err
		}
		if feedback := strings.TrimSpace(line); feedback != "" {
			return feedback, nil
		}
		fmt.Fprintln(c.out, "Feedback cannot be empty.")
	}
}

func readLine(scanner *bufio.Scanner) (string, error) {
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return scanner.Text(), nil
}
