package review

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/vinayprograms/freightkit/cargo"
	"github.com/vinayprograms/freightkit/planner"
)

// Console is a line-based Prompter. The first Request returns the base
// request as given; later ones (after an edit or a planning problem) read
// new amounts as "wood=500 wine=20". An empty line or "q" backs out.
type Console struct {
	in    *bufio.Reader
	out   io.Writer
	base  planner.Request
	asked bool
}

// NewConsole creates a console prompter.
func NewConsole(in io.Reader, out io.Writer, base planner.Request) *Console {
	return &Console{in: bufio.NewReader(in), out: out, base: base}
}

func (c *Console) readLine() (string, error) {
	line, err := c.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Request implements Prompter.
func (c *Console) Request(ctx context.Context, previous *planner.Request, problem error) (planner.Request, bool, error) {
	if !c.asked {
		c.asked = true
		return c.base, true, nil
	}

	req := c.base
	if previous != nil {
		req = *previous
	}
	if problem != nil {
		fmt.Fprintf(c.out, "cannot plan: %v\n", problem)
	}

	for {
		if err := ctx.Err(); err != nil {
			return req, false, err
		}
		fmt.Fprintf(c.out, "amounts for %s [%s]: ", req.Mode, req.Amounts)
		line, err := c.readLine()
		if err == io.EOF {
			return req, false, nil
		}
		if err != nil {
			return req, false, err
		}
		if line == "" || line == "q" {
			return req, false, nil
		}
		v, err := cargo.ParseVector(line)
		if err != nil {
			fmt.Fprintf(c.out, "%v\n", err)
			continue
		}
		req.Amounts = v
		return req, true, nil
	}
}

// Review implements Prompter.
func (c *Console) Review(ctx context.Context, plan *planner.Plan) (Decision, error) {
	if err := plan.Render(c.out); err != nil {
		return Cancel, err
	}
	for {
		if err := ctx.Err(); err != nil {
			return Cancel, err
		}
		fmt.Fprint(c.out, "[a]ccept, [e]dit or [c]ancel? ")
		line, err := c.readLine()
		if err == io.EOF {
			return Cancel, nil
		}
		if err != nil {
			return Cancel, err
		}
		d, err := ParseDecision(line)
		if err != nil {
			fmt.Fprintf(c.out, "%v\n", err)
			continue
		}
		return d, nil
	}
}
