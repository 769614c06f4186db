package health

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"
)

// Summary counts tasks by classified state.
type Summary struct {
	Total   int
	Healthy int
	Paused  int
	Broken  int
	Frozen  int
}

// Summarize counts infos by state.
func Summarize(infos []TaskInfo) Summary {
	s := Summary{Total: len(infos)}
	for _, info := range infos {
		switch {
		case info.State.Healthy():
			s.Healthy++
		case info.State == Paused:
			s.Paused++
		case info.State == Broken:
			s.Broken++
		case info.State == Frozen:
			s.Frozen++
		}
	}
	return s
}

func (s Summary) String() string {
	return fmt.Sprintf("%d of %d tasks healthy, %d paused, %d broken, %d frozen",
		s.Healthy, s.Total, s.Paused, s.Broken, s.Frozen)
}

// Render writes a status table followed by the summary line.
func Render(w io.Writer, infos []TaskInfo, now time.Time) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TASK\tSTATE\tUPTIME\tLAST ACTIVITY\tSTATUS")
	for _, info := range infos {
		name := info.Name
		if name == "" {
			name = info.ID
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s ago\t%s\n",
			name,
			info.State,
			formatAge(now.Sub(info.StartedAt)),
			formatAge(now.Sub(info.LastActivity)),
			info.Status,
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w, Summarize(infos))
	return err
}

func formatAge(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Truncate(time.Second)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	}
}
