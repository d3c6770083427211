package cli

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"gpuwatch/internal/errors"
	"gpuwatch/internal/snapshot"
	"gpuwatch/internal/status"
)

var (
	styleOK     = lipgloss.NewStyle().Foreground(lipgloss.Color("#39FF14")).Bold(true)
	styleBad    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0055")).Bold(true)
	styleMuted  = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B6B8D"))
	styleHeader = lipgloss.NewStyle().Foreground(lipgloss.Color("#00FFFF")).Bold(true)
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the current state of a running gpuwatch instance",
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, _ := cmd.Flags().GetString("addr")
			raw, _ := cmd.Flags().GetBool("raw")
			return runStatus(cmd, addr, raw)
		},
	}
	cmd.Flags().String("addr", "127.0.0.1:8787", "address of the running gpuwatch instance")
	cmd.Flags().Bool("raw", false, "print the raw status JSON")
	return cmd
}

func runStatus(cmd *cobra.Command, addr string, raw bool) error {
	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get("http://" + addr + "/api/status")
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrNetwork,
			"No gpuwatch instance reachable at "+addr,
			"Start one with 'gpuwatch serve', or point --addr at the right port")
	}
	defer resp.Body.Close()

	if raw {
		var pretty json.RawMessage
		if err := json.NewDecoder(resp.Body).Decode(&pretty); err != nil {
			return err
		}
		out, _ := json.MarshalIndent(pretty, "", "  ")
		cmd.Println(string(out))
		return nil
	}

	var st status.PublishedState
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return errors.WrapWithCode(err, errors.ErrParse,
			"Unexpected response from "+addr,
			"Is something other than gpuwatch listening there?")
	}

	cmd.Print(renderStatus(st))
	return nil
}

// renderStatus formats a PublishedState for the terminal.
func renderStatus(st status.PublishedState) string {
	var b strings.Builder

	target := "no target configured"
	if st.Server != nil {
		target = fmt.Sprintf("%s@%s:%d", st.Server.User, st.Server.Host, st.Server.Port)
	}
	b.WriteString(styleHeader.Render("gpuwatch") + "  " + styleMuted.Render(target) + "\n")

	if st.OK {
		b.WriteString(styleOK.Render("● connected") + "\n")
	} else {
		b.WriteString(styleBad.Render("● "+st.State) + "\n")
	}

	for _, problem := range st.ConfigErrors {
		b.WriteString(styleBad.Render("  config: "+problem) + "\n")
	}
	if st.Error != "" {
		b.WriteString(styleBad.Render("  "+st.Error) + "\n")
	}

	if st.Data == nil {
		b.WriteString(styleMuted.Render("  no snapshot yet") + "\n")
		return b.String()
	}

	if st.Error != "" {
		b.WriteString(styleMuted.Render("  showing last good snapshot") + "\n")
	}

	s := st.Data.Summary
	b.WriteString(fmt.Sprintf("  %d GPU(s)  mem %s/%s MB  util %s  temp %s °C\n",
		s.GPUCount,
		snapshot.FormatMagnitude(s.MemoryUsedMB),
		snapshot.FormatMagnitude(s.MemoryTotalMB),
		snapshot.FormatPercent(s.UtilizationAvg),
		snapshot.FormatMagnitude(s.TemperatureAvg)))

	for _, gpu := range st.Data.GPUs {
		b.WriteString(fmt.Sprintf("  #%d %s  util %s  mem %s/%s MB  %s °C  %s/%s W  fan %s\n",
			gpu.Index, gpu.Name,
			snapshot.FormatPercent(gpu.UtilizationGPU),
			snapshot.FormatMagnitude(gpu.MemoryUsedMB),
			snapshot.FormatMagnitude(gpu.MemoryTotalMB),
			snapshot.FormatMagnitude(gpu.TemperatureC),
			snapshot.FormatMagnitude(gpu.PowerDrawW),
			snapshot.FormatMagnitude(gpu.PowerLimitW),
			snapshot.FormatPercent(gpu.FanSpeedPct)))
	}

	if st.Data.DriverVersion != "" {
		b.WriteString(styleMuted.Render("  driver "+st.Data.DriverVersion) + "\n")
	}
	b.WriteString(styleMuted.Render("  captured "+st.Data.Timestamp.Format(time.RFC3339)) + "\n")

	return b.String()
}

// renderError formats a CLI error, using the structured detail form when
// available.
func renderError(err error) string {
	var serr *errors.Error
	if stderrors.As(err, &serr) {
		return serr.Detail()
	}
	return "✗ " + err.Error()
}
