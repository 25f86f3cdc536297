package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/me/govm/pkg/model"
	"github.com/spf13/cobra"
)

func decodeData(resp *apiResponse, out any) error {
	if err := json.Unmarshal(resp.Data, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

// stats mirrors the /stats payload.
type stats struct {
	Tick            uint64               `json:"tick"`
	Inbound         int                  `json:"inbound"`
	WaitingContexts int                  `json:"waiting_contexts"`
	InFlight        int                  `json:"in_flight"`
	Backpressure    bool                 `json:"backpressure"`
	Objects         int                  `json:"objects"`
	Units           []model.UnitSnapshot `json:"units"`
	Counters        model.Counters       `json:"counters"`
	Halted          string               `json:"halted"`
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show scheduler counters and unit queues",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var st stats
			if _, err := client.Get(cmd.Context(), "/api/v1/stats", &st); err != nil {
				return fmt.Errorf("get stats: %w", err)
			}
			out := cmd.OutOrStdout()
			c := st.Counters

			fmt.Fprintf(out, "Tick:         %s\n", humanize.Comma(int64(st.Tick)))
			if st.Halted != "" {
				fmt.Fprintf(out, "Halted:       %s\n", st.Halted)
			}
			fmt.Fprintf(out, "Backpressure: %t\n", st.Backpressure)
			fmt.Fprintf(out, "Objects:      %s\n", humanize.Comma(int64(st.Objects)))
			fmt.Fprintf(out, "Inbound:      %s\n", humanize.Comma(int64(st.Inbound)))
			fmt.Fprintf(out, "Waiting:      %s\n", humanize.Comma(int64(st.WaitingContexts)))
			fmt.Fprintf(out, "In flight:    %s\n", humanize.Comma(int64(st.InFlight)))
			fmt.Fprintf(out, "Received:     %s (%s control)\n", humanize.Comma(int64(c.Received)), humanize.Comma(int64(c.ControlExecuted)))
			fmt.Fprintf(out, "Contexts:     %s created, %s released\n", humanize.Comma(int64(c.ContextsCreated)), humanize.Comma(int64(c.ContextsReleased)))
			fmt.Fprintf(out, "Packages:     %s launched, %s released, %s failed\n",
				humanize.Comma(int64(c.PackagesLaunched)), humanize.Comma(int64(c.PackagesReleased)), humanize.Comma(int64(c.PackagesFailed)))

			fmt.Fprintf(out, "%-16s  %-12s  %s\n", "UNIT", "UNCOLLECTED", "LAUNCHED")
			fmt.Fprintf(out, "%-16s  %-12s  %s\n", "----", "-----------", "--------")
			for _, u := range st.Units {
				fmt.Fprintf(out, "%-16s  %-12d  %d\n", u.Unit, u.Uncollected, u.Launched)
			}
			return nil
		},
	}
}

func newObjectsCmd() *cobra.Command {
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "objects [id]",
		Short: "List logical objects, or show one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var objs []model.ObjectSnapshot
			var resp *apiResponse
			if len(args) == 1 {
				if _, err := strconv.ParseUint(args[0], 10, 64); err != nil {
					return fmt.Errorf("object id %q: must be an unsigned integer", args[0])
				}
				var obj model.ObjectSnapshot
				if _, err := client.Get(cmd.Context(), "/api/v1/objects/"+args[0], &obj); err != nil {
					return fmt.Errorf("get object: %w", err)
				}
				objs = append(objs, obj)
			} else {
				var err error
				q := url.Values{"limit": {strconv.Itoa(limit)}, "offset": {strconv.Itoa(offset)}}
				if resp, err = client.Get(cmd.Context(), "/api/v1/objects?"+q.Encode(), &objs); err != nil {
					return fmt.Errorf("list objects: %w", err)
				}
			}

			out := cmd.OutOrStdout()
			if len(objs) == 0 {
				fmt.Fprintln(out, "No objects found.")
				return nil
			}
			fmt.Fprintf(out, "%-10s  %-8s  %-10s  %-8s  %s\n", "OBJECT", "REPLICA", "MODE", "HOLDING", "WAITING")
			fmt.Fprintf(out, "%-10s  %-8s  %-10s  %-8s  %s\n", "------", "-------", "----", "-------", "-------")
			for _, o := range objs {
				for _, r := range o.Replicas {
					fmt.Fprintf(out, "%-10d  %-8d  %-10s  %-8d  %d\n", o.ID, r.Parallel, r.Mode, r.Holding, r.Waiting)
				}
			}
			if resp != nil && resp.Pagination != nil && resp.Pagination.HasMore {
				fmt.Fprintf(out, "\n(%d of %d shown)\n", len(objs), resp.Pagination.Total)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum objects to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "Objects to skip")
	return cmd
}

func newPackagesCmd() *cobra.Command {
	var (
		limit int
		unit  string
	)
	cmd := &cobra.Command{
		Use:   "packages [id]",
		Short: "List dispatched packages from the journal, or show one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if len(args) == 1 {
				var rec model.PackageRecord
				if _, err := client.Get(cmd.Context(), "/api/v1/packages/"+url.PathEscape(args[0]), &rec); err != nil {
					return fmt.Errorf("get package: %w", err)
				}
				printPackage(out, &rec)
				return nil
			}

			q := url.Values{"limit": {strconv.Itoa(limit)}}
			if unit != "" {
				q.Set("unit", unit)
			}
			var recs []*model.PackageRecord
			resp, err := client.Get(cmd.Context(), "/api/v1/packages?"+q.Encode(), &recs)
			if err != nil {
				return fmt.Errorf("list packages: %w", err)
			}
			if len(recs) == 0 {
				fmt.Fprintln(out, "No packages found.")
				return nil
			}

			fmt.Fprintf(out, "%-40s  %-12s  %-5s  %-30s  %s\n", "ID", "UNIT", "SIZE", "LAUNCHED", "STATE")
			fmt.Fprintf(out, "%-40s  %-12s  %-5s  %-30s  %s\n", "--", "----", "----", "--------", "-----")
			for _, rec := range recs {
				state := "launched"
				switch {
				case rec.Failure != "":
					state = "failed"
				case rec.IsReleased():
					state = "released"
				}
				launched := fmt.Sprintf("tick %d (%s)", rec.LaunchedTick, humanize.Time(rec.LaunchedAt))
				fmt.Fprintf(out, "%-40s  %-12s  %-5d  %-30s  %s\n", rec.ID, rec.Unit, rec.Size, launched, state)
			}
			if resp.Pagination != nil && resp.Pagination.HasMore {
				fmt.Fprintf(out, "\n(%d of %d shown)\n", len(recs), resp.Pagination.Total)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum packages to list")
	cmd.Flags().StringVar(&unit, "unit", "", "Only packages of this unit type")
	return cmd
}

func printPackage(w io.Writer, rec *model.PackageRecord) {
	fmt.Fprintf(w, "Package:  %s\n", rec.ID)
	fmt.Fprintf(w, "  Unit:     %s\n", rec.Unit)
	fmt.Fprintf(w, "  Launched: tick %d (%s)\n", rec.LaunchedTick, humanize.Time(rec.LaunchedAt))
	if rec.ReleasedTick != nil {
		fmt.Fprintf(w, "  Released: tick %d\n", *rec.ReleasedTick)
	}
	if rec.Failure != "" {
		fmt.Fprintf(w, "  Failure:  %s\n", rec.Failure)
	}
	fmt.Fprintln(w, "  Instructions:")
	for i, id := range rec.InstructionIDs {
		opcode := ""
		if i < len(rec.Opcodes) {
			opcode = rec.Opcodes[i]
		}
		fmt.Fprintf(w, "    - %s\n", strings.TrimSpace(id+" "+opcode))
	}
}
